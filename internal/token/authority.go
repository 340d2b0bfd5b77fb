package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
)

const timestampTolerance = time.Duration(constants.TimestampTolerance * float64(time.Second))

// Authority issues and verifies tokens. It owns the used-token set of every kind.
type Authority struct {
	clock clockwork.Clock
	keys  map[Kind][]byte
	used  map[Kind]*usedSet
}

// NewAuthority builds an Authority. With an empty secret every kind gets a random key, so
// tokens do not survive a restart; otherwise per-kind keys are derived from the secret.
func NewAuthority(secret []byte, clock clockwork.Clock) (*Authority, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	a := &Authority{
		clock: clock,
		keys:  make(map[Kind][]byte, len(allKinds)),
		used:  make(map[Kind]*usedSet, len(allKinds)),
	}
	for _, kind := range allKinds {
		key, err := deriveKey(secret, kind)
		if err != nil {
			return nil, fmt.Errorf("derive %s key: %w", kind, err)
		}
		a.keys[kind] = key
		a.used[kind] = newUsedSet()
	}
	return a, nil
}

func deriveKey(secret []byte, kind Kind) ([]byte, error) {
	if len(secret) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return key, nil
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("typeduel/" + string(kind)))
	return mac.Sum(nil), nil
}

// HashText returns the content hash embedded in paragraph and start tokens.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RoundWPM rounds to one decimal place, the precision result tokens bind.
func RoundWPM(wpm float64) float64 {
	return math.Round(wpm*10) / 10
}

func (a *Authority) IssueParagraph(text string) (Token, error) {
	return a.issue(KindParagraph, HashText(text), nil)
}

// ConsumeParagraph verifies a paragraph token against the paragraph text and marks it used.
func (a *Authority) ConsumeParagraph(raw, text string) error {
	_, err := a.consume(KindParagraph, raw, func(c *claims) error {
		return matchHash(c, text)
	})
	return err
}

// IssueStart mints a start token. Its issuance time is the authoritative start of the attempt.
func (a *Authority) IssueStart(text string) (Token, error) {
	return a.issue(KindStart, HashText(text), nil)
}

// ConsumeStart verifies a start token for text and checks the client's claimed start and end
// against the token's issuance time and the current time.
func (a *Authority) ConsumeStart(raw, text string, claimedStart, claimedEnd time.Time) error {
	_, err := a.consume(KindStart, raw, func(c *claims) error {
		if err := matchHash(c, text); err != nil {
			return err
		}
		if absDuration(c.IssuedAt.Time.Sub(claimedStart)) > timestampTolerance {
			return fmt.Errorf("%w: start", ErrTimestampOutOfTolerance)
		}
		if absDuration(a.clock.Now().Sub(claimedEnd)) > timestampTolerance {
			return fmt.Errorf("%w: end", ErrTimestampOutOfTolerance)
		}
		return nil
	})
	return err
}

func (a *Authority) IssueResult(wpm float64) (Token, error) {
	if !plausible(wpm) {
		return Token{}, fmt.Errorf("%w: wpm %v", ErrImplausibleValue, wpm)
	}
	rounded := RoundWPM(wpm)
	return a.issue(KindResult, "", &rounded)
}

// ConsumeResult verifies a result token vouches for claimedWPM and marks it used.
func (a *Authority) ConsumeResult(raw string, claimedWPM float64) error {
	_, err := a.consume(KindResult, raw, func(c *claims) error {
		if c.WPM == nil || RoundWPM(*c.WPM) != RoundWPM(claimedWPM) {
			return ErrContentMismatch
		}
		return nil
	})
	return err
}

func (a *Authority) IssueVerifiedSpeed(wpm float64) (Token, error) {
	if math.IsNaN(wpm) || math.IsInf(wpm, 0) || wpm < 0 {
		return Token{}, fmt.Errorf("%w: verified wpm %v", ErrImplausibleValue, wpm)
	}
	return a.issue(KindVerifiedSpeed, "", &wpm)
}

// ReadVerifiedSpeed returns the speed recorded in a verified-speed credential. Missing,
// forged or expired credentials read as 0. Credentials are reusable and never consumed.
func (a *Authority) ReadVerifiedSpeed(raw string) float64 {
	if raw == "" {
		return 0
	}
	c, err := a.parse(KindVerifiedSpeed, raw)
	if err != nil || c.WPM == nil {
		return 0
	}
	return *c.WPM
}

// IssueCaptcha mints a captcha challenge token. The challenge text itself stays server-side,
// keyed by the returned token's ID.
func (a *Authority) IssueCaptcha() (Token, error) {
	return a.issue(KindCaptcha, "", nil)
}

// ConsumeCaptcha verifies and consumes a captcha token, returning its decoded form.
func (a *Authority) ConsumeCaptcha(raw string) (Token, error) {
	c, err := a.consume(KindCaptcha, raw, nil)
	if err != nil {
		return Token{}, err
	}
	return c.token(raw), nil
}

// Prune forgets consumed ids whose tokens have expired and returns how many were removed.
func (a *Authority) Prune() int {
	now := a.clock.Now()
	removed := 0
	for _, set := range a.used {
		removed += set.prune(now)
	}
	return removed
}

// UsedCounts reports the size of each used-token set.
func (a *Authority) UsedCounts() map[Kind]int {
	counts := make(map[Kind]int, len(a.used))
	for kind, set := range a.used {
		counts[kind] = set.len()
	}
	return counts
}

func (a *Authority) issue(kind Kind, hash string, wpm *float64) (Token, error) {
	now := a.clock.Now()
	c := &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(kind.Validity())),
		},
		Kind: kind,
		Hash: hash,
		WPM:  wpm,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.keys[kind])
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return c.token(raw), nil
}

// parse checks signature, kind and expiry. It does not touch the used-token set.
func (a *Authority) parse(kind Kind, raw string) (*claims, error) {
	key, ok := a.keys[kind]
	if !ok {
		return nil, ErrWrongKind
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if c.Kind != kind {
		return nil, ErrWrongKind
	}
	if c.ID == "" || c.IssuedAt == nil || c.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing registered claims", ErrInvalidSignature)
	}
	if a.clock.Now().After(c.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	return &c, nil
}

// consume is the single verify-then-consume path shared by every kind. check runs against
// the decoded claims before the id is marked used; a failed check leaves the token unused.
func (a *Authority) consume(kind Kind, raw string, check func(*claims) error) (*claims, error) {
	c, err := a.parse(kind, raw)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(c); err != nil {
			return nil, err
		}
	}
	if err := a.used[kind].consume(c.ID, c.ExpiresAt.Time, a.clock.Now()); err != nil {
		return nil, err
	}
	return c, nil
}

func matchHash(c *claims, text string) error {
	if !hmac.Equal([]byte(c.Hash), []byte(HashText(text))) {
		return ErrContentMismatch
	}
	return nil
}

func plausible(wpm float64) bool {
	return !math.IsNaN(wpm) && wpm >= 0 && wpm <= constants.MaxPlausibleWPM
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// IsVerificationError reports whether err came from a failed token check.
func IsVerificationError(err error) bool {
	for _, target := range []error{
		ErrInvalidSignature, ErrWrongKind, ErrExpired, ErrAlreadyUsed,
		ErrContentMismatch, ErrTimestampOutOfTolerance, ErrImplausibleValue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
