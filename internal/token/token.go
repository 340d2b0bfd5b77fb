// Package token issues and verifies the single-use, expiring, signed tokens that chain the
// stages of one typing attempt together: paragraph issued, attempt started, result computed.
//
// Every token is an HS256 JWT signed with a key private to its kind. Authenticity and expiry
// are checked from the token alone; single use is enforced by a per-kind set of consumed
// token ids held by the Authority.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindParagraph     Kind = "paragraph"
	KindStart         Kind = "start"
	KindResult        Kind = "result"
	KindVerifiedSpeed Kind = "verified_speed"
	KindCaptcha       Kind = "captcha"
)

var allKinds = []Kind{KindParagraph, KindStart, KindResult, KindVerifiedSpeed, KindCaptcha}

// Validity returns how long a token of this kind stays valid after issuance.
func (k Kind) Validity() time.Duration {
	if k == KindVerifiedSpeed {
		return 24 * time.Hour
	}
	return time.Hour
}

var (
	ErrInvalidSignature        = errors.New("token signature invalid")
	ErrWrongKind               = errors.New("token kind mismatch")
	ErrExpired                 = errors.New("token expired")
	ErrAlreadyUsed             = errors.New("token already used")
	ErrContentMismatch         = errors.New("token content mismatch")
	ErrTimestampOutOfTolerance = errors.New("timestamp out of tolerance")
	ErrImplausibleValue        = errors.New("implausible value")
)

// Token is the decoded view of an issued token. Raw is the opaque bearer string handed to
// clients; the other fields mirror its signed claims.
type Token struct {
	Kind      Kind
	ID        string
	Raw       string
	Hash      string
	WPM       float64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (t Token) String() string {
	return t.Raw
}

type claims struct {
	jwt.RegisteredClaims
	Kind Kind     `json:"knd"`
	Hash string   `json:"hsh,omitempty"`
	WPM  *float64 `json:"wpm,omitempty"`
}

func (c *claims) token(raw string) Token {
	t := Token{
		Kind: c.Kind,
		ID:   c.ID,
		Raw:  raw,
		Hash: c.Hash,
	}
	if c.WPM != nil {
		t.WPM = *c.WPM
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.Time
	}
	return t
}
