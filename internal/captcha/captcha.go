// Package captcha issues typing challenges to players whose speed is high enough to look
// automated, and mints a verified-speed credential for those who pass.
package captcha

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
	token "github.com/CodeAndHammer/typeduel/internal/token"
	typing "github.com/CodeAndHammer/typeduel/internal/typing"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

//go:embed data/words.txt
var defaultWords []byte

var (
	ErrUnknownChallenge = errors.New("captcha challenge not found")
	ErrTooFewWords      = errors.New("not enough captcha words")
)

// Challenge is handed to the client. Token identifies the server-held challenge text; Images
// holds one rendered image per word, in order.
type Challenge struct {
	Token  string   `json:"captchaToken"`
	Images []string `json:"captchaUris"`
}

// Result is the outcome of one submission.
type Result struct {
	Passed     bool        `json:"passed"`
	WPM        float64     `json:"wpm"`
	Accuracy   float64     `json:"accuracy"`
	Verified   float64     `json:"verified,omitempty"`
	Credential token.Token `json:"-"`
}

type pending struct {
	text      string
	expiresAt time.Time
}

type Service struct {
	authority *token.Authority
	renderer  Renderer
	clock     clockwork.Clock
	words     []string

	mu      sync.Mutex
	pending map[string]pending
}

// NewService builds a Service over the embedded dictionary. A nil renderer selects SVGRenderer.
func NewService(authority *token.Authority, renderer Renderer, clock clockwork.Clock) (*Service, error) {
	return NewServiceWithWords(authority, renderer, clock, parseWords(defaultWords))
}

// NewServiceWithWords builds a Service over dictionary, ordered most common first. Only the
// leading CaptchaLastPossibleIndex words are eligible.
func NewServiceWithWords(authority *token.Authority, renderer Renderer, clock clockwork.Clock, dictionary []string) (*Service, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if renderer == nil {
		renderer = SVGRenderer{}
	}
	words := eligibleWords(dictionary)
	if len(words) < constants.CaptchaNumWords {
		return nil, fmt.Errorf("%w: %d eligible, need %d", ErrTooFewWords, len(words), constants.CaptchaNumWords)
	}
	return &Service{
		authority: authority,
		renderer:  renderer,
		clock:     clock,
		words:     words,
		pending:   make(map[string]pending),
	}, nil
}

func parseWords(data []byte) []string {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if w := strings.TrimSpace(scanner.Text()); w != "" {
			words = append(words, strings.ToLower(w))
		}
	}
	return words
}

func eligibleWords(dictionary []string) []string {
	head := dictionary[:min(len(dictionary), constants.CaptchaLastPossibleIndex)]
	return lo.Uniq(lo.Filter(head, func(w string, _ int) bool {
		n := len([]rune(w))
		return n >= constants.CaptchaMinWordLength && n <= constants.CaptchaMaxWordLength
	}))
}

// NewChallenge draws CaptchaNumWords distinct words, renders them and mints a captcha token.
func (s *Service) NewChallenge(ctx context.Context) (Challenge, error) {
	words := lo.Samples(s.words, constants.CaptchaNumWords)
	images := make([]string, 0, len(words))
	for _, w := range words {
		uri, err := s.renderer.Render(w)
		if err != nil {
			return Challenge{}, fmt.Errorf("render %q: %w", w, err)
		}
		images = append(images, uri)
	}

	tok, err := s.authority.IssueCaptcha()
	if err != nil {
		return Challenge{}, err
	}
	s.mu.Lock()
	s.pending[tok.ID] = pending{text: strings.Join(words, " "), expiresAt: tok.ExpiresAt}
	s.mu.Unlock()

	util.LogInfo("%sIssued captcha challenge %s", util.ReqPrefix(ctx), tok.ID)
	return Challenge{Token: tok.Raw, Images: images}, nil
}

// Submit scores typed against the challenge raw identifies. The token is consumed whether or
// not the attempt passes.
func (s *Service) Submit(ctx context.Context, raw, typed string) (Result, error) {
	tok, err := s.authority.ConsumeCaptcha(raw)
	if err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	p, ok := s.pending[tok.ID]
	delete(s.pending, tok.ID)
	s.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownChallenge
	}

	typedWords := len(strings.Fields(typed))
	res := Result{
		WPM:      typing.WPM(typed, s.clock.Since(tok.IssuedAt)),
		Accuracy: typing.Accuracy(typed, p.text) * float64(typedWords) / constants.CaptchaNumWords,
	}
	if res.Accuracy < constants.CaptchaAccuracyThreshold {
		util.LogInfo("%sCaptcha %s failed at %.1f%% accuracy", util.ReqPrefix(ctx), tok.ID, res.Accuracy)
		return res, nil
	}

	res.Passed = true
	res.Verified = res.WPM * constants.CaptchaVerifiedWPMScale
	res.Credential, err = s.authority.IssueVerifiedSpeed(res.Verified)
	if err != nil {
		return Result{}, err
	}
	util.LogInfo("%sCaptcha %s passed, verified speed %.1f wpm", util.ReqPrefix(ctx), tok.ID, res.Verified)
	return res, nil
}

// Prune drops challenges whose tokens have expired and returns how many were removed.
func (s *Service) Prune() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}

// Pending returns the number of outstanding challenges.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
