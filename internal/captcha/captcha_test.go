package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
	token "github.com/CodeAndHammer/typeduel/internal/token"
)

func newTestService(t *testing.T) (*Service, *token.Authority, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC))
	authority, err := token.NewAuthority(nil, clock)
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	svc, err := NewService(authority, nil, clock)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, authority, clock
}

func challengeText(t *testing.T, s *Service) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(s.pending))
	}
	for _, p := range s.pending {
		return p.text
	}
	return ""
}

func TestEmbeddedDictionaryIsEligible(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	for _, w := range svc.words {
		if n := len(w); n < constants.CaptchaMinWordLength || n > constants.CaptchaMaxWordLength {
			t.Fatalf("word %q outside length bounds", w)
		}
	}
}

func TestNewChallengeDrawsDistinctWords(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	ch, err := svc.NewChallenge(context.Background())
	if err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}
	if len(ch.Images) != constants.CaptchaNumWords {
		t.Fatalf("images = %d, want %d", len(ch.Images), constants.CaptchaNumWords)
	}
	words := strings.Fields(challengeText(t, svc))
	seen := map[string]bool{}
	for _, w := range words {
		if seen[w] {
			t.Fatalf("word %q drawn twice", w)
		}
		seen[w] = true
	}
	if len(words) != constants.CaptchaNumWords {
		t.Fatalf("words = %d, want %d", len(words), constants.CaptchaNumWords)
	}
	if strings.Contains(ch.Token, words[0]) {
		t.Fatal("token leaks challenge text")
	}
}

func TestSubmitPassMintsCredential(t *testing.T) {
	t.Parallel()
	svc, authority, clock := newTestService(t)
	ctx := context.Background()

	ch, err := svc.NewChallenge(ctx)
	if err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}
	text := challengeText(t, svc)
	clock.Advance(time.Minute)

	res, err := svc.Submit(ctx, ch.Token, text)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Passed || res.Accuracy != 100 {
		t.Fatalf("result = %+v, want pass at 100%%", res)
	}
	wantWPM := float64(len(text)) / 5
	if res.WPM != wantWPM {
		t.Fatalf("wpm = %v, want %v", res.WPM, wantWPM)
	}
	if res.Verified != wantWPM*constants.CaptchaVerifiedWPMScale {
		t.Fatalf("verified = %v, want %v", res.Verified, wantWPM*constants.CaptchaVerifiedWPMScale)
	}
	if got := authority.ReadVerifiedSpeed(res.Credential.Raw); got != res.Verified {
		t.Fatalf("credential reads %v, want %v", got, res.Verified)
	}
	if svc.Pending() != 0 {
		t.Fatal("challenge still pending after submit")
	}
}

func TestSubmitPartialTextFails(t *testing.T) {
	t.Parallel()
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	ch, _ := svc.NewChallenge(ctx)
	words := strings.Fields(challengeText(t, svc))
	clock.Advance(30 * time.Second)

	// Half the words typed perfectly scores 50% once scaled by coverage.
	res, err := svc.Submit(ctx, ch.Token, strings.Join(words[:20], " "))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Passed || res.Accuracy != 50 {
		t.Fatalf("result = %+v, want fail at 50%%", res)
	}
	if res.Credential.Raw != "" {
		t.Fatal("failed attempt minted a credential")
	}
}

func TestSubmitIsSingleUse(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ch, _ := svc.NewChallenge(ctx)
	text := challengeText(t, svc)
	if _, err := svc.Submit(ctx, ch.Token, "wrong"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := svc.Submit(ctx, ch.Token, text); !errors.Is(err, token.ErrAlreadyUsed) {
		t.Fatalf("second Submit err = %v, want %v", err, token.ErrAlreadyUsed)
	}
}

func TestPruneDropsExpiredChallenges(t *testing.T) {
	t.Parallel()
	svc, _, clock := newTestService(t)

	if _, err := svc.NewChallenge(context.Background()); err != nil {
		t.Fatalf("NewChallenge: %v", err)
	}
	if n := svc.Prune(); n != 0 {
		t.Fatalf("pruned %d fresh challenges", n)
	}
	clock.Advance(token.KindCaptcha.Validity() + time.Second)
	if n := svc.Prune(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
}

func TestTooFewWords(t *testing.T) {
	t.Parallel()
	authority, _ := token.NewAuthority(nil, nil)
	_, err := NewServiceWithWords(authority, nil, nil, []string{"word", "another", "tiny", "a"})
	if !errors.Is(err, ErrTooFewWords) {
		t.Fatalf("err = %v, want %v", err, ErrTooFewWords)
	}
}

func TestSVGRendererEncodesEveryLetter(t *testing.T) {
	t.Parallel()
	uri, err := SVGRenderer{}.Render("lamp")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	const prefix = "data:image/svg+xml;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("uri = %q, want %s prefix", uri[:min(len(uri), 40)], prefix)
	}
	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, r := range "lamp" {
		if !strings.Contains(string(svg), ">"+string(r)+"</text>") {
			t.Fatalf("letter %q missing from %s", r, svg)
		}
	}
	if _, err := (SVGRenderer{}).Render(""); err == nil {
		t.Fatal("expected error for empty word")
	}
}
