package models

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	captcha "github.com/CodeAndHammer/typeduel/internal/captcha"
	config "github.com/CodeAndHammer/typeduel/internal/config"
	leaderboard "github.com/CodeAndHammer/typeduel/internal/leaderboard"
	match "github.com/CodeAndHammer/typeduel/internal/match"
	paragraph "github.com/CodeAndHammer/typeduel/internal/paragraph"
	progress "github.com/CodeAndHammer/typeduel/internal/progress"
	token "github.com/CodeAndHammer/typeduel/internal/token"
)

// RateLimiterEntry is a per-client limiter and the last time it was used.
type RateLimiterEntry struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

// App is the server state shared by every handler. It is built once at startup.
type App struct {
	Config     config.Config
	Clock      clockwork.Clock
	Tokens     *token.Authority
	Paragraphs *paragraph.Corpus
	Games      *match.Registry
	Queue      *match.Queue
	Progress   *progress.Tracker
	Scores     leaderboard.Store
	Captcha    *captcha.Service

	LimiterMap   map[string]*RateLimiterEntry
	LimiterMutex sync.RWMutex

	StartTime time.Time
}

// ParagraphRequest asks for a single-player paragraph, optionally restricted to topics.
type ParagraphRequest struct {
	Topics []string `form:"topics[]" json:"topics"`
}

// AnalyzeRequest carries one typing attempt. PToken starts the attempt; STokens finish it.
type AnalyzeRequest struct {
	PromptedText string  `form:"promptedText" json:"promptedText" binding:"required"`
	TypedText    string  `form:"typedText" json:"typedText"`
	StartTime    float64 `form:"startTime" json:"startTime"`
	EndTime      float64 `form:"endTime" json:"endTime"`
	PToken       string  `form:"pToken" json:"pToken"`
	SToken       string  `form:"sToken" json:"sToken"`
}

type AnalyzeResponse struct {
	WPM             float64 `json:"wpm"`
	Accuracy        float64 `json:"accuracy"`
	SToken          string  `json:"sToken,omitempty"`
	WPMToken        string  `json:"wpmToken,omitempty"`
	CaptchaRequired *bool   `json:"captchaRequired,omitempty"`
}

type PlayerRequest struct {
	ID string `form:"id" json:"id"`
}

type MatchResponse struct {
	Start      bool     `json:"start"`
	GameID     string   `json:"gameId,omitempty"`
	Text       string   `json:"text,omitempty"`
	PToken     string   `json:"pToken,omitempty"`
	Players    []string `json:"players,omitempty"`
	NumWaiting int      `json:"numWaiting"`
}

// SetProgressRequest reports progress as a fraction of the prompt.
type SetProgressRequest struct {
	ID       string   `form:"id" json:"id"`
	Progress *float64 `form:"progress" json:"progress" binding:"required"`
}

// ReportProgressRequest reports progress as the words typed so far.
type ReportProgressRequest struct {
	ID     string `form:"id" json:"id"`
	Typed  string `form:"typed" json:"typed"`
	Prompt string `form:"prompt" json:"prompt" binding:"required"`
}

type ReportProgressResponse struct {
	ID       string  `json:"id"`
	Progress float64 `json:"progress"`
}

// TargetsRequest names the players to report on, either directly or as every player of GameID.
type TargetsRequest struct {
	Targets []string `form:"targets[]" json:"targets" binding:"required_without=GameID"`
	GameID  string   `form:"gameId" json:"gameId"`
}

type RecordWPMRequest struct {
	Username string   `form:"username" json:"username" binding:"required"`
	WPM      *float64 `form:"wpm" json:"wpm" binding:"required"`
	WPMToken string   `form:"wpmToken" json:"wpmToken" binding:"required"`
}

type RecordMemeRequest struct {
	Username string   `form:"username" json:"username" binding:"required"`
	WPM      *float64 `form:"wpm" json:"wpm" binding:"required"`
}

type SubmitCaptchaRequest struct {
	CaptchaToken string `form:"captchaToken" json:"captchaToken" binding:"required"`
	TypedCaptcha string `form:"typedCaptcha" json:"typedCaptcha"`
}

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewApp wires every component from cfg. A nil clock selects the real clock.
func NewApp(ctx context.Context, cfg config.Config, clock clockwork.Clock) (*App, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tokens, err := token.NewAuthority([]byte(cfg.TokenSecret), clock)
	if err != nil {
		return nil, fmt.Errorf("token authority: %w", err)
	}
	corpus, err := paragraph.Load(cfg.ParagraphsPath)
	if err != nil {
		return nil, fmt.Errorf("load paragraphs: %w", err)
	}
	scores, err := leaderboard.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open leaderboard: %w", err)
	}
	challenges, err := captcha.NewService(tokens, nil, clock)
	if err != nil {
		_ = scores.Close()
		return nil, fmt.Errorf("captcha service: %w", err)
	}

	games := match.NewRegistry()
	tracker := progress.NewTracker(games, leaderboard.ScoreRecorder{Store: scores}, clock)
	queue := match.NewQueue(match.Options{
		MinPlayers:   cfg.MinPlayers,
		MaxPlayers:   cfg.MaxPlayers,
		QueueTimeout: cfg.QueueTimeout,
		MaxWait:      cfg.MaxWait,
	}, corpus, games, tracker, clock)

	return &App{
		Config:     cfg,
		Clock:      clock,
		Tokens:     tokens,
		Paragraphs: corpus,
		Games:      games,
		Queue:      queue,
		Progress:   tracker,
		Scores:     scores,
		Captcha:    challenges,
		LimiterMap: make(map[string]*RateLimiterEntry),
		StartTime:  clock.Now(),
	}, nil
}
