package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	config "github.com/CodeAndHammer/typeduel/internal/config"
	models "github.com/CodeAndHammer/typeduel/internal/models"
	session "github.com/CodeAndHammer/typeduel/internal/session"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

func newMiddlewareApp(clock clockwork.Clock) *models.App {
	return &models.App{
		Config: config.Config{RateLimitRPS: 1, RateLimitBurst: 2, RateLimiterTTL: time.Hour},
		Clock:  clock,

		LimiterMap: make(map[string]*models.RateLimiterEntry),
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := newMiddlewareApp(clockwork.NewFakeClock())
	router := gin.New()
	router.GET("/limited", rateLimitMiddleware(app), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
	if len(app.LimiterMap) != 1 {
		t.Fatalf("limiters = %d, want 1", len(app.LimiterMap))
	}
}

func TestStaleRateLimitersAreCleaned(t *testing.T) {
	clock := clockwork.NewFakeClock()
	app := newMiddlewareApp(clock)
	getLimiter(app, "10.0.0.1")
	clock.Advance(2 * time.Hour)
	getLimiter(app, "10.0.0.2")

	session.CleanupStaleRateLimiters(app)
	if _, ok := app.LimiterMap["10.0.0.1"]; ok {
		t.Fatal("stale limiter survived cleanup")
	}
	if _, ok := app.LimiterMap["10.0.0.2"]; !ok {
		t.Fatal("fresh limiter was removed")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestIDMiddleware(), securityHeadersMiddleware())
	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = util.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if seen != "abc-123" || w.Header().Get("X-Request-Id") != "abc-123" {
		t.Fatalf("request id = %q, header %q", seen, w.Header().Get("X-Request-Id"))
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("security headers missing")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Fatalf("generated request id = %q", seen)
	}
}

func TestWithCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := newMiddlewareApp(clockwork.NewFakeClock())
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	if h := withCORS(app, inner); h == nil {
		t.Fatal("nil handler")
	}

	app.Config.CORSOrigins = []string{"https://typing.example"}
	h := withCORS(app, inner)
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "https://typing.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://typing.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/analyze", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}
