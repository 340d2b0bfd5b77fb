package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	config "github.com/CodeAndHammer/typeduel/internal/config"
	handlers "github.com/CodeAndHammer/typeduel/internal/handlers"
	models "github.com/CodeAndHammer/typeduel/internal/models"
	session "github.com/CodeAndHammer/typeduel/internal/session"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		util.LogFatal("Invalid configuration: %v", err)
	}
	util.SetupLogging(cfg.IsProduction())
	util.LogInfo("Starting typeduel in %s mode", map[bool]string{true: "production", false: "development"}[cfg.IsProduction()])
	if cfg.TokenSecret == "" {
		util.LogWarn("TOKEN_SECRET is not set; issued tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := models.NewApp(ctx, cfg, nil)
	if err != nil {
		util.LogFatal("Failed to initialise: %v", err)
	}
	defer func() {
		if err := app.Scores.Close(); err != nil {
			util.LogWarn("Closing leaderboard store: %v", err)
		}
	}()
	util.LogInfo("Loaded %d paragraphs", app.Paragraphs.Len())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(app)

	session.StartCleanup(ctx, app)
	startServer(ctx, app, router)
}

func newRouter(app *models.App) *gin.Engine {
	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedExtensions([]string{".svg", ".ico", ".png", ".jpg", ".jpeg", ".gif"})))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	production := app.Config.IsProduction()
	router.Use(func(c *gin.Context) {
		applyCacheHeaders(app, c, production)
	})

	staticDir := "static"
	if production && util.DirExists("dist") {
		staticDir = "dist/static"
	}
	if util.DirExists(staticDir) {
		util.LogInfo("Serving static assets from %s", staticDir)
		router.Static("/static", "./"+staticDir)
		router.StaticFile("/", "./"+staticDir+"/index.html")
	}

	handlers.RegisterRoutes(router, app, rateLimitMiddleware(app))
	return router
}

func startServer(ctx context.Context, app *models.App, router *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + app.Config.Port,
		Handler:           withCORS(app, router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", app.Config.Port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete after %s", util.FormatUptime(app.Clock.Since(app.StartTime)))
}

func withCORS(app *models.App, h http.Handler) http.Handler {
	if len(app.Config.CORSOrigins) == 0 {
		return h
	}
	util.LogInfo("Allowing cross-origin requests from %s", strings.Join(app.Config.CORSOrigins, ", "))
	return cors.New(cors.Options{
		AllowedOrigins:   app.Config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}).Handler(h)
}

func applyCacheHeaders(app *models.App, c *gin.Context, production bool) {
	if production && strings.HasPrefix(c.Request.URL.Path, "/static/") {
		cachecontrol.New(cachecontrol.Config{
			Public: true,
			MaxAge: cachecontrol.Duration(app.Config.StaticCacheAge),
		})(c)
		c.Header("Vary", "Accept-Encoding")
		return
	}
	cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})(c)
}
