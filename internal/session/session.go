package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
	match "github.com/CodeAndHammer/typeduel/internal/match"
	models "github.com/CodeAndHammer/typeduel/internal/models"
	token "github.com/CodeAndHammer/typeduel/internal/token"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

// NewPlayerID mints a player id and stores it in the player cookie.
func NewPlayerID(app *models.App, c *gin.Context) string {
	playerID := uuid.NewString()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(constants.PlayerCookieName, playerID, int(app.Config.CookieMaxAge.Seconds()), "/", "", app.Config.IsProduction(), true)
	util.LogInfo("%sIssued player id %s", util.ReqPrefix(c.Request.Context()), playerID)
	return playerID
}

// PlayerID resolves the caller's player id: an explicit id from the request body wins over
// the cookie. It returns "" when neither is present.
func PlayerID(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	playerID, err := c.Cookie(constants.PlayerCookieName)
	if err != nil {
		return ""
	}
	return playerID
}

// VerifiedSpeed reads the caller's verified-speed credential, or 0 without one.
func VerifiedSpeed(app *models.App, c *gin.Context) float64 {
	raw, err := c.Cookie(constants.VerifiedSpeedCookieName)
	if err != nil || raw == "" {
		return 0
	}
	return app.Tokens.ReadVerifiedSpeed(raw)
}

func SetVerifiedSpeed(app *models.App, c *gin.Context, credential token.Token) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(constants.VerifiedSpeedCookieName, credential.Raw, int(token.KindVerifiedSpeed.Validity().Seconds()), "/", "", app.Config.IsProduction(), true)
}

// CleanupExpiredGames retires games older than GameTTL along with their players' progress.
func CleanupExpiredGames(app *models.App) {
	retired := app.Games.PruneBefore(app.Clock.Now().Add(-app.Config.GameTTL))
	if len(retired) == 0 {
		return
	}
	app.Progress.Forget(lo.FlatMap(retired, func(g match.Game, _ int) []string { return g.Players }))
	util.LogInfo("Cleaned up %d expired game%s", len(retired), util.Plural(len(retired)))
}

// CleanupUsedTokens drops consumed token ids and captcha challenges that have expired.
func CleanupUsedTokens(app *models.App) {
	tokens := app.Tokens.Prune()
	challenges := app.Captcha.Prune()
	if tokens+challenges > 0 {
		util.LogInfo("Pruned %d used token%s and %d captcha challenge%s", tokens, util.Plural(tokens), challenges, util.Plural(challenges))
	}
}

// CleanupStaleRateLimiters drops limiters idle for longer than RateLimiterTTL.
func CleanupStaleRateLimiters(app *models.App) {
	cutoff := app.Clock.Now().Add(-app.Config.RateLimiterTTL)
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()
	removed := 0
	for key, entry := range app.LimiterMap {
		if entry.LastAccess.Before(cutoff) {
			delete(app.LimiterMap, key)
			removed++
		}
	}
	if removed > 0 {
		util.LogInfo("Cleaned up %d stale rate limiter%s", removed, util.Plural(removed))
	}
}

// StartCleanup runs the cleanup passes on tickers until ctx is cancelled.
func StartCleanup(ctx context.Context, app *models.App) {
	run := func(every time.Duration, pass func(*models.App)) {
		ticker := app.Clock.NewTicker(every)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
					pass(app)
				}
			}
		}()
	}
	run(time.Minute, CleanupExpiredGames)
	run(5*time.Minute, CleanupUsedTokens)
	run(30*time.Minute, CleanupStaleRateLimiters)
	util.LogInfo("Started cleanup routines for games, tokens and rate limiters")
}
