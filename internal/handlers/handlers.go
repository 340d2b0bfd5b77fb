package handlers

import (
	"errors"
	"math"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	captcha "github.com/CodeAndHammer/typeduel/internal/captcha"
	constants "github.com/CodeAndHammer/typeduel/internal/constants"
	leaderboard "github.com/CodeAndHammer/typeduel/internal/leaderboard"
	models "github.com/CodeAndHammer/typeduel/internal/models"
	paragraph "github.com/CodeAndHammer/typeduel/internal/paragraph"
	progress "github.com/CodeAndHammer/typeduel/internal/progress"
	session "github.com/CodeAndHammer/typeduel/internal/session"
	token "github.com/CodeAndHammer/typeduel/internal/token"
	typing "github.com/CodeAndHammer/typeduel/internal/typing"
	util "github.com/CodeAndHammer/typeduel/internal/util"
)

const verificationFailedMessage = "verification failed"

func RequestParagraphHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	var req models.ParagraphRequest
	if !bind(c, &req) {
		return
	}
	text, err := app.Paragraphs.Next(ctx, req.Topics)
	if errors.Is(err, paragraph.ErrNoParagraphs) {
		respondError(c, http.StatusNotFound, constants.ErrorCodeInvalidRequest, "no paragraph matches those topics")
		return
	}
	if err != nil {
		util.LogError("%sFailed to pick paragraph: %v", util.ReqPrefix(ctx), err)
		respondError(c, http.StatusServiceUnavailable, constants.ErrorCodeUnavailable, "paragraphs unavailable")
		return
	}
	tok, err := app.Tokens.IssueParagraph(text)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paragraph": text, "pToken": tok.Raw})
}

// AnalyzeHandler scores an attempt and advances its token chain. A paragraph token is traded
// for a start token; a start token plus a finished, exact transcription is traded for a
// result token.
func AnalyzeHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	var req models.AnalyzeRequest
	if !bind(c, &req) {
		return
	}

	start, end := unixSeconds(req.StartTime), unixSeconds(req.EndTime)
	resp := models.AnalyzeResponse{
		WPM:      typing.WPM(req.TypedText, end.Sub(start)),
		Accuracy: typing.Accuracy(req.TypedText, req.PromptedText),
	}

	switch {
	case req.PToken != "":
		if err := app.Tokens.ConsumeParagraph(req.PToken, req.PromptedText); err != nil {
			verificationFailed(c, err)
			return
		}
		tok, err := app.Tokens.IssueStart(req.PromptedText)
		if err != nil {
			internalError(c, err)
			return
		}
		resp.SToken = tok.Raw

	case req.SToken != "" && req.TypedText == req.PromptedText:
		if err := app.Tokens.ConsumeStart(req.SToken, req.PromptedText, start, end); err != nil {
			verificationFailed(c, err)
			return
		}
		tok, err := app.Tokens.IssueResult(resp.WPM)
		if err != nil {
			verificationFailed(c, err)
			return
		}
		resp.WPM = tok.WPM
		required := resp.WPM >= constants.CaptchaWPMThreshold && resp.WPM > session.VerifiedSpeed(app, c)
		resp.WPMToken = tok.Raw
		resp.CaptchaRequired = &required
		util.LogInfo("%sIssued result token for %.1f wpm (captcha required: %t)", util.ReqPrefix(ctx), resp.WPM, required)
	}

	c.JSON(http.StatusOK, resp)
}

func RequestIDHandler(app *models.App, c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": session.NewPlayerID(app, c)})
}

func RequestMatchHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	playerID, ok := bindPlayer(c)
	if !ok {
		return
	}

	res, err := app.Queue.Join(ctx, playerID)
	if err != nil {
		util.LogError("%sMatchmaking failed for %s: %v", util.ReqPrefix(ctx), playerID, err)
		respondError(c, http.StatusServiceUnavailable, constants.ErrorCodeUnavailable, "matchmaking unavailable")
		return
	}
	if !res.Start {
		c.JSON(http.StatusOK, models.MatchResponse{NumWaiting: res.NumWaiting})
		return
	}
	tok, err := app.Tokens.IssueParagraph(res.Text)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.MatchResponse{
		Start:   true,
		GameID:  res.GameID,
		Text:    res.Text,
		PToken:  tok.Raw,
		Players: res.Players,
	})
}

// SetProgressHandler records progress reported as a fraction of the prompt.
func SetProgressHandler(app *models.App, c *gin.Context) {
	var req models.SetProgressRequest
	if !bind(c, &req) {
		return
	}
	playerID := session.PlayerID(c, req.ID)
	if playerID == "" {
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, "player id is required")
		return
	}
	out, ok := recordProgress(app, c, playerID, *req.Progress)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, out)
}

// ReportProgressHandler derives progress from the words typed so far and records it.
func ReportProgressHandler(app *models.App, c *gin.Context) {
	var req models.ReportProgressRequest
	if !bind(c, &req) {
		return
	}
	playerID := session.PlayerID(c, req.ID)
	if playerID == "" {
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, "player id is required")
		return
	}
	fraction := typing.Progress(strings.Fields(req.Typed), strings.Fields(req.Prompt))
	if _, ok := recordProgress(app, c, playerID, fraction); !ok {
		return
	}
	c.JSON(http.StatusOK, models.ReportProgressResponse{ID: playerID, Progress: fraction})
}

func recordProgress(app *models.App, c *gin.Context, playerID string, fraction float64) (progress.Outcome, bool) {
	ctx := c.Request.Context()
	out, err := app.Progress.Record(ctx, playerID, fraction, app.Progress.Now())
	switch {
	case err == nil:
		return out, true
	case errors.Is(err, progress.ErrInvalidFraction):
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, progress.ErrUnknownPlayer):
		respondError(c, http.StatusNotFound, constants.ErrorCodeUnknownPlayer, "player is not in a game")
	default:
		util.LogError("%sFailed to record progress for %s: %v", util.ReqPrefix(ctx), playerID, err)
		respondError(c, http.StatusServiceUnavailable, constants.ErrorCodeUnavailable, "could not record result")
	}
	return out, false
}

// RequestProgressHandler returns [fraction, elapsedSeconds] per target, in request order.
func RequestProgressHandler(app *models.App, c *gin.Context) {
	targets, ok := bindTargets(app, c)
	if !ok {
		return
	}
	snapshots := app.Progress.Current(targets)
	c.JSON(http.StatusOK, lo.Map(snapshots, func(s progress.Snapshot, _ int) [2]float64 {
		return [2]float64{s.Fraction, s.Elapsed.Seconds()}
	}))
}

// RequestAllProgressHandler returns each target's full history as [fraction, unixSeconds] pairs.
func RequestAllProgressHandler(app *models.App, c *gin.Context) {
	targets, ok := bindTargets(app, c)
	if !ok {
		return
	}
	histories := app.Progress.All(targets)
	c.JSON(http.StatusOK, lo.Map(histories, func(samples []progress.Sample, _ int) [][2]float64 {
		return lo.Map(samples, func(s progress.Sample, _ int) [2]float64 {
			return [2]float64{s.Fraction, float64(s.At.UnixNano()) / float64(time.Second)}
		})
	}))
}

// RecordWPMHandler writes a verified result to the leaderboard. The claim is taken at the
// precision result tokens bind. Results at or above the captcha threshold need a
// verified-speed credential at least as fast; that check runs before the result token is
// consumed.
func RecordWPMHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	var req models.RecordWPMRequest
	if !bind(c, &req) {
		return
	}
	wpm := token.RoundWPM(*req.WPM)
	if len([]rune(req.Username)) > leaderboard.MaxUsernameLength(leaderboard.BoardVerified) {
		respondError(c, http.StatusBadRequest, constants.ErrorCodeUsernameTooLong, "username too long")
		return
	}
	if wpm >= constants.CaptchaWPMThreshold && wpm > session.VerifiedSpeed(app, c) {
		respondError(c, http.StatusBadRequest, constants.ErrorCodeCaptchaRequired, "captcha verification required")
		return
	}
	if err := app.Tokens.ConsumeResult(req.WPMToken, wpm); err != nil {
		verificationFailed(c, err)
		return
	}
	if err := app.Scores.Insert(ctx, leaderboard.BoardVerified, req.Username, wpm); err != nil {
		storeError(c, err)
		return
	}
	util.LogInfo("%sRecorded %.1f wpm for %q", util.ReqPrefix(ctx), wpm, req.Username)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func RecordMemeHandler(app *models.App, c *gin.Context) {
	var req models.RecordMemeRequest
	if !bind(c, &req) {
		return
	}
	if math.IsNaN(*req.WPM) || math.IsInf(*req.WPM, 0) {
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, "wpm must be a number")
		return
	}
	if err := app.Scores.Insert(c.Request.Context(), leaderboard.BoardMeme, req.Username, *req.WPM); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func WPMThresholdHandler(app *models.App, c *gin.Context) {
	threshold, err := leaderboard.Threshold(c.Request.Context(), app.Scores)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, threshold)
}

func LeaderboardHandler(app *models.App, c *gin.Context) {
	boardHandler(app, c, leaderboard.BoardVerified)
}

func MemeboardHandler(app *models.App, c *gin.Context) {
	boardHandler(app, c, leaderboard.BoardMeme)
}

// boardHandler returns the top entries as [username, wpm] pairs.
func boardHandler(app *models.App, c *gin.Context, board leaderboard.Board) {
	entries, err := app.Scores.Top(c.Request.Context(), board, constants.LeaderboardSize)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(entries, func(e leaderboard.Entry, _ int) []any {
		return []any{e.Username, e.WPM}
	}))
}

func GetCaptchaHandler(app *models.App, c *gin.Context) {
	challenge, err := app.Captcha.NewChallenge(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

func SubmitCaptchaHandler(app *models.App, c *gin.Context) {
	var req models.SubmitCaptchaRequest
	if !bind(c, &req) {
		return
	}
	res, err := app.Captcha.Submit(c.Request.Context(), req.CaptchaToken, req.TypedCaptcha)
	if errors.Is(err, captcha.ErrUnknownChallenge) || token.IsVerificationError(err) {
		verificationFailed(c, err)
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	if res.Passed {
		session.SetVerifiedSpeed(app, c, res.Credential)
	}
	c.JSON(http.StatusOK, res)
}

func HealthzHandler(app *models.App, c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := app.Clock.Since(app.StartTime)

	app.LimiterMutex.RLock()
	limiterCount := len(app.LimiterMap)
	app.LimiterMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"env":              map[bool]string{true: "production", false: "development"}[app.Config.IsProduction()],
		"paragraphs":       app.Paragraphs.Len(),
		"waiting_players":  app.Queue.Waiting(),
		"active_games":     app.Games.Len(),
		"tracked_players":  app.Progress.Len(),
		"pending_captchas": app.Captcha.Pending(),
		"used_tokens":      app.Tokens.UsedCounts(),
		"active_limiters":  limiterCount,
		"memory_alloc_mb":  m.Alloc / 1024 / 1024,
		"memory_sys_mb":    m.Sys / 1024 / 1024,
		"memory_gc_count":  m.NumGC,
		"uptime":           util.FormatUptime(uptime),
		"timestamp":        app.Clock.Now().UTC().Format(time.RFC3339),
	})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBind(req); err != nil {
		util.LogWarn("%sRejected %s request: %v", util.ReqPrefix(c.Request.Context()), c.FullPath(), err)
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, "invalid request")
		return false
	}
	return true
}

// bindTargets resolves the request's target list. A gameId replaces explicit targets with
// that game's players in seal order.
func bindTargets(app *models.App, c *gin.Context) ([]string, bool) {
	var req models.TargetsRequest
	if !bind(c, &req) {
		return nil, false
	}
	if req.GameID == "" {
		return req.Targets, true
	}
	g, ok := app.Games.Get(req.GameID)
	if !ok {
		respondError(c, http.StatusNotFound, constants.ErrorCodeUnknownGame, "unknown game")
		return nil, false
	}
	return g.Players, true
}

func bindPlayer(c *gin.Context) (string, bool) {
	var req models.PlayerRequest
	if !bind(c, &req) {
		return "", false
	}
	playerID := session.PlayerID(c, req.ID)
	if playerID == "" {
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, "player id is required")
		return "", false
	}
	return playerID, true
}

// verificationFailed logs the precise reason and tells the client nothing beyond the failure.
func verificationFailed(c *gin.Context, err error) {
	util.LogWarn("%sToken verification failed on %s: %v", util.ReqPrefix(c.Request.Context()), c.FullPath(), err)
	respondError(c, http.StatusBadRequest, constants.ErrorCodeVerificationFailed, verificationFailedMessage)
}

func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, leaderboard.ErrUsernameTooLong):
		respondError(c, http.StatusBadRequest, constants.ErrorCodeUsernameTooLong, "username too long")
	case errors.Is(err, leaderboard.ErrUsernameRequired):
		respondError(c, http.StatusBadRequest, constants.ErrorCodeInvalidRequest, "username is required")
	default:
		util.LogError("%sLeaderboard store failed: %v", util.ReqPrefix(c.Request.Context()), err)
		respondError(c, http.StatusServiceUnavailable, constants.ErrorCodeUnavailable, "leaderboard unavailable")
	}
}

func internalError(c *gin.Context, err error) {
	util.LogError("%sInternal error on %s: %v", util.ReqPrefix(c.Request.Context()), c.FullPath(), err)
	respondError(c, http.StatusInternalServerError, constants.ErrorCodeUnavailable, "internal error")
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Code: code})
}

// unixSeconds converts a client timestamp in fractional Unix seconds.
func unixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}
