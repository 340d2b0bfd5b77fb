package handlers

import (
	"github.com/gin-gonic/gin"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
	models "github.com/CodeAndHammer/typeduel/internal/models"
)

// RegisterRoutes mounts every API route on r. limit guards the routes that mint tokens or
// write state.
func RegisterRoutes(r gin.IRoutes, app *models.App, limit gin.HandlerFunc) {
	h := func(fn func(*models.App, *gin.Context)) gin.HandlerFunc {
		return func(c *gin.Context) { fn(app, c) }
	}
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	r.POST(constants.RouteRequestParagraph, limit, h(RequestParagraphHandler))
	r.POST(constants.RouteAnalyze, limit, h(AnalyzeHandler))
	r.POST(constants.RouteRequestID, limit, h(RequestIDHandler))
	r.POST(constants.RouteRequestMatch, h(RequestMatchHandler))
	r.POST(constants.RouteSetProgress, h(SetProgressHandler))
	r.POST(constants.RouteReportProgress, h(ReportProgressHandler))
	r.POST(constants.RouteRequestProgress, h(RequestProgressHandler))
	r.POST(constants.RouteRequestAllProgress, h(RequestAllProgressHandler))
	r.POST(constants.RouteRecordWPM, limit, h(RecordWPMHandler))
	r.POST(constants.RouteRecordMeme, limit, h(RecordMemeHandler))
	r.POST(constants.RouteWPMThreshold, h(WPMThresholdHandler))
	r.POST(constants.RouteLeaderboard, h(LeaderboardHandler))
	r.POST(constants.RouteMemeboard, h(MemeboardHandler))
	r.GET(constants.RouteGetCaptcha, limit, h(GetCaptchaHandler))
	r.POST(constants.RouteSubmitCaptcha, limit, h(SubmitCaptchaHandler))
	r.GET(constants.RouteHealthz, h(HealthzHandler))
}
