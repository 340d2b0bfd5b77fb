package constants

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)

const (
	PlayerCookieName        = "player_id"
	VerifiedSpeedCookieName = "verified_wpm"
)

const (
	// MaxPlausibleWPM is the ceiling above which a result is treated as a bot or clock artifact.
	MaxPlausibleWPM = 200.0
	// CharsPerWord is the standard word length used for WPM.
	CharsPerWord = 5
	// TimestampTolerance bounds client-claimed start and end times, in seconds.
	TimestampTolerance = 60.0
)

const (
	CaptchaWPMThreshold      = 100.0
	CaptchaMinWordLength     = 4
	CaptchaMaxWordLength     = 6
	CaptchaLastPossibleIndex = 999
	CaptchaNumWords          = 40
	CaptchaAccuracyThreshold = 80.0
	CaptchaVerifiedWPMScale  = 1.5
)

const (
	LeaderboardSize       = 20
	MaxUsernameLength     = 32
	MaxMemeUsernameLength = 1024
	// MultiplayerUsername is the board name under which finished multiplayer races are saved.
	MultiplayerUsername = "<student playing locally>"
)

const (
	RouteRequestParagraph   = "/request_paragraph"
	RouteAnalyze            = "/analyze"
	RouteRequestID          = "/request_id"
	RouteRequestMatch       = "/request_match"
	RouteSetProgress        = "/set_progress"
	RouteReportProgress     = "/report_progress"
	RouteRequestProgress    = "/request_progress"
	RouteRequestAllProgress = "/request_all_progress"
	RouteRecordWPM          = "/record_wpm"
	RouteRecordMeme         = "/record_meme"
	RouteWPMThreshold       = "/wpm_threshold"
	RouteLeaderboard        = "/leaderboard"
	RouteMemeboard          = "/memeboard"
	RouteGetCaptcha         = "/get_captcha"
	RouteSubmitCaptcha      = "/submit_captcha"
	RouteHealthz            = "/healthz"
)

const (
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeUsernameTooLong    = "username_too_long"
	ErrorCodeCaptchaRequired    = "captcha_required"
	ErrorCodeUnavailable        = "unavailable"
	ErrorCodeUnknownPlayer      = "unknown_player"
	ErrorCodeUnknownGame        = "unknown_game"
	ErrorCodeRateLimited        = "rate_limited"
)
