package util

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	constants "github.com/CodeAndHammer/typeduel/internal/constants"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// SetupLogging switches to JSON output in production and console output otherwise.
func SetupLogging(production bool) {
	if production {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func LogDebug(format string, v ...any) {
	logger.Debug().Msgf(format, v...)
}

func LogInfo(format string, v ...any) {
	logger.Info().Msgf(format, v...)
}

func LogWarn(format string, v ...any) {
	logger.Warn().Msgf(format, v...)
}

func LogError(format string, v ...any) {
	logger.Error().Msgf(format, v...)
}

func LogFatal(format string, v ...any) {
	logger.Fatal().Msgf(format, v...)
}

// RequestID returns the request id stored by the request id middleware, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(constants.RequestIDKey).(string)
	return reqID
}

// ReqPrefix formats the request id for log lines.
func ReqPrefix(ctx context.Context) string {
	if reqID := RequestID(ctx); reqID != "" {
		return fmt.Sprintf("[request_id=%v] ", reqID)
	}
	return ""
}

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		LogWarn("Error checking directory existence: %v", err)
		return false
	}
	return info.IsDir()
}

func FormatUptime(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour%s, %d minute%s, %d second%s",
			hours, Plural(hours),
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s, %d second%s",
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	default:
		return fmt.Sprintf("%d second%s", seconds, Plural(seconds))
	}
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
