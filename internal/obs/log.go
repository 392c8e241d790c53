package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	logger   atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	SetOutput(os.Stdout)
}

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	return logger.Load()
}

// SetOutput redirects JSON log lines to w. Tests use it to capture output.
func SetOutput(w io.Writer) {
	logger.Store(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// SetLevel sets the minimum level from its name. Unknown names leave the level unchanged and report false.
func SetLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info", "":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		return false
	}
	return true
}
