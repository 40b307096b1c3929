package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. JSON output so log processors can
// index event fields without custom parsing.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
