package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON to stdout so log shippers need no
// parsing config.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
