package logger

import (
	"log/slog"
	"os"
)

// New creates the JSON slog.Logger shared across the service.
func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With(slog.String("service", "ordersync"))
}
