// Package logging builds the two structured loggers used across the
// ring: slog for the gateway and screen nodes, zap for the robot nodes
// that own the mutable stock table.
package logging

import (
	"log/slog"
	"os"

	"go.uber.org/zap"
)

// NewSlogLogger creates a JSON-structured slog.Logger tagged with the
// given service and node id.
func NewSlogLogger(service string, nodeID int) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(
		slog.String("service", service),
		slog.Int("node_id", nodeID),
	)
}

func parseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewZapLogger creates a production zap.Logger tagged with the given
// service and node id, used by the robot ring which mirrors the
// teacher's stock service in owning a mutable inventory table.
func NewZapLogger(service string, nodeID int) *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.With(
		zap.String("service", service),
		zap.Int("node_id", nodeID),
	)
}
