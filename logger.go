package trafficlight

import (
	"context"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)
var logger *slog.Logger

func init() {
	opts := slog.HandlerOptions{
		Level: logLevel,
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &opts))
	slog.SetDefault(logger)
}

func SetDebug(debug bool) {
	if debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
}

func newLoggerFromContext(ctx context.Context) *slog.Logger {
	if s := ctx.Value(stateKey); s != nil {
		state := s.(*State)
		return logger.With("phase", state.Phase, "index", state.Index)
	}
	return logger
}
