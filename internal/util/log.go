package util

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFromContext returns the request scoped logger, falling back to the global one.
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l := log.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}

	return l
}

// WithRunID stores a child logger tagged with runID in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	l := log.Logger.With().Str("run_id", runID).Logger()

	return l.WithContext(ctx)
}
