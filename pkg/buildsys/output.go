package buildsys

import (
	"context"

	"github.com/rs/zerolog"
)

type logKey struct{}

func log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		panic("Logger is missing in context!")
	}

	return logger.(*zerolog.Logger)
}

// Log returns the logger attached to ctx. It panics if WithLogger was never called.
func Log(ctx context.Context) *zerolog.Logger {
	return log(ctx)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// WithLogFields returns a context whose logger carries the given string fields
func WithLogFields(ctx context.Context, fields map[string]string) context.Context {
	lctx := log(ctx).With()
	for k, v := range fields {
		lctx = lctx.Str(k, v)
	}

	logger := lctx.Logger()
	return WithLogger(ctx, &logger)
}
