package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

type requestLoggerContextKey struct{}

// fallback is used when a context was never given a logger, which means a
// code path skipped the request logger middleware.
var fallback = sync.OnceValue(func() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("logger", "fallback"))
})

func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerContextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return fallback()
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerContextKey{}, logger)
}

// AddMetaToContext attaches attrs to every later log line of the request.
func AddMetaToContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	logger := FromContext(ctx)
	return AddToContext(ctx, slog.New(logger.Handler().WithAttrs(attrs)))
}

// Discard returns a logger that drops everything. Used by components that
// were not handed a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Default returns logger, or a discarding logger if it is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
