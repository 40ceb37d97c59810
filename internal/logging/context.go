package logging

import (
	"context"
	"log/slog"

	"github.com/Amund211/assetcache/internal/domain"
)

type loggerContextKey struct{}

// FromContext returns the logger stored in ctx, or the default logger tagged as a fallback
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger)
	if ok && logger != nil {
		return logger
	}
	return slog.Default().With(slog.String("logger", "fallback"))
}

func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

func AddMetaToContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return AddToContext(ctx, FromContext(ctx).With(args...))
}

// AddTypeHintToContext tags the context logger with the type hint of the requested asset
func AddTypeHintToContext(ctx context.Context, hint domain.TypeHint) context.Context {
	return AddMetaToContext(ctx, slog.String("type", string(hint)))
}
