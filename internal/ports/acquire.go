package ports

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Amund211/assetcache/internal/app"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/Amund211/assetcache/internal/logging"
	"github.com/Amund211/assetcache/internal/reporting"
)

func MakeAcquireHandler(
	acquireAsset app.AcquireAsset,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
	rateLimitMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("acquire"),
		rateLimitMiddleware,
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := r.PathValue("key")
		rawHint := r.URL.Query().Get("type")

		ctx = reporting.AddExtrasToContext(ctx,
			map[string]string{
				"key":  key,
				"type": rawHint,
			},
		)
		r = r.WithContext(ctx)

		hint, err := domain.ParseTypeHint(rawHint)
		if err != nil {
			writeErrorResponse(w, r, key, "unknown type hint", http.StatusBadRequest)
			return
		}
		ctx = logging.AddTypeHintToContext(ctx, hint)
		r = r.WithContext(ctx)

		acquired, err := acquireAsset(ctx, key, hint)
		switch {
		case errors.Is(err, domain.ErrInvalidKey):
			writeErrorResponse(w, r, key, "invalid key", http.StatusBadRequest)
			return
		case errors.Is(err, domain.ErrUnknownTypeHint):
			writeErrorResponse(w, r, key, "unknown type hint", http.StatusBadRequest)
			return
		case errors.Is(err, domain.ErrAssetNotFound):
			writeErrorResponse(w, r, key, "not found", http.StatusNotFound)
			return
		case errors.Is(err, domain.ErrCacheClosed):
			writeErrorResponse(w, r, key, "unavailable", http.StatusServiceUnavailable)
			return
		case err != nil:
			// NOTE: AcquireAsset handles its own error reporting
			writeErrorResponse(w, r, key, "internal server error", http.StatusInternalServerError)
			return
		}

		logging.FromContext(ctx).InfoContext(ctx, "Acquired asset", "refCount", acquired.RefCount)

		writeJSONResponse(w, r, acquireResponse{
			Success:  true,
			Key:      acquired.Asset.Key,
			Type:     string(acquired.Asset.Type),
			Size:     acquired.Asset.Size,
			RefCount: acquired.RefCount,
		}, http.StatusOK)
	}

	return middleware(handler)
}
