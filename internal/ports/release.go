package ports

import (
	"log/slog"
	"net/http"

	"github.com/Amund211/assetcache/internal/app"
	"github.com/Amund211/assetcache/internal/logging"
	"github.com/Amund211/assetcache/internal/reporting"
)

func MakeReleaseHandler(
	releaseAsset app.ReleaseAsset,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
	rateLimitMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("release"),
		rateLimitMiddleware,
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		// Releasing a key that is not cached is a no-op
		releaseAsset(r.Context(), key)

		writeJSONResponse(w, r, releaseResponse{Success: true, Key: key}, http.StatusOK)
	}

	return middleware(handler)
}
