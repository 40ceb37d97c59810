package ports

import (
	"log/slog"
	"net/http"

	"github.com/Amund211/assetcache/internal/app"
	"github.com/Amund211/assetcache/internal/logging"
	"github.com/Amund211/assetcache/internal/reporting"
)

func MakeStatusHandler(
	getStatus app.GetStatus,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("status"),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		status := getStatus(r.Context())

		refCounts := status.RefCounts
		if refCounts == nil {
			refCounts = map[string]int{}
		}

		writeJSONResponse(w, r, statusResponse{
			Count:         status.Count,
			TotalMemoryMB: status.TotalMemoryMB,
			RefCounts:     refCounts,
		}, http.StatusOK)
	}

	return middleware(handler)
}

func MakeKeyStatusHandler(
	getKeyStatus app.GetKeyStatus,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		buildMetricsMiddleware(),
		logging.NewRequestLoggerMiddleware(rootLogger),
		sentryMiddleware,
		reporting.NewAddMetaMiddleware("keystatus"),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		status, ok := getKeyStatus(r.Context(), key)
		if !ok {
			writeErrorResponse(w, r, "", "not found", http.StatusNotFound)
			return
		}

		writeJSONResponse(w, r, keyStatusResponse{
			Success:        true,
			Key:            status.Key,
			RefCount:       status.RefCount,
			LastAccessTime: status.LastAccessTime,
			Type:           string(status.Type),
			Size:           status.Size,
		}, http.StatusOK)
	}

	return middleware(handler)
}
