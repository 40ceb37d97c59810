package ports

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("records the written status", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		recorder.WriteHeader(http.StatusNotFound)

		require.Equal(t, http.StatusNotFound, recorder.statusCode)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("defaults to ok", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		_, err := recorder.Write([]byte("body"))
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, recorder.statusCode)
	})

	t.Run("passes the request through", func(t *testing.T) {
		t.Parallel()

		called := false
		handler := buildMetricsMiddleware()(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		})

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

		require.True(t, called)
		require.Equal(t, http.StatusTeapot, w.Code)
	})
}
