package ports

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Amund211/assetcache/internal/ratelimiting"
	"github.com/stretchr/testify/require"
)

type mockedRateLimiter struct {
	t           *testing.T
	allow       bool
	expectedKey string
}

func (m *mockedRateLimiter) Consume(key string) bool {
	m.t.Helper()
	require.Equal(m.t, m.expectedKey, key)
	return m.allow
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	for _, allow := range []bool{true, false} {
		t.Run(map[bool]string{true: "allowed", false: "not allowed"}[allow], func(t *testing.T) {
			t.Parallel()

			handlerCalled := false
			onLimitExceededCalled := false
			limiter := ratelimiting.NewRequestBasedRateLimiter(
				&mockedRateLimiter{t: t, allow: allow, expectedKey: "ip: 12.12.123.123"},
				ratelimiting.IPKeyFunc,
			)

			handler := NewRateLimitMiddleware(limiter, func(w http.ResponseWriter, r *http.Request) {
				onLimitExceededCalled = true
				w.WriteHeader(http.StatusTooManyRequests)
			})(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/v1/acquire/ui/popup.json", nil)
			req.RemoteAddr = "169.254.169.126:58418"
			req.Header.Set("X-Forwarded-For", "12.12.123.123,34.111.7.239")
			w := httptest.NewRecorder()

			handler(w, req)

			require.Equal(t, allow, handlerCalled)
			require.Equal(t, !allow, onLimitExceededCalled)
		})
	}
}

func TestClientRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	middleware, stop := NewClientRateLimitMiddleware(0.001, 2)
	defer stop()

	handler := middleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	request := func(remoteAddr string, clientID string) int {
		req := httptest.NewRequest("POST", "/v1/acquire/a", nil)
		req.RemoteAddr = remoteAddr
		if clientID != "" {
			req.Header.Set("X-Client-Id", clientID)
		}
		w := httptest.NewRecorder()
		handler(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, request("1.1.1.1:1000", "renderer"))
	require.Equal(t, http.StatusOK, request("2.2.2.2:1000", "renderer"))

	// The client id bucket is empty even though the address is new
	require.Equal(t, http.StatusTooManyRequests, request("3.3.3.3:1000", "renderer"))

	require.Equal(t, http.StatusOK, request("1.1.1.1:1000", "editor"))
	// The address bucket of 1.1.1.1 is empty now
	require.Equal(t, http.StatusTooManyRequests, request("1.1.1.1:1000", "other"))
}

func TestComposeMiddlewares(t *testing.T) {
	t.Parallel()

	var calls []string
	record := func(name string) func(http.HandlerFunc) http.HandlerFunc {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name+" pre")
				next(w, r)
				calls = append(calls, name+" post")
			}
		}
	}

	t.Run("single middleware", func(t *testing.T) {
		calls = nil
		ComposeMiddlewares(record("first"))(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "handler")
		})(httptest.NewRecorder(), &http.Request{})

		require.Equal(t, []string{"first pre", "handler", "first post"}, calls)
	})

	t.Run("multiple middlewares run outermost first", func(t *testing.T) {
		calls = nil
		ComposeMiddlewares(record("first"), record("second"), record("third"))(func(w http.ResponseWriter, r *http.Request) {
			calls = append(calls, "handler")
		})(httptest.NewRecorder(), &http.Request{})

		require.Equal(t, []string{
			"first pre", "second pre", "third pre",
			"handler",
			"third post", "second post", "first post",
		}, calls)
	})
}
