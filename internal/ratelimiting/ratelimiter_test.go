package ratelimiting

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockedRateLimiter struct {
	consumeFunc func(key string) bool
}

func (m *mockedRateLimiter) Consume(key string) bool {
	return m.consumeFunc(key)
}

func TestTokenBucketRateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst then deny", func(t *testing.T) {
		t.Parallel()

		rateLimiter, stop := NewTokenBucketRateLimiter(0.001, 2)
		defer stop()

		assert.True(t, rateLimiter.Consume("client1"))
		assert.True(t, rateLimiter.Consume("client1"))
		assert.False(t, rateLimiter.Consume("client1"))

		// Separate bucket per key
		assert.True(t, rateLimiter.Consume("client2"))
		assert.True(t, rateLimiter.Consume("client2"))
		assert.False(t, rateLimiter.Consume("client2"))
	})

	t.Run("refill", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping test in short mode")
		}
		t.Parallel()

		rateLimiter, stop := NewTokenBucketRateLimiter(20, 1)
		defer stop()

		require.True(t, rateLimiter.Consume("client1"))
		require.False(t, rateLimiter.Consume("client1"))

		require.Eventually(t, func() bool {
			return rateLimiter.Consume("client1")
		}, time.Second, 10*time.Millisecond)
	})
}

func TestIPKeyFunc(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		want       string
	}{
		{remoteAddr: "123.123.123.123", want: "ip: 123.123.123.123"},
		{remoteAddr: "123.123.123.123:56789", want: "ip: 123.123.123.123"},
		{remoteAddr: "[::1]:56789", want: "ip: ::1"},
	}

	for _, c := range cases {
		t.Run(c.remoteAddr, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.want, IPKeyFunc(&http.Request{RemoteAddr: c.remoteAddr}))
		})
	}

	t.Run("forwarded for", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{RemoteAddr: "169.254.169.126:58418", Header: http.Header{}}
		r.Header.Set("X-Forwarded-For", "1.2.3.4, 12.12.123.123,34.111.7.239")
		assert.Equal(t, "ip: 12.12.123.123", IPKeyFunc(r))
	})

	t.Run("single forwarded for entry is ignored", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{RemoteAddr: "169.254.169.126:58418", Header: http.Header{}}
		r.Header.Set("X-Forwarded-For", "12.12.123.123")
		assert.Equal(t, "ip: 169.254.169.126", IPKeyFunc(r))
	})
}

func TestClientIDKeyFunc(t *testing.T) {
	t.Parallel()

	t.Run("header", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{RemoteAddr: "1.1.1.1:1234", Header: http.Header{}}
		r.Header.Set("X-Client-Id", "popup-renderer")
		assert.Equal(t, "client-id: popup-renderer", ClientIDKeyFunc(r))
	})

	t.Run("long header is truncated", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{RemoteAddr: "1.1.1.1:1234", Header: http.Header{}}
		r.Header.Set("X-Client-Id", strings.Repeat("a", 100))
		assert.Equal(t, "client-id: "+strings.Repeat("a", 50), ClientIDKeyFunc(r))
	})

	t.Run("falls back to ip", func(t *testing.T) {
		t.Parallel()

		r := &http.Request{RemoteAddr: "1.1.1.1:1234", Header: http.Header{}}
		assert.Equal(t, "ip: 1.1.1.1", ClientIDKeyFunc(r))
	})
}

func TestRequestBasedRateLimiter(t *testing.T) {
	t.Parallel()

	var expectedKey string
	var allowed bool
	rateLimiter := &mockedRateLimiter{
		consumeFunc: func(key string) bool {
			assert.Equal(t, expectedKey, key)
			return allowed
		},
	}
	requestRateLimiter := NewRequestBasedRateLimiter(rateLimiter, IPKeyFunc)

	expectedKey = "ip: 1.1.1.1"
	allowed = true
	assert.True(t, requestRateLimiter.Consume(&http.Request{RemoteAddr: "1.1.1.1:80"}))
	allowed = false
	assert.False(t, requestRateLimiter.Consume(&http.Request{RemoteAddr: "1.1.1.1:80"}))

	expectedKey = "ip: 2.1.1.1"
	allowed = true
	assert.True(t, requestRateLimiter.Consume(&http.Request{RemoteAddr: "2.1.1.1:80"}))
	assert.Equal(t, "ip: 2.1.1.1", requestRateLimiter.KeyFor(&http.Request{RemoteAddr: "2.1.1.1:80"}))
}
