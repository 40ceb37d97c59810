package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Amund211/assetcache/internal/app"
	"github.com/Amund211/assetcache/internal/cache"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/stretchr/testify/require"
)

type mockAssetCache struct {
	t *testing.T

	acquireKey    string
	acquireHint   domain.TypeHint
	acquireCalled bool
	acquireAsset  *domain.Asset
	acquireErr    error

	releaseKey    string
	releaseCalled bool

	status cache.Status

	keyStatus   cache.KeyStatus
	keyStatusOK bool
}

func (m *mockAssetCache) Acquire(ctx context.Context, key string, hint domain.TypeHint) (*domain.Asset, error) {
	m.t.Helper()
	require.Equal(m.t, m.acquireKey, key)
	require.Equal(m.t, m.acquireHint, hint)

	require.False(m.t, m.acquireCalled)

	m.acquireCalled = true
	return m.acquireAsset, m.acquireErr
}

func (m *mockAssetCache) Release(ctx context.Context, key string) {
	m.t.Helper()
	require.Equal(m.t, m.releaseKey, key)

	require.False(m.t, m.releaseCalled)

	m.releaseCalled = true
}

func (m *mockAssetCache) Status() cache.Status {
	return m.status
}

func (m *mockAssetCache) KeyStatus(key string) (cache.KeyStatus, bool) {
	return m.keyStatus, m.keyStatusOK
}

func TestBuildAcquireAsset(t *testing.T) {
	t.Parallel()

	asset := &domain.Asset{Key: "ui/popup.json", Type: domain.TypeJSON, Size: 18, Value: map[string]any{"title": "Reward"}}

	t.Run("acquires", func(t *testing.T) {
		t.Parallel()

		assetCache := &mockAssetCache{
			t:            t,
			acquireKey:   "ui/popup.json",
			acquireHint:  domain.TypeJSON,
			acquireAsset: asset,
			keyStatus:    cache.KeyStatus{Key: "ui/popup.json", RefCount: 3, LastAccessTime: time.Now()},
			keyStatusOK:  true,
		}

		acquired, err := app.BuildAcquireAsset(assetCache)(t.Context(), "ui/popup.json", domain.TypeJSON)
		require.NoError(t, err)
		require.Same(t, asset, acquired.Asset)
		require.Equal(t, 3, acquired.RefCount)
		require.True(t, assetCache.acquireCalled)
	})

	t.Run("evicted right after acquire", func(t *testing.T) {
		t.Parallel()

		assetCache := &mockAssetCache{
			t:            t,
			acquireKey:   "ui/popup.json",
			acquireHint:  domain.TypeJSON,
			acquireAsset: asset,
		}

		acquired, err := app.BuildAcquireAsset(assetCache)(t.Context(), "ui/popup.json", domain.TypeJSON)
		require.NoError(t, err)
		require.Equal(t, 1, acquired.RefCount)
	})

	t.Run("store errors are passed through", func(t *testing.T) {
		t.Parallel()

		for _, storeErr := range []error{
			domain.ErrAssetNotFound,
			domain.ErrCacheClosed,
			context.Canceled,
			errors.New("disk on fire"),
		} {
			assetCache := &mockAssetCache{
				t:           t,
				acquireKey:  "a",
				acquireHint: domain.TypeBytes,
				acquireErr:  fmt.Errorf("%w: key %q: %w", domain.ErrLoadFailed, "a", storeErr),
			}

			_, err := app.BuildAcquireAsset(assetCache)(t.Context(), "a", domain.TypeBytes)
			require.ErrorIs(t, err, storeErr)
			require.ErrorIs(t, err, domain.ErrLoadFailed)
		}
	})

	t.Run("invalid key lengths", func(t *testing.T) {
		t.Parallel()

		for _, key := range []string{"", strings.Repeat("a", 513)} {
			assetCache := &mockAssetCache{t: t}

			_, err := app.BuildAcquireAsset(assetCache)(t.Context(), key, domain.TypeBytes)
			require.ErrorIs(t, err, domain.ErrInvalidKey)
			require.False(t, assetCache.acquireCalled)
		}
	})
}

func TestBuildReleaseAsset(t *testing.T) {
	t.Parallel()

	assetCache := &mockAssetCache{t: t, releaseKey: "a"}
	app.BuildReleaseAsset(assetCache)(t.Context(), "a")
	require.True(t, assetCache.releaseCalled)
}

func TestBuildGetStatus(t *testing.T) {
	t.Parallel()

	status := cache.Status{Count: 1, TotalMemoryMB: 12.5, RefCounts: map[string]int{"a": 2}}
	keyStatus := cache.KeyStatus{Key: "a", RefCount: 2, Type: domain.TypeText, Size: 4}
	assetCache := &mockAssetCache{t: t, status: status, keyStatus: keyStatus, keyStatusOK: true}

	require.Equal(t, status, app.BuildGetStatus(assetCache)(t.Context()))

	got, ok := app.BuildGetKeyStatus(assetCache)(t.Context(), "a")
	require.True(t, ok)
	require.Equal(t, keyStatus, got)
}
