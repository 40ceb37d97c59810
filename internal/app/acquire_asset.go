package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Amund211/assetcache/internal/cache"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/Amund211/assetcache/internal/reporting"
)

const maxKeyLength = 512

type assetCache interface {
	Acquire(ctx context.Context, key string, hint domain.TypeHint) (*domain.Asset, error)
	Release(ctx context.Context, key string)
	Status() cache.Status
	KeyStatus(key string) (cache.KeyStatus, bool)
}

type AcquiredAsset struct {
	Asset *domain.Asset
	// Reference count right after the acquire. Only informative, other callers may change it at any time.
	RefCount int
}

type AcquireAsset func(ctx context.Context, key string, hint domain.TypeHint) (AcquiredAsset, error)

// expectedAcquireErrors are caused by the caller or by the cache shutting down, and are not reported
var expectedAcquireErrors = []error{
	domain.ErrAssetNotFound,
	domain.ErrInvalidKey,
	domain.ErrUnknownTypeHint,
	domain.ErrCacheClosed,
	context.Canceled,
	context.DeadlineExceeded,
}

func isExpectedAcquireError(err error) bool {
	for _, expected := range expectedAcquireErrors {
		if errors.Is(err, expected) {
			return true
		}
	}
	return false
}

func BuildAcquireAsset(assetCache assetCache) AcquireAsset {
	return func(ctx context.Context, key string, hint domain.TypeHint) (AcquiredAsset, error) {
		keyLength := len(key)
		if keyLength == 0 || keyLength > maxKeyLength {
			err := fmt.Errorf("%w: invalid key length", domain.ErrInvalidKey)
			reporting.Report(ctx, err, map[string]string{
				"length": strconv.Itoa(keyLength),
			})
			return AcquiredAsset{}, err
		}

		asset, err := assetCache.Acquire(ctx, key, hint)
		if err != nil {
			if !isExpectedAcquireError(err) {
				reporting.Report(ctx, err, map[string]string{
					"key":  key,
					"type": string(hint),
				})
			}
			return AcquiredAsset{}, fmt.Errorf("failed to acquire asset: %w", err)
		}

		acquired := AcquiredAsset{Asset: asset, RefCount: 1}
		if status, ok := assetCache.KeyStatus(key); ok {
			acquired.RefCount = status.RefCount
		}

		return acquired, nil
	}
}
