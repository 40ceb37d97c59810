package app

import (
	"context"

	"github.com/Amund211/assetcache/internal/cache"
)

type GetStatus func(ctx context.Context) cache.Status

type GetKeyStatus func(ctx context.Context, key string) (cache.KeyStatus, bool)

func BuildGetStatus(assetCache assetCache) GetStatus {
	return func(ctx context.Context) cache.Status {
		return assetCache.Status()
	}
}

func BuildGetKeyStatus(assetCache assetCache) GetKeyStatus {
	return func(ctx context.Context, key string) (cache.KeyStatus, bool) {
		return assetCache.KeyStatus(key)
	}
}
