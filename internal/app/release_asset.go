package app

import "context"

type ReleaseAsset func(ctx context.Context, key string)

func BuildReleaseAsset(assetCache assetCache) ReleaseAsset {
	return func(ctx context.Context, key string) {
		assetCache.Release(ctx, key)
	}
}
