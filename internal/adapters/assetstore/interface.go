package assetstore

import (
	"context"

	"github.com/Amund211/assetcache/internal/domain"
)

// Handle is an opaque token identifying one successful load
type Handle interface {
	Key() string
}

type AssetStore interface {
	// Raises domain.ErrAssetNotFound if nothing is stored under the given key
	//
	// Raises domain.ErrInvalidKey if the key can never refer to an asset in this store
	Load(ctx context.Context, key string, hint domain.TypeHint) (Handle, *domain.Asset, error)

	// Release must be called exactly once for every handle returned by a successful Load
	Release(handle Handle)
}
