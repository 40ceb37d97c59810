package cache

import (
	"time"

	"github.com/Amund211/assetcache/internal/adapters/assetstore"
	"github.com/Amund211/assetcache/internal/domain"
)

// ResourceHandle is a loaded asset together with its usage bookkeeping
//
// NOTE: A ResourceHandle is not safe for concurrent use. The cache guards every handle with its own lock.
type ResourceHandle struct {
	asset       *domain.Asset
	storeHandle assetstore.Handle

	refCount       int
	lastAccessTime time.Time
}

func newResourceHandle(asset *domain.Asset, storeHandle assetstore.Handle, refCount int, now time.Time) *ResourceHandle {
	return &ResourceHandle{
		asset:          asset,
		storeHandle:    storeHandle,
		refCount:       refCount,
		lastAccessTime: now,
	}
}

func (h *ResourceHandle) AddRef(now time.Time) {
	h.refCount++
	h.lastAccessTime = now
}

// Release drops one reference and returns true if the handle is now unused
//
// The reference count never goes below zero.
func (h *ResourceHandle) Release() bool {
	if h.refCount > 0 {
		h.refCount--
	}
	return h.refCount <= 0
}

// IsUnused returns true if nobody holds the handle and it has not been acquired for longer than threshold
func (h *ResourceHandle) IsUnused(threshold time.Duration, now time.Time) bool {
	return h.refCount <= 0 && now.Sub(h.lastAccessTime) > threshold
}
