package assetstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/Amund211/assetcache/internal/codec"
	"github.com/Amund211/assetcache/internal/domain"
)

// Memory is an in-process asset store holding raw blobs
type Memory struct {
	blobs     map[string][]byte
	blobsLock sync.RWMutex

	handles *handleTracker
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		blobs:   make(map[string][]byte),
		handles: newHandleTracker(logger.With("store", "memory")),
	}
}

func (m *Memory) Put(key string, raw []byte) {
	m.blobsLock.Lock()
	defer m.blobsLock.Unlock()

	m.blobs[key] = slices.Clone(raw)
}

func (m *Memory) Load(ctx context.Context, key string, hint domain.TypeHint) (Handle, *domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.blobsLock.RLock()
	raw, ok := m.blobs[key]
	m.blobsLock.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: key %q", domain.ErrAssetNotFound, key)
	}

	asset, err := codec.Decode(key, raw, hint)
	if err != nil {
		return nil, nil, err
	}

	return m.handles.issue(key), asset, nil
}

func (m *Memory) Release(handle Handle) {
	m.handles.release(handle)
}

// Outstanding returns the number of handles that have been loaded but not released
func (m *Memory) Outstanding() int {
	return m.handles.count()
}
