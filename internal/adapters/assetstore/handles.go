package assetstore

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type loadHandle struct {
	id  string
	key string
}

func (h *loadHandle) Key() string {
	return h.key
}

// handleTracker keeps the set of handles issued by a store that are not yet released
type handleTracker struct {
	outstanding map[*loadHandle]struct{}
	lock        sync.Mutex

	logger *slog.Logger
}

func newHandleTracker(logger *slog.Logger) *handleTracker {
	return &handleTracker{
		outstanding: make(map[*loadHandle]struct{}),
		logger:      logger,
	}
}

func (t *handleTracker) issue(key string) *loadHandle {
	handle := &loadHandle{id: uuid.New().String(), key: key}

	t.lock.Lock()
	defer t.lock.Unlock()
	t.outstanding[handle] = struct{}{}

	return handle
}

// release returns false if the handle was not issued by this tracker or is already released
func (t *handleTracker) release(handle Handle) bool {
	h, ok := handle.(*loadHandle)
	if !ok || h == nil {
		t.logger.Error("Released handle from another store", "handle", handle)
		return false
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.outstanding[h]; !ok {
		t.logger.Error("Released handle that is not outstanding", "key", h.key, "handleID", h.id)
		return false
	}
	delete(t.outstanding, h)
	return true
}

func (t *handleTracker) count() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.outstanding)
}
