package cache

// inFlightLoad is the shared future of a single store load
//
// All fields are guarded by the cache lock. done is closed exactly once, after handle or err is set.
type inFlightLoad struct {
	done chan struct{}

	handle *ResourceHandle
	err    error

	// Callers waiting on this load besides the one that started it
	waiters int
}

func newInFlightLoad() *inFlightLoad {
	return &inFlightLoad{done: make(chan struct{})}
}

func (l *inFlightLoad) resolved() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// resolve completes the load. Later calls are ignored.
func (l *inFlightLoad) resolve(handle *ResourceHandle, err error) {
	if l.resolved() {
		return
	}
	l.handle = handle
	l.err = err
	close(l.done)
}

// inFlightRegistry maps keys to the loads currently running for them
type inFlightRegistry map[string]*inFlightLoad

// lookupOrRegister returns the load running for key, or registers a new one
//
// The second return value is true if the caller registered the load and must run it.
func (r inFlightRegistry) lookupOrRegister(key string) (*inFlightLoad, bool) {
	if load, ok := r[key]; ok {
		load.waiters++
		return load, false
	}

	load := newInFlightLoad()
	r[key] = load
	return load, true
}

// complete resolves the load and removes it from the registry in one step
func (r inFlightRegistry) complete(key string, load *inFlightLoad, handle *ResourceHandle, err error) {
	if current, ok := r[key]; ok && current == load {
		delete(r, key)
	}
	load.resolve(handle, err)
}
