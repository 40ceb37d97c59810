package memoryprobe

import (
	"runtime"
	"sync"
)

const bytesPerMB = 1024 * 1024

// Runtime reports the bytes in in-use heap spans
//
// The reading only drops after the garbage collector has run following an eviction.
type Runtime struct{}

func NewRuntime() Runtime {
	return Runtime{}
}

func (Runtime) CurrentUsageMB() (float64, error) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.HeapInuse) / bytesPerMB, nil
}

// Static reports whatever value it was last set to
type Static struct {
	usageMB float64
	err     error
	lock    sync.Mutex
}

func NewStatic(usageMB float64) *Static {
	return &Static{usageMB: usageMB}
}

func (s *Static) Set(usageMB float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.usageMB = usageMB
	s.err = nil
}

// Fail makes every reading return err until the next call to Set
func (s *Static) Fail(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.err = err
}

func (s *Static) CurrentUsageMB() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.usageMB, nil
}

// Func adapts a function to the probe interface
type Func func() (float64, error)

func (f Func) CurrentUsageMB() (float64, error) {
	return f()
}
