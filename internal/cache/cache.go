package cache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Amund211/assetcache/internal/adapters/assetstore"
	"github.com/Amund211/assetcache/internal/domain"
	"github.com/Amund211/assetcache/internal/reporting"
	"github.com/google/uuid"
	"github.com/tunabay/go-infounit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMemoryCheckInterval = 30 * time.Second
	DefaultUnusedThreshold     = 180 * time.Second
	DefaultMemoryThresholdMB   = 512.0
	DefaultMaxConcurrentLoads  = 8
)

type MemoryProbe interface {
	CurrentUsageMB() (float64, error)
}

// Config holds the collaborators and tuning of a ResourceCache
//
// Zero durations and thresholds are replaced by their defaults.
type Config struct {
	Store  assetstore.AssetStore
	Probe  MemoryProbe
	Logger *slog.Logger

	// Defaults to time.Now
	NowFunc func() time.Time
	// Defaults to time.After
	After func(time.Duration) <-chan time.Time

	MemoryCheckInterval time.Duration
	UnusedThreshold     time.Duration
	MemoryThresholdMB   float64
	MaxConcurrentLoads  int
}

// ResourceCache hands out shared, reference counted assets loaded from an asset store
//
// Concurrent acquires of the same key are served by a single store load.
// Entries nobody holds are evicted when memory usage goes over the configured threshold.
type ResourceCache struct {
	store   assetstore.AssetStore
	probe   MemoryProbe
	logger  *slog.Logger
	nowFunc func() time.Time
	tracer  trace.Tracer

	unusedThreshold   time.Duration
	memoryThresholdMB float64
	loadSlots         *semaphore.Weighted

	lock     sync.Mutex
	table    map[string]*ResourceHandle
	inFlight inFlightRegistry
	closed   bool

	monitor       *MemoryMonitor
	monitorCancel context.CancelFunc
	monitorWG     sync.WaitGroup
}

type Status struct {
	Count         int
	TotalMemoryMB float64
	RefCounts     map[string]int
}

type KeyStatus struct {
	Key            string
	RefCount       int
	LastAccessTime time.Time
	Type           domain.TypeHint
	Size           int64
}

type evictedEntry struct {
	key    string
	handle *ResourceHandle
}

func New(conf Config) (*ResourceCache, error) {
	if conf.Store == nil {
		return nil, errors.New("resource cache requires an asset store")
	}
	if conf.Probe == nil {
		return nil, errors.New("resource cache requires a memory probe")
	}

	logger := conf.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	nowFunc := conf.NowFunc
	if nowFunc == nil {
		nowFunc = time.Now
	}

	checkInterval := cmp.Or(conf.MemoryCheckInterval, DefaultMemoryCheckInterval)
	unusedThreshold := cmp.Or(conf.UnusedThreshold, DefaultUnusedThreshold)
	memoryThresholdMB := cmp.Or(conf.MemoryThresholdMB, DefaultMemoryThresholdMB)
	maxConcurrentLoads := cmp.Or(conf.MaxConcurrentLoads, DefaultMaxConcurrentLoads)

	if checkInterval < 0 || unusedThreshold < 0 || memoryThresholdMB < 0 || maxConcurrentLoads < 0 {
		return nil, errors.New("resource cache settings must be positive")
	}

	c := &ResourceCache{
		store:   conf.Store,
		probe:   conf.Probe,
		logger:  logger.With("component", "resourceCache"),
		nowFunc: nowFunc,
		tracer:  otel.Tracer("assetcache/cache"),

		unusedThreshold:   unusedThreshold,
		memoryThresholdMB: memoryThresholdMB,
		loadSlots:         semaphore.NewWeighted(int64(maxConcurrentLoads)),

		table:    make(map[string]*ResourceHandle),
		inFlight: make(inFlightRegistry),
	}
	c.monitor = NewMemoryMonitor(c, checkInterval, conf.After, logger.With("component", "memoryMonitor"))

	return c, nil
}

// Start runs the memory monitor in the background until Shutdown is called or ctx is cancelled
func (c *ResourceCache) Start(ctx context.Context) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.closed || c.monitorCancel != nil {
		return
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	c.monitorCancel = cancel

	c.monitorWG.Add(1)
	go func() {
		defer c.monitorWG.Done()
		c.monitor.Run(monitorCtx)
	}()
}

// Acquire returns the asset stored under key and takes a reference to it
//
// Every successful Acquire must be paired with a Release of the same key.
// Load failures wrap domain.ErrLoadFailed together with the error from the store.
func (c *ResourceCache) Acquire(ctx context.Context, key string, hint domain.TypeHint) (*domain.Asset, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key %q", domain.ErrInvalidKey, key)
	}

	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return nil, domain.ErrCacheClosed
	}

	if handle, ok := c.table[key]; ok {
		handle.AddRef(c.nowFunc())
		asset := handle.asset
		c.lock.Unlock()

		metrics.acquireCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcomeHit))))
		return asset, nil
	}

	load, leader := c.inFlight.lookupOrRegister(key)
	c.lock.Unlock()

	if !leader {
		metrics.acquireCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcomeWait))))
		return c.wait(ctx, key, load)
	}

	metrics.acquireCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcomeMiss))))
	return c.load(ctx, key, hint, load)
}

// wait blocks until load resolves or ctx is done
//
// The waiter's reference is counted by the leader when the load succeeds.
func (c *ResourceCache) wait(ctx context.Context, key string, load *inFlightLoad) (*domain.Asset, error) {
	select {
	case <-load.done:
	case <-ctx.Done():
		c.lock.Lock()
		defer c.lock.Unlock()

		if !load.resolved() {
			load.waiters--
		} else if load.err == nil {
			// Resolved while we were giving up, so our reference was already taken
			load.handle.Release()
		}
		return nil, ctx.Err()
	}

	if load.err != nil {
		return nil, load.err
	}

	c.lock.Lock()
	load.handle.lastAccessTime = c.nowFunc()
	c.lock.Unlock()

	c.logger.DebugContext(ctx, "Joined in-flight load", "key", key)
	return load.handle.asset, nil
}

func (c *ResourceCache) load(ctx context.Context, key string, hint domain.TypeHint, load *inFlightLoad) (*domain.Asset, error) {
	logger := c.logger.With("key", key, "loadID", uuid.New().String())

	ctx, span := c.tracer.Start(ctx, "ResourceCache.load", trace.WithAttributes(
		attribute.String("key", key),
		attribute.String("type", string(hint)),
	))
	defer span.End()

	err := c.CheckMemoryStatus(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to check memory status before load", "error", err)
		reporting.Report(ctx, err, map[string]string{"key": key})
	}

	// ctx belongs to the caller that started the load. If it ends, every waiter joined on key fails too.
	start := time.Now()
	storeHandle, asset, err := c.loadFromStore(ctx, key, hint)
	metrics.loadDuration.Record(ctx, time.Since(start).Seconds())

	c.lock.Lock()

	if err != nil {
		err = fmt.Errorf("%w: key %q: %w", domain.ErrLoadFailed, key, err)
		c.inFlight.complete(key, load, nil, err)
		waiters := load.waiters
		c.lock.Unlock()

		metrics.loadFailures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		logger.WarnContext(ctx, "Failed to load asset", "error", err, "waiters", waiters)
		return nil, err
	}

	if c.closed || load.resolved() {
		c.inFlight.complete(key, load, nil, domain.ErrCacheClosed)
		c.lock.Unlock()

		logger.InfoContext(ctx, "Cache closed during load, releasing asset")
		c.store.Release(storeHandle)
		return nil, domain.ErrCacheClosed
	}

	handle := newResourceHandle(asset, storeHandle, 1+load.waiters, c.nowFunc())
	c.table[key] = handle
	c.inFlight.complete(key, load, handle, nil)
	refCount := handle.refCount
	c.lock.Unlock()

	logger.DebugContext(ctx, "Loaded asset", "size", asset.Size, "refCount", refCount)
	return asset, nil
}

func (c *ResourceCache) loadFromStore(ctx context.Context, key string, hint domain.TypeHint) (assetstore.Handle, *domain.Asset, error) {
	err := c.loadSlots.Acquire(ctx, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed waiting for a load slot: %w", err)
	}
	defer c.loadSlots.Release(1)

	return c.store.Load(ctx, key, hint)
}

// Release gives back one reference to the asset stored under key
//
// Unknown keys are ignored. Assets nobody holds stay cached until they are evicted.
func (c *ResourceCache) Release(ctx context.Context, key string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	handle, ok := c.table[key]
	if !ok {
		return
	}

	if handle.refCount <= 0 {
		c.logger.WarnContext(ctx, "Released asset without outstanding references", "key", key)
		return
	}

	handle.Release()
}

// CheckMemoryStatus evicts idle assets if memory usage is over the threshold, and forces evictions if that is not enough
func (c *ResourceCache) CheckMemoryStatus(ctx context.Context) error {
	usage, err := c.probe.CurrentUsageMB()
	if err != nil {
		return fmt.Errorf("failed to read memory usage: %w", err)
	}
	if usage <= c.memoryThresholdMB {
		return nil
	}

	evicted := c.CleanupUnusedResources(ctx)
	c.logger.InfoContext(ctx, "Memory usage over threshold, evicted idle assets",
		"usageMB", usage, "thresholdMB", c.memoryThresholdMB, "evicted", evicted)

	usage, err = c.probe.CurrentUsageMB()
	if err != nil {
		return fmt.Errorf("failed to read memory usage after cleanup: %w", err)
	}
	if usage <= c.memoryThresholdMB {
		return nil
	}

	forced := c.ForceCleanupResources(ctx)
	c.logger.WarnContext(ctx, "Memory usage still over threshold, forced evictions",
		"usageMB", usage, "thresholdMB", c.memoryThresholdMB, "evicted", forced)

	return nil
}

// CleanupUnusedResources evicts every asset nobody holds that has not been acquired within the unused threshold
func (c *ResourceCache) CleanupUnusedResources(ctx context.Context) int {
	c.lock.Lock()
	now := c.nowFunc()
	var evicted []evictedEntry
	for key, handle := range c.table {
		if handle.IsUnused(c.unusedThreshold, now) {
			delete(c.table, key)
			evicted = append(evicted, evictedEntry{key: key, handle: handle})
		}
	}
	c.lock.Unlock()

	c.releaseEvicted(ctx, evicted, reasonIdle)
	return len(evicted)
}

// ForceCleanupResources evicts the least used half of the assets nobody holds
//
// Candidates are ordered by reference count, then by last access (oldest first), then by key.
func (c *ResourceCache) ForceCleanupResources(ctx context.Context) int {
	c.lock.Lock()
	candidates := make([]evictedEntry, 0, len(c.table))
	for key, handle := range c.table {
		if handle.refCount <= 0 {
			candidates = append(candidates, evictedEntry{key: key, handle: handle})
		}
	}

	slices.SortFunc(candidates, func(a, b evictedEntry) int {
		return cmp.Or(
			cmp.Compare(a.handle.refCount, b.handle.refCount),
			a.handle.lastAccessTime.Compare(b.handle.lastAccessTime),
			strings.Compare(a.key, b.key),
		)
	})

	evicted := candidates[:len(candidates)/2]
	for _, entry := range evicted {
		delete(c.table, entry.key)
	}
	c.lock.Unlock()

	c.releaseEvicted(ctx, evicted, reasonForced)
	return len(evicted)
}

func (c *ResourceCache) releaseEvicted(ctx context.Context, evicted []evictedEntry, reason evictionReason) {
	if len(evicted) == 0 {
		return
	}

	for _, entry := range evicted {
		c.store.Release(entry.handle.storeHandle)
		c.logger.DebugContext(ctx, "Evicted asset", "key", entry.key, "reason", string(reason))
	}

	metrics.evictionCount.Add(ctx, int64(len(evicted)), metric.WithAttributes(attribute.String("reason", string(reason))))
}

// Shutdown stops the memory monitor and releases every cached asset
//
// Loads still in flight fail with domain.ErrCacheClosed. Calling Shutdown more than once is a no-op.
func (c *ResourceCache) Shutdown(ctx context.Context) {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	cancel := c.monitorCancel
	c.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	c.monitorWG.Wait()

	c.lock.Lock()
	evicted := make([]evictedEntry, 0, len(c.table))
	for key, handle := range c.table {
		evicted = append(evicted, evictedEntry{key: key, handle: handle})
	}
	clear(c.table)

	pending := len(c.inFlight)
	for key, load := range c.inFlight {
		c.inFlight.complete(key, load, nil, domain.ErrCacheClosed)
	}
	c.lock.Unlock()

	c.releaseEvicted(ctx, evicted, reasonShutdown)
	c.logger.InfoContext(ctx, "Resource cache shut down", "released", len(evicted), "abortedLoads", pending)
}

// Status returns a snapshot of the cached assets and the current memory usage
func (c *ResourceCache) Status() Status {
	usage, err := c.probe.CurrentUsageMB()
	if err != nil {
		usage = 0
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	refCounts := make(map[string]int, len(c.table))
	for key, handle := range c.table {
		refCounts[key] = handle.refCount
	}

	return Status{
		Count:         len(c.table),
		TotalMemoryMB: usage,
		RefCounts:     refCounts,
	}
}

// KeyStatus returns a snapshot of the asset cached under key, or false if it is not cached
func (c *ResourceCache) KeyStatus(key string) (KeyStatus, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	handle, ok := c.table[key]
	if !ok {
		return KeyStatus{}, false
	}

	return KeyStatus{
		Key:            key,
		RefCount:       handle.refCount,
		LastAccessTime: handle.lastAccessTime,
		Type:           handle.asset.Type,
		Size:           handle.asset.Size,
	}, true
}

// LogStatus writes the cache status to the logger, one line per cached asset
func (c *ResourceCache) LogStatus(ctx context.Context) {
	status := c.Status()

	c.lock.Lock()
	sizes := make(map[string]int64, len(c.table))
	var totalSize int64
	for key, handle := range c.table {
		sizes[key] = handle.asset.Size
		totalSize += handle.asset.Size
	}
	c.lock.Unlock()

	c.logger.InfoContext(ctx, "Resource cache status",
		"count", status.Count,
		"memoryUsage", fmt.Sprintf("%.2fMB", status.TotalMemoryMB),
		"assetSize", fmt.Sprintf("%.1S", infounit.ByteCount(totalSize)),
	)

	for _, key := range slices.Sorted(maps.Keys(status.RefCounts)) {
		size, ok := sizes[key]
		if !ok {
			// Evicted since the snapshot was taken
			continue
		}
		c.logger.InfoContext(ctx, "Cached asset",
			"key", key,
			"refCount", status.RefCounts[key],
			"size", fmt.Sprintf("%.1S", infounit.ByteCount(size)),
		)
	}
}
