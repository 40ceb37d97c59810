package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Amund211/assetcache/internal/reporting"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MemoryChecker interface {
	CheckMemoryStatus(ctx context.Context) error
}

// MemoryMonitor periodically asks a MemoryChecker to check memory usage
//
// The interval is waited after each check completes, so a slow check delays the next one instead of overlapping it.
type MemoryMonitor struct {
	checker  MemoryChecker
	interval time.Duration
	after    func(time.Duration) <-chan time.Time
	logger   *slog.Logger
}

func NewMemoryMonitor(checker MemoryChecker, interval time.Duration, after func(time.Duration) <-chan time.Time, logger *slog.Logger) *MemoryMonitor {
	if after == nil {
		after = time.After
	}
	return &MemoryMonitor{
		checker:  checker,
		interval: interval,
		after:    after,
		logger:   logger,
	}
}

// Run checks memory every interval until ctx is cancelled
func (m *MemoryMonitor) Run(ctx context.Context) {
	m.logger.InfoContext(ctx, "Starting memory monitor", "interval", m.interval.String())
	defer m.logger.InfoContext(ctx, "Memory monitor stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.after(m.interval):
		}

		if ctx.Err() != nil {
			return
		}

		m.tick(ctx)
	}
}

func (m *MemoryMonitor) tick(ctx context.Context) {
	err := m.checker.CheckMemoryStatus(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Memory check failed", "error", err)
		reporting.Report(ctx, err)
		metrics.monitorTicks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		return
	}

	metrics.monitorTicks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
}
