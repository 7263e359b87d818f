package workers

import (
	"context"
	"log/slog"
	"mini-chat/observability"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type StatsSampler interface {
	Snapshot() observability.ProcessStats
}

// HealthMonitoringWorker samples the process on every tick and keeps the latest snapshot
// for the debug page, so page reloads never hit the OS.
type HealthMonitoringWorker struct {
	mu       sync.RWMutex
	log      *slog.Logger
	clock    clockwork.Clock
	sampler  StatsSampler
	interval time.Duration
	latest   observability.ProcessStats
}

func NewHealthMonitoringWorker(log *slog.Logger, clock clockwork.Clock, sampler StatsSampler,
	interval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:      log,
		clock:    clock,
		sampler:  sampler,
		interval: interval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.Chan():
			w.sample()
		}
	}
}

func (w *HealthMonitoringWorker) sample() {
	stats := w.sampler.Snapshot()
	w.mu.Lock()
	w.latest = stats
	w.mu.Unlock()
	w.log.Debug("Process health",
		"status", stats.Status,
		"cpu_percent", stats.CpuPercent,
		"rss_bytes", stats.RssBytes,
		"goroutines", stats.Goroutines)
}

func (w *HealthMonitoringWorker) Latest() observability.ProcessStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}
