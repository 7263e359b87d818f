package workers

import (
	"context"
	"log/slog"
	"mini-chat/observability"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type countingSampler struct {
	calls atomic.Int32
}

func (c *countingSampler) Snapshot() observability.ProcessStats {
	n := c.calls.Add(1)
	return observability.ProcessStats{PID: 42, Goroutines: int(n)}
}

func TestHealthMonitoringWorker_Keeps_Latest_Snapshot(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	clock := clockwork.NewFakeClock()
	sampler := &countingSampler{}
	worker := NewHealthMonitoringWorker(log, clock, sampler, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// Given the first sample taken at start
	req.Eventually(func() bool { return worker.Latest().PID == 42 }, time.Second, 5*time.Millisecond)

	// When time passes
	// Then newer samples replace the cached one
	req.Eventually(func() bool {
		clock.Advance(time.Second)
		return worker.Latest().Goroutines >= 3
	}, time.Second, 5*time.Millisecond)
}
