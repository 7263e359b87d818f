package workers

import (
	"context"
	"log/slog"
	"mini-chat/domain"
	"mini-chat/observability"
	"time"

	"github.com/jonboulle/clockwork"
)

// PeerCounter is the slice of the transport the connectivity worker needs.
type PeerCounter interface {
	PeerCount() int
}

type StatusSetter interface {
	SetStatus(status domain.Status)
}

// ConnectivityWorker turns the transport peer count into the status enum.
// It reports connecting until a peer shows up or the discovery timeout elapses,
// then keeps flipping between online and degraded.
type ConnectivityWorker struct {
	log              *slog.Logger
	clock            clockwork.Clock
	peers            PeerCounter
	status           StatusSetter
	discoveryTimeout time.Duration
	interval         time.Duration
	metrics          *observability.Metrics
}

const defaultConnectivityInterval = time.Second

func NewConnectivityWorker(log *slog.Logger, clock clockwork.Clock, peers PeerCounter, status StatusSetter,
	discoveryTimeout, interval time.Duration, metrics *observability.Metrics) *ConnectivityWorker {
	if interval <= 0 {
		interval = defaultConnectivityInterval
	}
	return &ConnectivityWorker{
		log:              log,
		clock:            clock,
		peers:            peers,
		status:           status,
		discoveryTimeout: discoveryTimeout,
		interval:         interval,
		metrics:          metrics,
	}
}

func (w *ConnectivityWorker) Run(ctx context.Context) error {
	started := w.clock.Now()
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.evaluate(started)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			w.evaluate(started)
		}
	}
}

func (w *ConnectivityWorker) evaluate(started time.Time) {
	peers := w.peers.PeerCount()
	if w.metrics != nil {
		w.metrics.Peers.Set(float64(peers))
	}
	switch {
	case peers > 0:
		w.status.SetStatus(domain.StatusOnline)
	case w.clock.Since(started) >= w.discoveryTimeout:
		w.status.SetStatus(domain.StatusDegraded)
	}
}
