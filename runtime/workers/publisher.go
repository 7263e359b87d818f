package workers

import (
	"context"
	errs "errors"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/errors"
	"mini-chat/observability"
	"time"
)

// PublisherWorker drains the outbound queue into the transport.
// Failures are logged and counted, never retried.
type PublisherWorker struct {
	log       *slog.Logger
	transport contract.ITransport
	outbound  <-chan domain.Envelope
	timeout   time.Duration
	metrics   *observability.Metrics
}

const defaultPublishTimeout = 5 * time.Second

func NewPublisherWorker(log *slog.Logger, transport contract.ITransport, outbound <-chan domain.Envelope,
	timeout time.Duration, metrics *observability.Metrics) *PublisherWorker {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &PublisherWorker{
		log:       log,
		transport: transport,
		outbound:  outbound,
		timeout:   timeout,
		metrics:   metrics,
	}
}

func (w *PublisherWorker) Run(ctx context.Context) error {
	for {
		select {
		case env := <-w.outbound:
			w.publish(ctx, env)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping publisher")
			return nil
		}
	}
}

func (w *PublisherWorker) publish(ctx context.Context, env domain.Envelope) {
	publishCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err := w.transport.Publish(publishCtx, env.Topic, env.Payload)
	switch {
	case err == nil:
		w.record(observability.ResultOK)
	case errs.Is(err, context.DeadlineExceeded), errs.Is(err, errors.ErrTransportTimeout):
		w.log.Warn("Transport publish timed out", "topic", env.Topic, "id", env.Payload.ID)
		w.record(observability.ResultTimeout)
	default:
		w.log.Warn("Transport publish failed", "topic", env.Topic, "id", env.Payload.ID, "error", err)
		w.record(observability.ResultError)
	}
}

func (w *PublisherWorker) record(result string) {
	if w.metrics != nil {
		w.metrics.Published.WithLabelValues(result).Inc()
	}
}
