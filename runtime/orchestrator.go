package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/observability"
	"mini-chat/runtime/workers"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type OrchestratorConfig struct {
	SinkTimeout          time.Duration
	PublishTimeout       time.Duration
	DiscoveryTimeout     time.Duration
	ConnectivityInterval time.Duration
	MetricInterval       time.Duration
}

// Loader restores a persisted store.
type Loader interface {
	Load() error
}

type LoaderFunc func() error

func (f LoaderFunc) Load() error { return f() }

// Orchestrator boots the client: restore state, subscribe every session,
// plug the echo bus and run the supervised workers.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	clock      clockwork.Clock
	supervisor contract.ISupervisor
	engine     *Engine
	loaders    []Loader
	transport  contract.ITransport
	echo       contract.IEchoBus
	metrics    *observability.Metrics
	config     OrchestratorConfig
	sinks      []contract.EventSink
	extra      []contract.Worker
}

func NewOrchestrator(log *slog.Logger, clock clockwork.Clock, supervisor contract.ISupervisor, engine *Engine,
	transport contract.ITransport, echo contract.IEchoBus, metrics *observability.Metrics,
	config OrchestratorConfig, loaders ...Loader) *Orchestrator {
	return &Orchestrator{
		log:        log,
		clock:      clock,
		supervisor: supervisor,
		engine:     engine,
		loaders:    loaders,
		transport:  transport,
		echo:       echo,
		metrics:    metrics,
		config:     config,
	}
}

// AddSinks registers observers fed by the event fanout. Must be called before Start.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sinks...)
}

// AddWorkers registers infrastructure workers (echo bus, http server) supervised with the core ones.
func (o *Orchestrator) AddWorkers(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, w...)
}

// Load restores every store. Sessions must be known before SubscribeAll runs.
func (o *Orchestrator) Load() error {
	for _, l := range o.loaders {
		if err := l.Load(); err != nil {
			return fmt.Errorf("restore state: %w", err)
		}
	}
	return nil
}

// Start subscribes the restored sessions and blocks while the supervisor runs.
func (o *Orchestrator) Start(ctx context.Context) {
	o.engine.SubscribeAll()
	o.echo.Subscribe(o.engine.HandleEnvelope)

	o.mu.Lock()
	o.supervisor.Add(o.prepareWorkers()...)
	o.supervisor.Add(o.extra...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

func (o *Orchestrator) prepareWorkers() []contract.Worker {
	fanout := workers.NewEventFanout(o.log, o.engine.Events(), o.config.SinkTimeout, o.sinks...)
	publisher := workers.NewPublisherWorker(o.log, o.transport, o.engine.Outbound(), o.config.PublishTimeout, o.metrics)
	connectivity := workers.NewConnectivityWorker(o.log, o.clock, o.transport, o.engine,
		o.config.DiscoveryTimeout, o.config.ConnectivityInterval, o.metrics)
	res := []contract.Worker{fanout, publisher, connectivity}

	if o.metrics != nil && o.config.MetricInterval > 0 {
		res = append(res, workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
			{Name: "events", Channel: o.engine.Events()},
			{Name: "outbound", Channel: o.engine.Outbound()},
		}, o.metrics, o.config.MetricInterval))
	}
	return res
}

// Stop cancels the supervised workers, Start returns once they are done.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
