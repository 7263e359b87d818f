package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mini-chat/infrastructure/api"
	"mini-chat/infrastructure/search"
	"mini-chat/infrastructure/storage"
	"mini-chat/internal"
	"mini-chat/observability"
	"mini-chat/projection"
	"mini-chat/runtime"
	"mini-chat/runtime/workers"
	"mini-chat/services"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mini-chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a fatal server error.
// Deferred closes run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB) & search index (Bluge)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.NewIndex(logger, config.BlugeFilepath)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	kv := storage.NewBadgerKV(db, logger)
	identityRepository := storage.NewIdentityRepository(kv)
	identity, err := storage.LoadOrCreate(identityRepository)
	if err != nil {
		return exitRuntime, fmt.Errorf("identity error: %w", err)
	}
	registry := runtime.NewRegistry(logger, storage.NewSessionRepository(kv))
	store := projection.NewMessageStore(logger, storage.NewMessageRepository(kv, logger))

	// 3. Metrics, transport & echo bus
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	gateway, err := buildTransport(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		logger.Info("Closing transport...")
		_ = gateway.Close()
	}()
	echoBus := buildEchoBus(config, logger)

	moderator, err := buildModerator(config, charReplacement, logger)
	if err != nil {
		return exitConfig, err
	}

	// 4. Engine & orchestration
	clock := clockwork.NewRealClock()
	engine := runtime.NewEngine(logger, clock, identity, registry, store, gateway, echoBus.bus,
		identityRepository, metrics, config.EventBufferSize, config.PublishQueueSize)
	sup := workers.NewSupervisor(logger, metrics, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(logger, clock, sup, engine, gateway, echoBus.bus, metrics,
		runtime.OrchestratorConfig{
			SinkTimeout:          config.SinkTimeout,
			PublishTimeout:       config.PublishTimeout,
			DiscoveryTimeout:     config.DiscoveryTimeout,
			ConnectivityInterval: config.ConnectivityInterval,
			MetricInterval:       config.MetricInterval,
		},
		registry, store, runtime.LoaderFunc(func() error { return index.Rebuild(store) }),
	)
	if err = orchestrator.Load(); err != nil {
		return exitRuntime, err
	}

	chatService := services.NewChatService(logger, engine, index, moderator, gateway)
	origins := internal.SplitList(config.AllowedOrigins)
	push := api.NewPushHub(logger, chatService, origins)
	orchestrator.AddSinks(index, push)
	if echoBus.worker != nil {
		orchestrator.AddWorkers(echoBus.worker)
	}

	var health *workers.HealthMonitoringWorker
	if monitor, err := observability.NewMonitor(logger); err != nil {
		logger.Warn("Process monitor unavailable", "error", err)
	} else if config.MetricInterval > 0 {
		health = workers.NewHealthMonitoringWorker(logger, clock, monitor, config.MetricInterval)
		orchestrator.AddWorkers(health)
	}

	if config.DebugPort > 0 {
		debugServer := startDebugServer(config, db, engine, gateway, health, logger)
		defer func() { _ = debugServer.Close() }()
	}

	errChan := make(chan error, 1)

	// 5. Start the Engine (Workers and Fanout)
	go func() {
		logger.Info("Starting orchestrator...", "user_id", identity.UserID)
		orchestrator.Start(ctx)
	}()

	// 6. HTTP Server Setup
	address := fmt.Sprintf("%s:%d", config.HTTPHost, config.HTTPPort)
	handler := api.NewHandler(logger, chatService, push, reg)
	server := &http.Server{
		Addr:              address,
		Handler:           api.NewHTTPHandler(handler, origins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		orchestrator.Stop()
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func startDebugServer(config internal.Config, db *badger.DB, engine *runtime.Engine,
	peers services.PeerCounter, health *workers.HealthMonitoringWorker, logger *slog.Logger) *http.Server {
	stats := func() map[string]any {
		res := map[string]any{
			"status": engine.Status(),
			"peers":  peers.PeerCount(),
			"user":   engine.Identity().UserID,
		}
		if health != nil {
			for k, v := range health.Latest().AsMap() {
				res[k] = v
			}
		}
		return res
	}
	url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
	logger.Info("Debug Badger inspector available", "url", url)
	return internal.StartDebugServer(logger, db, config.DebugPort, "/inspect", internal.ChatMapper, stats)
}
