package main

import (
	"context"
	errs "errors"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/errors"
	"mini-chat/infrastructure/echo"
	"mini-chat/infrastructure/transport"
	"mini-chat/internal"
	"mini-chat/moderation"
	"os"

	"github.com/dgraph-io/badger/v4"
)

type closableTransport interface {
	contract.ITransport
	Close() error
}

type echoSetup struct {
	bus    contract.IEchoBus
	worker contract.Worker
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}
	return options
}

// buildTransport falls back to local-only mode when p2p is disabled.
func buildTransport(ctx context.Context, config internal.Config, logger *slog.Logger) (closableTransport, error) {
	if !config.P2PEnabled {
		logger.Info("P2P disabled, running in local-only mode")
		return transport.NewNullGateway(logger), nil
	}
	gateway, err := transport.NewGossipGateway(ctx, logger, transport.GossipConfig{
		ListenAddrs:    internal.SplitList(config.P2PListenAddrs),
		BootstrapPeers: internal.SplitList(config.P2PBootstrapPeers),
		MDNS:           config.P2PMDNS,
		ServiceTag:     config.P2PServiceTag,
		MaxMessageSize: config.P2PMaxMessageSize,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("P2P node started", "addrs", gateway.Addrs())
	return gateway, nil
}

// buildEchoBus disables cross-instance echo when ECHO_PORT is 0.
func buildEchoBus(config internal.Config, logger *slog.Logger) echoSetup {
	if config.EchoPort == 0 {
		return echoSetup{bus: echo.NewMemoryHub().Join()}
	}
	bus := echo.NewWebSocketBus(logger, config.EchoPort, config.EchoChannel)
	return echoSetup{bus: bus, worker: bus}
}

func buildModerator(config internal.Config, char rune, logger *slog.Logger) (*moderation.Moderator, error) {
	loader := moderation.NewCensoredLoader(nil)
	dir := "."
	if config.CensoredDir != "" {
		loader = moderation.NewCensoredLoader(os.DirFS(config.CensoredDir))
	}
	data, err := loader.LoadAll(dir, internal.SplitList(config.CensoredWords)...)
	switch {
	case errs.Is(err, errors.ErrEmptyWords):
		return moderation.NewModerator(nil, char, logger)
	case err != nil:
		return nil, fmt.Errorf("failed to load censored words: %w", err)
	}
	logger.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, char, logger)
}
