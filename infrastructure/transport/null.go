package transport

import (
	"context"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/errors"
)

var _ contract.ITransport = (*NullGateway)(nil)

// NullGateway keeps the client in local-only mode.
// Subscriptions are accepted and never fed, publishes fail with ErrTransportUnavailable.
type NullGateway struct {
	log *slog.Logger
}

func NewNullGateway(log *slog.Logger) *NullGateway {
	return &NullGateway{log: log}
}

func (n *NullGateway) Subscribe(topic string, _ contract.MessageHandler) error {
	n.log.Debug("Local-only mode, subscription ignored", "topic", topic)
	return nil
}

func (n *NullGateway) Unsubscribe(string) {}

func (n *NullGateway) Publish(context.Context, string, domain.Message) error {
	return errors.ErrTransportUnavailable
}

func (n *NullGateway) PeerCount() int { return 0 }

func (n *NullGateway) Close() error { return nil }
