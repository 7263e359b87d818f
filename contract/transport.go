//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=../mocks/mock_transport.go -package=mocks
package contract

import (
	"context"
	"mini-chat/domain"
)

type MessageHandler func(msg domain.Message)

type EnvelopeHandler func(env domain.Envelope)

// ITransport is the pub/sub network boundary.
// Every method must be callable before peers are connected.
type ITransport interface {
	Subscribe(topic string, handler MessageHandler) error
	Unsubscribe(topic string)
	Publish(ctx context.Context, topic string, msg domain.Message) error
	PeerCount() int
}

// IEchoBus broadcasts sends between instances running on the same device.
type IEchoBus interface {
	Publish(env domain.Envelope) error
	Subscribe(handler EnvelopeHandler)
}
