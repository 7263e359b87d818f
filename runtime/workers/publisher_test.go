package workers

import (
	"context"
	"fmt"
	"log/slog"
	"mini-chat/domain"
	"mini-chat/mocks"
	"mini-chat/observability"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func envelope(id string) domain.Envelope {
	content := "hi"
	return domain.Envelope{
		Topic:   domain.LobbyTopic,
		Payload: domain.Message{ID: id, Sender: "ID_aaaa1111", Kind: domain.KindText, Content: &content},
	}
}

func TestPublisherWorker_Publishes_Queued_Messages(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockITransport(ctrl)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	outbound := make(chan domain.Envelope, 2)
	worker := NewPublisherWorker(log, transport, outbound, time.Second, metrics)

	// Given the first publish fails and the second succeeds
	gomock.InOrder(
		transport.EXPECT().Publish(gomock.Any(), domain.LobbyTopic, envelope("m1").Payload).Return(fmt.Errorf("no route")),
		transport.EXPECT().Publish(gomock.Any(), domain.LobbyTopic, envelope("m2").Payload).Return(nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When two envelopes are queued
	outbound <- envelope("m1")
	outbound <- envelope("m2")

	// Then both are attempted and the failure is only counted
	req.Eventually(func() bool {
		return testutil.ToFloat64(metrics.Published.WithLabelValues(observability.ResultOK)) == 1
	}, time.Second, 5*time.Millisecond)
	req.Equal(float64(1), testutil.ToFloat64(metrics.Published.WithLabelValues(observability.ResultError)))
}

func TestPublisherWorker_Timeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockITransport(ctrl)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	worker := NewPublisherWorker(log, transport, nil, 10*time.Millisecond, metrics)

	// Given a transport that never answers before the deadline
	transport.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, topic string, msg domain.Message) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	// When a message is published
	worker.publish(context.Background(), envelope("m1"))

	// Then it is reported as a timeout
	req.Equal(float64(1), testutil.ToFloat64(metrics.Published.WithLabelValues(observability.ResultTimeout)))
}
