package transport

import (
	"context"
	"fmt"
	"log/slog"
	"mini-chat/domain"
	"mini-chat/errors"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newLocalGateway(t *testing.T, bootstrap ...string) *GossipGateway {
	return newGateway(t, GossipConfig{
		ListenAddrs:    []string{"/ip4/127.0.0.1/tcp/0"},
		BootstrapPeers: bootstrap,
	})
}

func newGateway(t *testing.T, cfg GossipConfig) *GossipGateway {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	g, err := NewGossipGateway(context.Background(), log, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGossipGateway_Delivers_Between_Peers(t *testing.T) {
	if testing.Short() {
		t.Skip("opens local sockets")
	}
	req := require.New(t)
	alice := newLocalGateway(t)
	bob := newLocalGateway(t, alice.Addrs()...)
	topic := domain.PrivateTopic("ID_alice", "ID_bob")

	received := make(chan domain.Message, 16)
	req.NoError(bob.Subscribe(topic, func(msg domain.Message) { received <- msg }))
	req.NoError(alice.Subscribe(topic, func(domain.Message) {}))

	// Given both peers are connected
	req.Eventually(func() bool { return alice.PeerCount() > 0 && bob.PeerCount() > 0 }, 10*time.Second, 50*time.Millisecond)

	// When alice publishes until the mesh carries it to bob
	content := "hello bob"
	var got domain.Message
	req.Eventually(func() bool {
		msg := domain.Message{ID: fmt.Sprintf("m-%d", time.Now().UnixNano()), Sender: "ID_alice", Kind: domain.KindText, Content: &content}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = alice.Publish(ctx, topic, msg)
		select {
		case got = <-received:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 15*time.Second, 10*time.Millisecond)

	// Then bob decoded the payload
	req.Equal("hello bob", got.Text())
	req.Equal("ID_alice", got.Sender)
}

func TestGossipGateway_Works_Without_Peers(t *testing.T) {
	if testing.Short() {
		t.Skip("opens local sockets")
	}
	req := require.New(t)
	g := newLocalGateway(t, "not a multiaddr")

	// Subscribing twice is a no-op and publishing without peers doesn't block
	req.NoError(g.Subscribe(domain.LobbyTopic, func(domain.Message) {}))
	req.NoError(g.Subscribe(domain.LobbyTopic, func(domain.Message) {}))
	content := "alone"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req.NoError(g.Publish(ctx, domain.LobbyTopic, domain.Message{ID: "m1", Sender: "u1", Kind: domain.KindText, Content: &content}))
	req.Equal(0, g.PeerCount())

	g.Unsubscribe(domain.LobbyTopic)
	g.Unsubscribe(domain.LobbyTopic)
	req.NoError(g.Subscribe(domain.LobbyTopic, func(domain.Message) {}))
}

func TestGossipGateway_Rejects_Oversized_Messages(t *testing.T) {
	if testing.Short() {
		t.Skip("opens local sockets")
	}
	req := require.New(t)

	// Given a gateway limited to 512 bytes
	g := newGateway(t, GossipConfig{ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"}, MaxMessageSize: 512})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// When publishing below and above the limit
	small, large := "fits", strings.Repeat("x", 1024)
	errSmall := g.Publish(ctx, domain.LobbyTopic, domain.Message{ID: "m1", Sender: "u1", Kind: domain.KindText, Content: &small})
	errLarge := g.Publish(ctx, domain.LobbyTopic, domain.Message{ID: "m2", Sender: "u1", Kind: domain.KindText, Content: &large})

	// Then only the oversized one is refused
	req.NoError(errSmall)
	req.ErrorIs(errLarge, errors.ErrMessageTooLarge)
}

func TestGossipConfig_ServiceTag(t *testing.T) {
	req := require.New(t)
	req.Equal(DefaultServiceTag, GossipConfig{}.serviceTag())
	req.Equal("office", GossipConfig{ServiceTag: "office"}.serviceTag())
}

func TestNullGateway(t *testing.T) {
	req := require.New(t)
	g := NewNullGateway(logs.GetLoggerFromLevel(slog.LevelDebug))

	req.NoError(g.Subscribe(domain.LobbyTopic, func(domain.Message) {}))
	req.ErrorIs(g.Publish(context.Background(), domain.LobbyTopic, domain.Message{}), errors.ErrTransportUnavailable)
	req.Zero(g.PeerCount())
}
