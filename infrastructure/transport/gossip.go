package transport

import (
	"context"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/errors"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

const (
	DefaultServiceTag     = "mini-chat"
	defaultMaxMessageSize = 1 << 20
)

var _ contract.ITransport = (*GossipGateway)(nil)

type GossipConfig struct {
	ListenAddrs    []string
	BootstrapPeers []string
	MDNS           bool
	ServiceTag     string
	MaxMessageSize int
}

// serviceTag scopes mDNS discovery, only nodes sharing the tag find each other.
func (cfg GossipConfig) serviceTag() string {
	if cfg.ServiceTag == "" {
		return DefaultServiceTag
	}
	return cfg.ServiceTag
}

// GossipGateway is the libp2p gossipsub implementation of the transport.
// Every method may be called before any peer is connected:
// gossipsub keeps the topic mesh and fills it as peers arrive.
type GossipGateway struct {
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	host   host.Host
	pubsub *pubsub.PubSub
	mdns   mdns.Service
	// maxMessageSize bounds the encoded payload, larger messages never reach the wire.
	maxMessageSize int

	mu            sync.Mutex
	topics        map[string]*pubsub.Topic
	subscriptions map[string]*subscription
}

type subscription struct {
	sub    *pubsub.Subscription
	cancel context.CancelFunc
}

func NewGossipGateway(ctx context.Context, log *slog.Logger, cfg GossipConfig) (*GossipGateway, error) {
	var opts []libp2p.Option
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	psOpts := []pubsub.Option{
		pubsub.WithFloodPublish(true),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
		pubsub.WithMaxMessageSize(maxMessageSize),
	}
	gossipCtx, cancel := context.WithCancel(ctx)
	ps, err := pubsub.NewGossipSub(gossipCtx, h, psOpts...)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("failed to initialize gossipsub instance: %w", err)
	}

	g := &GossipGateway{
		log:            log,
		ctx:            gossipCtx,
		cancel:         cancel,
		host:           h,
		pubsub:         ps,
		maxMessageSize: maxMessageSize,
		topics:         make(map[string]*pubsub.Topic),
		subscriptions:  make(map[string]*subscription),
	}

	for _, addr := range cfg.BootstrapPeers {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Warn("Ignoring invalid bootstrap peer", "addr", addr, "error", err)
			continue
		}
		go g.connect(*info)
	}

	if cfg.MDNS {
		g.mdns = mdns.NewMdnsService(h, cfg.serviceTag(), g)
		if err := g.mdns.Start(); err != nil {
			log.Warn("mDNS discovery unavailable", "error", err)
			g.mdns = nil
		}
	}

	log.Info("libp2p host started", "id", h.ID().String(), "addrs", g.Addrs())
	return g, nil
}

// HandlePeerFound is called by mDNS for every peer on the local network.
func (g *GossipGateway) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == g.host.ID() {
		return
	}
	go g.connect(info)
}

func (g *GossipGateway) connect(info peer.AddrInfo) {
	if err := g.host.Connect(g.ctx, info); err != nil {
		g.log.Debug("Unable to connect peer", "peer", info.ID.String(), "error", err)
		return
	}
	g.log.Info("Peer connected", "peer", info.ID.String())
}

// Subscribe is idempotent per topic.
func (g *GossipGateway) Subscribe(topic string, handler contract.MessageHandler) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.subscriptions[topic]; ok {
		return nil
	}
	t, err := g.join(topic)
	if err != nil {
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", errors.ErrTransportUnavailable, topic, err)
	}
	subCtx, cancel := context.WithCancel(g.ctx)
	g.subscriptions[topic] = &subscription{sub: sub, cancel: cancel}
	go g.pump(subCtx, topic, sub, handler)
	return nil
}

func (g *GossipGateway) pump(ctx context.Context, topic string, sub *pubsub.Subscription, handler contract.MessageHandler) {
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			g.log.Debug("Subscription closed", "topic", topic, "error", err)
			return
		}
		// Our own publishes were applied locally before being sent.
		if m.ReceivedFrom == g.host.ID() {
			continue
		}
		msg, err := Decode(m.Data)
		if err != nil {
			g.log.Debug("Dropping undecodable payload", "topic", topic, "peer", m.ReceivedFrom.String(), "error", err)
			continue
		}
		handler(msg)
	}
}

func (g *GossipGateway) Unsubscribe(topic string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.subscriptions[topic]
	if !ok {
		return
	}
	s.cancel()
	s.sub.Cancel()
	delete(g.subscriptions, topic)
	// The topic handle stays joined so a later Publish or Subscribe reuses it.
}

func (g *GossipGateway) Publish(ctx context.Context, topic string, msg domain.Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if len(data) > g.maxMessageSize {
		return fmt.Errorf("%w: %d bytes, limit is %d", errors.ErrMessageTooLarge, len(data), g.maxMessageSize)
	}
	g.mu.Lock()
	t, err := g.join(topic)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := t.Publish(ctx, data); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", errors.ErrTransportTimeout, err)
		}
		return fmt.Errorf("failed to publish to topic %v: %w", topic, err)
	}
	return nil
}

// join must be called with mu held.
func (g *GossipGateway) join(topic string) (*pubsub.Topic, error) {
	if t, ok := g.topics[topic]; ok {
		return t, nil
	}
	t, err := g.pubsub.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("%w: join %s: %v", errors.ErrTransportUnavailable, topic, err)
	}
	g.topics[topic] = t
	return t, nil
}

func (g *GossipGateway) PeerCount() int {
	return len(g.host.Network().Peers())
}

// Addrs returns the dialable multiaddresses of this node, peer id included.
func (g *GossipGateway) Addrs() []string {
	res := make([]string, 0, len(g.host.Addrs()))
	for _, a := range g.host.Addrs() {
		res = append(res, fmt.Sprintf("%s/p2p/%s", a, g.host.ID()))
	}
	return res
}

func (g *GossipGateway) Close() error {
	g.mu.Lock()
	for topic, s := range g.subscriptions {
		s.cancel()
		s.sub.Cancel()
		delete(g.subscriptions, topic)
	}
	g.mu.Unlock()

	if g.mdns != nil {
		_ = g.mdns.Close()
	}
	g.cancel()
	return g.host.Close()
}
