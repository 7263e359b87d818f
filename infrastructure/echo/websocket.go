// Package echo carries locally sent messages between instances running on the same device.
// A websocket hub on a loopback port relays envelopes between every instance joined to the
// same channel. The first instance to bind the port becomes the hub, the others dial it.
package echo

import (
	"context"
	errs "errors"
	"fmt"
	"log/slog"
	"mini-chat/contract"
	"mini-chat/domain"
	"mini-chat/errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var _ contract.IEchoBus = (*WebSocketBus)(nil)

type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeHub    Mode = "hub"
	ModeClient Mode = "client"
)

const (
	writeTimeout = 2 * time.Second
	outboxSize   = 64
)

// peer owns one connection. Envelopes wait in outbox and a single writer drains it,
// so a peer that stops reading never blocks a publisher.
type peer struct {
	conn   *websocket.Conn
	outbox chan domain.Envelope
	done   chan struct{}
	once   sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	p := &peer{
		conn:   conn,
		outbox: make(chan domain.Envelope, outboxSize),
		done:   make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// send never blocks. A full outbox means the other side stalled, the peer is closed.
func (p *peer) send(env domain.Envelope) error {
	select {
	case <-p.done:
		return errors.ErrEchoUnavailable
	default:
	}
	select {
	case p.outbox <- env:
		return nil
	default:
		p.close()
		return fmt.Errorf("%w: peer outbox full", errors.ErrEchoUnavailable)
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case env := <-p.outbox:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteJSON(env); err != nil {
				p.close()
				return
			}
		}
	}
}

// close unblocks the reader of the connection, which then unregisters the peer.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// WebSocketBus runs as a supervised worker. Run returns when the hub connection
// drops so the supervisor restarts it, possibly promoting it to hub.
type WebSocketBus struct {
	log     *slog.Logger
	port    int
	channel string

	mu       sync.RWMutex
	mode     Mode
	handlers []contract.EnvelopeHandler
	upstream *peer
	clients  map[string]map[*peer]struct{}
}

func NewWebSocketBus(log *slog.Logger, port int, channel string) *WebSocketBus {
	return &WebSocketBus{
		log:     log,
		port:    port,
		channel: channel,
		mode:    ModeIdle,
		clients: make(map[string]map[*peer]struct{}),
	}
}

func (b *WebSocketBus) Subscribe(handler contract.EnvelopeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish sends the envelope to every other instance of the channel.
// Nothing is delivered back to the local handlers.
func (b *WebSocketBus) Publish(env domain.Envelope) error {
	b.mu.RLock()
	mode, upstream := b.mode, b.upstream
	b.mu.RUnlock()

	switch mode {
	case ModeHub:
		b.relay(b.channel, nil, env)
		return nil
	case ModeClient:
		return upstream.send(env)
	default:
		return errors.ErrEchoUnavailable
	}
}

func (b *WebSocketBus) Mode() Mode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

func (b *WebSocketBus) Run(ctx context.Context) error {
	defer b.setMode(ModeIdle, nil)

	listener, err := net.Listen("tcp", b.address())
	if err == nil {
		return b.serve(ctx, listener)
	}
	b.log.Debug("Echo port taken, joining the hub", "port", b.port)
	return b.join(ctx)
}

func (b *WebSocketBus) serve(ctx context.Context, listener net.Listener) error {
	router := mux.NewRouter()
	router.HandleFunc("/echo/{channel}", b.handleClient).Methods(http.MethodGet)
	server := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	b.setMode(ModeHub, nil)
	b.log.Info("Echo hub listening", "address", listener.Addr().String(), "channel", b.channel)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errs.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		b.closeClients()
		_ = server.Close()
		return nil
	case err := <-errChan:
		b.closeClients()
		return fmt.Errorf("echo hub stopped: %w", err)
	}
}

func (b *WebSocketBus) handleClient(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	upgrader := websocket.Upgrader{
		// Only loopback listeners exist, any local origin is accepted.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("Echo upgrade failed", "error", err)
		return
	}
	p := newPeer(conn)
	defer func() {
		b.removeClient(channel, p)
		p.close()
	}()

	total := b.addClient(channel, p)
	b.log.Debug("Echo client joined", "channel", channel, "clients", total)

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			b.log.Debug("Echo client left", "channel", channel, "error", err)
			return
		}
		b.relay(channel, p, env)
		if channel == b.channel {
			b.deliver(env)
		}
	}
}

func (b *WebSocketBus) join(ctx context.Context) error {
	url := fmt.Sprintf("ws://%s/echo/%s", b.address(), b.channel)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEchoUnavailable, err)
	}
	upstream := newPeer(conn)
	defer upstream.close()

	b.setMode(ModeClient, upstream)
	b.log.Info("Joined echo hub", "url", url)

	go func() {
		select {
		case <-ctx.Done():
			upstream.close()
		case <-upstream.done:
		}
	}()

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", errors.ErrEchoUnavailable, err)
		}
		b.deliver(env)
	}
}

// relay forwards to every client of the channel except the origin.
func (b *WebSocketBus) relay(channel string, origin *peer, env domain.Envelope) {
	b.mu.RLock()
	snapshot := make([]*peer, 0, len(b.clients[channel]))
	for p := range b.clients[channel] {
		if p != origin {
			snapshot = append(snapshot, p)
		}
	}
	b.mu.RUnlock()

	for _, p := range snapshot {
		if err := p.send(env); err != nil {
			b.log.Debug("Dropping echo client", "channel", channel, "error", err)
			b.removeClient(channel, p)
		}
	}
}

func (b *WebSocketBus) deliver(env domain.Envelope) {
	b.mu.RLock()
	handlers := append([]contract.EnvelopeHandler(nil), b.handlers...)
	b.mu.RUnlock()
	for _, handler := range handlers {
		handler(env)
	}
}

func (b *WebSocketBus) addClient(channel string, p *peer) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[channel] == nil {
		b.clients[channel] = make(map[*peer]struct{})
	}
	b.clients[channel][p] = struct{}{}
	return len(b.clients[channel])
}

func (b *WebSocketBus) removeClient(channel string, p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients[channel], p)
	if len(b.clients[channel]) == 0 {
		delete(b.clients, channel)
	}
}

func (b *WebSocketBus) closeClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, peers := range b.clients {
		for p := range peers {
			p.close()
		}
		delete(b.clients, channel)
	}
}

func (b *WebSocketBus) setMode(mode Mode, upstream *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
	b.upstream = upstream
}

func (b *WebSocketBus) address() string {
	return fmt.Sprintf("127.0.0.1:%d", b.port)
}
