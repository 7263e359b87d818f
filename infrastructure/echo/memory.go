package echo

import (
	"mini-chat/contract"
	"mini-chat/domain"
	"sync"
)

// MemoryHub links buses living in the same process, one per engine.
type MemoryHub struct {
	mu    sync.RWMutex
	buses []*MemoryBus
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{}
}

// Join returns a new bus attached to the hub.
func (h *MemoryHub) Join() *MemoryBus {
	bus := &MemoryBus{hub: h}
	h.mu.Lock()
	h.buses = append(h.buses, bus)
	h.mu.Unlock()
	return bus
}

var _ contract.IEchoBus = (*MemoryBus)(nil)

type MemoryBus struct {
	hub      *MemoryHub
	mu       sync.RWMutex
	handlers []contract.EnvelopeHandler
}

// Publish delivers synchronously to every other bus of the hub.
func (b *MemoryBus) Publish(env domain.Envelope) error {
	b.hub.mu.RLock()
	buses := append([]*MemoryBus(nil), b.hub.buses...)
	b.hub.mu.RUnlock()

	for _, other := range buses {
		if other != b {
			other.deliver(env)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(handler contract.EnvelopeHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *MemoryBus) deliver(env domain.Envelope) {
	b.mu.RLock()
	handlers := append([]contract.EnvelopeHandler(nil), b.handlers...)
	b.mu.RUnlock()
	for _, handler := range handlers {
		handler(env)
	}
}
