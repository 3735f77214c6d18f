package web

import (
	"sync"

	"github.com/google/uuid"
)

// broker fans committed events out to stream subscribers. A subscriber
// that falls behind misses messages rather than stalling consensus.
type broker struct {
	mu      sync.RWMutex
	clients map[string]chan []byte
}

func newBroker() *broker {
	return &broker{
		clients: make(map[string]chan []byte),
	}
}

// subscribe registers a client and returns its id and message channel.
func (b *broker) subscribe(buffer int) (string, <-chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[id] = ch
	return id, ch
}

func (b *broker) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(ch)
	}
}

func (b *broker) broadcast(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, client := range b.clients {
		select {
		case client <- data:
		default:
			// Client is slow/blocked, skip
		}
	}
}

func (b *broker) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
