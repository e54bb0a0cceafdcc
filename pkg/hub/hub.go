package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/events"
)

// Hub maintains the set of viewers and broadcasts messages to them. Viewers
// that cannot keep up are disconnected rather than slowing the sessions.
type Hub struct {
	name   string
	logger *slog.Logger

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	count   int
	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It owns the client set and returns when ctx
// is cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) error {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		for c := range h.clients {
			h.remove(c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			h.logger.Info("viewer connected", "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("viewer disconnected", "remaining", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.remove(c)
					h.logger.Warn("dropped slow viewer", "remaining", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// Broadcast queues msg for every viewer without blocking.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast channel full, dropping message")
	}
}

// BroadcastFrame sends an annotated JPEG to viewers.
func (h *Hub) BroadcastFrame(jpeg []byte) {
	if h.ClientCount() == 0 {
		return
	}
	h.Broadcast(NewBinaryMessage(jpeg))
}

// BroadcastAlert sends an announced alert to viewers as JSON.
func (h *Hub) BroadcastAlert(ev events.Alert) {
	h.broadcastEnvelope(Envelope{Type: "alert", Alert: &ev, Time: ev.Timestamp})
}

// BroadcastText sends a free-text announcement to viewers.
func (h *Hub) BroadcastText(text string) {
	h.broadcastEnvelope(Envelope{Type: "speak", Text: text, Time: time.Now()})
}

func (h *Hub) broadcastEnvelope(env Envelope) {
	if h.ClientCount() == 0 {
		return
	}
	msg, err := encodeEnvelope(env)
	if err != nil {
		h.logger.Warn("encode envelope", "error", err)
		return
	}
	h.Broadcast(msg)
}

// ClientCount returns the number of connected viewers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were discarded because the hub lagged.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub loop is active
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
