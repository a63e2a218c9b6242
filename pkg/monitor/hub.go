// Package monitor streams command status transitions to WebSocket clients.
package monitor

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/clevent/pkg/commandqueue"
	"github.com/rs/zerolog"
)

// StatusEvent is one observed threshold of one command.
type StatusEvent struct {
	Seq       int64  `json:"seq"`
	Command   string `json:"command"`
	CommandID string `json:"command_id"`
	Queue     string `json:"queue,omitempty"`
	Threshold string `json:"threshold"`
	Status    string `json:"status"`
	Code      int    `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

// Client is a connected WebSocket subscriber.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	writeMu sync.Mutex
}

// WriteMessage serialises writes; gorilla connections allow one writer.
func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.Conn.WriteMessage(messageType, data)
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
	}
}

func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

func (r *ClientRegistry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Hub fans StatusEvents out to WebSocket clients and in-process subscribers.
type Hub struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     atomic.Int64

	subMu  sync.RWMutex
	subs   map[int]chan StatusEvent
	nextID int
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: NewClientRegistry(),
		logger:  logger.With().Str("component", "monitor").Logger(),
		subs:    make(map[int]chan StatusEvent),
	}
}

// Clients returns the hub's registry.
func (h *Hub) Clients() *ClientRegistry { return h.clients }

// Observe registers callbacks on every threshold of c so each transition is
// published under name.
func (h *Hub) Observe(name string, c *commandqueue.Command) error {
	queue := ""
	if q := c.Queue(); q != nil {
		queue = q.Name()
		if queue == "" {
			queue = q.ID()
		}
	}

	for _, th := range []commandqueue.Status{
		commandqueue.StatusSubmitted,
		commandqueue.StatusRunning,
		commandqueue.StatusComplete,
	} {
		threshold := th
		err := c.AddCallback(threshold, func(cmd *commandqueue.Command, st commandqueue.Status) {
			h.Publish(StatusEvent{
				Command:   name,
				CommandID: cmd.ID(),
				Queue:     queue,
				Threshold: threshold.String(),
				Status:    st.String(),
				Code:      int(st),
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Subscribe returns a channel receiving every published event and a cancel
// function. Events are dropped for a subscriber whose buffer is full.
func (h *Hub) Subscribe(buffer int) (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, buffer)

	h.subMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subMu.Lock()
			delete(h.subs, id)
			h.subMu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps ev with a sequence number and timestamp and delivers it.
func (h *Hub) Publish(ev StatusEvent) {
	ev.Seq = h.seq.Add(1)
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	h.subMu.RLock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn().Int64("seq", ev.Seq).Msg("Subscriber buffer full, event dropped")
		}
	}
	h.subMu.RUnlock()

	h.broadcast(ev)
}

func (h *Hub) broadcast(ev StatusEvent) {
	clients := h.clients.GetAll()
	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Int64("seq", ev.Seq).Msg("Failed to marshal event")
		return
	}

	failed := 0
	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Int64("seq", ev.Seq).
				Msg("Failed to broadcast to client")
			failed++
		}
	}

	h.logger.Debug().
		Str("command", ev.Command).
		Str("threshold", ev.Threshold).
		Int64("seq", ev.Seq).
		Int("clients", len(clients)).
		Int("failed", failed).
		Msg("Event broadcast complete")
}
