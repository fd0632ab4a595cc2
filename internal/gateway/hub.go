// Package gateway serves the breakout feed to dashboard WebSocket clients.
//
// A Hub is itself a notification.Notifier: every batch it is handed is
// stamped with a sequence number, kept in a short replay buffer and fanned
// out to connected clients. Batches produced by another process arrive
// through Redis Pub/Sub (see PubSubRouter).
package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
	"stocksignal/internal/notification"
)

// Envelope is the JSON frame sent to clients for one breakout batch.
type Envelope struct {
	Type    string                  `json:"type"`
	Seq     int64                   `json:"seq"`
	TS      time.Time               `json:"ts"`
	Level   notification.AlertLevel `json:"level"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Events  []model.BreakoutEvent   `json:"events"`
	Replay  bool                    `json:"replay,omitempty"`
}

// Hub manages WebSocket clients and fans breakout batches out to them.
type Hub struct {
	sendMu sync.Mutex // held from seq stamping through fan-out

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay  *ReplayBuffer
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewHub creates a hub keeping the last replaySize batches for reconnecting
// clients. m may be nil.
func NewHub(replaySize int, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		now:     time.Now,
		metrics: m,
	}
}

// Send implements notification.Notifier. It never blocks on slow clients;
// a client whose queue is full misses the frame and can backfill by seq.
// Concurrent sends are serialized so the replay buffer and every client
// see batches in seq order.
func (h *Hub) Send(ctx context.Context, alert notification.Alert) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	env := Envelope{
		Type:    "breakouts",
		Seq:     h.Seq() + 1,
		TS:      h.now().UTC(),
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		Events:  alert.Events,
	}
	data, err := sonic.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.seq = env.Seq
	h.mu.Unlock()
	h.broadcast(env.Seq, data)
	return nil
}

func (h *Hub) broadcast(seq int64, data []byte) {
	h.replay.Push(seq, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("[gateway] client queue full, dropped seq=%d", seq)
		}
	}
}

// HandleWSRequest registers an upgraded connection. Batches with a sequence
// number above since are replayed first.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)

	log.Printf("[gateway] ws client connected (%d total)", count)

	if since >= 0 {
		client.sendBacklog(since)
	}
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.metrics.SetWSClients(count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the latest batch.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Since returns buffered envelopes with seq greater than since, oldest first.
func (h *Hub) Since(since int64) [][]byte {
	entries := h.replay.Since(since)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}
