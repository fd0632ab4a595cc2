package gateway

import (
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// sendBacklog queues replayed batches, marked so the client can tell them
// from live ones.
func (c *Client) sendBacklog(since int64) {
	for _, e := range c.hub.replay.Since(since) {
		var env Envelope
		if err := sonic.Unmarshal(e.Data, &env); err != nil {
			continue
		}
		env.Replay = true
		data, err := sonic.Marshal(env)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames and {"ping":N} heartbeats; the feed
// is one-way.
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var base struct {
			Ping int64 `json:"ping"`
		}
		if sonic.Unmarshal(msg, &base) != nil || base.Ping == 0 {
			continue
		}
		pong, _ := sonic.Marshal(map[string]interface{}{
			"type":      "pong",
			"ping":      base.Ping,
			"server_ts": time.Now().UnixMilli(),
		})
		c.hub.mu.RLock()
		if c.hub.clients[c] {
			select {
			case c.send <- pong:
			default:
			}
		}
		c.hub.mu.RUnlock()
	}
}
