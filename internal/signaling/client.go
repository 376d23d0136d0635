package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beaconrtc/beacon/internal/metrics"
	"github.com/beaconrtc/beacon/internal/ratelimit"
)

const writeWait = 10 * time.Second

// client is one live websocket connection. The read loop runs in the HTTP
// handler goroutine; writes are funneled through a buffered send channel so a
// slow reader never blocks the hub.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	send      chan []byte
	closeOnce sync.Once
}

func newClient(id string, hub *Hub, conn *websocket.Conn, queueSize int) *client {
	return &client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, queueSize),
	}
}

// enqueue hands a frame to the write pump without blocking. A full queue
// drops the frame; the connection itself stays up.
func (c *client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.hub.metrics.Inc(metrics.DropSendQueueFull)
		return false
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) readPump() {
	defer c.hub.dropClient(c)

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxEventBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.WSIdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.WSIdleTimeout))
	})

	bucket := ratelimit.NewBucket(nil, float64(cfg.MaxEventsPerSecond), float64(cfg.MaxEventsPerSecond))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.WSIdleTimeout))

		if !bucket.Allow() {
			c.hub.metrics.Inc(metrics.DropRateLimited)
			c.hub.logger.Warn("connection rate limited", "conn", c.id)
			c.writeClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.hub.metrics.Inc(metrics.DropMalformedEvent)
			c.writeClose(websocket.CloseUnsupportedData, "malformed event")
			return
		}

		c.hub.dispatch(c, env)
	}
}

func (c *client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeClose sends a close frame directly; the read loop is about to exit so
// the write pump may already be gone.
func (c *client) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
