package httpapi

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

// wsConn adapts a gorilla websocket to core.Conn. Frames are queued and
// written by a single pump goroutine.
type wsConn struct {
	ws        *websocket.Conn
	cfg       WebSocketConfig
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       pslog.Logger
}

func newWSConn(ws *websocket.Conn, cfg WebSocketConfig, log pslog.Logger) *wsConn {
	return &wsConn{
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendQueue),
		done: make(chan struct{}),
		log:  log,
	}
}

// Send queues a frame without blocking.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return schema.ErrSessionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return schema.ErrSessionClosed
	default:
		c.log.Warn("ws send queue full, frame dropped", "queue", cap(c.send))
		return schema.ErrSendQueueFull
	}
}

// Close stops the write pump. The pump sends a close frame and closes the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("ws write failed", "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ws ping failed", "err", err)
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

// flush writes frames already queued when the connection is closed.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readLoop calls handle for every text frame until the peer goes away or
// the connection is closed locally.
func (c *wsConn) readLoop(handle func(data []byte)) error {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}
