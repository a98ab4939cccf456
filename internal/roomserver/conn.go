package roomserver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabnotes/internal/config"
	"collabnotes/internal/wire"
)

// conn is one connected agent. Room fields are guarded by the hub's lock.
type conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	cfg    config.Transport
	logger *slog.Logger

	roomID   string
	username string
	typing   bool
}

func newConn(ws *websocket.Conn, cfg config.Transport, logger *slog.Logger) *conn {
	id := uuid.NewString()
	return &conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger.With("conn", id),
	}
}

func (c *conn) user() wire.User {
	return wire.User{ID: c.id, Username: c.username, IsTyping: c.typing}
}

// enqueue hands a frame to the writer. A full buffer means the peer is
// not reading; the connection is closed instead of blocking the hub.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.close()
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// readPump decodes intents until the peer goes away, then unregisters.
func (c *conn) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "err", err)
			}
			return
		}
		env, err := wire.ParseEnvelope(frame)
		if err != nil {
			c.logger.Warn("error decoding frame", "err", err)
			continue
		}
		intent, err := wire.DecodeIntent(env)
		if err != nil {
			c.logger.Warn("error decoding intent", "event", env.Event, "err", err)
			h.metrics.errors.WithLabelValues(string(env.Event)).Inc()
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
		if err := h.handle(ctx, c, intent); err != nil {
			c.logger.Warn("event failed", "event", env.Event, "err", err)
		}
		cancel()
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
