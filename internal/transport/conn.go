// Package transport is the client end of the persistent websocket
// connection to the room server. One Conn carries named events in both
// directions; inbound frames are handed to a single callback in arrival order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collabnotes/internal/config"
	"collabnotes/internal/wire"
)

var (
	// ErrClosed is returned by Send after the connection has gone away.
	ErrClosed = errors.New("transport: connection closed")
	// ErrSendBufferFull is returned when the writer is not keeping up.
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// Handlers receives everything the connection produces. OnEnvelope is
// called from the read goroutine, one frame at a time; OnClose is called
// exactly once after the last OnEnvelope. The error is nil when the
// connection was closed locally.
type Handlers struct {
	OnEnvelope func(wire.Envelope)
	OnClose    func(error)
}

// Conn is a websocket connection speaking the envelope protocol.
type Conn struct {
	ws     *websocket.Conn
	cfg    config.Transport
	h      Handlers
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	mu          sync.Mutex
	closed      bool
	localClose  bool
	shutdownErr error
	once        sync.Once
}

// Dial opens a websocket to url. There is no long-polling fallback; the
// handshake either upgrades or fails.
func Dial(ctx context.Context, url string, cfg config.Transport, h Handlers, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	c := newConn(ws, cfg, h, logger)
	go c.writePump()
	go c.readPump()
	return c, nil
}

func newConn(ws *websocket.Conn, cfg config.Transport, h Handlers, logger *slog.Logger) *Conn {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = config.DefaultTransport().SendBuffer
	}
	return &Conn{
		ws:     ws,
		cfg:    cfg,
		h:      h,
		logger: logger,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send frames m and queues it for the writer. It never blocks.
func (c *Conn) Send(m wire.Message) error {
	frame, err := wire.EncodeMessage(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Done is closed once both pumps have stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends a normal close frame and tears the connection down.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.localClose = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout()))
	return c.ws.Close()
}

func (c *Conn) readPump() {
	var readErr error
	defer func() { c.shutdown(readErr) }()

	c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
	})
	c.ws.SetPingHandler(func(data string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout()))
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.writeTimeout()))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		env, err := wire.ParseEnvelope(frame)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		if c.h.OnEnvelope != nil {
			c.h.OnEnvelope(env)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown runs once, when the read side stops for any reason.
func (c *Conn) shutdown(readErr error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		local := c.localClose
		c.mu.Unlock()

		var err error
		if !local {
			err = readErr
			if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = fmt.Errorf("%w: %v", ErrClosed, readErr)
			}
		}
		c.shutdownErr = err
		close(c.done)
		c.ws.Close()
		if c.h.OnClose != nil {
			c.h.OnClose(err)
		}
	})
}

// Err returns why the connection ended, nil if it is still open or was
// closed locally.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.shutdownErr
	default:
		return nil
	}
}

func (c *Conn) pingInterval() time.Duration {
	if c.cfg.PingInterval > 0 {
		return c.cfg.PingInterval
	}
	return config.DefaultTransport().PingInterval
}

func (c *Conn) readTimeout() time.Duration {
	if c.cfg.ReadTimeout > 0 {
		return c.cfg.ReadTimeout
	}
	return config.DefaultTransport().ReadTimeout
}

func (c *Conn) writeTimeout() time.Duration {
	if c.cfg.WriteTimeout > 0 {
		return c.cfg.WriteTimeout
	}
	return config.DefaultTransport().WriteTimeout
}
