package client

import (
	"context"
	"log/slog"
	"time"

	"collabnotes/internal/config"
	"collabnotes/internal/editor"
	"collabnotes/internal/notify"
	"collabnotes/internal/session"
	"collabnotes/internal/transport"
)

// Dialer opens the transport. The handlers must be installed on the
// connection before it delivers anything.
type Dialer interface {
	Dial(ctx context.Context, h transport.Handlers) (session.Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, h transport.Handlers) (session.Transport, error)

func (f DialerFunc) Dial(ctx context.Context, h transport.Handlers) (session.Transport, error) {
	return f(ctx, h)
}

// WebsocketDialer dials the fixed server endpoint.
type WebsocketDialer struct {
	URL       string
	Transport config.Transport
	Logger    *slog.Logger
}

func (d WebsocketDialer) Dial(ctx context.Context, h transport.Handlers) (session.Transport, error) {
	conn, err := transport.Dial(ctx, d.URL, d.Transport, h, d.Logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Client.
type Options struct {
	Dialer   Dialer
	Notifier notify.Notifier
	Logger   *slog.Logger

	TitleDebounce   time.Duration
	ContentDebounce time.Duration

	// Reconnect redials with Backoff after a failed connect or a drop.
	// Without it a failure is reported once and the client stays down.
	Reconnect bool
	Backoff   transport.Backoff

	// Clock stamps lastModified. Defaults to time.Now.
	Clock func() time.Time
	// Scheduler runs debounce callbacks. Defaults to timers that deliver
	// on the event loop.
	Scheduler editor.Scheduler
}

// FromConfig builds Options for the websocket transport.
func FromConfig(cfg *config.Agent, url string, n notify.Notifier, logger *slog.Logger) Options {
	return Options{
		Dialer:          WebsocketDialer{URL: url, Transport: cfg.Transport, Logger: logger},
		Notifier:        n,
		Logger:          logger,
		TitleDebounce:   cfg.TitleDebounce,
		ContentDebounce: cfg.ContentDebounce,
		Reconnect:       cfg.Reconnect,
		Backoff:         transport.DefaultBackoff(),
	}
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.TitleDebounce <= 0 {
		o.TitleDebounce = 300 * time.Millisecond
	}
	if o.ContentDebounce <= 0 {
		o.ContentDebounce = 500 * time.Millisecond
	}
	if o.Backoff == (transport.Backoff{}) {
		o.Backoff = transport.DefaultBackoff()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}
