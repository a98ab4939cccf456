// Package client wires the session manager, the note synchronizer and the
// editor into one engine driven by a single event loop.
//
// Every intent, inbound broadcast, transport lifecycle change and debounce
// timer is turned into a closure and run on the loop goroutine, so the
// components underneath never see concurrent calls. Intent methods are
// fire-and-forget; renderers read through Snapshot and wait on Changes.
package client

import (
	"context"
	"errors"
	"time"

	"collabnotes/internal/editor"
	"collabnotes/internal/notes"
	"collabnotes/internal/session"
	"collabnotes/internal/transport"
	"collabnotes/internal/wire"
)

// ErrClosed is returned by reads once Run has returned.
var ErrClosed = errors.New("client: closed")

const opsBuffer = 256

// Client is the room and note synchronization engine.
type Client struct {
	opts Options

	mgr  *session.Manager
	sync *notes.Synchronizer
	ed   *editor.Editor

	ops     chan func()
	changes chan struct{}
	done    chan struct{}
	ctx     context.Context // Run's context, read on the loop only
	last    stamp
}

// New builds a Client. Nothing happens until Run is called.
func New(opts Options) *Client {
	opts.setDefaults()
	c := &Client{
		opts:    opts,
		ops:     make(chan func(), opsBuffer),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.mgr = session.NewManager(opts.Notifier, opts.Logger.With("component", "session"))
	c.sync = notes.New(c.mgr, opts.Notifier, opts.Logger.With("component", "notes"), notes.WithClock(opts.Clock))
	sched := opts.Scheduler
	if sched == nil {
		sched = loopScheduler{c}
	}
	c.ed = editor.New(c.sync, sched, opts.TitleDebounce, opts.ContentDebounce)
	c.mgr.OnRoomChange(func(prev, next string) {
		c.ed.Reset()
		c.sync.Reset()
		c.opts.Logger.Info("room changed", "from", prev, "to", next)
	})
	return c
}

// Run connects and processes events until ctx is cancelled, then leaves
// the room and closes the transport.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	c.ctx = ctx
	c.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			c.ed.Reset()
			if err := c.mgr.Close(); err != nil {
				c.opts.Logger.Debug("closing transport", "err", err)
			}
			return nil
		case op := <-c.ops:
			op()
			c.settle()
		}
	}
}

// Done is closed when Run returns.
func (c *Client) Done() <-chan struct{} { return c.done }

// Changes receives a value after any batch of state changes. Signals are
// coalesced; read Snapshot to see the current state.
func (c *Client) Changes() <-chan struct{} { return c.changes }

// JoinRoom joins roomID as username, leaving the current room first.
// Ignored while disconnected.
func (c *Client) JoinRoom(roomID, username string) {
	c.post(func() { c.mgr.JoinRoom(roomID, username) })
}

// LeaveRoom leaves the current room.
func (c *Client) LeaveRoom() {
	c.post(func() { c.mgr.LeaveRoom() })
}

// CreateNote asks the server for a new note titled title.
func (c *Client) CreateNote(title string) {
	c.post(func() { c.sync.CreateNote(title) })
}

// UpdateNote sends the current note with p merged in, bypassing the
// editor's debounce windows.
func (c *Client) UpdateNote(p notes.Patch) {
	c.post(func() { c.sync.UpdateNote(p) })
}

// SetUserTyping sends the typing flag directly.
func (c *Client) SetUserTyping(isTyping bool) {
	c.post(func() { c.sync.SetUserTyping(isTyping) })
}

// OpenNote opens the note with id from the collection.
func (c *Client) OpenNote(id string) {
	c.post(func() { c.sync.OpenNote(id) })
}

// CloseNote closes the open note and returns to the list.
func (c *Client) CloseNote() {
	c.post(func() {
		c.ed.Close()
		c.sync.CloseNote()
	})
}

// EditTitle replaces the editor's title buffer.
func (c *Client) EditTitle(title string) {
	c.post(func() { c.ed.SetTitle(title) })
}

// EditContent replaces the editor's body buffer.
func (c *Client) EditContent(content string) {
	c.post(func() { c.ed.SetContent(content) })
}

// Save sends the editor buffer now.
func (c *Client) Save() {
	c.post(func() { c.ed.Save() })
}

// Snapshot returns the state after every intent posted before the call
// has been applied.
func (c *Client) Snapshot(ctx context.Context) (State, error) {
	ch := make(chan State, 1)
	if err := c.postCtx(ctx, func() { ch <- c.state() }); err != nil {
		return State{}, err
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-c.done:
		return State{}, ErrClosed
	}
}

func (c *Client) state() State {
	s := State{
		Session:   c.mgr.State(),
		Connected: c.mgr.Connected(),
		RoomID:    c.mgr.RoomID(),
		Username:  c.mgr.Username(),
		Notes:     c.sync.Notes(),
		Users:     c.sync.Users(),
		Editor:    c.editorState(),
	}
	if n, ok := c.sync.Current(); ok {
		s.Current = &n
	}
	return s
}

func (c *Client) editorState() EditorState {
	return EditorState{
		Title:   c.ed.Title(),
		Content: c.ed.Content(),
		Typing:  c.ed.Typing(),
		Pending: c.ed.Pending(),
	}
}

// settle runs after every loop step: the editor follows the current note
// and renderers are signalled if anything visible moved.
func (c *Client) settle() {
	c.ed.Sync()
	st := stamp{
		version: c.sync.Version(),
		session: c.mgr.State(),
		roomID:  c.mgr.RoomID(),
		editor:  c.editorState(),
	}
	if st == c.last {
		return
	}
	c.last = st
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Client) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.ops <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) postCtx(ctx context.Context, fn func()) error {
	select {
	case c.ops <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// link ties a dialed transport to the handlers installed on it. Frames are
// held back until the loop has attached the transport.
type link struct {
	t     session.Transport
	ready chan struct{}
}

func (c *Client) handlers(l *link) transport.Handlers {
	return transport.Handlers{
		OnEnvelope: func(env wire.Envelope) {
			if !c.await(l) {
				return
			}
			c.post(func() { c.receive(l, env) })
		},
		OnClose: func(err error) {
			if !c.await(l) {
				return
			}
			c.post(func() { c.dropped(l, err) })
		},
	}
}

func (c *Client) await(l *link) bool {
	select {
	case <-l.ready:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) receive(l *link, env wire.Envelope) {
	if c.mgr.Transport() != l.t {
		return
	}
	msg, err := wire.DecodeInbound(env)
	if err != nil {
		c.opts.Logger.Warn("dropping inbound frame", "event", env.Event, "err", err)
		return
	}
	c.sync.Handle(msg)
}

func (c *Client) dropped(l *link, err error) {
	if c.mgr.Transport() != l.t {
		return
	}
	c.mgr.Detach(l.t, err)
	if c.opts.Reconnect && err != nil {
		c.connect(c.ctx)
	}
}

// connect dials off the loop and posts the outcome back to it.
func (c *Client) connect(ctx context.Context) {
	go func() {
		var (
			l    *link
			conn session.Transport
		)
		attempt := func(ctx context.Context) error {
			l = &link{ready: make(chan struct{})}
			t, err := c.opts.Dialer.Dial(ctx, c.handlers(l))
			if err != nil {
				return err
			}
			conn = t
			return nil
		}

		var err error
		if c.opts.Reconnect {
			err = transport.Retry(ctx, c.opts.Backoff, attempt, func(err error, wait time.Duration) {
				c.opts.Logger.Debug("redialing", "in", wait, "err", err)
				c.post(func() { c.mgr.ConnectFailed(err) })
			})
		} else {
			err = attempt(ctx)
		}
		if err != nil {
			if ctx.Err() == nil {
				c.post(func() { c.mgr.ConnectFailed(err) })
			}
			return
		}

		l.t = conn
		ok := c.post(func() {
			c.mgr.Attach(conn)
			close(l.ready)
		})
		if !ok {
			conn.Close()
		}
	}()
}
