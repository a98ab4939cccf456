// Package session owns the connection to the room server and the client's
// room membership.
//
// A Manager is not safe for concurrent use. It is driven from a single
// goroutine (the client event loop) which feeds it both user intents and
// transport lifecycle events.
package session

import (
	"errors"
	"log/slog"

	"collabnotes/internal/notify"
	"collabnotes/internal/transport"
	"collabnotes/internal/wire"
)

// Transport is the connection handle a Manager owns.
type Transport interface {
	Send(wire.Message) error
	Close() error
}

// State is the session state machine position.
type State int

const (
	Disconnected State = iota
	ConnectedNoRoom
	ConnectedInRoom
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedNoRoom:
		return "connected"
	case ConnectedInRoom:
		return "in-room"
	}
	return "unknown"
}

// Manager tracks connection health and room membership.
type Manager struct {
	transport Transport
	connected bool
	roomID    string
	username  string
	failing   bool

	notifier     notify.Notifier
	logger       *slog.Logger
	onRoomChange []func(prev, next string)
}

// NewManager returns a Manager in the Disconnected state.
func NewManager(n notify.Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{notifier: n, logger: logger}
}

// OnRoomChange registers fn to run after every membership transition,
// including joins that re-enter the same room and drops caused by disconnect.
func (m *Manager) OnRoomChange(fn func(prev, next string)) {
	m.onRoomChange = append(m.onRoomChange, fn)
}

// State returns the current state machine position.
func (m *Manager) State() State {
	switch {
	case !m.connected:
		return Disconnected
	case m.roomID == "":
		return ConnectedNoRoom
	}
	return ConnectedInRoom
}

// Connected reports live transport health.
func (m *Manager) Connected() bool { return m.connected }

// RoomID returns the joined room, or "" when there is none.
func (m *Manager) RoomID() string { return m.roomID }

// Username returns the name used for the current membership.
func (m *Manager) Username() string { return m.username }

// Transport returns the live connection handle, nil when disconnected.
func (m *Manager) Transport() Transport {
	if !m.connected {
		return nil
	}
	return m.transport
}

// Attach records a successful connect. Any previous transport is closed.
func (m *Manager) Attach(t Transport) {
	if m.transport != nil && m.transport != t {
		m.transport.Close()
	}
	m.transport = t
	m.connected = true
	m.failing = false
	m.logger.Info("connected to room server")
}

// ConnectFailed records a failed connect attempt. Only the first failure of
// a run of failures is shown to the user.
func (m *Manager) ConnectFailed(err error) {
	m.connected = false
	m.logger.Error("connection failed", "err", err)
	if !m.failing {
		m.failing = true
		notify.Error(m.notifier, "Failed to connect to server")
	}
}

// Detach records a transport-level disconnect of t. A severed connection
// always abandons the room. Disconnects of a transport that has already
// been replaced are ignored.
func (m *Manager) Detach(t Transport, err error) {
	if t != m.transport {
		return
	}
	m.transport = nil
	m.connected = false
	if err != nil {
		m.logger.Warn("disconnected from room server", "err", err)
	} else {
		m.logger.Info("disconnected from room server")
	}
	if m.roomID != "" {
		m.setRoom("", "")
	}
}

// JoinRoom leaves the current room if there is one, then asks to join
// roomID. Membership is recorded without waiting for the server. Returns
// false when the intent was dropped: disconnected, or empty arguments.
func (m *Manager) JoinRoom(roomID, username string) bool {
	if !m.connected || roomID == "" || username == "" {
		m.logger.Debug("join ignored", "room", roomID, "connected", m.connected)
		return false
	}
	if m.roomID != "" {
		m.Emit(wire.LeaveRoom{RoomID: m.roomID})
	}
	if !m.Emit(wire.JoinRoom{RoomID: roomID, Username: username}) {
		if m.roomID != "" {
			m.setRoom("", "")
		}
		return false
	}
	m.setRoom(roomID, username)
	notify.Success(m.notifier, "Joined room: %s", roomID)
	return true
}

// LeaveRoom relinquishes the current room. Returns false when there was
// nothing to leave or the transport is down.
func (m *Manager) LeaveRoom() bool {
	if !m.connected || m.roomID == "" {
		return false
	}
	m.Emit(wire.LeaveRoom{RoomID: m.roomID})
	m.setRoom("", "")
	notify.Info(m.notifier, "Left the room")
	return true
}

// Emit sends msg on the live transport. It reports whether the message was
// handed to the transport. A full send buffer is surfaced as a warning; the
// message is dropped.
func (m *Manager) Emit(msg wire.Message) bool {
	if !m.connected || m.transport == nil {
		return false
	}
	if err := m.transport.Send(msg); err != nil {
		m.logger.Warn("emit failed", "event", msg.Event(), "err", err)
		if errors.Is(err, transport.ErrSendBufferFull) {
			notify.Warning(m.notifier, "Connection is busy, %s was not sent", msg.Event())
		}
		return false
	}
	m.logger.Debug("emit", "event", msg.Event(), "room", m.roomID)
	return true
}

// Close leaves the room and closes the transport. The Manager ends up
// Disconnected.
func (m *Manager) Close() error {
	if m.roomID != "" && m.connected {
		m.Emit(wire.LeaveRoom{RoomID: m.roomID})
	}
	t := m.transport
	m.transport = nil
	m.connected = false
	if m.roomID != "" {
		m.setRoom("", "")
	}
	if t == nil {
		return nil
	}
	return t.Close()
}

func (m *Manager) setRoom(roomID, username string) {
	prev := m.roomID
	m.roomID = roomID
	m.username = username
	for _, fn := range m.onRoomChange {
		fn(prev, roomID)
	}
}
