package wire

import (
	"encoding/json"
	"fmt"
)

// Message is any typed payload that can be framed in an Envelope.
type Message interface {
	Event() Event
	Payload() any
}

// Inbound is the closed set of server-to-client messages.
type Inbound interface {
	Message
	inbound()
}

// Intent is the closed set of client-to-server messages.
type Intent interface {
	Message
	intent()
}

// EncodeMessage frames m.
func EncodeMessage(m Message) ([]byte, error) {
	return Encode(m.Event(), m.Payload())
}

// CurrentNote replaces the open note. A nil Note closes it.
type CurrentNote struct{ Note *Note }

// NotesList replaces the room's note collection.
type NotesList struct{ Notes []Note }

// NoteUpdated carries the authoritative value of an edited note.
type NoteUpdated struct{ Note Note }

// NoteCreated carries a note the server just created with its canonical id.
type NoteCreated struct{ Note Note }

// OnlineUsers replaces the room roster.
type OnlineUsers struct{ Users []User }

// UserTyping patches one roster entry's typing flag.
type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// UserJoined is informational; the roster comes from OnlineUsers.
type UserJoined struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

// UserLeft is informational; the roster comes from OnlineUsers.
type UserLeft struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

func (CurrentNote) Event() Event { return EventCurrentNote }
func (NotesList) Event() Event   { return EventNotesList }
func (NoteUpdated) Event() Event { return EventNoteUpdated }
func (NoteCreated) Event() Event { return EventNoteCreated }
func (OnlineUsers) Event() Event { return EventOnlineUsers }
func (UserTyping) Event() Event  { return EventUserTyping }
func (UserJoined) Event() Event  { return EventUserJoined }
func (UserLeft) Event() Event    { return EventUserLeft }

func (m CurrentNote) Payload() any { return m.Note }
func (m NotesList) Payload() any {
	if m.Notes == nil {
		return []Note{}
	}
	return m.Notes
}
func (m NoteUpdated) Payload() any { return m.Note }
func (m NoteCreated) Payload() any { return m.Note }
func (m OnlineUsers) Payload() any {
	if m.Users == nil {
		return []User{}
	}
	return m.Users
}
func (m UserTyping) Payload() any { return m }
func (m UserJoined) Payload() any { return m }
func (m UserLeft) Payload() any   { return m }

func (CurrentNote) inbound() {}
func (NotesList) inbound()   {}
func (NoteUpdated) inbound() {}
func (NoteCreated) inbound() {}
func (OnlineUsers) inbound() {}
func (UserTyping) inbound()  {}
func (UserJoined) inbound()  {}
func (UserLeft) inbound()    {}

// JoinRoom requests membership of RoomID under Username.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// LeaveRoom relinquishes membership of RoomID.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// CreateNote asks the server to create a note. The id is assigned server-side.
type CreateNote struct {
	RoomID string `json:"roomId"`
	Title  string `json:"title"`
}

// UpdateNote proposes a full replacement of Note.
type UpdateNote struct {
	RoomID string `json:"roomId"`
	Note   Note   `json:"note"`
}

// Typing signals whether the local user is editing.
type Typing struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

func (JoinRoom) Event() Event   { return EventJoinRoom }
func (LeaveRoom) Event() Event  { return EventLeaveRoom }
func (CreateNote) Event() Event { return EventCreateNote }
func (UpdateNote) Event() Event { return EventUpdateNote }
func (Typing) Event() Event     { return EventTyping }

func (m JoinRoom) Payload() any   { return m }
func (m LeaveRoom) Payload() any  { return m }
func (m CreateNote) Payload() any { return m }
func (m UpdateNote) Payload() any { return m }
func (m Typing) Payload() any     { return m }

func (JoinRoom) intent()   {}
func (LeaveRoom) intent()  {}
func (CreateNote) intent() {}
func (UpdateNote) intent() {}
func (Typing) intent()     {}

// DecodeInbound turns a server frame into its typed message.
func DecodeInbound(env Envelope) (Inbound, error) {
	switch env.Event {
	case EventCurrentNote:
		var n *Note
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &n); err != nil {
				return nil, fmt.Errorf("wire: %s: %w", env.Event, err)
			}
		}
		return CurrentNote{Note: n}, nil
	case EventNotesList:
		notes, err := decodeAs[[]Note](env)
		if err != nil {
			return nil, err
		}
		return NotesList{Notes: notes}, nil
	case EventNoteUpdated:
		n, err := decodeAs[Note](env)
		if err != nil {
			return nil, err
		}
		return NoteUpdated{Note: n}, nil
	case EventNoteCreated:
		n, err := decodeAs[Note](env)
		if err != nil {
			return nil, err
		}
		return NoteCreated{Note: n}, nil
	case EventOnlineUsers:
		users, err := decodeAs[[]User](env)
		if err != nil {
			return nil, err
		}
		return OnlineUsers{Users: users}, nil
	case EventUserTyping:
		return as[UserTyping, Inbound](env)
	case EventUserJoined:
		return as[UserJoined, Inbound](env)
	case EventUserLeft:
		return as[UserLeft, Inbound](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// DecodeIntent turns a client frame into its typed message.
func DecodeIntent(env Envelope) (Intent, error) {
	switch env.Event {
	case EventJoinRoom:
		return as[JoinRoom, Intent](env)
	case EventLeaveRoom:
		return as[LeaveRoom, Intent](env)
	case EventCreateNote:
		return as[CreateNote, Intent](env)
	case EventUpdateNote:
		return as[UpdateNote, Intent](env)
	case EventTyping:
		return as[Typing, Intent](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func decodeAs[T any](env Envelope) (T, error) {
	var v T
	err := env.decode(&v)
	return v, err
}

// as decodes the payload into T and returns it as the interface M.
func as[T any, M Message](env Envelope) (M, error) {
	var zero M
	v, err := decodeAs[T](env)
	if err != nil {
		return zero, err
	}
	m, ok := any(v).(M)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return m, nil
}
