// Package wire defines the named events exchanged between the notes client
// and the room server, their JSON payloads, and the envelope that carries
// them over a websocket text frame.
package wire

// Event is the name of a message on the wire.
type Event string

// Sent from client to server.
const (
	EventJoinRoom   Event = "join_room"
	EventLeaveRoom  Event = "leave_room"
	EventCreateNote Event = "create_note"
	EventUpdateNote Event = "update_note"
	EventTyping     Event = "typing"
)

// Sent from server to clients.
const (
	EventCurrentNote Event = "current_note"
	EventNotesList   Event = "notes_list"
	EventNoteUpdated Event = "note_updated"
	EventNoteCreated Event = "note_created"
	EventOnlineUsers Event = "online_users"
	EventUserTyping  Event = "user_typing"
	EventUserJoined  Event = "user_joined"
	EventUserLeft    Event = "user_left"
)

// Outbound reports whether e is a client-to-server event.
func (e Event) Outbound() bool {
	switch e {
	case EventJoinRoom, EventLeaveRoom, EventCreateNote, EventUpdateNote, EventTyping:
		return true
	}
	return false
}

// Inbound reports whether e is a server-to-client event.
func (e Event) Inbound() bool {
	switch e {
	case EventCurrentNote, EventNotesList, EventNoteUpdated, EventNoteCreated,
		EventOnlineUsers, EventUserTyping, EventUserJoined, EventUserLeft:
		return true
	}
	return false
}

func (e Event) String() string { return string(e) }
