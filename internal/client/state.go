package client

import (
	"collabnotes/internal/session"
	"collabnotes/internal/wire"
)

// View is which screen a renderer should show.
type View int

const (
	ViewJoin View = iota // no room
	ViewList             // in a room, no note open
	ViewEdit             // a note is open
)

func (v View) String() string {
	switch v {
	case ViewJoin:
		return "join"
	case ViewList:
		return "list"
	case ViewEdit:
		return "edit"
	}
	return "unknown"
}

// EditorState is the live buffer of the open note.
type EditorState struct {
	Title   string
	Content string
	Typing  bool
	Pending bool
}

// State is a point-in-time copy of everything a renderer reads.
type State struct {
	Session   session.State
	Connected bool
	RoomID    string
	Username  string
	Notes     []wire.Note
	Current   *wire.Note
	Users     []wire.User
	Editor    EditorState
}

// View derives the screen from room membership and the open note.
func (s State) View() View {
	switch {
	case s.RoomID == "":
		return ViewJoin
	case s.Current == nil:
		return ViewList
	}
	return ViewEdit
}

// stamp identifies a state for change detection.
type stamp struct {
	version uint64
	session session.State
	roomID  string
	editor  EditorState
}
