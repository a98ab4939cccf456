// Package notes keeps the client's view of the notes and presence of the
// joined room. The server is the source of truth: local edits are sent as
// intents and only take effect when the server's broadcast comes back.
package notes

import (
	"log/slog"
	"time"

	"collabnotes/internal/notify"
	"collabnotes/internal/wire"
)

// Room is the membership the synchronizer is scoped to.
type Room interface {
	RoomID() string
	Emit(wire.Message) bool
}

// Patch names the fields of the current note an edit replaces. Nil fields
// are kept.
type Patch struct {
	Title   *string
	Content *string
}

// SetTitle returns a patch replacing the title.
func SetTitle(title string) Patch { return Patch{Title: &title} }

// SetContent returns a patch replacing the body.
func SetContent(content string) Patch { return Patch{Content: &content} }

// SetBoth returns a patch replacing title and body.
func SetBoth(title, content string) Patch { return Patch{Title: &title, Content: &content} }

// Apply returns a copy of n with the patch merged in.
func (p Patch) Apply(n wire.Note) wire.Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	return n
}

// Synchronizer holds NoteCollection, CurrentNote and the roster. It is not
// safe for concurrent use; the client event loop owns it.
type Synchronizer struct {
	room     Room
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	notes   []wire.Note
	current *wire.Note
	users   []wire.User
	version uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces time.Now for lastModified stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New returns an empty Synchronizer bound to room.
func New(room Room, n notify.Notifier, logger *slog.Logger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{room: room, notifier: n, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateNote asks the server for a new note. Nothing is inserted locally;
// the note appears when note_created arrives with its server-assigned id.
func (s *Synchronizer) CreateNote(title string) bool {
	roomID := s.room.RoomID()
	if roomID == "" {
		return false
	}
	return s.room.Emit(wire.CreateNote{RoomID: roomID, Title: title})
}

// UpdateNote merges p into a copy of the current note, stamps it and sends
// it as a full replacement. The local copy is not touched: the broadcast
// echo is what updates it.
func (s *Synchronizer) UpdateNote(p Patch) bool {
	roomID := s.room.RoomID()
	if roomID == "" || s.current == nil {
		return false
	}
	next := p.Apply(*s.current)
	next.LastModified = s.stamp(s.current.LastModified)
	return s.room.Emit(wire.UpdateNote{RoomID: roomID, Note: next})
}

// stamp returns the local clock in milliseconds, never at or below prev.
func (s *Synchronizer) stamp(prev int64) int64 {
	ts := wire.Millis(s.now())
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}

// SetUserTyping tells the room whether the local user is editing.
func (s *Synchronizer) SetUserTyping(isTyping bool) bool {
	roomID := s.room.RoomID()
	if roomID == "" {
		return false
	}
	return s.room.Emit(wire.Typing{RoomID: roomID, IsTyping: isTyping})
}

// OpenNote makes the collection entry with id the current note.
func (s *Synchronizer) OpenNote(id string) bool {
	if s.room.RoomID() == "" {
		return false
	}
	i := s.index(id)
	if i < 0 {
		return false
	}
	n := s.notes[i]
	s.current = &n
	s.changed()
	return true
}

// CloseNote clears the current note without touching the collection.
func (s *Synchronizer) CloseNote() bool {
	if s.current == nil {
		return false
	}
	s.current = nil
	s.changed()
	return true
}

// Reset empties every view. Called whenever the room changes.
func (s *Synchronizer) Reset() {
	if s.notes == nil && s.current == nil && s.users == nil {
		return
	}
	s.notes = nil
	s.current = nil
	s.users = nil
	s.changed()
}

// Notes returns a copy of the collection in arrival order.
func (s *Synchronizer) Notes() []wire.Note {
	return append([]wire.Note(nil), s.notes...)
}

// Current returns the open note.
func (s *Synchronizer) Current() (wire.Note, bool) {
	if s.current == nil {
		return wire.Note{}, false
	}
	return *s.current, true
}

// Users returns a copy of the roster.
func (s *Synchronizer) Users() []wire.User {
	return append([]wire.User(nil), s.users...)
}

// Version increases on every state change.
func (s *Synchronizer) Version() uint64 { return s.version }

func (s *Synchronizer) changed() { s.version++ }

func (s *Synchronizer) index(id string) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

// upsert replaces the entry with n's id or appends n.
func (s *Synchronizer) upsert(n wire.Note) {
	if i := s.index(n.ID); i >= 0 {
		s.notes[i] = n
		return
	}
	s.notes = append(s.notes, n)
}
