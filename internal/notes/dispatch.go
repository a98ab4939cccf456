package notes

import (
	"collabnotes/internal/notify"
	"collabnotes/internal/wire"
)

// Handle applies one server broadcast. Nothing is applied while no room is
// joined; the return value reports whether the message was processed.
func (s *Synchronizer) Handle(msg wire.Inbound) bool {
	if s.room.RoomID() == "" {
		s.logger.Debug("dropping event outside a room", "event", msg.Event())
		return false
	}
	switch m := msg.(type) {
	case wire.CurrentNote:
		s.onCurrentNote(m)
	case wire.NotesList:
		s.onNotesList(m)
	case wire.NoteUpdated:
		s.onNoteUpdated(m)
	case wire.NoteCreated:
		s.onNoteCreated(m)
	case wire.OnlineUsers:
		s.users = append([]wire.User(nil), m.Users...)
	case wire.UserTyping:
		s.onUserTyping(m)
	case wire.UserJoined:
		notify.Success(s.notifier, "%s joined the room", m.Username)
		return true
	case wire.UserLeft:
		notify.Info(s.notifier, "%s left the room", m.Username)
		return true
	default:
		s.logger.Warn("unhandled event", "event", msg.Event())
		return false
	}
	s.changed()
	return true
}

func (s *Synchronizer) onCurrentNote(m wire.CurrentNote) {
	if m.Note == nil {
		s.current = nil
		return
	}
	n := *m.Note
	s.upsert(n)
	s.current = &n
}

func (s *Synchronizer) onNotesList(m wire.NotesList) {
	s.notes = s.notes[:0:0]
	for _, n := range m.Notes {
		s.upsert(n)
	}
	if s.current == nil {
		return
	}
	if i := s.index(s.current.ID); i >= 0 {
		n := s.notes[i]
		s.current = &n
	} else {
		s.current = nil
	}
}

func (s *Synchronizer) onNoteUpdated(m wire.NoteUpdated) {
	n := m.Note
	if s.current != nil && s.current.ID == n.ID {
		s.current = &n
	}
	if i := s.index(n.ID); i >= 0 {
		s.notes[i] = n
	}
}

func (s *Synchronizer) onNoteCreated(m wire.NoteCreated) {
	n := m.Note
	s.upsert(n)
	s.current = &n
	notify.Success(s.notifier, "New note created")
}

func (s *Synchronizer) onUserTyping(m wire.UserTyping) {
	for i := range s.users {
		if s.users[i].ID == m.UserID {
			s.users[i].IsTyping = m.IsTyping
		}
	}
}
