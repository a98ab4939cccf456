package notes

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"collabnotes/internal/notify"
	"collabnotes/internal/wire"
)

type fakeRoom struct {
	id   string
	sent []wire.Message
}

func (r *fakeRoom) RoomID() string { return r.id }

func (r *fakeRoom) Emit(m wire.Message) bool {
	r.sent = append(r.sent, m)
	return true
}

func newTest(roomID string) (*Synchronizer, *fakeRoom, *notify.Recorder) {
	room := &fakeRoom{id: roomID}
	rec := &notify.Recorder{}
	clock := time.UnixMilli(1_700_000_000_000)
	s := New(room, rec, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(func() time.Time { return clock }))
	return s, room, rec
}

func note(id, title, content string, ts int64) wire.Note {
	return wire.Note{ID: id, Title: title, Content: content, LastModified: ts}
}

func TestNoteUpdatedLastAppliedWins(t *testing.T) {
	s, _, _ := newTest("R")
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1), note("n2", "b", "", 1)}})
	s.OpenNote("n1")

	// Arrival order wins, not lastModified.
	s.Handle(wire.NoteUpdated{Note: note("n1", "from bob", "", 30)})
	s.Handle(wire.NoteUpdated{Note: note("n1", "from ana", "", 20)})

	cur, ok := s.Current()
	if !ok || cur != note("n1", "from ana", "", 20) {
		t.Errorf("current = %+v", cur)
	}
	if got := s.Notes()[0]; got != cur {
		t.Errorf("collection entry %+v diverged from current %+v", got, cur)
	}
}

func TestNoteUpdatedForOtherNote(t *testing.T) {
	s, _, _ := newTest("R")
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1), note("n2", "b", "", 1)}})
	s.OpenNote("n1")
	s.Handle(wire.NoteUpdated{Note: note("n2", "b2", "", 2)})

	if cur, _ := s.Current(); cur.ID != "n1" || cur.Title != "a" {
		t.Errorf("current changed: %+v", cur)
	}
	if got := s.Notes()[1]; got.Title != "b2" {
		t.Errorf("n2 = %+v", got)
	}

	s.Handle(wire.NoteUpdated{Note: note("n9", "ghost", "", 2)})
	if len(s.Notes()) != 2 {
		t.Errorf("an update for an unknown id was inserted: %v", s.Notes())
	}
}

func TestLeaveDropsLaterEvents(t *testing.T) {
	s, room, _ := newTest("R")
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1)}})
	s.Handle(wire.OnlineUsers{Users: []wire.User{{ID: "u1", Username: "ana"}}})
	s.OpenNote("n1")

	room.id = ""
	s.Reset()
	events := []wire.Inbound{
		wire.NotesList{Notes: []wire.Note{note("n2", "x", "", 1)}},
		wire.NoteCreated{Note: note("n3", "y", "", 1)},
		wire.CurrentNote{Note: &wire.Note{ID: "n4"}},
		wire.NoteUpdated{Note: note("n1", "z", "", 9)},
		wire.OnlineUsers{Users: []wire.User{{ID: "u2"}}},
		wire.UserTyping{UserID: "u1", IsTyping: true},
	}
	for _, e := range events {
		if s.Handle(e) {
			t.Errorf("%s processed outside a room", e.Event())
		}
	}
	if len(s.Notes()) != 0 || len(s.Users()) != 0 {
		t.Errorf("state repopulated: %v %v", s.Notes(), s.Users())
	}
	if _, ok := s.Current(); ok {
		t.Error("current note repopulated")
	}
}

func TestCreateNoteWaitsForServer(t *testing.T) {
	s, room, rec := newTest("R")
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1)}})

	if !s.CreateNote("Todo") {
		t.Fatal("create dropped")
	}
	if len(s.Notes()) != 1 {
		t.Fatalf("placeholder inserted: %v", s.Notes())
	}
	if !reflect.DeepEqual(room.sent, []wire.Message{wire.CreateNote{RoomID: "R", Title: "Todo"}}) {
		t.Errorf("sent %v", room.sent)
	}

	created := note("srv-1", "Todo", "", 5)
	s.Handle(wire.NoteCreated{Note: created})
	if len(s.Notes()) != 2 {
		t.Fatalf("len = %d, want 2", len(s.Notes()))
	}
	if cur, _ := s.Current(); cur != created {
		t.Errorf("current = %+v, want %+v", cur, created)
	}
	if rec.Count(notify.LevelSuccess) != 1 {
		t.Errorf("notifications = %v", rec.All())
	}

	// A repeated note_created replaces the entry instead of adding one.
	s.Handle(wire.NoteCreated{Note: created})
	if len(s.Notes()) != 2 {
		t.Errorf("duplicate id inserted: %v", s.Notes())
	}
}

func TestTypingPatch(t *testing.T) {
	s, _, _ := newTest("R")
	s.Handle(wire.OnlineUsers{Users: []wire.User{{ID: "u1", IsTyping: false}}})

	s.Handle(wire.UserTyping{UserID: "u1", IsTyping: true})
	if want := []wire.User{{ID: "u1", IsTyping: true}}; !reflect.DeepEqual(s.Users(), want) {
		t.Errorf("roster = %v, want %v", s.Users(), want)
	}
	s.Handle(wire.UserTyping{UserID: "u2", IsTyping: false})
	if want := []wire.User{{ID: "u1", IsTyping: true}}; !reflect.DeepEqual(s.Users(), want) {
		t.Errorf("absent id changed roster: %v", s.Users())
	}
}

func TestUpdateNoteMergesAndStamps(t *testing.T) {
	s, room, _ := newTest("R")
	orig := note("n1", "Old", "x", 1_000)
	s.Handle(wire.CurrentNote{Note: &orig})

	title := "New"
	if !s.UpdateNote(Patch{Title: &title}) {
		t.Fatal("update dropped")
	}
	if len(room.sent) != 1 {
		t.Fatalf("sent %v", room.sent)
	}
	up, ok := room.sent[0].(wire.UpdateNote)
	if !ok {
		t.Fatalf("sent %T", room.sent[0])
	}
	if up.RoomID != "R" || up.Note.ID != "n1" || up.Note.Title != "New" || up.Note.Content != "x" {
		t.Errorf("intent = %+v", up)
	}
	if up.Note.LastModified <= orig.LastModified {
		t.Errorf("lastModified %d not newer than %d", up.Note.LastModified, orig.LastModified)
	}
	if cur, _ := s.Current(); cur != orig {
		t.Errorf("current mutated locally: %+v", cur)
	}
}

func TestUpdateNoteStampNeverRegresses(t *testing.T) {
	s, room, _ := newTest("R")
	future := note("n1", "t", "", 1_900_000_000_000)
	s.Handle(wire.CurrentNote{Note: &future})
	s.UpdateNote(SetContent("y"))
	up := room.sent[0].(wire.UpdateNote)
	if up.Note.LastModified != future.LastModified+1 {
		t.Errorf("lastModified = %d, want %d", up.Note.LastModified, future.LastModified+1)
	}
}

func TestInvalidIntentsAreSilent(t *testing.T) {
	s, room, rec := newTest("")
	if s.CreateNote("x") || s.UpdateNote(SetTitle("x")) || s.SetUserTyping(true) || s.OpenNote("n1") {
		t.Error("intent accepted outside a room")
	}

	room.id = "R"
	if s.UpdateNote(SetTitle("x")) {
		t.Error("update accepted without a current note")
	}
	if len(room.sent) != 0 || len(rec.All()) != 0 {
		t.Errorf("side effects: %v %v", room.sent, rec.All())
	}
}

func TestSetUserTyping(t *testing.T) {
	s, room, _ := newTest("R")
	v := s.Version()
	s.SetUserTyping(true)
	if !reflect.DeepEqual(room.sent, []wire.Message{wire.Typing{RoomID: "R", IsTyping: true}}) {
		t.Errorf("sent %v", room.sent)
	}
	if s.Version() != v {
		t.Error("typing intent changed local state")
	}
}

func TestCurrentNoteEvent(t *testing.T) {
	s, _, _ := newTest("R")
	n := note("n1", "a", "", 1)
	s.Handle(wire.CurrentNote{Note: &n})
	if len(s.Notes()) != 1 {
		t.Errorf("current note not merged into collection: %v", s.Notes())
	}
	s.Handle(wire.CurrentNote{})
	if _, ok := s.Current(); ok {
		t.Error("null current_note did not close the note")
	}
	if len(s.Notes()) != 1 {
		t.Error("closing removed the note from the collection")
	}
}

func TestNotesListRefreshesCurrent(t *testing.T) {
	s, _, _ := newTest("R")
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1), note("n1", "dup", "", 2), note("n2", "b", "", 1)}})
	if got := s.Notes(); len(got) != 2 || got[0].Title != "dup" {
		t.Fatalf("notes = %v", got)
	}
	s.OpenNote("n2")

	s.Handle(wire.NotesList{Notes: []wire.Note{note("n2", "b2", "", 3)}})
	if cur, _ := s.Current(); cur.Title != "b2" {
		t.Errorf("current = %+v", cur)
	}
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1)}})
	if _, ok := s.Current(); ok {
		t.Error("current survived removal from the list")
	}
}

func TestPresenceNotifications(t *testing.T) {
	s, _, rec := newTest("R")
	v := s.Version()
	s.Handle(wire.UserJoined{Username: "bo"})
	s.Handle(wire.UserLeft{Username: "bo"})
	want := []notify.Notification{
		{Level: notify.LevelSuccess, Message: "bo joined the room"},
		{Level: notify.LevelInfo, Message: "bo left the room"},
	}
	if !reflect.DeepEqual(rec.All(), want) {
		t.Errorf("notifications = %v", rec.All())
	}
	if s.Version() != v {
		t.Error("presence notices changed state")
	}
}

func TestOpenCloseAndReset(t *testing.T) {
	s, _, _ := newTest("R")
	s.Handle(wire.NotesList{Notes: []wire.Note{note("n1", "a", "", 1)}})
	if s.OpenNote("missing") {
		t.Error("opened an unknown note")
	}
	if !s.OpenNote("n1") || !s.CloseNote() || s.CloseNote() {
		t.Error("open/close sequence failed")
	}
	s.Reset()
	if len(s.Notes()) != 0 {
		t.Error("Reset kept notes")
	}
	v := s.Version()
	s.Reset()
	if s.Version() != v {
		t.Error("resetting empty state bumped the version")
	}
}
