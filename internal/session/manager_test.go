package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"collabnotes/internal/notify"
	"collabnotes/internal/transport"
	"collabnotes/internal/wire"
)

type fakeTransport struct {
	sent   []wire.Message
	fail   error
	closed int
}

func (f *fakeTransport) Send(m wire.Message) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func newTestManager() (*Manager, *notify.Recorder, *[]string) {
	rec := &notify.Recorder{}
	m := NewManager(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var changes []string
	m.OnRoomChange(func(prev, next string) { changes = append(changes, prev+"->"+next) })
	return m, rec, &changes
}

func TestJoinWhileDisconnectedIsIgnored(t *testing.T) {
	m, rec, changes := newTestManager()
	if m.JoinRoom("AB12CD", "ana") {
		t.Fatal("join succeeded without a transport")
	}
	if m.State() != Disconnected || m.RoomID() != "" {
		t.Errorf("state=%v room=%q", m.State(), m.RoomID())
	}
	if len(rec.All()) != 0 || len(*changes) != 0 {
		t.Errorf("unexpected side effects: %v %v", rec.All(), *changes)
	}
}

func TestJoinEmitsAndRecordsOptimistically(t *testing.T) {
	m, rec, changes := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	if m.State() != ConnectedNoRoom {
		t.Fatalf("state = %v", m.State())
	}

	if !m.JoinRoom("AB12CD", "ana") {
		t.Fatal("join dropped")
	}
	if m.State() != ConnectedInRoom || m.RoomID() != "AB12CD" || m.Username() != "ana" {
		t.Errorf("state=%v room=%q user=%q", m.State(), m.RoomID(), m.Username())
	}
	want := []wire.Message{wire.JoinRoom{RoomID: "AB12CD", Username: "ana"}}
	if !reflect.DeepEqual(tr.sent, want) {
		t.Errorf("sent %v, want %v", tr.sent, want)
	}
	if got := rec.All(); len(got) != 1 || got[0].Level != notify.LevelSuccess || got[0].Message != "Joined room: AB12CD" {
		t.Errorf("notifications = %v", got)
	}
	if !reflect.DeepEqual(*changes, []string{"->AB12CD"}) {
		t.Errorf("room changes = %v", *changes)
	}
}

func TestSwitchRoomLeavesFirst(t *testing.T) {
	m, _, changes := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	m.JoinRoom("A", "ana")
	m.JoinRoom("B", "ana")

	want := []wire.Message{
		wire.JoinRoom{RoomID: "A", Username: "ana"},
		wire.LeaveRoom{RoomID: "A"},
		wire.JoinRoom{RoomID: "B", Username: "ana"},
	}
	if !reflect.DeepEqual(tr.sent, want) {
		t.Errorf("sent %v, want %v", tr.sent, want)
	}
	if !reflect.DeepEqual(*changes, []string{"->A", "A->B"}) {
		t.Errorf("room changes = %v", *changes)
	}
}

func TestRejoinSameRoom(t *testing.T) {
	m, _, changes := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	m.JoinRoom("A", "ana")
	m.JoinRoom("A", "bo")
	if len(tr.sent) != 3 || tr.sent[1] != (wire.LeaveRoom{RoomID: "A"}) {
		t.Errorf("sent %v", tr.sent)
	}
	if m.Username() != "bo" || len(*changes) != 2 {
		t.Errorf("user=%q changes=%v", m.Username(), *changes)
	}
}

func TestJoinRejectsEmptyArguments(t *testing.T) {
	m, _, _ := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	if m.JoinRoom("", "ana") || m.JoinRoom("A", "") {
		t.Fatal("join with empty argument accepted")
	}
	if len(tr.sent) != 0 {
		t.Errorf("sent %v", tr.sent)
	}
}

func TestFailedJoinEmitClearsRoom(t *testing.T) {
	m, _, _ := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	m.JoinRoom("A", "ana")
	tr.fail = errors.New("buffer full")
	if m.JoinRoom("B", "ana") {
		t.Fatal("join reported success")
	}
	if m.RoomID() != "" {
		t.Errorf("room = %q, want none", m.RoomID())
	}
}

func TestFullSendBufferWarns(t *testing.T) {
	m, rec, _ := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	m.JoinRoom("A", "ana")
	n := len(rec.All())

	tr.fail = fmt.Errorf("send: %w", transport.ErrSendBufferFull)
	if m.Emit(wire.Typing{RoomID: "A", IsTyping: true}) {
		t.Fatal("emit reported success")
	}
	got := rec.All()[n:]
	if len(got) != 1 || got[0].Level != notify.LevelWarning || !strings.Contains(got[0].Message, "typing was not sent") {
		t.Errorf("notifications = %v", got)
	}

	tr.fail = transport.ErrClosed
	m.Emit(wire.Typing{RoomID: "A"})
	if len(rec.All()) != n+1 {
		t.Errorf("closed transport notified: %v", rec.All()[n:])
	}
}

func TestLeaveRoom(t *testing.T) {
	m, rec, changes := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	if m.LeaveRoom() {
		t.Error("leave with no room succeeded")
	}
	m.JoinRoom("A", "ana")
	if !m.LeaveRoom() {
		t.Fatal("leave dropped")
	}
	if m.State() != ConnectedNoRoom {
		t.Errorf("state = %v", m.State())
	}
	if tr.sent[len(tr.sent)-1] != (wire.LeaveRoom{RoomID: "A"}) {
		t.Errorf("last sent %v", tr.sent[len(tr.sent)-1])
	}
	if rec.Count(notify.LevelInfo) != 1 {
		t.Errorf("notifications = %v", rec.All())
	}
	if !reflect.DeepEqual(*changes, []string{"->A", "A->"}) {
		t.Errorf("room changes = %v", *changes)
	}
}

func TestDetachAbandonsRoom(t *testing.T) {
	m, _, changes := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	m.JoinRoom("A", "ana")

	m.Detach(&fakeTransport{}, errors.New("stale"))
	if m.RoomID() != "A" {
		t.Fatal("a stale transport's disconnect was applied")
	}

	m.Detach(tr, errors.New("reset by peer"))
	if m.State() != Disconnected || m.RoomID() != "" || m.Transport() != nil {
		t.Errorf("state=%v room=%q", m.State(), m.RoomID())
	}
	if !reflect.DeepEqual(*changes, []string{"->A", "A->"}) {
		t.Errorf("room changes = %v", *changes)
	}
	if m.Emit(wire.Typing{RoomID: "A"}) {
		t.Error("emit succeeded while disconnected")
	}
}

func TestConnectFailedNotifiesOncePerRun(t *testing.T) {
	m, rec, _ := newTestManager()
	m.ConnectFailed(errors.New("refused"))
	m.ConnectFailed(errors.New("refused"))
	if n := rec.Count(notify.LevelError); n != 1 {
		t.Fatalf("error notifications = %d, want 1", n)
	}
	m.Attach(&fakeTransport{})
	m.ConnectFailed(errors.New("refused"))
	if n := rec.Count(notify.LevelError); n != 2 {
		t.Errorf("error notifications = %d, want 2", n)
	}
	if got := rec.All()[0].Message; got != "Failed to connect to server" {
		t.Errorf("message = %q", got)
	}
}

func TestAttachReplacesTransport(t *testing.T) {
	m, _, _ := newTestManager()
	a, b := &fakeTransport{}, &fakeTransport{}
	m.Attach(a)
	m.Attach(b)
	if a.closed != 1 || m.Transport() != b {
		t.Errorf("old closed %d times, current %v", a.closed, m.Transport())
	}
}

func TestCloseLeavesAndDisconnects(t *testing.T) {
	m, _, _ := newTestManager()
	tr := &fakeTransport{}
	m.Attach(tr)
	m.JoinRoom("A", "ana")
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.closed != 1 || tr.sent[len(tr.sent)-1] != (wire.LeaveRoom{RoomID: "A"}) {
		t.Errorf("closed=%d sent=%v", tr.closed, tr.sent)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %v", m.State())
	}
}

func TestGenerateRoomID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRoomID()
		if len(id) != RoomIDLength {
			t.Fatalf("len(%q) = %d", id, len(id))
		}
		if strings.Trim(id, roomIDAlphabet) != "" {
			t.Fatalf("%q has characters outside the alphabet", id)
		}
		seen[id] = true
	}
	if len(seen) < 95 {
		t.Errorf("only %d distinct ids out of 100", len(seen))
	}
}
