package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHelpersFormatAndLevel(t *testing.T) {
	var r Recorder
	Success(&r, "Joined room: %s", "AB12CD")
	Error(&r, "Failed to connect to server")
	Warning(&r, "slow %d", 3)
	Info(&r, "Left the room")

	got := r.All()
	want := []Notification{
		{LevelSuccess, "Joined room: AB12CD"},
		{LevelError, "Failed to connect to server"},
		{LevelWarning, "slow 3"},
		{LevelInfo, "Left the room"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
	if r.Count(LevelError) != 1 {
		t.Errorf("Count(error) = %d, want 1", r.Count(LevelError))
	}
}

func TestNilNotifier(t *testing.T) {
	Success(nil, "ignored")
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	Info(Multi(&a, nil, &b), "hello")
	if a.Count(LevelInfo) != 1 || b.Count(LevelInfo) != 1 {
		t.Errorf("fan out failed: %v %v", a.All(), b.All())
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	n := Logger(slog.New(slog.NewTextHandler(&buf, nil)))
	Error(n, "boom")
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "msg=boom") || !strings.Contains(out, "notification=error") {
		t.Errorf("unexpected log line: %s", out)
	}

	buf.Reset()
	Warning(n, "slow")
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "notification=warning") {
		t.Errorf("unexpected log line: %s", out)
	}
}

func TestString(t *testing.T) {
	if s := (Notification{LevelInfo, "x"}).String(); s != "[info] x" {
		t.Errorf("String() = %q", s)
	}
}
