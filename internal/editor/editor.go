// Package editor buffers the live text of the open note and turns it into
// debounced update intents and a typing indicator.
//
// Title edits are coalesced over a short window and body edits over a
// longer one. The typing flag is not debounced: it is recomputed on every
// keystroke as "buffer differs from the last synced note" and emitted only
// when it flips.
package editor

import (
	"time"

	"collabnotes/internal/notes"
	"collabnotes/internal/wire"
)

// Notes is the synchronizer surface the editor drives.
type Notes interface {
	Current() (wire.Note, bool)
	UpdateNote(notes.Patch) bool
	SetUserTyping(bool) bool
}

// Timer is a pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The client's scheduler delivers f on its event
// loop, so callbacks never race with other editor calls.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type field int

const (
	fieldTitle field = iota
	fieldContent
)

// Editor is not safe for concurrent use.
type Editor struct {
	notes        Notes
	sched        Scheduler
	titleDelay   time.Duration
	contentDelay time.Duration

	loaded  bool
	synced  wire.Note // last note value loaded into the buffer
	title   string
	content string

	debTitle   string
	debContent string
	timers     [2]Timer
	seq        [2]uint64
	gen        uint64

	typing bool
	saves  int
}

// New returns an editor with nothing loaded.
func New(n Notes, sched Scheduler, titleDelay, contentDelay time.Duration) *Editor {
	return &Editor{
		notes:        n,
		sched:        sched,
		titleDelay:   titleDelay,
		contentDelay: contentDelay,
	}
}

// Sync reloads the buffer when the current note changed since the last
// call, and unloads it when no note is open.
func (e *Editor) Sync() {
	cur, ok := e.notes.Current()
	if !ok {
		if e.loaded {
			e.Close()
		}
		return
	}
	if e.loaded && cur == e.synced {
		return
	}
	// A newer value of the same note keeps fields whose debounce window is
	// still open; those edits are newer than the echo and will be sent.
	same := e.loaded && cur.ID == e.synced.ID
	if !same {
		e.cancel()
	}
	e.loaded = true
	e.synced = cur
	if !same || e.timers[fieldTitle] == nil {
		e.title = cur.Title
	}
	if !same || e.timers[fieldContent] == nil {
		e.content = cur.Content
	}
	e.debTitle, e.debContent = cur.Title, cur.Content
	e.updateTyping()
}

// SetTitle replaces the buffered title.
func (e *Editor) SetTitle(title string) bool {
	if !e.loaded {
		return false
	}
	e.title = title
	e.schedule(fieldTitle, e.titleDelay)
	e.updateTyping()
	return true
}

// SetContent replaces the buffered body.
func (e *Editor) SetContent(content string) bool {
	if !e.loaded {
		return false
	}
	e.content = content
	e.schedule(fieldContent, e.contentDelay)
	e.updateTyping()
	return true
}

// Save sends the buffer immediately, dropping any pending debounced send.
func (e *Editor) Save() bool {
	if !e.loaded {
		return false
	}
	e.cancel()
	e.debTitle, e.debContent = e.title, e.content
	if !e.notes.UpdateNote(notes.SetBoth(e.title, e.content)) {
		return false
	}
	e.saves++
	return true
}

// Close unloads the buffer. A raised typing flag is lowered.
func (e *Editor) Close() {
	e.cancel()
	if e.typing {
		e.typing = false
		e.notes.SetUserTyping(false)
	}
	e.loaded = false
	e.synced = wire.Note{}
	e.title, e.content = "", ""
}

// Reset drops the buffer without emitting anything. Used when the room
// changes: pending sends for the old room must never fire.
func (e *Editor) Reset() {
	e.cancel()
	e.loaded = false
	e.typing = false
	e.synced = wire.Note{}
	e.title, e.content = "", ""
	e.debTitle, e.debContent = "", ""
}

// Loaded reports whether a note is in the buffer.
func (e *Editor) Loaded() bool { return e.loaded }

// Title returns the buffered title.
func (e *Editor) Title() string { return e.title }

// Content returns the buffered body.
func (e *Editor) Content() string { return e.content }

// Typing reports the last typing flag sent.
func (e *Editor) Typing() bool { return e.typing }

// Pending reports whether a debounced send is waiting.
func (e *Editor) Pending() bool {
	return e.timers[fieldTitle] != nil || e.timers[fieldContent] != nil
}

// Saves counts updates sent through Save or a debounce window.
func (e *Editor) Saves() int { return e.saves }

func (e *Editor) schedule(f field, d time.Duration) {
	if t := e.timers[f]; t != nil {
		t.Stop()
	}
	e.seq[f]++
	gen, seq := e.gen, e.seq[f]
	e.timers[f] = e.sched.AfterFunc(d, func() { e.fire(gen, seq, f) })
}

// fire runs a debounce window's callback. Callbacks from cancelled or
// superseded windows are ignored.
func (e *Editor) fire(gen, seq uint64, f field) {
	if gen != e.gen || seq != e.seq[f] || !e.loaded {
		return
	}
	e.timers[f] = nil
	switch f {
	case fieldTitle:
		e.debTitle = e.title
	case fieldContent:
		e.debContent = e.content
	}
	e.flush()
}

// flush sends the debounced values if they differ from the synced note.
func (e *Editor) flush() {
	cur, ok := e.notes.Current()
	if !ok || cur.ID != e.synced.ID {
		return
	}
	if e.debTitle == cur.Title && e.debContent == cur.Content {
		return
	}
	if e.notes.UpdateNote(notes.SetBoth(e.debTitle, e.debContent)) {
		e.saves++
	}
}

func (e *Editor) updateTyping() {
	cur, ok := e.notes.Current()
	typing := ok && (e.title != cur.Title || e.content != cur.Content)
	if typing == e.typing {
		return
	}
	e.typing = typing
	e.notes.SetUserTyping(typing)
}

// cancel invalidates every scheduled callback.
func (e *Editor) cancel() {
	e.gen++
	e.stopTimers()
}

func (e *Editor) stopTimers() {
	for i, t := range e.timers {
		if t != nil {
			t.Stop()
			e.timers[i] = nil
		}
	}
}
