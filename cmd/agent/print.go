package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"collabnotes/internal/client"
	"collabnotes/internal/notify"
)

// printer serializes everything the agent writes to the terminal.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

func (p *printer) Notify(n notify.Notification) {
	mark := "•"
	switch n.Level {
	case notify.LevelSuccess:
		mark = "\033[32m✓\033[0m"
	case notify.LevelError:
		mark = "\033[31m✗\033[0m"
	case notify.LevelWarning:
		mark = "\033[33m⚠\033[0m"
	}
	p.printf("%s %s\n", mark, n.Message)
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// render prints a status line whenever the visible summary changes.
func (p *printer) render(ctx context.Context, c *client.Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case <-c.Changes():
		}
		st, err := c.Snapshot(ctx)
		if err != nil {
			return nil
		}
		line := summary(st)
		p.mu.Lock()
		if line != p.last {
			p.last = line
			fmt.Fprintln(p.w, line)
		}
		p.mu.Unlock()
	}
}

func summary(st client.State) string {
	if !st.Connected {
		return "-- disconnected"
	}
	switch st.View() {
	case client.ViewJoin:
		return "-- connected, not in a room (/join ROOM NAME)"
	case client.ViewList:
		return fmt.Sprintf("-- room %s as %s: %d notes, %s", st.RoomID, st.Username, len(st.Notes), who(st))
	}
	return fmt.Sprintf("-- room %s editing %q (%s), %s", st.RoomID, st.Current.Title, st.Current.ID, who(st))
}

func who(st client.State) string {
	names := make([]string, 0, len(st.Users))
	for _, u := range st.Users {
		name := u.Username
		if u.IsTyping {
			name += " (typing)"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "nobody online"
	}
	return "online: " + strings.Join(names, ", ")
}

func (p *printer) notes(st client.State) {
	if len(st.Notes) == 0 {
		p.printf("no notes yet (/new TITLE)\n")
		return
	}
	for i, n := range st.Notes {
		mark := " "
		if st.Current != nil && st.Current.ID == n.ID {
			mark = "*"
		}
		p.printf("%s %2d. %s  %s  %s\n", mark, i+1, n.Title, n.ID, n.Modified().Format("15:04:05"))
	}
}

func (p *printer) users(st client.State) {
	p.printf("%s\n", who(st))
}

func (p *printer) note(st client.State) {
	if st.Current == nil {
		p.printf("no note open (/open ID)\n")
		return
	}
	p.printf("# %s\n%s\n", st.Editor.Title, st.Editor.Content)
	if st.Editor.Pending {
		p.printf("(unsent changes)\n")
	}
}
