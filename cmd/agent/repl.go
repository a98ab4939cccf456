package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"collabnotes/internal/client"
	"collabnotes/internal/session"
)

// engine is the part of the client the prompt drives.
type engine interface {
	JoinRoom(roomID, username string)
	LeaveRoom()
	CreateNote(title string)
	OpenNote(id string)
	CloseNote()
	EditTitle(title string)
	EditContent(content string)
	Save()
	Snapshot(ctx context.Context) (client.State, error)
}

const help = `commands:
  /join ROOM NAME   join ROOM as NAME
  /gen NAME         join a freshly generated room as NAME
  /leave            leave the room
  /new TITLE        create a note
  /list             list notes
  /open ID|N        open a note by id or list position
  /close            close the open note
  /title TEXT       retitle the open note
  /body TEXT        replace the open note's body
  /show             print the open note
  /save             send pending edits now
  /who              list online users
  /quit             exit
Lines without a leading slash are appended to the open note's body.
`

type repl struct {
	in  io.Reader
	out *printer
	c   engine
}

func newREPL(in io.Reader, out *printer, c engine) *repl {
	return &repl{in: in, out: out, c: c}
}

// run reads commands until input ends, /quit, or ctx is cancelled.
func (r *repl) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// exec runs one input line and reports whether the agent should exit.
func (r *repl) exec(ctx context.Context, line string) bool {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "/") {
		r.appendLine(ctx, line)
		return false
	}
	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		r.out.printf("%s", help)
	case "join":
		room, name, _ := strings.Cut(arg, " ")
		name = strings.TrimSpace(name)
		if room == "" || name == "" {
			r.out.printf("usage: /join ROOM NAME\n")
			return false
		}
		r.c.JoinRoom(room, name)
	case "gen":
		if arg == "" {
			r.out.printf("usage: /gen NAME\n")
			return false
		}
		room := session.GenerateRoomID()
		r.out.printf("room code: %s\n", room)
		r.c.JoinRoom(room, arg)
	case "leave":
		r.c.LeaveRoom()
	case "new":
		if arg == "" {
			arg = "Untitled"
		}
		r.c.CreateNote(arg)
	case "open":
		r.open(ctx, arg)
	case "close":
		r.c.CloseNote()
	case "title":
		r.c.EditTitle(arg)
	case "body":
		r.c.EditContent(arg)
	case "save":
		r.c.Save()
	case "list", "show", "who":
		st, err := r.c.Snapshot(ctx)
		if err != nil {
			return false
		}
		switch cmd {
		case "list":
			r.out.notes(st)
		case "show":
			r.out.note(st)
		default:
			r.out.users(st)
		}
	default:
		r.out.printf("unknown command /%s, try /help\n", cmd)
	}
	return false
}

// open accepts a note id or a 1-based position in the list.
func (r *repl) open(ctx context.Context, arg string) {
	if arg == "" {
		r.out.printf("usage: /open ID|N\n")
		return
	}
	i, err := strconv.Atoi(arg)
	if err != nil {
		r.c.OpenNote(arg)
		return
	}
	st, err := r.c.Snapshot(ctx)
	if err != nil {
		return
	}
	if i < 1 || i > len(st.Notes) {
		r.out.printf("no note %d\n", i)
		return
	}
	r.c.OpenNote(st.Notes[i-1].ID)
}

func (r *repl) appendLine(ctx context.Context, line string) {
	st, err := r.c.Snapshot(ctx)
	if err != nil {
		return
	}
	if st.Current == nil {
		if line != "" {
			r.out.printf("no note open, try /help\n")
		}
		return
	}
	body := st.Editor.Content
	if body != "" {
		body += "\n"
	}
	r.c.EditContent(body + line)
}
