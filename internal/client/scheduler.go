package client

import (
	"time"

	"collabnotes/internal/editor"
)

// loopScheduler fires debounce callbacks on the client's event loop.
type loopScheduler struct{ c *Client }

func (s loopScheduler) AfterFunc(d time.Duration, f func()) editor.Timer {
	return time.AfterFunc(d, func() { s.c.post(f) })
}
