package wire

import "time"

// Note is a single shared text note. A Note is replaced wholesale on every
// edit; LastModified is milliseconds since the Unix epoch.
type Note struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	LastModified int64  `json:"lastModified"`
}

// Modified returns LastModified as a time.Time.
func (n Note) Modified() time.Time {
	return time.UnixMilli(n.LastModified)
}

// User is a room participant as reported by the server roster.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

// Millis converts t to the LastModified representation.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
