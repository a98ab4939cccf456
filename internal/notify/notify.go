// Package notify carries one-shot user-visible notifications from the
// engine to whatever renders them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Level is the notification severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a single message for the user.
type Notification struct {
	Level   Level
	Message string
}

func (n Notification) String() string {
	return fmt.Sprintf("[%s] %s", n.Level, n.Message)
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(Notification)
}

// Func adapts a plain function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Success sends a success notification.
func Success(n Notifier, format string, args ...any) {
	send(n, LevelSuccess, format, args...)
}

// Error sends an error notification.
func Error(n Notifier, format string, args ...any) {
	send(n, LevelError, format, args...)
}

// Warning sends a warning notification.
func Warning(n Notifier, format string, args ...any) {
	send(n, LevelWarning, format, args...)
}

// Info sends an info notification.
func Info(n Notifier, format string, args ...any) {
	send(n, LevelInfo, format, args...)
}

func send(n Notifier, level Level, format string, args ...any) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Logger writes notifications to a structured logger. Errors and warnings
// keep their level; everything else is logged at info.
func Logger(logger *slog.Logger) Notifier {
	return Func(func(n Notification) {
		level := slog.LevelInfo
		switch n.Level {
		case LevelError:
			level = slog.LevelError
		case LevelWarning:
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, n.Message, "notification", string(n.Level))
	})
}

// Multi fans a notification out to every notifier.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(n Notification) {
		for _, x := range notifiers {
			if x != nil {
				x.Notify(n)
			}
		}
	})
}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.list = append(r.list, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications in arrival order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

// Count returns how many notifications of level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, n := range r.list {
		if n.Level == level {
			c++
		}
	}
	return c
}
