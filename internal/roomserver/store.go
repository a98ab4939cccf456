package roomserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"collabnotes/internal/wire"
)

// ErrNoteNotFound is returned when an update names an unknown note.
var ErrNoteNotFound = errors.New("roomserver: note not found")

// Store persists the notes of every room. List returns notes in creation
// order. Update is last-writer-wins on arrival.
type Store interface {
	List(ctx context.Context, roomID string) ([]wire.Note, error)
	Create(ctx context.Context, roomID, title string) (wire.Note, error)
	Update(ctx context.Context, roomID string, note wire.Note) (wire.Note, error)
	Close() error
}

// newNote builds a fresh note with a server-assigned id.
func newNote(title string, now time.Time) wire.Note {
	return wire.Note{
		ID:           uuid.NewString(),
		Title:        title,
		LastModified: wire.Millis(now),
	}
}

// MemoryStore keeps notes in process.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]wire.Note
	now   func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]wire.Note), now: time.Now}
}

func (s *MemoryStore) List(_ context.Context, roomID string) ([]wire.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]wire.Note(nil), s.rooms[roomID]...), nil
}

func (s *MemoryStore) Create(_ context.Context, roomID, title string) (wire.Note, error) {
	n := newNote(title, s.now())
	s.mu.Lock()
	s.rooms[roomID] = append(s.rooms[roomID], n)
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) Update(_ context.Context, roomID string, note wire.Note) (wire.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes := s.rooms[roomID]
	for i := range notes {
		if notes[i].ID == note.ID {
			notes[i] = note
			return note, nil
		}
	}
	return wire.Note{}, ErrNoteNotFound
}

func (s *MemoryStore) Close() error { return nil }
