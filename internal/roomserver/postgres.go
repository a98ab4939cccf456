package roomserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabnotes/internal/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	seq           BIGSERIAL,
	id            TEXT PRIMARY KEY,
	room_id       TEXT NOT NULL,
	title         TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	last_modified BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS notes_room_seq ON notes (room_id, seq);
`

// PostgresStore keeps notes in a postgres table shared by every server
// instance.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgresStore connects to dbURL and creates the notes table if needed.
func OpenPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("roomserver: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("roomserver: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("roomserver: migrate: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) List(ctx context.Context, roomID string) ([]wire.Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, last_modified FROM notes WHERE room_id = $1 ORDER BY seq`, roomID)
	if err != nil {
		return nil, fmt.Errorf("roomserver: list %s: %w", roomID, err)
	}
	notes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wire.Note, error) {
		var n wire.Note
		err := row.Scan(&n.ID, &n.Title, &n.Content, &n.LastModified)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("roomserver: list %s: %w", roomID, err)
	}
	return notes, nil
}

func (s *PostgresStore) Create(ctx context.Context, roomID, title string) (wire.Note, error) {
	n := newNote(title, s.now())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notes (id, room_id, title, content, last_modified) VALUES ($1, $2, $3, $4, $5)`,
		n.ID, roomID, n.Title, n.Content, n.LastModified)
	if err != nil {
		return wire.Note{}, fmt.Errorf("roomserver: create in %s: %w", roomID, err)
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, roomID string, note wire.Note) (wire.Note, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`UPDATE notes SET title = $3, content = $4, last_modified = $5
		 WHERE room_id = $1 AND id = $2 RETURNING id`,
		roomID, note.ID, note.Title, note.Content, note.LastModified).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return wire.Note{}, ErrNoteNotFound
	}
	if err != nil {
		return wire.Note{}, fmt.Errorf("roomserver: update %s: %w", note.ID, err)
	}
	return note, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
