package roomserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"collabnotes/internal/wire"
)

var (
	bucketRooms = []byte("rooms")
	bucketNotes = []byte("notes") // per room: seq -> note JSON
	bucketIndex = []byte("index") // per room: note id -> seq
)

// BoltStore keeps notes in a single bbolt file. Each room is a bucket with
// notes keyed by a big-endian sequence so cursor order is creation order.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("roomserver: open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRooms)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("roomserver: init bolt: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) List(_ context.Context, roomID string) ([]wire.Note, error) {
	var notes []wire.Note
	err := s.db.View(func(tx *bolt.Tx) error {
		room := tx.Bucket(bucketRooms).Bucket([]byte(roomID))
		if room == nil {
			return nil
		}
		return room.Bucket(bucketNotes).ForEach(func(_, v []byte) error {
			var n wire.Note
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			notes = append(notes, n)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("roomserver: list %s: %w", roomID, err)
	}
	return notes, nil
}

func (s *BoltStore) Create(_ context.Context, roomID, title string) (wire.Note, error) {
	n := newNote(title, s.now())
	err := s.db.Update(func(tx *bolt.Tx) error {
		room, err := s.room(tx, roomID)
		if err != nil {
			return err
		}
		notes := room.Bucket(bucketNotes)
		seq, err := notes.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := put(notes, key, n); err != nil {
			return err
		}
		return room.Bucket(bucketIndex).Put([]byte(n.ID), key)
	})
	if err != nil {
		return wire.Note{}, fmt.Errorf("roomserver: create in %s: %w", roomID, err)
	}
	return n, nil
}

func (s *BoltStore) Update(_ context.Context, roomID string, note wire.Note) (wire.Note, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		room := tx.Bucket(bucketRooms).Bucket([]byte(roomID))
		if room == nil {
			return ErrNoteNotFound
		}
		key := room.Bucket(bucketIndex).Get([]byte(note.ID))
		if key == nil {
			return ErrNoteNotFound
		}
		return put(room.Bucket(bucketNotes), append([]byte(nil), key...), note)
	})
	if err != nil {
		return wire.Note{}, fmt.Errorf("roomserver: update %s: %w", note.ID, err)
	}
	return note, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) room(tx *bolt.Tx, roomID string) (*bolt.Bucket, error) {
	room, err := tx.Bucket(bucketRooms).CreateBucketIfNotExists([]byte(roomID))
	if err != nil {
		return nil, err
	}
	if _, err := room.CreateBucketIfNotExists(bucketNotes); err != nil {
		return nil, err
	}
	if _, err := room.CreateBucketIfNotExists(bucketIndex); err != nil {
		return nil, err
	}
	return room, nil
}

func put(b *bolt.Bucket, key []byte, n wire.Note) error {
	v, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return b.Put(key, v)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
