// Package history is a bbolt-backed store of daemon run records,
// adapted directly from the teacher's pkg/storage/storage.go: same
// bucket-of-JSON-by-sequence-id shape, same "disabled" sentinel path
// that turns persistence off. The content is new — a daemon lifecycle
// summary (start/stop times, interface count, exit reason) rather than
// a capture-session summary — since this store is explicitly distinct
// from the live peer table in internal/peertable.
package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const runBucket = "runs"

// Store wraps a BoltDB instance persisting run records across daemon
// restarts.
type Store struct {
	db *bbolt.DB
}

// Record captures one daemon run, from start to clean or fatal exit.
type Record struct {
	ID             uint64    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Protocols      []string  `json:"protocols"`
	InterfaceCount int       `json:"interface_count"`
	FramesSent     uint64    `json:"frames_sent"`
	FramesReceived uint64    `json:"frames_received"`
	MaxPeers       int       `json:"max_peers"`
	ExitReason     string    `json:"exit_reason"`
}

// Open opens (or creates) the history database at path. Passing
// "disabled" or an empty path (the config default) turns the store off
// without an error, since run history is an optional feature.
func Open(path string) (*Store, error) {
	if strings.EqualFold(path, "disabled") || path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database. Safe to call on a nil Store
// (the "disabled" case) or a nil receiver.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddRun stores one completed run record, assigning it the next
// sequence id.
func (s *Store) AddRun(record Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runBucket))
		id, _ := b.NextSequence()
		record.ID = id
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// ListRuns returns the most recent run records, most recent first, up
// to limit (default 20).
func (s *Store) ListRuns(limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store not open")
	}
	if limit <= 0 {
		limit = 20
	}
	records := make([]Record, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func itob(v uint64) []byte {
	var b [8]byte
	for i := uint(0); i < 8; i++ {
		b[7-i] = byte(v >> (i * 8))
	}
	return b[:]
}
