// Package history keeps a log of vigil runs in a Badger database so past
// checks can be listed and inspected.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no record matches an id.
var ErrNotFound = errors.New("history record not found")

// ErrAmbiguous is returned when an id prefix matches several records.
var ErrAmbiguous = errors.New("history id prefix is ambiguous")

// DefaultRetentionDays is how long records are kept by default.
const DefaultRetentionDays = 90

// DefaultPath returns $XDG_DATA_HOME/vigil/history.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "vigil", "history")
}

// Store wraps Badger for history operations.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens or creates a history database in the directory at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history at %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores rec, assigning an id and time when they are unset. It
// returns the stored record.
func (s *Store) Append(rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = s.now()
	}
	rec.Time = rec.Time.UTC()

	value, err := rec.Encode()
	if err != nil {
		return Record{}, fmt.Errorf("encoding history record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(rec.Time, rec.ID), value)
	})
	if err != nil {
		return Record{}, fmt.Errorf("writing history record: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (s *Store) List(limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			var rec Record
			if err := it.Item().Value(rec.Decode); err != nil {
				return err
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return out, nil
}

// Get returns the record whose id is id or starts with it.
func (s *Store) Get(id string) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}

	var (
		found   Record
		matches int
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			_, keyID, err := ParseKey(it.Item().Key())
			if err != nil || !strings.HasPrefix(keyID, id) {
				continue
			}
			matches++
			if keyID == id {
				matches = 1
				return it.Item().Value(found.Decode)
			}
			if err := it.Item().Value(found.Decode); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("reading history: %w", err)
	}
	switch {
	case matches == 0:
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case matches > 1:
		return Record{}, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
	return found, nil
}

// Clean removes records older than retention and returns how many were
// deleted. A retention of zero or less removes nothing.
func (s *Store) Clean(retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention)

	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			at, _, err := ParseKey(it.Item().Key())
			if err != nil {
				continue
			}
			if !at.Before(cutoff) {
				// Keys are time ordered; everything after is newer.
				break
			}
			expired = append(expired, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning history: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range expired {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("deleting history record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("deleting history records: %w", err)
	}
	return len(expired), nil
}
