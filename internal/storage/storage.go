// Package storage persists workbench state in a bbolt database.
//
// Keys live in buckets: application and workspace state use string keys,
// the telemetry bucket is an append-only log keyed by sequence number.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names a keyspace.
type Bucket string

// Buckets created on open.
const (
	BucketApplication Bucket = "application"
	BucketWorkspace   Bucket = "workspace"
	BucketTelemetry   Bucket = "telemetry"
)

var buckets = []Bucket{BucketApplication, BucketWorkspace, BucketTelemetry}

// Storage errors.
var (
	// ErrNotFound indicates the key is absent.
	ErrNotFound = errors.New("storage: not found")

	// ErrUnknownBucket indicates a bucket that was not created on open.
	ErrUnknownBucket = errors.New("storage: unknown bucket")
)

// Store is a bbolt-backed key/value store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func bucket(tx *bolt.Tx, name Bucket) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}
	return b, nil
}

// Get returns a copy of the value at key.
func (s *Store) Get(name Bucket, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		v := b.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, name, key)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Put stores value at key.
func (s *Store) Put(name Bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(name Bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

// GetJSON decodes the value at key into v.
func (s *Store) GetJSON(name Bucket, key string, v any) error {
	data, err := s.Get(name, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("storage: decode %s/%s: %w", name, key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key.
func (s *Store) PutJSON(name Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s/%s: %w", name, key, err)
	}
	return s.Put(name, key, data)
}

// Keys lists the keys with prefix, sorted.
func (s *Store) Keys(name Bucket, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// DeletePrefix removes every key with prefix and returns how many.
func (s *Store) DeletePrefix(name Bucket, prefix string) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		p := []byte(prefix)
		var doomed [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(doomed)
		return nil
	})
	return n, err
}

func marshalSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func unmarshalSeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// Append adds value to a log bucket and returns its sequence number.
func (s *Store) Append(name Bucket, value []byte) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(marshalSeq(seq), value)
	})
	return seq, err
}

// Iterate calls fn for each log entry with sequence >= from, in order.
// Returning an error from fn stops the iteration with that error.
func (s *Store) Iterate(name Bucket, from uint64, fn func(seq uint64, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.Seek(marshalSeq(from)); k != nil; k, v = c.Next() {
			if len(k) != 8 {
				continue
			}
			if err := fn(unmarshalSeq(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Truncate removes log entries with sequence < before.
func (s *Store) Truncate(name Bucket, before uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil && len(k) == 8 && unmarshalSeq(k) < before; k, _ = c.First() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
