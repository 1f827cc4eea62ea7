package tokenstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// DefaultBucket is the bbolt bucket used when no namespace is supplied.
const DefaultBucket = "session"

// Bolt implements Store backed by a bbolt database file. Each namespace is one
// bucket, so several users or profiles can share a file.
type Bolt struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

var _ Store = (*Bolt)(nil)

// NewBolt returns a Store over an already opened database. The caller keeps
// ownership of db.
func NewBolt(db *bbolt.DB, namespace string) *Bolt {
	if namespace == "" {
		namespace = DefaultBucket
	}
	return &Bolt{db: db, bucket: []byte(namespace)}
}

// OpenBolt opens (or creates) the database at path. Close releases the file lock.
func OpenBolt(path, namespace string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s := NewBolt(db, namespace)
	s.owned = true
	return s, nil
}

// Close closes the database if it was opened by OpenBolt.
func (s *Bolt) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Bolt) Get(_ context.Context, name string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		// data is only valid for the life of the transaction.
		value = string(data)
		found = true
		return nil
	})
	if err != nil {
		return "", false, s.wrap(err)
	}
	return value, found, nil
}

func (s *Bolt) Set(ctx context.Context, name, value string) error {
	return s.SetMany(ctx, map[string]string{name: value})
}

func (s *Bolt) SetMany(_ context.Context, entries map[string]string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		for k, v := range entries {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	return s.wrap(err)
}

func (s *Bolt) Remove(_ context.Context, name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(name))
	})
	return s.wrap(err)
}

func (s *Bolt) ClearAll(context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return nil
		}
		return tx.DeleteBucket(s.bucket)
	})
	return s.wrap(err)
}

func (s *Bolt) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return names, nil
}

func (s *Bolt) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, berrors.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
