// Package localstore keeps device-local state (cart, catalog cache, pending
// orders, prefill, ack flags) in a single bbolt file so it survives restarts.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/itsneelabh/storefront/core"
)

// DefaultBucket holds every key written through BoltStore.
const DefaultBucket = "storefront"

// BoltStore implements core.Memory on a bbolt database.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
	logger core.Logger
	now    func() time.Time
}

// entry is the stored value. Expiry is checked on read.
type entry struct {
	Value     string    `json:"v"`
	ExpiresAt time.Time `json:"e,omitempty"`
}

// Option configures a BoltStore
type Option func(*BoltStore)

// WithBucket overrides the bucket name
func WithBucket(name string) Option {
	return func(s *BoltStore) {
		if name != "" {
			s.bucket = []byte(name)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(s *BoltStore) { s.logger = core.ComponentLogger(logger, "localstore") }
}

// WithClock overrides time.Now for expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *BoltStore) { s.now = now }
}

// Open opens (creating if needed) the bbolt file at path.
func Open(path string, opts ...Option) (*BoltStore, error) {
	if path == "" {
		return nil, &core.StoreError{
			Op:      "localstore.Open",
			Kind:    "config",
			Message: "storage path is required",
			Err:     core.ErrMissingConfiguration,
		}
	}
	s := &BoltStore{
		bucket: []byte(DefaultBucket),
		logger: &core.NoOpLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &core.StoreError{Op: "localstore.Open", Kind: "storage", ID: path, Err: err}
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, &core.StoreError{Op: "localstore.Open", Kind: "storage", ID: path, Err: err}
	}

	s.logger.Info("Local storage opened", map[string]interface{}{
		"path":   path,
		"bucket": string(s.bucket),
	})
	return s, nil
}

// Get returns the value for key, or "" when it is missing or expired.
func (s *BoltStore) Get(ctx context.Context, key string) (string, error) {
	e, ok, err := s.read(key)
	if err != nil || !ok {
		return "", err
	}
	return e.Value, nil
}

// Set stores value under key. A positive ttl makes it expire.
func (s *BoltStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	e := entry{Value: value}
	if ttl > 0 {
		e.ExpiresAt = s.now().Add(ttl)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), raw)
	})
	if err != nil {
		return &core.StoreError{Op: "localstore.Set", Kind: "storage", ID: key, Err: err}
	}
	s.logger.Debug("Local storage set", map[string]interface{}{
		"operation":  "storage_set",
		"key":        key,
		"value_size": len(value),
		"has_ttl":    ttl > 0,
	})
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return &core.StoreError{Op: "localstore.Delete", Kind: "storage", ID: key, Err: err}
	}
	return nil
}

// Exists reports whether key holds a live value.
func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.read(key)
	return ok, err
}

// Keys lists the live keys with the given prefix.
func (s *BoltStore) Keys(prefix string) ([]string, error) {
	var keys []string
	now := s.now()
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			var e entry
			if json.Unmarshal(v, &e) != nil || e.expired(now) {
				continue
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) read(key string) (entry, bool, error) {
	var (
		e     entry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			// values written by other tools are taken verbatim
			e = entry{Value: string(raw)}
		}
		found = true
		return nil
	})
	if err != nil {
		return entry{}, false, &core.StoreError{Op: "localstore.Get", Kind: "storage", ID: key, Err: err}
	}
	if !found || e.expired(s.now()) {
		return entry{}, false, nil
	}
	return e, true, nil
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func hasPrefix(k, p []byte) bool {
	return len(k) >= len(p) && string(k[:len(p)]) == string(p)
}

var _ core.Memory = (*BoltStore)(nil)
