package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// expiryLen is the size of the expiry header stored before each value.
const expiryLen = 8

// BoltHandler persists responses in a bbolt file, one bucket per project.
// Each value is prefixed with its expiry in unix nanoseconds, zero meaning
// none; expired entries read as missing and are dropped by the next write
// to the same key.
type BoltHandler struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltHandler opens (or creates) the cache file at path. A ttl of zero
// disables expiry.
func NewBoltHandler(path string, ttl time.Duration) (*BoltHandler, error) {
	if path == "" {
		return nil, errors.New("bolt cache requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	return &BoltHandler{db: db, ttl: ttl, now: time.Now}, nil
}

func (b *BoltHandler) encode(value string) []byte {
	buf := make([]byte, expiryLen+len(value))
	if b.ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(b.now().Add(b.ttl).UnixNano()))
	}
	copy(buf[expiryLen:], value)
	return buf
}

// decode returns the value of a stored record unless it expired.
func (b *BoltHandler) decode(raw []byte) (string, bool) {
	if len(raw) < expiryLen {
		return "", false
	}
	if exp := int64(binary.BigEndian.Uint64(raw)); exp != 0 && b.now().UnixNano() >= exp {
		return "", false
	}
	return string(raw[expiryLen:]), true
}

func (b *BoltHandler) Put(_ context.Context, key Key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(key.Project))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key.local()), b.encode(value))
	})
}

func (b *BoltHandler) Get(_ context.Context, key Key) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(key.Project))
		if bucket == nil {
			return nil
		}
		// the slice is only valid inside the transaction
		if raw := bucket.Get([]byte(key.local())); raw != nil {
			value, found = b.decode(raw)
		}
		return nil
	})
	return value, found, err
}

func (b *BoltHandler) Contains(ctx context.Context, key Key) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *BoltHandler) Flush(_ context.Context, key Key) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(key.Project))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key.local()))
	})
}

func (b *BoltHandler) FlushEndpoint(_ context.Context, project, endpointID string) error {
	prefix := []byte(strings.TrimPrefix(EndpointPrefix(project, endpointID), Namespace(project)))
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(project))
		if bucket == nil {
			return nil
		}
		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltHandler) FlushAll(_ context.Context, project string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(project))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (b *BoltHandler) Close() error {
	return b.db.Close()
}
