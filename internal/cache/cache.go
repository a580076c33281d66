// Package cache stores OCR results across runs in a buntdb file.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/buntdb"
)

// Memory is the path that keeps the cache in memory only.
const Memory = ":memory:"

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// Cache is a key/value store with per-entry expiry.
type Cache struct {
	db  *buntdb.DB
	ttl time.Duration
}

// Open opens or creates the cache at path, creating parent directories as
// needed. A ttl of zero or less keeps entries forever.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path is empty")
	}
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var value string
	err := c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		value = v
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// Set stores value under key.
func (c *Cache) Set(key string, value []byte) error {
	var option *buntdb.SetOptions
	if c.ttl > 0 {
		option = &buntdb.SetOptions{Expires: true, TTL: c.ttl}
	}
	return c.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), option)
		return err
	})
}

// Len returns the number of live entries.
func (c *Cache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n, err
}

// Close flushes and closes the cache.
func (c *Cache) Close() error {
	return c.db.Close()
}
