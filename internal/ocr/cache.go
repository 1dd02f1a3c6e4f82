package ocr

import (
	"fmt"
	"path/filepath"

	"github.com/boltdb/bolt"
)

var cacheBucket = []byte("ocr_text")

// Cache maps an attachment's base filename to its previously extracted
// text. Entries are write-once: once an attachment has been read
// successfully its text is never re-derived, so the OCR/LLM cost is spent
// at most once per file. Bolt serializes writers, which is the mutual
// exclusion the concurrent ingestion workers need.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (or creates) the cache store at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ocr.OpenCache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("ocr.OpenCache: create bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached text for the attachment, if any.
func (c *Cache) Get(name string) (text string, ok bool, err error) {
	key := []byte(filepath.Base(name))
	err = c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(cacheBucket).Get(key); v != nil {
			text = string(v)
			ok = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("ocr.Cache.Get: %w", err)
	}
	return text, ok, nil
}

// Put stores text for the attachment unless an entry already exists.
// The existing-key check and the write happen inside one bolt update
// transaction, so concurrent workers cannot race to duplicate an entry.
func (c *Cache) Put(name, text string) error {
	key := []byte(filepath.Base(name))
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		if b.Get(key) != nil {
			return nil
		}
		return b.Put(key, []byte(text))
	})
	if err != nil {
		return fmt.Errorf("ocr.Cache.Put: %w", err)
	}
	return nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}
