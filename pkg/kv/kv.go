// Package kv provides a persistent key-value store using BadgerDB,
// used as the bounded summary-lookup cache
package kv

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/gamedex/gamedex/wiki"
)

type KV struct {
	db       *badger.DB
	opts     badger.Options
	closed   bool
	closedMu sync.RWMutex
}

// Options for KV store
type Options struct {
	Dir           string // Data directory
	SyncWrites    bool   // Sync writes to disk
	Compression   bool   // Enable compression
	MemoryMode    bool   // In-memory only (no persistence)
	ValueLogMaxMB int64  // Max value log size in MB
}

// DefaultOptions returns default options
func DefaultOptions(dir string) Options {
	return Options{
		Dir:           dir,
		SyncWrites:    false, // Async for performance
		Compression:   true,
		MemoryMode:    false,
		ValueLogMaxMB: 64,
	}
}

// Open opens a KV store
func Open(opt Options) (*KV, error) {
	if !opt.MemoryMode && opt.Dir == "" {
		opt.Dir = filepath.Join(os.TempDir(), "gamedex-kv")
	}

	opts := badger.DefaultOptions(opt.Dir)
	opts.SyncWrites = opt.SyncWrites

	if opt.Compression && !opt.MemoryMode {
		opts.Compression = options.ZSTD
	}
	if !opt.MemoryMode && opt.ValueLogMaxMB > 0 {
		opts.ValueLogFileSize = opt.ValueLogMaxMB * 1024 * 1024
	}
	if opt.MemoryMode {
		opts.InMemory = true
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger failed: %w", err)
	}

	kv := &KV{db: db, opts: opts}
	log.Printf("[KV] Opened: %s (memory: %v)", opt.Dir, opt.MemoryMode)
	return kv, nil
}

// OpenMemory opens an in-memory KV, mainly for tests
func OpenMemory() (*KV, error) {
	return Open(Options{MemoryMode: true})
}

// Close closes the KV store
func (k *KV) Close() error {
	k.closedMu.Lock()
	defer k.closedMu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return k.db.Close()
}

// Set sets a key-value pair
func (k *KV) Set(key, value string) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// SetWithTTL sets a key-value pair with TTL
func (k *KV) SetWithTTL(key, value string, ttl time.Duration) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Get gets a value by key
func (k *KV) Get(key string) (string, error) {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return "", fmt.Errorf("KV is closed")
	}

	var result string
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		result = string(val)
		return nil
	})
	return result, err
}

// Delete deletes a key
func (k *KV) Delete(key string) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Exists checks if a key exists
func (k *KV) Exists(key string) (bool, error) {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return false, fmt.Errorf("KV is closed")
	}

	exists := false
	err := k.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			exists = false
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// Iterate iterates over keys with given prefix
func (k *KV) Iterate(prefix string, fn func(key, value string) bool) error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}

	return k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				continue
			}
			if !fn(string(item.Key()), string(val)) {
				break
			}
		}
		return nil
	})
}

// Keys returns all keys matching prefix
func (k *KV) Keys(prefix string) ([]string, error) {
	var keys []string
	err := k.Iterate(prefix, func(key, _ string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// Count returns count of keys matching prefix
func (k *KV) Count(prefix string) (int, error) {
	count := 0
	err := k.Iterate(prefix, func(_, _ string) bool {
		count++
		return true
	})
	return count, err
}

// DeletePrefix deletes all keys with given prefix
func (k *KV) DeletePrefix(prefix string) error {
	keys, err := k.Keys(prefix)
	if err != nil {
		return err
	}

	k.closedMu.RLock()
	defer k.closedMu.RUnlock()

	if k.closed {
		return fmt.Errorf("KV is closed")
	}
	return k.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				log.Printf("[KV] Delete %s failed: %v", key, err)
			}
		}
		return nil
	})
}

// ===== Summary cache =====

// PrefixSummary keys cached summary documents by canonical title
const PrefixSummary = "summary:"

// SummaryCache is a TTL-bounded cache of summary documents on top of KV.
// It implements resolver.SummaryCache. Caching is a deliberate addition
// over the upstream behavior; entries expire so staleness is bounded.
type SummaryCache struct {
	kv  *KV
	ttl time.Duration
}

// NewSummaryCache creates a summary cache with the given TTL
func NewSummaryCache(kv *KV, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SummaryCache{kv: kv, ttl: ttl}
}

// GetSummary returns the cached document for a canonical title
func (c *SummaryCache) GetSummary(title string) (wiki.SummaryDocument, bool) {
	val, err := c.kv.Get(PrefixSummary + title)
	if err != nil {
		return wiki.SummaryDocument{}, false
	}
	var doc wiki.SummaryDocument
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		log.Printf("[KV] Corrupt cache entry for %q: %v", title, err)
		return wiki.SummaryDocument{}, false
	}
	return doc, true
}

// PutSummary caches a document under the search-resolved title, which is
// the key later gets use. The document's own title may be normalized
// differently by the summary endpoint.
func (c *SummaryCache) PutSummary(title string, doc wiki.SummaryDocument) {
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := c.kv.SetWithTTL(PrefixSummary+title, string(data), c.ttl); err != nil {
		log.Printf("[KV] Cache write failed for %q: %v", title, err)
	}
}

// ===== Stats =====

// Stats returns KV store statistics
func (k *KV) Stats() (map[string]interface{}, error) {
	if k.db == nil {
		return nil, fmt.Errorf("KV not initialized")
	}

	var sz int64
	var keyCount int
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(nil); it.Valid(); it.Next() {
			sz += int64(len(it.Item().Key())) + it.Item().EstimatedSize()
			keyCount++
		}
		return nil
	})

	return map[string]interface{}{
		"keys":     keyCount,
		"size_mb":  sz / 1024 / 1024,
		"dir":      k.opts.Dir,
		"inmemory": k.opts.InMemory,
	}, err
}
