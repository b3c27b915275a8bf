// Package cachestore implements the response cache: a
// content-addressed, sqlite-backed cache with LRU + TTL eviction,
// backed by mattn/go-sqlite3 with an embedded schema.
package cachestore

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

const defaultTTL = 24 * time.Hour

// Cache is a single-writer, many-readers key/value store with a short
// per-key critical section and a short-held mutex guarding eviction
// bookkeeping.
type Cache struct {
	db       *sql.DB
	maxBytes int64
	ttl      time.Duration

	metaMu   sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// Open opens (creating if absent) a sqlite-backed cache at path, applies
// its schema, and bounds it to maxBytes total stored size with the given
// TTL (0 selects the default of 24h).
func Open(path string, maxBytes int64, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to open cache database", err)
	}
	if err := NewMigrator(db).Migrate(); err != nil {
		db.Close()
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to migrate cache database", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{db: db, maxBytes: maxBytes, ttl: ttl, keyLocks: map[string]*sync.Mutex{}}, nil
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	m, ok := c.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		c.keyLocks[key] = m
	}
	return m
}

// Get returns the cached value for key, or ok=false on a miss — which
// includes an expired entry (past TTL) or a corrupt row, both of which
// are deleted as a side effect.
func (c *Cache) Get(key string) (value []byte, ok bool, err error) {
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	var v []byte
	var createdAt, lastAccessed string
	row := c.db.QueryRow(`SELECT value, created_at, last_accessed FROM cache_entries WHERE key = ?`, key)
	switch scanErr := row.Scan(&v, &createdAt, &lastAccessed); scanErr {
	case sql.ErrNoRows:
		return nil, false, nil
	case nil:
		// fallthrough below
	default:
		c.deleteLocked(key)
		return nil, false, nil
	}

	created, err1 := time.Parse(time.RFC3339Nano, createdAt)
	if err1 != nil {
		c.deleteLocked(key)
		return nil, false, nil
	}
	if time.Since(created) > c.ttl {
		c.deleteLocked(key)
		return nil, false, nil
	}

	if _, err := c.db.Exec(`UPDATE cache_entries SET last_accessed = ? WHERE key = ?`, time.Now().UTC().Format(time.RFC3339Nano), key); err != nil {
		return nil, false, ciherr.Wrap(ciherr.KindIO, "failed to update last_accessed", err)
	}
	return v, true, nil
}

// Put stores value under key with the given size in bytes, then evicts
// least-recently-accessed entries until the store is back under
// maxBytes (0 disables size-based eviction).
func (c *Cache) Put(key string, value []byte, size int64) error {
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := c.db.Exec(
		`INSERT INTO cache_entries (key, value, size, created_at, last_accessed) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, size = excluded.size, created_at = excluded.created_at, last_accessed = excluded.last_accessed`,
		key, value, size, now, now,
	)
	if err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to write cache entry", err)
	}
	return c.evictOverBudget()
}

// Invalidate deletes every entry whose key starts with prefix.
func (c *Cache) Invalidate(prefix string) error {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE key LIKE ? || '%'`, prefix); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to invalidate cache entries", err)
	}
	return nil
}

func (c *Cache) deleteLocked(key string) {
	_, _ = c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
}

func (c *Cache) evictOverBudget() error {
	if c.maxBytes <= 0 {
		return nil
	}
	for {
		var total int64
		if err := c.db.QueryRow(`SELECT COALESCE(SUM(size), 0) FROM cache_entries`).Scan(&total); err != nil {
			return ciherr.Wrap(ciherr.KindIO, "failed to compute cache size", err)
		}
		if total <= c.maxBytes {
			return nil
		}
		res, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = (SELECT key FROM cache_entries ORDER BY last_accessed ASC LIMIT 1)`)
		if err != nil {
			return ciherr.Wrap(ciherr.KindIO, "failed to evict oldest cache entry", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
	}
}
