// Package cache stores compiled modules in SQLite, keyed by the digest of
// the source and compile options.
package cache

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/hce/govm/compiler"
)

var log = commonlog.GetLogger("govm.cache")

// ErrNotFound indicates the requested key is not cached.
var ErrNotFound = errors.New("cache entry not found")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Entry is one cached compile result.
type Entry struct {
	Artifact []byte `cbor:"1,keyasint"`
	Log      []byte `cbor:"2,keyasint"`
	Created  int64  `cbor:"3,keyasint"`
}

// MarshalEntry encodes an entry as canonical CBOR.
func MarshalEntry(e *Entry) ([]byte, error) {
	return encMode.Marshal(e)
}

// UnmarshalEntry decodes an entry.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cache: unmarshal entry: %w", err)
	}
	return &e, nil
}

// Cache is a SQLite-backed artifact store. It is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		key TEXT PRIMARY KEY,
		record BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Infof("artifact cache at %s", path)
	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file.
func (c *Cache) Path() string { return c.path }

// Get returns the entry for key or ErrNotFound.
func (c *Cache) Get(key [32]byte) (*Entry, error) {
	var record []byte
	err := c.db.QueryRow("SELECT record FROM artifacts WHERE key = ?", hex.EncodeToString(key[:])).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	return UnmarshalEntry(record)
}

// Put stores e under key, replacing any previous entry.
func (c *Cache) Put(key [32]byte, e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Created == 0 {
		e.Created = time.Now().Unix()
	}
	record, err := MarshalEntry(e)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO artifacts (key, record, created) VALUES (?, ?, ?)",
		hex.EncodeToString(key[:]), record, e.Created,
	)
	if err != nil {
		return fmt.Errorf("saving artifact: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (c *Cache) Delete(key [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM artifacts WHERE key = ?", hex.EncodeToString(key[:])); err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting artifacts: %w", err)
	}
	return n, nil
}

// Prune removes entries created before cutoff and returns how many went.
func (c *Cache) Prune(cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM artifacts WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning artifacts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Compile returns a cached result for source, compiling and storing it on
// a miss. Failed jobs are not cached. A nil Cache just compiles.
func (c *Cache) Compile(source []byte, opts compiler.Options) *compiler.Result {
	if c == nil {
		return compiler.Compile(source, opts)
	}
	key := compiler.Key(source, opts)
	if e, err := c.Get(key); err == nil {
		log.Debugf("cache hit %x", key[:6])
		return &compiler.Result{Artifact: e.Artifact, Log: e.Log}
	} else if !errors.Is(err, ErrNotFound) {
		log.Warningf("cache lookup failed: %v", err)
	}

	res := compiler.Compile(source, opts)
	if res.OK() {
		if err := c.Put(key, &Entry{Artifact: res.Artifact, Log: res.Log}); err != nil {
			log.Warningf("cache store failed: %v", err)
		}
	}
	return res
}
