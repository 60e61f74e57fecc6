// Package modcache is a compiled-Module disk cache for the `vm` and
// `disasm` CLI subcommands: it hashes source text and looks up a
// previously compiled bytecode.Module keyed by that hash, stored gob-
// encoded in a small modernc.org/sqlite database file — mirroring
// funxy's own internal/vm/bundle.go gob-based bytecode bundle format,
// but backed by a real table instead of an ad hoc file layout. A cache
// miss never changes program semantics: the caller just recompiles and
// Put()s the result.
package modcache

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aldezex/moon/internal/bytecode"
)

func init() {
	gob.Register(bytecode.Module{})
}

// Key is the content hash of the source text a Module was compiled
// from; equal source always produces equal Key.
type Key string

// HashSource derives the cache Key for src.
func HashSource(src string) Key {
	sum := sha256.Sum256([]byte(src))
	return Key(hex.EncodeToString(sum[:]))
}

// Cache wraps a sqlite-backed key/value table of gob-encoded Modules.
// Every write is tagged with a fresh google/uuid entry id, returned by
// Put and surfaced through Get for log correlation. Evict removes an
// entry by its Key, not by entry id.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("modcache: opening %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS modules (
			key        TEXT PRIMARY KEY,
			entry_id   TEXT NOT NULL,
			blob       BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("modcache: creating schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (c *Cache) Close() error { return c.db.Close() }

// Entry is a cache hit: the decoded Module plus the uuid its Put call
// was tagged with.
type Entry struct {
	Module  *bytecode.Module
	EntryID string
}

// Get looks up key, returning ok=false on a miss (not an error — a
// miss is the expected, semantics-preserving path).
func (c *Cache) Get(key Key) (*Entry, bool, error) {
	var entryID string
	var blob []byte
	err := c.db.QueryRow(`SELECT entry_id, blob FROM modules WHERE key = ?`, string(key)).Scan(&entryID, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("modcache: querying: %w", err)
	}

	var mod bytecode.Module
	dec := gob.NewDecoder(bytes.NewReader(blob))
	if err := dec.Decode(&mod); err != nil {
		return nil, false, fmt.Errorf("modcache: decoding cached module: %w", err)
	}
	return &Entry{Module: &mod, EntryID: entryID}, true, nil
}

// Put stores module under key, replacing any prior entry, and returns
// the fresh entry id it was tagged with.
func (c *Cache) Put(key Key, module *bytecode.Module) (string, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(module); err != nil {
		return "", fmt.Errorf("modcache: encoding module: %w", err)
	}

	entryID := uuid.NewString()
	_, err := c.db.Exec(
		`INSERT INTO modules (key, entry_id, blob) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET entry_id = excluded.entry_id, blob = excluded.blob`,
		string(key), entryID, buf.Bytes(),
	)
	if err != nil {
		return "", fmt.Errorf("modcache: storing: %w", err)
	}
	return entryID, nil
}

// Evict removes key's entry, if present. Used to bound cache growth;
// a miss is not an error.
func (c *Cache) Evict(key Key) error {
	_, err := c.db.Exec(`DELETE FROM modules WHERE key = ?`, string(key))
	if err != nil {
		return fmt.Errorf("modcache: evicting: %w", err)
	}
	return nil
}

// Count returns the number of cached entries.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM modules`).Scan(&n); err != nil {
		return 0, fmt.Errorf("modcache: counting: %w", err)
	}
	return n, nil
}
