// Package kv is a transactional layer over an ordered key-value engine
// (Pebble). It provides atomic multi-key read/write transactions with
// optimistic concurrency control, snapshot and serializable reads, range
// scans, key watches armed at commit time, and a retrying executor.
//
// Conflict detection is in-process: a DB is the single writer for its
// Pebble directory, and concurrency happens across goroutines sharing
// one *DB.
package kv

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"chatdb/pkg/logger"
)

// KV is one row returned by a range scan.
type KV struct {
	Key   []byte
	Value []byte
}

// KeyRange is the half-open interval [Begin, End).
type KeyRange struct {
	Begin []byte
	End   []byte
}

// Contains reports whether key falls inside the range.
func (r KeyRange) Contains(key []byte) bool {
	return bytes.Compare(key, r.Begin) >= 0 && bytes.Compare(key, r.End) < 0
}

func (r KeyRange) overlaps(o KeyRange) bool {
	return bytes.Compare(r.Begin, o.End) < 0 && bytes.Compare(o.Begin, r.End) < 0
}

// PrefixRange returns the range covering every key that starts with
// prefix.
func PrefixRange(prefix []byte) KeyRange {
	return KeyRange{Begin: append([]byte(nil), prefix...), End: prefixSuccessor(prefix)}
}

// prefixSuccessor returns the smallest key greater than every key with
// the given prefix, or nil when no such key exists (all-0xff prefix).
func prefixSuccessor(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

type rangeVersion struct {
	r       KeyRange
	version uint64
}

// DB is the store handle. It owns the Pebble instance plus the in-memory
// commit metadata used for conflict detection and watch delivery.
type DB struct {
	pdb  *pebble.DB
	path string

	mu         sync.Mutex
	closed     bool
	version    uint64
	lastWrite  map[string]uint64
	lastClears []rangeVersion
	watchers   map[string][]*Watch
}

// Open opens (or creates) the store at path.
func Open(path string) (*DB, error) {
	logger.Log.Info("opening_store", zap.String("path", path))
	pdb, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("store_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	logger.Log.Info("store_opened", zap.String("path", path))
	return &DB{
		pdb:       pdb,
		path:      path,
		lastWrite: make(map[string]uint64),
		watchers:  make(map[string][]*Watch),
	}, nil
}

// Close closes the store. Pending watches resolve with a shutdown error
// so waiters are not left blocked.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	for key, ws := range db.watchers {
		for _, w := range ws {
			w.fire(shutdownErr())
		}
		delete(db.watchers, key)
	}
	db.mu.Unlock()

	if err := db.pdb.Close(); err != nil {
		return err
	}
	logger.Log.Info("store_closed", zap.String("path", db.path))
	return nil
}

// Path returns the directory backing the store.
func (db *DB) Path() string { return db.path }
