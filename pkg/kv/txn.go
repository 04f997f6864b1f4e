package kv

import (
	"sort"

	"github.com/cockroachdb/pebble"

	"chatdb/pkg/telemetry"
)

type writeOp struct {
	value  []byte
	delete bool
}

// Tx is a single transaction attempt. It captures a Pebble snapshot and
// a read version at creation; mutations buffer in a write set that reads
// observe (read-your-writes) and that commits as one atomic batch.
//
// A Tx is not safe for concurrent use and must not outlive the body that
// received it: the executor releases it after each attempt.
type Tx struct {
	db          *DB
	snap        *pebble.Snapshot
	readVersion uint64

	reads      map[string]struct{}
	rangeReads []KeyRange
	writes     map[string]writeOp
	clears     []KeyRange
	watches    []*Watch
}

func (db *DB) newTx() (*Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, shutdownErr()
	}
	// Snapshot and read version are taken under the commit lock so the
	// snapshot reflects exactly the state at readVersion.
	return &Tx{
		db:          db,
		snap:        db.pdb.NewSnapshot(),
		readVersion: db.version,
		reads:       make(map[string]struct{}),
		writes:      make(map[string]writeOp),
	}, nil
}

func (tx *Tx) release() {
	if tx.snap != nil {
		_ = tx.snap.Close()
		tx.snap = nil
	}
}

// lookup resolves key against the write set first, then the snapshot.
// The boolean reports whether the write set settled the answer.
func (tx *Tx) lookup(key []byte) ([]byte, bool, error) {
	if op, ok := tx.writes[string(key)]; ok {
		if op.delete {
			return nil, true, nil
		}
		return append([]byte(nil), op.value...), true, nil
	}
	for _, r := range tx.clears {
		if r.Contains(key) {
			return nil, true, nil
		}
	}
	v, closer, err := tx.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioErr(err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, false, nil
}

// Get reads key at full (serializable) isolation: the key joins the read
// set, so a concurrent committed write forces this transaction to
// conflict-retry. A missing key yields (nil, nil).
func (tx *Tx) Get(key []byte) ([]byte, error) {
	tx.reads[string(key)] = struct{}{}
	v, _, err := tx.lookup(key)
	return v, err
}

// GetSnapshot reads key at snapshot isolation; it never causes a
// conflict.
func (tx *Tx) GetSnapshot(key []byte) ([]byte, error) {
	v, _, err := tx.lookup(key)
	return v, err
}

// Set buffers a write of key = value.
func (tx *Tx) Set(key, value []byte) {
	tx.writes[string(key)] = writeOp{value: append([]byte(nil), value...)}
}

// Clear buffers a deletion of key.
func (tx *Tx) Clear(key []byte) {
	tx.writes[string(key)] = writeOp{delete: true}
}

// ClearRange buffers deletion of every key in r, including keys written
// earlier in this transaction.
func (tx *Tx) ClearRange(r KeyRange) {
	for k := range tx.writes {
		if r.Contains([]byte(k)) {
			delete(tx.writes, k)
		}
	}
	tx.clears = append(tx.clears, r)
}

// GetRange scans up to limit rows in r in ascending key order, merging
// the snapshot with this transaction's write set. limit <= 0 means
// unlimited. When snapshot is false the scanned range joins the read
// set and concurrent writes inside it conflict with this transaction.
func (tx *Tx) GetRange(r KeyRange, limit int, snapshot bool) ([]KV, error) {
	if !snapshot {
		tx.rangeReads = append(tx.rangeReads, r)
	}
	iter, err := tx.snap.NewIter(&pebble.IterOptions{LowerBound: r.Begin, UpperBound: r.End})
	if err != nil {
		return nil, ioErr(err)
	}
	merged := make(map[string][]byte)
	for iter.First(); iter.Valid(); iter.Next() {
		merged[string(iter.Key())] = append([]byte(nil), iter.Value()...)
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return nil, ioErr(err)
	}
	if err := iter.Close(); err != nil {
		return nil, ioErr(err)
	}
	for _, cr := range tx.clears {
		for k := range merged {
			if cr.Contains([]byte(k)) {
				delete(merged, k)
			}
		}
	}
	for k, op := range tx.writes {
		if !r.Contains([]byte(k)) {
			continue
		}
		if op.delete {
			delete(merged, k)
		} else {
			merged[k] = append([]byte(nil), op.value...)
		}
	}
	ks := make([]string, 0, len(merged))
	for k := range merged {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	if limit > 0 && len(ks) > limit {
		ks = ks[:limit]
	}
	out := make([]KV, 0, len(ks))
	for _, k := range ks {
		out = append(out, KV{Key: []byte(k), Value: merged[k]})
	}
	return out, nil
}

// Watch arms a watch on key that resolves the next time the key changes.
// The watch is registered only if this transaction commits, so a watch
// armed after an observation cannot miss a write committed later than
// that observation.
func (tx *Tx) Watch(key []byte) *Watch {
	w := newWatch(string(key))
	tx.watches = append(tx.watches, w)
	return w
}

// commit validates the read set and applies the write set atomically.
func (tx *Tx) commit() error {
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return shutdownErr()
	}

	for k := range tx.reads {
		if db.lastWrite[k] > tx.readVersion {
			telemetry.TxnConflicts.Inc()
			return conflictErr(k)
		}
		for _, rc := range db.lastClears {
			if rc.version > tx.readVersion && rc.r.Contains([]byte(k)) {
				telemetry.TxnConflicts.Inc()
				return conflictErr(k)
			}
		}
	}
	for _, rr := range tx.rangeReads {
		for k, v := range db.lastWrite {
			if v > tx.readVersion && rr.Contains([]byte(k)) {
				telemetry.TxnConflicts.Inc()
				return conflictErr(k)
			}
		}
		for _, rc := range db.lastClears {
			if rc.version > tx.readVersion && rc.r.overlaps(rr) {
				telemetry.TxnConflicts.Inc()
				return conflictErr(string(rr.Begin))
			}
		}
	}

	if len(tx.writes) > 0 || len(tx.clears) > 0 {
		batch := db.pdb.NewBatch()
		for _, r := range tx.clears {
			if err := batch.DeleteRange(r.Begin, r.End, nil); err != nil {
				return ioErr(err)
			}
		}
		ks := make([]string, 0, len(tx.writes))
		for k := range tx.writes {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		for _, k := range ks {
			op := tx.writes[k]
			var err error
			if op.delete {
				err = batch.Delete([]byte(k), nil)
			} else {
				err = batch.Set([]byte(k), op.value, nil)
			}
			if err != nil {
				return ioErr(err)
			}
		}
		if err := db.pdb.Apply(batch, pebble.Sync); err != nil {
			return ioErr(err)
		}

		db.version++
		v := db.version
		for k := range tx.writes {
			db.lastWrite[k] = v
			db.fireWatchersLocked(k)
		}
		for _, r := range tx.clears {
			db.lastClears = append(db.lastClears, rangeVersion{r: r, version: v})
			for k := range db.watchers {
				if r.Contains([]byte(k)) {
					db.fireWatchersLocked(k)
				}
			}
		}
	}

	for _, w := range tx.watches {
		db.watchers[w.key] = append(db.watchers[w.key], w)
	}
	return nil
}

func (db *DB) fireWatchersLocked(key string) {
	ws := db.watchers[key]
	if len(ws) == 0 {
		return
	}
	delete(db.watchers, key)
	for _, w := range ws {
		w.fire(nil)
		telemetry.WatchFires.Inc()
	}
}
