package kv

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) (*DB, *Executor) {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, NewExecutor(db, DefaultRetryPolicy)
}

func mustRun(t *testing.T, exec *Executor, body func(tx *Tx) error) {
	t.Helper()
	if err := exec.Run(context.Background(), body); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	_, exec := openTestDB(t)
	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("hello"), []byte("world"))
		return nil
	})
	var got []byte
	mustRun(t, exec, func(tx *Tx) error {
		v, err := tx.Get([]byte("hello"))
		got = v
		return err
	})
	if string(got) != "world" {
		t.Fatalf("Get = %q; want world", got)
	}
}

func TestGetMissingKeyIsNil(t *testing.T) {
	_, exec := openTestDB(t)
	mustRun(t, exec, func(tx *Tx) error {
		v, err := tx.Get([]byte("absent"))
		if err != nil {
			return err
		}
		if v != nil {
			t.Fatalf("Get(absent) = %q; want nil", v)
		}
		return nil
	})
}

func TestReadYourWrites(t *testing.T) {
	_, exec := openTestDB(t)
	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("k"), []byte("v"))
		got, err := tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		if string(got) != "v" {
			t.Fatalf("uncommitted write invisible: got %q", got)
		}
		tx.Clear([]byte("k"))
		got, err = tx.Get([]byte("k"))
		if err != nil {
			return err
		}
		if got != nil {
			t.Fatalf("uncommitted clear invisible: got %q", got)
		}
		return nil
	})
}

func TestGetRangeMergesWriteSet(t *testing.T) {
	_, exec := openTestDB(t)
	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("p:a"), []byte("1"))
		tx.Set([]byte("p:c"), []byte("3"))
		return nil
	})
	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("p:b"), []byte("2"))
		tx.Clear([]byte("p:c"))
		kvs, err := tx.GetRange(PrefixRange([]byte("p:")), 0, true)
		if err != nil {
			return err
		}
		if len(kvs) != 2 {
			t.Fatalf("got %d rows; want 2", len(kvs))
		}
		if string(kvs[0].Key) != "p:a" || string(kvs[1].Key) != "p:b" {
			t.Fatalf("rows out of order: %q, %q", kvs[0].Key, kvs[1].Key)
		}
		return nil
	})
}

func TestGetRangeLimit(t *testing.T) {
	_, exec := openTestDB(t)
	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("p:a"), []byte("1"))
		tx.Set([]byte("p:b"), []byte("2"))
		tx.Set([]byte("p:c"), []byte("3"))
		return nil
	})
	mustRun(t, exec, func(tx *Tx) error {
		kvs, err := tx.GetRange(PrefixRange([]byte("p:")), 2, true)
		if err != nil {
			return err
		}
		if len(kvs) != 2 || string(kvs[1].Key) != "p:b" {
			t.Fatalf("limit scan wrong: %d rows", len(kvs))
		}
		return nil
	})
}

func TestClearRangeDeletesSubspace(t *testing.T) {
	_, exec := openTestDB(t)
	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("p:a"), []byte("1"))
		tx.Set([]byte("p:b"), []byte("2"))
		tx.Set([]byte("q:a"), []byte("3"))
		return nil
	})
	mustRun(t, exec, func(tx *Tx) error {
		tx.ClearRange(PrefixRange([]byte("p:")))
		return nil
	})
	mustRun(t, exec, func(tx *Tx) error {
		kvs, err := tx.GetRange(PrefixRange([]byte("p:")), 0, true)
		if err != nil {
			return err
		}
		if len(kvs) != 0 {
			t.Fatalf("subspace not cleared: %d rows remain", len(kvs))
		}
		v, err := tx.Get([]byte("q:a"))
		if err != nil {
			return err
		}
		if string(v) != "3" {
			t.Fatalf("neighboring subspace damaged: %q", v)
		}
		return nil
	})
}

// A serializable read of a key written by a concurrent commit must force
// a conflict retry; the retried body then observes the winner's write.
func TestSerializableReadConflicts(t *testing.T) {
	db, exec := openTestDB(t)

	attempts := 0
	var seen []byte
	err := exec.Run(context.Background(), func(tx *Tx) error {
		attempts++
		v, err := tx.Get([]byte("contended"))
		if err != nil {
			return err
		}
		seen = v
		if attempts == 1 {
			// Interleave a winning writer between our read and commit.
			other, err := db.newTx()
			if err != nil {
				return err
			}
			other.Set([]byte("contended"), []byte("winner"))
			if err := other.commit(); err != nil {
				return err
			}
			other.release()
		}
		tx.Set([]byte("mine"), []byte("x"))
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d; want 2 (one conflict retry)", attempts)
	}
	if string(seen) != "winner" {
		t.Fatalf("retry did not observe winner's write: %q", seen)
	}
}

// Snapshot reads never join the read set and never conflict.
func TestSnapshotReadDoesNotConflict(t *testing.T) {
	db, exec := openTestDB(t)

	attempts := 0
	err := exec.Run(context.Background(), func(tx *Tx) error {
		attempts++
		if _, err := tx.GetSnapshot([]byte("contended")); err != nil {
			return err
		}
		other, err := db.newTx()
		if err != nil {
			return err
		}
		other.Set([]byte("contended"), []byte("winner"))
		if err := other.commit(); err != nil {
			return err
		}
		other.release()
		tx.Set([]byte("mine"), []byte("x"))
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d; want 1", attempts)
	}
}

func TestApplicationErrorNotRetried(t *testing.T) {
	_, exec := openTestDB(t)
	appErr := errors.New("application says no")
	attempts := 0
	err := exec.Run(context.Background(), func(tx *Tx) error {
		attempts++
		return appErr
	})
	if !errors.Is(err, appErr) {
		t.Fatalf("Run = %v; want application error", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d; want 1", attempts)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	exec := NewExecutor(db, RetryPolicy{MaxRetries: 2})

	attempts := 0
	err = exec.Run(context.Background(), func(tx *Tx) error {
		attempts++
		if _, err := tx.Get([]byte("contended")); err != nil {
			return err
		}
		// Every attempt loses to a fresh writer.
		other, err := db.newTx()
		if err != nil {
			return err
		}
		other.Set([]byte("contended"), []byte("winner"))
		if err := other.commit(); err != nil {
			return err
		}
		other.release()
		return nil
	})
	var se *StoreError
	if !errors.As(err, &se) || se.Code != CodeConflict {
		t.Fatalf("Run = %v; want conflict StoreError", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d; want 3 (initial + 2 retries)", attempts)
	}
}

func TestWatchFiresOnLaterWrite(t *testing.T) {
	_, exec := openTestDB(t)

	var w *Watch
	mustRun(t, exec, func(tx *Tx) error {
		w = tx.Watch([]byte("marker"))
		return nil
	})
	select {
	case <-w.Done():
		t.Fatalf("watch fired before any write")
	default:
	}

	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("marker"), []byte("moved"))
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// A watch armed by a conflicted attempt must never become live.
func TestWatchNotArmedOnConflict(t *testing.T) {
	db, exec := openTestDB(t)

	var stale, live *Watch
	attempts := 0
	err := exec.Run(context.Background(), func(tx *Tx) error {
		attempts++
		if _, err := tx.Get([]byte("guard")); err != nil {
			return err
		}
		w := tx.Watch([]byte("watched"))
		if attempts == 1 {
			stale = w
			other, err := db.newTx()
			if err != nil {
				return err
			}
			other.Set([]byte("guard"), []byte("x"))
			if err := other.commit(); err != nil {
				return err
			}
			other.release()
		} else {
			live = w
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d; want 2", attempts)
	}

	mustRun(t, exec, func(tx *Tx) error {
		tx.Set([]byte("watched"), []byte("now"))
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := live.Wait(ctx); err != nil {
		t.Fatalf("live watch did not fire: %v", err)
	}
	select {
	case <-stale.Done():
		t.Fatalf("watch from conflicted attempt became live")
	default:
	}
}

func TestWatchResolvedOnClose(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exec := NewExecutor(db, DefaultRetryPolicy)

	var w *Watch
	if err := exec.Run(context.Background(), func(tx *Tx) error {
		w = tx.Watch([]byte("marker"))
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = w.Wait(ctx)
	var se *StoreError
	if !errors.As(err, &se) || se.Code != CodeShutdown {
		t.Fatalf("Wait after close = %v; want shutdown StoreError", err)
	}
}

func TestPrefixSuccessor(t *testing.T) {
	r := PrefixRange([]byte("p:"))
	if !r.Contains([]byte("p:anything")) {
		t.Fatalf("range misses member key")
	}
	if r.Contains([]byte("p;")) || r.Contains([]byte("q")) {
		t.Fatalf("range leaks past prefix")
	}
	if !bytes.Equal(r.End, []byte("p;")) {
		t.Fatalf("End = %q; want p;", r.End)
	}
}

func TestValuesPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exec := NewExecutor(db, DefaultRetryPolicy)
	if err := exec.Run(context.Background(), func(tx *Tx) error {
		tx.Set([]byte("durable"), []byte("yes"))
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	exec2 := NewExecutor(db2, DefaultRetryPolicy)
	var got []byte
	if err := exec2.Run(context.Background(), func(tx *Tx) error {
		v, err := tx.Get([]byte("durable"))
		got = v
		return err
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(got) != "yes" {
		t.Fatalf("value lost across reopen: %q", got)
	}
}
