package chat

import (
	"context"
	"testing"
	"time"

	"chatdb/pkg/keys"
	"chatdb/pkg/kv"
)

func TestClearRoomWipesWholeSubspace(t *testing.T) {
	db, exec := openTestStore(t)
	ctx := context.Background()

	sess, err := Join(ctx, db, exec, "r1", "alice")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := sess.Write(ctx, ts(t, "2024-05-17T09:30:12.345Z"), "hi"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// An unrelated room must survive.
	other, err := Join(ctx, db, exec, "r2", "bob")
	if err != nil {
		t.Fatalf("Join r2: %v", err)
	}
	if err := other.Write(ctx, ts(t, "2024-05-17T09:30:12.345Z"), "kept"); err != nil {
		t.Fatalf("Write r2: %v", err)
	}

	if err := NewAdmin(exec).ClearRoom(ctx, "r1"); err != nil {
		t.Fatalf("ClearRoom: %v", err)
	}

	if err := exec.Run(ctx, func(tx *kv.Tx) error {
		kvs, err := tx.GetRange(kv.PrefixRange(keys.RoomPrefix("r1")), 0, true)
		if err != nil {
			return err
		}
		if len(kvs) != 0 {
			t.Fatalf("r1 subspace not empty: %d rows", len(kvs))
		}
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := other.ReadAll(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ReadAll r2: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "kept" {
		t.Fatalf("r2 damaged by r1 clear: %v", entries)
	}
}

func TestClearRoomValidatesName(t *testing.T) {
	_, exec := openTestStore(t)
	if err := NewAdmin(exec).ClearRoom(context.Background(), "bad:room"); err == nil {
		t.Fatalf("ClearRoom accepted a room name containing ':'")
	}
}
