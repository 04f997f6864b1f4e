package chat

import (
	"context"

	"go.uber.org/zap"

	"chatdb/pkg/keys"
	"chatdb/pkg/kv"
	"chatdb/pkg/logger"
	"chatdb/pkg/validation"
)

// Admin performs destructive room maintenance. ClearRoom has no
// interlock against live sessions; callers run it before any session in
// the room exists in the same process.
type Admin struct {
	exec *kv.Executor
}

// NewAdmin returns an Admin running on the given executor.
func NewAdmin(exec *kv.Executor) *Admin {
	return &Admin{exec: exec}
}

// ClearRoom deletes every key in the room's subspace: presence records,
// messages, and the most-recent-message marker.
func (a *Admin) ClearRoom(ctx context.Context, room string) error {
	if err := validation.RoomName(room); err != nil {
		return err
	}
	r := kv.PrefixRange(keys.RoomPrefix(room))
	err := a.exec.Run(ctx, func(tx *kv.Tx) error {
		tx.ClearRange(r)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Log.Info("room_cleared", zap.String("room", room))
	return nil
}
