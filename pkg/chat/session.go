// Package chat implements the room session protocol: claiming a unique
// identity, appending to the time-ordered message log, and waiting for
// new messages without polling. All state lives in the store; a Session
// holds only the identifiers needed to address and validate its rows.
package chat

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatdb/pkg/keys"
	"chatdb/pkg/kv"
	"chatdb/pkg/logger"
	"chatdb/pkg/telemetry"
	"chatdb/pkg/validation"
)

// Entry is one decoded message record.
type Entry struct {
	Timestamp time.Time
	Text      string
}

// Session is one user's live connection to a room.
type Session struct {
	db       *kv.DB
	exec     *kv.Executor
	room     string
	username string
	identity uuid.UUID
	left     bool
}

// Join claims (room, username) and returns a live session. The presence
// check is a serializable read: two concurrent joins for the same name
// conflict at the store, the loser re-runs, observes the winner's
// record, and fails with ErrUsernameTaken.
func Join(ctx context.Context, db *kv.DB, exec *kv.Executor, room, username string) (*Session, error) {
	if err := validation.RoomName(room); err != nil {
		return nil, err
	}
	if err := validation.Username(username); err != nil {
		return nil, err
	}
	// Generated once so retried attempts write the same value.
	id := uuid.New()
	pk := keys.PresenceKey(room, username)
	err := exec.Run(ctx, func(tx *kv.Tx) error {
		existing, err := tx.Get(pk)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrUsernameTaken
		}
		tx.Set(pk, id[:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("joined_room",
		zap.String("room", room),
		zap.String("user", username),
		zap.String("session", id.String()),
	)
	return &Session{db: db, exec: exec, room: room, username: username, identity: id}, nil
}

// Room returns the room this session is joined to.
func (s *Session) Room() string { return s.room }

// Username returns the name this session claimed.
func (s *Session) Username() string { return s.username }

// Leave releases the presence record and consumes the session. It is a
// no-op after a previous successful Leave. The record is cleared only
// when it still carries this session's identifier; a mismatch (or a
// record already removed by someone else) means the claim was
// superseded and fails with ErrIdentityMismatch without touching the
// stored record.
func (s *Session) Leave(ctx context.Context) error {
	if s.left {
		return nil
	}
	pk := keys.PresenceKey(s.room, s.username)
	err := s.exec.Run(ctx, func(tx *kv.Tx) error {
		stored, err := tx.Get(pk)
		if err != nil {
			return err
		}
		if string(stored) != string(s.identity[:]) {
			return ErrIdentityMismatch
		}
		tx.Clear(pk)
		return nil
	})
	if err == nil || err == ErrIdentityMismatch {
		s.left = true
	}
	if err != nil {
		return err
	}
	logger.Log.Info("left_room", zap.String("room", s.room), zap.String("user", s.username))
	return nil
}

// Write appends text at ts and moves the most-recent-message marker in
// the same transaction. The caller supplies ts and is responsible for
// keeping its timestamps non-decreasing; both writes are the same value
// on every retry, so the operation is safe under the retry policy.
func (s *Session) Write(ctx context.Context, ts time.Time, text string) error {
	if s.left {
		return ErrSessionClosed
	}
	mk := keys.MessageKey(s.room, ts)
	stamp := []byte(keys.FormatTimestamp(ts))
	err := s.exec.Run(ctx, func(tx *kv.Tx) error {
		tx.Set(mk, []byte(text))
		tx.Set(keys.MarkerKey(s.room), stamp)
		return nil
	})
	if err != nil {
		return err
	}
	telemetry.MessagesSent.Inc()
	logger.Log.Debug("message_written", zap.String("room", s.room), zap.ByteString("key", mk))
	return nil
}

// messageRange is the scan interval for a room's messages, starting
// strictly after `after` when it is non-zero. Message keys are fixed
// width, so appending a zero byte to a key is the tightest strictly-
// greater lower bound.
func messageRange(room string, after time.Time) kv.KeyRange {
	full := kv.PrefixRange(keys.MessagePrefix(room))
	if after.IsZero() {
		return full
	}
	begin := append(keys.MessageKey(room, after), 0x00)
	return kv.KeyRange{Begin: begin, End: full.End}
}

func decodeEntries(kvs []kv.KV) ([]Entry, error) {
	out := make([]Entry, 0, len(kvs))
	for _, row := range kvs {
		_, ts, err := keys.ParseMessageKey(row.Key)
		if err != nil {
			return nil, &DecodeError{Key: row.Key, Err: err}
		}
		if !utf8.Valid(row.Value) {
			return nil, &DecodeError{Key: row.Key, Err: errInvalidUTF8}
		}
		out = append(out, Entry{Timestamp: ts, Text: string(row.Value)})
	}
	return out, nil
}

// ReadRoom returns every message in a room in chronological order,
// optionally starting strictly after the given timestamp, without
// requiring a presence claim. All rows are read in one transaction; a
// row that fails to decode aborts the read with a DecodeError.
func ReadRoom(ctx context.Context, exec *kv.Executor, room string, after time.Time) ([]Entry, error) {
	if err := validation.RoomName(room); err != nil {
		return nil, err
	}
	var entries []Entry
	err := exec.Run(ctx, func(tx *kv.Tx) error {
		entries = nil
		kvs, err := tx.GetRange(messageRange(room, after), 0, true)
		if err != nil {
			return err
		}
		entries, err = decodeEntries(kvs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadAll is ReadRoom scoped to this session's room.
func (s *Session) ReadAll(ctx context.Context, after time.Time) ([]Entry, error) {
	return ReadRoom(ctx, s.exec, s.room, after)
}

// MessagesOrWatch scans up to limit messages strictly after `after`.
// A non-empty scan returns the entries with a nil watch. An empty scan
// arms a watch on the most-recent-message marker inside the same
// transaction and returns it with nil entries; the serializable read of
// the marker below is what closes the lost-wakeup window: a message
// committed between this scan and our commit moves the marker, which
// either conflicts this transaction into a re-scan or lands after the
// watch is live.
func (s *Session) MessagesOrWatch(ctx context.Context, after time.Time, limit int) ([]Entry, *kv.Watch, error) {
	var entries []Entry
	var watch *kv.Watch
	mk := keys.MarkerKey(s.room)
	err := s.exec.Run(ctx, func(tx *kv.Tx) error {
		entries, watch = nil, nil
		kvs, err := tx.GetRange(messageRange(s.room, after), limit, true)
		if err != nil {
			return err
		}
		if len(kvs) > 0 {
			entries, err = decodeEntries(kvs)
			return err
		}
		if _, err := tx.Get(mk); err != nil {
			return err
		}
		watch = tx.Watch(mk)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, watch, nil
}
