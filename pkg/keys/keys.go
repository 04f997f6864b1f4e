// Package keys defines the on-disk key schema for chat rooms. Every
// persisted row lives under a room subspace:
//
//	rooms:<room>:users:<username>     -> 16-byte presence identifier
//	rooms:<room>:messages:<timestamp> -> UTF-8 message text
//	rooms:<room>:most_recent_message  -> <timestamp>
//
// Timestamps render as RFC3339 UTC with exactly three fractional digits,
// a fixed-width form, so byte comparison of message keys equals
// chronological comparison. Room and username strings are validated by
// pkg/validation before they reach this package; they never contain ':'.
package keys

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout renders millisecond precision at a fixed UTC offset.
// The trailing "Z" is literal: timestamps are always formatted in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ErrMalformedKey reports input that does not decode as a schema key.
var ErrMalformedKey = errors.New("malformed key")

const (
	rootPrefix     = "rooms:"
	usersSegment   = ":users:"
	msgSegment     = ":messages:"
	markerSegment  = ":most_recent_message"
	timestampWidth = len(TimestampLayout)
)

// FormatTimestamp renders t in the canonical key form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a canonical timestamp string. Non-canonical
// renderings (wrong width, missing zero padding, non-UTC offset) fail
// with ErrMalformedKey even when they would parse as RFC3339.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) != timestampWidth {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: want %d bytes", ErrMalformedKey, s, timestampWidth)
	}
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedKey, s, err)
	}
	if FormatTimestamp(t) != s {
		return time.Time{}, fmt.Errorf("%w: timestamp %q is not canonical", ErrMalformedKey, s)
	}
	return t, nil
}

// RoomPrefix returns the prefix covering every key in a room's subspace.
func RoomPrefix(room string) []byte {
	return []byte(rootPrefix + room + ":")
}

// PresenceKey addresses the presence record for (room, username).
func PresenceKey(room, username string) []byte {
	return []byte(rootPrefix + room + usersSegment + username)
}

// MessageKey addresses the message record written at ts.
func MessageKey(room string, ts time.Time) []byte {
	return []byte(rootPrefix + room + msgSegment + FormatTimestamp(ts))
}

// MessagePrefix returns the prefix covering all message records in room.
func MessagePrefix(room string) []byte {
	return []byte(rootPrefix + room + msgSegment)
}

// MarkerKey addresses the most-recent-message marker for room.
func MarkerKey(room string) []byte {
	return []byte(rootPrefix + room + markerSegment)
}

// ParseMessageKey decodes a message key back into its room and
// timestamp. It is the inverse of MessageKey for every key that package
// produces; anything else fails with ErrMalformedKey.
func ParseMessageKey(k []byte) (room string, ts time.Time, err error) {
	s := string(k)
	if !strings.HasPrefix(s, rootPrefix) {
		return "", time.Time{}, fmt.Errorf("%w: %q lacks %q prefix", ErrMalformedKey, s, rootPrefix)
	}
	rest := s[len(rootPrefix):]
	i := strings.Index(rest, msgSegment)
	if i < 0 {
		return "", time.Time{}, fmt.Errorf("%w: %q is not a message key", ErrMalformedKey, s)
	}
	room = rest[:i]
	if room == "" || strings.Contains(room, ":") {
		return "", time.Time{}, fmt.Errorf("%w: %q has an invalid room segment", ErrMalformedKey, s)
	}
	ts, err = ParseTimestamp(rest[i+len(msgSegment):])
	if err != nil {
		return "", time.Time{}, err
	}
	return room, ts, nil
}
