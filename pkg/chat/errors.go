package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUsernameTaken reports that the username already has a live
	// presence record in the room. Application-level; never retried.
	ErrUsernameTaken = errors.New("username taken")

	// ErrIdentityMismatch reports that the session's presence claim was
	// invalidated externally (cleared or re-claimed). Fatal to the
	// session.
	ErrIdentityMismatch = errors.New("presence identity mismatch")

	// ErrSessionClosed reports use of a session after Leave.
	ErrSessionClosed = errors.New("session closed")

	errInvalidUTF8 = errors.New("value is not valid UTF-8")
)

// DecodeError reports a stored row that does not parse as a message
// entry. Malformed data is surfaced, never skipped.
type DecodeError struct {
	Key []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode entry %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
