package kv

import (
	"errors"
	"fmt"
)

// Code classifies store errors. The executor consults Retryable to decide
// whether to re-run a transaction body; application errors never carry a
// Code and are never retried.
type Code int

const (
	// CodeConflict: read-set validation failed because another
	// transaction committed first. Retryable.
	CodeConflict Code = iota + 1
	// CodeShutdown: the store was closed while the operation was in
	// flight. Not retryable.
	CodeShutdown
	// CodeIO: the engine failed to persist a batch. Not retryable.
	CodeIO
)

func (c Code) String() string {
	switch c {
	case CodeConflict:
		return "conflict"
	case CodeShutdown:
		return "shutdown"
	case CodeIO:
		return "io"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// StoreError is the store-classified half of the error taxonomy: a tagged
// code plus an optional underlying cause.
type StoreError struct {
	Code Code
	msg  string
	err  error
}

func (e *StoreError) Error() string {
	s := "store error: " + e.Code.String()
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.err != nil {
		s += ": " + e.err.Error()
	}
	return s
}

func (e *StoreError) Unwrap() error { return e.err }

// Retryable reports whether the executor may re-run the transaction.
func (e *StoreError) Retryable() bool { return e.Code == CodeConflict }

// IsRetryable reports whether err is a store error eligible for an
// automatic transaction retry.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable()
}

func conflictErr(key string) error {
	return &StoreError{Code: CodeConflict, msg: "read of " + key + " invalidated"}
}

func shutdownErr() error {
	return &StoreError{Code: CodeShutdown, msg: "store closed"}
}

func ioErr(cause error) error {
	return &StoreError{Code: CodeIO, err: cause}
}
