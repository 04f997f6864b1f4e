package kv

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chatdb/pkg/logger"
	"chatdb/pkg/telemetry"
)

// RetryPolicy is the executor's immutable configuration, fixed at
// construction. Timeout of zero imposes no deadline beyond the caller's
// context. Idempotent records whether bodies may observe their own
// earlier effects; with it false, bodies must write idempotently
// (same value each attempt) since a retried attempt may duplicate work.
type RetryPolicy struct {
	MaxRetries int
	Timeout    time.Duration
	Idempotent bool
}

// DefaultRetryPolicy bounds duplicate-write exposure to three automatic
// retries, with no executor-imposed timeout.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3}

// Executor runs transaction bodies with automatic retries of
// store-transient errors. Application errors propagate on the first
// occurrence, untouched.
type Executor struct {
	db     *DB
	policy RetryPolicy
}

// NewExecutor binds a retry policy to a store handle.
func NewExecutor(db *DB, policy RetryPolicy) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Executor{db: db, policy: policy}
}

// Run executes body under a fresh transaction, committing on a nil
// return. Retryable store errors re-run body up to MaxRetries times;
// everything else aborts immediately. Each retry sees a fresh Tx, so
// bodies must not keep state from failed attempts.
func (e *Executor) Run(ctx context.Context, body func(tx *Tx) error) error {
	if e.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx, err := e.db.newTx()
		if err != nil {
			return err
		}
		err = body(tx)
		if err == nil {
			err = tx.commit()
		}
		tx.release()
		if err == nil {
			telemetry.TxnCommits.Inc()
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt < e.policy.MaxRetries {
			telemetry.TxnRetries.Inc()
			logger.Log.Debug("txn_retry", zap.Int("attempt", attempt+1), zap.Error(err))
		}
	}
	return lastErr
}
