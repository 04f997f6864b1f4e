// Package client composes the interactive chat loop: a send path
// reading lines, a receive path draining the message iterator, and an
// external shutdown signal, raced against each other. The first to
// finish decides the run; abandoned paths hold no partial store state
// because every mutation is transactional.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatdb/pkg/chat"
	"chatdb/pkg/keys"
	"chatdb/pkg/logger"
	"chatdb/pkg/telemetry"
)

// Options tunes the driving loop.
type Options struct {
	// RateRPS / RateBurst bound the send path. Zero values fall back
	// to 5 rps / burst 10.
	RateRPS   float64
	RateBurst int
}

const leaveTimeout = 5 * time.Second

// Run drives the session until the input source ends, a path fails, or
// ctx is cancelled. It always attempts a best-effort Leave on the way
// out; a Leave failure is logged and never masks the original error.
func Run(ctx context.Context, sess *chat.Session, in io.Reader, out io.Writer, opts Options) error {
	rps := opts.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 10
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- sendLoop(loopCtx, sess, in, lim) }()
	go func() { errc <- receiveLoop(loopCtx, sess, out) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Log.Info("shutdown_requested", zap.String("room", sess.Room()))
	case runErr = <-errc:
	}
	cancel()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer leaveCancel()
	if err := sess.Leave(leaveCtx); err != nil {
		logger.Log.Warn("leave_failed", zap.String("room", sess.Room()), zap.Error(err))
	}

	if runErr == nil || errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// sendLoop reads lines, skips blanks, and appends each as a message
// stamped with the wall clock. Returns nil on end of input.
func sendLoop(ctx context.Context, sess *chat.Session, in io.Reader, lim *rate.Limiter) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		if err := sess.Write(ctx, time.Now().UTC(), line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// receiveLoop drains the full log, history first, then blocks for new
// messages. It only returns with an error (including ctx cancellation).
func receiveLoop(ctx context.Context, sess *chat.Session, out io.Writer) error {
	it := sess.Messages(time.Time{})
	for {
		e, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "[%s] %s\n", keys.FormatTimestamp(e.Timestamp), e.Text); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		telemetry.MessagesReceived.Inc()
	}
}
