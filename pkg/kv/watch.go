package kv

import (
	"context"
	"sync"
)

// Watch is a one-shot future that resolves when its key is next written
// (or cleared), or when the store shuts down. Watches are armed by
// Tx.Watch and become live only when that transaction commits.
type Watch struct {
	key  string
	ch   chan struct{}
	once sync.Once
	err  error
}

func newWatch(key string) *Watch {
	return &Watch{key: key, ch: make(chan struct{})}
}

func (w *Watch) fire(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.ch)
	})
}

// Done returns a channel closed when the watch resolves.
func (w *Watch) Done() <-chan struct{} { return w.ch }

// Wait blocks until the watch resolves or ctx is cancelled. A store
// shutdown resolves the watch with a StoreError of CodeShutdown.
func (w *Watch) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ch:
		return w.err
	}
}
