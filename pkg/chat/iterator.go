package chat

import (
	"context"
	"time"
)

// pageSize bounds how many entries one MessagesOrWatch transaction
// pulls into the iterator buffer.
const pageSize = 3

// MessageIterator is a pull cursor over a room's message log. It drains
// a small buffered page, then blocks on the room's marker watch until
// more messages commit. The sequence is infinite; Next returns only on
// error or context cancellation once the log is drained.
type MessageIterator struct {
	s    *Session
	buf  []Entry
	last time.Time
}

// Messages returns an iterator positioned strictly after `after`
// (zero means the beginning of the log).
func (s *Session) Messages(after time.Time) *MessageIterator {
	return &MessageIterator{s: s, last: after}
}

// Next returns the next message in timestamp order, suspending until
// one is available.
func (it *MessageIterator) Next(ctx context.Context) (Entry, error) {
	for {
		if len(it.buf) > 0 {
			e := it.buf[0]
			it.buf = it.buf[1:]
			return e, nil
		}
		entries, watch, err := it.s.MessagesOrWatch(ctx, it.last, pageSize)
		if err != nil {
			return Entry{}, err
		}
		if len(entries) > 0 {
			it.buf = entries
			it.last = entries[len(entries)-1].Timestamp
			continue
		}
		if err := watch.Wait(ctx); err != nil {
			return Entry{}, err
		}
	}
}
