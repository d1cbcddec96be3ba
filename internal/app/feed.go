package app

import (
	"sync"

	"eduquiz-ledger/internal/domain"
)

// Feed fans ledger events out to subscribers. Slow subscribers never block a
// publish: when a channel is full the oldest pending event is dropped in
// favor of the new one.
type Feed struct {
	mu   sync.Mutex
	subs map[chan domain.FeedEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan domain.FeedEvent]struct{})}
}

// Subscribe returns a channel of ledger events. The caller must invoke the
// returned cancel function to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.FeedEvent, func()) {
	ch := make(chan domain.FeedEvent, 16)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *Feed) publish(ev domain.FeedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
