package main

import (
	"sync"
	"time"
)

// mTicker fans one time.Ticker out to many subscribers. Every connection
// writer subscribes to the same ticker to pace its pings.
type mTicker struct {
	mux         sync.Mutex // Protects subscribers
	subscribers subscribers

	tickerMux sync.Mutex // Used to sync start/stop
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   bool
	dropped   int
}

type subscribers map[*subscriber]struct{}

type subscriber struct {
	tick chan time.Time
}

// newMTicker creates and starts a ticker firing every interval.
func newMTicker(interval time.Duration) *mTicker {
	t := &mTicker{
		subscribers: make(subscribers),
		ticker:      time.NewTicker(interval),
		stopCh:      make(chan struct{}),
	}
	go t.tick()
	return t
}

// subscribe returns a subscriber whose channel receives ticks. Ticks it is
// not ready to receive are discarded.
func (t *mTicker) subscribe() *subscriber {
	t.mux.Lock()
	defer t.mux.Unlock()

	sub := &subscriber{tick: make(chan time.Time, 1)}
	if t.stopped {
		close(sub.tick)
		return sub
	}
	t.subscribers[sub] = struct{}{}
	return sub
}

func (t *mTicker) unsubscribe(sub *subscriber) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if _, ok := t.subscribers[sub]; !ok {
		return
	}
	close(sub.tick)
	delete(t.subscribers, sub)
}

// stop halts the ticker and closes every subscribed channel.
func (t *mTicker) stop() {
	t.tickerMux.Lock()
	defer t.tickerMux.Unlock()
	if t.stopped {
		return
	}
	t.ticker.Stop()
	close(t.stopCh)

	t.mux.Lock()
	t.stopped = true
	for sub := range t.subscribers {
		close(sub.tick)
		delete(t.subscribers, sub)
	}
	t.mux.Unlock()
}

func (t *mTicker) tick() {
	for {
		select {
		case tick := <-t.ticker.C:
			t.mux.Lock()
			for sub := range t.subscribers {
				select {
				case sub.tick <- tick:
				default:
					t.dropped++
				}
			}
			t.mux.Unlock()
		case <-t.stopCh:
			return
		}
	}
}

func (t *mTicker) count() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.subscribers)
}
