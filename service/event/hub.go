package event

import (
	"context"
	"sync"
	"sync/atomic"

	"pledge/core"

	"github.com/fox-one/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Hub fans committed events out to subscribers. Publish never blocks, an
// event is dropped for a subscriber whose buffer is full and the drop is
// counted on its subscription.
type Hub struct {
	mux    sync.RWMutex
	buffer int
	subs   map[int]*Subscription
	seq    int
}

// Subscription a subscriber's event channel
type Subscription struct {
	C <-chan core.Event

	ch      chan core.Event
	dropped atomic.Int64
	cancel  func()
}

// Dropped number of events lost since the last call, resets the count
func (s *Subscription) Dropped() int64 {
	return s.dropped.Swap(0)
}

// Cancel unsubscribe and close C, safe to call more than once
func (s *Subscription) Cancel() {
	s.cancel()
}

// New new hub, buffer is the channel size of each subscription
func New(buffer int) *Hub {
	return &Hub{
		buffer: buffer,
		subs:   make(map[int]*Subscription),
	}
}

// Publish implements core.EventPublisher
func (h *Hub) Publish(ctx context.Context, event core.Event) {
	h.mux.RLock()
	defer h.mux.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			logger.FromContext(ctx).WithFields(logrus.Fields{
				"kind": event.Kind,
				"loan": event.LoanID,
			}).Warnln("event: subscriber full, dropped")
		}
	}
}

// Subscribe new subscription on the hub
func (h *Hub) Subscribe() *Subscription {
	h.mux.Lock()
	defer h.mux.Unlock()

	h.seq++
	key := h.seq
	ch := make(chan core.Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch}
	h.subs[key] = sub

	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			h.mux.Lock()
			delete(h.subs, key)
			h.mux.Unlock()
			close(ch)
		})
	}

	return sub
}
