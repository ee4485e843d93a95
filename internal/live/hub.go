package live

import (
	"log/slog"
	"sync"

	"refdesk/internal/core"
)

// subscriptionBuffer bounds how many undelivered snapshots a subscriber may
// queue. Snapshots are self-contained, so under backpressure the oldest one
// is dropped in favor of the newest.
const subscriptionBuffer = 8

// Hub fans full-day tally snapshots out to per-day subscribers. Publish
// never blocks on a slow subscriber, and Cancel is a delivery barrier: once
// it returns, no further snapshot reaches that subscription.
type Hub struct {
	mu   sync.RWMutex
	subs map[core.Day]map[*Subscription]struct{}
}

// Subscription is one observer of a single day's tally. Receive snapshots
// from C; the channel is closed after Cancel.
type Subscription struct {
	C <-chan core.DailyTally

	hub  *Hub
	day  core.Day
	ch   chan core.DailyTally
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[core.Day]map[*Subscription]struct{})}
}

// Subscribe registers an observer for day and queues the initial snapshot
// so every subscriber sees a first delivery even before any remote change.
func (h *Hub) Subscribe(day core.Day, initial core.DailyTally) *Subscription {
	sub := &Subscription{
		hub: h,
		day: day,
		ch:  make(chan core.DailyTally, subscriptionBuffer),
	}
	sub.C = sub.ch

	h.mu.Lock()
	if h.subs[day] == nil {
		h.subs[day] = make(map[*Subscription]struct{})
	}
	h.subs[day][sub] = struct{}{}
	sub.ch <- initial.Clone()
	h.mu.Unlock()

	return sub
}

// Publish delivers a snapshot to every subscriber of the snapshot's day.
// Duplicate deliveries of an unchanged snapshot are allowed; consumers must
// treat each delivery as a full replacement.
func (h *Hub) Publish(t core.DailyTally) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[t.Day] {
		snap := t.Clone()
		select {
		case sub.ch <- snap:
		default:
			// Full buffer: drop the stalest queued snapshot and retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snap:
			default:
				slog.Warn("Dropping live snapshot for slow subscriber", "day", t.Day)
			}
		}
	}
}

// Subscribers reports how many subscriptions are active for a day.
func (h *Hub) Subscribers(day core.Day) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[day])
}

// Cancel detaches the subscription and closes its channel. It is idempotent
// and safe to call concurrently with Publish: removal and close happen under
// the hub's write lock, which excludes in-flight deliveries.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set := s.hub.subs[s.day]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.day)
			}
		}
		close(s.ch)
		s.hub.mu.Unlock()
	})
}
