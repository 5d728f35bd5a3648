// Package tracker remembers which bookings were updated recently so that
// the evaluators leave them alone while the backend propagates the change.
package tracker

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// DefaultCooldown is how long a booking stays settled after an update.
const DefaultCooldown = 3 * time.Minute

// Tracker maps booking ids to the instant of their last known update.
// It is in-memory only; a restart legitimately resets every cooldown.
type Tracker struct {
	clk      clock.Clock
	cooldown time.Duration

	mu      sync.Mutex
	updated map[int64]time.Time
}

// New creates a Tracker. A nil clock means the wall clock and a
// non-positive cooldown means DefaultCooldown.
func New(clk clock.Clock, cooldown time.Duration) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		clk:      clk,
		cooldown: cooldown,
		updated:  make(map[int64]time.Time),
	}
}

// MarkUpdated records now as the last update of bookingID.
func (t *Tracker) MarkUpdated(bookingID int64) {
	t.mu.Lock()
	t.updated[bookingID] = t.clk.Now()
	t.mu.Unlock()
}

// WasRecentlyUpdated reports whether bookingID was updated less than the
// cooldown ago. Expired entries are evicted on read.
func (t *Tracker) WasRecentlyUpdated(bookingID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	at, ok := t.updated[bookingID]
	if !ok {
		return false
	}
	if t.clk.Now().Sub(at) < t.cooldown {
		return true
	}
	delete(t.updated, bookingID)
	return false
}

// Cleanup drops every entry whose booking is not in active. Call it after
// each fetch of the booking list.
func (t *Tracker) Cleanup(active map[int64]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.updated {
		if !active[id] {
			delete(t.updated, id)
		}
	}
}

// Len returns the number of tracked bookings, expired or not.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.updated)
}
