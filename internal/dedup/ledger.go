// Package dedup holds the alert ledger shared by the evaluators: one entry
// per booking and condition (plus an optional time bucket) recording whether
// that alert was already raised.
//
// Whether a condition applies is decided by a window of wall-clock time
// rather than an exact minute, so a skipped poll fires on the next one as
// long as the window is still open.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// DefaultMaxAge bounds how long a closed or stuck entry is kept.
const DefaultMaxAge = time.Hour

// NoBucket marks a key for a condition that fires once rather than once per
// time bucket.
const NoBucket = -1

// State is the lifecycle of one key.
type State int

const (
	NotYetDue State = iota
	DueUnfired
	InFlight
	Fired
	Expired
)

func (s State) String() string {
	switch s {
	case NotYetDue:
		return "not-yet-due"
	case DueUnfired:
		return "due-unfired"
	case InFlight:
		return "in-flight"
	case Fired:
		return "fired"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Key identifies one alert for one booking.
type Key struct {
	BookingID int64
	Condition string
	Bucket    int
}

// NewKey returns a key for a condition that fires once.
func NewKey(bookingID int64, condition string) Key {
	return Key{BookingID: bookingID, Condition: condition, Bucket: NoBucket}
}

// BucketKey returns a key for a repeating condition.
func BucketKey(bookingID int64, condition string, bucket int) Key {
	return Key{BookingID: bookingID, Condition: condition, Bucket: bucket}
}

// String renders the key as "<condition>-<bookingID>[-<bucket>]". The result
// doubles as the id of the notification raised for the key.
func (k Key) String() string {
	if k.Bucket == NoBucket {
		return fmt.Sprintf("%s-%d", k.Condition, k.BookingID)
	}
	return fmt.Sprintf("%s-%d-%d", k.Condition, k.BookingID, k.Bucket)
}

// Window is the half-open interval [Start, End) during which a condition is
// due. A zero End leaves the window open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the window has no end.
func (w Window) Open() bool {
	return w.End.IsZero()
}

// Phase places now relative to w: NotYetDue before Start, Expired at or
// after End, DueUnfired in between.
func Phase(w Window, now time.Time) State {
	switch {
	case now.Before(w.Start):
		return NotYetDue
	case !w.Open() && !now.Before(w.End):
		return Expired
	default:
		return DueUnfired
	}
}

type entry struct {
	state  State
	window Window
	at     time.Time
}

// Ledger records claimed and fired keys. Only claimed keys are stored;
// the other states are derived from the window on demand.
type Ledger struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewLedger creates an empty ledger. A nil clock means the wall clock.
func NewLedger(clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{
		clk:     clk,
		entries: make(map[Key]*entry),
	}
}

// State returns the current state of k given its window.
func (l *Ledger) State(k Key, w Window) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[k]; ok {
		return e.state
	}
	return Phase(w, l.clk.Now())
}

// Claim moves k from due-unfired to in-flight and reports whether the
// caller now owns the alert. It returns false when k was already claimed or
// fired, or when its window is not open at the current time.
func (l *Ledger) Claim(k Key, w Window) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[k]; ok {
		return false
	}
	now := l.clk.Now()
	if Phase(w, now) != DueUnfired {
		return false
	}
	l.entries[k] = &entry{state: InFlight, window: w, at: now}
	return true
}

// Confirm marks a claimed key as fired.
func (l *Ledger) Confirm(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[k]; ok {
		e.state = Fired
		e.at = l.clk.Now()
	}
}

// Release drops a claimed key so that the next pass retries it. Fired keys
// are left alone.
func (l *Ledger) Release(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[k]; ok && e.state == InFlight {
		delete(l.entries, k)
	}
}

// Has reports whether k is claimed or fired.
func (l *Ledger) Has(k Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[k]
	return ok
}

// Retain drops every key whose booking is not in active.
func (l *Ledger) Retain(active map[int64]bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k := range l.entries {
		if !active[k.BookingID] {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Sweep drops keys whose window closed more than maxAge ago and keys left
// in flight for longer than maxAge. Fired keys of open windows are kept
// until their booking leaves the active list.
func (l *Ledger) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	removed := 0
	for k, e := range l.entries {
		stale := (!e.window.Open() && now.Sub(e.window.End) > maxAge) ||
			(e.state == InFlight && now.Sub(e.at) > maxAge)
		if stale {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Forget drops every key for condition, allowing a deliberate re-check.
func (l *Ledger) Forget(condition string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k := range l.entries {
		if k.Condition == condition {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
