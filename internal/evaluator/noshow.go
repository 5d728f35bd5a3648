package evaluator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/model"
)

// NoShowRule moves a booking still in From to NO_SHOW once the client is
// After late. Warn marks the start of the approaching band.
type NoShowRule struct {
	From  model.BookingStatus
	Warn  time.Duration
	After time.Duration
}

// NoShowRules matches the thresholds applied by the backend scheduler.
var NoShowRules = []NoShowRule{
	{From: model.StatusBooked, Warn: 60 * time.Minute, After: 90 * time.Minute},
	{From: model.StatusConfirmed, Warn: 60 * time.Minute, After: 90 * time.Minute},
	{From: model.StatusPendingConfirmation, Warn: 90 * time.Minute, After: 120 * time.Minute},
}

func ruleFor(s model.BookingStatus) (NoShowRule, bool) {
	for _, r := range NoShowRules {
		if r.From == s {
			return r, true
		}
	}
	return NoShowRule{}, false
}

// NoShow is the client-side fallback for the no-show transition. It stays
// disabled unless the operator turns it on.
type NoShow struct {
	deps Deps
}

// NewNoShow creates the no-show evaluator.
func NewNoShow(deps Deps) *NoShow {
	deps.defaults()
	return &NoShow{deps: deps}
}

// Check implements Checker. Every qualifying booking gets one request per
// pass; the ledger keeps it to one request overall.
func (n *NoShow) Check(ctx context.Context, bookings []model.Booking) Report {
	rep := Report{}
	now := n.deps.Clock.Now()

	var g errgroup.Group
	g.SetLimit(maxInFlight)
	failed := make(chan struct{}, len(bookings))

	for _, b := range bookings {
		rule, ok := ruleFor(b.Status)
		if !ok {
			continue
		}
		w := dedup.Window{Start: b.PlannedStartTime.Add(rule.After)}
		key := dedup.NewKey(b.ID, CondNoShow)
		if dedup.Phase(w, now) != dedup.DueUnfired || n.deps.Ledger.Has(key) {
			continue
		}
		if n.deps.Tracker.WasRecentlyUpdated(b.ID) {
			rep.Skipped++
			continue
		}
		if !n.deps.Ledger.Claim(key, w) {
			continue
		}

		rep.Requested++
		id, from := b.ID, b.Status
		g.Go(func() error {
			_, err := n.deps.Updater.UpdateBookingStatus(ctx, id, model.StatusNoShow)
			n.deps.Metrics.Transition(string(model.StatusNoShow), err)
			if err != nil {
				n.deps.Ledger.Release(key)
				n.deps.Logger.Printf("[WARN] Cannot mark booking %d as no-show: %s\n", id, err)
				failed <- struct{}{}
				return nil
			}
			n.deps.Ledger.Confirm(key)
			n.deps.Tracker.MarkUpdated(id)
			n.deps.Logger.Printf("[INFO] Booking %d moved from %s to %s\n", id, from, model.StatusNoShow)
			return nil
		})
	}

	_ = g.Wait()
	rep.Failed = len(failed)
	return rep
}

// NoShowStats counts bookings relative to the no-show thresholds.
type NoShowStats struct {
	// Approaching are late but not yet past their threshold
	// (60-90 minutes, or 90-120 for PENDING_CONFIRMATION).
	Approaching int

	// Due are past their threshold.
	Due int
}

// Stats classifies bookings against the no-show rules at now. It has no
// side effects.
func Stats(bookings []model.Booking, now time.Time) NoShowStats {
	var st NoShowStats
	for _, b := range bookings {
		rule, ok := ruleFor(b.Status)
		if !ok {
			continue
		}
		late := now.Sub(b.PlannedStartTime)
		switch {
		case late >= rule.After:
			st.Due++
		case late >= rule.Warn:
			st.Approaching++
		}
	}
	return st
}
