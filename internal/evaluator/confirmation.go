package evaluator

import (
	"context"
	"log"
	"time"

	"github.com/facebookgo/clock"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/metrics"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/tracker"
)

// DefaultConfirmationWindow is how long before the planned start a booked
// client is asked to confirm.
const DefaultConfirmationWindow = 60 * time.Minute

// maxInFlight bounds concurrent transition requests within one pass.
const maxInFlight = 8

// Deps are the collaborators shared by the evaluators.
type Deps struct {
	Updater Updater
	Tracker *tracker.Tracker
	Ledger  *dedup.Ledger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

func (d *Deps) defaults() {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Tracker == nil {
		d.Tracker = tracker.New(d.Clock, 0)
	}
	if d.Ledger == nil {
		d.Ledger = dedup.NewLedger(d.Clock)
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
}

// Confirmation moves BOOKED bookings that start within the window to
// PENDING_CONFIRMATION.
type Confirmation struct {
	deps   Deps
	window time.Duration
}

// NewConfirmation creates the confirmation-deadline evaluator. A
// non-positive window selects DefaultConfirmationWindow.
func NewConfirmation(deps Deps, window time.Duration) *Confirmation {
	deps.defaults()
	if window <= 0 {
		window = DefaultConfirmationWindow
	}
	return &Confirmation{deps: deps, window: window}
}

// Check implements Checker.
func (c *Confirmation) Check(ctx context.Context, bookings []model.Booking) Report {
	rep := Report{}
	now := c.deps.Clock.Now()

	var (
		g       errgroup.Group
		results = make(chan error, len(bookings))
	)
	g.SetLimit(maxInFlight)

	for _, b := range bookings {
		if b.Status != model.StatusBooked {
			continue
		}
		w := dedup.Window{Start: b.PlannedStartTime.Add(-c.window), End: b.PlannedStartTime}
		if dedup.Phase(w, now) != dedup.DueUnfired {
			continue
		}

		key := dedup.NewKey(b.ID, CondConfirmation)
		if c.deps.Ledger.Has(key) {
			continue
		}
		if c.deps.Tracker.WasRecentlyUpdated(b.ID) {
			c.deps.Logger.Printf("[DEBUG] Booking %d updated recently, confirmation check skipped\n", b.ID)
			c.deps.Metrics.AlertSuppressed("cooldown")
			rep.Skipped++
			continue
		}
		if !c.deps.Ledger.Claim(key, w) {
			continue
		}

		rep.Requested++
		id := b.ID
		g.Go(func() error {
			results <- c.request(ctx, id, key)
			return nil
		})
	}

	_ = g.Wait()
	close(results)
	for err := range results {
		if err != nil {
			rep.Failed++
		}
	}
	return rep
}

// ForceRecheck forgets every confirmation already requested so the next
// pass evaluates all bookings again.
func (c *Confirmation) ForceRecheck() {
	n := c.deps.Ledger.Forget(CondConfirmation)
	c.deps.Logger.Printf("[INFO] Confirmation re-check forced, %d keys cleared\n", n)
}

func (c *Confirmation) request(ctx context.Context, id int64, key dedup.Key) error {
	_, err := c.deps.Updater.UpdateBookingStatus(ctx, id, model.StatusPendingConfirmation)
	c.deps.Metrics.Transition(string(model.StatusPendingConfirmation), err)
	if err != nil {
		c.deps.Ledger.Release(key)
		c.deps.Logger.Printf("[WARN] Cannot move booking %d to %s, will retry: %s\n",
			id, model.StatusPendingConfirmation, err)
		return err
	}

	c.deps.Ledger.Confirm(key)
	c.deps.Tracker.MarkUpdated(id)
	c.deps.Logger.Printf("[INFO] Booking %d moved to %s\n", id, model.StatusPendingConfirmation)
	return nil
}
