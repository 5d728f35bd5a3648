// Package evaluator holds the polling watchers that compare booking state
// with the wall clock: the confirmation-deadline checker, the no-show
// fallback and the alert raiser. Each one decides per booking and
// condition; the shared dedup ledger guarantees a decision is acted on once.
package evaluator

import (
	"context"

	"github.com/nhle/paddledesk/internal/model"
)

// Updater requests booking status transitions from the backend.
type Updater interface {
	UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) (*model.Booking, error)
}

// Sink receives the notifications raised by the alert evaluator.
type Sink interface {
	Publish(ctx context.Context, n model.Notification) error
}

// Player plays the audible cue for a priority.
type Player interface {
	Play(ctx context.Context, p model.Priority) bool
}

// Checker runs one evaluation pass over a booking snapshot.
type Checker interface {
	Check(ctx context.Context, bookings []model.Booking) Report
}

// Report summarises one pass.
type Report struct {
	Evaluator string

	// Requested counts transition requests sent, Failed those rejected.
	Requested int
	Failed    int

	// Raised counts notifications published.
	Raised int

	// Skipped counts bookings left alone because they were updated
	// recently.
	Skipped int
}

// Condition names used in dedup keys and notification ids.
const (
	CondConfirmation      = "pending-confirmation"
	CondNoShow            = "no-show"
	CondUpcoming          = "upcoming-5min"
	CondNow               = "now"
	CondOverdue           = "overdue"
	CondCriticalOverdue   = "critical-overdue"
	CondNeedsConfirmation = "needs-confirmation"
	CondReturnTime        = "return-time"
	CondReturnOverdue     = "return-overdue"
)
