package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/model"
)

const (
	// bucketSize is the repeat period of critical and return-overdue
	// alerts.
	bucketSize = 15 * time.Minute

	upcomingLead   = 5 * time.Minute
	nowWindow      = time.Minute
	overdueEnd     = 16 * time.Minute
	returnGrace    = 11 * time.Minute
	defaultMaxAge  = dedup.DefaultMaxAge
	timeOfDayShort = "15:04"
)

// Alert is the condition a booking is in at a given time.
type Alert struct {
	Key      dedup.Key
	Window   dedup.Window
	Type     model.NotificationType
	Priority model.Priority
	Title    string
	Body     string
}

// Classify returns the alert condition of b at now, if any. A booking is
// in at most one condition at a time.
func Classify(b model.Booking, now time.Time) (Alert, bool) {
	switch b.Status {
	case model.StatusBooked, model.StatusConfirmed:
		return classifyArrival(b, now)
	case model.StatusPendingConfirmation:
		return Alert{
			Key:      dedup.NewKey(b.ID, CondNeedsConfirmation),
			Type:     model.TypePendingConfirmation,
			Priority: model.PriorityMedium,
			Title:    "Booking needs confirmation",
			Body: fmt.Sprintf("%s, %s at %s: call to confirm",
				b.ClientName, b.Phone, b.PlannedStartTime.Format(timeOfDayShort)),
		}, true
	case model.StatusInUse:
		return classifyReturn(b, now)
	default:
		return Alert{}, false
	}
}

func classifyArrival(b model.Booking, now time.Time) (Alert, bool) {
	start := b.PlannedStartTime
	late := now.Sub(start)

	switch {
	case late < -upcomingLead:
		return Alert{}, false

	case late < 0:
		return Alert{
			Key:      dedup.NewKey(b.ID, CondUpcoming),
			Window:   dedup.Window{Start: start.Add(-upcomingLead), End: start},
			Type:     model.TypeClientArrivingSoon,
			Priority: model.PriorityMedium,
			Title:    "Client arriving soon",
			Body:     fmt.Sprintf("%s arrives at %s (%s)", b.ClientName, start.Format(timeOfDayShort), inventory(b)),
		}, true

	case late < nowWindow:
		return Alert{
			Key:      dedup.NewKey(b.ID, CondNow),
			Window:   dedup.Window{Start: start, End: start.Add(nowWindow)},
			Type:     model.TypeClientArrivingSoon,
			Priority: model.PriorityHigh,
			Title:    "Client due now",
			Body:     fmt.Sprintf("%s is due now (%s)", b.ClientName, inventory(b)),
		}, true

	case late < overdueEnd:
		return Alert{
			Key:      dedup.NewKey(b.ID, CondOverdue),
			Window:   dedup.Window{Start: start.Add(nowWindow), End: start.Add(overdueEnd)},
			Type:     model.TypeClientOverdue,
			Priority: model.PriorityHigh,
			Title:    "Client overdue",
			Body:     fmt.Sprintf("%s is %d min late", b.ClientName, minutes(late)),
		}, true

	default:
		bucket := int(late / bucketSize)
		return Alert{
			Key:      dedup.BucketKey(b.ID, CondCriticalOverdue, bucket),
			Window:   bucketWindow(start, bucket, overdueEnd),
			Type:     model.TypeClientOverdue,
			Priority: model.PriorityUrgent,
			Title:    "Client critically overdue",
			Body:     fmt.Sprintf("%s is %d min late, consider marking as no-show", b.ClientName, minutes(late)),
		}, true
	}
}

func classifyReturn(b model.Booking, now time.Time) (Alert, bool) {
	ret, ok := b.ReturnTime()
	if !ok {
		// Handed out without a recorded start; assume it started on plan.
		ret = b.PlannedStartTime.Add(b.Duration())
	}
	over := now.Sub(ret)

	switch {
	case over < 0:
		return Alert{}, false

	case over < returnGrace:
		return Alert{
			Key:      dedup.NewKey(b.ID, CondReturnTime),
			Window:   dedup.Window{Start: ret, End: ret.Add(returnGrace)},
			Type:     model.TypeReturnTime,
			Priority: model.PriorityHigh,
			Title:    "Equipment due back",
			Body:     fmt.Sprintf("%s should return %s now", b.ClientName, inventory(b)),
		}, true

	default:
		bucket := int(over / bucketSize)
		return Alert{
			Key:      dedup.BucketKey(b.ID, CondReturnOverdue, bucket),
			Window:   bucketWindow(ret, bucket, returnGrace),
			Type:     model.TypeReturnOverdue,
			Priority: model.PriorityUrgent,
			Title:    "Equipment return overdue",
			Body:     fmt.Sprintf("%s is %d min past return time", b.ClientName, minutes(over)),
		}, true
	}
}

// bucketWindow is the window of a repeating alert: the bucket's 15 minutes,
// starting no earlier than from.
func bucketWindow(origin time.Time, bucket int, from time.Duration) dedup.Window {
	start := time.Duration(bucket) * bucketSize
	if start < from {
		start = from
	}
	return dedup.Window{
		Start: origin.Add(start),
		End:   origin.Add(time.Duration(bucket+1) * bucketSize),
	}
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}

func inventory(b model.Booking) string {
	switch {
	case b.BoardCount > 0 && b.SeatCount > 0:
		return fmt.Sprintf("%d boards, %d seats", b.BoardCount, b.SeatCount)
	case b.SeatCount > 0:
		return fmt.Sprintf("%d seats", b.SeatCount)
	default:
		return fmt.Sprintf("%d boards", b.BoardCount)
	}
}

// Alerts raises notifications and plays cues for bookings entering an
// alert condition.
type Alerts struct {
	deps   Deps
	sink   Sink
	player Player
	maxAge time.Duration
}

// NewAlerts creates the alert evaluator. A nil player skips the cues.
func NewAlerts(deps Deps, sink Sink, player Player) *Alerts {
	deps.defaults()
	return &Alerts{deps: deps, sink: sink, player: player, maxAge: defaultMaxAge}
}

// Check implements Checker.
func (a *Alerts) Check(ctx context.Context, bookings []model.Booking) Report {
	rep := Report{}
	now := a.deps.Clock.Now()

	if n := a.deps.Ledger.Sweep(a.maxAge); n > 0 {
		a.deps.Logger.Printf("[DEBUG] Swept %d stale alert keys\n", n)
	}

	loudest := model.Priority("")
	for _, b := range bookings {
		alert, ok := Classify(b, now)
		if !ok {
			continue
		}
		// Time-driven conditions ignore the cooldown; a status-driven one
		// waits until the backend has settled the transition.
		if alert.Key.Condition == CondNeedsConfirmation && a.deps.Tracker.WasRecentlyUpdated(b.ID) {
			if !a.deps.Ledger.Has(alert.Key) {
				a.deps.Logger.Printf("[DEBUG] Booking %d updated recently, confirmation alert deferred\n", b.ID)
				a.deps.Metrics.AlertSuppressed("cooldown")
				rep.Skipped++
			}
			continue
		}
		if !a.deps.Ledger.Claim(alert.Key, alert.Window) {
			continue
		}

		n := model.Notification{
			ID:         alert.Key.String(),
			Title:      alert.Title,
			Body:       alert.Body,
			Type:       alert.Type,
			Priority:   alert.Priority,
			BookingID:  b.ID,
			ClientName: b.ClientName,
			Timestamp:  now,
			Actions:    model.DefaultActions(alert.Type),
			AdditionalData: map[string]any{
				"condition": alert.Key.Condition,
				"status":    string(b.Status),
			},
		}

		if err := a.sink.Publish(ctx, n); err != nil {
			a.deps.Ledger.Release(alert.Key)
			a.deps.Logger.Printf("[WARN] Cannot publish alert %s, will retry: %s\n", n.ID, err)
			continue
		}
		a.deps.Ledger.Confirm(alert.Key)
		a.deps.Metrics.AlertFired(alert.Key.Condition)
		a.deps.Logger.Printf("[INFO] Alert %s raised for %s\n", n.ID, b.ClientName)
		rep.Raised++

		if loudest == "" || alert.Priority.Rank() < loudest.Rank() {
			loudest = alert.Priority
		}
	}

	// One cue per pass, for the most urgent alert raised.
	if loudest != "" && a.player != nil {
		a.player.Play(ctx, loudest)
	}
	return rep
}
