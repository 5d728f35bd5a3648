package model

import "time"

// BookingStatus is the lifecycle state of a rental booking as reported by
// the backend.
type BookingStatus string

const (
	StatusBooked              BookingStatus = "BOOKED"
	StatusPendingConfirmation BookingStatus = "PENDING_CONFIRMATION"
	StatusConfirmed           BookingStatus = "CONFIRMED"
	StatusInUse               BookingStatus = "IN_USE"
	StatusCompleted           BookingStatus = "COMPLETED"
	StatusCancelled           BookingStatus = "CANCELLED"
	StatusNoShow              BookingStatus = "NO_SHOW"
	StatusRescheduled         BookingStatus = "RESCHEDULED"
)

// ActiveStatuses lists the statuses for which a booking still needs staff
// attention. Terminal statuses are never evaluated.
var ActiveStatuses = []BookingStatus{
	StatusBooked,
	StatusPendingConfirmation,
	StatusConfirmed,
	StatusInUse,
}

// IsActive reports whether s is one of ActiveStatuses.
func (s BookingStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// AwaitingArrival reports whether the client has not shown up yet.
func (s BookingStatus) AwaitingArrival() bool {
	return s == StatusBooked || s == StatusConfirmed
}

// Booking is a reservation of boards or seats for a client over a planned
// time window. The engine treats it as read-only.
type Booking struct {
	// ID is the backend identifier.
	ID int64 `json:"id"`

	// Status is the current lifecycle state.
	Status BookingStatus `json:"status"`

	// PlannedStartTime is when the client is expected to arrive.
	PlannedStartTime time.Time `json:"plannedStartTime"`

	// ActualStartTime is set once the equipment is handed out.
	ActualStartTime *time.Time `json:"actualStartTime,omitempty"`

	// DurationInHours is the booked rental length.
	DurationInHours float64 `json:"durationInHours"`

	ClientName string `json:"clientName"`
	Phone      string `json:"phone"`

	// BoardCount and SeatCount describe the reserved inventory.
	BoardCount int `json:"boardCount"`
	SeatCount  int `json:"seatCount"`
}

// Duration returns the booked rental length.
func (b *Booking) Duration() time.Duration {
	return time.Duration(b.DurationInHours * float64(time.Hour))
}

// ReturnTime returns when the equipment is due back. It is only meaningful
// for bookings that have started; ok is false otherwise.
func (b *Booking) ReturnTime() (t time.Time, ok bool) {
	if b.ActualStartTime == nil {
		return time.Time{}, false
	}
	return b.ActualStartTime.Add(b.Duration()), true
}

// BookingIDs returns the set of identifiers in bookings.
func BookingIDs(bookings []Booking) map[int64]bool {
	ids := make(map[int64]bool, len(bookings))
	for _, b := range bookings {
		ids[b.ID] = true
	}
	return ids
}
