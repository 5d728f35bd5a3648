package model

import "time"

// NotificationType classifies why a notification was raised.
type NotificationType string

const (
	TypePendingConfirmation NotificationType = "pending_confirmation"
	TypeClientArrivingSoon  NotificationType = "client_arriving_soon"
	TypeClientOverdue       NotificationType = "client_overdue"
	TypeReturnTime          NotificationType = "return_time"
	TypeReturnOverdue       NotificationType = "return_overdue"
	TypeStatusChanged       NotificationType = "status_changed"
)

// Priority is the urgency of a notification. It drives the sound cue and
// the ordering in the bell.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities from most (0) to least urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Action is a button offered alongside a notification.
type Action struct {
	// Action is the machine-readable code, e.g. "confirm".
	Action string `json:"action"`

	// Title is the label shown to staff.
	Title string `json:"title"`
}

// Notification represents an alert surfaced to staff about a booking.
type Notification struct {
	// ID is unique and, for engine-raised alerts, derived from the booking
	// id, the condition and an optional time bucket.
	ID string `json:"id"`

	Title string           `json:"title"`
	Body  string           `json:"body"`
	Type  NotificationType `json:"type"`

	Priority Priority `json:"priority"`

	// BookingID is a weak back-reference; zero when not booking-related.
	BookingID int64 `json:"bookingId,omitempty"`

	// ClientName is a snapshot taken when the alert was raised.
	ClientName string `json:"clientName,omitempty"`

	// Timestamp is the creation instant.
	Timestamp time.Time `json:"timestamp"`

	IsRead bool `json:"isRead"`

	Actions []Action `json:"actions,omitempty"`

	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// Age returns how old n is at now.
func (n *Notification) Age(now time.Time) time.Duration {
	return now.Sub(n.Timestamp)
}

// PushPayload is the shape of a push message as delivered by the push
// transport. Only Title is required.
type PushPayload struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Tag     string         `json:"tag,omitempty"`
	Actions []Action       `json:"actions,omitempty"`
	Data    PushData       `json:"data"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// PushData carries the engine-specific fields of a push message.
type PushData struct {
	ID         string           `json:"id,omitempty"`
	Type       NotificationType `json:"type,omitempty"`
	Priority   Priority         `json:"priority,omitempty"`
	BookingID  int64            `json:"bookingId,omitempty"`
	ClientName string           `json:"clientName,omitempty"`
	Timestamp  int64            `json:"timestamp,omitempty"`
}

// DefaultActions returns the buttons offered for a notification of type t.
func DefaultActions(t NotificationType) []Action {
	switch t {
	case TypePendingConfirmation:
		return []Action{{Action: "confirm", Title: "Confirm"}, {Action: "call", Title: "Call client"}}
	case TypeClientArrivingSoon:
		return []Action{{Action: "mark_arrived", Title: "Mark arrived"}, {Action: "view", Title: "View"}}
	case TypeClientOverdue:
		return []Action{{Action: "call", Title: "Call client"}, {Action: "mark_arrived", Title: "Mark arrived"}}
	case TypeReturnTime, TypeReturnOverdue:
		return []Action{{Action: "extend", Title: "Extend"}, {Action: "call", Title: "Call client"}}
	default:
		return []Action{{Action: "view", Title: "View"}}
	}
}
