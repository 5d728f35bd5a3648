// Package worker is the background notification worker. It outlives any
// single UI instance, owns the durable notification store, receives push
// messages over HTTP, shows them on the desktop and forwards them to every
// connected client. Clients talk to it with request/reply messages.
package worker

import (
	"errors"

	"github.com/nhle/paddledesk/internal/model"
)

// MessageType tags a port message.
type MessageType string

const (
	LoadNotifications   MessageType = "LOAD_NOTIFICATIONS"
	NotificationsLoaded MessageType = "NOTIFICATIONS_LOADED"
	SyncNotifications   MessageType = "SYNC_NOTIFICATIONS"
	SyncCompleted       MessageType = "SYNC_COMPLETED"
	NewNotification     MessageType = "NEW_NOTIFICATION"
	ErrorReply          MessageType = "ERROR"
)

// Message is the unit exchanged between the worker and its clients.
type Message struct {
	Type          MessageType          `json:"type"`
	Notifications []model.Notification `json:"notifications,omitempty"`
	Notification  *model.Notification  `json:"notification,omitempty"`
	Error         string               `json:"error,omitempty"`
}

var (
	// ErrNoController is returned when no worker is running or reachable.
	ErrNoController = errors.New("worker: no active controller")

	// ErrUnknownMessage is returned for request types the worker does not
	// answer.
	ErrUnknownMessage = errors.New("worker: unknown message type")
)
