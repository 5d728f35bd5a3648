package worker

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/nhle/paddledesk/internal/model"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyCall  = "org.freedesktop.Notifications.Notify"
	appName     = "paddledesk"
	expireNever = int32(0)
	expireAuto  = int32(-1)
)

// DesktopNotifier shows notifications through the freedesktop
// notification service on the session bus.
type DesktopNotifier struct {
	conn *dbus.Conn
}

// NewDesktopNotifier connects to the session bus. It fails when no
// notification service can be reached; callers run without one.
func NewDesktopNotifier() (*DesktopNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	return &DesktopNotifier{conn: conn}, nil
}

// Notify shows n. Urgent notifications stay until dismissed.
func (d *DesktopNotifier) Notify(n model.Notification) error {
	obj := d.conn.Object(notifyDest, notifyPath)

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgency(n.Priority)),
	}
	timeout := expireAuto
	if n.Priority == model.PriorityUrgent {
		timeout = expireNever
	}

	call := obj.Call(notifyCall, 0,
		appName,
		uint32(0),
		"",
		n.Title,
		n.Body,
		actionList(n.Actions),
		hints,
		timeout,
	)
	if call.Err != nil {
		return fmt.Errorf("dbus notify: %w", call.Err)
	}
	return nil
}

// urgency maps a priority onto the freedesktop levels 0 (low) to 2
// (critical).
func urgency(p model.Priority) byte {
	switch p {
	case model.PriorityUrgent:
		return 2
	case model.PriorityLow:
		return 0
	default:
		return 1
	}
}

// actionList flattens actions into the identifier/label pairs the
// notification service expects.
func actionList(actions []model.Action) []string {
	out := make([]string, 0, len(actions)*2)
	for _, a := range actions {
		out = append(out, a.Action, a.Title)
	}
	return out
}
