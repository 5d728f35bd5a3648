// Package bell holds the in-memory notification projection shown to staff:
// the newest-first list, the unread count and whether the tooltip is open.
package bell

import (
	"time"

	"github.com/nhle/paddledesk/internal/model"
)

// MaxAge is the age past which Prune drops a notification.
const MaxAge = 24 * time.Hour

// State is the bell projection.
type State struct {
	List        []model.Notification
	UnreadCount int
	TooltipOpen bool
}

// Action is an input to Reduce.
type Action interface {
	isAction()
}

// Upsert adds a notification, or replaces the one with the same id in place.
type Upsert struct{ Notification model.Notification }

// MarkRead marks a single notification read.
type MarkRead struct{ ID string }

// MarkAllRead marks every notification read.
type MarkAllRead struct{}

// Remove drops a notification by id.
type Remove struct{ ID string }

// Load replaces the list wholesale.
type Load struct{ List []model.Notification }

// Prune drops notifications older than MaxAge at Now.
type Prune struct{ Now time.Time }

// SetTooltip opens or closes the tooltip.
type SetTooltip struct{ Open bool }

func (Upsert) isAction()      {}
func (MarkRead) isAction()    {}
func (MarkAllRead) isAction() {}
func (Remove) isAction()      {}
func (Load) isAction()        {}
func (Prune) isAction()       {}
func (SetTooltip) isAction()  {}

// Reduce returns the state that results from applying a to s. It never
// modifies s.
func Reduce(s State, a Action) State {
	next := State{TooltipOpen: s.TooltipOpen}

	switch a := a.(type) {
	case Upsert:
		next.List = make([]model.Notification, 0, len(s.List)+1)
		replaced := false
		for _, n := range s.List {
			if n.ID == a.Notification.ID {
				next.List = append(next.List, a.Notification)
				replaced = true
				continue
			}
			next.List = append(next.List, n)
		}
		if !replaced {
			next.List = append([]model.Notification{a.Notification}, next.List...)
		}

	case MarkRead:
		next.List = mapList(s.List, func(n *model.Notification) {
			if n.ID == a.ID {
				n.IsRead = true
			}
		})

	case MarkAllRead:
		next.List = mapList(s.List, func(n *model.Notification) { n.IsRead = true })

	case Remove:
		next.List = filterList(s.List, func(n model.Notification) bool { return n.ID != a.ID })

	case Load:
		next.List = append([]model.Notification(nil), a.List...)

	case Prune:
		next.List = filterList(s.List, func(n model.Notification) bool {
			return a.Now.Sub(n.Timestamp) <= MaxAge
		})

	case SetTooltip:
		next.List = s.List
		next.TooltipOpen = a.Open

	default:
		return s
	}

	next.UnreadCount = unread(next.List)
	return next
}

func mapList(list []model.Notification, fn func(*model.Notification)) []model.Notification {
	out := make([]model.Notification, len(list))
	copy(out, list)
	for i := range out {
		fn(&out[i])
	}
	return out
}

func filterList(list []model.Notification, keep func(model.Notification) bool) []model.Notification {
	out := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func unread(list []model.Notification) int {
	c := 0
	for _, n := range list {
		if !n.IsRead {
			c++
		}
	}
	return c
}
