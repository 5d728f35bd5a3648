package bell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/paddledesk/internal/model"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func n(id string, read bool, age time.Duration) model.Notification {
	return model.Notification{ID: id, Title: id, IsRead: read, Timestamp: now.Add(-age)}
}

func ids(s State) []string {
	out := make([]string, len(s.List))
	for i, x := range s.List {
		out[i] = x.ID
	}
	return out
}

func TestReduce(t *testing.T) {
	base := State{List: []model.Notification{n("b", false, time.Minute), n("a", true, time.Hour)}, UnreadCount: 1}

	tests := []struct {
		name       string
		action     Action
		wantIDs    []string
		wantUnread int
	}{
		{"upsert new prepends", Upsert{n("c", false, 0)}, []string{"c", "b", "a"}, 2},
		{"upsert existing replaces in place", Upsert{n("a", false, 0)}, []string{"b", "a"}, 2},
		{"mark read", MarkRead{ID: "b"}, []string{"b", "a"}, 0},
		{"mark read unknown", MarkRead{ID: "zz"}, []string{"b", "a"}, 1},
		{"mark all read", MarkAllRead{}, []string{"b", "a"}, 0},
		{"remove", Remove{ID: "b"}, []string{"a"}, 0},
		{"load replaces", Load{List: []model.Notification{n("x", false, 0), n("y", false, 0)}}, []string{"x", "y"}, 2},
		{"load empty", Load{}, []string{}, 0},
		{"prune", Prune{Now: now.Add(24 * time.Hour)}, []string{"b"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(base, tt.action)
			assert.Equal(t, tt.wantIDs, ids(got))
			assert.Equal(t, tt.wantUnread, got.UnreadCount)
		})
	}
}

func TestReduceDoesNotModifyInput(t *testing.T) {
	base := State{List: []model.Notification{n("a", false, 0)}, UnreadCount: 1}

	Reduce(base, MarkAllRead{})
	Reduce(base, Upsert{model.Notification{ID: "a", Title: "changed"}})

	assert.False(t, base.List[0].IsRead)
	assert.Equal(t, "a", base.List[0].Title)
}

func TestReduceTooltip(t *testing.T) {
	s := Reduce(State{}, SetTooltip{Open: true})
	assert.True(t, s.TooltipOpen)

	s = Reduce(s, Upsert{n("a", false, 0)})
	assert.True(t, s.TooltipOpen, "list changes keep the tooltip state")

	s = Reduce(s, SetTooltip{Open: false})
	assert.False(t, s.TooltipOpen)
	assert.Equal(t, 1, s.UnreadCount)
}
