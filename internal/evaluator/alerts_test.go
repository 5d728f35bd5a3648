package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/tracker"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-2 * time.Hour)

	testCases := []struct {
		name    string
		booking model.Booking
		wantID  string
		want    model.Priority
		none    bool
	}{
		{
			name:    "far future",
			booking: model.Booking{ID: 1, Status: model.StatusBooked, PlannedStartTime: now.Add(20 * time.Minute)},
			none:    true,
		},
		{
			name:    "five minutes out",
			booking: model.Booking{ID: 1, Status: model.StatusConfirmed, PlannedStartTime: now.Add(5 * time.Minute)},
			wantID:  "upcoming-5min-1",
			want:    model.PriorityMedium,
		},
		{
			name:    "three minutes out",
			booking: model.Booking{ID: 1, Status: model.StatusBooked, PlannedStartTime: now.Add(3 * time.Minute)},
			wantID:  "upcoming-5min-1",
			want:    model.PriorityMedium,
		},
		{
			name:    "at start",
			booking: model.Booking{ID: 2, Status: model.StatusBooked, PlannedStartTime: now},
			wantID:  "now-2",
			want:    model.PriorityHigh,
		},
		{
			name:    "six minutes late",
			booking: model.Booking{ID: 3, Status: model.StatusBooked, PlannedStartTime: now.Add(-6 * time.Minute)},
			wantID:  "overdue-3",
			want:    model.PriorityHigh,
		},
		{
			name:    "fifteen minutes late",
			booking: model.Booking{ID: 3, Status: model.StatusBooked, PlannedStartTime: now.Add(-15*time.Minute - 30*time.Second)},
			wantID:  "overdue-3",
			want:    model.PriorityHigh,
		},
		{
			name:    "sixteen minutes late",
			booking: model.Booking{ID: 3, Status: model.StatusConfirmed, PlannedStartTime: now.Add(-16 * time.Minute)},
			wantID:  "critical-overdue-3-1",
			want:    model.PriorityUrgent,
		},
		{
			name:    "forty minutes late",
			booking: model.Booking{ID: 3, Status: model.StatusConfirmed, PlannedStartTime: now.Add(-40 * time.Minute)},
			wantID:  "critical-overdue-3-2",
			want:    model.PriorityUrgent,
		},
		{
			name:    "pending",
			booking: model.Booking{ID: 4, Status: model.StatusPendingConfirmation, PlannedStartTime: now.Add(time.Hour)},
			wantID:  "needs-confirmation-4",
			want:    model.PriorityMedium,
		},
		{
			name:    "in use before return",
			booking: model.Booking{ID: 5, Status: model.StatusInUse, ActualStartTime: &started, DurationInHours: 3},
			none:    true,
		},
		{
			name:    "at return",
			booking: model.Booking{ID: 5, Status: model.StatusInUse, ActualStartTime: &started, DurationInHours: 2},
			wantID:  "return-time-5",
			want:    model.PriorityHigh,
		},
		{
			name:    "ten minutes past return",
			booking: model.Booking{ID: 5, Status: model.StatusInUse, ActualStartTime: &started, DurationInHours: 1.0 + 50.0/60},
			wantID:  "return-time-5",
			want:    model.PriorityHigh,
		},
		{
			name:    "twelve minutes past return",
			booking: model.Booking{ID: 5, Status: model.StatusInUse, ActualStartTime: &started, DurationInHours: 1.8},
			wantID:  "return-overdue-5-0",
			want:    model.PriorityUrgent,
		},
		{
			name:    "completed",
			booking: model.Booking{ID: 6, Status: model.StatusCompleted, PlannedStartTime: now.Add(-time.Hour)},
			none:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, ok := Classify(tc.booking, now)
			if tc.none {
				assert.False(t, ok, "unexpected alert %s", a.Key)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.wantID, a.Key.String())
			assert.Equal(t, tc.want, a.Priority)
		})
	}
}

func TestAlertsDedupUnderRepeatedPolls(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink, player := &fakeSink{}, &fakePlayer{}
	a := NewAlerts(deps, sink, player)

	bookings := []model.Booking{
		{ID: 11, Status: model.StatusBooked, ClientName: "Ana", PlannedStartTime: mock.Now().Add(-6 * time.Minute)},
	}
	for i := 0; i < 10; i++ {
		a.Check(context.Background(), bookings)
		mock.Add(5 * time.Second)
	}

	got := sink.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "overdue-11", got[0].ID)
	assert.Equal(t, model.TypeClientOverdue, got[0].Type)
	assert.Equal(t, int64(11), got[0].BookingID)
	assert.Equal(t, "Ana", got[0].ClientName)
	assert.NotEmpty(t, got[0].Actions)
	assert.Equal(t, []model.Priority{model.PriorityHigh}, player.Played())
	assert.Equal(t, 1, deps.Ledger.Len())
}

func TestAlertsSkippedTick(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink := &fakeSink{}
	a := NewAlerts(deps, sink, nil)
	bookings := []model.Booking{
		{ID: 12, Status: model.StatusBooked, PlannedStartTime: mock.Now().Add(7 * time.Minute)},
	}

	a.Check(context.Background(), bookings)
	assert.Empty(t, sink.Notifications())

	// No poll lands exactly five minutes before start.
	mock.Add(4 * time.Minute)
	a.Check(context.Background(), bookings)
	require.Len(t, sink.Notifications(), 1)
	assert.Equal(t, "upcoming-5min-12", sink.Notifications()[0].ID)
}

func TestAlertsCriticalRepeatsPerBucket(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink := &fakeSink{}
	a := NewAlerts(deps, sink, nil)
	bookings := []model.Booking{
		{ID: 13, Status: model.StatusConfirmed, PlannedStartTime: mock.Now().Add(-16 * time.Minute)},
	}

	a.Check(context.Background(), bookings)
	mock.Add(10 * time.Minute)
	a.Check(context.Background(), bookings)
	mock.Add(5 * time.Minute)
	a.Check(context.Background(), bookings)

	var got []string
	for _, n := range sink.Notifications() {
		got = append(got, n.ID)
	}
	assert.Equal(t, []string{"critical-overdue-13-1", "critical-overdue-13-2"}, got)
}

func TestAlertsLifecycle(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink := &fakeSink{}
	a := NewAlerts(deps, sink, nil)
	b := model.Booking{ID: 14, Status: model.StatusBooked, PlannedStartTime: mock.Now().Add(6 * time.Minute)}

	// Poll every 30 seconds from six minutes before start to twenty after.
	for i := 0; i < 52; i++ {
		a.Check(context.Background(), []model.Booking{b})
		mock.Add(30 * time.Second)
	}

	var got []string
	for _, n := range sink.Notifications() {
		got = append(got, n.ID)
	}
	assert.Equal(t, []string{"upcoming-5min-14", "now-14", "overdue-14", "critical-overdue-14-1"}, got)
}

func TestAlertsRetryAfterPublishFailure(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink := &fakeSink{failNext: 1}
	player := &fakePlayer{}
	a := NewAlerts(deps, sink, player)
	bookings := []model.Booking{
		{ID: 15, Status: model.StatusPendingConfirmation, PlannedStartTime: mock.Now().Add(time.Hour)},
	}

	rep := a.Check(context.Background(), bookings)
	assert.Equal(t, 0, rep.Raised)
	assert.Empty(t, player.Played())

	rep = a.Check(context.Background(), bookings)
	assert.Equal(t, 1, rep.Raised)
	a.Check(context.Background(), bookings)
	assert.Len(t, sink.Notifications(), 1)
}

func TestAlertsOneCuePerPass(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink, player := &fakeSink{}, &fakePlayer{}
	a := NewAlerts(deps, sink, player)
	now := mock.Now()

	a.Check(context.Background(), []model.Booking{
		{ID: 1, Status: model.StatusBooked, PlannedStartTime: now.Add(3 * time.Minute)},
		{ID: 2, Status: model.StatusBooked, PlannedStartTime: now.Add(-20 * time.Minute)},
		{ID: 3, Status: model.StatusPendingConfirmation, PlannedStartTime: now.Add(time.Hour)},
	})

	assert.Len(t, sink.Notifications(), 3)
	assert.Equal(t, []model.Priority{model.PriorityUrgent}, player.Played())
}

func TestAlertsConfirmationWaitsForCooldown(t *testing.T) {
	deps, mock := newDeps(t, nil)
	sink := &fakeSink{}
	a := NewAlerts(deps, sink, nil)
	bookings := []model.Booking{
		{ID: 16, Status: model.StatusPendingConfirmation, PlannedStartTime: mock.Now().Add(time.Hour)},
		{ID: 17, Status: model.StatusBooked, PlannedStartTime: mock.Now().Add(-6 * time.Minute)},
	}
	deps.Tracker.MarkUpdated(16)
	deps.Tracker.MarkUpdated(17)

	rep := a.Check(context.Background(), bookings)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, sink.Notifications(), 1)
	assert.Equal(t, "overdue-17", sink.Notifications()[0].ID)

	mock.Add(tracker.DefaultCooldown + time.Second)
	rep = a.Check(context.Background(), bookings)
	assert.Zero(t, rep.Skipped)
	assert.Equal(t, 1, rep.Raised)
	assert.Equal(t, "needs-confirmation-16", sink.Notifications()[1].ID)
}
