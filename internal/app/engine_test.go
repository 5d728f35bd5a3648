package app

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/sound"
	appsync "github.com/nhle/paddledesk/internal/sync"
	"github.com/nhle/paddledesk/tests/testutil"
)

var base = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu       gosync.Mutex
	bookings []model.Booking
	updates  map[int64]model.BookingStatus
}

func (f *fakeAPI) ListBookings(context.Context) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings, nil
}

func (f *fakeAPI) UpdateBookingStatus(_ context.Context, id int64, status model.BookingStatus) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[int64]model.BookingStatus)
	}
	f.updates[id] = status
	return &model.Booking{ID: id, Status: status}, nil
}

type fakeOutput struct {
	mu     gosync.Mutex
	played int
}

func (o *fakeOutput) State() sound.State                  { return sound.Running }
func (o *fakeOutput) Resume(context.Context) error         { return nil }
func (o *fakeOutput) Play(context.Context, sound.Cue) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.played++
	return nil
}

func testConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	cfg, err := model.LoadConfig(t.TempDir() + "/missing.yaml")
	require.NoError(t, err)
	cfg.Storage.Backend = "memory"
	return cfg
}

func newTestEngine(t *testing.T, api *fakeAPI, out *fakeOutput) (*Engine, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Add(base.Sub(clk.Now()))

	e, err := NewEngine(testConfig(t), EngineOptions{
		Bookings: api,
		NoWorker: true,
		Backend:  testutil.NewTestKV(t),
		Output:   out,
		Clock:    clk,
	})
	require.NoError(t, err)
	return e, clk
}

func TestEngineRaisesAlertsAndTransitions(t *testing.T) {
	api := &fakeAPI{bookings: []model.Booking{
		{ID: 7, Status: model.StatusBooked, ClientName: "Anna", PlannedStartTime: base.Add(-6 * time.Minute), DurationInHours: 2, BoardCount: 2},
		{ID: 8, Status: model.StatusBooked, ClientName: "Ben", PlannedStartTime: base.Add(30 * time.Minute), DurationInHours: 1, BoardCount: 1},
	}}
	out := &fakeOutput{}
	e, _ := newTestEngine(t, api, out)

	ctx := context.Background()
	e.Start(ctx)
	defer e.Stop()

	msg := e.Poller.Fetch(ctx)
	require.NoError(t, msg.Error)

	rep := e.Runner("alerts").CheckNow(ctx)
	assert.Equal(t, 1, rep.Raised)
	rep = e.Runner("confirmation").CheckNow(ctx)
	assert.Equal(t, 1, rep.Requested)

	st := e.Bell.State()
	require.Len(t, st.List, 1)
	assert.Equal(t, "overdue-7", st.List[0].ID)
	assert.Equal(t, 1, st.UnreadCount)

	api.mu.Lock()
	assert.Equal(t, map[int64]model.BookingStatus{8: model.StatusPendingConfirmation}, api.updates)
	api.mu.Unlock()

	out.mu.Lock()
	assert.Equal(t, 1, out.played)
	out.mu.Unlock()

	// Repeated passes in the same window raise nothing new.
	for i := 0; i < 5; i++ {
		rep = e.Runner("alerts").CheckNow(ctx)
		assert.Zero(t, rep.Raised)
	}
	assert.Len(t, e.Bell.State().List, 1)
	assert.True(t, e.Sync.Degraded())
}

func TestEngineDisabledNoShowByDefault(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAPI{}, &fakeOutput{})
	assert.False(t, e.Runner("no-show").Enabled())
	assert.True(t, e.Runner("alerts").Enabled())
	assert.Nil(t, e.Runner("bogus"))
}

func TestModelBookingsAndMute(t *testing.T) {
	api := &fakeAPI{}
	e, _ := newTestEngine(t, api, &fakeOutput{})
	e.Start(context.Background())
	defer e.Stop()

	m := New(e)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m = next.(Model)

	next, _ = m.Update(appsync.BookingsMsg{Bookings: []model.Booking{
		{ID: 1, Status: model.StatusConfirmed, ClientName: "Cleo", PlannedStartTime: base.Add(20 * time.Minute)},
	}})
	m = next.(Model)
	assert.Contains(t, m.View(), "Cleo")
	assert.Contains(t, m.View(), "in 20m")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	m = next.(Model)
	assert.False(t, e.Sound.Enabled())
	assert.Contains(t, m.View(), "muted")

	next, _ = m.Update(appsync.BookingsMsg{AuthError: true, Error: assert.AnError})
	m = next.(Model)
	assert.Contains(t, m.View(), "API token")
}

func TestTiming(t *testing.T) {
	started := base.Add(-3 * time.Hour)
	tests := []struct {
		name string
		b    model.Booking
		want string
	}{
		{"upcoming", model.Booking{Status: model.StatusBooked, PlannedStartTime: base.Add(90 * time.Minute)}, "in 1h30m"},
		{"soon", model.Booking{Status: model.StatusConfirmed, PlannedStartTime: base.Add(4 * time.Minute)}, "in 4m"},
		{"late", model.Booking{Status: model.StatusConfirmed, PlannedStartTime: base.Add(-12 * time.Minute)}, "12m late"},
		{"out on water", model.Booking{Status: model.StatusInUse, ActualStartTime: &started, DurationInHours: 4}, "back in 60m"},
		{"return late", model.Booking{Status: model.StatusInUse, ActualStartTime: &started, DurationInHours: 2}, "return 60m late"},
		{"finished", model.Booking{Status: model.StatusCompleted, PlannedStartTime: base.Add(-time.Hour)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, timing(tt.b, base), tt.want)
		})
	}
}

func TestModelBookingDetail(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAPI{}, &fakeOutput{})
	e.Start(context.Background())
	defer e.Stop()

	m := New(e)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m = next.(Model)
	next, _ = m.Update(appsync.BookingsMsg{Bookings: []model.Booking{
		{ID: 1, Status: model.StatusConfirmed, ClientName: "Cleo", Phone: "+33 6 12", PlannedStartTime: base.Add(20 * time.Minute)},
	}})
	m = next.(Model)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "#1  Cleo")
	assert.Contains(t, view, "+33 6 12")
	assert.Contains(t, view, "Notifications (0)")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.NotContains(t, m.View(), "Notifications (0)")

	// The view closes when the booking leaves the list.
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	next, _ = m.Update(appsync.BookingsMsg{Bookings: []model.Booking{}})
	m = next.(Model)
	assert.Contains(t, m.View(), "No bookings")
}
