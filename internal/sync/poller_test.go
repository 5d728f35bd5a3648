package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/booking"
	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/evaluator"
	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/tracker"
)

type fakeLister struct {
	mu       gosync.Mutex
	bookings []model.Booking
	err      error
	calls    int
}

func (f *fakeLister) ListBookings(context.Context) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.bookings, f.err
}

type recordingChecker struct {
	mu   gosync.Mutex
	seen []int
}

func (c *recordingChecker) Check(_ context.Context, bookings []model.Booking) evaluator.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, len(bookings))
	return evaluator.Report{}
}

func TestPollerFetchPrunesState(t *testing.T) {
	clk := mockClock()
	tr := tracker.New(clk, tracker.DefaultCooldown)
	ledger := dedup.NewLedger(clk)

	tr.MarkUpdated(1)
	tr.MarkUpdated(2)
	tr.MarkUpdated(3)
	open := dedup.Window{Start: base.Add(-time.Minute)}
	require.True(t, ledger.Claim(dedup.NewKey(1, "c"), open))
	require.True(t, ledger.Claim(dedup.NewKey(2, "c"), open))

	check := &recordingChecker{}
	runner := evaluator.NewRunner("test", check, evaluator.RunnerOptions{
		Config: model.EvaluatorConfig{Enabled: true, IntervalSec: 60},
		Clock:  clk,
		Logger: logging.Discard(),
	})

	lister := &fakeLister{bookings: []model.Booking{
		{ID: 1, Status: model.StatusBooked},
		{ID: 2, Status: model.StatusCompleted},
	}}
	p := NewPoller(lister, PollerOptions{
		Tracker: tr,
		Ledger:  ledger,
		Runners: []*evaluator.Runner{runner},
		Clock:   clk,
		Logger:  logging.Discard(),
	})

	msg := p.Fetch(context.Background())
	require.NoError(t, msg.Error)
	assert.Len(t, msg.Bookings, 2)

	assert.True(t, tr.WasRecentlyUpdated(1))
	assert.False(t, tr.WasRecentlyUpdated(2))
	assert.False(t, tr.WasRecentlyUpdated(3))
	assert.True(t, ledger.Has(dedup.NewKey(1, "c")))
	assert.False(t, ledger.Has(dedup.NewKey(2, "c")))

	runner.CheckNow(context.Background())
	assert.Equal(t, []int{2}, check.seen)

	st := p.Status()
	assert.Equal(t, PollIdle, st.State)
	assert.True(t, st.LastSync.Equal(base))
}

func TestPollerFetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantAuth bool
	}{
		{"unauthorized", &booking.HTTPError{StatusCode: 401, Message: "bad token"}, true},
		{"forbidden", &booking.HTTPError{StatusCode: 403, Message: "nope"}, true},
		{"server error", &booking.HTTPError{StatusCode: 500, Message: "boom"}, false},
		{"transport", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(&fakeLister{err: tt.err}, PollerOptions{Clock: mockClock(), Logger: logging.Discard()})

			msg := p.Fetch(context.Background())
			require.Error(t, msg.Error)
			assert.Equal(t, tt.wantAuth, msg.AuthError)
			assert.Equal(t, PollError, p.Status().State)
		})
	}
}

func TestPollerLoop(t *testing.T) {
	clk := mockClock()
	lister := &fakeLister{bookings: []model.Booking{{ID: 1, Status: model.StatusBooked}}}
	p := NewPoller(lister, PollerOptions{Interval: time.Minute, Clock: clk, Logger: logging.Discard()})

	first := p.Start()
	require.NotNil(t, first)
	msg, ok := first().(BookingsMsg)
	require.True(t, ok)
	assert.Len(t, msg.Bookings, 1)
	assert.Nil(t, p.Start(), "second start is a no-op")

	p.Refresh()
	msg, ok = p.WaitForNextResult()().(BookingsMsg)
	require.True(t, ok)
	assert.NoError(t, msg.Error)

	clk.Add(time.Minute)
	_, ok = p.WaitForNextResult()().(BookingsMsg)
	require.True(t, ok)

	p.Stop()
	p.Stop()
	lister.mu.Lock()
	assert.Equal(t, 3, lister.calls)
	lister.mu.Unlock()
	assert.Nil(t, p.WaitForNextResult()())
}
