package evaluator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/facebookgo/clock"

	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/tracker"
)

type transition struct {
	ID     int64
	Status model.BookingStatus
}

type fakeUpdater struct {
	mu       sync.Mutex
	calls    []transition
	failNext int
}

func (f *fakeUpdater) UpdateBookingStatus(_ context.Context, id int64, status model.BookingStatus) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, transition{ID: id, Status: status})
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("backend unavailable")
	}
	return &model.Booking{ID: id, Status: status}, nil
}

func (f *fakeUpdater) Calls() []transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transition(nil), f.calls...)
}

type fakeSink struct {
	mu       sync.Mutex
	got      []model.Notification
	failNext int
}

func (f *fakeSink) Publish(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("storage full")
	}
	f.got = append(f.got, n)
	return nil
}

func (f *fakeSink) Notifications() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Notification(nil), f.got...)
}

type fakePlayer struct {
	mu     sync.Mutex
	played []model.Priority
}

func (f *fakePlayer) Play(_ context.Context, p model.Priority) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, p)
	return true
}

func (f *fakePlayer) Played() []model.Priority {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Priority(nil), f.played...)
}

func newDeps(t *testing.T, up Updater) (Deps, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	return Deps{
		Updater: up,
		Tracker: tracker.New(mock, 0),
		Ledger:  dedup.NewLedger(mock),
		Clock:   mock,
		Logger:  logging.Discard(),
	}, mock
}
