package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/metrics"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/worker"
	"github.com/nhle/paddledesk/tests/testutil"
)

type fakeNotifier struct {
	mu    sync.Mutex
	shown []model.Notification
	err   error
}

func (f *fakeNotifier) Notify(n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

func newWorker(t *testing.T, n worker.Notifier) (*worker.Worker, *clock.Mock, *metrics.Metrics) {
	t.Helper()
	clk := clock.NewMock()
	clk.Add(base.Sub(clk.Now()))
	m := metrics.New()
	w := worker.New(testutil.NewTestWorkerStore(t), worker.Options{
		Notifier: n,
		Metrics:  m,
		Clock:    clk,
		Logger:   logging.Discard(),
	})
	t.Cleanup(w.Close)
	return w, clk, m
}

func TestWorkerLoadAndSync(t *testing.T) {
	w, _, _ := newWorker(t, nil)
	ctx := context.Background()

	reply, err := w.Request(ctx, worker.Message{Type: worker.LoadNotifications})
	require.NoError(t, err)
	assert.Equal(t, worker.NotificationsLoaded, reply.Type)
	assert.Empty(t, reply.Notifications)

	reply, err = w.Request(ctx, worker.Message{
		Type:          worker.SyncNotifications,
		Notifications: []model.Notification{note("a", base), note("b", base.Add(time.Second))},
	})
	require.NoError(t, err)
	assert.Equal(t, worker.SyncCompleted, reply.Type)

	reply, err = w.Request(ctx, worker.Message{Type: worker.LoadNotifications})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(reply.Notifications))
}

func TestWorkerLoadDropsExpired(t *testing.T) {
	w, _, _ := newWorker(t, nil)
	ctx := context.Background()

	_, err := w.Request(ctx, worker.Message{
		Type: worker.SyncNotifications,
		Notifications: []model.Notification{
			note("old", base.Add(-25*time.Hour)),
			note("new", base.Add(-time.Hour)),
		},
	})
	require.NoError(t, err)

	reply, err := w.Request(ctx, worker.Message{Type: worker.LoadNotifications})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(reply.Notifications))
}

func TestWorkerPruneAfterClockMoves(t *testing.T) {
	w, clk, _ := newWorker(t, nil)
	ctx := context.Background()

	_, err := w.Request(ctx, worker.Message{
		Type:          worker.SyncNotifications,
		Notifications: []model.Notification{note("a", base)},
	})
	require.NoError(t, err)

	n, err := w.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Add(25 * time.Hour)
	n, err = w.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWorkerUnknownMessage(t *testing.T) {
	w, _, _ := newWorker(t, nil)

	_, err := w.Request(context.Background(), worker.Message{Type: worker.NewNotification})
	require.Error(t, err)
	assert.True(t, errors.Is(err, worker.ErrUnknownMessage))
}

func TestWorkerDeliverBroadcasts(t *testing.T) {
	n := &fakeNotifier{}
	w, _, m := newWorker(t, n)
	ctx := context.Background()

	ch1, cancel1 := w.Subscribe()
	defer cancel1()
	ch2, cancel2 := w.Subscribe()
	defer cancel2()
	assert.Equal(t, 2, w.Subscribers())

	got, err := w.Deliver(ctx, model.PushPayload{
		Title: "Booking confirmed",
		Body:  "Anna, 2 boards",
		Data:  model.PushData{ID: "p-1", Priority: model.PriorityHigh, BookingID: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.ID)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, model.TypeStatusChanged, got.Type)
	assert.True(t, got.Timestamp.Equal(base))

	for _, ch := range []<-chan worker.Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, worker.NewNotification, msg.Type)
			require.NotNil(t, msg.Notification)
			assert.Equal(t, "p-1", msg.Notification.ID)
		case <-time.After(time.Second):
			t.Fatal("no broadcast received")
		}
	}

	assert.Equal(t, 1, n.count())
	assert.Contains(t, scrape(t, m), "paddledesk_pushes_received_total 1")
	assert.Contains(t, scrape(t, m), "paddledesk_worker_notifications_stored 1")
}

func TestWorkerDeliverRequiresTitle(t *testing.T) {
	w, _, _ := newWorker(t, nil)

	_, err := w.Deliver(context.Background(), model.PushPayload{Body: "no title"})
	require.Error(t, err)
}

func TestWorkerDesktopFailureStillDelivers(t *testing.T) {
	n := &fakeNotifier{err: errors.New("no notification daemon")}
	w, _, _ := newWorker(t, n)
	ctx := context.Background()

	_, err := w.Deliver(ctx, model.PushPayload{Title: "hello", Tag: "t-1"})
	require.NoError(t, err)

	reply, err := w.Request(ctx, worker.Message{Type: worker.LoadNotifications})
	require.NoError(t, err)
	assert.Equal(t, []string{"t-1"}, ids(reply.Notifications))
}

func TestWorkerSlowSubscriberDoesNotBlock(t *testing.T) {
	w, _, _ := newWorker(t, nil)
	ctx := context.Background()

	_, cancel := w.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 150; i++ {
			_, err := w.Deliver(ctx, model.PushPayload{Title: "x"})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deliver blocked on a full subscriber")
	}
}

func TestWorkerCancelClosesChannel(t *testing.T) {
	w, _, _ := newWorker(t, nil)

	ch, cancel := w.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, w.Subscribers())
}

func TestWorkerClose(t *testing.T) {
	w, _, _ := newWorker(t, nil)

	ch, cancel := w.Subscribe()
	defer cancel()
	w.Close()

	_, ok := <-ch
	assert.False(t, ok)

	_, err := w.Request(context.Background(), worker.Message{Type: worker.LoadNotifications})
	assert.ErrorIs(t, err, worker.ErrNoController)

	late, _ := w.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
