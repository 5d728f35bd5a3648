package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/metrics"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/notify"
)

const (
	// DefaultLimit bounds the list answered to LOAD_NOTIFICATIONS.
	DefaultLimit = 100

	// DefaultMaxAge is how long the worker keeps a notification.
	DefaultMaxAge = 24 * time.Hour

	subscriberBuffer = 100
)

// Notifier shows a notification outside the application window.
type Notifier interface {
	Notify(n model.Notification) error
}

// Options configures a Worker. Zero values select the defaults.
type Options struct {
	Limit    int
	MaxAge   time.Duration
	Notifier Notifier
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	Logger   *log.Logger
}

// Worker owns the durable store and fans new notifications out to every
// subscribed client.
type Worker struct {
	store    *Store
	notifier Notifier
	metrics  *metrics.Metrics
	clk      clock.Clock
	log      *log.Logger
	limit    int
	maxAge   time.Duration

	mu     sync.RWMutex
	subs   map[int]chan Message
	nextID int
	closed bool
}

// New creates a Worker backed by store.
func New(store *Store, opts Options) *Worker {
	w := &Worker{
		store:    store,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		clk:      opts.Clock,
		log:      opts.Logger,
		limit:    opts.Limit,
		maxAge:   opts.MaxAge,
		subs:     make(map[int]chan Message),
	}
	if w.clk == nil {
		w.clk = clock.New()
	}
	if w.log == nil {
		w.log = logging.GetLogger(logging.Worker)
	}
	if w.limit <= 0 {
		w.limit = DefaultLimit
	}
	if w.maxAge <= 0 {
		w.maxAge = DefaultMaxAge
	}
	return w
}

// Request answers a single request message.
//
// LOAD_NOTIFICATIONS is answered with NOTIFICATIONS_LOADED carrying the
// stored list, newest first. SYNC_NOTIFICATIONS replaces the stored list
// and is answered with SYNC_COMPLETED.
func (w *Worker) Request(ctx context.Context, msg Message) (Message, error) {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return Message{}, ErrNoController
	}

	switch msg.Type {
	case LoadNotifications:
		list, err := w.load(ctx)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: NotificationsLoaded, Notifications: list}, nil

	case SyncNotifications:
		if err := w.store.Replace(ctx, msg.Notifications); err != nil {
			return Message{}, err
		}
		w.updateStored(ctx)
		return Message{Type: SyncCompleted}, nil

	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

func (w *Worker) load(ctx context.Context) ([]model.Notification, error) {
	if _, err := w.Prune(ctx); err != nil {
		w.log.Printf("[WARN] pruning before load: %s\n", err)
	}
	return w.store.List(ctx, w.limit)
}

// Prune drops stored notifications older than the configured max age.
func (w *Worker) Prune(ctx context.Context) (int64, error) {
	n, err := w.store.Prune(ctx, w.clk.Now().Add(-w.maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.log.Printf("[DEBUG] pruned %d expired notifications\n", n)
		w.updateStored(ctx)
	}
	return n, nil
}

// Deliver handles an incoming push: the notification is stored, shown on
// the desktop and broadcast to every subscriber as NEW_NOTIFICATION.
func (w *Worker) Deliver(ctx context.Context, p model.PushPayload) (model.Notification, error) {
	if p.Title == "" {
		return model.Notification{}, fmt.Errorf("push payload: title is required")
	}

	n := notify.FromPush(p, w.clk.Now())
	if err := w.store.Put(ctx, n); err != nil {
		return model.Notification{}, err
	}
	w.metrics.PushReceived()
	w.updateStored(ctx)

	if w.notifier != nil {
		if err := w.notifier.Notify(n); err != nil {
			w.log.Printf("[WARN] desktop notification %s: %s\n", n.ID, err)
		}
	}

	w.broadcast(Message{Type: NewNotification, Notification: &n})
	w.log.Printf("[INFO] delivered %s (%s)\n", n.ID, n.Priority)
	return n, nil
}

// Subscribe registers a client. The returned channel receives every
// NEW_NOTIFICATION until cancel is called or the worker closes.
func (w *Worker) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := w.nextID
	w.nextID++
	w.subs[id] = ch
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if c, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of connected clients.
func (w *Worker) Subscribers() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subs)
}

func (w *Worker) broadcast(msg Message) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for id, ch := range w.subs {
		select {
		case ch <- msg:
		default:
			w.log.Printf("[WARN] subscriber %d is slow, dropping %s\n", id, msg.Type)
		}
	}
}

func (w *Worker) updateStored(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	n, err := w.store.Count(ctx)
	if err != nil {
		return
	}
	w.metrics.SetStored(n)
}

// Close disconnects every subscriber. Later requests fail with
// ErrNoController. The store is left open.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
}
