// Package sync keeps the notification sources consistent and feeds the
// evaluators. The Orchestrator reconciles the worker's durable store, the
// tab's local storage and the bell; the Poller fetches the booking list.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"

	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/metrics"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/notify"
	"github.com/nhle/paddledesk/internal/ui/bell"
	"github.com/nhle/paddledesk/internal/worker"
)

// DefaultTimeout bounds a worker round trip.
const DefaultTimeout = 3 * time.Second

// Delays between attempts to reopen a closed worker stream.
const (
	resubscribeMin = time.Second
	resubscribeMax = 30 * time.Second
)

// Controller is the message port to the background worker. Both the
// in-process *worker.Worker and the HTTP *worker.Client satisfy it.
type Controller interface {
	Request(ctx context.Context, msg worker.Message) (worker.Message, error)
	Subscribe() (<-chan worker.Message, func())
}

// Player plays the cue for pushes received while the UI is open.
type Player interface {
	Play(ctx context.Context, p model.Priority) bool
}

// Options configures an Orchestrator.
type Options struct {
	Timeout time.Duration
	Player  Player
	Metrics *metrics.Metrics
	Logger  *log.Logger
	Clock   clock.Clock
}

// Orchestrator reconciles the worker store, local storage and the bell.
// Local storage is authoritative for the tab: every mutation lands there
// first, is mirrored into the bell, then pushed to the worker.
type Orchestrator struct {
	storage *notify.Storage
	bell    *bell.Store
	ctrl    Controller
	timeout time.Duration
	player  Player
	metrics *metrics.Metrics
	log     *log.Logger
	clk     clock.Clock

	degraded atomic.Bool
	pending  gosync.WaitGroup

	// mu orders storage writes with their projection into the bell and
	// the worker, so an older list never replaces a newer one.
	mu gosync.Mutex

	pushSeq atomic.Uint64
	sendMu  gosync.Mutex
	sent    uint64
}

// New creates an Orchestrator. ctrl may be nil, in which case the
// orchestrator runs on local storage only.
func New(storage *notify.Storage, store *bell.Store, ctrl Controller, opts Options) *Orchestrator {
	o := &Orchestrator{
		storage: storage,
		bell:    store,
		ctrl:    ctrl,
		timeout: opts.Timeout,
		player:  opts.Player,
		metrics: opts.Metrics,
		log:     opts.Logger,
		clk:     opts.Clock,
	}
	if o.clk == nil {
		o.clk = clock.New()
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.log == nil {
		o.log = logging.GetLogger(logging.Sync)
	}
	if ctrl == nil {
		o.degraded.Store(true)
	}
	return o
}

// Degraded reports whether the last worker round trip failed.
func (o *Orchestrator) Degraded() bool {
	return o.degraded.Load()
}

// Load projects local storage into the bell, then fetches the worker's
// list and merges the notifications local storage has not seen.
func (o *Orchestrator) Load(ctx context.Context) []model.Notification {
	o.mu.Lock()
	list := o.storage.Load(ctx)
	o.bell.Dispatch(bell.Load{List: list})
	o.mu.Unlock()

	reply, ok := o.roundTrip(ctx, worker.Message{Type: worker.LoadNotifications})
	if !ok {
		return list
	}
	return o.merge(ctx, reply.Notifications)
}

func (o *Orchestrator) merge(ctx context.Context, incoming []model.Notification) []model.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()

	added, list, err := o.storage.Merge(ctx, incoming)
	if err != nil {
		o.log.Printf("[ERROR] merging worker notifications: %s\n", err)
	}
	if len(added) > 0 {
		o.log.Printf("[DEBUG] merged %d notifications from the worker\n", len(added))
	}
	o.bell.Dispatch(bell.Load{List: list})
	return list
}

// HandleMessage applies an unsolicited worker message.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg worker.Message) {
	switch msg.Type {
	case worker.NewNotification:
		if msg.Notification == nil {
			return
		}
		n := *msg.Notification
		o.mu.Lock()
		list, err := o.storage.Add(ctx, n)
		if err != nil {
			o.log.Printf("[ERROR] storing pushed notification %s: %s\n", n.ID, err)
		}
		o.bell.Dispatch(bell.Load{List: list})
		o.mu.Unlock()
		if o.player != nil {
			o.player.Play(ctx, n.Priority)
		}

	case worker.NotificationsLoaded:
		o.merge(ctx, msg.Notifications)

	default:
		o.log.Printf("[DEBUG] ignoring worker message %s\n", msg.Type)
	}
}

// Publish stores an alert raised by an evaluator. It satisfies the
// evaluator Sink.
func (o *Orchestrator) Publish(ctx context.Context, n model.Notification) error {
	return o.mutate(ctx, "publishing "+n.ID, func() ([]model.Notification, error) {
		return o.storage.Add(ctx, n)
	})
}

// MarkRead marks a notification read.
func (o *Orchestrator) MarkRead(ctx context.Context, id string) error {
	return o.mutate(ctx, "marking "+id+" read", func() ([]model.Notification, error) {
		return o.storage.MarkRead(ctx, id)
	})
}

// MarkAllRead marks every notification read.
func (o *Orchestrator) MarkAllRead(ctx context.Context) error {
	return o.mutate(ctx, "marking all read", func() ([]model.Notification, error) {
		return o.storage.MarkAllRead(ctx)
	})
}

// Remove deletes a notification. The worker receives the resulting list
// one way; local storage is authoritative for deletions.
func (o *Orchestrator) Remove(ctx context.Context, id string) error {
	return o.mutate(ctx, "removing "+id, func() ([]model.Notification, error) {
		return o.storage.Remove(ctx, id)
	})
}

// ClearOld drops expired notifications everywhere.
func (o *Orchestrator) ClearOld(ctx context.Context) error {
	return o.mutate(ctx, "clearing old", func() ([]model.Notification, error) {
		return o.storage.ClearOld(ctx), nil
	})
}

func (o *Orchestrator) mutate(ctx context.Context, what string, apply func() ([]model.Notification, error)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	list, err := apply()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	o.bell.Dispatch(bell.Load{List: list})
	o.pushAsync(ctx, list)
	return nil
}

// pushAsync sends list to the worker without holding up the caller. Call it
// with mu held so sequence numbers follow the order of the lists.
func (o *Orchestrator) pushAsync(ctx context.Context, list []model.Notification) {
	if o.ctrl == nil {
		return
	}
	// The push outlives the caller's context.
	ctx = context.WithoutCancel(ctx)

	seq := o.pushSeq.Add(1)

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()

		o.sendMu.Lock()
		defer o.sendMu.Unlock()
		// A newer list already reached the worker.
		if seq < o.sent {
			return
		}
		o.sent = seq
		o.roundTrip(ctx, worker.Message{Type: worker.SyncNotifications, Notifications: list})
	}()
}

// Wait blocks until every pending worker push has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// roundTrip sends msg and waits at most o.timeout for the reply. Every
// failure is logged and reported as !ok; the caller proceeds locally.
func (o *Orchestrator) roundTrip(ctx context.Context, msg worker.Message) (worker.Message, bool) {
	if o.ctrl == nil {
		o.log.Printf("[WARN] no worker available, %s handled locally\n", msg.Type)
		return worker.Message{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		reply worker.Message
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := o.ctrl.Request(ctx, msg)
		done <- result{reply, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	switch {
	case res.err == nil:
		o.degraded.Store(false)
		return res.reply, true
	case errors.Is(res.err, context.DeadlineExceeded):
		o.metrics.WorkerTimeout()
		o.log.Printf("[WARN] worker did not answer %s within %s, using local storage only\n", msg.Type, o.timeout)
	case errors.Is(res.err, worker.ErrNoController):
		o.log.Printf("[WARN] no active worker for %s, using local storage only\n", msg.Type)
	default:
		o.log.Printf("[WARN] worker %s failed: %s\n", msg.Type, res.err)
	}
	o.degraded.Store(true)
	return worker.Message{}, false
}

// Listen mirrors changes from other tabs into the bell and applies worker
// pushes until ctx is done. A closed worker stream is reopened with a
// doubling delay.
func (o *Orchestrator) Listen(ctx context.Context) {
	stopTabs := o.storage.SubscribeToChanges(func(list []model.Notification) {
		o.bell.Dispatch(bell.Load{List: list})
	})
	defer stopTabs()

	if o.ctrl == nil {
		<-ctx.Done()
		return
	}

	delay := resubscribeMin
	for {
		if o.follow(ctx) {
			delay = resubscribeMin
		}
		if ctx.Err() != nil {
			return
		}

		o.log.Printf("[WARN] worker stream closed, reconnecting in %s\n", delay)
		o.degraded.Store(true)

		timer := o.clk.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, resubscribeMax)
	}
}

// follow applies messages from one worker subscription until it closes or
// ctx is done. It reports whether anything arrived.
func (o *Orchestrator) follow(ctx context.Context) bool {
	msgs, cancel := o.ctrl.Subscribe()
	defer cancel()

	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case msg, ok := <-msgs:
			if !ok {
				return received
			}
			if !received {
				received = true
				o.degraded.Store(false)
			}
			o.HandleMessage(ctx, msg)
		}
	}
}
