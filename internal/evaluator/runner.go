package evaluator

import (
	"context"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/nhle/paddledesk/internal/model"
)

// DefaultDebounce delays the re-check after the booking list changes size.
const DefaultDebounce = time.Second

// Runner drives a Checker: once on Start, then every interval (plus
// jitter), and shortly after the booking list changes size.
type Runner struct {
	name     string
	check    Checker
	clk      clock.Clock
	log      *log.Logger
	interval time.Duration
	jitter   time.Duration
	debounce time.Duration
	onReport func(Report)

	mu       sync.Mutex
	enabled  bool
	running  bool
	bookings []model.Booking
	pending  *clock.Timer
	stopCh   chan struct{}
	trigger  chan struct{}
	wg       sync.WaitGroup
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Config   model.EvaluatorConfig
	Clock    clock.Clock
	Logger   *log.Logger
	OnReport func(Report)
}

// NewRunner creates a stopped Runner for check.
func NewRunner(name string, check Checker, opts RunnerOptions) *Runner {
	r := &Runner{
		name:     name,
		check:    check,
		clk:      opts.Clock,
		log:      opts.Logger,
		interval: opts.Config.Interval(),
		jitter:   opts.Config.Jitter(),
		debounce: opts.Config.Debounce(),
		onReport: opts.OnReport,
		enabled:  opts.Config.Enabled,
		trigger:  make(chan struct{}, 1),
	}
	if r.clk == nil {
		r.clk = clock.New()
	}
	if r.log == nil {
		r.log = log.Default()
	}
	if r.interval <= 0 {
		r.interval = time.Minute
	}
	if r.debounce <= 0 {
		r.debounce = DefaultDebounce
	}
	return r
}

// Name returns the evaluator name.
func (r *Runner) Name() string {
	return r.name
}

// Enabled reports the kill-switch state.
func (r *Runner) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetEnabled flips the kill-switch. A disabled runner keeps its timers but
// skips every pass.
func (r *Runner) SetEnabled(on bool) {
	r.mu.Lock()
	r.enabled = on
	r.mu.Unlock()
	r.log.Printf("[INFO] %s evaluator enabled=%t\n", r.name, on)
}

// Update replaces the booking snapshot. When its length differs from the
// previous one a check is scheduled after the debounce delay; further
// changes within the delay push it back.
func (r *Runner) Update(bookings []model.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := len(bookings) != len(r.bookings)
	r.bookings = bookings
	if !changed || !r.running {
		return
	}

	if r.pending != nil {
		r.pending.Stop()
	}
	r.pending = r.clk.AfterFunc(r.debounce, r.fire)
}

// Start runs an immediate check and starts the periodic loop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	// Armed before the loop goroutine starts so no tick is lost.
	timer := r.clk.Timer(r.next())

	r.CheckNow(ctx)

	r.wg.Add(1)
	go r.loop(ctx, timer)
}

// Stop halts the loop and waits for an in-progress pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// CheckNow runs one pass over the current snapshot on the caller's
// goroutine.
func (r *Runner) CheckNow(ctx context.Context) Report {
	r.mu.Lock()
	enabled, bookings := r.enabled, r.bookings
	r.mu.Unlock()

	if !enabled {
		r.log.Printf("[DEBUG] %s evaluator disabled, skipping pass\n", r.name)
		return Report{Evaluator: r.name}
	}

	rep := r.check.Check(ctx, bookings)
	rep.Evaluator = r.name
	if r.onReport != nil {
		r.onReport(rep)
	}
	return rep
}

func (r *Runner) loop(ctx context.Context, timer *clock.Timer) {
	defer r.wg.Done()
	defer func() { timer.Stop() }()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			timer = r.clk.Timer(r.next())
			r.CheckNow(ctx)
		case <-r.trigger:
			r.CheckNow(ctx)
		}
	}
}

// fire runs on the debounce timer.
func (r *Runner) fire() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()

	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) next() time.Duration {
	if r.jitter <= 0 {
		return r.interval
	}
	return r.interval + rand.N(r.jitter)
}
