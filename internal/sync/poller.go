package sync

import (
	"context"
	"log"
	"net/http"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/facebookgo/clock"

	"github.com/nhle/paddledesk/internal/booking"
	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/evaluator"
	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/tracker"
)

// PollState represents the current state of the booking feed.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

// PollStatus holds the feed state.
type PollStatus struct {
	State    PollState
	LastSync time.Time
	Error    error
}

// BookingsMsg is a tea.Msg sent when a fetch completes.
type BookingsMsg struct {
	Bookings []model.Booking
	Error    error

	// AuthError is set when the backend rejected the API token.
	AuthError bool
}

// Lister fetches the booking list.
type Lister interface {
	ListBookings(ctx context.Context) ([]model.Booking, error)
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// DefaultPollInterval is used when PollerOptions.Interval is unset.
const DefaultPollInterval = 30 * time.Second

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration
	Tracker  *tracker.Tracker
	Ledger   *dedup.Ledger
	Runners  []*evaluator.Runner
	Clock    clock.Clock
	Logger   *log.Logger
}

// Poller fetches the booking list in the background and fans every
// snapshot out to the evaluator runners.
type Poller struct {
	lister   Lister
	tracker  *tracker.Tracker
	ledger   *dedup.Ledger
	runners  []*evaluator.Runner
	interval time.Duration
	clk      clock.Clock
	log      *log.Logger

	status    PollStatus
	resultCh  chan BookingsMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	mu        gosync.Mutex
	running   bool
}

// NewPoller creates a stopped Poller.
func NewPoller(lister Lister, opts PollerOptions) *Poller {
	p := &Poller{
		lister:    lister,
		tracker:   opts.Tracker,
		ledger:    opts.Ledger,
		runners:   opts.Runners,
		interval:  opts.Interval,
		clk:       opts.Clock,
		log:       opts.Logger,
		resultCh:  make(chan BookingsMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.clk == nil {
		p.clk = clock.New()
	}
	if p.log == nil {
		p.log = logging.GetLogger(logging.Booking)
	}
	return p
}

// Start returns a tea.Cmd that starts the polling goroutine and waits for
// the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.poll()

	return p.WaitForNextResult()
}

// Stop halts the polling goroutine and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	<-p.done
}

// Refresh triggers an immediate fetch.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
		// A fetch is already queued.
	}
	return nil
}

// Status returns the current feed state.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) poll() {
	defer close(p.done)

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	p.sendResult(p.Fetch(context.Background()))

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendResult(p.Fetch(context.Background()))
		case <-p.triggerCh:
			p.sendResult(p.Fetch(context.Background()))
		}
	}
}

// Fetch performs a single fetch. On success the tracker and the dedup
// ledger forget bookings that are no longer active and every runner gets
// the new snapshot.
func (p *Poller) Fetch(ctx context.Context) BookingsMsg {
	p.setStatus(PollRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	bookings, err := p.lister.ListBookings(ctx)
	if err != nil {
		p.setStatus(PollError, err)
		auth := booking.IsStatus(err, http.StatusUnauthorized) || booking.IsStatus(err, http.StatusForbidden)
		if auth {
			p.log.Printf("[ERROR] backend rejected the API token: %s\n", err)
		} else {
			p.log.Printf("[WARN] fetching bookings: %s\n", err)
		}
		return BookingsMsg{Error: err, AuthError: auth}
	}

	active := make(map[int64]bool, len(bookings))
	for _, b := range bookings {
		if b.Status.IsActive() {
			active[b.ID] = true
		}
	}
	if p.tracker != nil {
		p.tracker.Cleanup(active)
	}
	if p.ledger != nil {
		if n := p.ledger.Retain(active); n > 0 {
			p.log.Printf("[DEBUG] dropped %d dedup keys of inactive bookings\n", n)
		}
	}
	for _, r := range p.runners {
		r.Update(bookings)
	}

	p.setStatus(PollIdle, nil)
	return BookingsMsg{Bookings: bookings}
}

func (p *Poller) setStatus(state PollState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == PollIdle && err == nil {
		p.status.LastSync = p.clk.Now()
	}
}

// sendResult sends a BookingsMsg on the result channel without blocking.
func (p *Poller) sendResult(msg BookingsMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next fetch result.
// Call it after processing a BookingsMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-p.done:
			return nil
		}
	}
}
