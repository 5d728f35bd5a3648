package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/facebookgo/clock"

	"github.com/nhle/paddledesk/internal/booking"
	"github.com/nhle/paddledesk/internal/dedup"
	"github.com/nhle/paddledesk/internal/evaluator"
	"github.com/nhle/paddledesk/internal/kv"
	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/metrics"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/notify"
	"github.com/nhle/paddledesk/internal/sound"
	appsync "github.com/nhle/paddledesk/internal/sync"
	"github.com/nhle/paddledesk/internal/tracker"
	"github.com/nhle/paddledesk/internal/ui/bell"
	"github.com/nhle/paddledesk/internal/worker"
)

// EngineOptions overrides collaborators, mostly for tests.
type EngineOptions struct {
	// Token authenticates against the bookings API.
	Token string

	// Bookings replaces the REST client.
	Bookings BookingAPI

	// Controller replaces the HTTP client of the worker. Set NoWorker to
	// run on local storage only.
	Controller appsync.Controller
	NoWorker   bool

	// Backend replaces the storage backend selected by the config.
	Backend kv.Backend

	// Output replaces the command-line audio player.
	Output sound.Output

	Clock clock.Clock
}

// BookingAPI is the slice of the REST backend the engine uses.
type BookingAPI interface {
	appsync.Lister
	evaluator.Updater
}

// Engine is the composition root. It owns one instance of every service
// and wires them together.
type Engine struct {
	Config  *model.AppConfig
	Clock   clock.Clock
	Metrics *metrics.Metrics

	Backend kv.Backend
	Tab     *kv.Tab
	Storage *notify.Storage
	Bell    *bell.Store
	Sync    *appsync.Orchestrator
	Sound   *sound.Service

	Tracker      *tracker.Tracker
	Ledger       *dedup.Ledger
	Bookings     BookingAPI
	Confirmation *evaluator.Confirmation
	Runners      []*evaluator.Runner
	Poller       *appsync.Poller

	ownsBackend bool
	log         *log.Logger
	cancel      context.CancelFunc
	listenDone  chan struct{}
}

// NewEngine builds the services described by cfg.
func NewEngine(cfg *model.AppConfig, opts EngineOptions) (*Engine, error) {
	e := &Engine{
		Config:  cfg,
		Clock:   opts.Clock,
		Metrics: metrics.New(),
		Bell:    bell.NewStore(),
		log:     logging.GetLogger(logging.App),
	}
	if e.Clock == nil {
		e.Clock = clock.New()
	}

	e.Backend = opts.Backend
	if e.Backend == nil {
		b, err := kv.OpenBackend(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("opening local storage: %w", err)
		}
		e.Backend = b
		e.ownsBackend = true
	}
	e.Tab = e.Backend.Open()

	key := ""
	if cfg.Storage.Namespace != "" {
		key = cfg.Storage.Namespace + ":notifications"
	}
	e.Storage = notify.New(e.Tab, notify.Options{
		Key:      key,
		Capacity: cfg.Notifications.MaxStored,
		MaxAge:   time.Duration(cfg.Notifications.MaxAgeHours) * time.Hour,
		Clock:    e.Clock,
	})

	out := opts.Output
	if out == nil {
		out = sound.NewPlayerOutput(cfg.Sound.Player)
	}
	e.Sound = sound.New(out, sound.Options{
		Volume:   cfg.Sound.Volume,
		Disabled: !cfg.Sound.Enabled,
		MinGap:   time.Duration(cfg.Sound.MinGapMs) * time.Millisecond,
		Clock:    e.Clock,
	})

	var ctrl appsync.Controller
	switch {
	case opts.NoWorker:
	case opts.Controller != nil:
		ctrl = opts.Controller
	default:
		ctrl = worker.NewClient(cfg.Worker.ListenAddr)
	}
	e.Sync = appsync.New(e.Storage, e.Bell, ctrl, appsync.Options{
		Timeout: cfg.WorkerTimeout(),
		Player:  e.Sound,
		Metrics: e.Metrics,
		Clock:   e.Clock,
	})

	e.Bookings = opts.Bookings
	if e.Bookings == nil {
		e.Bookings = booking.NewClient(cfg.Backend.BaseURL, opts.Token)
	}

	e.Tracker = tracker.New(e.Clock, cfg.Cooldown())
	e.Ledger = dedup.NewLedger(e.Clock)

	deps := func(dom logging.Domain) evaluator.Deps {
		return evaluator.Deps{
			Updater: e.Bookings,
			Tracker: e.Tracker,
			Ledger:  e.Ledger,
			Clock:   e.Clock,
			Metrics: e.Metrics,
			Logger:  logging.GetLogger(dom),
		}
	}
	evs := cfg.Evaluators
	e.Confirmation = evaluator.NewConfirmation(deps(logging.Confirmation), time.Duration(evs.Confirmation.WindowMin)*time.Minute)

	e.Runners = []*evaluator.Runner{
		e.newRunner("confirmation", e.Confirmation, evs.Confirmation, logging.Confirmation),
		e.newRunner("no-show", evaluator.NewNoShow(deps(logging.NoShow)), evs.NoShow, logging.NoShow),
		e.newRunner("alerts", evaluator.NewAlerts(deps(logging.Alerts), e.Sync, e.Sound), evs.Alerts, logging.Alerts),
	}

	e.Poller = appsync.NewPoller(e.Bookings, appsync.PollerOptions{
		Interval: time.Duration(cfg.Backend.PollIntervalSec) * time.Second,
		Tracker:  e.Tracker,
		Ledger:   e.Ledger,
		Runners:  e.Runners,
		Clock:    e.Clock,
	})

	return e, nil
}

func (e *Engine) newRunner(name string, check evaluator.Checker, cfg model.EvaluatorConfig, dom logging.Domain) *evaluator.Runner {
	l := logging.GetLogger(dom)
	return evaluator.NewRunner(name, check, evaluator.RunnerOptions{
		Config: cfg,
		Clock:  e.Clock,
		Logger: l,
		OnReport: func(r evaluator.Report) {
			if r.Requested+r.Raised+r.Failed > 0 {
				l.Printf("[INFO] %s pass: requested=%d failed=%d raised=%d skipped=%d\n",
					r.Evaluator, r.Requested, r.Failed, r.Raised, r.Skipped)
			}
		},
	})
}

// Runner returns the runner with the given name, or nil.
func (e *Engine) Runner(name string) *evaluator.Runner {
	for _, r := range e.Runners {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

// Start loads the notifications, starts listening for pushes and other
// tabs, and starts the evaluators. The booking poller is started by the
// caller so its results can be consumed.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	list := e.Sync.Load(ctx)
	e.log.Printf("[INFO] loaded %d notifications (worker degraded=%t)\n", len(list), e.Sync.Degraded())

	e.listenDone = make(chan struct{})
	go func() {
		defer close(e.listenDone)
		e.Sync.Listen(ctx)
	}()

	if !e.Sound.IsAvailable() {
		e.log.Println("[WARN] no audio player found, alerts will be silent")
	}

	for _, r := range e.Runners {
		r.Start(ctx)
	}
}

// Stop tears everything down. No timer or goroutine survives it.
func (e *Engine) Stop() {
	e.Poller.Stop()
	for _, r := range e.Runners {
		r.Stop()
	}
	if e.cancel != nil {
		e.cancel()
		<-e.listenDone
	}
	e.Sync.Wait()

	if err := e.Tab.Close(); err != nil {
		e.log.Printf("[WARN] closing local storage tab: %s\n", err)
	}
	if e.ownsBackend {
		if err := e.Backend.Close(); err != nil {
			e.log.Printf("[WARN] closing local storage: %s\n", err)
		}
	}
}
