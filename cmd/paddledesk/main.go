package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/facebookgo/clock"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/paddledesk/internal/app"
	"github.com/nhle/paddledesk/internal/credential"
	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/metrics"
	"github.com/nhle/paddledesk/internal/model"
	appsync "github.com/nhle/paddledesk/internal/sync"
	"github.com/nhle/paddledesk/internal/worker"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// pruneEvery is how often the worker drops expired notifications.
const pruneEvery = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "--version", "version", "-v":
		fmt.Println("paddledesk " + version)
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	}

	cfgPath := model.DefaultConfigPath()
	if p := os.Getenv("PADDLEDESK_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	switch cmd {
	case "run":
		return runUI(cfg)
	case "watch":
		return runWatch(cfg)
	case "worker":
		return runWorker(cfg)
	case "setup":
		return runSetup(cfgPath, cfg)
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printHelp() {
	fmt.Print(`paddledesk - booking alerts for the rental desk

Usage:
  paddledesk [command]

Commands:
  run       Open the desk view (default)
  watch     Run the evaluators without a UI, logging to stderr
  worker    Run the background notification worker
  setup     Configure the backend, storage and sound
  version   Print the version

Environment:
  PADDLEDESK_CONFIG  Config file (default ~/.config/paddledesk/config.yaml)
  PADDLEDESK_TOKEN   API token, overrides the keyring
`)
}

// setupLogging applies the configured level. The TUI owns the terminal, so
// when quiet is set and no log file is configured, logs are discarded.
func setupLogging(cfg *model.AppConfig, quiet bool) (io.Closer, error) {
	var out io.Writer
	var closer io.Closer
	switch {
	case cfg.Logging.File != "":
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	case quiet:
		out = io.Discard
	}

	if err := logging.Setup(cfg.Logging.Level, out); err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	return closer, nil
}

func newEngine(cfg *model.AppConfig) (*app.Engine, error) {
	token, err := credential.Token(cfg.Backend.TokenKey)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			return nil, fmt.Errorf("reading API token: %w", err)
		}
		logging.GetLogger(logging.App).Println("[WARN] no API token stored, run `paddledesk setup`")
	}
	return app.NewEngine(cfg, app.EngineOptions{Token: token})
}

func runUI(cfg *model.AppConfig) error {
	closer, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	e.Start(context.Background())
	defer e.Stop()

	p := tea.NewProgram(app.New(e), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

func runWatch(cfg *model.AppConfig) error {
	closer, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	l := logging.GetLogger(logging.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	e.Start(ctx)
	defer e.Stop()

	next := e.Poller.Start()
	go func() {
		<-ctx.Done()
		e.Poller.Stop()
	}()

	// WaitForNextResult yields nil once the poller has stopped.
	for msg := next(); msg != nil; msg = e.Poller.WaitForNextResult()() {
		res, ok := msg.(appsync.BookingsMsg)
		if !ok {
			continue
		}
		switch {
		case res.AuthError:
			return fmt.Errorf("backend rejected the API token, run `paddledesk setup`: %w", res.Error)
		case res.Error != nil:
			l.Printf("[WARN] fetching bookings: %s\n", res.Error)
		default:
			l.Printf("[DEBUG] fetched %d bookings\n", len(res.Bookings))
		}
	}
	l.Println("[INFO] watch stopped")
	return nil
}

func runWorker(cfg *model.AppConfig) error {
	closer, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	l := logging.GetLogger(logging.Worker)

	if err := os.MkdirAll(filepath.Dir(cfg.Worker.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating worker directory: %w", err)
	}
	store, err := worker.NewStore(cfg.Worker.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := worker.Options{
		Limit:   cfg.Notifications.MaxStored,
		MaxAge:  time.Duration(cfg.Notifications.MaxAgeHours) * time.Hour,
		Metrics: metrics.New(),
	}
	if cfg.Worker.Desktop {
		d, err := worker.NewDesktopNotifier()
		if err != nil {
			l.Printf("[WARN] desktop notifications unavailable: %s\n", err)
		} else {
			opts.Notifier = d
		}
	}
	w := worker.New(store, opts)
	srv := worker.NewServer(w, cfg.Worker.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		t := clock.New().Ticker(pruneEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if _, err := w.Prune(ctx); err != nil {
					l.Printf("[WARN] pruning notifications: %s\n", err)
				}
			}
		}
	})
	return g.Wait()
}
