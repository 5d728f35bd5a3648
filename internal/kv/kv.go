// Package kv is the local key-value storage shared by every open instance
// of the app on one device. Each instance opens its own Tab; writes made
// through one tab are announced to the watchers of every other tab, never
// to the writer itself.
package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed tab.
var ErrClosed = errors.New("kv: tab closed")

// Event announces that Key was written or removed by the tab Origin.
type Event struct {
	Key    string
	Origin string
}

// Store is the storage surface the rest of the app depends on.
type Store interface {
	// GetItem returns the value under key; ok is false when it is unset.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error

	// Watch registers fn for writes made by other tabs and returns a func
	// that unregisters it.
	Watch(fn func(Event)) (cancel func())
}

// driver is implemented by each backend.
type driver interface {
	get(ctx context.Context, key string) (string, bool, error)
	set(ctx context.Context, key, value, origin string) error
	remove(ctx context.Context, key, origin string) error
	watchers() *hub
}

// Tab is one handle on a backend with its own origin id.
type Tab struct {
	d      driver
	origin string
	closed atomic.Bool

	mu      sync.Mutex
	cancels []func()
}

func newTab(d driver) *Tab {
	return &Tab{d: d, origin: uuid.NewString()}
}

// Origin returns the id stamped on events caused by this tab.
func (t *Tab) Origin() string {
	return t.origin
}

// GetItem implements Store.
func (t *Tab) GetItem(ctx context.Context, key string) (string, bool, error) {
	if t.closed.Load() {
		return "", false, ErrClosed
	}
	return t.d.get(ctx, key)
}

// SetItem implements Store.
func (t *Tab) SetItem(ctx context.Context, key, value string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.d.set(ctx, key, value, t.origin)
}

// RemoveItem implements Store.
func (t *Tab) RemoveItem(ctx context.Context, key string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.d.remove(ctx, key, t.origin)
}

// Watch implements Store.
func (t *Tab) Watch(fn func(Event)) func() {
	cancel := t.d.watchers().subscribe(t.origin, fn)

	t.mu.Lock()
	t.cancels = append(t.cancels, cancel)
	t.mu.Unlock()

	return cancel
}

// Close drops the tab's watchers. The backend stays open for other tabs.
func (t *Tab) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.mu.Lock()
	cancels := t.cancels
	t.cancels = nil
	t.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	return nil
}

// hub fans events out to watchers registered by other tabs.
type hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	origin string
	fn     func(Event)
}

func newHub() *hub {
	return &hub{subs: make(map[int]subscriber)}
}

func (h *hub) subscribe(origin string, fn func(Event)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = subscriber{origin: origin, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// publish calls every watcher whose tab did not cause ev. Watchers run on
// the caller's goroutine, outside the hub lock.
func (h *hub) publish(ev Event) {
	h.mu.RLock()
	targets := make([]func(Event), 0, len(h.subs))
	for _, s := range h.subs {
		if s.origin != ev.Origin {
			targets = append(targets, s.fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}
