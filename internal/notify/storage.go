// Package notify persists the notification list in local storage. The list
// lives as one JSON array under a namespaced key, newest first, capped in
// length and age. Every mutation rewrites the whole list. Mutations through
// one Storage are serialized; two instances writing at the same moment can
// still lose one of the writes, which the low volume makes acceptable.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"

	"github.com/nhle/paddledesk/internal/kv"
	"github.com/nhle/paddledesk/internal/logging"
	"github.com/nhle/paddledesk/internal/model"
)

const (
	// DefaultKey is the storage key holding the list.
	DefaultKey = "paddledesk:notifications"

	// DefaultCapacity is the maximum number of stored notifications.
	DefaultCapacity = 100

	// DefaultMaxAge is the age past which notifications are dropped.
	DefaultMaxAge = 24 * time.Hour
)

// Options tunes a Storage. Zero values select the defaults.
type Options struct {
	Key      string
	Capacity int
	MaxAge   time.Duration
	Clock    clock.Clock
	Logger   *log.Logger
}

// Storage reads and writes the notification list.
type Storage struct {
	store    kv.Store
	key      string
	capacity int
	maxAge   time.Duration
	clk      clock.Clock
	log      *log.Logger

	// mu covers each read-modify-write of the list.
	mu sync.Mutex
}

// New creates a Storage over store.
func New(store kv.Store, opts Options) *Storage {
	s := &Storage{
		store:    store,
		key:      opts.Key,
		capacity: opts.Capacity,
		maxAge:   opts.MaxAge,
		clk:      opts.Clock,
		log:      opts.Logger,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.capacity <= 0 {
		s.capacity = DefaultCapacity
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultMaxAge
	}
	if s.clk == nil {
		s.clk = clock.New()
	}
	if s.log == nil {
		s.log = logging.GetLogger(logging.Storage)
	}
	return s
}

// Key returns the storage key holding the list.
func (s *Storage) Key() string {
	return s.key
}

// Load returns the stored list without expired entries. When entries were
// dropped the remainder is written back. Unreadable or corrupt data yields
// an empty list; Load never fails.
func (s *Storage) Load(ctx context.Context) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Storage) load(ctx context.Context) []model.Notification {
	list, stored := s.read(ctx)
	if len(list) != stored {
		s.log.Printf("[DEBUG] Dropped %d expired notifications\n", stored-len(list))
		if err := s.save(ctx, list); err != nil {
			s.log.Printf("[WARN] Cannot persist expiry: %s\n", err)
		}
	}
	return list
}

// read decodes the stored list without expired entries and reports how
// many entries were stored. It never writes.
func (s *Storage) read(ctx context.Context) ([]model.Notification, int) {
	raw, ok, err := s.store.GetItem(ctx, s.key)
	if err != nil {
		s.log.Printf("[WARN] Cannot read notifications: %s\n", err)
		return []model.Notification{}, 0
	}
	if !ok || raw == "" {
		return []model.Notification{}, 0
	}

	var list []model.Notification
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.log.Printf("[ERROR] Stored notifications are corrupt, starting empty: %s\n", err)
		return []model.Notification{}, 0
	}
	return s.dropExpired(list), len(list)
}

// Save persists list, keeping only its first Capacity entries. The list is
// expected newest first.
func (s *Storage) Save(ctx context.Context, list []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, list)
}

func (s *Storage) save(ctx context.Context, list []model.Notification) error {
	if len(list) > s.capacity {
		list = list[:s.capacity]
	}
	if list == nil {
		list = []model.Notification{}
	}

	buf, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding notifications: %w", err)
	}
	if err := s.store.SetItem(ctx, s.key, string(buf)); err != nil {
		return fmt.Errorf("saving notifications: %w", err)
	}
	return nil
}

// Add inserts n at the front of the list, or replaces the stored entry with
// the same id in place.
func (s *Storage) Add(ctx context.Context, n model.Notification) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)

	replaced := false
	for i := range list {
		if list[i].ID == n.ID {
			list[i] = n
			replaced = true
			break
		}
	}
	if !replaced {
		list = append([]model.Notification{n}, list...)
	}

	return s.commit(ctx, list)
}

// Merge adds the entries of incoming whose ids are not stored yet and
// returns them together with the resulting list.
func (s *Storage) Merge(ctx context.Context, incoming []model.Notification) (added, list []model.Notification, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list = s.load(ctx)

	known := make(map[string]bool, len(list))
	for _, n := range list {
		known[n.ID] = true
	}
	for _, n := range s.dropExpired(incoming) {
		if known[n.ID] {
			continue
		}
		known[n.ID] = true
		added = append(added, n)
	}
	if len(added) == 0 {
		return nil, list, nil
	}

	list = sortNewestFirst(append(list, added...))
	list, err = s.commit(ctx, list)
	return added, list, err
}

// MarkRead flags the notification with id as read.
func (s *Storage) MarkRead(ctx context.Context, id string) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	changed := false
	for i := range list {
		if list[i].ID == id && !list[i].IsRead {
			list[i].IsRead = true
			changed = true
		}
	}
	if !changed {
		return list, nil
	}
	return s.commit(ctx, list)
}

// MarkAllRead flags every notification as read.
func (s *Storage) MarkAllRead(ctx context.Context) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	changed := false
	for i := range list {
		if !list[i].IsRead {
			list[i].IsRead = true
			changed = true
		}
	}
	if !changed {
		return list, nil
	}
	return s.commit(ctx, list)
}

// Remove deletes the notification with id.
func (s *Storage) Remove(ctx context.Context, id string) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	kept := list[:0:0]
	for _, n := range list {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(list) {
		return list, nil
	}
	return s.commit(ctx, kept)
}

// ClearOld drops expired notifications. Load already does so; ClearOld
// makes the pruning explicit for callers acting on a user request.
func (s *Storage) ClearOld(ctx context.Context) []model.Notification {
	return s.Load(ctx)
}

// SubscribeToChanges calls fn with the freshly read list whenever another
// instance writes the notification key. The returned func unsubscribes.
//
// Watchers run on the writer's goroutine, so the list is read without
// taking mu or writing back.
func (s *Storage) SubscribeToChanges(fn func([]model.Notification)) func() {
	return s.store.Watch(func(ev kv.Event) {
		if ev.Key != s.key {
			return
		}
		list, _ := s.read(context.Background())
		fn(list)
	})
}

// CreateFromPush maps a push payload to a Notification stamped with the
// storage clock.
func (s *Storage) CreateFromPush(p model.PushPayload) model.Notification {
	return FromPush(p, s.clk.Now())
}

// FromPush maps a push payload to a Notification. The id comes from the
// payload data, then the tag, and is generated from now otherwise.
func FromPush(p model.PushPayload, now time.Time) model.Notification {
	id := p.Data.ID
	if id == "" {
		id = p.Tag
	}
	if id == "" {
		id = fmt.Sprintf("push-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
	}

	ts := now
	if p.Data.Timestamp > 0 {
		ts = time.UnixMilli(p.Data.Timestamp)
	}

	typ := p.Data.Type
	if typ == "" {
		typ = model.TypeStatusChanged
	}
	prio := p.Data.Priority
	if prio == "" {
		prio = model.PriorityMedium
	}

	actions := p.Actions
	if len(actions) == 0 {
		actions = model.DefaultActions(typ)
	}

	return model.Notification{
		ID:             id,
		Title:          p.Title,
		Body:           p.Body,
		Type:           typ,
		Priority:       prio,
		BookingID:      p.Data.BookingID,
		ClientName:     p.Data.ClientName,
		Timestamp:      ts,
		Actions:        actions,
		AdditionalData: p.Extra,
	}
}

func (s *Storage) commit(ctx context.Context, list []model.Notification) ([]model.Notification, error) {
	if len(list) > s.capacity {
		list = list[:s.capacity]
	}
	if err := s.save(ctx, list); err != nil {
		s.log.Printf("[ERROR] %s\n", err)
		return list, err
	}
	return list, nil
}

func (s *Storage) dropExpired(list []model.Notification) []model.Notification {
	now := s.clk.Now()
	fresh := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if n.Age(now) <= s.maxAge {
			fresh = append(fresh, n)
		}
	}
	return fresh
}
