package bell

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/paddledesk/internal/keys"
	"github.com/nhle/paddledesk/internal/model"
)

type fakeMutator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMutator) record(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeMutator) MarkRead(_ context.Context, id string) error { return f.record("read:" + id) }
func (f *fakeMutator) MarkAllRead(context.Context) error          { return f.record("read-all") }
func (f *fakeMutator) Remove(_ context.Context, id string) error   { return f.record("remove:" + id) }
func (f *fakeMutator) ClearOld(context.Context) error              { return f.record("clear-old") }

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()

	var got []State
	cancel := s.Subscribe(func(st State) { got = append(got, st) })

	s.Dispatch(Upsert{n("a", false, 0)})
	cancel()
	s.Dispatch(Upsert{n("b", false, 0)})

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].UnreadCount)
	assert.Equal(t, 2, s.State().UnreadCount)
}

func TestModelToggleAndActions(t *testing.T) {
	store := NewStore()
	store.Dispatch(Load{List: []model.Notification{n("a", false, 0), n("b", false, time.Minute)}})

	mut := &fakeMutator{}
	m := New(keys.DefaultKeyMap(), store, mut, 100)
	defer m.Close()
	m.now = func() time.Time { return now }

	assert.Empty(t, m.View())
	assert.Contains(t, m.Badge(), "2")

	m, _ = m.Update(keyMsg("n"))
	assert.True(t, store.State().TooltipOpen)

	// The change arrives through the store subscription.
	msg := m.Init()()
	m, _ = m.Update(msg)
	require.True(t, m.Open())
	assert.Contains(t, m.View(), "Notifications (2 unread)")

	m, _ = m.Update(keyMsg("j"))
	_, cmd := m.Update(keyMsg("x"))
	require.NotNil(t, cmd)
	assert.Nil(t, cmd())

	_, cmd = m.Update(keyMsg("R"))
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, []string{"remove:b", "read-all"}, mut.calls)
}

func TestModelIgnoresListKeysWhenClosed(t *testing.T) {
	store := NewStore()
	store.Dispatch(Upsert{n("a", false, 0)})
	mut := &fakeMutator{}
	m := New(keys.DefaultKeyMap(), store, mut, 80)
	defer m.Close()

	_, cmd := m.Update(keyMsg("R"))
	assert.Nil(t, cmd)
	assert.Empty(t, mut.calls)
}

func TestAgo(t *testing.T) {
	assert.Equal(t, "just now", ago(10*time.Second))
	assert.Equal(t, "5m ago", ago(5*time.Minute))
	assert.Equal(t, "3h ago", ago(3*time.Hour+10*time.Minute))
}
