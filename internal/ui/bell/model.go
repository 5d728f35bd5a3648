package bell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/paddledesk/internal/keys"
	"github.com/nhle/paddledesk/internal/theme"
)

// Mutator applies user actions to the notification stores. The bell never
// mutates its own list directly; changes come back through the Store.
type Mutator interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Remove(ctx context.Context, id string) error
	ClearOld(ctx context.Context) error
}

// ChangedMsg carries the latest bell state into the Bubble Tea runtime.
type ChangedMsg struct {
	State State
}

// ErrMsg reports a failed user action.
type ErrMsg struct {
	Err error
}

const maxRows = 8

// Model renders the bell, its unread badge and the tooltip list.
type Model struct {
	keys    *keys.KeyMap
	store   *Store
	mut     Mutator
	changes chan State
	cancel  func()

	state  State
	cursor int
	width  int
	now    func() time.Time
}

// New creates a bell view over store. mut receives the user's actions.
func New(km *keys.KeyMap, store *Store, mut Mutator, width int) Model {
	changes := make(chan State, 1)
	cancel := store.Subscribe(func(s State) {
		for {
			select {
			case changes <- s:
				return
			default:
			}
			// Keep only the latest state.
			select {
			case <-changes:
			default:
			}
		}
	})

	return Model{
		keys:    km,
		store:   store,
		mut:     mut,
		changes: changes,
		cancel:  cancel,
		state:   store.State(),
		width:   width,
		now:     time.Now,
	}
}

// Init starts listening for state changes.
func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

// Close stops listening for state changes.
func (m Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		return ChangedMsg{State: <-ch}
	}
}

// Open reports whether the tooltip is showing.
func (m Model) Open() bool {
	return m.state.TooltipOpen
}

// Update handles messages for the bell.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ChangedMsg:
		m.state = msg.State
		m.clampCursor()
		return m, m.waitForChange()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Bell) {
		m.store.Dispatch(SetTooltip{Open: !m.state.TooltipOpen})
		return m, nil
	}
	if !m.state.TooltipOpen {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		m.store.Dispatch(SetTooltip{Open: false})
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.state.List)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.run(m.mut.MarkAllRead)
	case key.Matches(msg, m.keys.ClearOld):
		return m, m.run(m.mut.ClearOld)
	case key.Matches(msg, m.keys.MarkRead):
		if id, ok := m.selected(); ok {
			return m, m.run(func(ctx context.Context) error { return m.mut.MarkRead(ctx, id) })
		}
	case key.Matches(msg, m.keys.Remove):
		if id, ok := m.selected(); ok {
			return m, m.run(func(ctx context.Context) error { return m.mut.Remove(ctx, id) })
		}
	}
	return m, nil
}

func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	if m.mut == nil {
		return nil
	}
	return func() tea.Msg {
		if err := fn(context.Background()); err != nil {
			return ErrMsg{Err: err}
		}
		return nil
	}
}

func (m Model) selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.List) {
		return "", false
	}
	return m.state.List[m.cursor].ID, true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.state.List) {
		m.cursor = len(m.state.List) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// SetWidth updates the rendering width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

// Badge renders the bell icon with the unread count.
func (m Model) Badge() string {
	if m.state.UnreadCount == 0 {
		return "🔔"
	}
	return "🔔" + theme.BadgeStyle.Render(fmt.Sprintf("%d", m.state.UnreadCount))
}

// View renders the tooltip list, or nothing when it is closed.
func (m Model) View() string {
	if !m.state.TooltipOpen {
		return ""
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).
		Render(fmt.Sprintf("Notifications (%d unread)", m.state.UnreadCount))

	if len(m.state.List) == 0 {
		body := theme.DimmedStyle.Render("No notifications")
		return theme.PanelStyle.Width(m.panelWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	start := 0
	if m.cursor >= maxRows {
		start = m.cursor - maxRows + 1
	}
	end := min(start+maxRows, len(m.state.List))

	rows := make([]string, 0, end-start+2)
	rows = append(rows, title)
	now := m.now()
	for i := start; i < end; i++ {
		rows = append(rows, m.renderRow(i, now))
	}
	if end < len(m.state.List) {
		rows = append(rows, theme.DimmedStyle.Render(fmt.Sprintf("… %d more", len(m.state.List)-end)))
	}

	return theme.PanelStyle.Width(m.panelWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderRow(i int, now time.Time) string {
	n := m.state.List[i]

	marker := "•"
	if n.IsRead {
		marker = " "
	}
	prio := theme.PriorityStyle(n.Priority).Render(marker)
	line := fmt.Sprintf("%s %s  %s", prio, n.Title, theme.DimmedStyle.Render(ago(now.Sub(n.Timestamp))))
	if n.Body != "" {
		line += "\n    " + theme.DimmedStyle.Render(truncate(n.Body, m.panelWidth()-6))
	}

	if i == m.cursor {
		return theme.SelectedItemStyle.Render(line)
	}
	if n.IsRead {
		return theme.ListItemStyle.Inherit(theme.DimmedStyle).Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func (m Model) panelWidth() int {
	w := m.width / 2
	if w < 40 {
		w = min(40, m.width)
	}
	return w
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if n <= 1 || len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
