package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/paddledesk/internal/evaluator"
	"github.com/nhle/paddledesk/internal/keys"
	"github.com/nhle/paddledesk/internal/model"
	appsync "github.com/nhle/paddledesk/internal/sync"
	"github.com/nhle/paddledesk/internal/theme"
	"github.com/nhle/paddledesk/internal/ui/bell"
	"github.com/nhle/paddledesk/internal/ui/detail"
	uihelp "github.com/nhle/paddledesk/internal/ui/help"
)

// recheckDoneMsg is sent when a forced confirmation pass finishes.
type recheckDoneMsg struct {
	report evaluator.Report
}

// tickMsg redraws the relative times.
type tickMsg time.Time

const tickEvery = 15 * time.Second

// Model is the root Bubble Tea model: the booking board, the bell and the
// status bar.
type Model struct {
	engine *Engine
	keys   *keys.KeyMap
	bell   bell.Model
	help   uihelp.Model
	detail detail.Model

	bookings   []model.Booking
	cursor     int
	width      int
	height     int
	ready      bool
	showHelp   bool
	showDetail bool

	authError string
	flash     string
	now       func() time.Time
}

// New creates the root model over a started engine.
func New(e *Engine) Model {
	km := keys.DefaultKeyMap()
	return Model{
		engine: e,
		keys:   km,
		bell:   bell.New(km, e.Bell, e.Sync, 80),
		help:   uihelp.New(km, 80, 24),
		detail: detail.New(km, 80, 24, e.Clock.Now),
		now:    e.Clock.Now,
	}
}

// Init starts the booking poller and the bell subscription.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.bell.Init(),
		m.engine.Poller.Start(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages and dispatches to the bell when it is open.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.bell.SetWidth(msg.Width)
		m.help.SetSize(msg.Width, msg.Height-2)
		m.detail.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case appsync.BookingsMsg:
		switch {
		case msg.AuthError:
			m.authError = "backend rejected the API token, run `paddledesk setup`"
		case msg.Error != nil:
			m.flash = "bookings: " + msg.Error.Error()
		default:
			m.authError = ""
			m.flash = ""
			m.bookings = msg.Bookings
			if m.cursor >= len(m.bookings) {
				m.cursor = max(len(m.bookings)-1, 0)
			}
			m.refreshDetail()
		}
		return m, m.engine.Poller.WaitForNextResult()

	case bell.ChangedMsg:
		var cmd tea.Cmd
		m.bell, cmd = m.bell.Update(msg)
		m.refreshDetail()
		return m, cmd

	case detail.BackMsg:
		m.showDetail = false
		return m, nil

	case bell.ErrMsg:
		m.flash = msg.Err.Error()
		return m, nil

	case recheckDoneMsg:
		m.flash = fmt.Sprintf("confirmation check: %d requested, %d failed", msg.report.Requested, msg.report.Failed)
		return m, nil

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.bell.Open() || key.Matches(msg, m.keys.Bell) {
		var cmd tea.Cmd
		m.bell, cmd = m.bell.Update(msg)
		return m, cmd
	}

	if m.showDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, m.keys.Back):
		m.showHelp = false
		m.flash = ""
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.bookings)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Open):
		if len(m.bookings) > 0 {
			m.detail.SetBooking(m.bookings[m.cursor], m.engine.Bell.State().List)
			m.showDetail = true
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.engine.Poller.Refresh()
	case key.Matches(msg, m.keys.Mute):
		on := !m.engine.Sound.Enabled()
		m.engine.Sound.SetEnabled(on)
		if on {
			m.flash = "sound on"
		} else {
			m.flash = "sound muted"
		}
	case key.Matches(msg, m.keys.Recheck):
		return m, m.recheck()
	}
	return m, nil
}

// refreshDetail re-renders the open detail view from the latest booking list
// and notifications. The view closes when its booking has left the list.
func (m *Model) refreshDetail() {
	if !m.showDetail {
		return
	}
	id := m.detail.BookingID()
	for _, b := range m.bookings {
		if b.ID == id {
			m.detail.SetBooking(b, m.engine.Bell.State().List)
			return
		}
	}
	m.showDetail = false
}

func (m Model) recheck() tea.Cmd {
	e := m.engine
	return func() tea.Msg {
		e.Confirmation.ForceRecheck()
		r := e.Runner("confirmation")
		if r == nil {
			return nil
		}
		return recheckDoneMsg{report: r.CheckNow(context.Background())}
	}
}

// View renders the full terminal UI.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.renderHeader()
	status := m.renderStatusBar()

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(status)
	var body string
	switch {
	case m.showHelp:
		body = m.help.View()
	case m.bell.Open():
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderBookings(m.width/2), m.bell.View())
	case m.showDetail:
		body = m.detail.View()
	default:
		body = m.renderBookings(m.width)
	}
	body = lipgloss.NewStyle().Height(max(bodyHeight, 0)).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (m Model) renderHeader() string {
	title := theme.HeaderStyle.Render("PaddleDesk")
	right := theme.HeaderStyle.Render(m.syncStatus() + "  " + m.bell.Badge())

	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(right), 0)
	filler := theme.HeaderStyle.Render(strings.Repeat(" ", max(gap-2, 0)))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, filler, right)
}

// syncStatus describes the booking feed and the worker link.
func (m Model) syncStatus() string {
	var parts []string
	st := m.engine.Poller.Status()
	switch st.State {
	case appsync.PollRunning:
		parts = append(parts, "syncing")
	case appsync.PollError:
		parts = append(parts, "⚠ backend unreachable")
	default:
		if !st.LastSync.IsZero() {
			parts = append(parts, "synced "+st.LastSync.Format("15:04"))
		}
	}
	if m.engine.Sync.Degraded() {
		parts = append(parts, "local only")
	}
	if !m.engine.Sound.Enabled() {
		parts = append(parts, "muted")
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderStatusBar() string {
	text := m.keyHints()
	if m.authError != "" {
		text = m.authError
	} else if m.flash != "" {
		text = m.flash
	}
	rendered := theme.StatusBarStyle.Render(text)
	gap := max(m.width-lipgloss.Width(rendered), 0)
	return rendered + theme.StatusBarStyle.Render(strings.Repeat(" ", max(gap-2, 0)))
}

func (m Model) keyHints() string {
	if m.bell.Open() {
		return "r read | R read all | x remove | C clear old | esc close"
	}
	if m.showDetail {
		return "j/k scroll | esc back"
	}
	stats := evaluator.Stats(m.bookings, m.now())
	hints := "q quit | ? help | n notifications | m mute | c recheck"
	if stats.Approaching+stats.Due > 0 {
		return fmt.Sprintf("late: %d approaching no-show, %d past threshold | %s", stats.Approaching, stats.Due, hints)
	}
	return hints
}

func (m Model) renderBookings(width int) string {
	if len(m.bookings) == 0 {
		return theme.DimmedStyle.Render("  No bookings")
	}

	now := m.now()
	rows := make([]string, 0, len(m.bookings))
	for i, b := range m.bookings {
		line := fmt.Sprintf("%s  %-20s %s %-10s %s",
			b.PlannedStartTime.Local().Format("15:04"),
			truncate(b.ClientName, 20),
			theme.StatusStyle(b.Status).Width(22).Render(string(b.Status)),
			inventory(b),
			timing(b, now),
		)
		if i == m.cursor {
			rows = append(rows, theme.SelectedItemStyle.MaxWidth(width).Render(line))
			continue
		}
		rows = append(rows, theme.ListItemStyle.MaxWidth(width).Render(line))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func inventory(b model.Booking) string {
	var parts []string
	if b.BoardCount > 0 {
		parts = append(parts, fmt.Sprintf("%d🏄", b.BoardCount))
	}
	if b.SeatCount > 0 {
		parts = append(parts, fmt.Sprintf("%d💺", b.SeatCount))
	}
	return strings.Join(parts, " ")
}

// timing describes where b stands relative to now.
func timing(b model.Booking, now time.Time) string {
	if ret, ok := b.ReturnTime(); ok && b.Status == model.StatusInUse {
		d := ret.Sub(now)
		if d < 0 {
			return theme.OverdueStyle.Render(fmt.Sprintf("return %dm late", int(-d.Minutes())))
		}
		return fmt.Sprintf("back in %dm", int(d.Minutes()))
	}
	if !b.Status.IsActive() {
		return ""
	}
	d := b.PlannedStartTime.Sub(now)
	switch {
	case d > time.Hour:
		return fmt.Sprintf("in %dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= 0:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case b.Status.AwaitingArrival() || b.Status == model.StatusPendingConfirmation:
		return theme.OverdueStyle.Render(fmt.Sprintf("%dm late", int(-d.Minutes())))
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
