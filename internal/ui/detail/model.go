package detail

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/paddledesk/internal/keys"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/theme"
)

// BackMsg signals the parent to navigate back to the board.
type BackMsg struct{}

// Model is the booking detail view component. It shows the booking and the
// notifications raised about it.
type Model struct {
	booking  *model.Booking
	related  []model.Notification
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	now      func() time.Time
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int, now func() time.Time) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	if now == nil {
		now = time.Now
	}
	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
		now:      now,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.booking == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No booking selected")
	}
	return m.viewport.View()
}

// SetBooking shows b together with the notifications in list that refer to
// it, newest first.
func (m *Model) SetBooking(b model.Booking, list []model.Notification) {
	m.booking = &b
	m.related = m.related[:0]
	for _, n := range list {
		if n.BookingID == b.ID {
			m.related = append(m.related, n)
		}
	}
	sort.SliceStable(m.related, func(i, j int) bool {
		return m.related[i].Timestamp.After(m.related[j].Timestamp)
	})
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// BookingID returns the id of the booking on display, or zero.
func (m Model) BookingID() int64 {
	if m.booking == nil {
		return 0
	}
	return m.booking.ID
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.booking != nil {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m Model) renderContent() string {
	b := m.booking
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections,
		titleStyle.Render(fmt.Sprintf("#%d  %s", b.ID, b.ClientName)),
		theme.StatusStyle(b.Status).Render(string(b.Status)),
		"",
	)

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(10)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, metaStyle.Render(label+":")+" "+valStyle.Render(value))
	}

	row("Phone", b.Phone)
	row("Start", b.PlannedStartTime.Local().Format("2006-01-02 15:04"))
	if b.ActualStartTime != nil {
		row("Started", b.ActualStartTime.Local().Format("15:04"))
	}
	row("Duration", formatHours(b.DurationInHours))
	if ret, ok := b.ReturnTime(); ok {
		row("Return", ret.Local().Format("15:04"))
	}
	row("Boards", countOrEmpty(b.BoardCount))
	row("Seats", countOrEmpty(b.SeatCount))

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, headerStyle.Render(fmt.Sprintf("Notifications (%d)", len(m.related))))

	if len(m.related) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("Nothing raised for this booking"))
	}

	now := m.now()
	timeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	for _, n := range m.related {
		title := theme.PriorityStyle(n.Priority).Render("● ") + n.Title
		if n.IsRead {
			title = theme.DimmedStyle.Render("○ " + n.Title)
		}
		sections = append(sections,
			"",
			title+"  "+timeStyle.Render(now.Sub(n.Timestamp).Truncate(time.Minute).String()+" ago"),
			n.Body,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func formatHours(h float64) string {
	if h <= 0 {
		return ""
	}
	return (time.Duration(h * float64(time.Hour))).String()
}

func countOrEmpty(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}
