package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/paddledesk/internal/keys"
	"github.com/nhle/paddledesk/internal/model"
	"github.com/nhle/paddledesk/internal/theme"
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// View renders the shortcuts followed by the status and priority legend.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Legend"),
		statusLegend(),
		priorityLegend(),
	)

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}

func statusLegend() string {
	statuses := append([]model.BookingStatus{}, model.ActiveStatuses...)
	statuses = append(statuses, model.StatusNoShow, model.StatusCompleted)

	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, theme.StatusStyle(s).Render(string(s)))
	}
	return strings.Join(parts, " ")
}

func priorityLegend() string {
	prios := []model.Priority{model.PriorityUrgent, model.PriorityHigh, model.PriorityMedium, model.PriorityLow}

	parts := make([]string, 0, len(prios))
	for _, p := range prios {
		parts = append(parts, theme.PriorityStyle(p).Render("● "+string(p)))
	}
	return strings.Join(parts, "  ")
}
