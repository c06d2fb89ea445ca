package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/crypticpy/Grantscope-2-sub004/domain"
	"github.com/crypticpy/Grantscope-2-sub004/navigation"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}

	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	columnStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted).Padding(0, 1)
	activeColumnStyle = columnStyle.BorderForeground(colorAccent)
	titleStyle        = lipgloss.NewStyle().Bold(true)
	focusStyle        = lipgloss.NewStyle().Reverse(true)
	mutedStyle        = lipgloss.NewStyle().Foreground(colorMuted)
	undoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))

	levelStyles = map[domain.Level]lipgloss.Style{
		domain.LevelInfo:    lipgloss.NewStyle().Foreground(colorAccent),
		domain.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		domain.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		domain.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4672")).Bold(true),
	}
)

const minColumnWidth = 22

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	switch {
	case m.loadErr != nil && !m.loaded:
		b.WriteString(levelStyles[domain.LevelError].Render("board unavailable: " + m.loadErr.Error()))
	case !m.loaded:
		b.WriteString(mutedStyle.Render("loading board..."))
	default:
		b.WriteString(m.columns())
	}
	b.WriteString("\n")
	if line := m.undoLine(); line != "" {
		b.WriteString(line + "\n")
	}
	if m.toast != nil {
		style, ok := levelStyles[m.toast.Level]
		if !ok {
			style = mutedStyle
		}
		b.WriteString(style.Render(m.toast.Message) + "\n")
	}
	for _, line := range m.jobLines() {
		b.WriteString(line + "\n")
	}
	b.WriteString(m.footer())
	return b.String()
}

func (m *Model) header() string {
	snap := m.store.Snapshot()
	approved := len(snap[domain.ContainerApproved])
	dismissed := len(snap[domain.ContainerDismissed])
	status := fmt.Sprintf("approved %d  dismissed %d", approved, dismissed)
	if n := m.ctrl.InFlight(); n > 0 {
		status += fmt.Sprintf("  saving %d", n)
	}
	return headerStyle.Render("Grantscope board") + "  " + mutedStyle.Render(status)
}

func (m *Model) columns() string {
	width := minColumnWidth
	if m.width > 0 {
		if w := m.width/len(Columns) - 4; w > width {
			width = w
		}
	}
	focused := m.nav.FocusedIndex()
	cols := make([]string, len(Columns))
	for i, id := range Columns {
		items := m.store.Container(id)
		lines := []string{titleStyle.Render(fmt.Sprintf("%s (%d)", id, len(items)))}
		for j, it := range items {
			line := truncate(it.Title, width-2)
			if i == m.column && j == focused {
				line = focusStyle.Render(line)
			}
			lines = append(lines, line)
		}
		if len(items) == 0 {
			lines = append(lines, mutedStyle.Render("empty"))
		}
		style := columnStyle
		if i == m.column {
			style = activeColumnStyle
		}
		cols[i] = style.Width(width).Render(strings.Join(lines, "\n"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m *Model) undoLine() string {
	a := m.affordance
	if !a.Visible {
		return ""
	}
	title := a.Record.Item.Title
	if title == "" {
		title = a.Record.Item.ID
	}
	keys := strings.Join(m.keymap().Keys(navigation.CmdUndo), "/")
	return undoStyle.Render(fmt.Sprintf("%s %q  (%s to undo, %.1fs)", a.Record.Type, title, keys, a.Remaining.Seconds()))
}

func (m *Model) jobLines() []string {
	var lines []string
	for _, id := range m.jobs {
		p, ok := m.poll.Progress(id)
		if !ok {
			continue
		}
		state := string(p.Status)
		switch {
		case p.TimedOut:
			state = "still running, stopped checking"
		case !p.Done && p.Estimated > 0:
			state += fmt.Sprintf(", about %s left", remaining(p.Estimated, p.Elapsed))
		}
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("job %s: %s (%s elapsed)", shortID(id), state, p.Elapsed.Round(time.Second))))
	}
	return lines
}

func (m *Model) footer() string {
	km := m.keymap()
	help := []string{
		strings.Join(km.Keys(navigation.CmdNext), "/") + " next",
		strings.Join(km.Keys(navigation.CmdPrimary), "/") + " approve/advance",
		strings.Join(km.Keys(navigation.CmdSecondary), "/") + " dismiss",
		"tab column",
		"b brief",
		"s scan",
		"r reload",
		"q quit",
	}
	return mutedStyle.Render(strings.Join(help, "  "))
}

func (m *Model) keymap() navigation.Keymap {
	if m.settings.Keymap != nil {
		return m.settings.Keymap
	}
	return navigation.DefaultKeymap()
}

func remaining(estimated, elapsed time.Duration) time.Duration {
	left := estimated - elapsed
	if left < 0 {
		return 0
	}
	return left.Round(time.Second)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
