package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // titles, labels and borders
	Dim     lipgloss.Color // status, metadata and card borders
	Warn    lipgloss.Color // ui.log diagnostics
	Console lipgloss.Color // custom message console
}

// DefaultTheme is green on dark terminals.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#f0b429"),
	Console: lipgloss.Color("#58a6ff"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
	Help    lipgloss.Style
	Warn    lipgloss.Style
	Console lipgloss.Style
	Card    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:  lipgloss.NewStyle().Foreground(t.Primary),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
		Warn:    lipgloss.NewStyle().Foreground(t.Warn),
		Console: lipgloss.NewStyle().Foreground(t.Console),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Dim).
			Padding(0, 1),
	}
}

// CardView is one boxed entry: a bold title, a dim metadata line and a
// body.
type CardView struct {
	Title string
	Meta  string
	Body  []string
	Warn  bool
}

// Render renders the card. Lines wider than width are truncated; a width
// of zero disables truncation.
func (c CardView) Render(s Styles, width int) string {
	title := s.Label.Render(c.Title)
	if c.Warn {
		title = s.Warn.Bold(true).Render(c.Title)
	}
	lines := []string{title}
	if c.Meta != "" {
		lines = append(lines, s.Help.Render(c.Meta))
	}
	for _, line := range c.Body {
		if width > 0 {
			line = fit(line, width-4)
		}
		lines = append(lines, line)
	}
	return s.Card.Render(strings.Join(lines, "\n"))
}

// Section is a labeled block of a Frame. Content is read at render time.
type Section struct {
	Label   string
	Content func() []string
}

// Frame is a bordered view: a title row with the status, the sections
// sharing the remaining height evenly, and a help line under the border.
type Frame struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
	Help     string
}

// Render draws the frame at exactly width by height. Sections keep their
// last lines when the content does not fit.
func (f Frame) Render(width, height int) string {
	if width == 0 || height == 0 {
		return "Loading..."
	}
	b := f.Styles.Border
	inner := width - 4

	row := func(text string) string {
		pad := max(0, inner-lipgloss.Width(text))
		return b.Render("│") + " " + text + strings.Repeat(" ", pad) + " " + b.Render("│")
	}
	edge := func(left, right string) string {
		return b.Render(left + strings.Repeat("─", width-2) + right)
	}

	out := []string{
		edge("╭", "╮"),
		row(f.Styles.Title.Render(f.Title) + " " + f.Styles.Help.Render("["+f.Status+"]")),
		row(""),
	}

	n := max(len(f.Sections), 1)
	// Border, title, blank and bottom rows, the help line and one label
	// per section take the rest.
	rows := max((height-5-n)/n, 2)
	for _, sec := range f.Sections {
		label := f.Styles.Label.Render(sec.Label)
		fill := max(0, width-3-lipgloss.Width(label))
		out = append(out, b.Render("├─")+label+b.Render(strings.Repeat("─", fill)+"┤"))
		for _, line := range tail(sec.Content(), rows) {
			out = append(out, row(fit(line, inner)))
		}
	}

	out = append(out, edge("╰", "╯"), f.Styles.Help.Render(f.Help))
	return strings.Join(out, "\n")
}

// tail returns the last n lines, padded with empty ones to exactly n.
func tail(lines []string, n int) []string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, n)
	copy(out, lines)
	return out
}

// fit cuts s to width display columns, marking the cut with an ellipsis.
func fit(s string, width int) string {
	if width < 2 || lipgloss.Width(s) <= width {
		return s
	}
	return truncateString(s, width-1) + "…"
}

// truncateString truncates s to at most width display columns.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
