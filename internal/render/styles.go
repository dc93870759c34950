package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"unichat/internal/types"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	userLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	botLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114"))
	systemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	activeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("70")).Bold(true)
	metaStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Faint(true)
	incompleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("136")).Bold(true)
)

func RoleLabel(role types.Role) string {
	switch role {
	case types.RoleUser:
		return userLabelStyle.Render("You")
	case types.RoleBot:
		return botLabelStyle.Render("Assistant")
	default:
		return systemStyle.Render("System")
	}
}

// IncompleteMark flags a reply that stopped before the backend finished.
func IncompleteMark() string {
	return incompleteStyle.Render("(incomplete)")
}

func Header(text string) string {
	return headerStyle.Render(text)
}

func Notice(text string) string {
	return noticeStyle.Render(" " + text + " ")
}

// Truncate shortens s to at most width terminal cells, ending in an
// ellipsis when anything was cut.
func Truncate(s string, width int) string {
	s = strings.TrimSpace(s)
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return runewidth.Truncate(s, width, "…")
}
