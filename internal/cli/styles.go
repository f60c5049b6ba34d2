package cli

import (
	"github.com/charmbracelet/lipgloss"

	"pagewright/internal/conversation"
)

var (
	humanStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	requirementsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	builderStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	reviewerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// speakerLabel renders a colored label for a transcript speaker.
func speakerLabel(s conversation.Speaker) string {
	switch s {
	case conversation.SpeakerHuman:
		return humanStyle.Render("human")
	case conversation.RoleRequirements:
		return requirementsStyle.Render("requirements")
	case conversation.RoleBuilder:
		return builderStyle.Render("builder")
	case conversation.RoleReviewer:
		return reviewerStyle.Render("reviewer")
	}
	return string(s)
}
