package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	Accent = lipgloss.Color("#22d3ee")
	Peer   = lipgloss.Color("#A78BFA")
	Good   = lipgloss.Color("#10B981")
	Warn   = lipgloss.Color("#F59E0B")
	Bad    = lipgloss.Color("#EF4444")
	Dim    = lipgloss.Color("#6B7280")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Good).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Bad).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warn)
	MutedStyle   = lipgloss.NewStyle().Foreground(Dim)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	PeerStyle    = lipgloss.NewStyle().Foreground(Peer).Bold(true)
	SelfStyle    = lipgloss.NewStyle().Foreground(Accent).Bold(true)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Accent)

	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent).Align(lipgloss.Center)
	TableRowStyle    = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("255"))
	TableRowAltStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Accent).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 2).
			MarginBottom(1)

	FooterStyle = lipgloss.NewStyle().Foreground(Dim).MarginTop(1)

	RoomBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Good).
			Padding(1, 2)
)

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconRoom    = "🚪"
	IconPeer    = "👤"
	IconCall    = "📞"
	IconConnect = "🔌"
	IconChat    = "💬"
)

// Status lines go to stderr; stdout carries chat and tables.
var statusOut io.Writer = os.Stderr

func status(icon string, iconStyle lipgloss.Style, msg string) {
	fmt.Fprintf(statusOut, "%s %s\n", iconStyle.Render(icon), msg)
}

func PrintError(msg string) {
	status(IconError, ErrorStyle, ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	status(IconWarning, WarningStyle, WarningStyle.Render(msg))
}

func PrintWarningf(format string, args ...any) {
	PrintWarning(fmt.Sprintf(format, args...))
}

func PrintSuccess(msg string) {
	status(IconSuccess, SuccessStyle, msg)
}

func PrintInfof(format string, args ...any) {
	status(IconInfo, lipgloss.NewStyle(), fmt.Sprintf(format, args...))
}

func FormatError(err error) string {
	return ErrorStyle.Render(IconError + " " + err.Error())
}

// ChatLine formats one chat message. Own lines use the accent color.
func ChatLine(from, text string, self bool) string {
	style := PeerStyle
	if self {
		style = SelfStyle
	}
	return fmt.Sprintf("%s %s %s", IconChat, style.Render(from+":"), text)
}
