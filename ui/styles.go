package ui

import "github.com/charmbracelet/lipgloss"

var (
	green  = lipgloss.Color("42")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")

	titleStyle    = lipgloss.NewStyle().Bold(true)
	stageStyle    = lipgloss.NewStyle().Bold(true)
	focusedStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	substageStyle = lipgloss.NewStyle().Foreground(gray)
	footerStyle   = lipgloss.NewStyle().Foreground(gray)
	errorStyle    = lipgloss.NewStyle().Foreground(red).Bold(true)
)
