// Package ui renders client output for a terminal.
package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary = lipgloss.Color("#1DB954")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true).Padding(0, 1)
	TableRowStyle    = lipgloss.NewStyle().Padding(0, 1)
)

const (
	IconSuccess = "✔"
	IconError   = "✘"
	IconWarning = "!"
	IconInfo    = "•"
)

func PrintSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", MutedStyle.Render(IconInfo), msg)
}

// RoomBox is shown once a room is created so the id can be shared.
func RoomBox(roomId string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Success).
		Padding(0, 2)

	return box.Render(fmt.Sprintf("%s Room ready\n\nShare this id: %s", IconSuccess, BoldStyle.Foreground(Primary).Render(roomId)))
}

// FormatPosition renders milliseconds as m:ss.
func FormatPosition(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
