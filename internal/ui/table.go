package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func render(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Muted)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableRowStyle
		}).
		Render()
}

type TrackRow struct {
	Title      string
	URI        string
	DurationMs int64
}

// TrackTable numbers rows from 1 so they can be picked by index.
func TrackTable(tracks []TrackRow) string {
	if len(tracks) == 0 {
		return MutedStyle.Render("No tracks")
	}

	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		rows = append(rows, []string{strconv.Itoa(i + 1), t.Title, FormatPosition(t.DurationMs), t.URI})
	}

	return render([]string{"#", "Track", "Length", "URI"}, rows)
}

// StatusTable renders key/value pairs in the given order.
func StatusTable(pairs [][2]string) string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}

	return render([]string{"", ""}, rows)
}
