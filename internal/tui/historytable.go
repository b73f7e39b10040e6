package tui

import (
	"github.com/SpatiumPortae/lanbeam/internal/history"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	dateColumnWidth      = 16
	directionColumnWidth = 9
	sizeColumnWidth      = 10
	statusColumnWidth    = 10
)

var historyTableStyle = baseStyle.Copy().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color(SECONDARY_COLOR)).
	MarginLeft(PADDING)

// HistoryTable renders recorded transfers as a static table.
func HistoryTable(entries []history.Entry, width int) string {
	if len(entries) == 0 {
		return PadText + InfoStyle("No transfers recorded yet.") + "\n"
	}
	if width <= 0 || width > MAX_WIDTH {
		width = MAX_WIDTH
	}
	nameWidth := width - 2*PADDING - dateColumnWidth - directionColumnWidth - sizeColumnWidth - statusColumnWidth - 12
	if nameWidth < 10 {
		nameWidth = 10
	}

	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		// truncate overflowing names from the left, the extension is the informative part
		if w := runewidth.StringWidth(name); w > nameWidth {
			name = runewidth.TruncateLeft(name, w-nameWidth+1, "…")
		}
		rows = append(rows, table.Row{
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.Direction,
			name,
			ByteCountSI(e.Size),
			e.Status,
		})
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Date", Width: dateColumnWidth},
			{Title: "Direction", Width: directionColumnWidth},
			{Title: "File", Width: nameWidth},
			{Title: "Size", Width: sizeColumnWidth},
			{Title: "Status", Width: statusColumnWidth},
		}),
		table.WithRows(rows),
		table.WithHeight(len(rows)),
		table.WithFocused(false),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(SECONDARY_COLOR)).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.UnsetBackground().UnsetForeground().Bold(false)
	t.SetStyles(s)
	return historyTableStyle.Render(t.View()) + "\n"
}
