package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RecordRow is one line of a listing or search view.
type RecordRow struct {
	ID      string
	Title   string
	Type    string
	Status  string
	Updated string
}

// StatusStyle returns the cell style for a workflow status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "active", "published":
		return TableSuccessStyle
	case "proposed", "reviewed":
		return TableWarningStyle
	case "approved":
		return lipgloss.NewStyle().Foreground(ColorAccent)
	case "archived":
		return TableHintStyle
	default:
		return lipgloss.NewStyle()
	}
}

// RenderRecordsTable renders record rows into the house table. Status
// cells are colored by state; titles are truncated to fit.
func RenderRecordsTable(rows []RecordRow, width int) string {
	maxTitleWidth := width - 52
	if maxTitleWidth < 10 {
		maxTitleWidth = 10
	}

	cells := [][]string{}
	for _, r := range rows {
		title := r.Title
		if len(title) > maxTitleWidth {
			title = title[:maxTitleWidth-3] + "..."
		}
		cells = append(cells, []string{r.ID, title, r.Type, r.Status, r.Updated})
	}

	return NewListTable(width).
		Headers("ID", "Title", "Type", "Status", "Updated").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 3 && row >= 0 && row < len(rows) {
				style = style.Inherit(StatusStyle(rows[row].Status))
			}
			return style
		}).
		String()
}

// RenderSearchResults renders the search header and the matching records.
func RenderSearchResults(query string, rows []RecordRow, width int) string {
	var sections []string

	header := fmt.Sprintf("🔍 Search: %q", query)
	sections = append(sections, TableHeaderStyle.Render(header))
	sections = append(sections, "")

	sections = append(sections, TableSuccessStyle.Render(fmt.Sprintf("  Found %d records", len(rows))))
	sections = append(sections, "")
	sections = append(sections, RenderRecordsTable(rows, width))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// RenderNoResults renders the empty search view, with a did-you-mean
// hint when the caller computed one.
func RenderNoResults(query, suggestion string, width int) string {
	var sections []string

	header := fmt.Sprintf("🔍 Search: %q", query)
	sections = append(sections, TableHeaderStyle.Render(header))
	sections = append(sections, "")
	sections = append(sections, TableWarningStyle.Render("  ⚠️  No records found."))

	if suggestion != "" {
		sections = append(sections, TableHintStyle.Render(fmt.Sprintf("  Did you mean: %s", suggestion)))
	} else {
		sections = append(sections, TableHintStyle.Render("  Consider broadening your search."))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
