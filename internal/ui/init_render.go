package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"
	"github.com/charmbracelet/lipgloss/table"
)

// InitResult aggregates everything the init command set up.
type InitResult struct {
	Root         string
	DBPath       string
	ConfigPath   string
	WorkflowPath string
	TemplatesDir string
	RecordTypes  []string

	CreatedDirs    []string
	GitInitialized bool
	Reinitialized  bool

	Warnings           []string
	QuickstartCommands []string
}

// RenderInitReport generates the styled report for the init command.
func RenderInitReport(res InitResult, width int) string {
	var sections []string

	headline := "✓ Civic repository initialized"
	if res.Reinitialized {
		headline = "✓ Civic repository refreshed"
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPass).
		Render(headline)
	sections = append(sections, header, "")

	l := list.New().
		Enumerator(func(_ list.Items, i int) string {
			return RenderPass("✓")
		}).
		EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))

	dirList := list.New().Enumerator(func(_ list.Items, i int) string {
		return RenderPass("✓")
	}).EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))
	for _, d := range res.CreatedDirs {
		dirList.Item(d)
	}
	l.Item("Data directories")
	l.Item(dirList)

	if res.GitInitialized {
		l.Item("Git repository initialized")
	} else {
		l.Item("Git repository reused")
	}

	sections = append(sections, l.String(), "")

	detailsRows := [][]string{
		{"Database", res.DBPath},
		{"Configuration", res.ConfigPath},
		{"Workflows", res.WorkflowPath},
		{"Templates", res.TemplatesDir},
		{"Record types", strings.Join(res.RecordTypes, ", ")},
	}

	summaryTable := table.New().
		Headers("Component", "Location").
		Rows(detailsRows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 {
					return TableHeaderStyle.Width(20)
				}
				return TableHeaderStyle.Width(width - 20 - 3)
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Bold(true).Foreground(ColorAccent)
			}
			return style
		})

	sections = append(sections, summaryTable.String(), "")

	if len(res.Warnings) > 0 {
		warnBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarn).
			Padding(0, 1).
			Width(width - 2)

		var warnContent []string
		warnContent = append(warnContent, lipgloss.NewStyle().Bold(true).Foreground(ColorWarn).Render("⚠ Warnings:"))
		for _, w := range res.Warnings {
			warnContent = append(warnContent, "  • "+w)
		}

		sections = append(sections, warnBox.Render(strings.Join(warnContent, "\n")), "")
	}

	if len(res.QuickstartCommands) > 0 {
		sections = append(sections, lipgloss.NewStyle().Bold(true).Render("Next Steps:"))
		for _, cmd := range res.QuickstartCommands {
			sections = append(sections, "  • "+lipgloss.NewStyle().Foreground(ColorAccent).Render(cmd))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
