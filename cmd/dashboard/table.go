package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"sonil/dashboard/internal/export"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// flatHeaders folds stacked header rows into one line per column. A spanned
// cell repeats over every column it covers.
func flatHeaders(g export.Grid) []string {
	width := g.Width()
	if width == 0 {
		return nil
	}
	rows := make([][]string, len(g.Headers))
	for i, h := range g.Headers {
		rows[i] = append([]string(nil), h...)
	}
	for _, s := range g.Spans {
		for c := s.Col + 1; c < s.Col+s.Width && c < width; c++ {
			rows[s.Row][c] = rows[s.Row][s.Col]
		}
	}

	out := make([]string, width)
	for c := range out {
		parts := make([]string, 0, len(rows))
		for _, r := range rows {
			if c < len(r) && r[c] != "" {
				parts = append(parts, r[c])
			}
		}
		out[c] = strings.Join(parts, " ")
	}
	return out
}

func cellTexts(values []export.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Text
	}
	return out
}

func renderTable(g export.Grid) string {
	rows := make([][]string, 0, len(g.Body)+1)
	numeric := make(map[int]bool)
	for _, body := range g.Body {
		rows = append(rows, cellTexts(body))
		for i, v := range body {
			if v.IsNum {
				numeric[i] = true
			}
		}
	}
	footer := len(rows)
	if len(g.Footer) > 0 {
		rows = append(rows, cellTexts(g.Footer))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(flatHeaders(g)...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			style := cellStyle
			if numeric[col] {
				style = numberStyle
			}
			// Body rows are numbered from HeaderRow+1.
			if row == footer+1+table.HeaderRow {
				style = style.Bold(true)
			}
			return style
		})

	return titleStyle.Render(g.Title) + "\n" + t.String()
}
