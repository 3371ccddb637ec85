package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sonil/dashboard/internal/export"
	"sonil/dashboard/internal/pivot"
)

// formatAmount renders distribution quantities with two decimals and
// progress counts as whole numbers.
func formatAmount(d decimal.Decimal, mode pivot.Mode) string {
	if mode == pivot.Progress {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}

func formatCell(c pivot.Cell, mode pivot.Mode) cellView {
	if mode == pivot.Progress {
		return cellView{Count: formatAmount(c.Count, mode)}
	}
	return cellView{Sent: formatAmount(c.Sent, mode), Received: formatAmount(c.Received, mode)}
}

func formatSeries(series []decimal.Decimal, mode pivot.Mode) []string {
	if series == nil {
		return nil
	}
	out := make([]string, len(series))
	for i, d := range series {
		out[i] = formatAmount(d, mode)
	}
	return out
}

func formatMeasures(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func reportTitle(mode pivot.Mode) string {
	return export.DefaultLabels(mode).Title
}

// downloadName names an exported file after the report and the day it was
// produced, e.g. distribuicao-2024-03-04.xlsx.
func downloadName(mode pivot.Mode, ext string, at time.Time) string {
	base := "distribuicao"
	if mode == pivot.Progress {
		base = "progresso"
	}
	return fmt.Sprintf("%s-%s.%s", base, at.Format("2006-01-02"), ext)
}
