package pivot

import (
	"github.com/shopspring/decimal"
)

// Totals holds every aggregate of a report, computed over the visible rows
// only.
type Totals struct {
	// Columns has one summed cell per column, in column order.
	Columns []Cell
	// Grand sums every column total; Sent and Received stay separate.
	Grand Cell
	// Measures sums each entity measure over the visible rows.
	Measures map[string]decimal.Decimal
	// Rows has each row's sum across columns, in row order.
	Rows []Cell
	// Cumulative has, per row, the running sum of Count across columns. It
	// restarts at zero for every row. Nil outside progress mode.
	Cumulative [][]decimal.Decimal
	// ColumnCumulative is the running sum of the column totals' Count, the
	// footer's cumulative series. Nil outside progress mode.
	ColumnCumulative []decimal.Decimal
}

// Aggregate computes column, row and grand totals over rows. In progress mode
// it also computes each row's cumulative series over the columns, which are
// expected in chronological order.
func Aggregate(rows []Row, columns []string, mode Mode) Totals {
	t := Totals{
		Columns:  make([]Cell, len(columns)),
		Measures: make(map[string]decimal.Decimal),
		Rows:     make([]Cell, len(rows)),
	}
	if mode == Progress {
		t.Cumulative = make([][]decimal.Decimal, len(rows))
	}

	for r, row := range rows {
		var rowTotal Cell
		var running decimal.Decimal
		var series []decimal.Decimal
		if mode == Progress {
			series = make([]decimal.Decimal, len(columns))
		}

		for i := range columns {
			var c Cell
			if i < len(row.Cells) {
				c = row.Cells[i]
			}
			t.Columns[i] = t.Columns[i].Add(c)
			rowTotal = rowTotal.Add(c)
			if mode == Progress {
				running = running.Add(c.Count)
				series[i] = running
			}
		}

		t.Rows[r] = rowTotal
		if mode == Progress {
			t.Cumulative[r] = series
		}
		for k, v := range row.Measures {
			t.Measures[k] = t.Measures[k].Add(v)
		}
	}

	for _, c := range t.Columns {
		t.Grand = t.Grand.Add(c)
	}
	if mode == Progress {
		t.ColumnCumulative = make([]decimal.Decimal, len(t.Columns))
		var running decimal.Decimal
		for i, c := range t.Columns {
			running = running.Add(c.Count)
			t.ColumnCumulative[i] = running
		}
	}
	return t
}
