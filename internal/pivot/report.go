package pivot

import (
	"github.com/shopspring/decimal"
)

// Report is the pivoted, totalled table handed to presentation.
type Report struct {
	Mode     Mode
	Columns  []string
	Groups   []string
	Measures []string
	Rows     []Row
	Totals   Totals
	// Filters lists the selectable values of each group over the whole
	// dataset, not just the visible rows.
	Filters map[string][]string
	// Applied echoes the non-empty constraints the rows were filtered by.
	Applied FilterSpec
}

// BuildReport derives the columns, filters the entities, pivots the survivors
// and aggregates them. It holds no state: the same arguments always give a
// structurally equal report.
func BuildReport(ds Dataset, spec FilterSpec, mode Mode) Report {
	columns := DeriveColumns(ds)
	groups := ds.groupNames()
	measures := ds.measureNames()

	visible := ApplyFilters(ds.Entities, spec)
	rows := BuildRows(visible, columns, mode)
	totals := Aggregate(rows, columns, mode)

	for i := range rows {
		rows[i].Total = totals.Rows[i]
		if totals.Cumulative != nil {
			rows[i].Cumulative = totals.Cumulative[i]
		}
	}
	for _, m := range measures {
		if _, ok := totals.Measures[m]; !ok {
			totals.Measures[m] = decimal.Zero
		}
	}

	return Report{
		Mode:     mode,
		Columns:  columns,
		Groups:   groups,
		Measures: measures,
		Rows:     rows,
		Totals:   totals,
		Filters:  FilterOptions(ds.Entities, groups),
		Applied:  spec.Effective(ds.Entities),
	}
}

// ColumnTotal returns the total of one column.
func (r Report) ColumnTotal(column string) (Cell, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Totals.Columns) {
			return r.Totals.Columns[i], true
		}
	}
	return Cell{}, false
}

func (r Report) Empty() bool {
	return len(r.Rows) == 0
}
