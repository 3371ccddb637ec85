package pivot

import (
	"github.com/shopspring/decimal"
)

// Row is one entity expanded across every report column.
type Row struct {
	Entity Entity
	// Cells has exactly one entry per column, in column order.
	Cells []Cell
	// Measures holds the entity measures read as numbers.
	Measures map[string]decimal.Decimal
	// Cumulative is the running sum of Count across columns (progress only).
	Cumulative []decimal.Decimal
	// Total is the sum of the row's cells across columns.
	Total Cell

	index map[string]int
}

// Cell looks a column up by key.
func (r Row) Cell(column string) (Cell, bool) {
	i, ok := r.index[column]
	if !ok || i >= len(r.Cells) {
		return Cell{}, false
	}
	return r.Cells[i], true
}

// BuildRows produces one dense row per entity. A column the entity has no
// value for, or a value that cannot be read as the mode's cell shape, yields a
// zero cell.
func BuildRows(entities []Entity, columns []string, mode Mode) []Row {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	rows := make([]Row, 0, len(entities))
	for _, e := range entities {
		cells := make([]Cell, len(columns))
		for i, c := range columns {
			raw, ok := e.Values[c]
			if !ok {
				continue
			}
			cells[i] = resolveCell(raw, mode)
		}

		measures := make(map[string]decimal.Decimal, len(e.Measures))
		for k, v := range e.Measures {
			measures[k] = Number(v)
		}

		rows = append(rows, Row{
			Entity:   e,
			Cells:    cells,
			Measures: measures,
			index:    index,
		})
	}
	return rows
}
