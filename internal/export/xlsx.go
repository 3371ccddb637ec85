package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sonil/dashboard/internal/pivot"
)

const sheetName = "Relatório"

// WriteXLSX lays r out as a single-sheet workbook. Numbers are stored as
// numeric cells.
func WriteXLSX(w io.Writer, r pivot.Report, l Labels) error {
	f, err := buildWorkbook(Layout(r, l))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func buildWorkbook(g Grid) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fillSheet(f, g); err != nil {
		f.Close()
		return nil, fmt.Errorf("build workbook: %w", err)
	}
	return f, nil
}

func fillSheet(f *excelize.File, g Grid) error {
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	footerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		NumFmt: 4,
	})
	if err != nil {
		return err
	}

	row := 1
	for _, h := range g.Headers {
		values := make([]any, 0, len(h))
		for _, v := range h {
			values = append(values, v)
		}
		if err := setRow(f, row, values); err != nil {
			return err
		}
		row++
	}
	if len(g.Headers) > 0 {
		if err := f.SetRowStyle(sheetName, 1, len(g.Headers), headerStyle); err != nil {
			return err
		}
	}
	for _, s := range g.Spans {
		start, err := excelize.CoordinatesToCellName(s.Col+1, s.Row+1)
		if err != nil {
			return err
		}
		end, err := excelize.CoordinatesToCellName(s.Col+s.Width, s.Row+1)
		if err != nil {
			return err
		}
		if err := f.MergeCell(sheetName, start, end); err != nil {
			return err
		}
	}

	for _, body := range g.Body {
		if err := setRow(f, row, cellValues(body)); err != nil {
			return err
		}
		row++
	}
	if len(g.Footer) > 0 {
		if err := setRow(f, row, cellValues(g.Footer)); err != nil {
			return err
		}
		if err := f.SetRowStyle(sheetName, row, row, footerStyle); err != nil {
			return err
		}
	}

	return setColumnWidths(f, g.Width())
}

// setColumnWidths widens the label column and gives value columns a fixed
// width.
func setColumnWidths(f *excelize.File, width int) error {
	if width == 0 {
		return nil
	}
	if err := f.SetColWidth(sheetName, "A", "A", 28); err != nil {
		return err
	}
	if width == 1 {
		return nil
	}
	last, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheetName, "B", last, 14)
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &values)
}

func cellValues(row []Value) []any {
	out := make([]any, 0, len(row))
	for _, v := range row {
		if v.IsNum {
			out = append(out, v.Number.InexactFloat64())
			continue
		}
		out = append(out, v.Text)
	}
	return out
}
