package export

import (
	"encoding/csv"
	"io"

	"sonil/dashboard/internal/pivot"
)

// WriteCSV lays r out and writes its headers, body and totals row.
func WriteCSV(w io.Writer, r pivot.Report, l Labels) error {
	return writeGridCSV(w, Layout(r, l))
}

func writeGridCSV(w io.Writer, g Grid) error {
	cw := csv.NewWriter(w)
	for _, h := range g.Headers {
		if err := cw.Write(h); err != nil {
			return err
		}
	}
	for _, row := range g.Body {
		if err := cw.Write(texts(row)); err != nil {
			return err
		}
	}
	if len(g.Footer) > 0 {
		if err := cw.Write(texts(g.Footer)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func texts(row []Value) []string {
	out := make([]string, 0, len(row))
	for _, v := range row {
		out = append(out, v.Text)
	}
	return out
}
