// Package export lays a pivot report out as a flat table and writes it as
// CSV or XLSX.
package export

import (
	"fmt"

	"github.com/shopspring/decimal"

	"sonil/dashboard/internal/pivot"
)

// Labels are the display strings of a report table.
type Labels struct {
	Title    string
	Entity   string
	Groups   map[string]string
	Measures map[string]string
	// Lead lists the groups printed before the entity label.
	Lead       []string
	Sent       string
	Received   string
	Cumulative string
	// Week formats a progress column header from its 1-based position.
	Week   string
	Totals string
}

func DefaultLabels(mode pivot.Mode) Labels {
	if mode == pivot.Progress {
		return Labels{
			Title:      "Análises - Progresso",
			Entity:     "Técnico",
			Groups:     map[string]string{"sector": "Sector", "area": "Área"},
			Lead:       []string{"sector", "area"},
			Cumulative: "acumulado",
			Week:       "Semana %d",
			Totals:     "Totais",
		}
	}
	return Labels{
		Title:    "Distribuição de Viveiros",
		Entity:   "Sector",
		Groups:   map[string]string{"sector": "Sector", "area": "Área"},
		Measures: map[string]string{"farmers": "Produtores"},
		Sent:     "Distribuídos",
		Received: "Recebidos",
		Totals:   "Totais",
	}
}

func (l Labels) group(key string) string {
	if v, ok := l.Groups[key]; ok {
		return v
	}
	return key
}

func (l Labels) measure(key string) string {
	if v, ok := l.Measures[key]; ok {
		return v
	}
	return key
}

// Value is one table cell: text, or a number with its display form.
type Value struct {
	Text   string
	Number decimal.Decimal
	IsNum  bool
}

func text(s string) Value {
	return Value{Text: s}
}

func number(d decimal.Decimal, places int32) Value {
	if places < 0 {
		return Value{Text: d.String(), Number: d, IsNum: true}
	}
	return Value{Text: d.StringFixed(places), Number: d, IsNum: true}
}

// Span marks a header cell that covers Width columns starting at Col.
type Span struct {
	Row, Col, Width int
}

// Grid is a report flattened into header rows, body rows and a totals row.
// Every row has the same width.
type Grid struct {
	Title   string
	Headers [][]string
	Spans   []Span
	Body    [][]Value
	Footer  []Value
}

func (g Grid) Width() int {
	if len(g.Headers) == 0 {
		return 0
	}
	return len(g.Headers[0])
}

// Layout flattens r. Distribution tables get two header rows, one naming the
// input package over its sent/received pair; progress tables show each week as
// a value and a cumulative column.
func Layout(r pivot.Report, l Labels) Grid {
	if r.Mode == pivot.Progress {
		return layoutProgress(r, l)
	}
	return layoutDistribution(r, l)
}

func layoutDistribution(r pivot.Report, l Labels) Grid {
	lead := len(l.Lead) + 1 + len(r.Measures)
	top := make([]string, 0, lead+2*len(r.Columns))
	sub := make([]string, 0, cap(top))
	for _, g := range l.Lead {
		top = append(top, l.group(g))
	}
	top = append(top, l.Entity)
	for _, m := range r.Measures {
		top = append(top, l.measure(m))
	}
	for range lead {
		sub = append(sub, "")
	}

	g := Grid{Title: l.Title}
	for i, c := range r.Columns {
		top = append(top, c, "")
		sub = append(sub, l.Sent, l.Received)
		g.Spans = append(g.Spans, Span{Row: 0, Col: lead + 2*i, Width: 2})
	}
	g.Headers = [][]string{top, sub}

	for _, row := range r.Rows {
		out := leadValues(row, l, r.Measures)
		for _, c := range row.Cells {
			out = append(out, number(c.Sent, -1), number(c.Received, -1))
		}
		g.Body = append(g.Body, out)
	}

	footer := footerLead(r, l)
	for _, c := range r.Totals.Columns {
		footer = append(footer, number(c.Sent, 2), number(c.Received, 2))
	}
	g.Footer = footer
	return g
}

func layoutProgress(r pivot.Report, l Labels) Grid {
	header := make([]string, 0, len(l.Lead)+1+len(r.Measures)+2*len(r.Columns))
	for _, g := range l.Lead {
		header = append(header, l.group(g))
	}
	header = append(header, l.Entity)
	for _, m := range r.Measures {
		header = append(header, l.measure(m))
	}
	for i := range r.Columns {
		week := fmt.Sprintf(l.Week, i+1)
		header = append(header, week, week+" "+l.Cumulative)
	}

	g := Grid{Title: l.Title, Headers: [][]string{header}}
	for _, row := range r.Rows {
		out := leadValues(row, l, r.Measures)
		for i, c := range row.Cells {
			var running decimal.Decimal
			if i < len(row.Cumulative) {
				running = row.Cumulative[i]
			}
			out = append(out, number(c.Count, -1), number(running, -1))
		}
		g.Body = append(g.Body, out)
	}

	footer := footerLead(r, l)
	for i, c := range r.Totals.Columns {
		var running decimal.Decimal
		if i < len(r.Totals.ColumnCumulative) {
			running = r.Totals.ColumnCumulative[i]
		}
		footer = append(footer, number(c.Count, -1), number(running, -1))
	}
	g.Footer = footer
	return g
}

func leadValues(row pivot.Row, l Labels, measures []string) []Value {
	out := make([]Value, 0, len(l.Lead)+1+len(measures))
	for _, g := range l.Lead {
		v := row.Entity.Groups[g]
		if v == "" {
			v = "-"
		}
		out = append(out, text(v))
	}
	out = append(out, text(row.Entity.Label))
	for _, m := range measures {
		out = append(out, number(row.Measures[m], -1))
	}
	return out
}

func footerLead(r pivot.Report, l Labels) []Value {
	out := make([]Value, 0, len(l.Lead)+1+len(r.Measures))
	out = append(out, text(l.Totals))
	for range l.Lead {
		out = append(out, text(""))
	}
	for _, m := range r.Measures {
		out = append(out, number(r.Totals.Measures[m], -1))
	}
	return out
}
