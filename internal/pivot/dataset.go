// Package pivot turns sparse per-entity records into dense, totalled report
// tables. Everything in this package is pure: inputs are never mutated and no
// function returns an error, since a dashboard must always render something.
package pivot

import (
	"maps"
	"slices"
	"sort"
	"strings"
)

// Mode selects the cell shape and the aggregations applied to a report.
type Mode int

const (
	// Distribution cells are {sent, received} pairs per input package.
	Distribution Mode = iota
	// Progress cells are scalar weekly counts with a per-row running total.
	Progress
)

func (m Mode) String() string {
	switch m {
	case Progress:
		return "progress"
	default:
		return "distribution"
	}
}

func ParseMode(v string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "distribution":
		return Distribution, true
	case "progress":
		return Progress, true
	default:
		return Distribution, false
	}
}

// Entity is one reportable subject: a sector or a technician.
type Entity struct {
	ID    string
	Label string
	// Groups holds categorical attributes used by filters, e.g. sector, area.
	Groups map[string]string
	// Values is sparse: a missing key means no data for that column.
	Values map[string]any
	// Order lists Values keys in the order the source delivered them.
	Order []string
	// Measures are per-entity scalars shown beside the label (farmer counts).
	Measures map[string]any
}

func (e Entity) clone() Entity {
	out := e
	out.Groups = maps.Clone(e.Groups)
	out.Values = maps.Clone(e.Values)
	out.Order = slices.Clone(e.Order)
	out.Measures = maps.Clone(e.Measures)
	return out
}

// valueKeys returns the entity's value keys in source order. Keys missing from
// Order follow in sorted order so that the result is stable across calls.
func (e Entity) valueKeys() []string {
	keys := make([]string, 0, len(e.Values))
	seen := make(map[string]struct{}, len(e.Values))
	for _, k := range e.Order {
		if _, ok := e.Values[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	rest := make([]string, 0)
	for k := range e.Values {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Dataset is the decoded record set of one report, as supplied by retrieval.
// The zero Dataset means "no data available" and yields an empty report.
type Dataset struct {
	Entities []Entity
	// Columns is the explicit column list from the server. Nil means the
	// columns are derived from the entities' values.
	Columns []string
	// Groups and Measures name the entity attributes in display order. When
	// nil they are derived from the entities.
	Groups   []string
	Measures []string
}

// NewDataset copies its inputs so later changes by the caller cannot leak
// into reports built from the dataset.
func NewDataset(entities []Entity, columns []string) Dataset {
	ds := Dataset{Entities: make([]Entity, 0, len(entities))}
	for _, e := range entities {
		ds.Entities = append(ds.Entities, e.clone())
	}
	if columns != nil {
		ds.Columns = slices.Clone(columns)
	}
	return ds
}

func (d Dataset) Len() int {
	return len(d.Entities)
}

func (d Dataset) groupNames() []string {
	if d.Groups != nil {
		return dedupe(d.Groups)
	}
	return unionKeys(d.Entities, func(e Entity) []string { return slices.Collect(maps.Keys(e.Groups)) })
}

func (d Dataset) measureNames() []string {
	if d.Measures != nil {
		return dedupe(d.Measures)
	}
	return unionKeys(d.Entities, func(e Entity) []string { return slices.Collect(maps.Keys(e.Measures)) })
}

func unionKeys(entities []Entity, keysOf func(Entity) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, e := range entities {
		for _, k := range keysOf(e) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
