package upstream

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"sonil/dashboard/internal/pivot"
)

const (
	GroupSector    = "sector"
	GroupArea      = "area"
	MeasureFarmers = "farmers"
)

// ValidationError describes a record that could not be mapped to an entity.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("record %d: %s: %s", e.Index, e.Field, e.Reason)
}

// DecodeResult is the outcome of mapping one record: either an Entity or Err.
type DecodeResult struct {
	Entity pivot.Entity
	Err    *ValidationError
}

type DistributionResult struct {
	Dataset pivot.Dataset
	Invalid []ValidationError
}

type ProgressResult struct {
	Dataset pivot.Dataset
	Invalid []ValidationError
}

// Record arrays stay untyped so a single malformed element becomes a
// ValidationError instead of failing the whole response.
type distributionPayload struct {
	Sectors       []any `json:"sectors"`
	InputsColumns []any `json:"inputsColumns"`
}

type progressPayload struct {
	WeeksList   []any `json:"weeksList"`
	Technicians []any `json:"technicians"`
}

func notAnObject(i int) DecodeResult {
	return DecodeResult{Err: &ValidationError{Index: i, Field: "record", Reason: "record is not an object"}}
}

func decodeDistribution(p *distributionPayload) DistributionResult {
	if p == nil {
		return DistributionResult{}
	}

	results := make([]DecodeResult, 0, len(p.Sectors))
	for i, raw := range p.Sectors {
		results = append(results, decodeSector(i, raw))
	}

	entities, invalid := collect(results)
	ds := pivot.NewDataset(entities, stringList(p.InputsColumns))
	ds.Groups = []string{GroupSector, GroupArea}
	ds.Measures = []string{MeasureFarmers}
	return DistributionResult{Dataset: ds, Invalid: invalid}
}

func decodeSector(i int, record any) DecodeResult {
	raw, ok := record.(map[string]any)
	if !ok {
		return notAnObject(i)
	}
	name := stringField(raw, "name")
	if name == "" {
		return DecodeResult{Err: &ValidationError{Index: i, Field: "name", Reason: "sector has no name"}}
	}

	e := pivot.Entity{
		ID:       firstNonEmpty(stringField(raw, "id"), name),
		Label:    name,
		Groups:   map[string]string{GroupSector: name},
		Values:   make(map[string]any),
		Measures: map[string]any{MeasureFarmers: raw["totalFarmers"]},
	}
	if area := firstNonEmpty(stringField(raw, "area_name"), stringField(raw, "area")); area != "" {
		e.Groups[GroupArea] = area
	}

	packages, _ := raw["packages"].([]any)
	for _, item := range packages {
		pkg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key := stringField(pkg, "name")
		if key == "" {
			continue
		}
		if _, dup := e.Values[key]; dup {
			continue
		}
		e.Values[key] = map[string]any{"sent": pkg["sent"], "received": pkg["received"]}
		e.Order = append(e.Order, key)
	}
	return DecodeResult{Entity: e}
}

func decodeProgress(p *progressPayload) ProgressResult {
	if p == nil {
		return ProgressResult{}
	}

	weeks := stringList(p.WeeksList)
	results := make([]DecodeResult, 0, len(p.Technicians))
	for i, raw := range p.Technicians {
		results = append(results, decodeTechnician(i, raw, weeks))
	}

	entities, invalid := collect(results)
	ds := pivot.NewDataset(entities, weeks)
	ds.Groups = []string{GroupSector, GroupArea}
	return ProgressResult{Dataset: ds, Invalid: invalid}
}

// decodeTechnician keys weekly counts by week_start. Entries without one, or
// whose week_start is not a week of weeksList, take the week identifier at the
// same position of weeksList.
func decodeTechnician(i int, record any, weeks []string) DecodeResult {
	raw, ok := record.(map[string]any)
	if !ok {
		return notAnObject(i)
	}
	id := stringField(raw, "technician_id")
	if id == "" {
		return DecodeResult{Err: &ValidationError{Index: i, Field: "technician_id", Reason: "technician has no id"}}
	}

	e := pivot.Entity{
		ID:     id,
		Label:  firstNonEmpty(stringField(raw, "technician_name"), id),
		Groups: make(map[string]string),
		Values: make(map[string]any),
	}
	if sector := stringField(raw, "sector"); sector != "" {
		e.Groups[GroupSector] = sector
	}
	if area := stringField(raw, "area_name"); area != "" {
		e.Groups[GroupArea] = area
	}

	entries, _ := raw["weeks"].([]any)
	for pos, item := range entries {
		week, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key := stringField(week, "week_start")
		if !slices.Contains(weeks, key) && pos < len(weeks) {
			key = weeks[pos]
		}
		if key == "" {
			continue
		}
		if _, dup := e.Values[key]; dup {
			continue
		}
		e.Values[key] = week["total_records"]
		e.Order = append(e.Order, key)
	}
	return DecodeResult{Entity: e}
}

func collect(results []DecodeResult) ([]pivot.Entity, []ValidationError) {
	entities := make([]pivot.Entity, 0, len(results))
	var invalid []ValidationError
	for _, r := range results {
		if r.Err != nil {
			invalid = append(invalid, *r.Err)
			continue
		}
		entities = append(entities, r.Entity)
	}
	return entities, invalid
}

// stringList keeps nil as nil so an absent column list stays distinguishable
// from an empty one.
func stringList(raw []any) []string {
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s := scalarString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	return scalarString(m[key])
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return fmt.Sprint(x)
	default:
		return ""
	}
}
