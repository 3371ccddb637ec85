package pivot

import (
	"strings"
)

// SearchFilter is the free-text filter matched against entity labels.
const SearchFilter = "search"

// FilterSpec maps filter names to values. An empty value means no constraint.
type FilterSpec map[string]string

// Effective returns the constraints that apply to entities: non-empty values
// whose key is the search filter or a group carried by at least one entity.
func (f FilterSpec) Effective(entities []Entity) FilterSpec {
	known := make(map[string]struct{})
	for _, e := range entities {
		for g := range e.Groups {
			known[g] = struct{}{}
		}
	}

	out := make(FilterSpec)
	for k, v := range f {
		if v == "" {
			continue
		}
		if _, ok := known[k]; ok || k == SearchFilter {
			out[k] = v
		}
	}
	return out
}

// ApplyFilters returns the entities matching every non-empty constraint, in
// their original order. Search is a case-insensitive substring match on the
// label; every other key is an exact match on the group of the same name.
// Keys that no entity carries as a group are ignored.
func ApplyFilters(entities []Entity, spec FilterSpec) []Entity {
	groups := spec.Effective(entities)
	search := strings.ToLower(groups[SearchFilter])
	delete(groups, SearchFilter)

	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if search != "" && !strings.Contains(strings.ToLower(e.Label), search) {
			continue
		}
		if !matchesGroups(e, groups) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesGroups(e Entity, groups map[string]string) bool {
	for k, want := range groups {
		if e.Groups[k] != want {
			return false
		}
	}
	return true
}

// FilterOptions lists the distinct non-empty values of each group, in the
// order they first appear among the entities.
func FilterOptions(entities []Entity, groups []string) map[string][]string {
	out := make(map[string][]string, len(groups))
	for _, g := range groups {
		seen := make(map[string]struct{})
		values := make([]string, 0)
		for _, e := range entities {
			v := e.Groups[g]
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		out[g] = values
	}
	return out
}
