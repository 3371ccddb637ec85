package pivot

// DeriveColumns returns the ordered, de-duplicated column keys of a report.
//
// An explicit server list is used as given (it keeps the server's order and
// columns nobody has data for yet); otherwise keys are collected by scanning
// entities in order, first seen first. Keys compare case-sensitively and are
// never sorted.
func DeriveColumns(ds Dataset) []string {
	if ds.Columns != nil {
		return dedupe(ds.Columns)
	}

	seen := make(map[string]struct{})
	columns := make([]string, 0)
	for _, e := range ds.Entities {
		for _, k := range e.valueKeys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			columns = append(columns, k)
		}
	}
	return columns
}
