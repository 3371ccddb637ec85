package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"sonil/dashboard/internal/pivot"
)

// queryParams that steer the upstream fetch or the response and are never
// treated as filters.
var reservedParams = map[string]struct{}{
	"format": {},
	"limit":  {},
	"offset": {},
	"phase":  {},
	"filter": {},
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

// parseFilters turns the query string into a filter spec. Every parameter
// that is not reserved is passed on; keys that match no group are ignored
// later by the pivot.
func parseFilters(r *http.Request) pivot.FilterSpec {
	spec := pivot.FilterSpec{}
	for key, values := range r.URL.Query() {
		if _, reserved := reservedParams[key]; reserved || len(values) == 0 {
			continue
		}
		if v := strings.TrimSpace(values[0]); v != "" {
			spec[key] = v
		}
	}
	return spec
}

func parsePositive(r *http.Request, key string, max int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
