package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sonil/dashboard/internal/export"
	"sonil/dashboard/internal/pivot"
	"sonil/dashboard/internal/upstream"
)

type cellView struct {
	Sent     string `json:"sent,omitempty"`
	Received string `json:"received,omitempty"`
	Count    string `json:"count,omitempty"`
}

type rowView struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Groups     map[string]string `json:"groups"`
	Measures   map[string]string `json:"measures"`
	Cells      []cellView        `json:"cells"`
	Cumulative []string          `json:"cumulative,omitempty"`
	Total      cellView          `json:"total"`
}

type totalsView struct {
	Columns    []cellView        `json:"columns"`
	Grand      cellView          `json:"grand"`
	Measures   map[string]string `json:"measures"`
	Cumulative []string          `json:"cumulative,omitempty"`
}

type reportView struct {
	Title    string              `json:"title"`
	Mode     string              `json:"mode"`
	Columns  []string            `json:"columns"`
	Groups   []string            `json:"groups"`
	Measures []string            `json:"measures"`
	Rows     []rowView           `json:"rows"`
	Totals   totalsView          `json:"totals"`
	Filters  map[string][]string `json:"filters"`
	Applied  pivot.FilterSpec    `json:"applied"`
	Skipped  int                 `json:"skipped"`
}

func newReportView(r pivot.Report, skipped int) reportView {
	view := reportView{
		Title:    reportTitle(r.Mode),
		Mode:     r.Mode.String(),
		Columns:  r.Columns,
		Groups:   r.Groups,
		Measures: r.Measures,
		Rows:     make([]rowView, 0, len(r.Rows)),
		Filters:  r.Filters,
		Applied:  r.Applied,
		Skipped:  skipped,
	}

	for _, row := range r.Rows {
		cells := make([]cellView, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = formatCell(c, r.Mode)
		}
		groups := row.Entity.Groups
		if groups == nil {
			groups = map[string]string{}
		}
		view.Rows = append(view.Rows, rowView{
			ID:         row.Entity.ID,
			Label:      row.Entity.Label,
			Groups:     groups,
			Measures:   formatMeasures(row.Measures),
			Cells:      cells,
			Cumulative: formatSeries(row.Cumulative, r.Mode),
			Total:      formatCell(row.Total, r.Mode),
		})
	}

	totals := totalsView{
		Columns:    make([]cellView, len(r.Totals.Columns)),
		Grand:      formatCell(r.Totals.Grand, r.Mode),
		Measures:   formatMeasures(r.Totals.Measures),
		Cumulative: formatSeries(r.Totals.ColumnCumulative, r.Mode),
	}
	for i, c := range r.Totals.Columns {
		totals.Columns[i] = formatCell(c, r.Mode)
	}
	view.Totals = totals
	return view
}

// writeReport answers with the report in the format the query asks for.
func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, report pivot.Report, skipped int) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	labels := export.DefaultLabels(report.Mode)

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		ext         string
	)
	switch format {
	case "", "json":
		respondJSON(w, http.StatusOK, newReportView(report, skipped))
		return
	case "csv":
		err = export.WriteCSV(&buf, report, labels)
		contentType, ext = "text/csv; charset=utf-8", "csv"
	case "xlsx":
		err = export.WriteXLSX(&buf, report, labels)
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
	default:
		respondError(w, http.StatusBadRequest, "format must be json, csv or xlsx")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("format", format).Msg("export report")
		respondError(w, http.StatusInternalServerError, "failed to export report")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName(report.Mode, ext, time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// upstreamFailed maps an upstream error to a response. A rejected token means
// the upstream session is gone, so the local one is dropped too.
func (s *Server) upstreamFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())
	if errors.Is(err, upstream.ErrUnauthorized) {
		if sess, ok := sessionFrom(r.Context()); ok {
			if derr := s.sessions.Delete(r.Context(), sess.ID); derr != nil {
				logger.Warn().Err(derr).Msg("drop rejected session")
			}
		}
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	logger.Error().Err(err).Msg("upstream request")
	respondError(w, http.StatusBadGateway, "upstream service unavailable")
}
