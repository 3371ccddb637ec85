package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sonil/dashboard/internal/pivot"
	"sonil/dashboard/internal/upstream"
)

const upstreamTimeout = 20 * time.Second

func distributionQuery(r *http.Request) upstream.DistributionQuery {
	return upstream.DistributionQuery{
		Offset: parsePositive(r, "offset", 0),
		Limit:  parsePositive(r, "limit", 500),
		Filter: strings.TrimSpace(r.URL.Query().Get("filter")),
		Phase:  strings.TrimSpace(r.URL.Query().Get("phase")),
	}
}

func progressQuery(r *http.Request) upstream.ProgressQuery {
	return upstream.ProgressQuery{Limit: parsePositive(r, "limit", 52)}
}

// builtReport is a report together with the number of upstream records that
// failed validation.
type builtReport struct {
	report  pivot.Report
	skipped int
}

func (s *Server) fetchReport(ctx context.Context, r *http.Request, token string, mode pivot.Mode, spec pivot.FilterSpec) (builtReport, error) {
	var (
		ds      pivot.Dataset
		skipped int
	)
	if mode == pivot.Progress {
		res, err := s.upstream.FetchProgress(ctx, token, progressQuery(r))
		if err != nil {
			return builtReport{}, err
		}
		ds, skipped = res.Dataset, len(res.Invalid)
	} else {
		res, err := s.upstream.FetchDistribution(ctx, token, distributionQuery(r))
		if err != nil {
			return builtReport{}, err
		}
		ds, skipped = res.Dataset, len(res.Invalid)
	}

	zerolog.Ctx(ctx).Debug().
		Str("mode", mode.String()).
		Int("entities", ds.Len()).
		Int("skipped", skipped).
		Msg("report fetched")
	return builtReport{report: pivot.BuildReport(ds, spec, mode), skipped: skipped}, nil
}

// handleReport serves /api/reports/{mode}.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid auth context")
		return
	}
	mode, ok := pivot.ParseMode(r.PathValue("mode"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown report")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	built, err := s.fetchReport(ctx, r, sess.Token, mode, parseFilters(r))
	if err != nil {
		s.upstreamFailed(w, r, err)
		return
	}
	s.writeReport(w, r, built.report, built.skipped)
}

// handleDashboard fetches both reports at once and returns their JSON views
// filtered by the same query.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid auth context")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	spec := parseFilters(r)
	var dist, prog builtReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dist, err = s.fetchReport(gctx, r, sess.Token, pivot.Distribution, spec)
		return err
	})
	g.Go(func() error {
		var err error
		prog, err = s.fetchReport(gctx, r, sess.Token, pivot.Progress, spec)
		return err
	})
	if err := g.Wait(); err != nil {
		s.upstreamFailed(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]reportView{
		"distribution": newReportView(dist.report, dist.skipped),
		"progress":     newReportView(prog.report, prog.skipped),
	})
}
