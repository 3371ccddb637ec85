// Package api serves the dashboard over HTTP: login against the upstream
// service, then pivoted reports as JSON, CSV or XLSX.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sonil/dashboard/internal/session"
	"sonil/dashboard/internal/upstream"
)

// Upstream is the remote API the reports are read from.
type Upstream interface {
	Login(ctx context.Context, username, password string) (upstream.Session, error)
	FetchDistribution(ctx context.Context, token string, q upstream.DistributionQuery) (upstream.DistributionResult, error)
	FetchProgress(ctx context.Context, token string, q upstream.ProgressQuery) (upstream.ProgressResult, error)
}

// Sessions persists logged-in users.
type Sessions interface {
	Create(ctx context.Context, in session.NewSession, ttl time.Duration) (session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Options struct {
	Upstream       Upstream
	Sessions       Sessions
	JWTSecret      string
	SessionTTL     time.Duration
	AllowedOrigins []string
	LoginAttempts  int
	LoginWindow    time.Duration
	Logger         zerolog.Logger
}

type Server struct {
	upstream       Upstream
	sessions       Sessions
	jwtSecret      []byte
	sessionTTL     time.Duration
	allowedOrigins map[string]struct{}
	allowAnyOrigin bool
	loginLimiter   *attemptLimiter
	logger         zerolog.Logger
}

type authContextKey string

const sessionContextKey authContextKey = "session"

func NewServer(opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = 10
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = 15 * time.Minute
	}

	s := &Server{
		upstream:       opts.Upstream,
		sessions:       opts.Sessions,
		jwtSecret:      []byte(opts.JWTSecret),
		sessionTTL:     opts.SessionTTL,
		allowedOrigins: make(map[string]struct{}, len(opts.AllowedOrigins)),
		loginLimiter:   newAttemptLimiter(opts.LoginAttempts, opts.LoginWindow),
		logger:         opts.Logger,
	}
	for _, origin := range opts.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			s.allowAnyOrigin = true
			continue
		}
		if origin != "" {
			s.allowedOrigins[origin] = struct{}{}
		}
	}
	return s
}

func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", s.authRequired(http.HandlerFunc(s.handleLogout)))
	mux.Handle("GET /api/auth/me", s.authRequired(http.HandlerFunc(s.handleMe)))

	mux.Handle("GET /api/reports/{mode}", s.authRequired(http.HandlerFunc(s.handleReport)))
	mux.Handle("GET /api/dashboard", s.authRequired(http.HandlerFunc(s.handleDashboard)))

	return chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(&s.logger),
		middleware.Recoverer,
		s.withCORS,
	).Handler(mux)
}

func sessionFrom(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(session.Session)
	return sess, ok
}
