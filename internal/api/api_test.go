package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sonil/dashboard/internal/pivot"
	"sonil/dashboard/internal/session"
	"sonil/dashboard/internal/upstream"
)

type mockUpstream struct {
	mock.Mock
}

func (m *mockUpstream) Login(ctx context.Context, username, password string) (upstream.Session, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(upstream.Session), args.Error(1)
}

func (m *mockUpstream) FetchDistribution(ctx context.Context, token string, q upstream.DistributionQuery) (upstream.DistributionResult, error) {
	args := m.Called(ctx, token, q)
	return args.Get(0).(upstream.DistributionResult), args.Error(1)
}

func (m *mockUpstream) FetchProgress(ctx context.Context, token string, q upstream.ProgressQuery) (upstream.ProgressResult, error) {
	args := m.Called(ctx, token, q)
	return args.Get(0).(upstream.ProgressResult), args.Error(1)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Create(ctx context.Context, in session.NewSession, ttl time.Duration) (session.Session, error) {
	args := m.Called(ctx, in, ttl)
	return args.Get(0).(session.Session), args.Error(1)
}

func (m *mockSessions) Get(ctx context.Context, id uuid.UUID) (session.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(session.Session), args.Error(1)
}

func (m *mockSessions) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type testServer struct {
	srv      *Server
	handler  http.Handler
	upstream *mockUpstream
	sessions *mockSessions
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	up := &mockUpstream{}
	sessions := &mockSessions{}
	opts.Upstream = up
	opts.Sessions = sessions
	opts.JWTSecret = "test-secret"
	opts.Logger = zerolog.Nop()
	srv := NewServer(opts)
	t.Cleanup(func() {
		up.AssertExpectations(t)
		sessions.AssertExpectations(t)
	})
	return &testServer{srv: srv, handler: srv.Mux(), upstream: up, sessions: sessions}
}

// login registers a live session and returns its bearer token.
func (ts *testServer) login(t *testing.T) (session.Session, string) {
	t.Helper()
	sess := session.Session{
		ID:        uuid.New(),
		Username:  "ana",
		Fullname:  "Ana Matsinhe",
		Token:     "up-token",
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	token, err := ts.srv.signToken(sess)
	require.NoError(t, err)
	ts.sessions.On("Get", mock.Anything, sess.ID).Return(sess, nil)
	return sess, token
}

func (ts *testServer) do(method, target, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func distributionResult() upstream.DistributionResult {
	return upstream.DistributionResult{
		Dataset: pivot.NewDataset([]pivot.Entity{
			{
				ID:       "A",
				Label:    "Sector A",
				Groups:   map[string]string{"sector": "S1"},
				Values:   map[string]any{"pkg1": pivot.SentReceived(5, 3)},
				Measures: map[string]any{"farmers": 4},
			},
			{
				ID:       "B",
				Label:    "Sector B",
				Groups:   map[string]string{"sector": "S2"},
				Values:   map[string]any{"pkg1": pivot.SentReceived(7, 4)},
				Measures: map[string]any{"farmers": 2},
			},
		}, []string{"pkg1"}),
		Invalid: []upstream.ValidationError{{Index: 2, Field: "name", Reason: "missing"}},
	}
}

func progressResult() upstream.ProgressResult {
	return upstream.ProgressResult{
		Dataset: pivot.NewDataset([]pivot.Entity{
			{
				ID:     "t1",
				Label:  "Joao",
				Groups: map[string]string{"sector": "S1", "area": "A1"},
				Values: map[string]any{"w1": pivot.Count(2), "w2": pivot.Count(3)},
			},
		}, []string{"w1", "w2"}),
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Vary"))
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, Options{SessionTTL: 2 * time.Hour})

	created := session.Session{
		ID:        uuid.New(),
		Username:  "ana",
		Fullname:  "Ana Matsinhe",
		Token:     "up-token",
		ExpiresAt: time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second),
	}
	ts.upstream.On("Login", mock.Anything, "ana", "secret").
		Return(upstream.Session{Token: "up-token", User: upstream.User{ID: "42", Username: "ana", Fullname: "Ana Matsinhe"}}, nil)
	ts.sessions.On("Create", mock.Anything, session.NewSession{
		Username:       "ana",
		Fullname:       "Ana Matsinhe",
		UpstreamUserID: "42",
		Token:          "up-token",
	}, 2*time.Hour).Return(created, nil)

	rec := ts.do(http.MethodPost, "/api/auth/login", "", []byte(`{"username":" ana ","password":"secret"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Token string   `json:"token"`
		User  userView `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, userView{Username: "ana", Fullname: "Ana Matsinhe"}, out.User)
	assert.NotContains(t, rec.Body.String(), "up-token")

	id, err := ts.srv.parseToken(out.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)
}

func TestLoginRejected(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodPost, "/api/auth/login", "", []byte(`{"username":"ana"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/auth/login", "", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.upstream.On("Login", mock.Anything, "ana", "wrong").Return(upstream.Session{}, upstream.ErrUnauthorized).Once()
	rec = ts.do(http.MethodPost, "/api/auth/login", "", []byte(`{"username":"ana","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid username or password", decodeError(t, rec))

	ts.upstream.On("Login", mock.Anything, "ana", "pw").Return(upstream.Session{}, upstream.ErrUnavailable).Once()
	rec = ts.do(http.MethodPost, "/api/auth/login", "", []byte(`{"username":"ana","password":"pw"}`))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, Options{LoginAttempts: 2, LoginWindow: time.Minute})
	ts.upstream.On("Login", mock.Anything, "ana", "wrong").Return(upstream.Session{}, upstream.ErrUnauthorized).Twice()

	body := []byte(`{"username":"ana","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/api/auth/login", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/api/auth/login", "", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodPost, "/api/auth/login", "", body).Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing bearer token", decodeError(t, rec))

	rec = ts.do(http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decodeError(t, rec))

	gone := session.Session{ID: uuid.New(), Username: "ana", ExpiresAt: time.Now().Add(time.Hour)}
	token, err := ts.srv.signToken(gone)
	require.NoError(t, err)
	ts.sessions.On("Get", mock.Anything, gone.ID).Return(session.Session{}, session.ErrNotFound)

	rec = ts.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session expired", decodeError(t, rec))
}

func TestMeAndLogout(t *testing.T) {
	ts := newTestServer(t, Options{})
	sess, token := ts.login(t)

	rec := ts.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fullname":"Ana Matsinhe"`)

	ts.sessions.On("Delete", mock.Anything, sess.ID).Return(nil).Once()
	rec = ts.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDistributionReport(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)
	ts.upstream.On("FetchDistribution", mock.Anything, "up-token", upstream.DistributionQuery{Limit: 50}).
		Return(distributionResult(), nil)

	rec := ts.do(http.MethodGet, "/api/reports/distribution?sector=S1&limit=50&unknown=x", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view reportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "distribution", view.Mode)
	assert.Equal(t, []string{"pkg1"}, view.Columns)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "Sector A", view.Rows[0].Label)
	assert.Equal(t, []cellView{{Sent: "5.00", Received: "3.00"}}, view.Rows[0].Cells)
	assert.Equal(t, []cellView{{Sent: "5.00", Received: "3.00"}}, view.Totals.Columns)
	assert.Equal(t, map[string]string{"farmers": "4"}, view.Totals.Measures)
	assert.Equal(t, []string{"S1", "S2"}, view.Filters["sector"])
	assert.Equal(t, pivot.FilterSpec{"sector": "S1"}, view.Applied)
	assert.Equal(t, 1, view.Skipped)
}

func TestProgressReportCSV(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)
	ts.upstream.On("FetchProgress", mock.Anything, "up-token", upstream.ProgressQuery{}).
		Return(progressResult(), nil)

	rec := ts.do(http.MethodGet, "/api/reports/progress?format=csv", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="progresso-`)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Sector,Área,Técnico,Semana 1,Semana 1 acumulado,Semana 2,Semana 2 acumulado", lines[0])
	assert.Equal(t, "S1,A1,Joao,2,2,3,5", lines[1])
	assert.Equal(t, "Totais,,,2,2,3,5", lines[2])
}

func TestProgressReportJSON(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)
	ts.upstream.On("FetchProgress", mock.Anything, "up-token", upstream.ProgressQuery{}).
		Return(progressResult(), nil)

	rec := ts.do(http.MethodGet, "/api/reports/progress", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view reportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Rows, 1)
	assert.Equal(t, []cellView{{Count: "2"}, {Count: "3"}}, view.Rows[0].Cells)
	assert.Equal(t, []string{"2", "5"}, view.Rows[0].Cumulative)
	assert.Equal(t, cellView{Count: "5"}, view.Rows[0].Total)
	assert.Equal(t, []string{"2", "5"}, view.Totals.Cumulative)
}

func TestReportXLSXAndBadFormat(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)
	ts.upstream.On("FetchDistribution", mock.Anything, "up-token", mock.Anything).Return(distributionResult(), nil)

	rec := ts.do(http.MethodGet, "/api/reports/distribution?format=xlsx", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = ts.do(http.MethodGet, "/api/reports/distribution?format=pdf", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownReportMode(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)

	rec := ts.do(http.MethodGet, "/api/reports/weekly", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown report", decodeError(t, rec))
}

func TestUpstreamFailures(t *testing.T) {
	ts := newTestServer(t, Options{})
	sess, token := ts.login(t)

	ts.upstream.On("FetchProgress", mock.Anything, "up-token", mock.Anything).
		Return(upstream.ProgressResult{}, &upstream.StatusError{Code: 500, Status: "500 Internal Server Error"}).Once()
	rec := ts.do(http.MethodGet, "/api/reports/progress", token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	ts.upstream.On("FetchProgress", mock.Anything, "up-token", mock.Anything).
		Return(upstream.ProgressResult{}, upstream.ErrUnauthorized).Once()
	ts.sessions.On("Delete", mock.Anything, sess.ID).Return(nil).Once()
	rec = ts.do(http.MethodGet, "/api/reports/progress", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session expired", decodeError(t, rec))
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)
	ts.upstream.On("FetchDistribution", mock.Anything, "up-token", mock.Anything).Return(distributionResult(), nil)
	ts.upstream.On("FetchProgress", mock.Anything, "up-token", mock.Anything).Return(progressResult(), nil)

	rec := ts.do(http.MethodGet, "/api/dashboard?sector=S2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]reportView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out["distribution"].Rows, 1)
	assert.Equal(t, "Sector B", out["distribution"].Rows[0].Label)
	assert.Empty(t, out["progress"].Rows)
	assert.Equal(t, []cellView{{Count: "0"}, {Count: "0"}}, out["progress"].Totals.Columns)
}

func TestDashboardUpstreamError(t *testing.T) {
	ts := newTestServer(t, Options{})
	_, token := ts.login(t)
	ts.upstream.On("FetchDistribution", mock.Anything, "up-token", mock.Anything).
		Return(upstream.DistributionResult{}, errors.Join(upstream.ErrUnavailable, context.DeadlineExceeded))
	ts.upstream.On("FetchProgress", mock.Anything, "up-token", mock.Anything).Return(progressResult(), nil).Maybe()

	rec := ts.do(http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/reports/progress", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAttemptLimiterWindow(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	l := newAttemptLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("k"))
	assert.False(t, l.allow("k"))
	assert.True(t, l.allow("other"))

	now = now.Add(time.Minute)
	assert.True(t, l.allow("k"))

	l.reset("k")
	assert.True(t, l.allow("k"))
}

func TestParseFilters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?search=%20ana%20&sector=S1&area=&format=csv&limit=5", nil)
	assert.Equal(t, pivot.FilterSpec{"search": "ana", "sector": "S1"}, parseFilters(req))
}
