package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/lms/gateway/internal/middleware"
	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/metrics"
)

type seen struct {
	Path    string
	Query   string
	Cookie  string
	Auth    string
	FwdHost string
	FwdFor  string
}

type recorded struct {
	mu   sync.Mutex
	reqs []seen
}

func (r *recorded) all() []seen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]seen(nil), r.reqs...)
}

func upstream(t *testing.T, name string) (*httptest.Server, *recorded) {
	t.Helper()
	got := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.mu.Lock()
		got.reqs = append(got.reqs, seen{
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Cookie:  r.Header.Get("Cookie"),
			Auth:    r.Header.Get("Authorization"),
			FwdHost: r.Header.Get("X-Forwarded-Host"),
			FwdFor:  r.Header.Get("X-Forwarded-For"),
		})
		got.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "auth-token", Value: "from-" + name})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, `{"success":true,"data":{"upstream":"`+name+`"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

type gateway struct {
	e       *echo.Echo
	counter *middleware.RequestCounter
}

func newGateway(t *testing.T, authURL, courseURL string) *gateway {
	t.Helper()
	m := metrics.New("gateway")
	g := &gateway{e: echo.New(), counter: middleware.NewRequestCounter(m.Registry)}
	g.e.HTTPErrorHandler = apperr.Handler
	g.e.Use(middleware.Common(slog.New(slog.NewTextHandler(io.Discard, nil)), m, g.counter, "http://localhost:3000")...)
	require.NoError(t, Register(g.e, &Deps{AuthURL: authURL, CourseURL: courseURL, Metrics: m}))
	return g
}

func (g *gateway) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.e.ServeHTTP(rec, req)
	return rec
}

func TestProxy_RoutesAndRewrites(t *testing.T) {
	authSrv, authSeen := upstream(t, "auth")
	courseSrv, courseSeen := upstream(t, "course")
	g := newGateway(t, authSrv.URL, courseSrv.URL)

	tests := []struct {
		path     string
		wantSeen *recorded
		wantPath string
	}{
		{"/api/auth/login", authSeen, "/auth/login"},
		{"/api/auth", authSeen, "/auth"},
		{"/api/courses", courseSeen, "/api/courses"},
		{"/api/courses/123/lessons?page=2", courseSeen, "/api/courses/123/lessons"},
		{"/api/me/enrollments", courseSeen, "/api/me/enrollments"},
		{"/api/instructor/courses", courseSeen, "/api/instructor/courses"},
	}
	for _, tt := range tests {
		before := len(tt.wantSeen.all())
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := g.do(req)

		assert.Equal(t, http.StatusTeapot, rec.Code, tt.path)
		got := tt.wantSeen.all()
		require.Len(t, got, before+1, tt.path)
		assert.Equal(t, tt.wantPath, got[before].Path, tt.path)
	}
	assert.Equal(t, "page=2", courseSeen.all()[1].Query)
}

func TestProxy_ForwardsCredentialsAndHeaders(t *testing.T) {
	authSrv, authSeen := upstream(t, "auth")
	g := newGateway(t, authSrv.URL, authSrv.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.Host = "lms.example.com"
	req.AddCookie(&http.Cookie{Name: "refresh-token", Value: "r1"})
	req.Header.Set("Authorization", "Bearer a1")
	rec := g.do(req)

	all := authSeen.all()
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, "refresh-token=r1", got.Cookie)
	assert.Equal(t, "Bearer a1", got.Auth)
	assert.Equal(t, "lms.example.com", got.FwdHost)
	assert.NotEmpty(t, got.FwdFor)

	assert.Contains(t, rec.Header().Values("Set-Cookie")[0], "auth-token=from-auth")
	assert.JSONEq(t, `{"success":true,"data":{"upstream":"auth"}}`, rec.Body.String())
}

func TestProxy_DeadUpstreamIs502Envelope(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	g := newGateway(t, deadURL, deadURL)

	rec := g.do(httptest.NewRequest(http.MethodGet, "/api/courses", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var env apperr.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "upstream service unavailable", env.Message)

	assert.Equal(t, 1.0, testutil.ToFloat64(g.counter.Requests.WithLabelValues("/api/courses", "502")))
}

func TestRequestCounter(t *testing.T) {
	courseSrv, _ := upstream(t, "course")
	g := newGateway(t, courseSrv.URL, courseSrv.URL)

	for i := 0; i < 3; i++ {
		g.do(httptest.NewRequest(http.MethodGet, "/api/courses/abc", nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(g.counter.Requests.WithLabelValues("/api/courses/*", "418")))

	rec := g.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lms_gateway_requests_total{route="/api/courses/*",status="418"} 3`)
}

func TestRewritePrefix(t *testing.T) {
	assert.Equal(t, "/auth/login", rewritePrefix("/api/auth/login", "/api/auth", "/auth"))
	assert.Equal(t, "/auth", rewritePrefix("/api/auth", "/api/auth", "/auth"))
	assert.Equal(t, "/api/authors", rewritePrefix("/api/authors", "/api/auth", "/auth"))
}
