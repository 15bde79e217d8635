package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/estate-compliance/internal/application/analysis"
	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
	"github.com/bryanwahyu/estate-compliance/internal/middleware"
)

type fixedAnalyses struct{}

func (fixedAnalyses) FetchAnalysis(context.Context, compliance.SubjectID) ([]byte, error) {
	return []byte(`{"cumplimiento_actual":"cumple","semaforo":"verde","justificacion":"Todo correcto."}`), nil
}

type failingCheck struct{}

func (failingCheck) Check(context.Context) error { return errors.New("store down") }

func newTestRouter(t *testing.T, opts Options) (http.Handler, *analysis.Registry) {
	t.Helper()
	panels := analysis.NewRegistry(time.Hour, func(string) *analysis.Orchestrator {
		return &analysis.Orchestrator{Analyses: fixedAnalyses{}}
	})
	t.Cleanup(panels.Shutdown)
	return NewRouter(panels, opts), panels
}

func serve(h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestSelectThenState(t *testing.T) {
	h, panels := newTestRouter(t, Options{})

	rec := serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	st := decodeState(t, rec)
	assert.Equal(t, "loading", st["phase"])
	assert.Equal(t, "b-1", st["subject_id"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	o, ok := panels.Get("p1")
	require.True(t, ok)
	o.Wait()

	rec = serve(h, http.MethodGet, "/v1/panels/p1/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeState(t, rec)
	assert.Equal(t, "loaded", st["phase"])
	assert.Equal(t, "network", st["source"])
	record, ok := st["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, record["complies"])
}

func TestSelectEmptyResetsPanel(t *testing.T) {
	h, _ := newTestRouter(t, Options{})

	rec := serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":""}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "idle", decodeState(t, rec)["phase"])
}

func TestRetryAndRefresh(t *testing.T) {
	h, panels := newTestRouter(t, Options{})
	require.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`, nil).Code)

	for _, action := range []string{"retry", "refresh"} {
		rec := serve(h, http.MethodPost, "/v1/panels/p1/"+action, "", nil)
		require.Equal(t, http.StatusAccepted, rec.Code, action)
		st := decodeState(t, rec)
		assert.Equal(t, "b-1", st["subject_id"], action)
	}

	o, _ := panels.Get("p1")
	o.Wait()
	assert.Equal(t, uint64(3), o.State().Generation)
}

func TestRequestErrors(t *testing.T) {
	h, _ := newTestRouter(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "invalid building id", method: http.MethodPost, path: "/v1/panels/p1/select", body: `{"building_id":"b 1; drop"}`, want: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPost, path: "/v1/panels/p1/select", body: `{`, want: http.StatusBadRequest},
		{name: "invalid panel id", method: http.MethodGet, path: "/v1/panels/bad.panel/state", want: http.StatusBadRequest},
		{name: "unknown panel state", method: http.MethodGet, path: "/v1/panels/nobody/state", want: http.StatusNotFound},
		{name: "unknown panel retry", method: http.MethodPost, path: "/v1/panels/nobody/retry", want: http.StatusNotFound},
		{name: "unknown panel refresh", method: http.MethodPost, path: "/v1/panels/nobody/refresh", want: http.StatusNotFound},
		{name: "unknown panel events", method: http.MethodGet, path: "/v1/panels/nobody/events", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestClosePanel(t *testing.T) {
	h, panels := newTestRouter(t, Options{})
	serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`, nil)
	require.Equal(t, 1, panels.Len())

	rec := serve(h, http.MethodDelete, "/v1/panels/p1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, panels.Len())

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/v1/panels/p1/state", "", nil).Code)
}

func TestHealthEndpoints(t *testing.T) {
	health := &middleware.Health{Checks: map[string]middleware.HealthChecker{"store": failingCheck{}}}
	h, _ := newTestRouter(t, Options{Health: health})

	rec := serve(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/readyz", "", nil).Code)

	rec = serve(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store down")

	health.Drain()
	rec = serve(h, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "draining")
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	var panels *analysis.Registry
	m := middleware.NewMetrics(func() int { return panels.Len() })
	h, reg := newTestRouter(t, Options{Metrics: m})
	panels = reg

	serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`, nil)

	rec := serve(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `estate_compliance_http_requests_total{method="POST",route="/v1/panels/{panel}/select",status="202"} 1`)
	assert.Contains(t, body, "estate_compliance_panels_open 1")
}

func TestAPIKeyAuth(t *testing.T) {
	h, _ := newTestRouter(t, Options{APIKeys: map[string]string{"ui": "k1"}})

	rec := serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`,
		http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`,
		http.Header{"Authorization": {"Bearer k1"}})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// health stays public
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "", nil).Code)
}

func TestRateLimitOnLoads(t *testing.T) {
	h, _ := newTestRouter(t, Options{Limiter: middleware.NewRateLimiter(1, 0)})

	assert.Equal(t, http.StatusAccepted, serve(h, http.MethodPost, "/v1/panels/p1/select", `{"building_id":"b-1"}`, nil).Code)
	rec := serve(h, http.MethodPost, "/v1/panels/p1/retry", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// reads are not limited
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/v1/panels/p1/state", "", nil).Code)
}

func TestEventsStream(t *testing.T) {
	h, _ := newTestRouter(t, Options{})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/panels/p1/select", "application/json", strings.NewReader(`{"building_id":"b-1"}`))
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/panels/p1/events", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: state\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st))
	assert.Equal(t, "b-1", st["subject_id"])
}
