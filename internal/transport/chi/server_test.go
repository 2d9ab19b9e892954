package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/metrics"
	"github.com/kailas-cloud/topoagent/internal/orchestrator"
	healthuc "github.com/kailas-cloud/topoagent/internal/usecase/health"
)

const testTool = "comment_tool"

type mockRunner struct {
	results []orchestrator.Result
	err     error
	panic   bool
	state   domain.State
}

func (m *mockRunner) Run(_ context.Context, state domain.State) ([]orchestrator.Result, error) {
	if m.panic {
		panic("tool bug")
	}
	m.state = state
	return m.results, m.err
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestServer(runner TurnRunner, health HealthChecker, origins ...string) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	s := NewServer(Config{
		Tools:            runner,
		Tool:             testTool,
		Health:           health,
		Gatherer:         reg,
		Metrics:          metrics.NewHTTP(reg),
		Logger:           zap.NewNop(),
		CORSAllowOrigins: origins,
	})
	return s.Router(), reg
}

func okPatch() domain.Patch {
	return domain.Patch{
		Comments: []domain.ResultEntry{
			{CommentID: "c1", Distance: 0.12, Metadata: map[string]any{"site": "A"}},
		},
		Metadata: domain.Diagnostics{
			Source:     "comment_rag_pgvector",
			QueryText:  "link down on site A",
			TopK:       5,
			NumResults: domain.Count(1),
		},
		Outcome: domain.OutcomeOK,
	}
}

func doRequest(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSearchComments_Success(t *testing.T) {
	runner := &mockRunner{results: []orchestrator.Result{{Tool: testTool, Patch: okPatch()}}}
	h, _ := newTestServer(runner, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search",
		`{"user_input":"link down on site A","ui_context":{"site":"A"}}`, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body)
	}
	if runner.state.UserInput != "link down on site A" || runner.state.UIContext["site"] != "A" {
		t.Errorf("unexpected state passed to tools: %+v", runner.state)
	}
	if rr.Header().Get(OutcomeHeader) != "ok" {
		t.Errorf("unexpected outcome header %q", rr.Header().Get(OutcomeHeader))
	}

	want := `{"comments":[{"comment_id":"c1","distance":0.12,"site":"A"}],` +
		`"metadata":{"source":"comment_rag_pgvector","query_text":"link down on site A","top_k":5,"num_results":1}}`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Errorf("unexpected body:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestSearchComments_StoreErrorIs502(t *testing.T) {
	storeErr := domain.NewStoreAccessError("search comments", errors.New("dial tcp 10.0.0.5:5432: refused"))
	h, _ := newTestServer(&mockRunner{err: storeErr}, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != CodeStoreUnavailable {
		t.Errorf("unexpected code %q", resp.Code)
	}
	if strings.Contains(resp.Message, "10.0.0.5") {
		t.Errorf("internal detail leaked: %q", resp.Message)
	}
}

func TestSearchComments_UnknownErrorIs500(t *testing.T) {
	h, _ := newTestServer(&mockRunner{err: errors.New("boom")}, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestSearchComments_CanceledIs499(t *testing.T) {
	runner := &mockRunner{err: fmt.Errorf("tool comment_tool: %w", context.Canceled)}
	h, _ := newTestServer(runner, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	if rr.Code != StatusClientClosedRequest {
		t.Fatalf("expected 499, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), CodeCanceled) {
		t.Errorf("unexpected body %s", rr.Body)
	}
}

func TestSearchComments_BadJSON(t *testing.T) {
	runner := &mockRunner{}
	h, _ := newTestServer(runner, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), CodeBadRequest) {
		t.Errorf("unexpected body %s", rr.Body)
	}
}

func TestSearchComments_MissingToolPatch(t *testing.T) {
	h, _ := newTestServer(&mockRunner{results: []orchestrator.Result{{Tool: "other"}}}, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	runner := &mockRunner{results: []orchestrator.Result{{Tool: testTool, Patch: okPatch()}}}
	h, _ := newTestServer(runner, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`,
		map[string]string{RequestIDHeader: "trace-abc"})
	if got := rr.Header().Get(RequestIDHeader); got != "trace-abc" {
		t.Errorf("expected incoming request id to be echoed, got %q", got)
	}

	rr = doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	if _, err := uuid.Parse(rr.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("expected generated uuid, got %q", rr.Header().Get(RequestIDHeader))
	}
}

func TestPanicIsRecoveredAsJSON(t *testing.T) {
	h, _ := newTestServer(&mockRunner{panic: true}, &mockHealth{})

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error, got %q", ct)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		report     healthuc.Report
		wantStatus int
	}{
		{"healthy", healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK}}, http.StatusOK},
		{"degraded", healthuc.Report{Status: healthuc.Degraded, Checks: map[string]healthuc.CheckResult{"embedding": healthuc.CheckError}}, http.StatusOK},
		{"unhealthy", healthuc.Report{Status: healthuc.Unhealthy, Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError}}, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestServer(&mockRunner{}, &mockHealth{report: tc.report})
			rr := doRequest(h, http.MethodGet, "/health", "", nil)
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != string(tc.report.Status) {
				t.Errorf("unexpected status %q", resp.Status)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	runner := &mockRunner{results: []orchestrator.Result{{Tool: testTool, Patch: okPatch()}}}
	h, reg := newTestServer(runner, &mockHealth{})

	orch := metrics.NewOrchestrator(reg)
	orch.ObserveInvocation(metrics.FamilyTool, testTool, metrics.StatusOK, 0)

	doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`, nil)
	rr := doRequest(h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`topology_orchestrator_tool_invocations_total{status="ok",tool="comment_tool"} 1`,
		`topology_orchestrator_http_requests_total{method="POST",path="/api/v1/comments/search",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	n, err := testutil.GatherAndCount(reg, "topology_orchestrator_http_requests_total")
	if err != nil || n < 1 {
		t.Errorf("expected http request series, got %d (%v)", n, err)
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	h, _ := newTestServer(&mockRunner{}, &mockHealth{})
	rr := doRequest(h, http.MethodGet, "/nope", "", nil)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "not_found") {
		t.Errorf("unexpected response %d %s", rr.Code, rr.Body)
	}
}

func preflight(h http.Handler, origin string) *httptest.ResponseRecorder {
	return doRequest(h, http.MethodOptions, "/api/v1/comments/search", "", map[string]string{
		"Origin":                         origin,
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "content-type, x-request-id",
	})
}

func TestCORS_Preflight(t *testing.T) {
	runner := &mockRunner{}
	h, _ := newTestServer(runner, &mockHealth{}, "http://ui.local:3000")

	rr := preflight(h, "http://ui.local:3000")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.local:3000" {
		t.Errorf("unexpected allow-origin %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPost {
		t.Errorf("unexpected allow-methods %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("expected allow-headers to be set")
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}
	if runner.state.UserInput != "" {
		t.Error("preflight must not reach the tools")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	h, _ := newTestServer(&mockRunner{}, &mockHealth{}, "http://ui.local:3000")

	rr := preflight(h, "http://evil.example")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin, got %q", got)
	}
}

func TestCORS_WildcardEchoesOrigin(t *testing.T) {
	runner := &mockRunner{results: []orchestrator.Result{{Tool: testTool, Patch: okPatch()}}}
	h, _ := newTestServer(runner, &mockHealth{}, "*")

	rr := doRequest(h, http.MethodPost, "/api/v1/comments/search", `{"user_input":"q"}`,
		map[string]string{"Origin": "http://any.example"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://any.example" {
		t.Errorf("expected echoed origin, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, OutcomeHeader) {
		t.Errorf("expected outcome header exposed, got %q", got)
	}
}

func TestCORS_DisabledByDefault(t *testing.T) {
	h, _ := newTestServer(&mockRunner{}, &mockHealth{})

	rr := preflight(h, "http://ui.local:3000")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers, got %q", got)
	}
}
