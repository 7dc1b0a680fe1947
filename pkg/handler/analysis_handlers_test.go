package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/choraleia/analyst/pkg/db"
	"github.com/choraleia/analyst/pkg/insight"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/service"
	"github.com/choraleia/analyst/pkg/tools/database"
)

type fakeAnalyst struct {
	down    map[string]string
	asked   []service.AskRequest
	run     *models.AgentRun
	askErr  error
	chart   *models.ChartSpec
	kinds   []string
	rechErr error
	insight *models.Insight
	sumErr  error
	summed  []string
}

func (f *fakeAnalyst) Ask(_ context.Context, req service.AskRequest) (*models.AgentRun, error) {
	f.asked = append(f.asked, req)
	return f.run, f.askErr
}

func (f *fakeAnalyst) Rechart(_ context.Context, _ string, kind string) (*models.ChartSpec, error) {
	f.kinds = append(f.kinds, kind)
	return f.chart, f.rechErr
}

func (f *fakeAnalyst) Summarize(_ context.Context, runID string) (*models.Insight, error) {
	f.summed = append(f.summed, runID)
	return f.insight, f.sumErr
}

func (f *fakeAnalyst) Schema(_ context.Context, source string) (*database.Schema, error) {
	if source != "" && source != "northwind" {
		return nil, errors.Wrapf(service.ErrUnknownSource, "%q", source)
	}
	return &database.Schema{Source: "northwind", Dialect: database.DialectSQLite, Tables: []database.Table{{Name: "orders"}}}, nil
}

func (f *fakeAnalyst) Sources() []string     { return []string{"northwind"} }
func (f *fakeAnalyst) DefaultSource() string { return "northwind" }

func (f *fakeAnalyst) Ping(context.Context) map[string]string { return f.down }

type fakeHistory struct {
	runs map[string]*models.AgentRun
}

func (f *fakeHistory) Get(id string) (*models.AgentRun, error) {
	if r, ok := f.runs[id]; ok {
		return r, nil
	}
	return nil, service.ErrRunNotFound
}

func (f *fakeHistory) List(sessionID string, _, _ int) ([]db.AnalysisRun, error) {
	var out []db.AnalysisRun
	for _, r := range f.runs {
		if sessionID == "" || r.SessionID == sessionID {
			out = append(out, db.AnalysisRun{ID: r.ID, SessionID: r.SessionID, Question: r.Question, Termination: string(r.Termination), CreatedAt: r.StartedAt})
		}
	}
	return out, nil
}

func newTestRouter(a *fakeAnalyst, h *fakeHistory) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewAnalysisHandler(a, h).RegisterRoutes(r.Group("/api"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQuery(t *testing.T) {
	run := &models.AgentRun{ID: "r1", Question: "top products", Termination: models.TerminationAnswered, ChartStatus: models.ChartStatusNone}
	a := &fakeAnalyst{run: run}
	r := newTestRouter(a, &fakeHistory{})

	w := do(r, http.MethodPost, "/api/query", `{"question": "top products", "database": "northwind", "recursion_limit": 5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var got models.AgentRun
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "r1" || got.Termination != models.TerminationAnswered {
		t.Fatalf("run = %+v", got)
	}
	if len(a.asked) != 1 || a.asked[0].RecursionLimit == nil || *a.asked[0].RecursionLimit != 5 || a.asked[0].GenerateSummary != nil {
		t.Fatalf("asked = %+v", a.asked)
	}
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{"question":`, nil, http.StatusBadRequest},
		{"empty question", `{"question": ""}`, service.ErrEmptyQuestion, http.StatusBadRequest},
		{"unknown source", `{"question": "q", "database": "x"}`, errors.Wrapf(service.ErrUnknownSource, "%q", "x"), http.StatusBadRequest},
		{"internal", `{"question": "q"}`, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&fakeAnalyst{askErr: tt.err}, &fakeHistory{})
			w := do(r, http.MethodPost, "/api/query", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Fatalf("body lacks error: %s", w.Body)
			}
		})
	}
}

func TestRuns(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	h := &fakeHistory{runs: map[string]*models.AgentRun{
		"r1": {ID: "r1", SessionID: "s1", Question: "first", Termination: models.TerminationAnswered, StartedAt: start},
	}}
	r := newTestRouter(&fakeAnalyst{}, h)

	w := do(r, http.MethodGet, "/api/runs?session_id=s1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Runs  []RunSummary `json:"runs"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 || list.Runs[0].ID != "r1" || list.Runs[0].Termination != "answered" {
		t.Fatalf("list = %+v", list)
	}

	if w := do(r, http.MethodGet, "/api/runs/r1", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"question":"first"`) {
		t.Fatalf("get status = %d body = %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodGet, "/api/runs/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", w.Code)
	}
}

func TestRechart(t *testing.T) {
	a := &fakeAnalyst{chart: &models.ChartSpec{Kind: models.ChartPie, Labels: []string{"a"}}}
	r := newTestRouter(a, &fakeHistory{})

	w := do(r, http.MethodPost, "/api/runs/r1/chart", `{"kind": "pie"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"kind":"pie"`) {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodPost, "/api/runs/r1/chart", ""); w.Code != http.StatusOK {
		t.Fatalf("empty body status = %d", w.Code)
	}
	if len(a.kinds) != 2 || a.kinds[0] != "pie" || a.kinds[1] != "" {
		t.Fatalf("kinds = %v", a.kinds)
	}

	tests := []struct {
		err  error
		want int
	}{
		{service.ErrRunNotFound, http.StatusNotFound},
		{service.ErrNoResult, http.StatusConflict},
		{errors.Wrapf(service.ErrUnknownChart, "%q", "sunburst"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		a.rechErr = tt.err
		if w := do(r, http.MethodPost, "/api/runs/r1/chart", `{"kind": "x"}`); w.Code != tt.want {
			t.Errorf("error %v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	a := &fakeAnalyst{insight: &models.Insight{Initial: "Chai sells well.", Enhanced: "Beverages drive revenue."}}
	r := newTestRouter(a, &fakeHistory{})

	w := do(r, http.MethodPost, "/api/runs/r1/summary", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"enhanced":"Beverages drive revenue."`) {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	if len(a.summed) != 1 || a.summed[0] != "r1" {
		t.Fatalf("summarized runs = %v", a.summed)
	}

	tests := []struct {
		err  error
		want int
	}{
		{service.ErrRunNotFound, http.StatusNotFound},
		{service.ErrNoInsight, http.StatusConflict},
		{&insight.GenerationError{Stage: 2, Err: errors.New("rate limited")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		a.sumErr = tt.err
		if w := do(r, http.MethodPost, "/api/runs/r1/summary", ""); w.Code != tt.want {
			t.Errorf("error %v: status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestSchemaToolsHealth(t *testing.T) {
	r := newTestRouter(&fakeAnalyst{}, &fakeHistory{})

	if w := do(r, http.MethodGet, "/api/schema", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"orders"`) {
		t.Fatalf("schema status = %d body = %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodGet, "/api/schema?database=chinook", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown schema status = %d, want 400", w.Code)
	}

	w := do(r, http.MethodGet, "/api/tools", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"run_sql"`) || !strings.Contains(w.Body.String(), `"render_chart"`) {
		t.Fatalf("tools status = %d body = %s", w.Code, w.Body)
	}

	w = do(r, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health status = %d body = %s", w.Code, w.Body)
	}

	down := newTestRouter(&fakeAnalyst{down: map[string]string{"northwind": "connection refused"}}, &fakeHistory{})
	w = do(down, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"status":"degraded"`) {
		t.Fatalf("degraded health status = %d body = %s", w.Code, w.Body)
	}
}
