package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/choraleia/analyst/pkg/db"
	"github.com/choraleia/analyst/pkg/models"
)

func newHistory(t *testing.T) *HistoryService {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	return NewHistoryService(gdb)
}

func answeredRun(id, session, question string, started time.Time) *models.AgentRun {
	return &models.AgentRun{
		ID:          id,
		SessionID:   session,
		Database:    "northwind",
		Question:    question,
		Iterations:  2,
		Termination: models.TerminationAnswered,
		SQL:         &models.SQLArtifact{Statement: "SELECT 1 AS n"},
		QueryResult: &models.QueryResult{
			Columns:  []string{"n"},
			Rows:     []map[string]any{{"n": int64(1)}},
			RowCount: 1,
		},
		ChartStatus: models.ChartStatusNone,
		Answer:      "answer to " + question,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	}
}

func TestHistory_SaveAndGet(t *testing.T) {
	h := newHistory(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run := answeredRun("run-1", "s1", "How many?", start)
	run.Insight = &models.Insight{Initial: "One row.", Enhanced: "Exactly one.", Degraded: false}
	run.Chart = &models.ChartSpec{Kind: models.ChartBar, Labels: []string{"a"}, Datasets: []models.Dataset{{Label: "n", Data: []float64{1}}}}
	run.ChartError = "first chart rejected: no datasets"

	if err := h.Save(run); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := h.Get("run-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Question != "How many?" || got.SQL == nil || got.SQL.Statement != "SELECT 1 AS n" {
		t.Fatalf("Get() = %+v", got)
	}
	if got.QueryResult == nil || got.QueryResult.RowCount != 1 || got.QueryResult.Rows[0]["n"] != float64(1) {
		t.Fatalf("QueryResult = %+v", got.QueryResult)
	}
	if got.Chart == nil || got.Chart.Kind != models.ChartBar {
		t.Fatalf("Chart = %+v", got.Chart)
	}
	if got.Insight == nil || got.Insight.Enhanced != "Exactly one." {
		t.Fatalf("Insight = %+v", got.Insight)
	}
	if got.ChartError != run.ChartError {
		t.Fatalf("ChartError = %q, want %q", got.ChartError, run.ChartError)
	}

	run.Answer = "updated"
	if err := h.Save(run); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	got, err = h.Get("run-1")
	if err != nil || got.Answer != "updated" {
		t.Fatalf("Get() after update = %+v, %v", got, err)
	}
}

func TestHistory_GetMissing(t *testing.T) {
	h := newHistory(t)
	if _, err := h.Get("nope"); err != ErrRunNotFound {
		t.Fatalf("Get() error = %v, want ErrRunNotFound", err)
	}
}

func TestHistory_ListAndPreviousContext(t *testing.T) {
	h := newHistory(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := answeredRun("r1", "s1", "first", start)
	first.Insight = &models.Insight{Initial: "initial one"}
	second := answeredRun("r2", "s1", "second", start.Add(time.Minute))
	second.Insight = &models.Insight{Initial: "initial two", Enhanced: "enhanced two"}
	failed := answeredRun("r3", "s1", "third", start.Add(2*time.Minute))
	failed.Termination = models.TerminationError
	failed.ErrorKind = models.ErrorKindConnection
	third := answeredRun("r4", "s1", "fourth", start.Add(3*time.Minute))
	other := answeredRun("r5", "s2", "other session", start.Add(4*time.Minute))

	for _, r := range []*models.AgentRun{first, second, failed, third, other} {
		if err := h.Save(r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.ID, err)
		}
	}

	runs, err := h.List("s1", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 4 || runs[0].ID != "r4" || runs[3].ID != "r1" {
		t.Fatalf("List() = %d runs starting with %v, want 4 newest first", len(runs), runs)
	}
	all, err := h.List("", 2, 1)
	if err != nil || len(all) != 2 || all[0].ID != "r4" {
		t.Fatalf("List(all, 2, 1) = %v, %v", all, err)
	}

	prior, err := h.PreviousContext("s1", 2)
	if err != nil {
		t.Fatalf("PreviousContext() error = %v", err)
	}
	if len(prior) != 2 {
		t.Fatalf("PreviousContext() = %+v, want 2 entries", prior)
	}
	if prior[0].Question != "second" || prior[0].Summary != "enhanced two" {
		t.Errorf("prior[0] = %+v, want second with enhanced summary", prior[0])
	}
	if prior[1].Question != "fourth" || prior[1].Summary != "answer to fourth" || prior[1].SQL != "SELECT 1 AS n" {
		t.Errorf("prior[1] = %+v, want fourth falling back to the answer", prior[1])
	}

	before, err := h.ContextBefore("s1", third.StartedAt, 5)
	if err != nil || len(before) != 2 || before[1].Question != "second" {
		t.Fatalf("ContextBefore(fourth) = %+v, %v, want first and second", before, err)
	}

	if prior, _ := h.PreviousContext("", 3); prior != nil {
		t.Errorf("PreviousContext without session = %v, want nil", prior)
	}
}
