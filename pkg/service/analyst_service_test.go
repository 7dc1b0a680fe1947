package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/choraleia/analyst/pkg/agent"
	"github.com/choraleia/analyst/pkg/event"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/tools/database"
)

const revenueSQL = "SELECT p.product_name, SUM(d.unit_price * d.quantity) AS revenue " +
	"FROM products p JOIN order_details d ON d.product_id = p.product_id " +
	"GROUP BY p.product_name ORDER BY revenue DESC LIMIT 3"

// replayModel answers with fixed texts in order and records every prompt.
type replayModel struct {
	mu      sync.Mutex
	replies []string
	inputs  [][]*schema.Message
}

func (m *replayModel) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, input)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no more replies")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return schema.AssistantMessage(reply, nil), nil
}

func newSalesExecutor(t *testing.T) *database.Executor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.db")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, s := range []string{
		`CREATE TABLE products (product_id INTEGER PRIMARY KEY, product_name TEXT NOT NULL)`,
		`CREATE TABLE order_details (order_id INTEGER, product_id INTEGER, unit_price REAL, quantity INTEGER)`,
		`INSERT INTO products VALUES (1, 'Chai'), (2, 'Côte de Blaye'), (3, 'Tofu'), (4, 'Ikura')`,
		`INSERT INTO order_details VALUES (1, 1, 18, 10), (2, 2, 263.5, 10), (3, 3, 23.25, 4), (4, 4, 31, 12)`,
	} {
		if _, err := raw.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	_ = raw.Close()

	e, err := database.Open(context.Background(), database.Options{
		Name:         "sales",
		Dialect:      database.DialectSQLite,
		DSN:          path,
		MaxRows:      100,
		QueryTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newAnalyst(t *testing.T, model agent.ChatModel) (*AnalystService, *HistoryService) {
	t.Helper()
	history := newHistory(t)
	settings := agent.DefaultSettings()
	settings.RecursionLimit = 6
	s, err := NewAnalystService(AnalystOptions{
		Model:    model,
		Sources:  map[string]*database.Executor{"sales": newSalesExecutor(t)},
		Settings: settings,
		History:  history,
		Cache:    NewMemoryResultCache(time.Hour),
	})
	if err != nil {
		t.Fatalf("NewAnalystService() error = %v", err)
	}
	return s, history
}

func TestAnalyst_AskRecordsRun(t *testing.T) {
	model := &replayModel{replies: []string{
		"```sql\n" + revenueSQL + "\n```",
		"Côte de Blaye leads revenue.",
		"Côte de Blaye brings in the most revenue.",
	}}
	s, history := newAnalyst(t, model)

	var mu sync.Mutex
	var names []string
	s.Emitter().OnAny(func(ev event.Event) {
		mu.Lock()
		names = append(names, ev.EventName())
		mu.Unlock()
	})

	run, err := s.Ask(context.Background(), AskRequest{Question: "Top 3 products by revenue?", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if run.Termination != models.TerminationAnswered {
		t.Fatalf("termination = %s (%s: %s), want answered", run.Termination, run.ErrorKind, run.Message)
	}
	if run.Database != "sales" || run.SessionID != "s1" {
		t.Fatalf("run source/session = %q/%q", run.Database, run.SessionID)
	}
	if run.QueryResult == nil || run.QueryResult.RowCount != 3 {
		t.Fatalf("QueryResult = %+v, want 3 rows", run.QueryResult)
	}
	if run.ChartStatus != models.ChartStatusDerived {
		t.Fatalf("ChartStatus = %s, want derived", run.ChartStatus)
	}

	system := model.inputs[0][0].Content
	if !strings.Contains(system, "products(") || !strings.Contains(system, "SQLite") {
		t.Fatalf("system prompt lacks the schema summary:\n%s", system)
	}

	stored, err := history.Get(run.ID)
	if err != nil || stored.SQL == nil || stored.SQL.Statement != revenueSQL {
		t.Fatalf("history.Get() = %+v, %v", stored, err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{event.RunStarted, event.RunRound, event.RunRound, event.RunFinished}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", names, want)
	}
}

func TestAnalyst_FollowUpGetsPreviousContext(t *testing.T) {
	model := &replayModel{replies: []string{
		"```sql\n" + revenueSQL + "\n```",
		"Côte de Blaye leads revenue.",
		"Côte de Blaye brings in the most revenue.",
		"It is a red wine from Bordeaux.",
	}}
	s, _ := newAnalyst(t, model)
	ctx := context.Background()

	if _, err := s.Ask(ctx, AskRequest{Question: "Top 3 products by revenue?", SessionID: "s1"}); err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}
	run, err := s.Ask(ctx, AskRequest{Question: "What is the first one?", SessionID: "s1"})
	if err != nil || run.Termination != models.TerminationAnswered {
		t.Fatalf("follow-up Ask() = %+v, %v", run, err)
	}

	system := model.inputs[3][0].Content
	if !strings.Contains(system, "Top 3 products by revenue?") || !strings.Contains(system, "Côte de Blaye brings in the most revenue.") {
		t.Fatalf("follow-up prompt lacks the earlier analysis:\n%s", system)
	}
}

func TestAnalyst_Rechart(t *testing.T) {
	model := &replayModel{replies: []string{
		"```sql\n" + revenueSQL + "\n```",
		"Côte de Blaye leads revenue.",
		"Côte de Blaye brings in the most revenue.",
	}}
	s, _ := newAnalyst(t, model)
	ctx := context.Background()

	run, err := s.Ask(ctx, AskRequest{Question: "Top 3 products by revenue?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	spec, err := s.Rechart(ctx, run.ID, "pie")
	if err != nil {
		t.Fatalf("Rechart() error = %v", err)
	}
	if spec.Kind != models.ChartPie || len(spec.Labels) != 3 || spec.Labels[0] != "Côte de Blaye" {
		t.Fatalf("Rechart() = %+v", spec)
	}
	if _, err := s.Rechart(ctx, run.ID, "sunburst"); !errors.Is(err, ErrUnknownChart) {
		t.Fatalf("Rechart(sunburst) error = %v, want ErrUnknownChart", err)
	}
	if _, err := s.Rechart(ctx, "missing", ""); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Rechart(missing) error = %v, want ErrRunNotFound", err)
	}

	// Without the cache the stored result is used.
	s.cache = NewMemoryResultCache(time.Hour)
	spec, err = s.Rechart(ctx, run.ID, "")
	if err != nil || len(spec.Labels) != 3 {
		t.Fatalf("Rechart() from history = %+v, %v", spec, err)
	}
}

func TestAnalyst_SummarizeStoredRun(t *testing.T) {
	model := &replayModel{replies: []string{
		"```sql\nSELECT COUNT(*) AS n FROM products\n```",
		"There are 4 products.",
		"The catalogue lists 4 products.",
		"```sql\n" + revenueSQL + "\n```",
		"Côte de Blaye leads revenue.",
		"Côte de Blaye brings in the most revenue.",
		"A single premium wine outsells the other three products combined.",
	}}
	s, history := newAnalyst(t, model)
	ctx := context.Background()

	if _, err := s.Ask(ctx, AskRequest{Question: "How many products?", SessionID: "s1"}); err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}
	run, err := s.Ask(ctx, AskRequest{Question: "Top 3 products by revenue?", SessionID: "s1"})
	if err != nil || run.Insight == nil || run.Insight.Enhanced != "" {
		t.Fatalf("Ask() = %+v, %v, want an initial insight only", run, err)
	}

	ins, err := s.Summarize(ctx, run.ID)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if ins.Initial != "Côte de Blaye brings in the most revenue." || ins.Enhanced != "A single premium wine outsells the other three products combined." {
		t.Fatalf("Summarize() = %+v", ins)
	}

	inputs := model.inputs[len(model.inputs)-1]
	prompt := inputs[len(inputs)-1].Content
	for _, want := range []string{"Top 3 products by revenue?", "Previous Analysis 1:", "How many products?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("summary prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Previous Analysis 2:") {
		t.Fatalf("summary prompt includes the run itself as context:\n%s", prompt)
	}

	stored, err := history.Get(run.ID)
	if err != nil || stored.Insight == nil || stored.Insight.Enhanced != ins.Enhanced {
		t.Fatalf("history.Get() = %+v, %v, want the enhanced insight saved", stored, err)
	}

	if _, err := s.Summarize(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("Summarize(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestAnalyst_SummarizeNeedsInitialInsight(t *testing.T) {
	s, history := newAnalyst(t, &replayModel{})
	failed := answeredRun("r-failed", "s1", "broken", time.Now())
	failed.Termination = models.TerminationError
	if err := history.Save(failed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := s.Summarize(context.Background(), "r-failed"); !errors.Is(err, ErrNoInsight) {
		t.Fatalf("Summarize() error = %v, want ErrNoInsight", err)
	}
}

func TestAnalyst_AskRejectsBadRequests(t *testing.T) {
	s, _ := newAnalyst(t, &replayModel{})
	ctx := context.Background()

	if _, err := s.Ask(ctx, AskRequest{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("empty question error = %v", err)
	}
	if _, err := s.Ask(ctx, AskRequest{Question: "hi", Database: "chinook"}); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("unknown source error = %v", err)
	}
	if got := s.Sources(); len(got) != 1 || got[0] != "sales" || s.DefaultSource() != "sales" {
		t.Errorf("Sources() = %v, default %q", got, s.DefaultSource())
	}
}

func TestAnalyst_RecursionLimitOverride(t *testing.T) {
	model := &replayModel{replies: []string{
		"```sql\nSELECT 1\n```",
		"```sql\nSELECT 2\n```",
		"```sql\nSELECT 3\n```",
	}}
	s, _ := newAnalyst(t, model)
	limit := 2

	run, err := s.Ask(context.Background(), AskRequest{Question: "loop forever", RecursionLimit: &limit})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if run.Termination != models.TerminationRecursionLimit || run.Iterations != 2 {
		t.Fatalf("run = %s after %d iterations, want recursion_limit after 2", run.Termination, run.Iterations)
	}
}
