// Package agent drives a chat model through the SQL and chart tool loop and
// assembles the resulting AgentRun.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/choraleia/analyst/pkg/chart"
	"github.com/choraleia/analyst/pkg/insight"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/parser"
	"github.com/choraleia/analyst/pkg/tools"
	"github.com/choraleia/analyst/pkg/tools/database"
	"github.com/choraleia/analyst/pkg/utils"
)

// ChatModel is satisfied by every eino chat model. Models that also
// implement einoModel.ToolCallingChatModel get run_sql and render_chart bound.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error)
}

type Executor interface {
	Execute(ctx context.Context, art *models.SQLArtifact) (*models.QueryResult, error)
}

type ChartProcessor interface {
	Process(text string, result *models.QueryResult) (*models.ChartSpec, error)
}

type InsightGenerator interface {
	Summarize(ctx context.Context, req insight.Request) (*models.Insight, error)
}

// Example is a previously successful question and its SQL, shown as a hint.
type Example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// RoundEvent describes one completed model round.
type RoundEvent struct {
	RunID     string   `json:"run_id"`
	Iteration int      `json:"iteration"`
	Output    string   `json:"output"`
	Requests  []string `json:"requests,omitempty"`
	Statement string   `json:"statement,omitempty"`
	RowCount  int      `json:"row_count,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type Observer func(RoundEvent)

type Request struct {
	// RunID is used as AgentRun.ID when set.
	RunID    string
	Question string
	// Schema is the table summary placed in the system prompt.
	Schema          string
	Dialect         string
	Settings        Settings
	PreviousContext []models.PriorAnalysis
	Examples        []Example
	Observer        Observer
}

type Orchestrator struct {
	model    ChatModel
	executor Executor
	charts   ChartProcessor
	insights InsightGenerator
	native   bool
	logger   *slog.Logger
}

// NewOrchestrator wires the collaborators of a run. charts defaults to a
// chart.Processor; a nil insights skips insight generation.
func NewOrchestrator(model ChatModel, executor Executor, charts ChartProcessor, insights InsightGenerator) *Orchestrator {
	o := &Orchestrator{
		model:    model,
		executor: executor,
		charts:   charts,
		insights: insights,
		logger:   utils.GetLogger(),
	}
	if o.charts == nil {
		o.charts = chart.NewProcessor()
	}
	if tcm, ok := model.(einoModel.ToolCallingChatModel); ok {
		bound, err := tcm.WithTools(tools.ToolInfos(tools.ToolRunSQL, tools.ToolRenderChart))
		if err != nil {
			o.logger.Warn("Failed to bind tools, falling back to text blocks", "error", err)
		} else {
			o.model = bound
			o.native = true
		}
	}
	return o
}

// Native reports whether the model receives tools through native tool calling.
func (o *Orchestrator) Native() bool {
	return o.native
}

type loop struct {
	o        *Orchestrator
	req      Request
	settings Settings
	run      *models.AgentRun
	messages []*schema.Message

	sqlFailures   int
	chartFailures int
}

// Run answers one question. It always returns a well-formed AgentRun; the
// termination reason and error kind describe how the run ended.
func (o *Orchestrator) Run(ctx context.Context, req Request) *models.AgentRun {
	settings := req.Settings.normalized()
	run := &models.AgentRun{
		ID:          req.RunID,
		Question:    req.Question,
		ChartStatus: models.ChartStatusNone,
		StartedAt:   time.Now(),
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	l := &loop{o: o, req: req, settings: settings, run: run}
	l.messages = []*schema.Message{
		schema.SystemMessage(o.systemMessage(req, settings)),
		schema.UserMessage(req.Question),
	}

	if l.iterate(ctx) {
		l.finalize(ctx)
	}
	run.FinishedAt = time.Now()

	o.logger.Info("Agent run finished",
		"runID", run.ID,
		"termination", run.Termination,
		"iterations", run.Iterations,
		"errorKind", run.ErrorKind,
		"chartStatus", run.ChartStatus)
	return run
}

// iterate runs the tool loop. It returns false when the run already ended
// with an error or cancellation.
func (l *loop) iterate(ctx context.Context) bool {
	for {
		if err := ctx.Err(); err != nil {
			l.fail(err)
			return false
		}
		if l.run.Iterations >= l.settings.RecursionLimit {
			l.run.Termination = models.TerminationRecursionLimit
			l.run.Message = fmt.Sprintf("no final answer within %d rounds", l.settings.RecursionLimit)
			return true
		}

		l.run.Iterations++
		resp, err := l.o.model.Generate(ctx, l.messages)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			l.observe(RoundEvent{Output: "error", Error: err.Error()})
			l.fail(err)
			return false
		}
		if resp == nil {
			resp = schema.AssistantMessage("", nil)
		}
		l.messages = append(l.messages, resp)

		out := parser.Parse(resp)
		for i := range resp.ToolCalls {
			if resp.ToolCalls[i].ID == "" && i < len(out.Requests) {
				resp.ToolCalls[i].ID = out.Requests[i].ToolCallID
			}
		}
		if out.Kind == parser.NoArtifact {
			l.run.Answer = out.Text
			l.run.Termination = models.TerminationAnswered
			l.observe(RoundEvent{Output: out.Kind.String()})
			return true
		}

		turns, err := l.handle(ctx, out, len(l.messages)-1)
		event := RoundEvent{Output: out.Kind.String()}
		for _, r := range out.Requests {
			event.Requests = append(event.Requests, r.Name())
			if event.Error == "" && r.Err != nil {
				event.Error = r.Err.Error()
			}
		}
		if l.run.SQL != nil && l.run.SQL.TurnIndex == len(l.messages)-1 {
			event.Statement = l.run.SQL.Statement
			event.RowCount = l.run.QueryResult.RowCount
		}
		if err != nil {
			event.Error = err.Error()
			l.observe(event)
			l.fail(err)
			return false
		}
		l.observe(event)
		l.messages = append(l.messages, turns...)
	}
}

type toolResult struct {
	req     parser.Request
	content string
}

// handle executes the requests of one round in the order the model issued
// them. A non-nil error ends the run.
func (l *loop) handle(ctx context.Context, out *parser.Output, turnIndex int) ([]*schema.Message, error) {
	var (
		results   []toolResult
		sqlDone   bool
		chartDone bool
	)
	for _, r := range out.Requests {
		var content string
		switch {
		case r.Err != nil:
			l.o.logger.Debug("Malformed tool request", "runID", l.run.ID, "tool", r.Name(), "error", r.Err)
			content = fmt.Sprintf(msgMalformed, r.Err)
		case r.Type == parser.RequestSQL && sqlDone:
			content = msgSkippedSQL
		case r.Type == parser.RequestSQL:
			sqlDone = true
			var err error
			content, err = l.runSQL(ctx, r, turnIndex)
			if err != nil {
				return nil, err
			}
		case r.Type == parser.RequestChart && chartDone:
			content = msgSkippedChart
		case r.Type == parser.RequestChart:
			chartDone = true
			content = l.renderChart(r)
		default:
			content = fmt.Sprintf(msgMalformed, "unsupported request "+r.Name())
		}
		results = append(results, toolResult{req: r, content: content})
	}
	return resultTurns(results), nil
}

func (l *loop) runSQL(ctx context.Context, r parser.Request, turnIndex int) (string, error) {
	art := &models.SQLArtifact{Statement: r.Statement, TurnIndex: turnIndex}
	if r.Native() {
		art.ToolCallID = r.ToolCallID
	}

	res, err := l.o.executor.Execute(ctx, art)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var connErr *database.ConnectionError
		if errors.As(err, &connErr) {
			return "", err
		}
		var execErr *database.ExecutionError
		if !errors.As(err, &execErr) {
			err = &database.ExecutionError{Message: err.Error(), Statement: art.Statement, Err: err}
		}

		l.sqlFailures++
		l.o.logger.Debug("Query failed", "runID", l.run.ID, "attempt", l.sqlFailures, "error", err)
		if l.sqlFailures > l.settings.MaxSQLRetries {
			return "", fmt.Errorf("%d consecutive queries failed: %w", l.sqlFailures, err)
		}
		return fmt.Sprintf(msgExecutionFailed, err), nil
	}

	l.sqlFailures = 0
	l.run.SQL = art
	l.run.QueryResult = res
	preview := res.Preview(l.settings.PreviewRows)
	return fmt.Sprintf(msgResultHeaderText, res.RowCount, strings.Join(res.Columns, ", "), preview.Table()), nil
}

func (l *loop) renderChart(r parser.Request) string {
	spec, err := l.o.charts.Process(r.ChartPayload, l.run.QueryResult)
	if err == nil && spec == nil {
		err = &chart.ValidationError{Reason: "no chart JSON found"}
	}
	if err != nil {
		l.chartFailures++
		l.run.ChartError = err.Error()
		if l.run.Chart == nil {
			l.run.ChartStatus = models.ChartStatusInvalid
		}
		if l.chartFailures > l.settings.MaxChartRetries {
			return fmt.Sprintf(msgChartGiveUp, err)
		}
		return fmt.Sprintf(msgChartRetry, err)
	}

	l.run.Chart = spec
	l.run.ChartStatus = models.ChartStatusModel
	l.run.ChartError = ""
	return fmt.Sprintf(msgChartAccepted, spec.Kind, len(spec.Labels), len(spec.Datasets))
}

// resultTurns answers native tool calls with one tool message each and
// text-block requests with a single user turn.
func resultTurns(results []toolResult) []*schema.Message {
	if len(results) == 0 {
		return nil
	}
	if results[0].req.Native() {
		turns := make([]*schema.Message, 0, len(results))
		for _, res := range results {
			turns = append(turns, &schema.Message{
				Role:       schema.Tool,
				Content:    res.content,
				ToolCallID: res.req.ToolCallID,
				ToolName:   res.req.Name(),
			})
		}
		return turns
	}

	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, fmt.Sprintf("Tool result (%s):\n%s", res.req.Name(), res.content))
	}
	return []*schema.Message{schema.UserMessage(strings.Join(parts, "\n\n"))}
}

// finalize derives a missing chart and, for answered runs with a result,
// generates the insight.
func (l *loop) finalize(ctx context.Context) {
	run := l.run
	if run.QueryResult == nil {
		return
	}
	if run.Chart == nil && l.settings.DeriveChart {
		kind := chart.RecommendKind(run.Question, run.QueryResult)
		spec, err := chart.Derive(run.QueryResult, kind)
		if err != nil {
			l.o.logger.Debug("No chart derived", "runID", run.ID, "error", err)
		} else {
			run.Chart = spec
			run.ChartStatus = models.ChartStatusDerived
		}
	}

	if run.Termination != models.TerminationAnswered || l.o.insights == nil {
		return
	}
	ins, err := l.o.insights.Summarize(ctx, insight.Request{
		Question:        run.Question,
		SQL:             run.SQL.Statement,
		Result:          run.QueryResult,
		Chart:           run.Chart,
		GenerateSummary: l.settings.GenerateSummary,
		PreviousContext: l.req.PreviousContext,
		PreviewRows:     l.settings.PreviewRows,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		l.fail(err)
		return
	}
	run.Insight = ins
}

// fail ends the run with the termination matching err.
func (l *loop) fail(err error) {
	kind := ErrorKind(err)
	l.run.ErrorKind = kind
	l.run.Message = err.Error()
	if kind == models.ErrorKindCancelled {
		l.run.Termination = models.TerminationCancelled
		return
	}
	l.run.Termination = models.TerminationError
}

func (l *loop) observe(ev RoundEvent) {
	if l.req.Observer == nil {
		return
	}
	ev.RunID = l.run.ID
	ev.Iteration = l.run.Iterations
	l.req.Observer(ev)
}
