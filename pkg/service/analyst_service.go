package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/choraleia/analyst/pkg/agent"
	"github.com/choraleia/analyst/pkg/chart"
	"github.com/choraleia/analyst/pkg/event"
	"github.com/choraleia/analyst/pkg/insight"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/tools/database"
	"github.com/choraleia/analyst/pkg/utils"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrUnknownSource = errors.New("unknown database source")
	ErrNoResult      = errors.New("run has no query result")
	ErrUnknownChart  = errors.New("unsupported chart kind")
	ErrNoInsight     = errors.New("run has no initial insight")
)

const defaultContextRuns = 3

// AskRequest is one question from the CLI or the HTTP API. Nil overrides
// fall back to the service settings.
type AskRequest struct {
	Question        string `json:"question"`
	Database        string `json:"database,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	RecursionLimit  *int   `json:"recursion_limit,omitempty"`
	GenerateSummary *bool  `json:"generate_summary,omitempty"`
}

// AnalystOptions configures NewAnalystService. Only Model and Sources are
// required.
type AnalystOptions struct {
	Model         agent.ChatModel
	Sources       map[string]*database.Executor
	DefaultSource string
	Settings      agent.Settings
	History       *HistoryService
	Cache         ResultCache
	Examples      *ExampleMemory
	Emitter       *event.Emitter
	// ContextRuns is how many earlier answers of a session are passed to a follow-up.
	ContextRuns int
}

// AnalystService answers questions against named database sources and
// keeps what is needed to revisit a run later.
type AnalystService struct {
	sources       map[string]*database.Executor
	orchestrators map[string]*agent.Orchestrator
	defaultSource string
	settings      agent.Settings
	history       *HistoryService
	cache         ResultCache
	examples      *ExampleMemory
	emitter       *event.Emitter
	insights      *insight.Generator
	contextRuns   int

	schemaMu sync.Mutex
	schemas  map[string]*database.Schema

	logger *slog.Logger
}

func NewAnalystService(opts AnalystOptions) (*AnalystService, error) {
	if opts.Model == nil {
		return nil, errors.New("analyst service needs a chat model")
	}
	if len(opts.Sources) == 0 {
		return nil, errors.New("analyst service needs at least one database source")
	}
	s := &AnalystService{
		sources:       opts.Sources,
		orchestrators: make(map[string]*agent.Orchestrator, len(opts.Sources)),
		defaultSource: opts.DefaultSource,
		settings:      opts.Settings,
		history:       opts.History,
		cache:         opts.Cache,
		examples:      opts.Examples,
		emitter:       opts.Emitter,
		contextRuns:   opts.ContextRuns,
		schemas:       make(map[string]*database.Schema),
		logger:        utils.GetLogger(),
	}
	if s.cache == nil {
		s.cache = NewMemoryResultCache(time.Hour)
	}
	if s.emitter == nil {
		s.emitter = event.NewEmitter()
	}
	if s.contextRuns <= 0 {
		s.contextRuns = defaultContextRuns
	}
	if _, ok := s.sources[s.defaultSource]; !ok {
		if s.defaultSource != "" {
			return nil, errors.Wrapf(ErrUnknownSource, "default source %q", s.defaultSource)
		}
		s.defaultSource = s.Sources()[0]
	}

	s.insights = insight.NewGenerator(opts.Model)
	charts := chart.NewProcessor()
	for name, executor := range s.sources {
		s.orchestrators[name] = agent.NewOrchestrator(opts.Model, executor, charts, s.insights)
	}
	return s, nil
}

// Sources returns the configured source names in sorted order.
func (s *AnalystService) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *AnalystService) DefaultSource() string {
	return s.defaultSource
}

// Emitter returns the emitter run events are published on.
func (s *AnalystService) Emitter() *event.Emitter {
	return s.emitter
}

// Ping checks every source and returns the failures by source name.
func (s *AnalystService) Ping(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for name, executor := range s.sources {
		if err := executor.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

func (s *AnalystService) resolve(name string) (string, *database.Executor, error) {
	if strings.TrimSpace(name) == "" {
		name = s.defaultSource
	}
	executor, ok := s.sources[name]
	if !ok {
		return "", nil, errors.Wrapf(ErrUnknownSource, "%q", name)
	}
	return name, executor, nil
}

// Schema describes a source. Schemas are cached for the life of the service.
func (s *AnalystService) Schema(ctx context.Context, source string) (*database.Schema, error) {
	name, executor, err := s.resolve(source)
	if err != nil {
		return nil, err
	}
	s.schemaMu.Lock()
	cached, ok := s.schemas[name]
	s.schemaMu.Unlock()
	if ok {
		return cached, nil
	}

	schema, err := executor.DescribeSchema(ctx)
	if err != nil {
		return nil, err
	}
	s.schemaMu.Lock()
	s.schemas[name] = schema
	s.schemaMu.Unlock()
	return schema, nil
}

// Ask runs one question to completion. The error is non-nil only for
// requests that cannot start a run; every other outcome is described by
// the returned AgentRun.
func (s *AnalystService) Ask(ctx context.Context, req AskRequest) (*models.AgentRun, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	name, executor, err := s.resolve(req.Database)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	s.emitter.Emit(event.RunStartedEvent{RunID: runID, SessionID: req.SessionID, Database: name, Question: question})

	var run *models.AgentRun
	schema, err := s.Schema(ctx, name)
	if err != nil {
		run = failedRun(runID, question, err)
	} else {
		run = s.orchestrators[name].Run(ctx, agent.Request{
			RunID:           runID,
			Question:        question,
			Schema:          schema.Summary(),
			Dialect:         executor.Dialect().DisplayName(),
			Settings:        s.settingsFor(req),
			PreviousContext: s.previousContext(req.SessionID),
			Examples:        s.similarExamples(ctx, name, question),
			Observer:        s.observe,
		})
	}
	run.SessionID = req.SessionID
	run.Database = name

	s.record(ctx, run)
	s.emitter.Emit(event.RunFinishedEvent{
		RunID:       run.ID,
		Termination: string(run.Termination),
		ErrorKind:   run.ErrorKind,
		Iterations:  run.Iterations,
		ChartStatus: string(run.ChartStatus),
	})
	return run, nil
}

func (s *AnalystService) settingsFor(req AskRequest) agent.Settings {
	settings := s.settings
	if req.RecursionLimit != nil {
		settings.RecursionLimit = *req.RecursionLimit
	}
	if req.GenerateSummary != nil {
		settings.GenerateSummary = *req.GenerateSummary
	}
	return settings
}

func (s *AnalystService) previousContext(sessionID string) []models.PriorAnalysis {
	if s.history == nil || sessionID == "" {
		return nil
	}
	prior, err := s.history.PreviousContext(sessionID, s.contextRuns)
	if err != nil {
		s.logger.Warn("Failed to load previous context", "sessionID", sessionID, "error", err)
		return nil
	}
	return prior
}

func (s *AnalystService) similarExamples(ctx context.Context, source, question string) []agent.Example {
	if s.examples == nil {
		return nil
	}
	topK := s.settings.TopK
	if topK <= 0 {
		topK = agent.DefaultTopK
	}
	examples, err := s.examples.Similar(ctx, source, question, topK)
	if err != nil {
		s.logger.Warn("Failed to search examples", "source", source, "error", err)
		return nil
	}
	return examples
}

func (s *AnalystService) observe(round agent.RoundEvent) {
	s.emitter.Emit(event.RunRoundEvent{
		RunID:     round.RunID,
		Iteration: round.Iteration,
		Output:    round.Output,
		Requests:  round.Requests,
		Statement: round.Statement,
		RowCount:  round.RowCount,
		Error:     round.Error,
	})
}

// record stores the run for later lookups. Failures are logged; the caller
// still gets the run.
func (s *AnalystService) record(ctx context.Context, run *models.AgentRun) {
	if s.history != nil {
		if err := s.history.Save(run); err != nil {
			s.logger.Error("Failed to save run", "runID", run.ID, "error", err)
		}
	}
	if run.QueryResult != nil {
		if err := s.cache.Put(context.WithoutCancel(ctx), run.ID, run.QueryResult); err != nil {
			s.logger.Warn("Failed to cache result", "runID", run.ID, "error", err)
		}
	}
	if s.examples != nil && run.Succeeded() && run.SQL != nil {
		if err := s.examples.Remember(context.WithoutCancel(ctx), run.Database, run.Question, run.SQL.Statement); err != nil {
			s.logger.Warn("Failed to remember example", "runID", run.ID, "error", err)
		}
	}
}

// Rechart derives a new chart from the stored result of a run without
// calling the model. An empty kind picks one from the question.
func (s *AnalystService) Rechart(ctx context.Context, runID, kind string) (*models.ChartSpec, error) {
	result, question, err := s.storedResult(ctx, runID)
	if err != nil {
		return nil, err
	}

	chartKind := chart.RecommendKind(question, result)
	if strings.TrimSpace(kind) != "" {
		parsed, ok := models.ParseChartKind(kind)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownChart, "%q", kind)
		}
		chartKind = parsed
	}
	return chart.Derive(result, chartKind)
}

// Summarize adds the business-context insight to a stored run that was
// answered without it, using the earlier answers of its session. The updated
// insight is saved back to history.
func (s *AnalystService) Summarize(ctx context.Context, runID string) (*models.Insight, error) {
	if s.history == nil {
		return nil, ErrRunNotFound
	}
	run, err := s.history.Get(runID)
	if err != nil {
		return nil, err
	}
	if run.Insight == nil || run.Insight.Initial == "" {
		return nil, ErrNoInsight
	}
	result, _, err := s.storedResult(ctx, runID)
	if err != nil {
		return nil, err
	}

	prior, err := s.history.ContextBefore(run.SessionID, run.StartedAt, s.contextRuns)
	if err != nil {
		s.logger.Warn("Failed to load previous context", "sessionID", run.SessionID, "error", err)
	}
	req := insight.Request{
		Question:        run.Question,
		Result:          result,
		Chart:           run.Chart,
		PreviousContext: prior,
		PreviewRows:     s.settings.PreviewRows,
	}
	if run.SQL != nil {
		req.SQL = run.SQL.Statement
	}
	enhanced, err := s.insights.Enhance(ctx, req, run.Insight.Initial)
	if err != nil {
		return nil, err
	}

	run.Insight.Enhanced = enhanced
	run.Insight.Degraded = false
	run.Insight.EnhancementError = ""
	if err := s.history.Save(run); err != nil {
		return nil, err
	}
	run.Insight.Result = result
	run.Insight.Chart = run.Chart
	return run.Insight, nil
}

func (s *AnalystService) storedResult(ctx context.Context, runID string) (*models.QueryResult, string, error) {
	var question string
	var run *models.AgentRun
	if s.history != nil {
		stored, err := s.history.Get(runID)
		if err != nil && !errors.Is(err, ErrRunNotFound) {
			return nil, "", err
		}
		if stored != nil {
			run = stored
			question = stored.Question
		}
	}

	result, err := s.cache.Get(ctx, runID)
	if err == nil {
		return result, question, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Result cache lookup failed", "runID", runID, "error", err)
	}
	if run == nil {
		return nil, "", ErrRunNotFound
	}
	if run.QueryResult == nil {
		return nil, "", ErrNoResult
	}
	return run.QueryResult, question, nil
}

// failedRun describes a run that could not reach the model, e.g. because
// the schema of an unreachable source could not be read.
func failedRun(id, question string, err error) *models.AgentRun {
	now := time.Now()
	run := &models.AgentRun{
		ID:          id,
		Question:    question,
		Termination: models.TerminationError,
		ErrorKind:   agent.ErrorKind(err),
		Message:     fmt.Sprintf("failed to read schema: %v", err),
		ChartStatus: models.ChartStatusNone,
		StartedAt:   now,
		FinishedAt:  now,
	}
	if run.ErrorKind == models.ErrorKindCancelled {
		run.Termination = models.TerminationCancelled
	}
	return run
}
