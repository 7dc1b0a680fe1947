package service

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/choraleia/analyst/pkg/db"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/utils"
)

var ErrRunNotFound = errors.New("run not found")

const defaultHistoryLimit = 50

// HistoryService persists finished runs and feeds earlier answers of a
// session into follow-up questions.
type HistoryService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewHistoryService(database *gorm.DB) *HistoryService {
	return &HistoryService{db: database, logger: utils.GetLogger()}
}

// Save stores run, replacing an earlier record with the same ID.
func (s *HistoryService) Save(run *models.AgentRun) error {
	record, err := toRecord(run)
	if err != nil {
		return err
	}
	if err := s.db.Save(record).Error; err != nil {
		return errors.Wrapf(err, "save run %s", run.ID)
	}
	return nil
}

// Get returns the stored run, including its result and chart.
func (s *HistoryService) Get(id string) (*models.AgentRun, error) {
	var record db.AnalysisRun
	if err := s.db.First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, errors.Wrapf(err, "load run %s", id)
	}
	return fromRecord(&record)
}

// List returns runs newest first. An empty sessionID lists every session.
func (s *HistoryService) List(sessionID string, limit, offset int) ([]db.AnalysisRun, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := s.db.Model(&db.AnalysisRun{}).Order("created_at DESC").Limit(limit).Offset(offset)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	var runs []db.AnalysisRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}

// PreviousContext returns up to n answered runs of the session, oldest first.
func (s *HistoryService) PreviousContext(sessionID string, n int) ([]models.PriorAnalysis, error) {
	return s.ContextBefore(sessionID, time.Now(), n)
}

// ContextBefore is PreviousContext limited to runs created before t.
func (s *HistoryService) ContextBefore(sessionID string, t time.Time, n int) ([]models.PriorAnalysis, error) {
	if sessionID == "" || n <= 0 {
		return nil, nil
	}
	var runs []db.AnalysisRun
	err := s.db.Where("session_id = ? AND termination = ? AND created_at < ?", sessionID, string(models.TerminationAnswered), t).
		Order("created_at DESC").
		Limit(n).
		Find(&runs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load context of session %s", sessionID)
	}

	prior := make([]models.PriorAnalysis, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		summary := r.EnhancedInsight
		if summary == "" {
			summary = r.InitialInsight
		}
		if summary == "" {
			summary = r.Answer
		}
		prior = append(prior, models.PriorAnalysis{Question: r.Question, SQL: r.SQL, Summary: summary})
	}
	return prior, nil
}

func toRecord(run *models.AgentRun) (*db.AnalysisRun, error) {
	record := &db.AnalysisRun{
		ID:          run.ID,
		SessionID:   run.SessionID,
		Database:    run.Database,
		Question:    run.Question,
		Termination: string(run.Termination),
		ErrorKind:   run.ErrorKind,
		Message:     run.Message,
		Iterations:  run.Iterations,
		Answer:      run.Answer,
		ChartStatus: string(run.ChartStatus),
		ChartError:  run.ChartError,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		CreatedAt:   run.StartedAt,
	}
	if run.SQL != nil {
		record.SQL = run.SQL.Statement
	}
	if run.Insight != nil {
		record.InitialInsight = run.Insight.Initial
		record.EnhancedInsight = run.Insight.Enhanced
		record.InsightDegraded = run.Insight.Degraded
		record.InsightError = run.Insight.EnhancementError
	}
	if run.QueryResult != nil {
		b, err := json.Marshal(run.QueryResult)
		if err != nil {
			return nil, errors.Wrap(err, "encode query result")
		}
		record.ResultJSON = string(b)
	}
	if run.Chart != nil {
		b, err := json.Marshal(run.Chart)
		if err != nil {
			return nil, errors.Wrap(err, "encode chart")
		}
		record.ChartJSON = string(b)
	}
	return record, nil
}

func fromRecord(record *db.AnalysisRun) (*models.AgentRun, error) {
	run := &models.AgentRun{
		ID:          record.ID,
		SessionID:   record.SessionID,
		Database:    record.Database,
		Question:    record.Question,
		Iterations:  record.Iterations,
		Termination: models.TerminationReason(record.Termination),
		ErrorKind:   record.ErrorKind,
		Message:     record.Message,
		ChartStatus: models.ChartStatus(record.ChartStatus),
		ChartError:  record.ChartError,
		Answer:      record.Answer,
		StartedAt:   record.StartedAt,
		FinishedAt:  record.FinishedAt,
	}
	if record.SQL != "" {
		run.SQL = &models.SQLArtifact{Statement: record.SQL}
	}
	if record.InitialInsight != "" {
		run.Insight = &models.Insight{
			Initial:          record.InitialInsight,
			Enhanced:         record.EnhancedInsight,
			Degraded:         record.InsightDegraded,
			EnhancementError: record.InsightError,
		}
	}
	if record.ResultJSON != "" {
		var result models.QueryResult
		if err := json.Unmarshal([]byte(record.ResultJSON), &result); err != nil {
			return nil, errors.Wrapf(err, "decode result of run %s", record.ID)
		}
		run.QueryResult = &result
	}
	if record.ChartJSON != "" {
		var spec models.ChartSpec
		if err := json.Unmarshal([]byte(record.ChartJSON), &spec); err != nil {
			return nil, errors.Wrapf(err, "decode chart of run %s", record.ID)
		}
		run.Chart = &spec
	}
	return run, nil
}
