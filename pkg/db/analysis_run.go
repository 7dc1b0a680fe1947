// Database models for persisted analyst runs
package db

import "time"

// AnalysisRun is one answered (or failed) question. Result and chart are
// stored as JSON documents.
type AnalysisRun struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	SessionID       string    `json:"session_id,omitempty" gorm:"index;size:64"`
	Database        string    `json:"database" gorm:"size:100"`
	Question        string    `json:"question" gorm:"type:text;not null"`
	SQL             string    `json:"sql,omitempty" gorm:"column:sql_text;type:text"`
	Termination     string    `json:"termination" gorm:"size:20;index"`
	ErrorKind       string    `json:"error_kind,omitempty" gorm:"size:30"`
	Message         string    `json:"message,omitempty" gorm:"type:text"`
	Iterations      int       `json:"iterations"`
	Answer          string    `json:"answer,omitempty" gorm:"type:text"`
	InitialInsight  string    `json:"initial_insight,omitempty" gorm:"type:text"`
	EnhancedInsight string    `json:"enhanced_insight,omitempty" gorm:"type:text"`
	InsightDegraded bool      `json:"insight_degraded"`
	InsightError    string    `json:"insight_error,omitempty" gorm:"type:text"`
	ChartStatus     string    `json:"chart_status" gorm:"size:20"`
	ChartError      string    `json:"chart_error,omitempty" gorm:"type:text"`
	ResultJSON      string    `json:"-" gorm:"type:text"`
	ChartJSON       string    `json:"-" gorm:"type:text"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

func (AnalysisRun) TableName() string {
	return "analysis_runs"
}
