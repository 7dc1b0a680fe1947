package models

import "time"

type TerminationReason string

const (
	TerminationAnswered       TerminationReason = "answered"
	TerminationRecursionLimit TerminationReason = "recursion_limit"
	TerminationError          TerminationReason = "error"
	TerminationCancelled      TerminationReason = "cancelled"
)

// ChartStatus separates "no chart was requested" from "a chart was requested but rejected".
type ChartStatus string

const (
	ChartStatusNone    ChartStatus = "none"
	ChartStatusInvalid ChartStatus = "invalid"
	ChartStatusModel   ChartStatus = "model"
	ChartStatusDerived ChartStatus = "derived"
)

// Machine-readable error kinds reported on AgentRun.ErrorKind.
const (
	ErrorKindMalformedArtifact = "malformed_artifact"
	ErrorKindExecution         = "execution"
	ErrorKindConnection        = "connection"
	ErrorKindGeneration        = "generation"
	ErrorKindModel             = "model"
	ErrorKindCancelled         = "cancelled"
)

// Insight is the two-stage narrative produced after a successful loop.
type Insight struct {
	Initial          string       `json:"initial"`
	Enhanced         string       `json:"enhanced,omitempty"`
	Degraded         bool         `json:"degraded"`
	EnhancementError string       `json:"enhancement_error,omitempty"`
	Result           *QueryResult `json:"-"`
	Chart            *ChartSpec   `json:"-"`
}

// PriorAnalysis is an earlier answered question fed into follow-ups.
type PriorAnalysis struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Summary  string `json:"summary"`
}

// AgentRun is the outcome of one question, whatever the termination reason.
type AgentRun struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id,omitempty"`
	Database    string            `json:"database,omitempty"`
	Question    string            `json:"question"`
	Iterations  int               `json:"iterations"`
	Termination TerminationReason `json:"termination"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Message     string            `json:"message,omitempty"`
	SQL         *SQLArtifact      `json:"sql,omitempty"`
	QueryResult *QueryResult      `json:"query_result,omitempty"`
	Chart       *ChartSpec        `json:"chart,omitempty"`
	ChartStatus ChartStatus       `json:"chart_status"`
	ChartError  string            `json:"chart_error,omitempty"`
	Insight     *Insight          `json:"insight,omitempty"`
	Answer      string            `json:"answer,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Succeeded reports whether the run reached a final answer.
func (r *AgentRun) Succeeded() bool {
	return r.Termination == TerminationAnswered
}
