package event

const (
	RunStarted  = "run.started"
	RunRound    = "run.round"
	RunFinished = "run.finished"
)

// RunStartedEvent is emitted before the first model round.
type RunStartedEvent struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id,omitempty"`
	Database  string `json:"database"`
	Question  string `json:"question"`
}

func (e RunStartedEvent) EventName() string { return RunStarted }

// RunRoundEvent is emitted after every model round.
type RunRoundEvent struct {
	RunID     string   `json:"run_id"`
	Iteration int      `json:"iteration"`
	Output    string   `json:"output"`
	Requests  []string `json:"requests,omitempty"`
	Statement string   `json:"statement,omitempty"`
	RowCount  int      `json:"row_count,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (e RunRoundEvent) EventName() string { return RunRound }

// RunFinishedEvent is emitted once the run has a termination reason.
type RunFinishedEvent struct {
	RunID       string `json:"run_id"`
	Termination string `json:"termination"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Iterations  int    `json:"iterations"`
	ChartStatus string `json:"chart_status"`
}

func (e RunFinishedEvent) EventName() string { return RunFinished }
