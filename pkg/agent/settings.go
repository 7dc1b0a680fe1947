package agent

const (
	DefaultRecursionLimit  = 50
	DefaultMaxSQLRetries   = 3
	DefaultMaxChartRetries = 1
	DefaultTopK            = 5
	DefaultPreviewRows     = 20
)

// Settings controls one run. It is passed by value; the orchestrator reads
// no process-wide configuration.
type Settings struct {
	// RecursionLimit bounds the model round-trips of the tool loop.
	RecursionLimit  int
	GenerateSummary bool
	// MaxSQLRetries is how many consecutive execution errors the model may
	// correct before the run fails.
	MaxSQLRetries int
	// MaxChartRetries is how many rejected charts the model may fix before
	// it is told to continue without one.
	MaxChartRetries int
	// DeriveChart builds a chart from the result when the model gave none.
	DeriveChart bool
	// TopK is the default row limit suggested to the model.
	TopK int
	// PreviewRows is the number of result rows echoed back to the model.
	PreviewRows int
}

func DefaultSettings() Settings {
	return Settings{
		RecursionLimit:  DefaultRecursionLimit,
		MaxSQLRetries:   DefaultMaxSQLRetries,
		MaxChartRetries: DefaultMaxChartRetries,
		DeriveChart:     true,
		TopK:            DefaultTopK,
		PreviewRows:     DefaultPreviewRows,
	}
}

// normalized fills unset limits. Zero retries are allowed; negative ones
// fall back to the defaults.
func (s Settings) normalized() Settings {
	if s.RecursionLimit <= 0 {
		s.RecursionLimit = DefaultRecursionLimit
	}
	if s.MaxSQLRetries < 0 {
		s.MaxSQLRetries = DefaultMaxSQLRetries
	}
	if s.MaxChartRetries < 0 {
		s.MaxChartRetries = DefaultMaxChartRetries
	}
	if s.TopK <= 0 {
		s.TopK = DefaultTopK
	}
	if s.PreviewRows <= 0 {
		s.PreviewRows = DefaultPreviewRows
	}
	return s
}
