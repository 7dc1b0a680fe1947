package chart

import "fmt"

// ValidationError means a chart was described but cannot be drawn as given.
// The processor never returns a partial spec alongside it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid chart: " + e.Reason
}

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
