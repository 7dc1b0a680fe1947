package insight

import "fmt"

// GenerationError is a failed insight model call. Stage 1 failures end the
// run; Stage 2 failures only degrade the insight.
type GenerationError struct {
	Stage int
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("insight stage %d failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
