package parser

import "fmt"

// MalformedArtifactError reports a tool request that was recognised but cannot be used.
type MalformedArtifactError struct {
	Reason string
	// Raw is the offending block or tool arguments as the model wrote them.
	Raw string
	Err error
}

func (e *MalformedArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed artifact: %s: %v", e.Reason, e.Err)
	}
	return "malformed artifact: " + e.Reason
}

func (e *MalformedArtifactError) Unwrap() error { return e.Err }

func malformed(reason, raw string, err error) *MalformedArtifactError {
	return &MalformedArtifactError{Reason: reason, Raw: raw, Err: err}
}
