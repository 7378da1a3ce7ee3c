package pipeline

import "fmt"

// FailureKind classifies per-photo step failures.
type FailureKind string

const (
	FailureInvalidInput      FailureKind = "invalid_input"
	FailureUnsupportedFormat FailureKind = "unsupported_format"
	FailureEncodeError       FailureKind = "encode_error"
)

// StepFailure aborts the current photo's fold only; the batch continues with
// the next photo.
type StepFailure struct {
	Kind    FailureKind
	Message string
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func failf(kind FailureKind, format string, args ...any) *StepFailure {
	return &StepFailure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
