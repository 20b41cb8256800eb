package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced directly to the caller.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrConflict        = errors.New("session removed concurrently")
)

// PhaseConflictError is returned when a caller invokes an interface that is
// not legal for the session's current phase.
type PhaseConflictError struct {
	SessionID string
	Current   string
	Expected  string
}

func (e *PhaseConflictError) Error() string {
	return fmt.Sprintf("phase conflict: session %s is %s, expected %s", e.SessionID, e.Current, e.Expected)
}

// InvalidTransitionError signals an illegal phase edge. This is an internal
// invariant violation, not a caller error.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}

// StageError wraps a stage failure with its retry classification. Stages
// return these from Assess; the pipeline runner retries Retryable errors with
// backoff and halts on fatal ones.
type StageError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *StageError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("stage %s: %s failure: %v", e.Stage, kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageRetryable marks err as a transient stage failure.
func StageRetryable(stage string, err error) error {
	return &StageError{Stage: stage, Retryable: true, Err: err}
}

// StageFatal marks err as a non-recoverable stage failure.
func StageFatal(stage string, err error) error {
	return &StageError{Stage: stage, Retryable: false, Err: err}
}

// IsRetryable reports whether err is a stage error classified as transient.
func IsRetryable(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Retryable
}
