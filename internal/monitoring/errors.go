package monitoring

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline errors.
type ErrorKind string

const (
	KindCollection    ErrorKind = "collection"
	KindOverrun       ErrorKind = "overrun"
	KindEvaluation    ErrorKind = "evaluation"
	KindConfiguration ErrorKind = "configuration"
)

var (
	ErrInvalidConfig      = errors.New("invalid monitoring configuration")
	ErrNilSnapshot        = errors.New("nil snapshot")
	ErrOutOfOrder         = errors.New("snapshot timestamp precedes history tail")
	ErrTickInProgress     = errors.New("tick already in progress")
	ErrAlreadyStarted     = errors.New("already started")
	ErrNotStarted         = errors.New("not started")
	ErrStopped            = errors.New("already stopped")
	ErrDuplicateCollector = errors.New("collector already registered")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrMissingMetric      = errors.New("metric missing from snapshot")
)

// PipelineError carries the kind of failure and the operation that produced it.
type PipelineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

func configError(format string, args ...interface{}) error {
	return newError(KindConfiguration, "validate", fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
}

// IsKind reports whether err is a PipelineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Kind == kind
}
