package workbench

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the Manager.
var (
	ErrTabLimitReached    = errors.New("tab limit reached: save or close a tab first")
	ErrTabNotFound        = errors.New("tab not found")
	ErrReadonly           = errors.New("tab is read-only")
	ErrNoFilePath         = errors.New("tab is not backed by a file")
	ErrUnauthorized       = errors.New("not authorized to save")
	ErrNotBoundModel      = errors.New("tab is not bound to a model")
	ErrCompileInFlight    = errors.New("compilation already in progress")
	ErrExecutionInFlight  = errors.New("execution already in progress")
	ErrStaleResponse      = errors.New("response discarded: context changed")
	ErrCannotExecute      = errors.New("nothing executable in tab")
	ErrCloseRejected      = errors.New("close of dirty tab not confirmed")
	ErrInvalidOption      = errors.New("invalid option")
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrNotConfigured      = errors.New("service not configured")
	ErrStorage            = errors.New("storage failure")
)

// ValidationError reports a save rejected by the file service.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("validation failed for %s", e.Path)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Path, strings.Join(e.Errors, "; "))
}

// ServiceError wraps a failed collaborator call.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func serviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Op: op, Err: err}
}

// ErrorKind groups errors by how the host should surface them.
type ErrorKind int

// Error kinds.
const (
	KindOther ErrorKind = iota
	// KindValidation errors list field problems; the buffer is unchanged.
	KindValidation
	// KindTransient errors come from a failed service call; prior state is kept.
	KindTransient
	// KindCapacity errors ask the user to free a tab.
	KindCapacity
	// KindStorage errors are never surfaced.
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindCapacity:
		return "capacity"
	case KindStorage:
		return "storage"
	default:
		return "other"
	}
}

// Classify returns the kind of err.
func Classify(err error) ErrorKind {
	var ve *ValidationError
	var se *ServiceError
	switch {
	case err == nil:
		return KindOther
	case errors.As(err, &ve):
		return KindValidation
	case errors.Is(err, ErrTabLimitReached):
		return KindCapacity
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.As(err, &se):
		return KindTransient
	default:
		return KindOther
	}
}
