package commandqueue

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOperation                   = errors.New("invalid operation")
	ErrInvalidValue                       = errors.New("invalid value")
	ErrOutOfResources                     = errors.New("out of resources")
	ErrProfilingInfoNotAvailable          = errors.New("profiling info not available")
	ErrExecStatusErrorForEventsInWaitList = errors.New("exec status error for events in wait list")
)

// StatusError carries a status code across Go error returns. Work items
// return one to choose the command's terminal status.
type StatusError struct {
	Code Status
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code.String()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the code.
func (e *StatusError) Is(target error) bool {
	return sentinelFor(e.Code) == target
}

// Fail builds a StatusError for a work item. Non-negative codes are coerced to
// StatusOutOfResources since a failure cannot complete successfully.
func Fail(code Status, format string, args ...interface{}) error {
	if code >= StatusComplete {
		code = StatusOutOfResources
	}
	return &StatusError{Code: code, Err: fmt.Errorf(format, args...)}
}

// statusFromError maps a work item error to a terminal status.
func statusFromError(err error) Status {
	if err == nil {
		return StatusComplete
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code < StatusComplete {
		return se.Code
	}
	return StatusOutOfResources
}

func sentinelFor(code Status) error {
	switch code {
	case StatusInvalidOperation:
		return ErrInvalidOperation
	case StatusInvalidValue:
		return ErrInvalidValue
	case StatusOutOfResources:
		return ErrOutOfResources
	case StatusExecErrorForEventsInWaitList:
		return ErrExecStatusErrorForEventsInWaitList
	}
	return nil
}
