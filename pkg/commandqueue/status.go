package commandqueue

import "fmt"

// Status is the execution status of a command. Values above StatusComplete
// are in flight; negative values are error codes.
type Status int32

const (
	StatusComplete  Status = 0
	StatusRunning   Status = 1
	StatusSubmitted Status = 2
	StatusQueued    Status = 3
)

// Error codes reported as terminal statuses.
const (
	StatusOutOfResources               Status = -5
	StatusOutOfHostMemory              Status = -6
	StatusExecErrorForEventsInWaitList Status = -14
	StatusInvalidValue                 Status = -30
	StatusInvalidOperation             Status = -59
)

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s <= StatusComplete
}

// IsError reports whether s is an error code.
func (s Status) IsError() bool {
	return s < StatusComplete
}

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusRunning:
		return "running"
	case StatusSubmitted:
		return "submitted"
	case StatusQueued:
		return "queued"
	case StatusOutOfResources:
		return "out_of_resources"
	case StatusOutOfHostMemory:
		return "out_of_host_memory"
	case StatusExecErrorForEventsInWaitList:
		return "exec_error_for_events_in_wait_list"
	case StatusInvalidValue:
		return "invalid_value"
	case StatusInvalidOperation:
		return "invalid_operation"
	}
	if s < 0 {
		return fmt.Sprintf("error(%d)", int32(s))
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// thresholds in firing order.
var thresholds = [...]Status{StatusSubmitted, StatusRunning, StatusComplete}

func thresholdIndex(s Status) (int, bool) {
	switch s {
	case StatusSubmitted:
		return 0, true
	case StatusRunning:
		return 1, true
	case StatusComplete:
		return 2, true
	}
	return 0, false
}
