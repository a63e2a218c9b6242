package commandqueue

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// DeepUnflushedDependencies returns the transitive dependencies of cmds that
// have not been submitted yet. Submitted or later commands are leaves. The
// inputs themselves are not included.
func DeepUnflushedDependencies(cmds []*Command) map[*Command]struct{} {
	result := make(map[*Command]struct{})
	visited := make(map[*Command]struct{})

	var stack []*Command
	for _, c := range cmds {
		if c != nil {
			stack = append(stack, c.Dependencies()...)
		}
	}

	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[d]; seen {
			continue
		}
		visited[d] = struct{}{}

		if d.Status() > StatusSubmitted {
			result[d] = struct{}{}
			stack = append(stack, d.Dependencies()...)
		}
	}
	return result
}

// DeepUnflushedQueues returns the queues owning DeepUnflushedDependencies(cmds).
// They must be flushed before waiting on cmds.
func DeepUnflushedQueues(cmds []*Command) map[*Queue]struct{} {
	queues := make(map[*Queue]struct{})
	for c := range DeepUnflushedDependencies(cmds) {
		if c.queue != nil {
			queues[c.queue] = struct{}{}
		}
	}
	return queues
}

// WaitForCommands flushes the queues of cmds and of their unflushed
// dependencies, then waits for every command. It fails with
// ErrExecStatusErrorForEventsInWaitList if any of them ended in error.
func WaitForCommands(cmds ...*Command) error {
	if len(cmds) == 0 {
		return fmt.Errorf("wait for commands: %w", ErrInvalidValue)
	}
	for _, c := range cmds {
		if c == nil {
			return fmt.Errorf("wait for commands: nil command: %w", ErrInvalidValue)
		}
	}

	queues := DeepUnflushedQueues(cmds)
	for _, c := range cmds {
		if c.queue != nil {
			queues[c.queue] = struct{}{}
		}
	}

	for q := range queues {
		// A closed queue has already drained everything it accepted.
		if q.Closed() {
			continue
		}
		if err := q.Flush(false); err != nil && !q.Closed() {
			return fmt.Errorf("wait for commands: flush %s: %w", q.label(), err)
		}
	}

	failed := 0
	for _, c := range cmds {
		if st := c.Wait(); st.IsError() {
			failed++
			log.Debug().Str("command", c.id).Str("status", st.String()).Msg("Waited command failed")
		}
	}
	if failed > 0 {
		return &StatusError{
			Code: StatusExecErrorForEventsInWaitList,
			Err:  fmt.Errorf("%d of %d commands failed", failed, len(cmds)),
		}
	}
	return nil
}
