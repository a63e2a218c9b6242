package commandqueue

import "time"

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithProfiling enables ProfilingInfo on the queue's commands.
func WithProfiling(enabled bool) QueueOption {
	return func(q *Queue) {
		q.profiling = enabled
	}
}

// WithWaitRecheck sets how often Wait re-checks a command's status. Values <= 0
// keep DefaultWaitRecheck.
func WithWaitRecheck(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.recheck = d
		}
	}
}

// WithName sets the name used in logs and metrics instead of the queue ID.
func WithName(name string) QueueOption {
	return func(q *Queue) {
		q.name = name
	}
}
