// Package commandqueue provides an asynchronous command/event engine with
// per-queue in-order execution and cross-queue dependencies.
//
// Invariants:
// - A command's status only moves downward: Queued, Submitted, Running, then
//   Complete or a negative error code. Terminal statuses never change.
// - A command's work runs at most once, on its queue's worker goroutine.
// - Commands drained from one queue retire in the order they were enqueued.
// - A command whose dependency failed takes the dependency's error code and
//   its work is never run.
// - Each registered callback fires exactly once.
//
// Callers waiting on commands from several queues must flush the queues
// reported by DeepUnflushedQueues first; WaitForCommands does this.
//
// Usage:
//
//	q, _ := commandqueue.NewQueue(ctx, dev)
//	defer q.Close()
//	a, _ := commandqueue.NewCommand(q, nil, func(ctx context.Context, q *commandqueue.Queue, exec device.ExecContext) error {
//		return nil
//	})
//	defer a.Release()
//	_ = q.Finish()
package commandqueue
