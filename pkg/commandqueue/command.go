package commandqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harun/clevent/internal/observability"
	"github.com/harun/clevent/pkg/device"
	"github.com/rs/zerolog/log"
)

// WorkItem is the opaque unit of work run by a command. It is invoked at most
// once, on the worker goroutine of the command's queue.
type WorkItem func(ctx context.Context, q *Queue, exec device.ExecContext) error

// Callback is invoked once per registration. status is the registered
// threshold, or the error code if the command failed.
type Callback func(c *Command, status Status)

// ProfilingSlot selects one of the command timestamps.
type ProfilingSlot int

const (
	ProfilingQueued ProfilingSlot = iota
	ProfilingSubmit
	ProfilingStart
	ProfilingEnd
	profilingSlots
)

func (s ProfilingSlot) valid() bool {
	return s >= ProfilingQueued && s < profilingSlots
}

// DefaultWaitRecheck bounds a single sleep inside Wait.
const DefaultWaitRecheck = time.Second

// Command is a schedulable unit of work with a status, dependencies and
// completion callbacks. It is reference counted: see Retain and Release.
type Command struct {
	id    string
	queue *Queue // observational, never keeps the queue alive
	owner *device.Context
	user  bool

	mu        sync.Mutex
	status    Status
	done      chan struct{}
	work      WorkItem
	deps      []*Command
	callbacks [len(thresholds)][]Callback
	times     [profilingSlots]uint64

	enqueued  atomic.Bool
	refs      atomic.Int64
	destroyed atomic.Bool
}

type pendingCallback struct {
	threshold Status
	cb        Callback
}

func newCommand(q *Queue, deps []*Command, work WorkItem) *Command {
	c := &Command{
		id:     uuid.NewString(),
		queue:  q,
		status: StatusQueued,
		done:   make(chan struct{}),
		work:   work,
	}
	if q != nil {
		c.owner = q.ctx
	}
	if len(deps) > 0 {
		c.deps = make([]*Command, 0, len(deps))
		for _, d := range deps {
			if d == nil {
				continue
			}
			d.Retain()
			c.deps = append(c.deps, d)
		}
	}
	c.refs.Store(1)
	liveCommands.Add(1)
	observability.IncLiveCommands()
	return c
}

// NewCommand creates a command depending on deps and enqueues it on q. The
// returned command holds one reference owned by the caller.
func NewCommand(q *Queue, deps []*Command, work WorkItem) (*Command, error) {
	if q == nil {
		return nil, fmt.Errorf("new command: %w", ErrInvalidValue)
	}

	c := newCommand(q, deps, work)
	c.SetTime(ProfilingQueued, q.dev.Timestamp())

	if err := q.Enqueue(c); err != nil {
		c.Release()
		return nil, fmt.Errorf("new command: %w", err)
	}
	return c, nil
}

// NewUserCommand creates a queue-less command in the Submitted state. It
// completes only through SetUserStatus.
func NewUserCommand(owner *device.Context) *Command {
	c := newCommand(nil, nil, nil)
	c.owner = owner
	c.user = true
	c.status = StatusSubmitted
	log.Debug().Str("command", c.id).Msg("User command created")
	return c
}

func (c *Command) ID() string { return c.id }

// Queue returns the owning queue, or nil for user commands.
func (c *Command) Queue() *Queue { return c.queue }

func (c *Command) Owner() *device.Context { return c.owner }

// IsUser reports whether the command is completed by SetUserStatus.
func (c *Command) IsUser() bool { return c.user }

// Dependencies returns a copy of the dependency list. It is empty once the
// command is destroyed.
func (c *Command) Dependencies() []*Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.deps) == 0 {
		return nil
	}
	out := make([]*Command, len(c.deps))
	copy(out, c.deps)
	return out
}

func (c *Command) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// advanceLocked moves the status down to next and takes the callbacks that
// became due. It refuses upward moves and any move after a terminal status.
func (c *Command) advanceLocked(next Status) ([]pendingCallback, bool) {
	if c.status.IsTerminal() || next >= c.status {
		return nil, false
	}
	c.status = next

	effective := next
	if next.IsError() {
		effective = StatusComplete
	}

	var due []pendingCallback
	for i, th := range thresholds {
		if th < effective || len(c.callbacks[i]) == 0 {
			continue
		}
		for _, cb := range c.callbacks[i] {
			due = append(due, pendingCallback{threshold: th, cb: cb})
		}
		c.callbacks[i] = nil
	}

	if next.IsTerminal() {
		close(c.done)
	}
	return due, true
}

// fire runs callbacks taken by advanceLocked. Each one held a reference.
func (c *Command) fire(due []pendingCallback, status Status) {
	for _, p := range due {
		report := p.threshold
		if status.IsError() {
			report = status
		}
		c.invoke(p.cb, p.threshold, report)
		c.Release()
	}
}

func (c *Command) invoke(cb Callback, threshold, report Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("command", c.id).
				Str("threshold", threshold.String()).
				Interface("panic", r).
				Msg("Callback panicked")
		}
	}()
	observability.RecordCallback(threshold.String())
	cb(c, report)
}

func (c *Command) setStatus(next Status) bool {
	c.mu.Lock()
	due, ok := c.advanceLocked(next)
	c.mu.Unlock()
	if ok {
		c.fire(due, next)
	}
	return ok
}

// SetUserStatus completes a user command with StatusComplete or an error code.
// It can succeed only once; on rejection the status is left untouched.
func (c *Command) SetUserStatus(code Status) error {
	ctx := context.Background()

	if !c.user {
		observability.RecordUserSignalAudit(ctx, c.id, int(code), false, "not a user command")
		return fmt.Errorf("set user status on %s: %w", c.id, ErrInvalidOperation)
	}
	if code != StatusComplete && !code.IsError() {
		observability.RecordUserSignalAudit(ctx, c.id, int(code), false, "code must be complete or negative")
		return fmt.Errorf("set user status %d: %w", int32(code), ErrInvalidValue)
	}

	c.mu.Lock()
	if c.status != StatusSubmitted {
		current := c.status
		c.mu.Unlock()
		log.Warn().Str("command", c.id).Str("status", current.String()).Msg("User command already signalled")
		observability.RecordUserSignalAudit(ctx, c.id, int(code), false, "already signalled")
		return fmt.Errorf("set user status on %s (status %s): %w", c.id, current, ErrInvalidOperation)
	}
	due, _ := c.advanceLocked(code)
	c.mu.Unlock()

	observability.RecordUserSignalAudit(ctx, c.id, int(code), true, "")
	c.fire(due, code)
	return nil
}

// AddCallback registers cb for threshold (Submitted, Running or Complete). If
// the command already reached it, cb runs before AddCallback returns.
func (c *Command) AddCallback(threshold Status, cb Callback) error {
	idx, ok := thresholdIndex(threshold)
	if !ok || cb == nil {
		return fmt.Errorf("add callback at %s: %w", threshold, ErrInvalidValue)
	}

	c.mu.Lock()
	current := c.status
	if current > threshold {
		c.callbacks[idx] = append(c.callbacks[idx], cb)
		c.refs.Add(1)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	report := threshold
	if current.IsError() {
		report = current
	}
	c.invoke(cb, threshold, report)
	return nil
}

func (c *Command) recheck() time.Duration {
	if c.queue != nil && c.queue.recheck > 0 {
		return c.queue.recheck
	}
	return DefaultWaitRecheck
}

func (c *Command) snapshot() (Status, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.done
}

// Wait blocks until the command is terminal and returns its status.
func (c *Command) Wait() Status {
	interval := c.recheck()
	for {
		st, done := c.snapshot()
		if st.IsTerminal() {
			return st
		}

		timer := time.NewTimer(interval)
		select {
		case <-done:
		case <-timer.C:
			log.Debug().Str("command", c.id).Str("status", st.String()).Msg("Wait re-check")
		}
		timer.Stop()
	}
}

// WaitContext is Wait bounded by ctx.
func (c *Command) WaitContext(ctx context.Context) (Status, error) {
	interval := c.recheck()
	for {
		st, done := c.snapshot()
		if st.IsTerminal() {
			return st, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-done:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return c.Status(), ctx.Err()
		}
		timer.Stop()
	}
}

// Time returns a recorded timestamp, zero if unset.
func (c *Command) Time(slot ProfilingSlot) uint64 {
	if !slot.valid() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.times[slot]
}

func (c *Command) SetTime(slot ProfilingSlot, v uint64) {
	if !slot.valid() {
		return
	}
	c.mu.Lock()
	c.times[slot] = v
	c.mu.Unlock()
}

// ProfilingInfo returns a timestamp once the command is terminal on a queue
// created with profiling enabled.
func (c *Command) ProfilingInfo(slot ProfilingSlot) (uint64, error) {
	if !slot.valid() {
		return 0, fmt.Errorf("profiling slot %d: %w", slot, ErrInvalidValue)
	}
	if c.queue == nil || !c.queue.profiling {
		return 0, ErrProfilingInfoNotAvailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.status.IsTerminal() {
		return 0, ErrProfilingInfoNotAvailable
	}
	return c.times[slot], nil
}

func (c *Command) stamp(slot ProfilingSlot) {
	if c.queue == nil {
		return
	}
	c.SetTime(slot, c.queue.dev.Timestamp())
}

// call runs the command on its queue's worker. It is a no-op returning the
// current status unless the command is still Queued.
func (c *Command) call(ctx context.Context, exec device.ExecContext) Status {
	c.mu.Lock()
	if c.status != StatusQueued {
		st := c.status
		c.mu.Unlock()
		return st
	}
	work := c.work
	c.work = nil
	if c.queue != nil {
		c.times[ProfilingSubmit] = c.queue.dev.Timestamp()
	}
	due, _ := c.advanceLocked(StatusSubmitted)
	c.mu.Unlock()
	c.fire(due, StatusSubmitted)

	c.stamp(ProfilingStart)
	c.setStatus(StatusRunning)

	final := StatusComplete
	if work != nil {
		final = c.runWork(ctx, work, exec)
	}

	c.stamp(ProfilingEnd)
	c.setStatus(final)
	return final
}

func (c *Command) runWork(ctx context.Context, work WorkItem, exec device.ExecContext) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("command", c.id).Interface("panic", r).Msg("Work item panicked")
			st = StatusOutOfResources
		}
	}()

	if err := work(ctx, c.queue, exec); err != nil {
		st = statusFromError(err)
		log.Error().Err(err).Str("command", c.id).Str("status", st.String()).Msg("Work item failed")
		return st
	}
	return StatusComplete
}

// fail forces a queued command to an error code without running its work.
func (c *Command) fail(code Status) bool {
	c.mu.Lock()
	if c.status.IsTerminal() {
		c.mu.Unlock()
		return false
	}
	c.work = nil
	if c.queue != nil {
		c.times[ProfilingEnd] = c.queue.dev.Timestamp()
	}
	due, ok := c.advanceLocked(code)
	c.mu.Unlock()
	if ok {
		c.fire(due, code)
	}
	return ok
}
