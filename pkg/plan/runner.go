package plan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/clevent/pkg/commandqueue"
	"github.com/harun/clevent/pkg/device"
	"github.com/rs/zerolog/log"
)

// Observer is notified of every command a run creates, before any of them is
// flushed.
type Observer interface {
	Observe(name string, c *commandqueue.Command) error
}

// Runner executes plans on a device.
type Runner struct {
	Device      device.Device
	Profiling   bool          // force profiling on every queue
	WaitRecheck time.Duration // passed to every queue
	Observers   []Observer
}

// NewRunner creates a runner for dev.
func NewRunner(dev device.Device, observers ...Observer) *Runner {
	return &Runner{
		Device:    dev,
		Observers: observers,
	}
}

type run struct {
	plan     *Plan
	dctx     *device.Context
	queues   map[string]*commandqueue.Queue
	commands map[string]*commandqueue.Command
	order    []*commandqueue.Command
}

// Run builds the plan's queues and commands, fires user signals on schedule
// and waits for everything. Command failures are reported in the Report, not
// as an error. Cancelling ctx cuts simulated work short and fails pending
// signals.
func (r *Runner) Run(ctx context.Context, p *Plan) (*Report, error) {
	if p == nil {
		return nil, fmt.Errorf("run: nil plan")
	}
	if r.Device == nil {
		return nil, fmt.Errorf("run %s: no device", p.Name)
	}
	if err := p.check(); err != nil {
		return nil, fmt.Errorf("run %s: invalid plan: %w", p.Name, err)
	}

	dctx, err := device.NewContext(r.Device)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", p.Name, err)
	}

	rn := &run{
		plan:     p,
		dctx:     dctx,
		queues:   make(map[string]*commandqueue.Queue, len(p.Queues)),
		commands: make(map[string]*commandqueue.Command, len(p.Commands)),
	}
	defer rn.teardown()

	started := time.Now()
	log.Info().Str("plan", p.Name).Int("commands", len(p.Commands)).Msg("Plan run started")

	profiling := p.Profiling || r.Profiling
	for _, qs := range p.Queues {
		q, err := commandqueue.NewQueue(dctx, r.Device,
			commandqueue.WithName(qs.Name),
			commandqueue.WithProfiling(profiling),
			commandqueue.WithWaitRecheck(r.WaitRecheck),
		)
		if err != nil {
			return nil, fmt.Errorf("run %s: queue %s: %w", p.Name, qs.Name, err)
		}
		rn.queues[qs.Name] = q
	}

	for _, cs := range p.Commands {
		c, err := rn.build(ctx, cs)
		if err != nil {
			return nil, fmt.Errorf("run %s: command %s: %w", p.Name, cs.Name, err)
		}
		rn.commands[cs.Name] = c
		rn.order = append(rn.order, c)

		for _, o := range r.Observers {
			if err := o.Observe(cs.Name, c); err != nil {
				log.Warn().Err(err).Str("command", cs.Name).Msg("Observer rejected command")
			}
		}
	}

	var signals sync.WaitGroup
	for _, cs := range p.Commands {
		if cs.User {
			signals.Add(1)
			go func(cs CommandSpec, c *commandqueue.Command) {
				defer signals.Done()
				signal(ctx, cs, c)
			}(cs, rn.commands[cs.Name])
		}
	}

	waitErr := commandqueue.WaitForCommands(rn.order...)
	signals.Wait()

	report := rn.report(time.Since(started), profiling)
	if waitErr != nil && !errors.Is(waitErr, commandqueue.ErrExecStatusErrorForEventsInWaitList) {
		return report, fmt.Errorf("run %s: %w", p.Name, waitErr)
	}

	log.Info().
		Str("plan", p.Name).
		Int("failed", report.Failed).
		Dur("duration", report.Elapsed).
		Msg("Plan run finished")
	return report, nil
}

func (rn *run) build(ctx context.Context, cs CommandSpec) (*commandqueue.Command, error) {
	if cs.User {
		return commandqueue.NewUserCommand(rn.dctx), nil
	}

	deps := make([]*commandqueue.Command, 0, len(cs.After))
	for _, name := range cs.After {
		deps = append(deps, rn.commands[name])
	}
	return commandqueue.NewCommand(rn.queues[cs.Queue], deps, simulatedWork(ctx, cs))
}

// simulatedWork sleeps for the planned duration, then succeeds or fails with
// the planned code.
func simulatedWork(ctx context.Context, cs CommandSpec) commandqueue.WorkItem {
	return func(_ context.Context, _ *commandqueue.Queue, _ device.ExecContext) error {
		if d := cs.WorkDuration(); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return commandqueue.Fail(commandqueue.StatusOutOfResources, "%s: %v", cs.Name, ctx.Err())
			}
		}
		if code := cs.FailStatus(); code.IsError() {
			return commandqueue.Fail(code, "%s: planned failure", cs.Name)
		}
		return nil
	}
}

func signal(ctx context.Context, cs CommandSpec, c *commandqueue.Command) {
	code := commandqueue.Status(cs.Signal.Status)

	timer := time.NewTimer(cs.Signal.SignalDelay())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		code = commandqueue.StatusOutOfResources
	}

	if err := c.SetUserStatus(code); err != nil {
		log.Warn().Err(err).Str("command", cs.Name).Int("code", int(code)).Msg("User signal rejected")
		resolve(c)
	}
}

// resolve fails a user command that was never signalled so its dependents
// can retire.
func resolve(c *commandqueue.Command) {
	if c.IsUser() && !c.Status().IsTerminal() {
		_ = c.SetUserStatus(commandqueue.StatusOutOfResources)
	}
}

func (rn *run) teardown() {
	for _, c := range rn.order {
		resolve(c)
	}
	for name, q := range rn.queues {
		if err := q.Close(); err != nil {
			log.Warn().Err(err).Str("queue", name).Msg("Queue close failed")
		}
	}
	for _, c := range rn.order {
		c.Release()
	}
}
