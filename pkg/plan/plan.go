// Package plan describes engine workloads declaratively: queues, commands,
// their dependencies, simulated work and user signals. A plan is loaded from
// YAML, validated against a JSON schema, and executed by a Runner.
package plan

import (
	"time"

	"github.com/harun/clevent/pkg/commandqueue"
)

// Plan is a workload definition.
type Plan struct {
	Name      string        `yaml:"name" json:"name"`
	Profiling bool          `yaml:"profiling" json:"profiling"`
	Queues    []QueueSpec   `yaml:"queues" json:"queues"`
	Commands  []CommandSpec `yaml:"commands" json:"commands"`
}

// QueueSpec declares an in-order queue.
type QueueSpec struct {
	Name string `yaml:"name" json:"name"`
}

// CommandSpec declares one command. Queue commands run for Duration and then
// succeed, or fail with Fail when it is negative. User commands have no queue
// and complete through Signal.
type CommandSpec struct {
	Name     string      `yaml:"name" json:"name"`
	Queue    string      `yaml:"queue,omitempty" json:"queue,omitempty"`
	After    []string    `yaml:"after,omitempty" json:"after,omitempty"`
	Duration string      `yaml:"duration,omitempty" json:"duration,omitempty"`
	Fail     int         `yaml:"fail,omitempty" json:"fail,omitempty"`
	User     bool        `yaml:"user,omitempty" json:"user,omitempty"`
	Signal   *SignalSpec `yaml:"signal,omitempty" json:"signal,omitempty"`

	duration time.Duration
}

// SignalSpec completes a user command Delay after the run starts.
type SignalSpec struct {
	Delay  string `yaml:"delay,omitempty" json:"delay,omitempty"`
	Status int    `yaml:"status" json:"status"`

	delay time.Duration
}

// WorkDuration returns the parsed Duration.
func (c CommandSpec) WorkDuration() time.Duration { return c.duration }

// FailStatus returns the status the command is planned to fail with, or
// StatusComplete.
func (c CommandSpec) FailStatus() commandqueue.Status {
	return commandqueue.Status(c.Fail)
}

// SignalDelay returns the parsed signal delay.
func (s SignalSpec) SignalDelay() time.Duration { return s.delay }

// Command returns the command declared as name.
func (p *Plan) Command(name string) (CommandSpec, bool) {
	for _, c := range p.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return CommandSpec{}, false
}
