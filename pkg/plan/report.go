package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/harun/clevent/pkg/commandqueue"
)

// Report is the outcome of a plan run.
type Report struct {
	Plan     string          `json:"plan"`
	Elapsed  time.Duration   `json:"elapsed_ns"`
	Failed   int             `json:"failed"`
	Commands []CommandResult `json:"commands"`
}

// CommandResult is the terminal state of one command.
type CommandResult struct {
	Name      string     `json:"name"`
	Queue     string     `json:"queue,omitempty"`
	Status    string     `json:"status"`
	Code      int        `json:"code"`
	Profiling *Profiling `json:"profiling,omitempty"`
}

// Profiling holds device timestamps in nanoseconds.
type Profiling struct {
	Queued uint64 `json:"queued"`
	Submit uint64 `json:"submit"`
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
}

// Result returns the result for the named command.
func (r *Report) Result(name string) (CommandResult, bool) {
	for _, c := range r.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return CommandResult{}, false
}

func (rn *run) report(elapsed time.Duration, profiling bool) *Report {
	rep := &Report{
		Plan:     rn.plan.Name,
		Elapsed:  elapsed,
		Commands: make([]CommandResult, 0, len(rn.plan.Commands)),
	}

	for _, cs := range rn.plan.Commands {
		c := rn.commands[cs.Name]
		st := c.Status()
		res := CommandResult{
			Name:   cs.Name,
			Queue:  cs.Queue,
			Status: st.String(),
			Code:   int(st),
		}
		if st.IsError() {
			rep.Failed++
		}
		if profiling && !cs.User {
			res.Profiling = profile(c)
		}
		rep.Commands = append(rep.Commands, res)
	}
	return rep
}

func profile(c *commandqueue.Command) *Profiling {
	var p Profiling
	var err error
	if p.Queued, err = c.ProfilingInfo(commandqueue.ProfilingQueued); err != nil {
		return nil
	}
	p.Submit, _ = c.ProfilingInfo(commandqueue.ProfilingSubmit)
	p.Start, _ = c.ProfilingInfo(commandqueue.ProfilingStart)
	p.End, _ = c.ProfilingInfo(commandqueue.ProfilingEnd)
	return &p
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human readable table.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "plan %s: %d commands, %d failed, %s\n", r.Plan, len(r.Commands), r.Failed, r.Elapsed.Round(time.Microsecond))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tQUEUE\tSTATUS\tRUN")
	for _, c := range r.Commands {
		queue := c.Queue
		if queue == "" {
			queue = "-"
		}
		run := "-"
		if c.Profiling != nil && c.Profiling.End >= c.Profiling.Start && c.Profiling.Start > 0 {
			run = time.Duration(c.Profiling.End - c.Profiling.Start).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, queue, c.Status, run)
	}
	return tw.Flush()
}
