package commandqueue

import (
	"sync/atomic"

	"github.com/harun/clevent/internal/observability"
	"github.com/rs/zerolog/log"
)

var liveCommands atomic.Int64

// LiveCommands returns the number of commands not yet destroyed.
func LiveCommands() int64 {
	return liveCommands.Load()
}

// Retain adds a reference.
func (c *Command) Retain() {
	c.refs.Add(1)
}

// Release drops a reference. Dropping the last one destroys the command and
// releases its dependencies.
func (c *Command) Release() {
	n := c.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		log.Warn().Str("command", c.id).Int64("refs", n).Msg("Command released more times than retained")
		return
	}
	destroy(c)
}

func (c *Command) RefCount() int64 {
	return c.refs.Load()
}

// Destroyed reports whether the last reference was released.
func (c *Command) Destroyed() bool {
	return c.destroyed.Load()
}

// destroy tears down c and every dependency whose count reaches zero with an
// explicit stack, so chain length does not grow the goroutine stack.
func destroy(c *Command) {
	stack := [][]*Command{c.finalize()}
	for len(stack) > 0 {
		deps := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, d := range deps {
			if d.refs.Add(-1) != 0 {
				continue
			}
			if next := d.finalize(); len(next) > 0 {
				stack = append(stack, next)
			}
		}
	}
}

// finalize marks c destroyed and hands back its dependency list.
func (c *Command) finalize() []*Command {
	c.mu.Lock()
	deps := c.deps
	c.deps = nil
	c.work = nil
	c.mu.Unlock()

	c.destroyed.Store(true)
	liveCommands.Add(-1)
	observability.DecLiveCommands()
	return deps
}
