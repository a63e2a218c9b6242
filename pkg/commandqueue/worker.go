package commandqueue

import (
	"context"
	"time"

	"github.com/harun/clevent/internal/observability"
	"github.com/harun/clevent/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// run is the worker loop. It exits once the queue is closed and every
// flushed batch has retired.
func (q *Queue) run() {
	defer close(q.done)

	for {
		batch, ok := q.next()
		if !ok {
			log.Debug().Str("queue", q.label()).Msg("Worker stopped")
			return
		}
		q.process(batch)
	}
}

func (q *Queue) next() ([]*Command, bool) {
	for {
		q.mu.Lock()
		if len(q.batches) > 0 {
			batch := q.batches[0]
			q.batches[0] = nil
			q.batches = q.batches[1:]
			q.mu.Unlock()
			return batch, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.signal
	}
}

func (q *Queue) process(batch []*Command) {
	logger := log.With().Str("queue", q.label()).Int("batch", len(batch)).Logger()
	logger.Debug().Msg("Processing batch")

	for _, c := range batch {
		if code, failed := waitDependencies(c); failed {
			c.fail(code)
			logger.Warn().
				Str("command", c.id).
				Str("status", code.String()).
				Msg("Dependency failed, command not executed")
			continue
		}
		q.execute(c)
	}

	if err := q.exec.Flush(); err != nil {
		logger.Error().Err(err).Msg("Exec context flush failed")
	}

	for _, c := range batch {
		st := c.Wait()
		observability.RecordRetired(q.label(), !st.IsError())
		c.Release()
	}
}

func (q *Queue) execute(c *Command) {
	ctx := tracing.WithCommandID(tracing.WithQueueID(context.Background(), q.label()), c.id)
	ctx, span := tracing.StartSpan(ctx, "commandqueue.execute",
		attribute.String("queue", q.label()),
		attribute.String("command", c.id),
	)
	defer span.End()

	start := time.Now()
	st := c.call(ctx, q.exec)
	elapsed := time.Since(start)
	observability.RecordExecution(q.label(), elapsed)

	span.SetAttributes(attribute.String("status", st.String()))
	if st.IsError() {
		span.SetStatus(codes.Error, st.String())
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("status", st.String()).
		Dur("duration", elapsed).
		Msg("Command executed")
}

// waitDependencies blocks until every dependency is terminal and returns the
// first error code among them.
func waitDependencies(c *Command) (Status, bool) {
	var failed Status
	for _, d := range c.Dependencies() {
		if st := d.Wait(); st.IsError() && failed == StatusComplete {
			failed = st
		}
	}
	return failed, failed.IsError()
}
