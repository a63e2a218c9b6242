package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/clevent/internal/observability"
	"github.com/harun/clevent/internal/tracing"
	"github.com/harun/clevent/pkg/device"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var errQueueClosed = errors.New("queue closed")

// Queue executes its commands in enqueue order on a single worker goroutine.
type Queue struct {
	id        string
	name      string
	ctx       *device.Context
	dev       device.Device
	exec      device.ExecContext
	profiling bool
	recheck   time.Duration

	mu      sync.Mutex
	pending []*Command
	batches [][]*Command // flushed, not yet taken by the worker
	closed  bool
	signal  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewQueue creates a queue for dev, which must belong to ctx, and starts its
// worker.
func NewQueue(ctx *device.Context, dev device.Device, opts ...QueueOption) (*Queue, error) {
	if ctx == nil || dev == nil {
		return nil, fmt.Errorf("new queue: %w", ErrInvalidValue)
	}
	if !ctx.HasDevice(dev) {
		return nil, fmt.Errorf("new queue: device %s not in context %s: %w", dev.ID(), ctx.ID, ErrInvalidValue)
	}

	observability.EnsureRegistered()

	exec, err := dev.NewExecContext()
	if err != nil {
		return nil, fmt.Errorf("new queue: exec context: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		_ = exec.Close()
		return nil, fmt.Errorf("new queue: id: %w", err)
	}

	q := &Queue{
		id:      id,
		ctx:     ctx,
		dev:     dev,
		exec:    exec,
		recheck: DefaultWaitRecheck,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.run()

	log.Info().
		Str("queue", q.label()).
		Str("device", dev.Name()).
		Bool("profiling", q.profiling).
		Msg("Queue created")

	return q, nil
}

func (q *Queue) ID() string               { return q.id }
func (q *Queue) Name() string             { return q.name }
func (q *Queue) Device() device.Device    { return q.dev }
func (q *Queue) Context() *device.Context { return q.ctx }
func (q *Queue) Profiling() bool          { return q.profiling }

func (q *Queue) label() string {
	if q.name != "" {
		return q.name
	}
	return q.id
}

func closedError() error {
	return &StatusError{Code: StatusOutOfResources, Err: errQueueClosed}
}

// Enqueue appends c to the pending list. The queue holds a reference until
// the worker retires c. NewCommand calls it; a command is enqueued once.
func (q *Queue) Enqueue(c *Command) error {
	if c == nil || c.queue != q {
		return fmt.Errorf("enqueue: %w", ErrInvalidValue)
	}
	if !c.enqueued.CompareAndSwap(false, true) {
		return fmt.Errorf("enqueue %s: already enqueued: %w", c.id, ErrInvalidOperation)
	}

	c.Retain()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		c.Release()
		return closedError()
	}
	q.pending = append(q.pending, c)
	n := len(q.pending)
	q.mu.Unlock()

	observability.RecordEnqueue(q.label(), n)
	log.Debug().Str("queue", q.label()).Str("command", c.id).Int("pending", n).Msg("Command enqueued")
	return nil
}

// Flush hands every pending command to the worker as one batch. With wait set
// it blocks until the last of them is terminal.
func (q *Queue) Flush(wait bool) error {
	_, span := tracing.StartSpan(context.Background(), "commandqueue.flush",
		attribute.String("queue", q.label()),
		attribute.Bool("wait", wait),
	)
	defer span.End()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		observability.RecordFlushError(q.label())
		span.SetStatus(codes.Error, errQueueClosed.Error())
		log.Warn().Str("queue", q.label()).Msg("Flush on closed queue")
		return closedError()
	}

	batch := q.pending
	q.pending = nil
	var last *Command
	if len(batch) > 0 {
		last = batch[len(batch)-1]
		last.Retain()
		q.batches = append(q.batches, batch)
		q.notify()
	}
	q.mu.Unlock()

	observability.RecordFlush(q.label(), len(batch))
	span.SetAttributes(attribute.Int("batch", len(batch)))

	if last == nil {
		return nil
	}
	if wait {
		st := last.Wait()
		span.SetAttributes(attribute.String("status", st.String()))
	}
	last.Release()
	return nil
}

// Finish flushes and waits for everything enqueued so far.
func (q *Queue) Finish() error {
	return q.Flush(true)
}

// Pending returns the number of commands not yet flushed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close flushes remaining work, waits for the worker to drain and exit, then
// closes the exec context. Later Enqueue and Flush calls fail with
// ErrOutOfResources.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		if len(batch) > 0 {
			q.batches = append(q.batches, batch)
		}
		q.closed = true
		q.notify()
		q.mu.Unlock()

		observability.RecordFlush(q.label(), len(batch))

		<-q.done

		if err := q.exec.Close(); err != nil {
			q.closeErr = fmt.Errorf("close queue %s: %w", q.label(), err)
		}
		log.Info().Str("queue", q.label()).Msg("Queue closed")
	})
	return q.closeErr
}

// notify wakes the worker. Callers hold q.mu.
func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
