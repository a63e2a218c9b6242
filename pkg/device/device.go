package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// ErrContextClosed is returned by an ExecContext used after Close.
var ErrContextClosed = errors.New("exec context closed")

// Device executes work submitted by a queue worker.
type Device interface {
	ID() string
	Name() string
	// Timestamp returns the device clock in nanoseconds. It must be monotonic
	// and safe for concurrent use.
	Timestamp() uint64
	// NewExecContext creates the execution handle owned by a single queue worker.
	NewExecContext() (ExecContext, error)
}

// ExecContext is the per-queue handle passed to every work item.
type ExecContext interface {
	// Flush pushes any work recorded by work items to the device.
	Flush() error
	Close() error
}

// HostDevice runs work in-process on the calling goroutine.
type HostDevice struct {
	id    string
	name  string
	epoch time.Time
}

// NewHostDevice creates a host device with the given display name.
func NewHostDevice(name string) *HostDevice {
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("host-%d", time.Now().UnixNano())
	}
	return &HostDevice{
		id:    id,
		name:  name,
		epoch: time.Now(),
	}
}

func (d *HostDevice) ID() string   { return d.id }
func (d *HostDevice) Name() string { return d.name }

// Timestamp returns nanoseconds elapsed since the device was created.
func (d *HostDevice) Timestamp() uint64 {
	return uint64(time.Since(d.epoch).Nanoseconds())
}

// NewExecContext creates a host exec context.
func (d *HostDevice) NewExecContext() (ExecContext, error) {
	log.Debug().Str("device", d.id).Msg("Exec context created")
	return &HostExecContext{device: d}, nil
}

// HostExecContext counts flushes; the host has no deferred work to push.
type HostExecContext struct {
	device  *HostDevice
	flushes atomic.Int64
	mu      sync.Mutex
	closed  bool
}

// Flush records a flush. It fails once the context is closed.
func (c *HostExecContext) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	c.flushes.Add(1)
	return nil
}

// Flushes returns the number of successful flushes.
func (c *HostExecContext) Flushes() int64 {
	return c.flushes.Load()
}

// Device returns the owning host device.
func (c *HostExecContext) Device() *HostDevice {
	return c.device
}

// Close marks the context unusable. Closing twice is a no-op.
func (c *HostExecContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
