package device

import (
	"fmt"
	"sort"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// Context groups the devices a set of queues and user commands belong to.
type Context struct {
	ID      string
	Devices []Device
}

// NewContext creates a context over the given devices.
func NewContext(devices ...Device) (*Context, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("context requires at least one device")
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate context id: %w", err)
	}
	return &Context{ID: id, Devices: devices}, nil
}

// HasDevice reports whether dev belongs to the context.
func (c *Context) HasDevice(dev Device) bool {
	for _, d := range c.Devices {
		if d.ID() == dev.ID() {
			return true
		}
	}
	return false
}

// Platform is a registry of available devices. It is handed to the engine's
// callers explicitly; only DefaultPlatform is process-wide.
type Platform struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewPlatform creates an empty platform.
func NewPlatform() *Platform {
	return &Platform{devices: make(map[string]Device)}
}

// Register adds a device. Registering the same ID twice is an error.
func (p *Platform) Register(dev Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.devices[dev.ID()]; exists {
		return fmt.Errorf("device already registered: %s", dev.ID())
	}
	p.devices[dev.ID()] = dev

	log.Debug().Str("device", dev.ID()).Str("name", dev.Name()).Msg("Device registered")
	return nil
}

// Get looks up a device by ID.
func (p *Platform) Get(id string) (Device, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dev, ok := p.devices[id]
	return dev, ok
}

// Devices returns all registered devices ordered by name, then ID.
func (p *Platform) Devices() []Device {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Device, 0, len(p.devices))
	for _, d := range p.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Global platform instance
var (
	defaultPlatform     *Platform
	defaultPlatformOnce sync.Once
)

// DefaultPlatform returns the lazily initialised process-wide platform with a
// single host device.
func DefaultPlatform() *Platform {
	defaultPlatformOnce.Do(func() {
		defaultPlatform = NewPlatform()
		_ = defaultPlatform.Register(NewHostDevice("host"))
	})
	return defaultPlatform
}
