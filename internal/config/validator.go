package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs every section check and joins the failures.
func (v *Validator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	return errors.Join(
		v.ValidateEngine(cfg.Engine),
		v.ValidateLogLevel(cfg.Logging.Level),
		v.ValidateMonitor(cfg.Monitor),
		v.ValidateTracing(cfg.Tracing),
	)
}

// ValidateEngine checks command queue settings
func (v *Validator) ValidateEngine(e EngineConfig) error {
	if e.WaitRecheckMs <= 0 {
		return fmt.Errorf("engine.wait_recheck_ms must be positive, got %d", e.WaitRecheckMs)
	}
	return nil
}

// ValidateLogLevel validates a zerolog level name
func (v *Validator) ValidateLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateMonitor checks the monitor server settings when it is enabled
func (v *Validator) ValidateMonitor(m MonitorConfig) error {
	if !m.Enabled {
		return nil
	}
	if m.Host == "" {
		return fmt.Errorf("monitor.host cannot be empty")
	}
	if err := v.ValidatePort(m.Port); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing settings when tracing is enabled
func (v *Validator) ValidateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	if t.ServiceName == "" {
		return fmt.Errorf("tracing.service_name cannot be empty when tracing is enabled")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", t.SampleRatio)
	}
	return nil
}
