package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the clevent configuration
type Config struct {
	Engine  EngineConfig  `json:"engine" mapstructure:"engine"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Monitor MonitorConfig `json:"monitor" mapstructure:"monitor"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// EngineConfig holds command queue defaults
type EngineConfig struct {
	Profiling     bool `json:"profiling" mapstructure:"profiling"`
	WaitRecheckMs int  `json:"wait_recheck_ms" mapstructure:"wait_recheck_ms"`
}

// WaitRecheck returns the wait re-check interval as a duration.
func (e EngineConfig) WaitRecheck() time.Duration {
	return time.Duration(e.WaitRecheckMs) * time.Millisecond
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `json:"level" mapstructure:"level"`
	File     string `json:"file" mapstructure:"file"`
	Console  bool   `json:"console" mapstructure:"console"`
	Pretty   bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize  int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge   int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress bool   `json:"compress" mapstructure:"compress"`

	// AuditFile receives user-signal audit events; empty discards them
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MonitorConfig holds the live status server configuration
type MonitorConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
}

// Addr returns host:port.
func (m MonitorConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Profiling:     false,
			WaitRecheckMs: 1000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			Pretty:   true,
			MaxSize:  50,
			MaxAge:   7,
			Compress: true,
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    18790,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "clevent",
			SampleRatio: 1,
		},
	}
}

// String returns the configuration as indented JSON
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}
