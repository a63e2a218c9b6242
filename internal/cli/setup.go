package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/clevent/internal/config"
	"github.com/harun/clevent/internal/logger"
	"github.com/harun/clevent/internal/observability"
	"github.com/harun/clevent/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// environment is the ambient state shared by commands.
type environment struct {
	cfg    *config.Config
	logger *logger.Logger
}

// setup loads config, applies global flags, installs the logger, audit log
// and tracer provider. The returned cleanup must be called once.
func setup(cmd *cobra.Command) (*environment, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:    cfg.Logging.Level,
		File:     cfg.Logging.File,
		Console:  cfg.Logging.Console,
		Pretty:   cfg.Logging.Pretty,
		MaxSize:  cfg.Logging.MaxSize,
		MaxAge:   cfg.Logging.MaxAge,
		Compress: cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	var audit *observability.AuditLogger
	if cfg.Logging.AuditFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.AuditFile), 0755); err != nil {
			lg.Close()
			return nil, nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			lg.Close()
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		audit = observability.GetAuditLogger()
	} else {
		observability.NewAuditLogger(io.Discard)
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Tracing disabled")
		}
	}

	cleanup := func() {
		if cfg.Tracing.Enabled {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = tracing.ShutdownOpenTelemetry(ctx)
			cancel()
		}
		if audit != nil {
			_ = audit.Close()
		}
		_ = lg.Close()
	}

	return &environment{cfg: cfg, logger: lg}, cleanup, nil
}
