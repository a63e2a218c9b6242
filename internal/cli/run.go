package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/clevent/internal/config"
	"github.com/harun/clevent/pkg/device"
	"github.com/harun/clevent/pkg/monitor"
	"github.com/harun/clevent/pkg/plan"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runWatch   bool
	runFormat  string
	runMonitor bool
)

var runCmd = &cobra.Command{
	Use:   "run PLAN",
	Short: "Execute a workload plan",
	Long: `Execute a workload plan and print a report of every command's terminal
status. With --watch the plan is re-run whenever the file changes. With
--monitor status transitions are streamed over WebSocket at /ws.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "re-run the plan when the file changes")
	runCmd.Flags().StringVar(&runFormat, "format", "text", "report format (text, json)")
	runCmd.Flags().BoolVar(&runMonitor, "monitor", false, "serve live status events (overrides monitor.enabled)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFormat != "text" && runFormat != "json" {
		return fmt.Errorf("unknown format %q (must be text or json)", runFormat)
	}

	env, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices := device.DefaultPlatform().Devices()
	if len(devices) == 0 {
		return fmt.Errorf("no devices available")
	}

	runner := plan.NewRunner(devices[0])
	runner.Profiling = env.cfg.Engine.Profiling
	runner.WaitRecheck = env.cfg.Engine.WaitRecheck()

	if runMonitor || env.cfg.Monitor.Enabled {
		srv, hub, err := startMonitor(env.cfg.Monitor)
		if err != nil {
			return err
		}
		defer srv.Stop()
		runner.Observers = append(runner.Observers, hub)
		fmt.Fprintf(cmd.ErrOrStderr(), "monitor listening on ws://%s/ws\n", srv.Addr())
	}

	path := args[0]
	out := cmd.OutOrStdout()

	failed, err := runOnce(ctx, runner, path, out)
	if !runWatch {
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d commands failed", failed)
		}
		return nil
	}
	if err != nil {
		log.Error().Err(err).Str("plan", path).Msg("Plan run failed")
	}

	return watchAndRun(ctx, runner, path, out)
}

func startMonitor(cfg config.MonitorConfig) (*monitor.Server, *monitor.Hub, error) {
	hub := monitor.NewHub(log.Logger)
	srv, err := monitor.NewServer(monitor.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		Hub:    hub,
		Logger: log.Logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := srv.Start(); err != nil {
		return nil, nil, err
	}
	return srv, hub, nil
}

// runOnce loads and executes the plan and writes its report. It returns the
// number of failed commands.
func runOnce(ctx context.Context, runner *plan.Runner, path string, out io.Writer) (int, error) {
	p, err := plan.Load(path)
	if err != nil {
		return 0, err
	}

	report, err := runner.Run(ctx, p)
	if err != nil {
		return 0, err
	}

	if runFormat == "json" {
		err = report.WriteJSON(out)
	} else {
		err = report.WriteText(out)
	}
	return report.Failed, err
}

func watchAndRun(ctx context.Context, runner *plan.Runner, path string, out io.Writer) error {
	changes := make(chan struct{}, 1)
	w, err := plan.NewWatcher(path, 200*time.Millisecond, func(string) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			log.Info().Str("plan", path).Msg("Plan changed, re-running")
			if _, err := runOnce(ctx, runner, path, out); err != nil {
				log.Error().Err(err).Str("plan", path).Msg("Plan run failed")
			}
		}
	}
}
