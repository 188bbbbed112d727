package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/avolpe/scanflow/internal/api"
	"github.com/avolpe/scanflow/internal/logging"
	"github.com/avolpe/scanflow/internal/report"
	"github.com/avolpe/scanflow/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scanflow as a long-lived service",
	Long: `Run scanflow as a daemon: recurring scans on a cron schedule over the
targets configured under scan.targets, with the status API exposing
health, run state, and metrics. Stops cleanly on SIGINT or SIGTERM;
a scan batch in flight drains its running workers first.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.API.Enabled && !cfg.Scheduler.Enabled {
		return fmt.Errorf("daemon mode needs api.enabled or scheduler.enabled")
	}
	if cfg.Scheduler.Enabled && len(cfg.Scan.Targets)+len(cfg.Scan.TargetFiles) == 0 {
		return fmt.Errorf("scheduled scans need scan.targets or scan.target_files")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := logging.Default().WithComponent("daemon")

	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(cfg.APIAddress(), p.Dispatcher())
		if err != nil {
			return err
		}
		if runs := p.RunStore(); runs != nil {
			server.SetRunStore(runs)
		}
	}

	runOnce := func(runCtx context.Context) error {
		inputs, err := gatherTargets(cfg.Scan.Targets, cfg.Scan.TargetFiles)
		if err != nil {
			return err
		}

		r, err := p.Execute(runCtx, inputs)
		if err != nil {
			return err
		}
		if server != nil {
			server.SetLatestReport(r)
		}

		if cfg.Report.Output != "" {
			out, closeOut, err := openReportOutput(cfg.Report.Output)
			if err != nil {
				return err
			}
			defer closeOut()
			return report.Flush(r, out, report.Format(cfg.Report.Format))
		}
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(runOnce)
		if err := sched.Start(cfg.Scheduler.Cron); err != nil {
			return err
		}
		defer sched.Stop()
		if server != nil {
			server.SetScheduler(sched)
		}
		logger.Info("Recurring scans scheduled", "cron", cfg.Scheduler.Cron)
	}

	if server != nil {
		group.Go(func() error {
			return server.Start(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		return nil
	})

	logger.Info("Daemon running")
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Daemon stopped")
	return nil
}
