package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/avolpe/scanflow/internal/report"
)

var scanFlags struct {
	targetFiles   []string
	maxConcurrent int
	format        string
	output        string
	keepArtifacts bool
}

var scanCmd = &cobra.Command{
	Use:   "scan [targets...]",
	Short: "Run one scan batch over the given targets",
	Long: `Run a complete scan batch: probe the targets for liveness, launch one
scan worker per active host, and aggregate the results into a report.

Targets are IPv4 addresses or CIDR blocks, given as arguments or read
from files with --target-file (one entry per line, # comments allowed).`,
	Example: `  scanflow scan 10.0.0.5
  scanflow scan 10.0.0.0/24 192.168.1.10
  scanflow scan --target-file hosts.txt --format json --output report.json`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringSliceVarP(&scanFlags.targetFiles, "target-file", "f", nil,
		"file with one target per line (repeatable)")
	scanCmd.Flags().IntVar(&scanFlags.maxConcurrent, "max-concurrent", 0,
		"maximum concurrent scan workers (overrides config)")
	scanCmd.Flags().StringVar(&scanFlags.format, "format", "",
		"report format: csv, json, or table (overrides config)")
	scanCmd.Flags().StringVarP(&scanFlags.output, "output", "o", "",
		"report file path (default from config, stdout if unset)")
	scanCmd.Flags().BoolVar(&scanFlags.keepArtifacts, "keep-artifacts", false,
		"do not clear stale artifacts before the run")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scanFlags.maxConcurrent > 0 {
		cfg.Scan.MaxConcurrent = scanFlags.maxConcurrent
	}
	if scanFlags.format != "" {
		cfg.Report.Format = scanFlags.format
	}
	if scanFlags.output != "" {
		cfg.Report.Output = scanFlags.output
	}
	if scanFlags.keepArtifacts {
		cfg.Artifacts.ClearOnStart = false
	}

	inputs, err := gatherTargets(args, scanFlags.targetFiles)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no targets given; pass addresses or --target-file")
	}

	ctx := cmd.Context()
	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out, closeOut, err := openReportOutput(cfg.Report.Output)
	if err != nil {
		return err
	}
	defer closeOut()

	r, err := p.ExecuteAndFlush(ctx, inputs, out, report.Format(cfg.Report.Format))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Run %s finished: %d hosts, %d vulnerable, %d failed\n",
		r.RunID, len(r.Hosts), r.VulnerableHosts(), r.FailedHosts())
	return nil
}

// openReportOutput returns the report sink and its closer. An empty path
// means stdout, which is never closed.
func openReportOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
