package cli

import (
	"github.com/spf13/cobra"

	"github.com/avolpe/scanflow/internal/artifacts"
	"github.com/avolpe/scanflow/internal/pipeline"
	"github.com/avolpe/scanflow/internal/report"
)

var reportFlags struct {
	format string
	output string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-aggregate the artifacts of a previous run",
	Long: `Rebuild the report from the artifacts already in the artifact directory,
without probing or scanning anything. Useful to re-render a finished run
in another format or after an interrupted aggregation.`,
	Example: `  scanflow report --format table
  scanflow report --format csv --output rerun.csv`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFlags.format, "format", "",
		"report format: csv, json, or table (overrides config)")
	reportCmd.Flags().StringVarP(&reportFlags.output, "output", "o", "",
		"report file path (default from config, stdout if unset)")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if reportFlags.format != "" {
		cfg.Report.Format = reportFlags.format
	}
	if reportFlags.output != "" {
		cfg.Report.Output = reportFlags.output
	}

	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return err
	}

	r, err := pipeline.Reaggregate(cmd.Context(), artifactStore)
	if err != nil {
		return err
	}

	out, closeOut, err := openReportOutput(cfg.Report.Output)
	if err != nil {
		return err
	}
	defer closeOut()

	return report.Flush(r, out, report.Format(cfg.Report.Format))
}
