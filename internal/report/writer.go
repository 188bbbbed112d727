package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/avolpe/scanflow/internal/errors"
	"github.com/avolpe/scanflow/internal/results"
)

// Format selects a report sink encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// Flush writes the report to w in the given format. The report is
// immutable afterwards by convention; Flush itself never mutates it.
func Flush(r *Report, w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return flushJSON(r, w)
	case FormatTable:
		return flushTable(r, w)
	case FormatCSV, "":
		return flushCSV(r, w)
	default:
		return errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown report format %q", format))
	}
}

func flushJSON(r *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(errors.CodeReportWrite, "failed to encode report", err)
	}
	return nil
}

var csvHeader = []string{
	"host", "hostname", "row_type", "outcome", "port", "protocol",
	"service", "software", "version", "vuln_id", "publisher", "severity", "detail",
}

// flushCSV emits one summary row per host followed by that host's finding
// rows, in candidate order.
func flushCSV(r *Report, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(errors.CodeReportWrite, "failed to write report header", err)
	}

	findingsByHost := groupFindings(r.Findings)

	for i := range r.Hosts {
		host := &r.Hosts[i]
		if err := cw.Write(summaryRow(host)); err != nil {
			return errors.Wrap(errors.CodeReportWrite, "failed to write summary row", err)
		}
		for _, f := range findingsByHost[host.Host] {
			if err := cw.Write(findingRow(&f)); err != nil {
				return errors.Wrap(errors.CodeReportWrite, "failed to write finding row", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(errors.CodeReportWrite, "failed to flush report", err)
	}
	return nil
}

func summaryRow(host *results.HostSummary) []string {
	detail := host.FailureReason
	if detail == "" {
		detail = describeServices(host.Services)
	}
	return []string{
		host.Host, host.Hostname, "summary", string(host.Outcome),
		"", "", "", "", "", "", "",
		"", detail,
	}
}

func findingRow(f *results.Finding) []string {
	return []string{
		f.Host, "", "finding", "",
		strconv.Itoa(f.Port), f.Protocol,
		f.Service, f.Software, f.Version,
		f.VulnID, f.Publisher, f.Severity,
		f.Title,
	}
}

func describeServices(services []results.Service) string {
	if len(services) == 0 {
		return "no exposed services observed"
	}
	parts := make([]string, 0, len(services))
	for _, svc := range services {
		name := svc.Name
		if name == "" {
			name = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%d/%s %s", svc.Port, strings.ToLower(svc.Protocol), name))
	}
	return strings.Join(parts, "; ")
}

// flushTable renders a human-readable summary table. Column widths are
// handled by the table writer; they carry no semantics.
func flushTable(r *Report, w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Host", "Hostname", "Outcome", "Services", "Findings", "Detail")

	findingsByHost := groupFindings(r.Findings)

	for i := range r.Hosts {
		host := &r.Hosts[i]
		detail := host.FailureReason
		if detail == "" && host.Vulnerable {
			titles := make([]string, 0, len(findingsByHost[host.Host]))
			for _, f := range findingsByHost[host.Host] {
				titles = append(titles, fmt.Sprintf("%s (%s)", f.VulnID, f.Severity))
			}
			detail = strings.Join(titles, "; ")
		}

		if err := table.Append([]string{
			host.Host,
			host.Hostname,
			string(host.Outcome),
			strconv.Itoa(len(host.Services)),
			strconv.Itoa(host.FindingCount),
			detail,
		}); err != nil {
			return errors.Wrap(errors.CodeReportWrite, "failed to append report row", err)
		}
	}

	if err := table.Render(); err != nil {
		return errors.Wrap(errors.CodeReportWrite, "failed to render report table", err)
	}
	return nil
}

func groupFindings(findings []results.Finding) map[string][]results.Finding {
	grouped := make(map[string][]results.Finding)
	for _, f := range findings {
		grouped[f.Host] = append(grouped[f.Host], f)
	}
	return grouped
}
