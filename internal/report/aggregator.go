// Package report merges per-host summaries and findings into the final
// scan report. Rows are emitted in candidate order, never completion order,
// so the report layout is reproducible across runs.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/avolpe/scanflow/internal/metrics"
	"github.com/avolpe/scanflow/internal/results"
	"github.com/avolpe/scanflow/internal/targets"
)

// Report is the ordered, append-only collection of host rows for one run.
// Immutable after the final flush.
type Report struct {
	RunID       uuid.UUID             `json:"run_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Hosts       []results.HostSummary `json:"hosts"`
	Findings    []results.Finding     `json:"findings"`
}

// VulnerableHosts counts hosts with at least one finding.
func (r *Report) VulnerableHosts() int {
	n := 0
	for i := range r.Hosts {
		if r.Hosts[i].Vulnerable {
			n++
		}
	}
	return n
}

// FailedHosts counts hosts whose scan failed outright.
func (r *Report) FailedHosts() int {
	n := 0
	for i := range r.Hosts {
		if r.Hosts[i].Outcome == results.OutcomeScanFailed {
			n++
		}
	}
	return n
}

// Aggregate merges summaries and findings into a report ordered by the
// candidate list. Every candidate gets exactly one host row: hosts with no
// summary (never scanned, e.g. filtered as inactive after a mid-run stop)
// are skipped only if absent from summaries — callers are expected to
// supply a summary, real or failed, for every host that reached a terminal
// job state.
func Aggregate(order targets.CandidateList, summaries []results.HostSummary, findings []results.Finding) *Report {
	byHost := make(map[string]results.HostSummary, len(summaries))
	for _, s := range summaries {
		if _, dup := byHost[s.Host]; !dup {
			byHost[s.Host] = s
		}
	}

	findingsByHost := make(map[string][]results.Finding)
	for _, f := range findings {
		findingsByHost[f.Host] = append(findingsByHost[f.Host], f)
	}

	report := &Report{
		RunID:       uuid.New(),
		GeneratedAt: time.Now(),
	}

	m := metrics.Default()
	for _, target := range order {
		summary, ok := byHost[target.Address]
		if !ok {
			continue
		}
		report.Hosts = append(report.Hosts, summary)
		report.Findings = append(report.Findings, findingsByHost[target.Address]...)

		for _, f := range findingsByHost[target.Address] {
			m.RecordFinding(f.Severity)
		}
		m.RecordArtifact(string(summary.Outcome))
	}

	return report
}
