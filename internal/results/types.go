// Package results parses raw per-host scan artifacts into normalized
// records. An artifact either reports vulnerabilities, reports a clean host
// with its exposed-service inventory, or is unparsable; all three outcomes
// produce exactly one host summary so the final report accounts for every
// scanned host.
package results

// Outcome tags what a host's artifact contained.
type Outcome string

const (
	OutcomeNoVulnerabilities    Outcome = "no_vulnerabilities"
	OutcomeVulnerabilitiesFound Outcome = "vulnerabilities_found"
	OutcomeUnparsable           Outcome = "unparsable"
	OutcomeScanFailed           Outcome = "scan_failed"
)

// Service is one exposed network endpoint observed on a host, recorded
// whether or not a vulnerability was found behind it.
type Service struct {
	Port     int      `json:"port"`
	Protocol string   `json:"protocol"`
	Name     string   `json:"name"`
	Software string   `json:"software,omitempty"`
	Version  string   `json:"version,omitempty"`
	CPEs     []string `json:"cpes,omitempty"`
	Banner   string   `json:"banner,omitempty"`
}

// Finding is one detected vulnerability. Immutable once parsed.
type Finding struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Service        string `json:"service"`
	Software       string `json:"software,omitempty"`
	Version        string `json:"version,omitempty"`
	VulnID         string `json:"vuln_id"`
	Publisher      string `json:"publisher"`
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}

// HostSummary is the one-row-per-host accounting record. It exists for
// every candidate that reached a terminal job state, including failures.
type HostSummary struct {
	Host          string    `json:"host"`
	Hostname      string    `json:"hostname,omitempty"`
	Outcome       Outcome   `json:"outcome"`
	Vulnerable    bool      `json:"vulnerable"`
	Services      []Service `json:"services,omitempty"`
	FindingCount  int       `json:"finding_count"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// FailedSummary builds the explicit scan-failed marker row for a host whose
// job or artifact never yielded parseable results.
func FailedSummary(host, reason string) HostSummary {
	return HostSummary{
		Host:          host,
		Outcome:       OutcomeScanFailed,
		FailureReason: reason,
	}
}
