package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolpe/scanflow/internal/results"
	"github.com/avolpe/scanflow/internal/targets"
)

func order(addrs ...string) targets.CandidateList {
	list := make(targets.CandidateList, len(addrs))
	for i, a := range addrs {
		list[i] = targets.Target{Address: a}
	}
	return list
}

func TestAggregateOrdering(t *testing.T) {
	// Summaries arrive in completion order, which differs from input
	// order; the report must follow input order anyway.
	summaries := []results.HostSummary{
		{Host: "10.0.0.3", Outcome: results.OutcomeNoVulnerabilities},
		{Host: "10.0.0.1", Outcome: results.OutcomeVulnerabilitiesFound, Vulnerable: true, FindingCount: 1},
		{Host: "10.0.0.2", Outcome: results.OutcomeScanFailed, FailureReason: "worker crashed"},
	}
	findings := []results.Finding{
		{Host: "10.0.0.1", VulnID: "CVE-2024-0001", Severity: "HIGH"},
	}

	r := Aggregate(order("10.0.0.1", "10.0.0.2", "10.0.0.3"), summaries, findings)

	require.Len(t, r.Hosts, 3)
	assert.Equal(t, "10.0.0.1", r.Hosts[0].Host)
	assert.Equal(t, "10.0.0.2", r.Hosts[1].Host)
	assert.Equal(t, "10.0.0.3", r.Hosts[2].Host)

	assert.Equal(t, 1, r.VulnerableHosts())
	assert.Equal(t, 1, r.FailedHosts())
	require.Len(t, r.Findings, 1)
}

func TestAggregateZeroAndManyFindings(t *testing.T) {
	summaries := []results.HostSummary{
		{Host: "10.0.0.1", Outcome: results.OutcomeNoVulnerabilities},
		{Host: "10.0.0.2", Outcome: results.OutcomeVulnerabilitiesFound, Vulnerable: true, FindingCount: 2},
	}
	findings := []results.Finding{
		{Host: "10.0.0.2", VulnID: "A", Severity: "HIGH"},
		{Host: "10.0.0.2", VulnID: "B", Severity: "LOW"},
	}

	r := Aggregate(order("10.0.0.1", "10.0.0.2"), summaries, findings)

	require.Len(t, r.Hosts, 2)
	assert.Zero(t, r.Hosts[0].FindingCount)
	assert.Equal(t, 2, r.Hosts[1].FindingCount)
	assert.Len(t, r.Findings, 2)
}

func TestAggregateIgnoresUnknownHosts(t *testing.T) {
	summaries := []results.HostSummary{
		{Host: "10.0.0.1", Outcome: results.OutcomeNoVulnerabilities},
		{Host: "172.16.0.9", Outcome: results.OutcomeNoVulnerabilities},
	}

	r := Aggregate(order("10.0.0.1"), summaries, nil)

	require.Len(t, r.Hosts, 1)
	assert.Equal(t, "10.0.0.1", r.Hosts[0].Host)
}

func TestFlushCSV(t *testing.T) {
	summaries := []results.HostSummary{
		{Host: "10.0.0.1", Outcome: results.OutcomeVulnerabilitiesFound, Vulnerable: true, FindingCount: 1,
			Services: []results.Service{{Port: 80, Protocol: "TCP", Name: "http"}}},
		{Host: "10.0.0.2", Outcome: results.OutcomeScanFailed, FailureReason: "no artifact"},
	}
	findings := []results.Finding{
		{Host: "10.0.0.1", Port: 80, Protocol: "TCP", Service: "http",
			Software: "Apache httpd", Version: "2.4.49",
			VulnID: "CVE-2024-0001", Publisher: "NVD", Severity: "CRITICAL", Title: "RCE in demo app"},
	}
	r := Aggregate(order("10.0.0.1", "10.0.0.2"), summaries, findings)

	var buf bytes.Buffer
	require.NoError(t, Flush(r, &buf, FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	// header + summary + finding + summary
	require.Len(t, rows, 4)
	assert.Equal(t, "host", rows[0][0])
	assert.Equal(t, []string{"10.0.0.1", "summary"}, []string{rows[1][0], rows[1][2]})
	assert.Equal(t, []string{"10.0.0.1", "finding", "CVE-2024-0001"}, []string{rows[2][0], rows[2][2], rows[2][9]})
	assert.Equal(t, "Apache httpd", rows[2][7])
	assert.Equal(t, "2.4.49", rows[2][8])
	assert.Equal(t, "10.0.0.2", rows[3][0])
	assert.Contains(t, rows[3][12], "no artifact")
}

func TestFlushJSONRoundTrip(t *testing.T) {
	summaries := []results.HostSummary{
		{Host: "10.0.0.1", Outcome: results.OutcomeNoVulnerabilities},
	}
	r := Aggregate(order("10.0.0.1"), summaries, nil)

	var buf bytes.Buffer
	require.NoError(t, Flush(r, &buf, FormatJSON))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	require.Len(t, decoded.Hosts, 1)
	assert.Equal(t, results.OutcomeNoVulnerabilities, decoded.Hosts[0].Outcome)
}

func TestFlushTable(t *testing.T) {
	summaries := []results.HostSummary{
		{Host: "10.0.0.1", Hostname: "web01", Outcome: results.OutcomeVulnerabilitiesFound,
			Vulnerable: true, FindingCount: 1},
	}
	findings := []results.Finding{
		{Host: "10.0.0.1", VulnID: "REDIS_NO_AUTH", Severity: "HIGH"},
	}
	r := Aggregate(order("10.0.0.1"), summaries, findings)

	var buf bytes.Buffer
	require.NoError(t, Flush(r, &buf, FormatTable))

	out := buf.String()
	assert.Contains(t, out, "10.0.0.1")
	assert.Contains(t, out, "web01")
	assert.Contains(t, out, "REDIS_NO_AUTH")
}

func TestFlushUnknownFormat(t *testing.T) {
	r := Aggregate(nil, nil, nil)
	var buf bytes.Buffer
	assert.Error(t, Flush(r, &buf, "xml"))
}
