package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolpe/scanflow/internal/report"
	"github.com/avolpe/scanflow/internal/results"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewWithDB(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestSaveRun(t *testing.T) {
	s, mock := newMockStore(t)

	r := &report.Report{
		RunID:       uuid.New(),
		GeneratedAt: time.Now(),
		Hosts: []results.HostSummary{
			{Host: "10.0.0.1", Outcome: results.OutcomeVulnerabilitiesFound, Vulnerable: true, FindingCount: 1},
			{Host: "10.0.0.2", Outcome: results.OutcomeScanFailed, FailureReason: "no artifact"},
		},
		Findings: []results.Finding{
			{Host: "10.0.0.1", Port: 6379, Software: "Redis", Version: "6.0.9", VulnID: "REDIS_NO_AUTH", Severity: "CRITICAL"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scan_runs")).
		WithArgs(r.RunID, r.GeneratedAt, 2, 1, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO host_summaries")).
		WithArgs(r.RunID, 0, "10.0.0.1", "", "vulnerabilities_found", true, 1, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO host_summaries")).
		WithArgs(r.RunID, 1, "10.0.0.2", "", "scan_failed", false, 0, "no artifact").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO findings")).
		WithArgs(r.RunID, "10.0.0.1", 6379, "", "", "Redis", "6.0.9", "REDIS_NO_AUTH", "", "CRITICAL", "", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveRun(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)

	r := &report.Report{RunID: uuid.New(), GeneratedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scan_runs")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	assert.Error(t, s.SaveRun(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, generated_at, total_hosts, vulnerable_hosts, failed_hosts")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "generated_at", "total_hosts", "vulnerable_hosts", "failed_hosts"}).
			AddRow(id, now, 3, 1, 0))

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 3, runs[0].TotalHosts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM scan_runs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "generated_at", "total_hosts", "vulnerable_hosts", "failed_hosts"}))

	_, err := s.GetRun(context.Background(), id)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunPreservesHostOrder(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM scan_runs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "generated_at", "total_hosts", "vulnerable_hosts", "failed_hosts"}).
			AddRow(id, now, 2, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM host_summaries WHERE run_id = $1 ORDER BY position")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"host", "hostname", "outcome", "vulnerable", "finding_count", "failure_reason"}).
			AddRow("10.0.0.1", "", "no_vulnerabilities", false, 0, "").
			AddRow("10.0.0.2", "web02", "no_vulnerabilities", false, 0, ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM findings WHERE run_id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"host", "port", "protocol", "service", "software", "version", "vuln_id", "publisher", "severity", "title", "description", "recommendation"}))

	r, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, r.Hosts, 2)
	assert.Equal(t, "10.0.0.1", r.Hosts[0].Host)
	assert.Equal(t, "web02", r.Hosts[1].Hostname)
	assert.Empty(t, r.Findings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunLoadsFindingSoftware(t *testing.T) {
	s, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM scan_runs WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "generated_at", "total_hosts", "vulnerable_hosts", "failed_hosts"}).
			AddRow(id, now, 1, 1, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM host_summaries WHERE run_id = $1 ORDER BY position")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"host", "hostname", "outcome", "vulnerable", "finding_count", "failure_reason"}).
			AddRow("10.0.0.1", "", "vulnerabilities_found", true, 1, ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM findings WHERE run_id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"host", "port", "protocol", "service", "software", "version", "vuln_id", "publisher", "severity", "title", "description", "recommendation"}).
			AddRow("10.0.0.1", 6379, "TCP", "redis", "Redis", "6.0.9", "REDIS_NO_AUTH", "GOOGLE", "CRITICAL", "", "", ""))

	r, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, "Redis", r.Findings[0].Software)
	assert.Equal(t, "6.0.9", r.Findings[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
