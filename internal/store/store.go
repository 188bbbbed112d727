// Package store persists completed scan runs to PostgreSQL. Persistence is
// optional; when disabled the orchestrator runs entirely off the artifact
// directory and the flushed report.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/avolpe/scanflow/internal/errors"
	"github.com/avolpe/scanflow/internal/report"
	"github.com/avolpe/scanflow/internal/results"
)

const (
	defaultPostgresPort = 5432
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 2
)

// Config holds database configuration.
type Config struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port"`
	Database     string        `yaml:"database" json:"database"`
	Username     string        `yaml:"username" json:"username"`
	Password     string        `yaml:"password" json:"password"`
	SSLMode      string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" json:"conn_lifetime"`
}

// DefaultConfig returns the default database configuration. Database name,
// username, and password must be explicitly configured.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Host:         "localhost",
		Port:         defaultPostgresPort,
		SSLMode:      "disable",
		MaxOpenConns: defaultMaxOpenConns,
		MaxIdleConns: defaultMaxIdleConns,
		ConnLifetime: 5 * time.Minute,
	}
}

// Store wraps the database handle for run persistence.
type Store struct {
	db *sqlx.DB
}

// Connect establishes a PostgreSQL connection and verifies it with a ping.
func Connect(ctx context.Context, cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseConnection, "failed to connect to database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scan_runs (
		id UUID PRIMARY KEY,
		generated_at TIMESTAMPTZ NOT NULL,
		total_hosts INTEGER NOT NULL,
		vulnerable_hosts INTEGER NOT NULL,
		failed_hosts INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS host_summaries (
		run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		host TEXT NOT NULL,
		hostname TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		vulnerable BOOLEAN NOT NULL,
		finding_count INTEGER NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS findings (
		run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		protocol TEXT NOT NULL DEFAULT '',
		service TEXT NOT NULL DEFAULT '',
		software TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		vuln_id TEXT NOT NULL,
		publisher TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		recommendation TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates the run persistence tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.CodeDatabaseQuery, "failed to apply schema", err)
		}
	}
	return nil
}

// SaveRun persists a finished run with its host rows and findings in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, r *report.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.CodeDatabaseQuery, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scan_runs (id, generated_at, total_hosts, vulnerable_hosts, failed_hosts)
		 VALUES ($1, $2, $3, $4, $5)`,
		r.RunID, r.GeneratedAt, len(r.Hosts), r.VulnerableHosts(), r.FailedHosts())
	if err != nil {
		return errors.Wrap(errors.CodeDatabaseQuery, "failed to insert run", err)
	}

	for i := range r.Hosts {
		h := &r.Hosts[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO host_summaries (run_id, position, host, hostname, outcome, vulnerable, finding_count, failure_reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.RunID, i, h.Host, h.Hostname, string(h.Outcome), h.Vulnerable, h.FindingCount, h.FailureReason)
		if err != nil {
			return errors.Wrap(errors.CodeDatabaseQuery, "failed to insert host summary", err)
		}
	}

	for i := range r.Findings {
		f := &r.Findings[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO findings (run_id, host, port, protocol, service, software, version, vuln_id, publisher, severity, title, description, recommendation)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.RunID, f.Host, f.Port, f.Protocol, f.Service, f.Software, f.Version,
			f.VulnID, f.Publisher, f.Severity, f.Title, f.Description, f.Recommendation)
		if err != nil {
			return errors.Wrap(errors.CodeDatabaseQuery, "failed to insert finding", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodeDatabaseQuery, "failed to commit run", err)
	}
	return nil
}

// RunRecord is a persisted run header.
type RunRecord struct {
	ID              uuid.UUID `db:"id"`
	GeneratedAt     time.Time `db:"generated_at"`
	TotalHosts      int       `db:"total_hosts"`
	VulnerableHosts int       `db:"vulnerable_hosts"`
	FailedHosts     int       `db:"failed_hosts"`
}

// ListRuns returns persisted run headers, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunRecord
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, generated_at, total_hosts, vulnerable_hosts, failed_hosts
		 FROM scan_runs ORDER BY generated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseQuery, "failed to list runs", err)
	}
	return runs, nil
}

// GetRun loads one persisted run with its host rows and findings, hosts in
// their original report order.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*report.Report, error) {
	var rec RunRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, generated_at, total_hosts, vulnerable_hosts, failed_hosts
		 FROM scan_runs WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.CodeDatabaseQuery, "run not found")
		}
		return nil, errors.Wrap(errors.CodeDatabaseQuery, "failed to load run", err)
	}

	r := &report.Report{RunID: rec.ID, GeneratedAt: rec.GeneratedAt}

	type hostRow struct {
		Host          string `db:"host"`
		Hostname      string `db:"hostname"`
		Outcome       string `db:"outcome"`
		Vulnerable    bool   `db:"vulnerable"`
		FindingCount  int    `db:"finding_count"`
		FailureReason string `db:"failure_reason"`
	}
	var hosts []hostRow
	err = s.db.SelectContext(ctx, &hosts,
		`SELECT host, hostname, outcome, vulnerable, finding_count, failure_reason
		 FROM host_summaries WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseQuery, "failed to load host summaries", err)
	}
	for _, h := range hosts {
		r.Hosts = append(r.Hosts, results.HostSummary{
			Host:          h.Host,
			Hostname:      h.Hostname,
			Outcome:       results.Outcome(h.Outcome),
			Vulnerable:    h.Vulnerable,
			FindingCount:  h.FindingCount,
			FailureReason: h.FailureReason,
		})
	}

	type findingRow struct {
		Host           string `db:"host"`
		Port           int    `db:"port"`
		Protocol       string `db:"protocol"`
		Service        string `db:"service"`
		Software       string `db:"software"`
		Version        string `db:"version"`
		VulnID         string `db:"vuln_id"`
		Publisher      string `db:"publisher"`
		Severity       string `db:"severity"`
		Title          string `db:"title"`
		Description    string `db:"description"`
		Recommendation string `db:"recommendation"`
	}
	var findings []findingRow
	err = s.db.SelectContext(ctx, &findings,
		`SELECT host, port, protocol, service, software, version, vuln_id, publisher, severity, title, description, recommendation
		 FROM findings WHERE run_id = $1`, id)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseQuery, "failed to load findings", err)
	}
	for _, f := range findings {
		r.Findings = append(r.Findings, results.Finding{
			Host:           f.Host,
			Port:           f.Port,
			Protocol:       f.Protocol,
			Service:        f.Service,
			Software:       f.Software,
			Version:        f.Version,
			VulnID:         f.VulnID,
			Publisher:      f.Publisher,
			Severity:       f.Severity,
			Title:          f.Title,
			Description:    f.Description,
			Recommendation: f.Recommendation,
		})
	}

	return r, nil
}
