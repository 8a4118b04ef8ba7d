// Package store keeps validation run history in PostgreSQL.
//
// Each run is one row in validation_runs holding the summary counts and the
// full JSON report. Its diagnostics are also written one per row to
// validation_diagnostics so they can be counted and filtered in SQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvlint/internal/core"
)

var (
	// ErrRunNotFound is returned by GetRun for an unknown id.
	ErrRunNotFound = errors.New("run not found")

	// ErrDisabled is returned by handlers when no database is configured.
	ErrDisabled = errors.New("run history is disabled")
)

const (
	runsTable        = "validation_runs"
	diagnosticsTable = "validation_diagnostics"

	// diagnosticBatchSize bounds the rows in one INSERT; PostgreSQL allows
	// at most 65535 bind parameters per statement.
	diagnosticBatchSize = 1000

	// DefaultListLimit is used when ListRuns gets a non-positive limit.
	DefaultListLimit = 50
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS validation_runs (
		id            UUID PRIMARY KEY,
		started_at    TIMESTAMPTZ NOT NULL,
		duration_ms   BIGINT NOT NULL,
		valid         BOOLEAN NOT NULL,
		tables        INTEGER NOT NULL,
		rows          BIGINT NOT NULL,
		error_count   INTEGER NOT NULL,
		warning_count INTEGER NOT NULL,
		client_ip     TEXT NOT NULL DEFAULT '',
		user_agent    TEXT NOT NULL DEFAULT '',
		report        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS validation_runs_started_at_idx ON validation_runs (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS validation_diagnostics (
		run_id    UUID NOT NULL REFERENCES validation_runs (id) ON DELETE CASCADE,
		table_url TEXT NOT NULL,
		severity  TEXT NOT NULL,
		kind      TEXT NOT NULL,
		category  TEXT NOT NULL,
		row_num   INTEGER NOT NULL,
		col_num   INTEGER NOT NULL,
		content   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS validation_diagnostics_run_idx ON validation_diagnostics (run_id)`,
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RunSummary is one row of the run list.
type RunSummary struct {
	ID           uuid.UUID     `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Valid        bool          `json:"valid"`
	Tables       int           `json:"tables"`
	Rows         int64         `json:"rows"`
	ErrorCount   int           `json:"error_count"`
	WarningCount int           `json:"warning_count"`
	ClientIP     string        `json:"client_ip,omitempty"`
}

// KindCount is a diagnostic kind with the number of times a run raised it.
type KindCount struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// Store saves and reads runs. It implements core.RunStore.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the history tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run and its diagnostics in one transaction.
func (s *Store) SaveRun(ctx context.Context, r *core.Report) error {
	runStmt, err := insertRun(r)
	if err != nil {
		return err
	}
	diagStmts, err := insertDiagnostics(r)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, runStmt.sql, runStmt.args...); err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	for _, st := range diagStmts {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("insert diagnostics for run %s: %w", r.RunID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", r.RunID, err)
	}
	return nil
}

// GetRun returns the stored report of a run.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*core.Report, error) {
	query, args, err := psql.Select("report").From(runsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	var report core.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &report, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query, args, err := listRunsQuery(limit).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			rs         RunSummary
			durationMS int64
		)
		if err := rows.Scan(&rs.ID, &rs.StartedAt, &durationMS, &rs.Valid, &rs.Tables,
			&rs.Rows, &rs.ErrorCount, &rs.WarningCount, &rs.ClientIP); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rs.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rs)
	}
	return out, rows.Err()
}

// KindCounts groups a run's diagnostics by kind and severity.
func (s *Store) KindCounts(ctx context.Context, id uuid.UUID) ([]KindCount, error) {
	query, args, err := kindCountsQuery(id).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count diagnostics: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[KindCount])
}

// DeleteRunsBefore removes runs started before t with their diagnostics.
func (s *Store) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	query, args, err := psql.Delete(runsTable).Where(sq.Lt{"started_at": t}).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllRuns empties the history.
func (s *Store) DeleteAllRuns(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE "+diagnosticsTable+", "+runsTable); err != nil {
		return fmt.Errorf("truncate history: %w", err)
	}
	return nil
}

type statement struct {
	sql  string
	args []any
}

func insertRun(r *core.Report) (statement, error) {
	id, err := uuid.Parse(r.RunID)
	if err != nil {
		return statement{}, fmt.Errorf("run id %q: %w", r.RunID, err)
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return statement{}, fmt.Errorf("encode run %s: %w", r.RunID, err)
	}

	query, args, err := psql.Insert(runsTable).
		Columns("id", "started_at", "duration_ms", "valid", "tables", "rows",
			"error_count", "warning_count", "client_ip", "user_agent", "report").
		Values(id, r.StartedAt, r.Duration.Milliseconds(), r.Valid, len(r.Tables), r.Rows(),
			len(r.Errors), len(r.Warnings), r.Client.IPAddress, r.Client.UserAgent, raw).
		ToSql()
	if err != nil {
		return statement{}, err
	}
	return statement{query, args}, nil
}

func insertDiagnostics(r *core.Report) ([]statement, error) {
	all := make([]core.Diagnostic, 0, len(r.Errors)+len(r.Warnings))
	all = append(all, r.Errors...)
	all = append(all, r.Warnings...)

	var out []statement
	for start := 0; start < len(all); start += diagnosticBatchSize {
		end := min(start+diagnosticBatchSize, len(all))
		stmt := psql.Insert(diagnosticsTable).
			Columns("run_id", "table_url", "severity", "kind", "category", "row_num", "col_num", "content")
		for _, d := range all[start:end] {
			stmt = stmt.Values(r.RunID, d.Table, string(d.Severity), d.Kind.String(),
				string(d.Category), d.Row, d.Column, d.Content)
		}
		query, args, err := stmt.ToSql()
		if err != nil {
			return nil, err
		}
		out = append(out, statement{query, args})
	}
	return out, nil
}

func listRunsQuery(limit int) sq.SelectBuilder {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return psql.Select("id", "started_at", "duration_ms", "valid", "tables", "rows",
		"error_count", "warning_count", "client_ip").
		From(runsTable).
		OrderBy("started_at DESC").
		Limit(uint64(limit))
}

func kindCountsQuery(id uuid.UUID) sq.SelectBuilder {
	return psql.Select("kind", "severity", "COUNT(*)::int").
		From(diagnosticsTable).
		Where(sq.Eq{"run_id": id}).
		GroupBy("kind", "severity").
		OrderBy("COUNT(*) DESC", "kind")
}
