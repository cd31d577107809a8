// Package store persists accepted roster imports in PostgreSQL.
//
// An import is written in one transaction: a header row in roster_imports,
// then its shifts and worker statistics through COPY. Rejected imports are
// never persisted.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/config"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrDisabled is returned by callers holding no store.
	ErrDisabled = errors.WithHint(errors.New("persistence disabled"),
		"set DATABASE_URL to keep committed imports")

	// ErrImportNotFound is returned when no import has the requested id.
	ErrImportNotFound = errors.New("import not found")

	// ErrRejectedImport is returned when asked to persist a rejected run.
	ErrRejectedImport = errors.WithHint(errors.New("import was rejected"),
		"fix the reported errors before committing")
)

// Store reads and writes roster imports.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// DatabaseName returns the database named in a connection URL, for logging.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// ImportRecord is the header of a stored import.
type ImportRecord struct {
	ID              uuid.UUID    `json:"id"`
	FileName        string       `json:"fileName"`
	Profile         string       `json:"profile"`
	AutoSelected    bool         `json:"autoSelected"`
	RecordCount     int          `json:"recordCount"`
	WarningCount    int          `json:"warningCount"`
	ErrorCount      int          `json:"errorCount"`
	CorrectionCount int          `json:"correctionCount"`
	Summary         core.Summary `json:"summary"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// ImportDetail is a stored import with everything it produced.
type ImportDetail struct {
	ImportRecord
	Diagnostics core.Diagnostics       `json:"diagnostics"`
	Records     []core.ShiftRecord     `json:"records"`
	WorkerStats map[string]*WorkerStat `json:"workerStats"`
}

// WorkerStat is core.WorkerStat as stored.
type WorkerStat = core.WorkerStat

// recordFromResult builds the header row for an accepted result.
func recordFromResult(id uuid.UUID, res *core.Result) ImportRecord {
	return ImportRecord{
		ID:              id,
		FileName:        res.FileName,
		Profile:         res.Profile,
		AutoSelected:    res.AutoSelected,
		RecordCount:     len(res.Records),
		WarningCount:    len(res.Diagnostics.Warnings),
		ErrorCount:      len(res.Diagnostics.Errors),
		CorrectionCount: len(res.Diagnostics.CorrectionSummary),
		Summary:         res.Summary,
	}
}

// SaveImport persists an accepted result under id.
func (s *Store) SaveImport(ctx context.Context, id uuid.UUID, res *core.Result) error {
	if res == nil || !res.Accepted {
		return ErrRejectedImport
	}

	rec := recordFromResult(id, res)
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return errors.Wrap(err, "encode summary")
	}
	diagnostics, err := json.Marshal(res.Diagnostics)
	if err != nil {
		return errors.Wrap(err, "encode diagnostics")
	}
	workers, err := workerRows(id, res.WorkerStats)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO roster_imports
			(id, file_name, profile, auto_selected, record_count, warning_count,
			 error_count, correction_count, summary, diagnostics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.FileName, rec.Profile, rec.AutoSelected, rec.RecordCount,
		rec.WarningCount, rec.ErrorCount, rec.CorrectionCount, summary, diagnostics,
	)
	if err != nil {
		return errors.Wrapf(err, "insert import %s", id)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"roster_shifts"}, shiftColumns,
		pgx.CopyFromRows(shiftRows(id, res.Records))); err != nil {
		return errors.Wrapf(err, "copy shifts for import %s", id)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"roster_worker_stats"}, workerColumns,
		pgx.CopyFromRows(workers)); err != nil {
		return errors.Wrapf(err, "copy worker stats for import %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit import")
	}
	return nil
}

var (
	shiftColumns = []string{
		"import_id", "source_row", "shift_date", "shift_type",
		"expected_count", "assigned_workers", "has_coverage_gap",
	}
	workerColumns = []string{
		"import_id", "worker_key", "worker_name", "total_shifts", "by_shift_type", "dates",
	}
)

// shiftRows converts records into COPY rows in shiftColumns order.
func shiftRows(id uuid.UUID, records []core.ShiftRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		workers := r.AssignedWorkers
		if workers == nil {
			workers = []string{}
		}
		rows = append(rows, []any{
			id, r.SourceRow, r.Date, r.ShiftType, r.ExpectedCount, workers, r.HasCoverageGap,
		})
	}
	return rows
}

// workerRows converts worker statistics into COPY rows ordered by key.
func workerRows(id uuid.UUID, stats map[string]*core.WorkerStat) ([][]any, error) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		st := stats[k]
		byType, err := json.Marshal(st.ByShiftType)
		if err != nil {
			return nil, errors.Wrapf(err, "encode shift counts for %s", k)
		}
		dates := st.Dates
		if dates == nil {
			dates = []string{}
		}
		rows = append(rows, []any{id, k, st.Name, st.TotalShifts, byType, dates})
	}
	return rows, nil
}

const importColumns = `id, file_name, profile, auto_selected, record_count, warning_count,
	error_count, correction_count, summary, created_at`

func scanImport(row pgx.CollectableRow) (ImportRecord, error) {
	var (
		rec     ImportRecord
		summary []byte
	)
	err := row.Scan(&rec.ID, &rec.FileName, &rec.Profile, &rec.AutoSelected, &rec.RecordCount,
		&rec.WarningCount, &rec.ErrorCount, &rec.CorrectionCount, &summary, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(summary, &rec.Summary); err != nil {
		return rec, errors.Wrapf(err, "decode summary of import %s", rec.ID)
	}
	return rec, nil
}

// ListImports returns the most recent imports, newest first.
func (s *Store) ListImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+importColumns+` FROM roster_imports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list imports")
	}
	imports, err := pgx.CollectRows(rows, scanImport)
	if err != nil {
		return nil, errors.Wrap(err, "list imports")
	}
	return imports, nil
}

// GetImport loads one import with its shifts and worker statistics.
func (s *Store) GetImport(ctx context.Context, id uuid.UUID) (*ImportDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+importColumns+`, diagnostics FROM roster_imports WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get import %s", id)
	}
	var diagnostics []byte
	rec, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (ImportRecord, error) {
		var rec ImportRecord
		var summary []byte
		if err := row.Scan(&rec.ID, &rec.FileName, &rec.Profile, &rec.AutoSelected, &rec.RecordCount,
			&rec.WarningCount, &rec.ErrorCount, &rec.CorrectionCount, &summary, &rec.CreatedAt,
			&diagnostics); err != nil {
			return rec, err
		}
		return rec, json.Unmarshal(summary, &rec.Summary)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrImportNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get import %s", id)
	}

	detail := &ImportDetail{ImportRecord: rec, WorkerStats: map[string]*WorkerStat{}}
	if err := json.Unmarshal(diagnostics, &detail.Diagnostics); err != nil {
		return nil, errors.Wrapf(err, "decode diagnostics of import %s", id)
	}

	shiftRows, err := s.pool.Query(ctx, `
		SELECT source_row, shift_date, shift_type, expected_count, assigned_workers, has_coverage_gap
		FROM roster_shifts WHERE import_id = $1 ORDER BY source_row`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get shifts of import %s", id)
	}
	detail.Records, err = pgx.CollectRows(shiftRows, func(row pgx.CollectableRow) (core.ShiftRecord, error) {
		var r core.ShiftRecord
		err := row.Scan(&r.SourceRow, &r.Date, &r.ShiftType, &r.ExpectedCount, &r.AssignedWorkers, &r.HasCoverageGap)
		return r, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get shifts of import %s", id)
	}

	statRows, err := s.pool.Query(ctx, `
		SELECT worker_key, worker_name, total_shifts, by_shift_type, dates
		FROM roster_worker_stats WHERE import_id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get worker stats of import %s", id)
	}
	defer statRows.Close()
	for statRows.Next() {
		var (
			key    string
			st     WorkerStat
			byType []byte
		)
		if err := statRows.Scan(&key, &st.Name, &st.TotalShifts, &byType, &st.Dates); err != nil {
			return nil, errors.Wrapf(err, "scan worker stats of import %s", id)
		}
		if err := json.Unmarshal(byType, &st.ByShiftType); err != nil {
			return nil, errors.Wrapf(err, "decode shift counts of %s", key)
		}
		detail.WorkerStats[key] = &st
	}
	if err := statRows.Err(); err != nil {
		return nil, errors.Wrapf(err, "get worker stats of import %s", id)
	}
	return detail, nil
}

// DeleteImport removes an import and, by cascade, its shifts and statistics.
func (s *Store) DeleteImport(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roster_imports WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete import %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrImportNotFound, "%s", id)
	}
	return nil
}
