// Package sqlite provides a SQLite-backed run store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"qba/internal/storage"
	"qba/internal/storage/sqlite/migrations"
	"qba/internal/storage/sqlitemigrate"
)

// Store persists runs in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite run store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRun inserts run and its trials in one transaction.
func (s *Store) SaveRun(ctx context.Context, run storage.Run, trials []storage.Trial) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(run.Command) == "" {
		return "", fmt.Errorf("command is required")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	paramsJSON, err := json.Marshal(nonNilStrings(run.Params))
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	exclusionsJSON, err := json.Marshal(nonNilCounts(run.Exclusions))
	if err != nil {
		return "", fmt.Errorf("encode exclusions: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO runs (
		   id, command, created_at, dataset, measure, seed, params,
		   observed, point, low, high, level,
		   used, excluded, exclusions
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Command,
		toMillis(run.CreatedAt),
		run.Dataset,
		run.Measure,
		strconv.FormatUint(run.Seed, 10),
		string(paramsJSON),
		nullable(run.Observed),
		nullable(run.Point),
		nullable(run.Low),
		nullable(run.High),
		nullable(run.Level),
		run.Used,
		run.Excluded,
		string(exclusionsJSON),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", storage.ErrAlreadyExists
		}
		return "", fmt.Errorf("insert run: %w", err)
	}

	if len(trials) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO trials (run_id, idx, estimate, error) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("prepare trial insert: %w", err)
		}
		defer stmt.Close()
		for _, t := range trials {
			if _, err := stmt.ExecContext(ctx, run.ID, t.Index, nullable(t.Estimate), t.Error); err != nil {
				return "", fmt.Errorf("insert trial %d: %w", t.Index, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, command, created_at, dataset, measure, seed, params,
	observed, point, low, high, level, used, excluded, exclusions`

// GetRun returns one run and its trials.
func (s *Store) GetRun(ctx context.Context, id string) (storage.Run, []storage.Trial, error) {
	if err := ctx.Err(); err != nil {
		return storage.Run{}, nil, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Run{}, nil, fmt.Errorf("storage is not configured")
	}
	run, err := scanRun(s.sqlDB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Run{}, nil, storage.ErrNotFound
		}
		return storage.Run{}, nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT idx, estimate, error FROM trials WHERE run_id = ? ORDER BY idx`, run.ID)
	if err != nil {
		return storage.Run{}, nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var trials []storage.Trial
	for rows.Next() {
		var (
			t   storage.Trial
			est sql.NullFloat64
		)
		if err := rows.Scan(&t.Index, &est, &t.Error); err != nil {
			return storage.Run{}, nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Estimate = fromNullable(est)
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return storage.Run{}, nil, fmt.Errorf("iterate trials: %w", err)
	}
	return run, trials, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (storage.Run, error) {
	var (
		run                           storage.Run
		createdAt                     int64
		seed, paramsJSON, exclJSON    string
		observed, point, low, high, l sql.NullFloat64
	)
	if err := row.Scan(
		&run.ID,
		&run.Command,
		&createdAt,
		&run.Dataset,
		&run.Measure,
		&seed,
		&paramsJSON,
		&observed,
		&point,
		&low,
		&high,
		&l,
		&run.Used,
		&run.Excluded,
		&exclJSON,
	); err != nil {
		return storage.Run{}, err
	}
	var err error
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return storage.Run{}, fmt.Errorf("decode seed: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return storage.Run{}, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(exclJSON), &run.Exclusions); err != nil {
		return storage.Run{}, fmt.Errorf("decode exclusions: %w", err)
	}
	run.CreatedAt = fromMillis(createdAt)
	run.Observed = fromNullable(observed)
	run.Point = fromNullable(point)
	run.Low = fromNullable(low)
	run.High = fromNullable(high)
	run.Level = fromNullable(l)
	return run, nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilCounts(v map[string]int) map[string]int {
	if v == nil {
		return map[string]int{}
	}
	return v
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.RunStore = (*Store)(nil)
