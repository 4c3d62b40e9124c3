package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database file and applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite store: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrateUp() error {
	src, err := iofs.New(migrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, _, _ := m.Version()
	logrus.WithField("version", version).Debug("sqlite store migrated")
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) SaveTable(ctx context.Context, run Run, table *stats.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, job, created_at, unit_column, unit_count, row_count) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.CreatedAt.UTC().Format(sqliteTimeLayout), unitColumn(table), len(table.Units()), len(table.Rows),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples
(run_id, seq, unit, unit_order, interval_from, interval_to, statistic, column_order, value)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range longFormat(table) {
		if _, err := stmt.ExecContext(ctx, run.ID, smp.Seq, smp.Unit, smp.UnitOrder,
			smp.From.UTC().Format(sqliteTimeLayout), smp.To.UTC().Format(sqliteTimeLayout),
			smp.Statistic, smp.ColumnOrder, smp.Value,
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (s *SQLite) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, job, created_at, unit_column, unit_count, row_count FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run       Run
			createdAt string
		)
		if err := rows.Scan(&run.ID, &run.Job, &createdAt, &run.UnitColumn, &run.Units, &run.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse run time: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLite) runExists(ctx context.Context, runID string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&n); err != nil {
		return fmt.Errorf("failed to query run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *SQLite) Units(ctx context.Context, runID string) ([]string, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	return s.queryStrings(ctx, `SELECT unit FROM samples WHERE run_id = ? GROUP BY unit ORDER BY MIN(unit_order)`, runID)
}

func (s *SQLite) Statistics(ctx context.Context, runID string) ([]string, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	return s.queryStrings(ctx, `SELECT statistic FROM samples WHERE run_id = ? GROUP BY statistic ORDER BY MIN(column_order)`, runID)
}

func (s *SQLite) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *SQLite) Series(ctx context.Context, runID, unit, statistic string) ([]Point, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	samples, err := s.samples(ctx, `AND unit = ? AND statistic = ?`, runID, unit, statistic)
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(samples))
	for i, smp := range samples {
		points[i] = Point{From: smp.From, To: smp.To, Value: smp.Value}
	}
	return points, nil
}

func (s *SQLite) LoadTable(ctx context.Context, runID string) (*stats.Table, error) {
	var column string
	err := s.db.QueryRowContext(ctx, `SELECT unit_column FROM runs WHERE id = ?`, runID).Scan(&column)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	samples, err := s.samples(ctx, "", runID)
	if err != nil {
		return nil, err
	}
	return wideFormat(column, samples), nil
}

func (s *SQLite) samples(ctx context.Context, filter string, args ...any) ([]sample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, unit, unit_order, interval_from, interval_to, statistic, column_order, value
FROM samples WHERE run_id = ? `+filter+` ORDER BY seq, column_order`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []sample
	for rows.Next() {
		var (
			smp      sample
			from, to string
			value    sql.NullFloat64
		)
		if err := rows.Scan(&smp.Seq, &smp.Unit, &smp.UnitOrder, &from, &to, &smp.Statistic, &smp.ColumnOrder, &value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if smp.From, err = time.Parse(sqliteTimeLayout, from); err != nil {
			return nil, fmt.Errorf("failed to parse interval: %w", err)
		}
		if smp.To, err = time.Parse(sqliteTimeLayout, to); err != nil {
			return nil, fmt.Errorf("failed to parse interval: %w", err)
		}
		if value.Valid {
			v := value.Float64
			smp.Value = &v
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}
