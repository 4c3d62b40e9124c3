package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := migratePostgres(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func migratePostgres(dsn string) error {
	src, err := iofs.New(migrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres DSN to the scheme of the pgx v5 migrate driver.
func migrateURL(dsn string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) SaveTable(ctx context.Context, run Run, table *stats.Table) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO runs (id, job, created_at, unit_column, unit_count, row_count) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Job, run.CreatedAt, unitColumn(table), len(table.Units()), len(table.Rows),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	samples := longFormat(table)
	batch := &pgx.Batch{}
	query := `INSERT INTO samples (run_id, seq, unit, unit_order, interval_from, interval_to, statistic, column_order, value)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	for _, s := range samples {
		batch.Queue(query, run.ID, s.Seq, s.Unit, s.UnitOrder, s.From, s.To, s.Statistic, s.ColumnOrder, s.Value)
	}

	res := tx.SendBatch(ctx, batch)
	for range samples {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func (p *Postgres) Runs(ctx context.Context) ([]Run, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, job, created_at, unit_column, unit_count, row_count FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Job, &run.CreatedAt, &run.UnitColumn, &run.Units, &run.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (p *Postgres) runExists(ctx context.Context, runID string) error {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, runID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to query run: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (p *Postgres) Units(ctx context.Context, runID string) ([]string, error) {
	if err := p.runExists(ctx, runID); err != nil {
		return nil, err
	}
	return p.queryStrings(ctx, `SELECT unit FROM samples WHERE run_id = $1 GROUP BY unit ORDER BY MIN(unit_order)`, runID)
}

func (p *Postgres) Statistics(ctx context.Context, runID string) ([]string, error) {
	if err := p.runExists(ctx, runID); err != nil {
		return nil, err
	}
	return p.queryStrings(ctx, `SELECT statistic FROM samples WHERE run_id = $1 GROUP BY statistic ORDER BY MIN(column_order)`, runID)
}

func (p *Postgres) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return values, nil
}

func (p *Postgres) Series(ctx context.Context, runID, unit, statistic string) ([]Point, error) {
	if err := p.runExists(ctx, runID); err != nil {
		return nil, err
	}
	samples, err := p.samples(ctx, `AND unit = $2 AND statistic = $3`, runID, unit, statistic)
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(samples))
	for i, s := range samples {
		points[i] = Point{From: s.From, To: s.To, Value: s.Value}
	}
	return points, nil
}

func (p *Postgres) LoadTable(ctx context.Context, runID string) (*stats.Table, error) {
	var column string
	err := p.pool.QueryRow(ctx, `SELECT unit_column FROM runs WHERE id = $1`, runID).Scan(&column)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	samples, err := p.samples(ctx, "", runID)
	if err != nil {
		return nil, err
	}
	return wideFormat(column, samples), nil
}

func (p *Postgres) samples(ctx context.Context, filter string, args ...any) ([]sample, error) {
	rows, err := p.pool.Query(ctx, `SELECT seq, unit, unit_order, interval_from, interval_to, statistic, column_order, value
FROM samples WHERE run_id = $1 `+filter+` ORDER BY seq, column_order`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []sample
	for rows.Next() {
		var s sample
		if err := rows.Scan(&s.Seq, &s.Unit, &s.UnitOrder, &s.From, &s.To, &s.Statistic, &s.ColumnOrder, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
