package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelichka/ladderd/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runSelectCols = `id, mode, tickers, started_at, stopped_at, book_rows, trade_rows`

func scanRun(row pgx.Row) (domain.Run, error) {
	var r domain.Run
	err := row.Scan(
		&r.ID, &r.Mode, &r.Tickers,
		&r.StartedAt, &r.StoppedAt, &r.BookRows, &r.TradeRows,
	)
	if err != nil {
		return domain.Run{}, err
	}
	return r, nil
}

// Create records the start of a recorder session.
func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	const query = `
		INSERT INTO runs (id, mode, tickers, started_at, book_rows, trade_rows)
		VALUES ($1, $2, $3, $4, 0, 0)`

	_, err := s.pool.Exec(ctx, query, run.ID, run.Mode, run.Tickers, run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish marks a run as stopped and records its final row counts.
func (s *RunStore) Finish(ctx context.Context, id string, stoppedAt time.Time, bookRows, tradeRows int64) error {
	const query = `
		UPDATE runs
		SET stopped_at = $2, book_rows = $3, trade_rows = $4
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, stoppedAt, bookRows, tradeRows)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetLatest returns the most recently started run.
func (s *RunStore) GetLatest(ctx context.Context) (domain.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runSelectCols+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Run{}, domain.ErrNotFound
		}
		return domain.Run{}, fmt.Errorf("postgres: get latest run: %w", err)
	}
	return r, nil
}

// List returns runs newest first with pagination and optional time
// filtering on the start time.
func (s *RunStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Run, error) {
	query := `SELECT ` + runSelectCols + ` FROM runs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND started_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND started_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var r domain.Run
		if err := rows.Scan(
			&r.ID, &r.Mode, &r.Tickers,
			&r.StartedAt, &r.StoppedAt, &r.BookRows, &r.TradeRows,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list runs rows: %w", err)
	}
	return runs, nil
}

// Compile-time interface check.
var _ domain.RunStore = (*RunStore)(nil)
