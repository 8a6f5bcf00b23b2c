package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelichka/ladderd/internal/domain"
)

// CandleStore implements domain.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *pgxpool.Pool
}

// NewCandleStore creates a new CandleStore backed by the given connection
// pool.
func NewCandleStore(pool *pgxpool.Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// UpsertBatch inserts or replaces candles for one ticker and timeframe.
// The recorder persists the open bucket repeatedly as it fills, so a
// conflict overwrites the whole row.
func (s *CandleStore) UpsertBatch(ctx context.Context, ticker string, timeframe int64, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO candles (
			ticker, timeframe, bucket_start,
			open, high, low, close, volume
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8
		)
		ON CONFLICT (ticker, timeframe, bucket_start) DO UPDATE SET
			open   = EXCLUDED.open,
			high   = EXCLUDED.high,
			low    = EXCLUDED.low,
			close  = EXCLUDED.close,
			volume = EXCLUDED.volume`

	for _, c := range candles {
		batch.Queue(query,
			ticker, timeframe, c.T,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert candle batch item %d: %w", i, err)
		}
	}
	return nil
}

// List returns candles for a ticker and timeframe ordered by bucket start
// ascending, with pagination and optional time filtering.
func (s *CandleStore) List(ctx context.Context, ticker string, timeframe int64, opts domain.ListOpts) ([]domain.Candle, error) {
	query := `SELECT bucket_start, open, high, low, close, volume
		FROM candles WHERE ticker = $1 AND timeframe = $2`
	args := []any{ticker, timeframe}
	argIdx := 3

	if opts.Since != nil {
		query += fmt.Sprintf(" AND bucket_start >= $%d", argIdx)
		args = append(args, opts.Since.Unix())
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND bucket_start <= $%d", argIdx)
		args = append(args, opts.Until.Unix())
		argIdx++
	}

	query += " ORDER BY bucket_start ASC"

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
		return nil, fmt.Errorf("postgres: list candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.T, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list candles rows: %w", err)
	}
	return candles, nil
}

// ListBefore returns candles whose bucket starts before the given time,
// oldest first, up to limit rows (no limit when limit <= 0).
func (s *CandleStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.CandleRow, error) {
	query := `SELECT ticker, timeframe, bucket_start, open, high, low, close, volume
		FROM candles WHERE bucket_start < $1
		ORDER BY bucket_start ASC, ticker ASC, timeframe ASC`
	args := []any{before.Unix()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candles before: %w", err)
	}
	defer rows.Close()

	var out []domain.CandleRow
	for rows.Next() {
		var r domain.CandleRow
		if err := rows.Scan(
			&r.Ticker, &r.Timeframe, &r.T,
			&r.Open, &r.High, &r.Low, &r.Close, &r.Volume,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan candle row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list candles before rows: %w", err)
	}
	return out, nil
}

// DeleteBefore deletes candles whose bucket starts before the given time.
// Returns the number deleted.
func (s *CandleStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candles WHERE bucket_start < $1`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete candles before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.CandleStore = (*CandleStore)(nil)
