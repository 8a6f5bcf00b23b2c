package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelichka/ladderd/internal/domain"
)

// TradeEventStore implements domain.TradeEventStore using PostgreSQL.
type TradeEventStore struct {
	pool *pgxpool.Pool
}

// NewTradeEventStore creates a new TradeEventStore backed by the given
// connection pool.
func NewTradeEventStore(pool *pgxpool.Pool) *TradeEventStore {
	return &TradeEventStore{pool: pool}
}

const tradeEventSelectCols = `ts, ticker, source, side, size`

func scanTradeEventRows(rows pgx.Rows) ([]domain.TradeEvent, error) {
	var trades []domain.TradeEvent
	for rows.Next() {
		var t domain.TradeEvent
		if err := rows.Scan(&t.TS, &t.Ticker, &t.Source, &t.Side, &t.Size); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch appends multiple trade prints using pgx Batch.
func (s *TradeEventStore) InsertBatch(ctx context.Context, trades []domain.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trade_events (ts, ticker, source, side, size)
		VALUES ($1, $2, $3, $4, $5)`

	for _, t := range trades {
		batch.Queue(query, t.TS, t.Ticker, t.Source, t.Side, t.Size)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade event batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByTicker returns trade prints for a ticker ordered oldest first,
// with pagination and optional time filtering.
func (s *TradeEventStore) ListByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventSelectCols + ` FROM trade_events WHERE ticker = $1`
	args := []any{ticker}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, opts.Since.Unix())
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, opts.Until.Unix())
		argIdx++
	}

	query += " ORDER BY ts ASC, id ASC"

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
		return nil, fmt.Errorf("postgres: list trade events by ticker: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events by ticker: %w", err)
	}
	return trades, nil
}

// ListBefore returns trade prints with timestamp strictly before the
// given time, oldest first, up to limit rows (no limit when limit <= 0).
func (s *TradeEventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventSelectCols + ` FROM trade_events WHERE ts < $1 ORDER BY ts ASC, id ASC`
	args := []any{before.Unix()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events before: %w", err)
	}
	defer rows.Close()
	return scanTradeEventRows(rows)
}

// DeleteBefore deletes trade prints with timestamp before the given time.
// Returns the number deleted.
func (s *TradeEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trade_events WHERE ts < $1`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*TradeEventStore)(nil)
