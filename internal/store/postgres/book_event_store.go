package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelichka/ladderd/internal/domain"
)

// BookEventStore implements domain.BookEventStore using PostgreSQL.
type BookEventStore struct {
	pool *pgxpool.Pool
}

// NewBookEventStore creates a new BookEventStore backed by the given
// connection pool.
func NewBookEventStore(pool *pgxpool.Pool) *BookEventStore {
	return &BookEventStore{pool: pool}
}

const bookEventSelectCols = `ts, ticker, kind, side, price, size`

func scanBookEventRows(rows pgx.Rows) ([]domain.BookEvent, error) {
	var events []domain.BookEvent
	for rows.Next() {
		var e domain.BookEvent
		var kind, side string
		if err := rows.Scan(&e.TS, &e.Ticker, &kind, &side, &e.Price, &e.Size); err != nil {
			return nil, err
		}
		e.Kind = domain.BookEventKind(kind)
		e.Side = domain.Side(side)
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBatch appends multiple book events using pgx Batch. The table is
// an append-only log, so no conflict handling is needed.
func (s *BookEventStore) InsertBatch(ctx context.Context, events []domain.BookEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO book_events (ts, ticker, kind, side, price, size)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, e := range events {
		batch.Queue(query,
			e.TS, e.Ticker, string(e.Kind), string(e.Side), e.Price, e.Size,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert book event batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByTicker returns book events for a ticker ordered oldest first, with
// pagination and optional time filtering. Replay consumes events in this
// order.
func (s *BookEventStore) ListByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.BookEvent, error) {
	query := `SELECT ` + bookEventSelectCols + ` FROM book_events WHERE ticker = $1`
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
		return nil, fmt.Errorf("postgres: list book events by ticker: %w", err)
	}
	defer rows.Close()

	events, err := scanBookEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan book events by ticker: %w", err)
	}
	return events, nil
}

// GetLastTimestamp returns the most recent book event timestamp for a
// ticker, or 0 when no events exist.
func (s *BookEventStore) GetLastTimestamp(ctx context.Context, ticker string) (int64, error) {
	var ts *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(ts) FROM book_events WHERE ticker = $1", ticker).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("postgres: get last book event timestamp: %w", err)
	}
	if ts == nil {
		return 0, nil
	}
	return *ts, nil
}

// ListBefore returns book events with timestamp strictly before the given
// time, oldest first, up to limit rows (no limit when limit <= 0). The
// archiver drains old rows in batches through this.
func (s *BookEventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.BookEvent, error) {
	query := `SELECT ` + bookEventSelectCols + ` FROM book_events WHERE ts < $1 ORDER BY ts ASC, id ASC`
	args := []any{before.Unix()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list book events before: %w", err)
	}
	defer rows.Close()
	return scanBookEventRows(rows)
}

// DeleteBefore deletes book events with timestamp before the given time.
// Returns the number deleted.
func (s *BookEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM book_events WHERE ts < $1`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete book events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.BookEventStore = (*BookEventStore)(nil)
