package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelichka/ladderd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `ticker, status, oracle_price, price_change_24h,
	volume_24h, trades_24h, next_funding_rate, open_interest,
	tick_size, step_size, market_type, updated_at`

const marketUpsertQuery = `
	INSERT INTO markets (
		ticker, status, oracle_price, price_change_24h,
		volume_24h, trades_24h, next_funding_rate, open_interest,
		tick_size, step_size, market_type, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11, NOW()
	)
	ON CONFLICT (ticker) DO UPDATE SET
		status            = EXCLUDED.status,
		oracle_price      = EXCLUDED.oracle_price,
		price_change_24h  = EXCLUDED.price_change_24h,
		volume_24h        = EXCLUDED.volume_24h,
		trades_24h        = EXCLUDED.trades_24h,
		next_funding_rate = EXCLUDED.next_funding_rate,
		open_interest     = EXCLUDED.open_interest,
		tick_size         = EXCLUDED.tick_size,
		step_size         = EXCLUDED.step_size,
		market_type       = EXCLUDED.market_type,
		updated_at        = NOW()`

// UpsertBatch inserts or updates multiple markets in a single batch
// operation.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(marketUpsertQuery,
			m.Ticker, string(m.Status), m.OraclePrice, m.PriceChange24H,
			m.Volume24H, m.Trades24H, m.NextFundingRate, m.OpenInterest,
			m.TickSize, m.StepSize, m.MarketType,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d: %w", i, err)
		}
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	err := row.Scan(
		&m.Ticker, &status, &m.OraclePrice, &m.PriceChange24H,
		&m.Volume24H, &m.Trades24H, &m.NextFundingRate, &m.OpenInterest,
		&m.TickSize, &m.StepSize, &m.MarketType, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByTicker retrieves a market by its ticker.
func (s *MarketStore) GetByTicker(ctx context.Context, ticker string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE ticker = $1`, ticker)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", ticker, err)
	}
	return m, nil
}

// ListActive returns markets open for trading ordered by ticker, with
// pagination.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = $1 ORDER BY ticker ASC`
	args := []any{string(domain.MarketStatusActive)}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		var status string
		if err := rows.Scan(
			&m.Ticker, &status, &m.OraclePrice, &m.PriceChange24H,
			&m.Volume24H, &m.Trades24H, &m.NextFundingRate, &m.OpenInterest,
			&m.TickSize, &m.StepSize, &m.MarketType, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan active market: %w", err)
		}
		m.Status = domain.MarketStatus(status)
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
