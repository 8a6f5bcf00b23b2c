package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/avelichka/ladderd/internal/domain"
)

//go:embed scripts/orderbook_update.lua
var orderbookUpdateLua string

// BookCache implements domain.BookCache using Redis sorted sets and
// hashes for each ticker's orderbook.
//
// Key schema:
//
//	book:{ticker}:bids     - sorted set of bid prices (score = price)
//	book:{ticker}:asks     - sorted set of ask prices (score = price)
//	book:{ticker}:bid:size - hash mapping price -> size for bids
//	book:{ticker}:ask:size - hash mapping price -> size for asks
//	book:{ticker}:bbo      - hash with fields "bid" and "ask" (best prices)
//	book:{ticker}:meta     - hash with "ts" field (unix seconds)
type BookCache struct {
	rdb             *redis.Client
	orderbookUpdate *redis.Script
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{
		rdb:             c.Underlying(),
		orderbookUpdate: redis.NewScript(orderbookUpdateLua),
	}
}

func bookBidsKey(ticker string) string    { return "book:" + ticker + ":bids" }
func bookAsksKey(ticker string) string    { return "book:" + ticker + ":asks" }
func bookBidSizeKey(ticker string) string { return "book:" + ticker + ":bid:size" }
func bookAskSizeKey(ticker string) string { return "book:" + ticker + ":ask:size" }
func bookBBOKey(ticker string) string     { return "book:" + ticker + ":bbo" }
func bookMetaKey(ticker string) string    { return "book:" + ticker + ":meta" }

// SetSnapshot atomically replaces the cached book for a ticker. The
// state's levels must be sorted best-first, as produced by the engine.
// It clears existing data and repopulates the sorted sets, size hashes,
// the BBO hash, and the metadata hash.
func (bc *BookCache) SetSnapshot(ctx context.Context, state domain.BookState) error {
	bidsKey := bookBidsKey(state.Ticker)
	asksKey := bookAsksKey(state.Ticker)
	bidSizeKey := bookBidSizeKey(state.Ticker)
	askSizeKey := bookAskSizeKey(state.Ticker)
	bboKey := bookBBOKey(state.Ticker)
	metaKey := bookMetaKey(state.Ticker)

	pipe := bc.rdb.TxPipeline()

	// Clear existing keys.
	pipe.Del(ctx, bidsKey, asksKey, bidSizeKey, askSizeKey, bboKey, metaKey)

	// Populate bids.
	for _, lvl := range state.Bids {
		priceStr := strconv.FormatFloat(lvl.Price, 'f', -1, 64)
		sizeStr := strconv.FormatFloat(lvl.Size, 'f', -1, 64)
		pipe.ZAdd(ctx, bidsKey, redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, bidSizeKey, priceStr, sizeStr)
	}

	// Populate asks.
	for _, lvl := range state.Asks {
		priceStr := strconv.FormatFloat(lvl.Price, 'f', -1, 64)
		sizeStr := strconv.FormatFloat(lvl.Size, 'f', -1, 64)
		pipe.ZAdd(ctx, asksKey, redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, askSizeKey, priceStr, sizeStr)
	}

	// Set BBO from the top of each side.
	if len(state.Bids) > 0 {
		pipe.HSet(ctx, bboKey, "bid", strconv.FormatFloat(state.Bids[0].Price, 'f', -1, 64))
	}
	if len(state.Asks) > 0 {
		pipe.HSet(ctx, bboKey, "ask", strconv.FormatFloat(state.Asks[0].Price, 'f', -1, 64))
	}

	// Set metadata.
	pipe.HSet(ctx, metaKey, "ts", strconv.FormatInt(state.TS, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book snapshot %s: %w", state.Ticker, err)
	}
	return nil
}

// GetSnapshot reconstructs the full BookState from Redis.
// It returns domain.ErrNotFound if no book data exists for the ticker.
func (bc *BookCache) GetSnapshot(ctx context.Context, ticker string) (domain.BookState, error) {
	bidsKey := bookBidsKey(ticker)
	asksKey := bookAsksKey(ticker)
	bidSizeKey := bookBidSizeKey(ticker)
	askSizeKey := bookAskSizeKey(ticker)
	metaKey := bookMetaKey(ticker)

	pipe := bc.rdb.Pipeline()

	// Read bids sorted descending (highest first).
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bidsKey, 0, -1)
	// Read asks sorted ascending (lowest first).
	asksCmd := pipe.ZRangeWithScores(ctx, asksKey, 0, -1)
	// Read size hashes.
	bidSizeCmd := pipe.HGetAll(ctx, bidSizeKey)
	askSizeCmd := pipe.HGetAll(ctx, askSizeKey)
	// Read metadata.
	metaCmd := pipe.HGetAll(ctx, metaKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.BookState{}, fmt.Errorf("redis: get book snapshot %s: %w", ticker, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.BookState{}, domain.ErrNotFound
	}

	state := domain.BookState{
		Ticker: ticker,
	}

	// Parse timestamp.
	if tsStr, ok := metaVals["ts"]; ok {
		if ts, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			state.TS = ts
		}
	}

	// Build bid levels.
	bidSizes, _ := bidSizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	state.Bids = make([]domain.PriceLevel, 0, len(bidsZ))
	for _, z := range bidsZ {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		size := 0.0
		if sizeStr, exists := bidSizes[priceStr]; exists {
			size, _ = strconv.ParseFloat(sizeStr, 64)
		}
		state.Bids = append(state.Bids, domain.PriceLevel{
			Price: z.Score,
			Size:  size,
		})
	}

	// Build ask levels.
	askSizes, _ := askSizeCmd.Result()
	asksZ, _ := asksCmd.Result()
	state.Asks = make([]domain.PriceLevel, 0, len(asksZ))
	for _, z := range asksZ {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		size := 0.0
		if sizeStr, exists := askSizes[priceStr]; exists {
			size, _ = strconv.ParseFloat(sizeStr, 64)
		}
		state.Asks = append(state.Asks, domain.PriceLevel{
			Price: z.Score,
			Size:  size,
		})
	}

	return state, nil
}

// UpdateLevel applies an incremental level update using an atomic Lua
// script. If size > 0 the level is added or updated; if size == 0 the
// level is removed. The script recomputes the BBO after the update.
func (bc *BookCache) UpdateLevel(ctx context.Context, ticker string, side domain.Side, price, size float64) error {
	var zKey, hKey string
	var sideArg string

	switch side {
	case domain.SideBid:
		zKey = bookBidsKey(ticker)
		hKey = bookBidSizeKey(ticker)
		sideArg = "bids"
	case domain.SideAsk:
		zKey = bookAsksKey(ticker)
		hKey = bookAskSizeKey(ticker)
		sideArg = "asks"
	default:
		return fmt.Errorf("redis: update level: unknown side %q", side)
	}

	bboKey := bookBBOKey(ticker)
	priceStr := strconv.FormatFloat(price, 'f', -1, 64)
	sizeStr := strconv.FormatFloat(size, 'f', -1, 64)

	keys := []string{zKey, hKey, bboKey}
	args := []interface{}{priceStr, sizeStr, sideArg}

	if err := bc.orderbookUpdate.Run(ctx, bc.rdb, keys, args...).Err(); err != nil {
		return fmt.Errorf("redis: update level %s %s@%s: %w", ticker, sideArg, priceStr, err)
	}
	return nil
}

// GetBBO retrieves the current best bid and best ask from the BBO hash.
// It returns domain.ErrNotFound if no BBO data exists.
func (bc *BookCache) GetBBO(ctx context.Context, ticker string) (bestBid, bestAsk float64, err error) {
	bboKey := bookBBOKey(ticker)
	vals, err := bc.rdb.HGetAll(ctx, bboKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}

	if bidStr, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(bidStr, 64)
	}
	if askStr, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(askStr, 64)
	}
	return bestBid, bestAsk, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
