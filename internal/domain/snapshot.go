package domain

// RecentTradeCap bounds the trade tape kept in memory and returned in
// snapshots. Oldest prints are dropped first.
const RecentTradeCap = 200

// Snapshot is the full derived state of one market at a point in time:
// the reconstructed book, every candle series, and the recent trade tape.
type Snapshot struct {
	Ticker string
	TS     int64 // unix seconds the snapshot was taken at

	Bids []PriceLevel // best first
	Asks []PriceLevel // best first

	// Candles holds one closed-plus-open series per timeframe, keyed by
	// the timeframe in seconds. The last element is the open bucket.
	Candles map[int64][]Candle

	// LastMid and LastVolume come from the final candle of the default
	// timeframe, zero when no samples exist yet.
	LastMid    float64
	LastVolume float64

	// RecentTrades is newest-last and holds at most RecentTradeCap prints.
	RecentTrades []TradeEvent
}
