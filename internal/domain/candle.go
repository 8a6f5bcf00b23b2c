package domain

// Candle is one OHLCV bucket. T is the bucket start in unix seconds,
// always a multiple of the owning timeframe.
type Candle struct {
	T      int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleRow pairs a candle with its series key for persistence and
// archival.
type CandleRow struct {
	Ticker    string
	Timeframe int64
	Candle
}

// Timeframes lists the aggregation windows, in seconds, that the engine
// maintains for every ticker.
var Timeframes = []int64{1, 5, 15, 30, 60, 180, 300, 900, 1800, 3600, 14400, 86400}

// DefaultTimeframe is the window used when a caller does not name one,
// e.g. for the headline last-price readout.
const DefaultTimeframe int64 = 60
