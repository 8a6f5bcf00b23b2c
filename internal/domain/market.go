package domain

import "time"

// MarketStatus represents the lifecycle state of a perpetual market.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "ACTIVE"
	MarketStatusPaused    MarketStatus = "PAUSED"
	MarketStatusCancelOnly MarketStatus = "CANCEL_ONLY"
	MarketStatusFinal     MarketStatus = "FINAL_SETTLEMENT"
)

// Market is perpetual market metadata as reported by the indexer.
type Market struct {
	Ticker          string // e.g. "BTC-USD"
	Status          MarketStatus
	OraclePrice     float64
	PriceChange24H  float64
	Volume24H       float64
	Trades24H       int64
	NextFundingRate float64
	OpenInterest    float64
	TickSize        float64
	StepSize        float64
	MarketType      string // "CROSS" or "ISOLATED"
	UpdatedAt       time.Time
}
