package domain

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// DepthLevel is a price level annotated with cumulative size from the
// best price outward. Used for depth charts.
type DepthLevel struct {
	Price      float64
	Size       float64
	Cumulative float64
}

// BookState is the flattened live book for one ticker. Bids are sorted
// best first (descending price), asks best first (ascending price).
type BookState struct {
	Ticker string
	Bids   []PriceLevel
	Asks   []PriceLevel
	TS     int64 // unix seconds of the last applied event
}
