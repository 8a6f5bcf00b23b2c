package domain

import "fmt"

// Side identifies an orderbook side.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// ParseSide converts a wire or CSV token into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid":
		return SideBid, nil
	case "ask":
		return SideAsk, nil
	default:
		return "", fmt.Errorf("%w: side %q", ErrBadRecord, s)
	}
}

// BookEventKind distinguishes full book resets from incremental updates.
type BookEventKind string

const (
	// BookInitial replaces one side of the book with the levels that follow.
	BookInitial BookEventKind = "initial"
	// BookUpdate upserts a single level, size 0 removes it.
	BookUpdate BookEventKind = "update"
)

// ParseBookEventKind converts a wire or CSV token into a BookEventKind.
func ParseBookEventKind(s string) (BookEventKind, error) {
	switch s {
	case "initial":
		return BookInitial, nil
	case "update":
		return BookUpdate, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrBadRecord, s)
	}
}

// BookEvent is a single recorded orderbook change for one ticker.
type BookEvent struct {
	TS     int64 // unix seconds
	Ticker string
	Kind   BookEventKind
	Side   Side
	Price  float64
	Size   float64 // 0 means remove level
}

// TradeEvent is a single recorded trade print for one ticker.
type TradeEvent struct {
	TS     int64 // unix seconds
	Ticker string
	Source string // "ws" for live captures
	Side   string // "BUY" or "SELL" as reported by the venue
	Size   float64
}
