package book

import (
	"sort"

	"github.com/avelichka/ladderd/internal/domain"
)

// Ledger holds one market's book, both sides keyed by fixed-point price.
// It is not safe for concurrent use; callers serialise access.
type Ledger struct {
	bids map[PriceKey]float64
	asks map[PriceKey]float64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		bids: make(map[PriceKey]float64),
		asks: make(map[PriceKey]float64),
	}
}

func (l *Ledger) sideMap(side domain.Side) map[PriceKey]float64 {
	if side == domain.SideBid {
		return l.bids
	}
	return l.asks
}

// ApplyInitial replaces one side with a fresh snapshot. Levels with
// non-positive size are dropped rather than stored.
func (l *Ledger) ApplyInitial(side domain.Side, levels []domain.PriceLevel) {
	m := l.sideMap(side)
	clear(m)
	for _, lv := range levels {
		if lv.Size > 0 {
			m[KeyFromPrice(lv.Price)] = lv.Size
		}
	}
}

// ApplyDelta upserts incremental levels on both sides. A nil slice
// leaves that side untouched.
func (l *Ledger) ApplyDelta(bids, asks []domain.PriceLevel) {
	for _, lv := range bids {
		l.ApplyLevel(domain.SideBid, lv.Price, lv.Size)
	}
	for _, lv := range asks {
		l.ApplyLevel(domain.SideAsk, lv.Price, lv.Size)
	}
}

// ApplyLevel upserts a single level. Size <= 0 removes it.
func (l *Ledger) ApplyLevel(side domain.Side, price, size float64) {
	m := l.sideMap(side)
	k := KeyFromPrice(price)
	if size <= 0 {
		delete(m, k)
		return
	}
	m[k] = size
}

// Reset drops all levels on both sides.
func (l *Ledger) Reset() {
	clear(l.bids)
	clear(l.asks)
}

// BestBid returns the highest bid. ok is false when the side is empty.
func (l *Ledger) BestBid() (domain.PriceLevel, bool) {
	return bestOf(l.bids, func(a, b PriceKey) bool { return a > b })
}

// BestAsk returns the lowest ask. ok is false when the side is empty.
func (l *Ledger) BestAsk() (domain.PriceLevel, bool) {
	return bestOf(l.asks, func(a, b PriceKey) bool { return a < b })
}

func bestOf(m map[PriceKey]float64, better func(a, b PriceKey) bool) (domain.PriceLevel, bool) {
	if len(m) == 0 {
		return domain.PriceLevel{}, false
	}
	var best PriceKey
	first := true
	for k := range m {
		if first || better(k, best) {
			best, first = k, false
		}
	}
	return domain.PriceLevel{Price: best.Price(), Size: m[best]}, true
}

// Mid returns the bid/ask midpoint. ok is false unless both sides hold
// at least one level.
func (l *Ledger) Mid() (float64, bool) {
	bb, okBid := l.BestBid()
	ba, okAsk := l.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bb.Price + ba.Price) / 2, true
}

// Spread returns best ask minus best bid. ok is false unless both sides
// hold at least one level. A crossed book yields a negative spread.
func (l *Ledger) Spread() (float64, bool) {
	bb, okBid := l.BestBid()
	ba, okAsk := l.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ba.Price - bb.Price, true
}

// Levels returns one side sorted best-first: bids by descending price,
// asks by ascending.
func (l *Ledger) Levels(side domain.Side) []domain.PriceLevel {
	m := l.sideMap(side)
	keys := make([]PriceKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if side == domain.SideBid {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	} else {
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}
	out := make([]domain.PriceLevel, len(keys))
	for i, k := range keys {
		out[i] = domain.PriceLevel{Price: k.Price(), Size: m[k]}
	}
	return out
}

// Depth returns up to maxLevels of one side, best-first, with running
// cumulative size. maxLevels <= 0 means no limit.
func (l *Ledger) Depth(side domain.Side, maxLevels int) []domain.DepthLevel {
	levels := l.Levels(side)
	if maxLevels > 0 && len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	out := make([]domain.DepthLevel, len(levels))
	var cum float64
	for i, lv := range levels {
		cum += lv.Size
		out[i] = domain.DepthLevel{Price: lv.Price, Size: lv.Size, Cumulative: cum}
	}
	return out
}

// Counts returns the number of levels on each side.
func (l *Ledger) Counts() (bids, asks int) {
	return len(l.bids), len(l.asks)
}
