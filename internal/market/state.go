// Package market assembles per-ticker derived state: the live book,
// candle series for every timeframe, and the recent trade tape. Both
// the live feed and the replay engine drive the same State type, so
// snapshots come out identical regardless of the data path.
package market

import (
	"math"
	"sync"

	"github.com/avelichka/ladderd/internal/book"
	"github.com/avelichka/ladderd/internal/candle"
	"github.com/avelichka/ladderd/internal/domain"
)

// State is the full derived state for one ticker. Safe for concurrent
// use; writers and snapshot readers may race freely.
type State struct {
	mu     sync.RWMutex
	ticker string
	ledger *book.Ledger
	pool   *candle.Pool
	trades []domain.TradeEvent

	bookEvents     int64
	tradeEvents    int64
	droppedSamples int64
	lastTS         int64
}

// NewState builds an empty state for ticker with one candle series per
// timeframe.
func NewState(ticker string, timeframes []int64, defaultTF int64) (*State, error) {
	pool, err := candle.NewPool(timeframes, defaultTF)
	if err != nil {
		return nil, err
	}
	return &State{
		ticker: ticker,
		ledger: book.NewLedger(),
		pool:   pool,
	}, nil
}

// Ticker returns the instrument this state tracks.
func (s *State) Ticker() string { return s.ticker }

// ApplyBookInitial replaces both sides from a full snapshot message.
// Levels are applied and sampled one at a time onto the cleared book,
// so replaying the recorded rows from a cold start reproduces the same
// candle samples.
func (s *State) ApplyBookInitial(ts int64, bids, asks []domain.PriceLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger.Reset()
	for _, lv := range bids {
		s.ledger.ApplyLevel(domain.SideBid, lv.Price, lv.Size)
		s.noteBookEvent(ts, lv.Size)
	}
	for _, lv := range asks {
		s.ledger.ApplyLevel(domain.SideAsk, lv.Price, lv.Size)
		s.noteBookEvent(ts, lv.Size)
	}
}

// ApplyBookDelta upserts incremental levels, sampling candles after
// each one. A nil slice leaves that side untouched.
func (s *State) ApplyBookDelta(ts int64, bids, asks []domain.PriceLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lv := range bids {
		s.ledger.ApplyLevel(domain.SideBid, lv.Price, lv.Size)
		s.noteBookEvent(ts, lv.Size)
	}
	for _, lv := range asks {
		s.ledger.ApplyLevel(domain.SideAsk, lv.Price, lv.Size)
		s.noteBookEvent(ts, lv.Size)
	}
}

// ApplyBookEvent applies one recorded row as a per-level delta. Initial
// rows land on whatever is already present, which reproduces the
// recorded stream when replayed from a cold start.
func (s *State) ApplyBookEvent(ev domain.BookEvent) {
	lv := []domain.PriceLevel{{Price: ev.Price, Size: ev.Size}}
	if ev.Side == domain.SideBid {
		s.ApplyBookDelta(ev.TS, lv, nil)
	} else {
		s.ApplyBookDelta(ev.TS, nil, lv)
	}
}

// noteBookEvent bumps counters and runs the sampling step for one
// applied level. Callers hold the lock.
func (s *State) noteBookEvent(ts int64, size float64) {
	s.bookEvents++
	if ts > s.lastTS {
		s.lastTS = ts
	}
	s.sampleFromLedger(ts, size)
}

// sampleFromLedger folds one candle sample after a book change: the
// current mid, weighted by the absolute size of the change. No sample
// is taken while either side is empty, and samples that arrive behind
// the candle cursor are dropped rather than rewinding any series.
func (s *State) sampleFromLedger(ts int64, size float64) {
	mid, ok := s.ledger.Mid()
	if !ok {
		return
	}
	if err := s.pool.Update(ts, mid, math.Abs(size)); err != nil {
		s.droppedSamples++
	}
}

// ApplyTrade appends one print to the tape, dropping the oldest once
// the cap is reached.
func (s *State) ApplyTrade(tr domain.TradeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tradeEvents++
	if tr.TS > s.lastTS {
		s.lastTS = tr.TS
	}
	s.trades = append(s.trades, tr)
	if len(s.trades) > domain.RecentTradeCap {
		s.trades = s.trades[len(s.trades)-domain.RecentTradeCap:]
	}
}

// Snapshot assembles the full derived state, stamped with ts.
func (s *State) Snapshot(ts int64) domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.Snapshot{
		Ticker:  s.ticker,
		TS:      ts,
		Bids:    s.ledger.Levels(domain.SideBid),
		Asks:    s.ledger.Levels(domain.SideAsk),
		Candles: s.pool.Snapshot(),
	}
	if last, ok := s.pool.Last(); ok {
		snap.LastMid = last.Close
		snap.LastVolume = last.Volume
	}
	snap.RecentTrades = append([]domain.TradeEvent(nil), s.trades...)
	return snap
}

// BookState returns the flattened live book for cache writes and
// websocket publication.
func (s *State) BookState() domain.BookState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.BookState{
		Ticker: s.ticker,
		Bids:   s.ledger.Levels(domain.SideBid),
		Asks:   s.ledger.Levels(domain.SideAsk),
		TS:     s.lastTS,
	}
}

// Depth returns one side of the book with cumulative sizes, best first.
func (s *State) Depth(side domain.Side, maxLevels int) []domain.DepthLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Depth(side, maxLevels)
}

// Mid returns the current bid/ask midpoint.
func (s *State) Mid() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Mid()
}

// Series returns a copy of the candle series for tf, the default
// timeframe when tf is zero, nil when the timeframe is not maintained.
func (s *State) Series(tf int64) []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.pool.SeriesOrDefault(tf)
	if src == nil {
		return nil
	}
	out := make([]domain.Candle, len(src))
	copy(out, src)
	return out
}

// Stats reports ingestion counters: applied book levels, trade prints,
// samples dropped for arriving out of order, and the newest event
// timestamp seen.
func (s *State) Stats() (bookEvents, tradeEvents, droppedSamples, lastTS int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookEvents, s.tradeEvents, s.droppedSamples, s.lastTS
}

// Reset clears the book, every candle series, the tape, and all
// counters, as if the state had just been created.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger.Reset()
	s.pool.Reset()
	s.trades = nil
	s.bookEvents, s.tradeEvents, s.droppedSamples, s.lastTS = 0, 0, 0, 0
}
