// Package replay rebuilds market state from recorded event logs, both
// as one-shot cold rebuilds and as an advancing cursor for scrubbing.
package replay

import (
	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/eventlog"
	"github.com/avelichka/ladderd/internal/market"
)

// Engine replays one ticker's slice of a recorded log. Not safe for
// concurrent use.
type Engine struct {
	log        *eventlog.Log
	ticker     string
	timeframes []int64
	defaultTF  int64

	state    *market.State
	bookIdx  int
	tradeIdx int
	cursorTS int64
	started  bool
}

// NewEngine filters log down to ticker and validates the timeframe set.
// Returns domain.ErrEmptyLog when the ticker has no events at all.
func NewEngine(log *eventlog.Log, ticker string, timeframes []int64, defaultTF int64) (*Engine, error) {
	filtered := log.FilterTicker(ticker)
	if filtered.Empty() {
		return nil, domain.ErrEmptyLog
	}
	if _, err := market.NewState(ticker, timeframes, defaultTF); err != nil {
		return nil, err
	}
	return &Engine{
		log:        filtered,
		ticker:     ticker,
		timeframes: timeframes,
		defaultTF:  defaultTF,
	}, nil
}

// Ticker returns the instrument this engine replays.
func (e *Engine) Ticker() string { return e.ticker }

// Bounds returns the first and last timestamp in the filtered log.
func (e *Engine) Bounds() (minTS, maxTS int64) {
	minTS, _ = e.log.MinTS()
	maxTS, _ = e.log.MaxTS()
	return minTS, maxTS
}

// clamp pins targets past the end of the log to its last event. Targets
// before the first event pass through and yield an empty state.
func (e *Engine) clamp(target int64) int64 {
	if maxTS, ok := e.log.MaxTS(); ok && target > maxTS {
		return maxTS
	}
	return target
}

// freshState never fails: the timeframe set was validated in NewEngine.
func (e *Engine) freshState() *market.State {
	st, _ := market.NewState(e.ticker, e.timeframes, e.defaultTF)
	return st
}

// SnapshotAt rebuilds state from a cold start and returns the snapshot
// as of target. The advancing cursor is left untouched.
func (e *Engine) SnapshotAt(target int64) domain.Snapshot {
	target = e.clamp(target)
	st := e.freshState()
	applyRange(st, e.log, 0, 0, target)
	return st.Snapshot(target)
}

// AdvanceTo moves the cursor to target and returns the snapshot there.
// Moving forward applies only the events in between; moving backward
// rebuilds from a cold start first. The result is identical to
// SnapshotAt for every target.
func (e *Engine) AdvanceTo(target int64) domain.Snapshot {
	target = e.clamp(target)
	if !e.started || target < e.cursorTS {
		e.state = e.freshState()
		e.bookIdx, e.tradeIdx = 0, 0
		e.started = true
	}
	e.bookIdx, e.tradeIdx = applyRange(e.state, e.log, e.bookIdx, e.tradeIdx, target)
	e.cursorTS = target
	return e.state.Snapshot(target)
}

// applyRange applies events from the given stream offsets through
// target inclusive and returns the new offsets. Book events land as
// per-level deltas; trades roll through the capped tape. The two
// streams never touch the same state, so their relative order does not
// matter.
func applyRange(st *market.State, log *eventlog.Log, bookIdx, tradeIdx int, target int64) (int, int) {
	for bookIdx < len(log.Books) && log.Books[bookIdx].TS <= target {
		st.ApplyBookEvent(log.Books[bookIdx])
		bookIdx++
	}
	for tradeIdx < len(log.Trades) && log.Trades[tradeIdx].TS <= target {
		st.ApplyTrade(log.Trades[tradeIdx])
		tradeIdx++
	}
	return bookIdx, tradeIdx
}
