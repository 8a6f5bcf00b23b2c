package market

import (
	"sort"
	"sync"

	"github.com/avelichka/ladderd/internal/candle"
	"github.com/avelichka/ladderd/internal/domain"
)

// Manager owns one State per subscribed ticker. States live for the
// whole process; switching the ticker a client looks at never discards
// aggregation built for the others.
type Manager struct {
	mu         sync.RWMutex
	states     map[string]*State
	timeframes []int64
	defaultTF  int64
}

// NewManager validates the timeframe set once so later state creation
// cannot fail. An empty set means the full domain.Timeframes catalogue,
// and a zero defaultTF means domain.DefaultTimeframe.
func NewManager(timeframes []int64, defaultTF int64) (*Manager, error) {
	if len(timeframes) == 0 {
		timeframes = domain.Timeframes
	}
	if defaultTF == 0 {
		defaultTF = domain.DefaultTimeframe
	}
	if _, err := candle.NewPool(timeframes, defaultTF); err != nil {
		return nil, err
	}
	return &Manager{
		states:     make(map[string]*State),
		timeframes: timeframes,
		defaultTF:  defaultTF,
	}, nil
}

// Get returns the state for ticker if it exists.
func (m *Manager) Get(ticker string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[ticker]
	return st, ok
}

// GetOrCreate returns the state for ticker, creating it on first use.
func (m *Manager) GetOrCreate(ticker string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[ticker]
	if !ok {
		// Timeframes were validated in NewManager.
		st, _ = NewState(ticker, m.timeframes, m.defaultTF)
		m.states[ticker] = st
	}
	return st
}

// Timeframes returns the configured timeframe set.
func (m *Manager) Timeframes() []int64 {
	out := make([]int64, len(m.timeframes))
	copy(out, m.timeframes)
	return out
}

// Tickers returns the tracked tickers, sorted.
func (m *Manager) Tickers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.states))
	for t := range m.states {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the derived state for ticker stamped with ts, or
// domain.ErrUnknownTicker.
func (m *Manager) Snapshot(ticker string, ts int64) (domain.Snapshot, error) {
	st, ok := m.Get(ticker)
	if !ok {
		return domain.Snapshot{}, domain.ErrUnknownTicker
	}
	return st.Snapshot(ts), nil
}

// Depth returns one side of ticker's book with cumulative sizes, or
// domain.ErrUnknownTicker.
func (m *Manager) Depth(ticker string, side domain.Side, maxLevels int) ([]domain.DepthLevel, error) {
	st, ok := m.Get(ticker)
	if !ok {
		return nil, domain.ErrUnknownTicker
	}
	return st.Depth(side, maxLevels), nil
}

// Series returns ticker's candle series for tf, the default timeframe
// when tf is zero, or domain.ErrUnknownTicker.
func (m *Manager) Series(ticker string, tf int64) ([]domain.Candle, error) {
	st, ok := m.Get(ticker)
	if !ok {
		return nil, domain.ErrUnknownTicker
	}
	return st.Series(tf), nil
}

// BookState returns ticker's flattened live book, or
// domain.ErrUnknownTicker.
func (m *Manager) BookState(ticker string) (domain.BookState, error) {
	st, ok := m.Get(ticker)
	if !ok {
		return domain.BookState{}, domain.ErrUnknownTicker
	}
	return st.BookState(), nil
}

// Stats sums ingestion counters across every state.
func (m *Manager) Stats() (bookEvents, tradeEvents, lastTS int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.states {
		b, t, _, last := st.Stats()
		bookEvents += b
		tradeEvents += t
		if last > lastTS {
			lastTS = last
		}
	}
	return bookEvents, tradeEvents, lastTS
}
