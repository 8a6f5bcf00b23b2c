package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	st, err := NewState("BTC-USD", []int64{60, 300}, 60)
	require.NoError(t, err)
	return st
}

func TestStateSampling(t *testing.T) {
	t.Run("One sided book takes no samples", func(t *testing.T) {
		st := newTestState(t)
		st.ApplyBookDelta(100, []domain.PriceLevel{{Price: 10.00, Size: 1.0}}, nil)

		snap := st.Snapshot(100)
		assert.Empty(t, snap.Candles[60])
		assert.Zero(t, snap.LastMid)
	})

	t.Run("Sample lands once both sides exist", func(t *testing.T) {
		st := newTestState(t)
		st.ApplyBookDelta(100, []domain.PriceLevel{{Price: 10.00, Size: 1.0}}, nil)
		st.ApplyBookDelta(100, nil, []domain.PriceLevel{{Price: 10.10, Size: 1.0}})

		snap := st.Snapshot(100)
		require.Len(t, snap.Candles[60], 1)
		c := snap.Candles[60][0]
		assert.Equal(t, int64(60), c.T)
		assert.InDelta(t, 10.05, c.Open, 1e-9)
		assert.InDelta(t, 10.05, c.Close, 1e-9)
		assert.Equal(t, 1.0, c.Volume)
		assert.InDelta(t, 10.05, snap.LastMid, 1e-9)
		assert.Equal(t, 1.0, snap.LastVolume)
	})

	t.Run("Initial snapshot samples every level", func(t *testing.T) {
		st := newTestState(t)
		st.ApplyBookInitial(100,
			[]domain.PriceLevel{{Price: 10.00, Size: 1.0}, {Price: 9.90, Size: 2.0}},
			[]domain.PriceLevel{{Price: 10.10, Size: 3.0}},
		)

		snap := st.Snapshot(100)
		require.Len(t, snap.Candles[60], 1)
		// Volume accumulates |size| of each level once both sides exist.
		// The two bid levels precede the ask, so only the ask level samples.
		assert.Equal(t, 3.0, snap.Candles[60][0].Volume)

		// A fresh initial replaces the whole book.
		st.ApplyBookInitial(105,
			[]domain.PriceLevel{{Price: 11.00, Size: 1.0}},
			[]domain.PriceLevel{{Price: 11.10, Size: 1.0}},
		)
		snap = st.Snapshot(105)
		require.Len(t, snap.Bids, 1)
		assert.Equal(t, 11.00, snap.Bids[0].Price)
	})

	t.Run("Backward sample dropped but book still applied", func(t *testing.T) {
		st := newTestState(t)
		st.ApplyBookDelta(100, []domain.PriceLevel{{Price: 10.00, Size: 1.0}}, []domain.PriceLevel{{Price: 10.10, Size: 1.0}})
		st.ApplyBookDelta(90, []domain.PriceLevel{{Price: 9.95, Size: 2.0}}, nil)

		snap := st.Snapshot(100)
		require.Len(t, snap.Bids, 2) // level landed
		require.Len(t, snap.Candles[60], 1)
		assert.Equal(t, 1.0, snap.Candles[60][0].Volume) // sample did not

		_, _, dropped, _ := st.Stats()
		assert.Equal(t, int64(1), dropped)
	})
}

func TestStateBook(t *testing.T) {
	st := newTestState(t)
	st.ApplyBookInitial(100,
		[]domain.PriceLevel{{Price: 9.90, Size: 2.0}, {Price: 10.00, Size: 1.0}},
		[]domain.PriceLevel{{Price: 10.20, Size: 2.0}, {Price: 10.10, Size: 1.0}},
	)

	t.Run("Snapshot sides sorted best first", func(t *testing.T) {
		snap := st.Snapshot(100)
		require.Len(t, snap.Bids, 2)
		assert.Equal(t, 10.00, snap.Bids[0].Price)
		require.Len(t, snap.Asks, 2)
		assert.Equal(t, 10.10, snap.Asks[0].Price)
	})

	t.Run("Depth cumulates best outward", func(t *testing.T) {
		depth := st.Depth(domain.SideAsk, 0)
		require.Len(t, depth, 2)
		assert.Equal(t, 1.0, depth[0].Cumulative)
		assert.Equal(t, 3.0, depth[1].Cumulative)
	})

	t.Run("Zero size removes a level", func(t *testing.T) {
		st.ApplyBookEvent(domain.BookEvent{TS: 101, Ticker: "BTC-USD", Kind: domain.BookUpdate, Side: domain.SideBid, Price: 10.00, Size: 0})
		snap := st.Snapshot(101)
		require.Len(t, snap.Bids, 1)
		assert.Equal(t, 9.90, snap.Bids[0].Price)
	})

	t.Run("BookState carries last event ts", func(t *testing.T) {
		bs := st.BookState()
		assert.Equal(t, "BTC-USD", bs.Ticker)
		assert.Equal(t, int64(101), bs.TS)
	})
}

func TestStateTradeTape(t *testing.T) {
	st := newTestState(t)
	total := domain.RecentTradeCap + 50
	for i := 0; i < total; i++ {
		st.ApplyTrade(domain.TradeEvent{
			TS: int64(i), Ticker: "BTC-USD", Source: "ws", Side: "BUY", Size: float64(i),
		})
	}

	snap := st.Snapshot(int64(total))
	require.Len(t, snap.RecentTrades, domain.RecentTradeCap)
	// Oldest dropped, newest last.
	assert.Equal(t, int64(50), snap.RecentTrades[0].TS)
	assert.Equal(t, int64(total-1), snap.RecentTrades[len(snap.RecentTrades)-1].TS)

	books, trades, _, lastTS := st.Stats()
	assert.Zero(t, books)
	assert.Equal(t, int64(total), trades)
	assert.Equal(t, int64(total-1), lastTS)
}

func TestStateSnapshotIsolation(t *testing.T) {
	st := newTestState(t)
	st.ApplyBookDelta(100, []domain.PriceLevel{{Price: 10.00, Size: 1.0}}, []domain.PriceLevel{{Price: 10.10, Size: 1.0}})
	st.ApplyTrade(domain.TradeEvent{TS: 100, Ticker: "BTC-USD", Source: "ws", Side: "SELL", Size: 1})

	snap := st.Snapshot(100)
	snap.Candles[60][0].Close = -1
	snap.RecentTrades[0].Size = -1
	snap.Bids[0].Price = -1

	fresh := st.Snapshot(100)
	assert.InDelta(t, 10.05, fresh.Candles[60][0].Close, 1e-9)
	assert.Equal(t, 1.0, fresh.RecentTrades[0].Size)
	assert.Equal(t, 10.00, fresh.Bids[0].Price)
}

func TestStateReset(t *testing.T) {
	st := newTestState(t)
	st.ApplyBookDelta(100, []domain.PriceLevel{{Price: 10.00, Size: 1.0}}, []domain.PriceLevel{{Price: 10.10, Size: 1.0}})
	st.ApplyTrade(domain.TradeEvent{TS: 100, Ticker: "BTC-USD", Source: "ws", Side: "BUY", Size: 1})

	st.Reset()

	snap := st.Snapshot(0)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	assert.Empty(t, snap.Candles[60])
	assert.Empty(t, snap.RecentTrades)

	books, trades, dropped, lastTS := st.Stats()
	assert.Zero(t, books)
	assert.Zero(t, trades)
	assert.Zero(t, dropped)
	assert.Zero(t, lastTS)
}

func TestManager(t *testing.T) {
	t.Run("Invalid timeframes rejected", func(t *testing.T) {
		_, err := NewManager([]int64{0}, 60)
		assert.Error(t, err)
	})

	t.Run("Empty set falls back to the catalogue", func(t *testing.T) {
		m, err := NewManager(nil, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.Timeframes, m.Timeframes())
		snap := m.GetOrCreate("BTC-USD").Snapshot(0)
		assert.Len(t, snap.Candles, len(domain.Timeframes))
	})

	t.Run("States persist across switches", func(t *testing.T) {
		m, err := NewManager([]int64{60}, 60)
		require.NoError(t, err)

		btc := m.GetOrCreate("BTC-USD")
		btc.ApplyBookDelta(100, []domain.PriceLevel{{Price: 10, Size: 1}}, []domain.PriceLevel{{Price: 11, Size: 1}})

		// Look at another ticker, then come back.
		m.GetOrCreate("ETH-USD")
		again := m.GetOrCreate("BTC-USD")
		assert.Same(t, btc, again)

		snap, err := m.Snapshot("BTC-USD", 100)
		require.NoError(t, err)
		assert.Len(t, snap.Candles[60], 1)

		assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, m.Tickers())
	})

	t.Run("Unknown ticker", func(t *testing.T) {
		m, err := NewManager([]int64{60}, 60)
		require.NoError(t, err)
		_, err = m.Snapshot("NOPE-USD", 0)
		assert.ErrorIs(t, err, domain.ErrUnknownTicker)
	})

	t.Run("Stats aggregate across tickers", func(t *testing.T) {
		m, err := NewManager([]int64{60}, 60)
		require.NoError(t, err)
		for i, ticker := range []string{"BTC-USD", "ETH-USD"} {
			st := m.GetOrCreate(ticker)
			st.ApplyTrade(domain.TradeEvent{TS: int64(100 + i), Ticker: ticker, Source: "ws", Side: "BUY", Size: 1})
		}
		books, trades, lastTS := m.Stats()
		assert.Zero(t, books)
		assert.Equal(t, int64(2), trades)
		assert.Equal(t, int64(101), lastTS)
	})
}

func BenchmarkStateApplyBookDelta(b *testing.B) {
	st, err := NewState("BTC-USD", domain.Timeframes, domain.DefaultTimeframe)
	if err != nil {
		b.Fatal(err)
	}
	st.ApplyBookInitial(0,
		[]domain.PriceLevel{{Price: 10.00, Size: 1}},
		[]domain.PriceLevel{{Price: 10.10, Size: 1}},
	)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		price := 9.0 + float64(i%200)/100
		st.ApplyBookDelta(int64(i/100), []domain.PriceLevel{{Price: price, Size: 1}}, nil)
	}
}
