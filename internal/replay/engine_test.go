package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/eventlog"
)

var testTFs = []int64{1, 60, 300}

func bookRow(ts int64, side domain.Side, price, size float64) domain.BookEvent {
	return domain.BookEvent{TS: ts, Ticker: "BTC-USD", Kind: domain.BookUpdate, Side: side, Price: price, Size: size}
}

func tradeRow(ts int64, size float64) domain.TradeEvent {
	return domain.TradeEvent{TS: ts, Ticker: "BTC-USD", Source: "ws", Side: "SELL", Size: size}
}

// quoteLog is the canonical three-event book: quote both sides at 100,
// then pull the bid at 200.
func quoteLog() *eventlog.Log {
	return eventlog.NewLog([]domain.BookEvent{
		bookRow(100, domain.SideBid, 10.00, 1.0),
		bookRow(100, domain.SideAsk, 10.10, 1.0),
		bookRow(200, domain.SideBid, 10.00, 0.0),
	}, nil)
}

func TestSnapshotAtQuoteLifecycle(t *testing.T) {
	eng, err := NewEngine(quoteLog(), "BTC-USD", testTFs, 60)
	require.NoError(t, err)

	t.Run("Both sides quoted", func(t *testing.T) {
		snap := eng.SnapshotAt(100)
		require.Len(t, snap.Bids, 1)
		require.Len(t, snap.Asks, 1)
		assert.Equal(t, 10.00, snap.Bids[0].Price)
		assert.Equal(t, 10.10, snap.Asks[0].Price)
		assert.InDelta(t, 10.05, snap.LastMid, 1e-9)

		// One sample: the bid event alone could not price a mid.
		require.Len(t, snap.Candles[60], 1)
		c := snap.Candles[60][0]
		assert.InDelta(t, 10.05, c.Open, 1e-9)
		assert.Equal(t, 1.0, c.Volume)
	})

	t.Run("Bid pulled leaves one sided book", func(t *testing.T) {
		snap := eng.SnapshotAt(200)
		assert.Empty(t, snap.Bids)
		require.Len(t, snap.Asks, 1)
		// The removal event had no mid, so candles are unchanged.
		require.Len(t, snap.Candles[60], 1)
		assert.InDelta(t, 10.05, snap.Candles[60][0].Close, 1e-9)
	})
}

func TestSnapshotAtTargets(t *testing.T) {
	eng, err := NewEngine(quoteLog(), "BTC-USD", testTFs, 60)
	require.NoError(t, err)

	t.Run("Before first event is empty and valid", func(t *testing.T) {
		snap := eng.SnapshotAt(50)
		assert.Equal(t, int64(50), snap.TS)
		assert.Empty(t, snap.Bids)
		assert.Empty(t, snap.Asks)
		assert.Empty(t, snap.Candles[60])
		assert.Empty(t, snap.RecentTrades)
		assert.Zero(t, snap.LastMid)
	})

	t.Run("Past the end clamps to the last event", func(t *testing.T) {
		atEnd := eng.SnapshotAt(200)
		past := eng.SnapshotAt(999999)
		assert.Equal(t, atEnd, past)
		assert.Equal(t, int64(200), past.TS)
	})
}

func TestEmptyLog(t *testing.T) {
	_, err := NewEngine(eventlog.NewLog(nil, nil), "BTC-USD", testTFs, 60)
	assert.ErrorIs(t, err, domain.ErrEmptyLog)

	t.Run("Ticker absent from log", func(t *testing.T) {
		_, err := NewEngine(quoteLog(), "ETH-USD", testTFs, 60)
		assert.ErrorIs(t, err, domain.ErrEmptyLog)
	})
}

// scrubLog builds a busier stream: quotes walking up, a removal and
// requote, and a burst of trades, including equal-timestamp runs.
func scrubLog() *eventlog.Log {
	books := []domain.BookEvent{
		bookRow(100, domain.SideBid, 10.00, 1.0),
		bookRow(100, domain.SideAsk, 10.10, 2.0),
		bookRow(130, domain.SideBid, 10.05, 1.5),
		bookRow(130, domain.SideAsk, 10.10, 0.0),
		bookRow(130, domain.SideAsk, 10.15, 2.5),
		bookRow(190, domain.SideBid, 10.00, 0.0),
		bookRow(250, domain.SideBid, 10.08, 3.0),
		bookRow(310, domain.SideAsk, 10.12, 1.0),
	}
	var trades []domain.TradeEvent
	for i := int64(0); i < 300; i++ {
		trades = append(trades, tradeRow(105+i, float64(i%7)+0.5))
	}
	return eventlog.NewLog(books, trades)
}

func TestAdvanceMatchesSnapshot(t *testing.T) {
	eng, err := NewEngine(scrubLog(), "BTC-USD", testTFs, 60)
	require.NoError(t, err)

	// Forward scrub, repeats, a backward jump, then past the end.
	targets := []int64{90, 100, 129, 130, 130, 200, 260, 140, 310, 5000}
	for _, target := range targets {
		cold := eng.SnapshotAt(target)
		scrubbed := eng.AdvanceTo(target)
		assert.Equal(t, cold, scrubbed, "target %d", target)
	}
}

func TestReplayTradeTape(t *testing.T) {
	eng, err := NewEngine(scrubLog(), "BTC-USD", testTFs, 60)
	require.NoError(t, err)

	t.Run("Tape truncates to the most recent prints", func(t *testing.T) {
		snap := eng.SnapshotAt(5000)
		require.Len(t, snap.RecentTrades, domain.RecentTradeCap)
		last := snap.RecentTrades[len(snap.RecentTrades)-1]
		assert.Equal(t, int64(404), last.TS)
		assert.Equal(t, int64(404-domain.RecentTradeCap+1), snap.RecentTrades[0].TS)
	})

	t.Run("Tape respects the target time", func(t *testing.T) {
		snap := eng.SnapshotAt(110)
		require.Len(t, snap.RecentTrades, 6) // ts 105..110
		assert.Equal(t, int64(105), snap.RecentTrades[0].TS)
	})
}

func TestReplayCandles(t *testing.T) {
	eng, err := NewEngine(scrubLog(), "BTC-USD", testTFs, 60)
	require.NoError(t, err)
	snap := eng.SnapshotAt(5000)

	// Every configured timeframe is materialised.
	for _, tf := range testTFs {
		assert.Contains(t, snap.Candles, tf)
	}
	// Samples land at ts 100, 130(x2), 190, 250 and 310: five 60s
	// buckets. The ts=190 removal still samples because the book keeps
	// both sides, just with zero volume.
	assert.Len(t, snap.Candles[60], 5)
	assert.Len(t, snap.Candles[300], 2)
}

func TestEngineIgnoresOtherTickers(t *testing.T) {
	books := []domain.BookEvent{
		bookRow(100, domain.SideBid, 10.00, 1.0),
		{TS: 100, Ticker: "ETH-USD", Kind: domain.BookUpdate, Side: domain.SideBid, Price: 5.00, Size: 9.0},
	}
	eng, err := NewEngine(eventlog.NewLog(books, nil), "BTC-USD", testTFs, 60)
	require.NoError(t, err)

	snap := eng.SnapshotAt(100)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, 10.00, snap.Bids[0].Price)
}

func TestService(t *testing.T) {
	t.Run("Empty log rejected", func(t *testing.T) {
		_, err := NewService(eventlog.NewLog(nil, nil), testTFs, 60)
		assert.ErrorIs(t, err, domain.ErrEmptyLog)
	})

	svc, err := NewService(scrubLog(), testTFs, 60)
	require.NoError(t, err)

	t.Run("Bounds and tickers", func(t *testing.T) {
		minTS, maxTS := svc.Bounds()
		assert.Equal(t, int64(100), minTS)
		assert.Equal(t, int64(404), maxTS)
		assert.Equal(t, []string{"BTC-USD"}, svc.Tickers())
	})

	t.Run("Unknown ticker", func(t *testing.T) {
		_, err := svc.SnapshotAt("NOPE-USD", 100)
		assert.ErrorIs(t, err, domain.ErrUnknownTicker)
	})

	t.Run("Scrub parity with cold rebuild", func(t *testing.T) {
		for _, target := range []int64{120, 300, 150} {
			cold, err := svc.SnapshotAt("BTC-USD", target)
			require.NoError(t, err)
			scrubbed, err := svc.AdvanceTo("BTC-USD", target)
			require.NoError(t, err)
			assert.Equal(t, cold, scrubbed)
		}
	})
}
