package eventlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
)

func bookEv(ts int64, side domain.Side, price, size float64) domain.BookEvent {
	return domain.BookEvent{TS: ts, Ticker: "BTC-USD", Kind: domain.BookUpdate, Side: side, Price: price, Size: size}
}

func tradeEv(ts int64, size float64) domain.TradeEvent {
	return domain.TradeEvent{TS: ts, Ticker: "BTC-USD", Source: "ws", Side: "BUY", Size: size}
}

func TestLogOrdering(t *testing.T) {
	t.Run("Sorts by timestamp", func(t *testing.T) {
		l := NewLog([]domain.BookEvent{
			bookEv(300, domain.SideBid, 10, 1),
			bookEv(100, domain.SideBid, 10, 1),
			bookEv(200, domain.SideBid, 10, 1),
		}, nil)

		assert.Equal(t, int64(100), l.Books[0].TS)
		assert.Equal(t, int64(200), l.Books[1].TS)
		assert.Equal(t, int64(300), l.Books[2].TS)
	})

	t.Run("Equal timestamps keep recorded order", func(t *testing.T) {
		l := NewLog([]domain.BookEvent{
			bookEv(100, domain.SideBid, 10.00, 1),
			bookEv(100, domain.SideBid, 10.00, 2),
			bookEv(100, domain.SideBid, 10.00, 3),
		}, nil)

		assert.Equal(t, 1.0, l.Books[0].Size)
		assert.Equal(t, 2.0, l.Books[1].Size)
		assert.Equal(t, 3.0, l.Books[2].Size)
	})
}

func TestLogBounds(t *testing.T) {
	t.Run("Empty log has no bounds", func(t *testing.T) {
		l := NewLog(nil, nil)
		assert.True(t, l.Empty())
		_, ok := l.MinTS()
		assert.False(t, ok)
		_, ok = l.MaxTS()
		assert.False(t, ok)
	})

	t.Run("Bounds span both streams", func(t *testing.T) {
		l := NewLog(
			[]domain.BookEvent{bookEv(150, domain.SideBid, 10, 1), bookEv(400, domain.SideAsk, 11, 1)},
			[]domain.TradeEvent{tradeEv(100, 1), tradeEv(350, 2)},
		)

		minTS, ok := l.MinTS()
		require.True(t, ok)
		assert.Equal(t, int64(100), minTS)

		maxTS, ok := l.MaxTS()
		require.True(t, ok)
		assert.Equal(t, int64(400), maxTS)
	})

	t.Run("Single stream bounds", func(t *testing.T) {
		l := NewLog(nil, []domain.TradeEvent{tradeEv(5, 1)})
		minTS, ok := l.MinTS()
		require.True(t, ok)
		assert.Equal(t, int64(5), minTS)
		maxTS, ok := l.MaxTS()
		require.True(t, ok)
		assert.Equal(t, int64(5), maxTS)
	})
}

func TestLogTickers(t *testing.T) {
	books := []domain.BookEvent{
		{TS: 1, Ticker: "ETH-USD", Kind: domain.BookUpdate, Side: domain.SideBid, Price: 1, Size: 1},
		{TS: 2, Ticker: "BTC-USD", Kind: domain.BookUpdate, Side: domain.SideBid, Price: 1, Size: 1},
	}
	trades := []domain.TradeEvent{{TS: 3, Ticker: "SOL-USD", Source: "ws", Side: "SELL", Size: 1}}
	l := NewLog(books, trades)

	assert.Equal(t, []string{"BTC-USD", "ETH-USD", "SOL-USD"}, l.Tickers())

	filtered := l.FilterTicker("BTC-USD")
	require.Len(t, filtered.Books, 1)
	assert.Empty(t, filtered.Trades)
	assert.Equal(t, "BTC-USD", filtered.Books[0].Ticker)
}

func TestReadBookEvents(t *testing.T) {
	t.Run("Header tolerated", func(t *testing.T) {
		in := "ts,ticker,kind,side,price,size\n100,BTC-USD,initial,bid,64000.5,1.25\n101,BTC-USD,update,ask,64001,0\n"
		events, skipped, err := ReadBookEvents(strings.NewReader(in), Strict)
		require.NoError(t, err)
		assert.Zero(t, skipped)
		require.Len(t, events, 2)
		assert.Equal(t, domain.BookEvent{TS: 100, Ticker: "BTC-USD", Kind: domain.BookInitial, Side: domain.SideBid, Price: 64000.5, Size: 1.25}, events[0])
		assert.Equal(t, domain.BookUpdate, events[1].Kind)
		assert.Zero(t, events[1].Size)
	})

	t.Run("Strict fails on malformed row", func(t *testing.T) {
		in := "100,BTC-USD,update,bid,notaprice,1\n"
		_, _, err := ReadBookEvents(strings.NewReader(in), Strict)
		assert.ErrorIs(t, err, domain.ErrBadRecord)
	})

	t.Run("Strict fails on unknown side", func(t *testing.T) {
		in := "100,BTC-USD,update,middle,10,1\n"
		_, _, err := ReadBookEvents(strings.NewReader(in), Strict)
		assert.ErrorIs(t, err, domain.ErrBadRecord)
	})

	t.Run("Lenient drops malformed rows", func(t *testing.T) {
		in := "100,BTC-USD,update,bid,10,1\n" +
			"bogus line\n" +
			"101,BTC-USD,update,ask,oops,1\n" +
			"102,BTC-USD,update,ask,10.1,1\n"
		events, skipped, err := ReadBookEvents(strings.NewReader(in), Lenient)
		require.NoError(t, err)
		assert.Equal(t, 2, skipped)
		require.Len(t, events, 2)
		assert.Equal(t, int64(102), events[1].TS)
	})
}

func TestReadTradeEvents(t *testing.T) {
	t.Run("Side is normalised", func(t *testing.T) {
		in := "100,BTC-USD,ws,buy,0.5\n"
		trades, _, err := ReadTradeEvents(strings.NewReader(in), Strict)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, "BUY", trades[0].Side)
	})

	t.Run("Unknown side rejected", func(t *testing.T) {
		in := "100,BTC-USD,ws,HOLD,0.5\n"
		_, _, err := ReadTradeEvents(strings.NewReader(in), Strict)
		assert.ErrorIs(t, err, domain.ErrBadRecord)
	})
}

func TestWriterRoundTrip(t *testing.T) {
	t.Run("Book events", func(t *testing.T) {
		var buf bytes.Buffer
		bw := NewBookWriter(&buf)
		want := []domain.BookEvent{
			bookEv(100, domain.SideBid, 64000.5, 1.25),
			bookEv(101, domain.SideAsk, 64001, 0),
		}
		for _, ev := range want {
			require.NoError(t, bw.Write(ev))
		}
		require.NoError(t, bw.Flush())

		assert.True(t, strings.HasPrefix(buf.String(), "ts,ticker,kind,side,price,size\n"))

		got, skipped, err := ReadBookEvents(&buf, Strict)
		require.NoError(t, err)
		assert.Zero(t, skipped)
		assert.Equal(t, want, got)
	})

	t.Run("Trade events", func(t *testing.T) {
		var buf bytes.Buffer
		tw := NewTradeWriter(&buf)
		want := []domain.TradeEvent{tradeEv(100, 0.5), tradeEv(101, 2)}
		for _, tr := range want {
			require.NoError(t, tw.Write(tr))
		}
		require.NoError(t, tw.Flush())

		got, _, err := ReadTradeEvents(&buf, Strict)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	bookPath := filepath.Join(dir, "book_events.csv")
	tradePath := filepath.Join(dir, "trade_events.csv")

	bookCSV := "ts,ticker,kind,side,price,size\n200,BTC-USD,update,bid,10,1\n100,BTC-USD,update,ask,11,1\n"
	tradeCSV := "ts,ticker,source,side,size\n150,BTC-USD,ws,SELL,2\n"
	require.NoError(t, os.WriteFile(bookPath, []byte(bookCSV), 0o644))
	require.NoError(t, os.WriteFile(tradePath, []byte(tradeCSV), 0o644))

	l, skipped, err := LoadFiles(bookPath, tradePath, Strict)
	require.NoError(t, err)
	assert.Zero(t, skipped)

	// Sorted on load.
	require.Len(t, l.Books, 2)
	assert.Equal(t, int64(100), l.Books[0].TS)

	minTS, ok := l.MinTS()
	require.True(t, ok)
	assert.Equal(t, int64(100), minTS)
	maxTS, ok := l.MaxTS()
	require.True(t, ok)
	assert.Equal(t, int64(200), maxTS)

	t.Run("Missing file errors", func(t *testing.T) {
		_, _, err := LoadFiles(filepath.Join(dir, "nope.csv"), "", Strict)
		assert.Error(t, err)
	})

	t.Run("Empty paths give empty log", func(t *testing.T) {
		l, _, err := LoadFiles("", "", Strict)
		require.NoError(t, err)
		assert.True(t, l.Empty())
	})
}
