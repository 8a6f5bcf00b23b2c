package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/eventlog"
	"github.com/avelichka/ladderd/internal/market"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBookStore struct {
	mu      sync.Mutex
	batches [][]domain.BookEvent
}

func (f *fakeBookStore) InsertBatch(_ context.Context, events []domain.BookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]domain.BookEvent, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeBookStore) ListByTicker(context.Context, string, domain.ListOpts) ([]domain.BookEvent, error) {
	return nil, nil
}
func (f *fakeBookStore) GetLastTimestamp(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeBookStore) ListBefore(context.Context, time.Time, int) ([]domain.BookEvent, error) {
	return nil, nil
}
func (f *fakeBookStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeTradeStore struct {
	mu      sync.Mutex
	batches [][]domain.TradeEvent
}

func (f *fakeTradeStore) InsertBatch(_ context.Context, trades []domain.TradeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]domain.TradeEvent, len(trades))
	copy(cp, trades)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeTradeStore) ListByTicker(context.Context, string, domain.ListOpts) ([]domain.TradeEvent, error) {
	return nil, nil
}
func (f *fakeTradeStore) ListBefore(context.Context, time.Time, int) ([]domain.TradeEvent, error) {
	return nil, nil
}
func (f *fakeTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeCandleStore struct {
	mu      sync.Mutex
	upserts map[string][]domain.Candle
}

func (f *fakeCandleStore) UpsertBatch(_ context.Context, ticker string, timeframe int64, candles []domain.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upserts == nil {
		f.upserts = make(map[string][]domain.Candle)
	}
	key := fmt.Sprintf("%s/%d", ticker, timeframe)
	cp := make([]domain.Candle, len(candles))
	copy(cp, candles)
	f.upserts[key] = cp
	return nil
}

func (f *fakeCandleStore) List(context.Context, string, int64, domain.ListOpts) ([]domain.Candle, error) {
	return nil, nil
}
func (f *fakeCandleStore) ListBefore(context.Context, time.Time, int) ([]domain.CandleRow, error) {
	return nil, nil
}
func (f *fakeCandleStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func newTestManager(t *testing.T) *market.Manager {
	t.Helper()
	mgr, err := market.NewManager([]int64{60, 300}, 60)
	require.NoError(t, err)
	return mgr
}

func TestRecorderTradeTail(t *testing.T) {
	mgr := newTestManager(t)
	r := NewRecorder(RecorderConfig{}, mgr, nil, nil, nil, nil, nil, discardLogger())

	t.Run("Caps the tail per ticker", func(t *testing.T) {
		trades := make([]domain.TradeEvent, 0, tradeTailCap+100)
		for i := 0; i < tradeTailCap+100; i++ {
			trades = append(trades, domain.TradeEvent{TS: int64(i), Ticker: "BTC-USD", Size: 1})
		}
		r.OnTradeRows(trades)

		tail := r.RecentTrades("BTC-USD", 0)
		require.Len(t, tail, tradeTailCap)
		assert.Equal(t, int64(100), tail[0].TS)
		assert.Equal(t, int64(tradeTailCap+99), tail[len(tail)-1].TS)
	})

	t.Run("Limit returns the newest trades oldest first", func(t *testing.T) {
		tail := r.RecentTrades("BTC-USD", 3)
		require.Len(t, tail, 3)
		assert.Equal(t, int64(tradeTailCap+97), tail[0].TS)
		assert.Equal(t, int64(tradeTailCap+99), tail[2].TS)
	})

	t.Run("Tickers are isolated", func(t *testing.T) {
		r.OnTradeRows([]domain.TradeEvent{
			{TS: 1, Ticker: "ETH-USD", Size: 2},
			{TS: 2, Ticker: "ETH-USD", Size: 3},
		})
		assert.Len(t, r.RecentTrades("ETH-USD", 0), 2)
		assert.Empty(t, r.RecentTrades("SOL-USD", 0))
	})
}

func TestRecorderFlush(t *testing.T) {
	mgr := newTestManager(t)
	books := &fakeBookStore{}
	trades := &fakeTradeStore{}
	r := NewRecorder(RecorderConfig{}, mgr, books, trades, nil, nil, nil, discardLogger())

	r.OnBookRows([]domain.BookEvent{
		{TS: 10, Ticker: "BTC-USD", Kind: domain.BookInitial, Side: domain.SideBid, Price: 100, Size: 1},
		{TS: 10, Ticker: "BTC-USD", Kind: domain.BookInitial, Side: domain.SideAsk, Price: 101, Size: 2},
	})
	r.OnTradeRows([]domain.TradeEvent{
		{TS: 11, Ticker: "BTC-USD", Source: "ws", Side: "BUY", Size: 0.5},
	})

	var bookBuf, tradeBuf bytes.Buffer
	bw := eventlog.NewBookWriter(&bookBuf)
	tw := eventlog.NewTradeWriter(&tradeBuf)

	r.flush(context.Background(), bw, tw)

	t.Run("Appends CSV rows with a header", func(t *testing.T) {
		bookLines := strings.Split(strings.TrimSpace(bookBuf.String()), "\n")
		require.Len(t, bookLines, 3)
		assert.Equal(t, "ts,ticker,kind,side,price,size", bookLines[0])
		assert.Equal(t, "10,BTC-USD,initial,bid,100,1", bookLines[1])

		tradeLines := strings.Split(strings.TrimSpace(tradeBuf.String()), "\n")
		require.Len(t, tradeLines, 2)
		assert.Equal(t, "11,BTC-USD,ws,BUY,0.5", tradeLines[1])
	})

	t.Run("Batch-inserts into the stores", func(t *testing.T) {
		require.Len(t, books.batches, 1)
		assert.Len(t, books.batches[0], 2)
		require.Len(t, trades.batches, 1)
		assert.Len(t, trades.batches[0], 1)
	})

	t.Run("Counts persisted rows", func(t *testing.T) {
		bookRows, tradeRows := r.Stats()
		assert.Equal(t, int64(2), bookRows)
		assert.Equal(t, int64(1), tradeRows)
	})

	t.Run("Empty flush is a no-op", func(t *testing.T) {
		r.flush(context.Background(), bw, tw)
		assert.Len(t, books.batches, 1)
		assert.Len(t, trades.batches, 1)
	})
}

func TestRecorderPersistCandles(t *testing.T) {
	mgr := newTestManager(t)
	st := mgr.GetOrCreate("BTC-USD")
	st.ApplyBookInitial(60, []domain.PriceLevel{{Price: 100, Size: 1}}, []domain.PriceLevel{{Price: 101, Size: 2}})
	st.ApplyBookDelta(125, []domain.PriceLevel{{Price: 99, Size: 3}}, nil)
	st.ApplyBookDelta(190, nil, []domain.PriceLevel{{Price: 102, Size: 1}})

	candles := &fakeCandleStore{}
	r := NewRecorder(RecorderConfig{}, mgr, nil, nil, candles, nil, nil, discardLogger())

	r.persistCandles(context.Background())

	t.Run("Writes the last two buckets per timeframe", func(t *testing.T) {
		got, ok := candles.upserts["BTC-USD/60"]
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.Equal(t, int64(120), got[0].T)
		assert.Equal(t, int64(180), got[1].T)
	})

	t.Run("Single open bucket is written alone", func(t *testing.T) {
		got, ok := candles.upserts["BTC-USD/300"]
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.Equal(t, int64(0), got[0].T)
	})
}

func TestOpenLogs(t *testing.T) {
	t.Run("Empty path disables the sink", func(t *testing.T) {
		bw, f, err := openBookLog("")
		require.NoError(t, err)
		assert.Nil(t, bw)
		assert.Nil(t, f)
	})

	t.Run("Appending does not repeat the header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "book.csv")

		bw, f, err := openBookLog(path)
		require.NoError(t, err)
		require.NoError(t, bw.Write(domain.BookEvent{TS: 1, Ticker: "BTC-USD", Kind: domain.BookUpdate, Side: domain.SideBid, Price: 100, Size: 1}))
		require.NoError(t, bw.Flush())
		require.NoError(t, f.Close())

		bw, f, err = openBookLog(path)
		require.NoError(t, err)
		require.NoError(t, bw.Write(domain.BookEvent{TS: 2, Ticker: "BTC-USD", Kind: domain.BookUpdate, Side: domain.SideBid, Price: 100, Size: 2}))
		require.NoError(t, bw.Flush())
		require.NoError(t, f.Close())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "ts,ticker,kind,side,price,size", lines[0])
		assert.NotContains(t, lines[1], "ts,")
		assert.NotContains(t, lines[2], "ts,")
	})
}
