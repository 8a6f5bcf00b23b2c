// Package feed connects the dYdX indexer websocket to the in-memory
// market states, the Redis caches, and the recorder.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	cacheredis "github.com/avelichka/ladderd/internal/cache/redis"
	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/market"
	"github.com/avelichka/ladderd/internal/platform/dydx"
)

// maxTickersPerConn caps how many tickers one websocket connection
// subscribes to when the configured chunk size is missing or larger.
const maxTickersPerConn = 20

// reconnectWait is the pause between feed-level reconnection attempts.
const reconnectWait = 2 * time.Second

// BookRowsHandler receives the recorded rows derived from one book frame.
type BookRowsHandler func(events []domain.BookEvent)

// TradeRowsHandler receives the recorded rows derived from one trades
// frame.
type TradeRowsHandler func(trades []domain.TradeEvent)

// TradesFrame is the bus payload for one trades message. The ticker
// rides along so pattern subscribers can route without parsing the
// channel name.
type TradesFrame struct {
	Ticker string
	Trades []domain.TradeEvent
}

// Config holds the live feed settings.
type Config struct {
	WSURL     string
	Tickers   []string
	ChunkSize int
}

// LiveFeed subscribes to the orderbook and trades channels for the
// configured tickers, applies every frame to the per-ticker market
// state, refreshes the Redis caches, and publishes updates on the
// signal bus. Registered row handlers receive the same frames
// decomposed into recordable events.
type LiveFeed struct {
	cfg     Config
	manager *market.Manager
	bus     domain.SignalBus
	books   domain.BookCache
	prices  domain.PriceCache
	logger  *slog.Logger

	onBookRows  BookRowsHandler
	onTradeRows TradeRowsHandler

	mu        sync.Mutex
	liveConns int

	closeOnce sync.Once
	done      chan struct{}
}

// NewLiveFeed creates a feed for the configured tickers. The bus and
// caches may be nil in replay-only deployments; the feed skips them.
func NewLiveFeed(
	cfg Config,
	manager *market.Manager,
	bus domain.SignalBus,
	books domain.BookCache,
	prices domain.PriceCache,
	logger *slog.Logger,
) *LiveFeed {
	return &LiveFeed{
		cfg:     cfg,
		manager: manager,
		bus:     bus,
		books:   books,
		prices:  prices,
		logger:  logger.With(slog.String("component", "live_feed")),
		done:    make(chan struct{}),
	}
}

// OnBookRows registers the handler that receives recordable book rows.
func (f *LiveFeed) OnBookRows(h BookRowsHandler) { f.onBookRows = h }

// OnTradeRows registers the handler that receives recordable trade rows.
func (f *LiveFeed) OnTradeRows(h TradeRowsHandler) { f.onTradeRows = h }

// Connected reports whether at least one websocket connection is
// currently subscribed.
func (f *LiveFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liveConns > 0
}

// Run connects one websocket per ticker chunk and blocks until ctx is
// cancelled or Close is called. Each connection reconnects with a fixed
// pause after a failure.
func (f *LiveFeed) Run(ctx context.Context) error {
	if len(f.cfg.Tickers) == 0 {
		f.logger.Info("no tickers to subscribe, exiting")
		return nil
	}

	chunks := chunkTickers(f.cfg.Tickers, f.cfg.ChunkSize)
	f.logger.Info("starting live feed",
		slog.Int("tickers", len(f.cfg.Tickers)),
		slog.Int("connections", len(chunks)),
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			return f.runChunk(ctx, chunk)
		})
	}
	return g.Wait()
}

// runChunk keeps one subscription set alive until shutdown.
func (f *LiveFeed) runChunk(ctx context.Context, tickers []string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx, tickers)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.Int("tickers", len(tickers)),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectWait):
		}
	}
}

func (f *LiveFeed) runConnection(ctx context.Context, tickers []string) error {
	client := dydx.NewWSClient(f.cfg.WSURL)
	defer client.Close()

	client.OnBookSnapshot(f.handleBookSnapshot)
	client.OnBookDelta(f.handleBookDelta)
	client.OnTrades(f.handleTrades)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, dydx.ChannelOrderbook, tickers); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, dydx.ChannelTrades, tickers); err != nil {
		return err
	}

	f.mu.Lock()
	f.liveConns++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.liveConns--
		f.mu.Unlock()
	}()

	f.logger.Info("feed subscribed", slog.Int("tickers", len(tickers)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// Close stops the feed.
func (f *LiveFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// --------------------------------------------------------------------------
// Frame handlers
// --------------------------------------------------------------------------

// handleBookSnapshot replaces a ticker's book with the full snapshot
// delivered on subscription. Book rows are stamped with the capture
// time, since the indexer does not timestamp book frames.
func (f *LiveFeed) handleBookSnapshot(ticker string, bids, asks []domain.PriceLevel) {
	ts := time.Now().Unix()
	st := f.manager.GetOrCreate(ticker)
	st.ApplyBookInitial(ts, bids, asks)

	if f.onBookRows != nil {
		f.onBookRows(bookRows(ts, ticker, domain.BookInitial, bids, asks))
	}
	f.publishBook(st, ticker)
}

func (f *LiveFeed) handleBookDelta(ticker string, bids, asks []domain.PriceLevel) {
	ts := time.Now().Unix()
	st := f.manager.GetOrCreate(ticker)
	st.ApplyBookDelta(ts, bids, asks)

	if f.onBookRows != nil {
		f.onBookRows(bookRows(ts, ticker, domain.BookUpdate, bids, asks))
	}
	f.publishBook(st, ticker)
}

func (f *LiveFeed) handleTrades(ticker string, trades []domain.TradeEvent) {
	if len(trades) == 0 {
		return
	}

	st := f.manager.GetOrCreate(ticker)
	for i := range trades {
		st.ApplyTrade(trades[i])
	}

	if f.onTradeRows != nil {
		f.onTradeRows(trades)
	}

	if f.bus == nil {
		return
	}
	payload, err := json.Marshal(TradesFrame{Ticker: ticker, Trades: trades})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := f.bus.Publish(ctx, cacheredis.TradesChannel(ticker), payload); err != nil {
		f.logger.Debug("publish trades failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
	}
	if err := f.bus.StreamAppend(ctx, cacheredis.EventStream(ticker), payload); err != nil {
		f.logger.Debug("stream append trades failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
	}
}

// publishBook pushes the current book state to the caches and the bus.
func (f *LiveFeed) publishBook(st *market.State, ticker string) {
	state := st.BookState()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if f.books != nil {
		if err := f.books.SetSnapshot(ctx, state); err != nil {
			f.logger.Debug("book cache set failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}
	if f.prices != nil {
		if mid, ok := st.Mid(); ok {
			if err := f.prices.SetMid(ctx, ticker, mid, time.Now()); err != nil {
				f.logger.Debug("price cache set failed",
					slog.String("ticker", ticker),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if f.bus == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := f.bus.Publish(ctx, cacheredis.BookChannel(ticker), payload); err != nil {
		f.logger.Debug("publish book failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
	}
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

// bookRows decomposes one book frame into recordable per-level events.
func bookRows(ts int64, ticker string, kind domain.BookEventKind, bids, asks []domain.PriceLevel) []domain.BookEvent {
	rows := make([]domain.BookEvent, 0, len(bids)+len(asks))
	for _, lvl := range bids {
		rows = append(rows, domain.BookEvent{
			TS:     ts,
			Ticker: ticker,
			Kind:   kind,
			Side:   domain.SideBid,
			Price:  lvl.Price,
			Size:   lvl.Size,
		})
	}
	for _, lvl := range asks {
		rows = append(rows, domain.BookEvent{
			TS:     ts,
			Ticker: ticker,
			Kind:   kind,
			Side:   domain.SideAsk,
			Price:  lvl.Price,
			Size:   lvl.Size,
		})
	}
	return rows
}

// chunkTickers splits tickers into groups of at most size, clamped to
// the per-connection cap.
func chunkTickers(tickers []string, size int) [][]string {
	if size <= 0 || size > maxTickersPerConn {
		size = maxTickersPerConn
	}

	var chunks [][]string
	for len(tickers) > size {
		chunks = append(chunks, tickers[:size])
		tickers = tickers[size:]
	}
	if len(tickers) > 0 {
		chunks = append(chunks, tickers)
	}
	return chunks
}
