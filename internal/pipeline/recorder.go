package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/eventlog"
	"github.com/avelichka/ladderd/internal/market"
)

const (
	// tradeTailCap bounds the per-ticker trade history the recorder keeps
	// in memory for recent-trade queries. Snapshots carry a much shorter
	// window of their own.
	tradeTailCap = 2000

	defaultFlushInterval    = 2 * time.Second
	defaultSnapshotInterval = 30 * time.Second

	// recordLockTTL covers one recording session. There is no renewal, so
	// the TTL is generous; the unlock on shutdown is the normal release.
	recordLockTTL = 24 * time.Hour
)

// RecorderConfig holds the recorder settings.
type RecorderConfig struct {
	Mode             string
	Tickers          []string
	BookCSV          string
	TradeCSV         string
	FlushInterval    time.Duration
	SnapshotInterval time.Duration
}

// Recorder taps the live feed and persists every captured event: rows are
// appended to the CSV event logs for later replay, batch-inserted into the
// Postgres event stores, and the open candle buckets are upserted on a
// snapshot interval. Each session is tracked as one run row.
//
// Every store dependency is optional; a nil store disables that sink.
type Recorder struct {
	cfg     RecorderConfig
	manager *market.Manager
	books   domain.BookEventStore
	trades  domain.TradeEventStore
	candles domain.CandleStore
	runs    domain.RunStore
	locks   domain.LockManager
	logger  *slog.Logger

	mu            sync.Mutex
	pendingBooks  []domain.BookEvent
	pendingTrades []domain.TradeEvent
	tradeTail     map[string][]domain.TradeEvent
	bookRows      int64
	tradeRows     int64
}

// NewRecorder creates a Recorder. manager must be the same instance the
// live feed applies events to, so candle persistence sees the aggregated
// series.
func NewRecorder(
	cfg RecorderConfig,
	manager *market.Manager,
	books domain.BookEventStore,
	trades domain.TradeEventStore,
	candles domain.CandleStore,
	runs domain.RunStore,
	locks domain.LockManager,
	logger *slog.Logger,
) *Recorder {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	return &Recorder{
		cfg:       cfg,
		manager:   manager,
		books:     books,
		trades:    trades,
		candles:   candles,
		runs:      runs,
		locks:     locks,
		logger:    logger.With(slog.String("component", "recorder")),
		tradeTail: make(map[string][]domain.TradeEvent),
	}
}

// OnBookRows buffers recorded book rows until the next flush. It is the
// feed's BookRowsHandler.
func (r *Recorder) OnBookRows(events []domain.BookEvent) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	r.pendingBooks = append(r.pendingBooks, events...)
	r.mu.Unlock()
}

// OnTradeRows buffers recorded trade rows until the next flush and
// extends the in-memory tail. It is the feed's TradeRowsHandler.
func (r *Recorder) OnTradeRows(trades []domain.TradeEvent) {
	if len(trades) == 0 {
		return
	}
	r.mu.Lock()
	r.pendingTrades = append(r.pendingTrades, trades...)
	for _, tr := range trades {
		tail := append(r.tradeTail[tr.Ticker], tr)
		if len(tail) > tradeTailCap {
			tail = tail[len(tail)-tradeTailCap:]
		}
		r.tradeTail[tr.Ticker] = tail
	}
	r.mu.Unlock()
}

// RecentTrades returns up to limit trades for ticker from the in-memory
// tail, oldest first. limit <= 0 returns the whole tail.
func (r *Recorder) RecentTrades(ticker string, limit int) []domain.TradeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	tail := r.tradeTail[ticker]
	if limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	out := make([]domain.TradeEvent, len(tail))
	copy(out, tail)
	return out
}

// Stats returns the row counts persisted so far in this session.
func (r *Recorder) Stats() (bookRows, tradeRows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookRows, r.tradeRows
}

// Run records until ctx is cancelled. It acquires the session lock,
// opens the CSV logs, creates the run row, then alternates between flush
// and candle-snapshot ticks. Shutdown drains the buffers, persists a
// final candle pass and closes the run row.
func (r *Recorder) Run(ctx context.Context) error {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, r.lockKey(), recordLockTTL)
		if err != nil {
			return fmt.Errorf("recorder: acquire lock: %w", err)
		}
		defer unlock()
	}

	bw, bookFile, err := openBookLog(r.cfg.BookCSV)
	if err != nil {
		return fmt.Errorf("recorder: open book log: %w", err)
	}
	if bookFile != nil {
		defer bookFile.Close()
	}

	tw, tradeFile, err := openTradeLog(r.cfg.TradeCSV)
	if err != nil {
		return fmt.Errorf("recorder: open trade log: %w", err)
	}
	if tradeFile != nil {
		defer tradeFile.Close()
	}

	runID := uuid.New().String()
	startedAt := time.Now().UTC()
	if r.runs != nil {
		run := domain.Run{
			ID:        runID,
			Mode:      r.cfg.Mode,
			Tickers:   r.cfg.Tickers,
			StartedAt: startedAt,
		}
		if err := r.runs.Create(ctx, run); err != nil {
			return fmt.Errorf("recorder: create run: %w", err)
		}
	}

	r.logger.Info("recorder started",
		slog.String("run_id", runID),
		slog.Int("tickers", len(r.cfg.Tickers)),
		slog.String("book_csv", r.cfg.BookCSV),
		slog.String("trade_csv", r.cfg.TradeCSV),
		slog.Duration("flush_interval", r.cfg.FlushInterval),
		slog.Duration("snapshot_interval", r.cfg.SnapshotInterval),
	)

	flushTicker := time.NewTicker(r.cfg.FlushInterval)
	defer flushTicker.Stop()
	snapTicker := time.NewTicker(r.cfg.SnapshotInterval)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown(runID, bw, tw)
			return nil
		case <-flushTicker.C:
			r.flush(ctx, bw, tw)
		case <-snapTicker.C:
			r.persistCandles(ctx)
		}
	}
}

func (r *Recorder) lockKey() string {
	if len(r.cfg.Tickers) == 0 {
		return "recorder:all"
	}
	return "recorder:" + strings.Join(r.cfg.Tickers, ",")
}

// flush drains the pending buffers, appends them to the CSV logs and
// batch-inserts them into the event stores. Store failures are logged
// and the batch dropped; the rows are already on disk at that point.
func (r *Recorder) flush(ctx context.Context, bw *eventlog.BookWriter, tw *eventlog.TradeWriter) {
	r.mu.Lock()
	books := r.pendingBooks
	trades := r.pendingTrades
	r.pendingBooks = nil
	r.pendingTrades = nil
	r.mu.Unlock()

	if len(books) == 0 && len(trades) == 0 {
		return
	}

	if bw != nil {
		for _, ev := range books {
			if err := bw.Write(ev); err != nil {
				r.logger.Error("book log write failed", slog.String("error", err.Error()))
				break
			}
		}
		if err := bw.Flush(); err != nil {
			r.logger.Error("book log flush failed", slog.String("error", err.Error()))
		}
	}
	if tw != nil {
		for _, tr := range trades {
			if err := tw.Write(tr); err != nil {
				r.logger.Error("trade log write failed", slog.String("error", err.Error()))
				break
			}
		}
		if err := tw.Flush(); err != nil {
			r.logger.Error("trade log flush failed", slog.String("error", err.Error()))
		}
	}

	if r.books != nil && len(books) > 0 {
		if err := r.books.InsertBatch(ctx, books); err != nil {
			r.logger.Error("book event insert failed",
				slog.Int("count", len(books)),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.trades != nil && len(trades) > 0 {
		if err := r.trades.InsertBatch(ctx, trades); err != nil {
			r.logger.Error("trade event insert failed",
				slog.Int("count", len(trades)),
				slog.String("error", err.Error()),
			)
		}
	}

	r.mu.Lock()
	r.bookRows += int64(len(books))
	r.tradeRows += int64(len(trades))
	r.mu.Unlock()

	r.logger.Debug("flushed",
		slog.Int("book_rows", len(books)),
		slog.Int("trade_rows", len(trades)),
	)
}

// persistCandles upserts the tail of every aggregated series: the open
// bucket plus the previous one, so a bucket that closed since the last
// tick is written in its final form.
func (r *Recorder) persistCandles(ctx context.Context) {
	if r.candles == nil {
		return
	}
	for _, ticker := range r.manager.Tickers() {
		st, ok := r.manager.Get(ticker)
		if !ok {
			continue
		}
		for _, tf := range r.manager.Timeframes() {
			series := st.Series(tf)
			if len(series) == 0 {
				continue
			}
			tail := series
			if len(tail) > 2 {
				tail = tail[len(tail)-2:]
			}
			if err := r.candles.UpsertBatch(ctx, ticker, tf, tail); err != nil {
				r.logger.Error("candle upsert failed",
					slog.String("ticker", ticker),
					slog.Int64("timeframe", tf),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// shutdown performs the final flush and candle pass and closes the run
// row. The parent context is already cancelled, so persistence runs on a
// short background context.
func (r *Recorder) shutdown(runID string, bw *eventlog.BookWriter, tw *eventlog.TradeWriter) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.flush(ctx, bw, tw)
	r.persistCandles(ctx)

	bookRows, tradeRows := r.Stats()
	if r.runs != nil {
		if err := r.runs.Finish(ctx, runID, time.Now().UTC(), bookRows, tradeRows); err != nil {
			r.logger.Error("finish run failed",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Info("recorder stopped",
		slog.String("run_id", runID),
		slog.Int64("book_rows", bookRows),
		slog.Int64("trade_rows", tradeRows),
	)
}

// openBookLog opens path for appending and returns a writer over it.
// When the file already has content the header is suppressed. An empty
// path disables the CSV sink.
func openBookLog(path string) (*eventlog.BookWriter, *os.File, error) {
	f, existing, err := openAppend(path)
	if err != nil || f == nil {
		return nil, nil, err
	}
	bw := eventlog.NewBookWriter(f)
	if existing {
		bw.SkipHeader()
	}
	return bw, f, nil
}

// openTradeLog is the trade-side counterpart of openBookLog.
func openTradeLog(path string) (*eventlog.TradeWriter, *os.File, error) {
	f, existing, err := openAppend(path)
	if err != nil || f == nil {
		return nil, nil, err
	}
	tw := eventlog.NewTradeWriter(f)
	if existing {
		tw.SkipHeader()
	}
	return tw, f, nil
}

func openAppend(path string) (*os.File, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}
	return f, info.Size() > 0, nil
}
