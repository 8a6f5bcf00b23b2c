package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cacheredis "github.com/avelichka/ladderd/internal/cache/redis"
	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/eventlog"
	"github.com/avelichka/ladderd/internal/feed"
	"github.com/avelichka/ladderd/internal/market"
	"github.com/avelichka/ladderd/internal/pipeline"
	"github.com/avelichka/ladderd/internal/platform/dydx"
	"github.com/avelichka/ladderd/internal/replay"
	"github.com/avelichka/ladderd/internal/server"
	"github.com/avelichka/ladderd/internal/server/handler"
	"github.com/avelichka/ladderd/internal/server/ws"
	"github.com/avelichka/ladderd/internal/service"
)

// statusInterval is how often the engine status is published on the
// signal bus for websocket clients.
const statusInterval = 10 * time.Second

// ingest bundles the live ingestion chain the live, record, and full
// modes share: the per-ticker state manager, the indexer client, the
// resolved ticker set, and the websocket feed. The feed is built but
// not started, so callers can register row handlers first.
type ingest struct {
	manager *market.Manager
	indexer *dydx.IndexerClient
	tickers []string
	feed    *feed.LiveFeed
}

// LiveMode ingests the websocket feed into in-memory state and serves
// it over HTTP and websocket. Nothing is persisted.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	ing, err := a.buildIngest(ctx, deps)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}

	g.Go(func() error {
		defer ing.feed.Close()
		return ing.feed.Run(ctx)
	})

	a.startStatusPublisher(ctx, g, deps.SignalBus, ing.manager, ing.feed, startedAt)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, startedAt, ing.manager, ing.feed, nil, nil, nil)
	}

	return g.Wait()
}

// RecordMode runs the live ingestion chain with the recorder tapped in:
// every captured event lands in the CSV logs and Postgres, candles are
// checkpointed, and the market metadata refresher keeps the instrument
// catalog current.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode")

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	ing, err := a.buildIngest(ctx, deps)
	if err != nil {
		return fmt.Errorf("record mode: %w", err)
	}

	rec := a.buildRecorder(deps, ing)
	ing.feed.OnBookRows(rec.OnBookRows)
	ing.feed.OnTradeRows(rec.OnTradeRows)

	g.Go(func() error {
		defer ing.feed.Close()
		return ing.feed.Run(ctx)
	})

	refresher := pipeline.NewMarketRefresher(ing.indexer, deps.MarketStore, deps.MarketCache, a.logger)
	orch := pipeline.NewOrchestrator(rec, refresher, nil,
		a.cfg.Instruments.RefreshInterval.Duration, "", a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startStatusPublisher(ctx, g, deps.SignalBus, ing.manager, ing.feed, startedAt)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, startedAt, ing.manager, ing.feed, rec, nil, nil)
	}

	return g.Wait()
}

// FullMode runs everything record mode runs plus the retention cron
// that ages persisted rows into cold storage.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	ing, err := a.buildIngest(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	rec := a.buildRecorder(deps, ing)
	ing.feed.OnBookRows(rec.OnBookRows)
	ing.feed.OnTradeRows(rec.OnTradeRows)

	g.Go(func() error {
		defer ing.feed.Close()
		return ing.feed.Run(ctx)
	})

	var (
		retention     *pipeline.Retention
		retentionCron string
		retentionCh   chan<- struct{}
	)
	if a.cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "archive.enabled is true but blob storage is not wired; retention disabled")
		} else {
			retention = pipeline.NewRetention(deps.Archiver, deps.BookEvents, deps.TradeEvents,
				deps.Candles, a.cfg.Archive.RetentionDays, a.logger)
			retentionCron = a.cfg.Archive.Cron
			retentionCh = retention.TriggerCh()
		}
	}

	refresher := pipeline.NewMarketRefresher(ing.indexer, deps.MarketStore, deps.MarketCache, a.logger)
	orch := pipeline.NewOrchestrator(rec, refresher, retention,
		a.cfg.Instruments.RefreshInterval.Duration, retentionCron, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	a.startStatusPublisher(ctx, g, deps.SignalBus, ing.manager, ing.feed, startedAt)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, startedAt, ing.manager, ing.feed, rec, nil, retentionCh)
	}

	return g.Wait()
}

// ReplayMode loads a recorded event log and serves snapshot
// reconstruction over HTTP. There is no live feed and nothing is
// written.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("replay mode: server.enabled must be true, there is nothing else to serve")
	}

	log, err := a.loadReplayLog(ctx, deps)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	tfs, err := a.cfg.Candles.TimeframeSeconds()
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}
	defaultTF, err := a.cfg.Candles.DefaultTimeframeSeconds()
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	svc, err := replay.NewService(log, tfs, defaultTF)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	minTS, maxTS := svc.Bounds()
	a.logger.InfoContext(ctx, "replay log loaded",
		slog.Int("tickers", len(svc.Tickers())),
		slog.Int64("min_ts", minTS),
		slog.Int64("max_ts", maxTS),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, time.Now().UTC(), nil, nil, nil, svc, nil)
	return g.Wait()
}

// ArchiveMode executes one retention pass and exits. It is meant for
// cron-driven deployments where the long-lived process does not run the
// retention schedule itself.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: blob storage is not wired")
	}

	retention := pipeline.NewRetention(deps.Archiver, deps.BookEvents, deps.TradeEvents,
		deps.Candles, a.cfg.Archive.RetentionDays, a.logger)
	return retention.Run(ctx)
}

// buildIngest builds the market manager and the live feed for the
// configured tickers. The caller starts the feed once its row handlers
// are registered.
func (a *App) buildIngest(ctx context.Context, deps *Dependencies) (*ingest, error) {
	manager, err := a.buildManager()
	if err != nil {
		return nil, err
	}

	indexer := dydx.NewIndexerClient(a.cfg.Feed.IndexerHost)
	tickers, err := a.resolveTickers(ctx, indexer)
	if err != nil {
		return nil, err
	}

	lf := feed.NewLiveFeed(feed.Config{
		WSURL:     a.cfg.Feed.WSHost,
		Tickers:   tickers,
		ChunkSize: a.cfg.Feed.ChunkSize,
	}, manager, deps.SignalBus, deps.BookCache, deps.PriceCache, a.logger)

	return &ingest{
		manager: manager,
		indexer: indexer,
		tickers: tickers,
		feed:    lf,
	}, nil
}

// buildManager creates the per-ticker state manager from the configured
// timeframes.
func (a *App) buildManager() (*market.Manager, error) {
	tfs, err := a.cfg.Candles.TimeframeSeconds()
	if err != nil {
		return nil, fmt.Errorf("parsing timeframes: %w", err)
	}
	defaultTF, err := a.cfg.Candles.DefaultTimeframeSeconds()
	if err != nil {
		return nil, fmt.Errorf("parsing default timeframe: %w", err)
	}
	return market.NewManager(tfs, defaultTF)
}

func (a *App) buildRecorder(deps *Dependencies, ing *ingest) *pipeline.Recorder {
	return pipeline.NewRecorder(pipeline.RecorderConfig{
		Mode:             a.cfg.Mode,
		Tickers:          ing.tickers,
		BookCSV:          a.cfg.Recorder.BookCSV,
		TradeCSV:         a.cfg.Recorder.TradeCSV,
		FlushInterval:    a.cfg.Recorder.FlushInterval.Duration,
		SnapshotInterval: a.cfg.Recorder.SnapshotInterval.Duration,
	}, ing.manager, deps.BookEvents, deps.TradeEvents, deps.Candles, deps.Runs, deps.LockManager, a.logger)
}

// resolveTickers returns the configured tickers, or every active
// perpetual market from the indexer when none are configured.
func (a *App) resolveTickers(ctx context.Context, indexer *dydx.IndexerClient) ([]string, error) {
	if len(a.cfg.Instruments.Tickers) > 0 {
		return a.cfg.Instruments.Tickers, nil
	}

	tickers, err := indexer.ListActiveTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering markets: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("indexer returned no active markets")
	}

	a.logger.InfoContext(ctx, "discovered active markets", slog.Int("count", len(tickers)))
	return tickers, nil
}

// startStatusPublisher periodically publishes the engine status on the
// signal bus so websocket clients see liveness and ingestion counters
// without polling REST. A nil bus disables it.
func (a *App) startStatusPublisher(
	ctx context.Context,
	g *errgroup.Group,
	bus domain.SignalBus,
	manager *market.Manager,
	lf *feed.LiveFeed,
	startedAt time.Time,
) {
	if bus == nil {
		return
	}

	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.publishStatus(ctx, bus, manager, lf, startedAt)
			}
		}
	})
}

func (a *App) publishStatus(ctx context.Context, bus domain.SignalBus, manager *market.Manager, lf *feed.LiveFeed, startedAt time.Time) {
	uptime := int64(time.Since(startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	status := domain.EngineStatus{
		Mode:          a.cfg.Mode,
		UptimeSeconds: uptime,
	}
	if lf != nil {
		status.WSConnected = lf.Connected()
	}
	if manager != nil {
		status.BookEvents, status.TradeEvents, status.LastEventTS = manager.Stats()
		status.Tickers = manager.Tickers()
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, cacheredis.StatusChannel, payload); err != nil {
		a.logger.WarnContext(ctx, "status publish failed", slog.String("error", err.Error()))
	}
}

// startHTTPServer adds the API server goroutines to the given errgroup.
// Handlers are registered for whatever the mode actually runs: manager,
// lf, rec, and replaySvc may each be nil, and retentionTrigger is only
// set when a retention job is listening.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	startedAt time.Time,
	manager *market.Manager,
	lf *feed.LiveFeed,
	rec *pipeline.Recorder,
	replaySvc *replay.Service,
	retentionTrigger chan<- struct{},
) {
	var handlers server.Handlers

	handlers.Health = handler.NewHealthHandler(a.logger)

	// The concrete values are only assigned through non-nil pointers so
	// the interfaces stay nil when the component is absent.
	var engine handler.EngineStats
	if manager != nil {
		engine = manager
	}
	var feedStatus handler.FeedStatus
	if lf != nil {
		feedStatus = lf
	}
	handlers.Status = handler.NewStatusHandler(a.cfg.Mode, startedAt, engine, feedStatus)

	if deps.MarketStore != nil {
		marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketCache, a.logger)
		handlers.Markets = handler.NewMarketHandler(marketSvc, a.logger)
	}

	if manager != nil {
		handlers.Books = handler.NewBookHandler(manager, a.logger)
		handlers.Candles = handler.NewCandleHandler(manager, deps.Candles, a.logger)

		var tail handler.TradeTail
		if rec != nil {
			tail = rec
		}
		handlers.Trades = handler.NewTradeHandler(manager, tail, deps.SignalBus, a.logger)
	}

	if deps.PriceCache != nil && deps.BookCache != nil {
		priceSvc := service.NewPriceService(deps.PriceCache, deps.BookCache, a.logger)
		handlers.Prices = handler.NewPriceHandler(priceSvc, a.logger)
	}

	// Always registered: with no loaded log the endpoints answer 404
	// with a reason instead of falling through to the mux.
	var replayAPI handler.ReplayService
	if replaySvc != nil {
		replayAPI = replaySvc
	}
	handlers.Replay = handler.NewReplayHandler(replayAPI, a.logger)

	if retentionTrigger != nil {
		handlers.Retention = handler.NewRetentionHandler(a.logger).WithTriggerChannel(retentionTrigger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: startedAt,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// loadReplayLog assembles the event log from the configured replay
// source. CSV paths fall back to the recorder's output files, so a
// record session can be replayed without extra configuration.
func (a *App) loadReplayLog(ctx context.Context, deps *Dependencies) (*eventlog.Log, error) {
	mode := eventlog.Lenient
	if a.cfg.Recorder.StrictParse {
		mode = eventlog.Strict
	}

	switch strings.ToLower(a.cfg.Replay.Source) {
	case "", "csv":
		bookPath := a.cfg.Replay.BookCSV
		if bookPath == "" {
			bookPath = a.cfg.Recorder.BookCSV
		}
		tradePath := a.cfg.Replay.TradeCSV
		if tradePath == "" {
			tradePath = a.cfg.Recorder.TradeCSV
		}

		log, dropped, err := eventlog.LoadFiles(bookPath, tradePath, mode)
		if err != nil {
			return nil, fmt.Errorf("loading csv log: %w", err)
		}
		if dropped > 0 {
			a.logger.WarnContext(ctx, "replay log rows dropped", slog.Int("dropped", dropped))
		}
		return log, nil

	case "postgres":
		if deps.BookEvents == nil || deps.TradeEvents == nil {
			return nil, fmt.Errorf("replay source %q requires postgres", a.cfg.Replay.Source)
		}

		// ListBefore with a future cutoff covers the whole table, oldest
		// first, capped at max_rows.
		horizon := time.Now().UTC().Add(24 * time.Hour)
		books, err := deps.BookEvents.ListBefore(ctx, horizon, a.cfg.Replay.MaxRows)
		if err != nil {
			return nil, fmt.Errorf("loading book events: %w", err)
		}
		trades, err := deps.TradeEvents.ListBefore(ctx, horizon, a.cfg.Replay.MaxRows)
		if err != nil {
			return nil, fmt.Errorf("loading trade events: %w", err)
		}
		return eventlog.NewLog(books, trades), nil

	case "s3":
		if deps.BlobReader == nil {
			return nil, fmt.Errorf("replay source %q requires blob storage", a.cfg.Replay.Source)
		}

		var (
			books   []domain.BookEvent
			trades  []domain.TradeEvent
			dropped int
		)
		if key := a.cfg.Replay.S3BookKey; key != "" {
			rc, err := deps.BlobReader.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("fetching %s: %w", key, err)
			}
			events, n, err := eventlog.ReadBookEvents(rc, mode)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
			books = events
			dropped += n
		}
		if key := a.cfg.Replay.S3TradeKey; key != "" {
			rc, err := deps.BlobReader.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("fetching %s: %w", key, err)
			}
			prints, n, err := eventlog.ReadTradeEvents(rc, mode)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
			trades = prints
			dropped += n
		}
		if dropped > 0 {
			a.logger.WarnContext(ctx, "replay log rows dropped", slog.Int("dropped", dropped))
		}
		return eventlog.NewLog(books, trades), nil

	default:
		return nil, fmt.Errorf("unsupported replay source %q", a.cfg.Replay.Source)
	}
}
