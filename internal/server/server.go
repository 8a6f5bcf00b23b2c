package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/server/handler"
	"github.com/avelichka/ladderd/internal/server/middleware"
	"github.com/avelichka/ladderd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero
	// disables rate limiting even when a limiter is provided.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil
// entries are skipped, so each run mode exposes only what it runs.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Markets   *handler.MarketHandler
	Books     *handler.BookHandler
	Candles   *handler.CandleHandler
	Trades    *handler.TradeHandler
	Prices    *handler.PriceHandler
	Replay    *handler.ReplayHandler
	Retention *handler.RetentionHandler
}

// Server is the HTTP + WebSocket API for the market-data engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting)
// and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
		mux.HandleFunc("GET /api/markets/{ticker}", handlers.Markets.GetMarket)
	}

	if handlers.Books != nil {
		mux.HandleFunc("GET /api/tickers", handlers.Books.ListTickers)
		mux.HandleFunc("GET /api/book/{ticker}", handlers.Books.GetBook)
		mux.HandleFunc("GET /api/book/{ticker}/depth", handlers.Books.GetDepth)
		mux.HandleFunc("GET /api/snapshot/{ticker}", handlers.Books.GetSnapshot)
	}

	if handlers.Candles != nil {
		mux.HandleFunc("GET /api/candles/{ticker}", handlers.Candles.GetCandles)
		mux.HandleFunc("GET /api/candles/{ticker}/history", handlers.Candles.GetCandleHistory)
	}

	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades/{ticker}", handlers.Trades.ListTrades)
		mux.HandleFunc("GET /api/events/{ticker}", handlers.Trades.ListEvents)
	}

	if handlers.Prices != nil {
		mux.HandleFunc("GET /api/prices", handlers.Prices.GetMids)
		mux.HandleFunc("GET /api/prices/{ticker}", handlers.Prices.GetPrice)
	}

	if handlers.Replay != nil {
		mux.HandleFunc("GET /api/replay", handlers.Replay.GetInfo)
		mux.HandleFunc("GET /api/replay/{ticker}/snapshot", handlers.Replay.GetSnapshotAt)
		mux.HandleFunc("GET /api/replay/{ticker}/advance", handlers.Replay.GetAdvanceTo)
	}

	if handlers.Retention != nil {
		mux.HandleFunc("POST /api/retention/trigger", handlers.Retention.TriggerRetention)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
