package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/avelichka/ladderd/internal/blob/s3"
	"github.com/avelichka/ladderd/internal/cache/redis"
	"github.com/avelichka/ladderd/internal/config"
	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Fields stay nil when the mode does not need them.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	BookEvents  domain.BookEventStore
	TradeEvents domain.TradeEventStore
	Candles     domain.CandleStore
	Runs        domain.RunStore

	// Caches
	PriceCache  domain.PriceCache
	BookCache   domain.BookCache
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver
}

// needsPostgres returns true when the selected mode requires a database
// connection.
func needsPostgres(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "record", "archive", "full":
		return true
	case "replay":
		return strings.ToLower(cfg.Replay.Source) == "postgres"
	default:
		return false
	}
}

// needsRedis returns true when the selected mode publishes to or reads
// from the cache and signal bus.
func needsRedis(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "live", "record", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true when the selected mode requires object storage.
func needsS3(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	case "replay":
		return strings.ToLower(cfg.Replay.Source) == "s3"
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.BookEvents = postgres.NewBookEventStore(pool)
		deps.TradeEvents = postgres.NewTradeEventStore(pool)
		deps.Candles = postgres.NewCandleStore(pool)
		deps.Runs = postgres.NewRunStore(pool)
	}

	// --- Redis (only for modes that publish or serve cached state) ---
	if needsRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.BookCache = redis.NewBookCache(redisClient)
		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (only for modes that need object storage) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// Archiver: only when Postgres stores exist to drain from.
		if deps.BookEvents != nil && deps.TradeEvents != nil && deps.Candles != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.BookEvents,
				deps.TradeEvents,
				deps.Candles,
				logger,
			)
		}
	}

	return deps, cleanup, nil
}
