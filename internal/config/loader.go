package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LADDERD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LADDERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Instruments ──
	setStringSlice(&cfg.Instruments.Tickers, "LADDERD_INSTRUMENTS_TICKERS")
	setDuration(&cfg.Instruments.RefreshInterval, "LADDERD_INSTRUMENTS_REFRESH_INTERVAL")

	// ── Candles ──
	setStringSlice(&cfg.Candles.Timeframes, "LADDERD_CANDLES_TIMEFRAMES")
	setStr(&cfg.Candles.DefaultTimeframe, "LADDERD_CANDLES_DEFAULT_TIMEFRAME")

	// ── Feed ──
	setStr(&cfg.Feed.WSHost, "LADDERD_FEED_WS_HOST")
	setStr(&cfg.Feed.IndexerHost, "LADDERD_FEED_INDEXER_HOST")
	setInt(&cfg.Feed.ChunkSize, "LADDERD_FEED_CHUNK_SIZE")

	// ── Recorder ──
	setStr(&cfg.Recorder.BookCSV, "LADDERD_RECORDER_BOOK_CSV")
	setStr(&cfg.Recorder.TradeCSV, "LADDERD_RECORDER_TRADE_CSV")
	setDuration(&cfg.Recorder.FlushInterval, "LADDERD_RECORDER_FLUSH_INTERVAL")
	setDuration(&cfg.Recorder.SnapshotInterval, "LADDERD_RECORDER_SNAPSHOT_INTERVAL")
	setBool(&cfg.Recorder.StrictParse, "LADDERD_RECORDER_STRICT_PARSE")

	// ── Replay ──
	setStr(&cfg.Replay.Source, "LADDERD_REPLAY_SOURCE")
	setStr(&cfg.Replay.BookCSV, "LADDERD_REPLAY_BOOK_CSV")
	setStr(&cfg.Replay.TradeCSV, "LADDERD_REPLAY_TRADE_CSV")
	setStr(&cfg.Replay.S3BookKey, "LADDERD_REPLAY_S3_BOOK_KEY")
	setStr(&cfg.Replay.S3TradeKey, "LADDERD_REPLAY_S3_TRADE_KEY")
	setInt(&cfg.Replay.MaxRows, "LADDERD_REPLAY_MAX_ROWS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LADDERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "LADDERD_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LADDERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LADDERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LADDERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LADDERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LADDERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LADDERD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LADDERD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LADDERD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LADDERD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LADDERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LADDERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LADDERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LADDERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LADDERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LADDERD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LADDERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LADDERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LADDERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LADDERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LADDERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LADDERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LADDERD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LADDERD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LADDERD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LADDERD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LADDERD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LADDERD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LADDERD_SERVER_RATE_WINDOW")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LADDERD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "LADDERD_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "LADDERD_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "LADDERD_MODE")
	setStr(&cfg.LogLevel, "LADDERD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
