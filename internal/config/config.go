// Package config defines the top-level configuration for the ladderd
// market-data engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/avelichka/ladderd/internal/candle"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LADDERD_* environment variables.
type Config struct {
	Instruments InstrumentsConfig `toml:"instruments"`
	Candles     CandlesConfig     `toml:"candles"`
	Feed        FeedConfig        `toml:"feed"`
	Recorder    RecorderConfig    `toml:"recorder"`
	Replay      ReplayConfig      `toml:"replay"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Archive     ArchiveConfig     `toml:"archive"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// InstrumentsConfig selects which perpetual markets the engine tracks.
type InstrumentsConfig struct {
	// Tickers is the explicit instrument list, e.g. ["BTC-USD", "ETH-USD"].
	// When empty, every active market reported by the indexer is tracked.
	Tickers []string `toml:"tickers"`

	// RefreshInterval is how often the market catalog is re-fetched from
	// the indexer REST API.
	RefreshInterval duration `toml:"refresh_interval"`
}

// CandlesConfig holds the candle aggregation windows. Timeframes are
// labels like "30s", "1m", "4h", or plain second counts like "60".
type CandlesConfig struct {
	Timeframes       []string `toml:"timeframes"`
	DefaultTimeframe string   `toml:"default_timeframe"`
}

// TimeframeSeconds parses the configured timeframe labels into second
// counts, preserving order.
func (c CandlesConfig) TimeframeSeconds() ([]int64, error) {
	out := make([]int64, 0, len(c.Timeframes))
	for _, label := range c.Timeframes {
		tf, err := candle.ParseTimeframe(label)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

// DefaultTimeframeSeconds parses the default timeframe label.
func (c CandlesConfig) DefaultTimeframeSeconds() (int64, error) {
	return candle.ParseTimeframe(c.DefaultTimeframe)
}

// FeedConfig holds the dYdX indexer endpoints for the live feed.
type FeedConfig struct {
	WSHost      string `toml:"ws_host"`
	IndexerHost string `toml:"indexer_host"`

	// ChunkSize caps how many tickers share one websocket connection.
	ChunkSize int `toml:"chunk_size"`
}

// RecorderConfig holds the event recording parameters.
type RecorderConfig struct {
	// BookCSV and TradeCSV are the append-only event log files. Either
	// may be empty to disable that sink.
	BookCSV  string `toml:"book_csv"`
	TradeCSV string `toml:"trade_csv"`

	FlushInterval    duration `toml:"flush_interval"`
	SnapshotInterval duration `toml:"snapshot_interval"`

	// StrictParse selects the CSV decode mode used when recorded files
	// are read back: strict fails on the first malformed row, otherwise
	// malformed rows are dropped and counted.
	StrictParse bool `toml:"strict_parse"`
}

// ReplayConfig selects where replay mode loads its event log from.
type ReplayConfig struct {
	// Source is one of "csv", "postgres", "s3".
	Source string `toml:"source"`

	// BookCSV and TradeCSV override the recorder file paths for the csv
	// source. When empty, the recorder paths are used.
	BookCSV  string `toml:"book_csv"`
	TradeCSV string `toml:"trade_csv"`

	// S3BookKey and S3TradeKey are object keys in the configured bucket
	// for the s3 source.
	S3BookKey  string `toml:"s3_book_key"`
	S3TradeKey string `toml:"s3_trade_key"`

	// MaxRows caps how many rows per stream are loaded from the
	// postgres source.
	MaxRows int `toml:"max_rows"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP/WebSocket server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit caps requests per client IP per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// ArchiveConfig holds the retention and archival parameters.
type ArchiveConfig struct {
	// Enabled gates the scheduled retention job in full mode. Archive
	// mode runs one pass regardless.
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Instruments: InstrumentsConfig{
			Tickers:         []string{"BTC-USD", "ETH-USD", "SOL-USD"},
			RefreshInterval: duration{10 * time.Minute},
		},
		Candles: CandlesConfig{
			Timeframes:       []string{"1m", "5m", "15m", "1h", "4h", "1d"},
			DefaultTimeframe: "1m",
		},
		Feed: FeedConfig{
			WSHost:      "wss://indexer.dydx.trade/v4/ws",
			IndexerHost: "https://indexer.dydx.trade",
			ChunkSize:   20,
		},
		Recorder: RecorderConfig{
			BookCSV:          "data/book_events.csv",
			TradeCSV:         "data/trades.csv",
			FlushInterval:    duration{2 * time.Second},
			SnapshotInterval: duration{30 * time.Second},
			StrictParse:      false,
		},
		Replay: ReplayConfig{
			Source:  "csv",
			MaxRows: 1_000_000,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ladderd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 * * *",
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"record":  true,
	"replay":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validReplaySources enumerates the accepted values for ReplayConfig.Source.
var validReplaySources = map[string]bool{
	"csv":      true,
	"postgres": true,
	"s3":       true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, record, replay, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Instruments
	if c.Instruments.RefreshInterval.Duration <= 0 {
		errs = append(errs, "instruments: refresh_interval must be positive")
	}

	// Candles
	if len(c.Candles.Timeframes) == 0 {
		errs = append(errs, "candles: at least one timeframe is required")
	}
	tfs, err := c.Candles.TimeframeSeconds()
	if err != nil {
		errs = append(errs, fmt.Sprintf("candles: %v", err))
	}
	if def, err := c.Candles.DefaultTimeframeSeconds(); err != nil {
		errs = append(errs, fmt.Sprintf("candles: default_timeframe: %v", err))
	} else if len(tfs) > 0 {
		found := false
		for _, tf := range tfs {
			if tf == def {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("candles: default_timeframe %q is not in timeframes", c.Candles.DefaultTimeframe))
		}
	}

	// Feed, needed whenever the live websocket runs.
	needsFeed := mode == "live" || mode == "record" || mode == "full"
	if needsFeed {
		if c.Feed.WSHost == "" {
			errs = append(errs, "feed: ws_host must not be empty for mode "+c.Mode)
		}
		if c.Feed.IndexerHost == "" {
			errs = append(errs, "feed: indexer_host must not be empty for mode "+c.Mode)
		}
	}
	if c.Feed.ChunkSize < 1 {
		errs = append(errs, "feed: chunk_size must be >= 1")
	}

	// Recorder
	if mode == "record" || mode == "full" {
		if c.Recorder.FlushInterval.Duration <= 0 {
			errs = append(errs, "recorder: flush_interval must be positive")
		}
		if c.Recorder.SnapshotInterval.Duration <= 0 {
			errs = append(errs, "recorder: snapshot_interval must be positive")
		}
	}

	// Replay
	if mode == "replay" {
		source := strings.ToLower(c.Replay.Source)
		if !validReplaySources[source] {
			errs = append(errs, fmt.Sprintf("replay: unknown source %q (valid: csv, postgres, s3)", c.Replay.Source))
		}
		switch source {
		case "csv":
			if c.Replay.BookCSV == "" && c.Replay.TradeCSV == "" &&
				c.Recorder.BookCSV == "" && c.Recorder.TradeCSV == "" {
				errs = append(errs, "replay: csv source needs book_csv or trade_csv (or recorder paths)")
			}
		case "s3":
			if c.Replay.S3BookKey == "" && c.Replay.S3TradeKey == "" {
				errs = append(errs, "replay: s3 source needs s3_book_key or s3_trade_key")
			}
		case "postgres":
			if c.Replay.MaxRows < 1 {
				errs = append(errs, "replay: max_rows must be >= 1 for the postgres source")
			}
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	// Archive
	if mode == "archive" || c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}
	if c.Archive.Enabled && c.Archive.Cron == "" {
		errs = append(errs, "archive: cron must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
