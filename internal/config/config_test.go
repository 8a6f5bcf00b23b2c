package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "bogus"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestValidateDefaultTimeframeMembership(t *testing.T) {
	cfg := Defaults()
	cfg.Candles.Timeframes = []string{"1m", "5m"}
	cfg.Candles.DefaultTimeframe = "1h"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `default_timeframe "1h" is not in timeframes`)

	cfg.Candles.DefaultTimeframe = "5m"
	require.NoError(t, cfg.Validate())
}

func TestValidateReplaySource(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"

	cfg.Replay.Source = "tape"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "tape"`)

	// The csv source falls back to the recorder paths, so the defaults
	// are already valid.
	cfg.Replay.Source = "csv"
	require.NoError(t, cfg.Validate())

	cfg.Replay.Source = "s3"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 source needs s3_book_key or s3_trade_key")

	cfg.Replay.S3BookKey = "archive/book.csv"
	require.NoError(t, cfg.Validate())

	cfg.Replay.Source = "postgres"
	cfg.Replay.MaxRows = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_rows must be >= 1")
}

func TestValidateFeedOnlyForLiveModes(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.WSHost = ""
	cfg.Feed.IndexerHost = ""

	cfg.Mode = "live"
	require.Error(t, cfg.Validate())

	// Replay never dials the feed, so empty hosts are fine there.
	cfg.Mode = "replay"
	require.NoError(t, cfg.Validate())
}

func TestTimeframeSeconds(t *testing.T) {
	c := CandlesConfig{
		Timeframes:       []string{"30s", "1m", "1h"},
		DefaultTimeframe: "1m",
	}

	tfs, err := c.TimeframeSeconds()
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 60, 3600}, tfs)

	def, err := c.DefaultTimeframeSeconds()
	require.NoError(t, err)
	assert.Equal(t, int64(60), def)

	c.Timeframes = []string{"1m", "oops"}
	_, err = c.TimeframeSeconds()
	assert.Error(t, err)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "record"

[instruments]
tickers = ["BTC-USD"]
refresh_interval = "5m"

[recorder]
flush_interval = "1s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "record", cfg.Mode)
	assert.Equal(t, []string{"BTC-USD"}, cfg.Instruments.Tickers)
	assert.Equal(t, 5*time.Minute, cfg.Instruments.RefreshInterval.Duration)
	assert.Equal(t, time.Second, cfg.Recorder.FlushInterval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "1m", cfg.Candles.DefaultTimeframe)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LADDERD_MODE", "full")
	t.Setenv("LADDERD_SERVER_PORT", "9100")
	t.Setenv("LADDERD_ARCHIVE_ENABLED", "true")
	t.Setenv("LADDERD_RECORDER_FLUSH_INTERVAL", "500ms")
	t.Setenv("LADDERD_INSTRUMENTS_TICKERS", "ETH-USD, SOL-USD ,")
	t.Setenv("LADDERD_POSTGRES_PASSWORD", "hunter2")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Recorder.FlushInterval.Duration)
	assert.Equal(t, []string{"ETH-USD", "SOL-USD"}, cfg.Instruments.Tickers)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestEnvOverridesIgnoreMalformed(t *testing.T) {
	t.Setenv("LADDERD_SERVER_PORT", "not-a-number")
	t.Setenv("LADDERD_ARCHIVE_ENABLED", "maybe")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.False(t, cfg.Archive.Enabled)
}

func TestDurationText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)

	// Originals are untouched.
	assert.Equal(t, "secret", cfg.Postgres.Password)

	// Empty secrets stay empty rather than turning into the placeholder.
	cfg2 := Defaults()
	red2 := RedactedConfig(&cfg2)
	assert.Empty(t, red2.Postgres.Password)

	// Slices are copies.
	red.Instruments.Tickers[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Instruments.Tickers[0])
}
