package dydx

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
)

func TestFlexFloat(t *testing.T) {
	t.Run("accepts a JSON number", func(t *testing.T) {
		var f flexFloat
		require.NoError(t, json.Unmarshal([]byte(`64123.5`), &f))
		assert.InDelta(t, 64123.5, float64(f), 1e-9)
	})

	t.Run("accepts a quoted decimal", func(t *testing.T) {
		var f flexFloat
		require.NoError(t, json.Unmarshal([]byte(`"0.0455"`), &f))
		assert.InDelta(t, 0.0455, float64(f), 1e-9)
	})

	t.Run("empty string is zero", func(t *testing.T) {
		var f flexFloat
		require.NoError(t, json.Unmarshal([]byte(`""`), &f))
		assert.Zero(t, float64(f))
	})

	t.Run("rejects a non-numeric string", func(t *testing.T) {
		var f flexFloat
		assert.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
	})
}

func TestWSPriceLevel(t *testing.T) {
	t.Run("decodes the snapshot array form", func(t *testing.T) {
		var lv WSPriceLevel
		require.NoError(t, json.Unmarshal([]byte(`["64123.5","1.2"]`), &lv))
		assert.InDelta(t, 64123.5, float64(lv.Price), 1e-9)
		assert.InDelta(t, 1.2, float64(lv.Size), 1e-9)
	})

	t.Run("decodes the delta object form", func(t *testing.T) {
		var lv WSPriceLevel
		require.NoError(t, json.Unmarshal([]byte(`{"price":"64123.5","size":"0"}`), &lv))
		assert.InDelta(t, 64123.5, float64(lv.Price), 1e-9)
		assert.Zero(t, float64(lv.Size))
	})

	t.Run("rejects a short array", func(t *testing.T) {
		var lv WSPriceLevel
		assert.Error(t, json.Unmarshal([]byte(`["64123.5"]`), &lv))
	})
}

func TestOrderbookContents(t *testing.T) {
	t.Run("snapshot with both sides", func(t *testing.T) {
		raw := `{"bids":[["100.0","1"],["99.5","2"]],"asks":[["100.5","3"]]}`

		var contents OrderbookContents
		require.NoError(t, json.Unmarshal([]byte(raw), &contents))

		bids := LevelsToDomain(contents.Bids)
		asks := LevelsToDomain(contents.Asks)
		require.Len(t, bids, 2)
		require.Len(t, asks, 1)
		assert.Equal(t, domain.PriceLevel{Price: 100.0, Size: 1}, bids[0])
		assert.Equal(t, domain.PriceLevel{Price: 100.5, Size: 3}, asks[0])
	})

	t.Run("delta with one side missing", func(t *testing.T) {
		raw := `{"bids":[{"price":"100.0","size":"0"}]}`

		var contents OrderbookContents
		require.NoError(t, json.Unmarshal([]byte(raw), &contents))

		assert.Len(t, contents.Bids, 1)
		assert.Nil(t, LevelsToDomain(contents.Asks))
	})
}

func TestWSMessageEnvelope(t *testing.T) {
	raw := `{
		"type": "channel_data",
		"channel": "v4_orderbook",
		"id": "BTC-USD",
		"contents": {"bids": [{"price": "64000", "size": "0.5"}]}
	}`

	var msg WSMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "channel_data", msg.Type)
	assert.Equal(t, ChannelOrderbook, msg.Channel)
	assert.Equal(t, "BTC-USD", msg.ID)

	var contents OrderbookContents
	require.NoError(t, json.Unmarshal(msg.Contents, &contents))
	require.Len(t, contents.Bids, 1)
	assert.InDelta(t, 64000, float64(contents.Bids[0].Price), 1e-9)
}

func TestToDomainTrade(t *testing.T) {
	fallback := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("uses createdAt when present", func(t *testing.T) {
		tr := WSTrade{
			ID:        "abc",
			Side:      "BUY",
			Size:      1.5,
			Price:     64000,
			CreatedAt: "2024-06-01T11:59:30Z",
		}

		ev := tr.ToDomainTrade("BTC-USD", fallback)
		assert.Equal(t, int64(1717243170), ev.TS)
		assert.Equal(t, "BTC-USD", ev.Ticker)
		assert.Equal(t, "ws", ev.Source)
		assert.Equal(t, "BUY", ev.Side)
		assert.InDelta(t, 1.5, ev.Size, 1e-9)
	})

	t.Run("falls back when createdAt is missing", func(t *testing.T) {
		tr := WSTrade{Side: "SELL", Size: 2}

		ev := tr.ToDomainTrade("ETH-USD", fallback)
		assert.Equal(t, fallback.Unix(), ev.TS)
	})

	t.Run("falls back when createdAt is malformed", func(t *testing.T) {
		tr := WSTrade{Side: "SELL", Size: 2, CreatedAt: "yesterday"}

		ev := tr.ToDomainTrade("ETH-USD", fallback)
		assert.Equal(t, fallback.Unix(), ev.TS)
	})
}

func TestToDomainMarket(t *testing.T) {
	raw := `{
		"ticker": "BTC-USD",
		"status": "ACTIVE",
		"oraclePrice": "64123.5",
		"priceChange24H": "-321.25",
		"volume24H": "1234567.89",
		"trades24H": 45678,
		"nextFundingRate": "0.0000125",
		"openInterest": "812.44",
		"tickSize": "1",
		"stepSize": "0.0001",
		"marketType": "CROSS"
	}`

	var m APIPerpetualMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	market := m.ToDomainMarket()
	assert.Equal(t, "BTC-USD", market.Ticker)
	assert.Equal(t, domain.MarketStatusActive, market.Status)
	assert.InDelta(t, 64123.5, market.OraclePrice, 1e-9)
	assert.InDelta(t, -321.25, market.PriceChange24H, 1e-9)
	assert.Equal(t, int64(45678), market.Trades24H)
	assert.InDelta(t, 0.0000125, market.NextFundingRate, 1e-12)
	assert.InDelta(t, 0.0001, market.StepSize, 1e-9)
	assert.Equal(t, "CROSS", market.MarketType)
	assert.False(t, market.UpdatedAt.IsZero())
}
