package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
)

func TestChunkTickers(t *testing.T) {
	t.Run("splits into even chunks", func(t *testing.T) {
		tickers := []string{"BTC-USD", "ETH-USD", "SOL-USD", "AVAX-USD", "DOGE-USD"}

		chunks := chunkTickers(tickers, 2)
		require.Len(t, chunks, 3)
		assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, chunks[0])
		assert.Equal(t, []string{"SOL-USD", "AVAX-USD"}, chunks[1])
		assert.Equal(t, []string{"DOGE-USD"}, chunks[2])
	})

	t.Run("single chunk when under the size", func(t *testing.T) {
		chunks := chunkTickers([]string{"BTC-USD"}, 10)
		require.Len(t, chunks, 1)
		assert.Equal(t, []string{"BTC-USD"}, chunks[0])
	})

	t.Run("clamps oversized and non-positive sizes", func(t *testing.T) {
		tickers := make([]string, 45)
		for i := range tickers {
			tickers[i] = "T"
		}

		assert.Len(t, chunkTickers(tickers, 0), 3)
		assert.Len(t, chunkTickers(tickers, 1000), 3)
	})

	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Empty(t, chunkTickers(nil, 5))
	})
}

func TestBookRows(t *testing.T) {
	bids := []domain.PriceLevel{{Price: 10.00, Size: 1}, {Price: 9.95, Size: 2}}
	asks := []domain.PriceLevel{{Price: 10.10, Size: 0}}

	rows := bookRows(700, "BTC-USD", domain.BookUpdate, bids, asks)
	require.Len(t, rows, 3)

	assert.Equal(t, domain.BookEvent{
		TS: 700, Ticker: "BTC-USD", Kind: domain.BookUpdate,
		Side: domain.SideBid, Price: 10.00, Size: 1,
	}, rows[0])
	assert.Equal(t, domain.SideBid, rows[1].Side)

	// Zero-size rows survive, they record level removals.
	assert.Equal(t, domain.SideAsk, rows[2].Side)
	assert.Zero(t, rows[2].Size)

	assert.Empty(t, bookRows(700, "BTC-USD", domain.BookInitial, nil, nil))
}
