package candle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
)

func TestBucketStart(t *testing.T) {
	assert.Equal(t, int64(0), BucketStart(0, 60))
	assert.Equal(t, int64(0), BucketStart(59, 60))
	assert.Equal(t, int64(60), BucketStart(60, 60))
	assert.Equal(t, int64(60), BucketStart(65, 60))
	assert.Equal(t, int64(86400), BucketStart(86401, 86400))
}

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"60", 60},
		{"30s", 30},
		{"1m", 60},
		{"15m", 900},
		{"4h", 14400},
		{"1d", 86400},
		{" 1M ", 60},
	}
	for _, tc := range cases {
		got, err := ParseTimeframe(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "m", "xm", "0", "-5", "1.5m"} {
		_, err := ParseTimeframe(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatTimeframe(t *testing.T) {
	assert.Equal(t, "1s", FormatTimeframe(1))
	assert.Equal(t, "30s", FormatTimeframe(30))
	assert.Equal(t, "90s", FormatTimeframe(90))
	assert.Equal(t, "1m", FormatTimeframe(60))
	assert.Equal(t, "1h", FormatTimeframe(3600))
	assert.Equal(t, "4h", FormatTimeframe(14400))
	assert.Equal(t, "1d", FormatTimeframe(86400))
}

func TestAggregatorUpdate(t *testing.T) {
	t.Run("First sample opens bucket", func(t *testing.T) {
		a := NewAggregator(60)
		require.NoError(t, a.Update(30, 100.0, 1.5))

		series := a.Series()
		require.Len(t, series, 1)
		assert.Equal(t, domain.Candle{T: 0, Open: 100, High: 100, Low: 100, Close: 100, Volume: 1.5}, series[0])
	})

	t.Run("Samples fold into open bucket then roll", func(t *testing.T) {
		a := NewAggregator(60)
		require.NoError(t, a.Update(0, 100.0, 1.0))
		require.NoError(t, a.Update(30, 102.0, 1.0))
		require.NoError(t, a.Update(65, 101.0, 2.0))

		series := a.Series()
		require.Len(t, series, 2)
		assert.Equal(t, domain.Candle{T: 0, Open: 100, High: 102, Low: 100, Close: 102, Volume: 2.0}, series[0])
		assert.Equal(t, domain.Candle{T: 60, Open: 101, High: 101, Low: 101, Close: 101, Volume: 2.0}, series[1])
	})

	t.Run("Low tracks downticks", func(t *testing.T) {
		a := NewAggregator(60)
		require.NoError(t, a.Update(0, 100.0, 1.0))
		require.NoError(t, a.Update(10, 97.0, 1.0))
		require.NoError(t, a.Update(20, 99.0, 1.0))

		c, ok := a.Last()
		require.True(t, ok)
		assert.Equal(t, 100.0, c.Open)
		assert.Equal(t, 100.0, c.High)
		assert.Equal(t, 97.0, c.Low)
		assert.Equal(t, 99.0, c.Close)
		assert.Equal(t, 3.0, c.Volume)
	})

	t.Run("Bucket behind open is rejected", func(t *testing.T) {
		a := NewAggregator(60)
		require.NoError(t, a.Update(120, 100.0, 1.0))

		err := a.Update(59, 90.0, 1.0)
		assert.ErrorIs(t, err, domain.ErrOutOfOrder)
		require.Len(t, a.Series(), 1)
	})

	t.Run("Empty aggregator has no last", func(t *testing.T) {
		a := NewAggregator(60)
		_, ok := a.Last()
		assert.False(t, ok)
	})
}

func TestPool(t *testing.T) {
	t.Run("Rejects non-positive timeframes", func(t *testing.T) {
		_, err := NewPool([]int64{60, 0}, 60)
		assert.Error(t, err)
		_, err = NewPool([]int64{60}, -1)
		assert.Error(t, err)
	})

	t.Run("Default timeframe added when missing", func(t *testing.T) {
		p, err := NewPool([]int64{1, 5}, 60)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 5, 60}, p.Timeframes())
		assert.Equal(t, int64(60), p.DefaultTimeframe())
	})

	t.Run("Fan out keeps series in lockstep", func(t *testing.T) {
		p, err := NewPool([]int64{1, 60, 3600}, 60)
		require.NoError(t, err)

		for i, price := range []float64{100, 101, 99, 102} {
			require.NoError(t, p.Update(int64(i*10), price, 1.0))
		}

		// Same sample count everywhere, bucketed differently.
		assert.Len(t, p.Series(1), 4)
		assert.Len(t, p.Series(60), 1)
		assert.Len(t, p.Series(3600), 1)
		assert.Equal(t, 4.0, p.Series(60)[0].Volume)
		assert.Equal(t, 4.0, p.Series(3600)[0].Volume)
	})

	t.Run("Backward sample rejected before fan out", func(t *testing.T) {
		// ts=5 is the same 60s bucket as ts=10 but a finer series would
		// have to rewind, so the pool gate must stop it up front.
		p, err := NewPool([]int64{1, 60}, 60)
		require.NoError(t, err)

		require.NoError(t, p.Update(10, 100.0, 1.0))
		err = p.Update(5, 101.0, 1.0)
		assert.ErrorIs(t, err, domain.ErrOutOfOrder)

		assert.Len(t, p.Series(1), 1)
		require.Len(t, p.Series(60), 1)
		assert.Equal(t, 1.0, p.Series(60)[0].Volume)
	})

	t.Run("Equal timestamp accepted", func(t *testing.T) {
		p, err := NewPool([]int64{60}, 60)
		require.NoError(t, err)
		require.NoError(t, p.Update(10, 100.0, 1.0))
		require.NoError(t, p.Update(10, 101.0, 1.0))
		assert.Equal(t, 2.0, p.Series(60)[0].Volume)
	})

	t.Run("SeriesOrDefault falls back", func(t *testing.T) {
		p, err := NewPool([]int64{60, 300}, 300)
		require.NoError(t, err)
		require.NoError(t, p.Update(0, 100.0, 1.0))

		assert.Equal(t, p.Series(300), p.SeriesOrDefault(0))
		assert.Nil(t, p.Series(999))
	})

	t.Run("Snapshot is a deep copy", func(t *testing.T) {
		p, err := NewPool([]int64{60}, 60)
		require.NoError(t, err)
		require.NoError(t, p.Update(0, 100.0, 1.0))

		snap := p.Snapshot()
		snap[60][0].Close = -1

		assert.Equal(t, 100.0, p.Series(60)[0].Close)
	})

	t.Run("Reset clears cursor and series", func(t *testing.T) {
		p, err := NewPool([]int64{60}, 60)
		require.NoError(t, err)
		require.NoError(t, p.Update(100, 100.0, 1.0))

		p.Reset()

		assert.Empty(t, p.Series(60))
		require.NoError(t, p.Update(10, 99.0, 1.0)) // older ts fine after reset
	})
}
