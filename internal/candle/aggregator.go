package candle

import (
	"github.com/avelichka/ladderd/internal/domain"
)

// Aggregator maintains the candle series for a single timeframe. The
// last element of the series is the open bucket, mutated in place until
// a sample rolls past it. Not safe for concurrent use.
type Aggregator struct {
	tf     int64
	series []domain.Candle
}

// NewAggregator returns an empty aggregator for a tf-second timeframe.
// tf must be positive.
func NewAggregator(tf int64) *Aggregator {
	return &Aggregator{tf: tf}
}

// Update folds one sample into the series. A sample whose bucket starts
// before the open bucket is rejected with domain.ErrOutOfOrder.
func (a *Aggregator) Update(ts int64, price, volume float64) error {
	b := BucketStart(ts, a.tf)
	n := len(a.series)
	if n == 0 || b > a.series[n-1].T {
		a.series = append(a.series, domain.Candle{
			T: b, Open: price, High: price, Low: price, Close: price, Volume: volume,
		})
		return nil
	}
	cur := &a.series[n-1]
	if b < cur.T {
		return domain.ErrOutOfOrder
	}
	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
	cur.Volume += volume
	return nil
}

// Timeframe returns the aggregation window in seconds.
func (a *Aggregator) Timeframe() int64 { return a.tf }

// Series returns the live backing slice, oldest bucket first. Callers
// must not mutate it; copy before handing it out.
func (a *Aggregator) Series() []domain.Candle { return a.series }

// Last returns the open bucket. ok is false when no sample has arrived.
func (a *Aggregator) Last() (domain.Candle, bool) {
	if len(a.series) == 0 {
		return domain.Candle{}, false
	}
	return a.series[len(a.series)-1], true
}

// Reset drops every bucket.
func (a *Aggregator) Reset() { a.series = a.series[:0] }
