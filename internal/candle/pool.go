package candle

import (
	"fmt"
	"sort"

	"github.com/avelichka/ladderd/internal/domain"
)

// Pool fans one sample stream out to an aggregator per timeframe, so
// every series always holds the same sample sequence. Not safe for
// concurrent use.
type Pool struct {
	defaultTF int64
	lastTS    int64
	hasLast   bool
	aggs      map[int64]*Aggregator
	order     []int64 // ascending timeframes
}

// NewPool builds aggregators for the given timeframes. defaultTF is
// used by SeriesOrDefault and the last-price readout and is added to
// the set when missing. Duplicate timeframes collapse.
func NewPool(timeframes []int64, defaultTF int64) (*Pool, error) {
	if defaultTF <= 0 {
		return nil, fmt.Errorf("default timeframe must be positive, got %d", defaultTF)
	}
	p := &Pool{defaultTF: defaultTF, aggs: make(map[int64]*Aggregator)}
	for _, tf := range timeframes {
		if tf <= 0 {
			return nil, fmt.Errorf("timeframe must be positive, got %d", tf)
		}
		if _, ok := p.aggs[tf]; ok {
			continue
		}
		p.aggs[tf] = NewAggregator(tf)
		p.order = append(p.order, tf)
	}
	if _, ok := p.aggs[defaultTF]; !ok {
		p.aggs[defaultTF] = NewAggregator(defaultTF)
		p.order = append(p.order, defaultTF)
	}
	sort.Slice(p.order, func(i, j int) bool { return p.order[i] < p.order[j] })
	return p, nil
}

// Update folds one sample into every timeframe. A sample older than the
// previous one is rejected before any aggregator sees it, keeping all
// series in lockstep.
func (p *Pool) Update(ts int64, price, volume float64) error {
	if p.hasLast && ts < p.lastTS {
		return fmt.Errorf("%w: ts %d after %d", domain.ErrOutOfOrder, ts, p.lastTS)
	}
	p.lastTS, p.hasLast = ts, true
	for _, tf := range p.order {
		if err := p.aggs[tf].Update(ts, price, volume); err != nil {
			return err
		}
	}
	return nil
}

// DefaultTimeframe returns the configured default window in seconds.
func (p *Pool) DefaultTimeframe() int64 { return p.defaultTF }

// Timeframes returns the maintained windows in ascending order.
func (p *Pool) Timeframes() []int64 {
	out := make([]int64, len(p.order))
	copy(out, p.order)
	return out
}

// Series returns the live series for tf, nil when the pool does not
// maintain that timeframe.
func (p *Pool) Series(tf int64) []domain.Candle {
	agg, ok := p.aggs[tf]
	if !ok {
		return nil
	}
	return agg.Series()
}

// SeriesOrDefault returns the series for tf, falling back to the
// default timeframe when tf is zero.
func (p *Pool) SeriesOrDefault(tf int64) []domain.Candle {
	if tf == 0 {
		tf = p.defaultTF
	}
	return p.Series(tf)
}

// Last returns the open bucket of the default timeframe.
func (p *Pool) Last() (domain.Candle, bool) {
	return p.aggs[p.defaultTF].Last()
}

// Snapshot returns a deep copy of every series keyed by timeframe.
func (p *Pool) Snapshot() map[int64][]domain.Candle {
	out := make(map[int64][]domain.Candle, len(p.order))
	for _, tf := range p.order {
		src := p.aggs[tf].Series()
		cp := make([]domain.Candle, len(src))
		copy(cp, src)
		out[tf] = cp
	}
	return out
}

// Reset drops every series and the monotonic cursor.
func (p *Pool) Reset() {
	p.lastTS, p.hasLast = 0, false
	for _, agg := range p.aggs {
		agg.Reset()
	}
}
