// Package eventlog models recorded market event streams and their CSV
// encoding. A Log is the unit the replay engine consumes.
package eventlog

import (
	"sort"

	"github.com/avelichka/ladderd/internal/domain"
)

// Log holds one recording: every book event and trade print, each
// stream sorted by timestamp. Events sharing a timestamp keep their
// recorded order.
type Log struct {
	Books  []domain.BookEvent
	Trades []domain.TradeEvent
}

// NewLog stable-sorts both streams by timestamp and returns the log.
// The input slices are sorted in place.
func NewLog(books []domain.BookEvent, trades []domain.TradeEvent) *Log {
	sort.SliceStable(books, func(i, j int) bool { return books[i].TS < books[j].TS })
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].TS < trades[j].TS })
	return &Log{Books: books, Trades: trades}
}

// Empty reports whether the log holds no events at all.
func (l *Log) Empty() bool {
	return len(l.Books) == 0 && len(l.Trades) == 0
}

// MinTS returns the earliest timestamp across both streams. ok is
// false for an empty log.
func (l *Log) MinTS() (int64, bool) {
	switch {
	case l.Empty():
		return 0, false
	case len(l.Books) == 0:
		return l.Trades[0].TS, true
	case len(l.Trades) == 0:
		return l.Books[0].TS, true
	}
	if t := l.Trades[0].TS; t < l.Books[0].TS {
		return t, true
	}
	return l.Books[0].TS, true
}

// MaxTS returns the latest timestamp across both streams. ok is false
// for an empty log.
func (l *Log) MaxTS() (int64, bool) {
	switch {
	case l.Empty():
		return 0, false
	case len(l.Books) == 0:
		return l.Trades[len(l.Trades)-1].TS, true
	case len(l.Trades) == 0:
		return l.Books[len(l.Books)-1].TS, true
	}
	if t := l.Trades[len(l.Trades)-1].TS; t > l.Books[len(l.Books)-1].TS {
		return t, true
	}
	return l.Books[len(l.Books)-1].TS, true
}

// Tickers returns the distinct tickers present in either stream, sorted.
func (l *Log) Tickers() []string {
	seen := make(map[string]struct{})
	for _, ev := range l.Books {
		seen[ev.Ticker] = struct{}{}
	}
	for _, tr := range l.Trades {
		seen[tr.Ticker] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// FilterTicker returns a new log holding only one ticker's events.
// Order is preserved.
func (l *Log) FilterTicker(ticker string) *Log {
	out := &Log{}
	for _, ev := range l.Books {
		if ev.Ticker == ticker {
			out.Books = append(out.Books, ev)
		}
	}
	for _, tr := range l.Trades {
		if tr.Ticker == ticker {
			out.Trades = append(out.Trades, tr)
		}
	}
	return out
}
