package eventlog

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/avelichka/ladderd/internal/domain"
)

// BookWriter streams book events to w as CSV, emitting the header on
// the first write. Rows are buffered until Flush.
type BookWriter struct {
	cw     *csv.Writer
	opened bool
}

// NewBookWriter wraps w.
func NewBookWriter(w io.Writer) *BookWriter {
	return &BookWriter{cw: csv.NewWriter(w)}
}

// Write appends one event row.
func (bw *BookWriter) Write(ev domain.BookEvent) error {
	if !bw.opened {
		if err := bw.cw.Write(bookHeader); err != nil {
			return err
		}
		bw.opened = true
	}
	return bw.cw.Write([]string{
		strconv.FormatInt(ev.TS, 10),
		ev.Ticker,
		string(ev.Kind),
		string(ev.Side),
		formatFloat(ev.Price),
		formatFloat(ev.Size),
	})
}

// SkipHeader suppresses the header row, for appending to a file that
// already carries one.
func (bw *BookWriter) SkipHeader() { bw.opened = true }

// Flush pushes buffered rows to the underlying writer.
func (bw *BookWriter) Flush() error {
	bw.cw.Flush()
	return bw.cw.Error()
}

// TradeWriter streams trade prints to w as CSV, emitting the header on
// the first write. Rows are buffered until Flush.
type TradeWriter struct {
	cw     *csv.Writer
	opened bool
}

// NewTradeWriter wraps w.
func NewTradeWriter(w io.Writer) *TradeWriter {
	return &TradeWriter{cw: csv.NewWriter(w)}
}

// Write appends one trade row.
func (tw *TradeWriter) Write(tr domain.TradeEvent) error {
	if !tw.opened {
		if err := tw.cw.Write(tradeHeader); err != nil {
			return err
		}
		tw.opened = true
	}
	return tw.cw.Write([]string{
		strconv.FormatInt(tr.TS, 10),
		tr.Ticker,
		tr.Source,
		tr.Side,
		formatFloat(tr.Size),
	})
}

// SkipHeader suppresses the header row, for appending to a file that
// already carries one.
func (tw *TradeWriter) SkipHeader() { tw.opened = true }

// Flush pushes buffered rows to the underlying writer.
func (tw *TradeWriter) Flush() error {
	tw.cw.Flush()
	return tw.cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
