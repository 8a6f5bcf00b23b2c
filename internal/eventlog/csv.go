package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/avelichka/ladderd/internal/domain"
)

// Column layouts for the two recording files.
var (
	bookHeader  = []string{"ts", "ticker", "kind", "side", "price", "size"}
	tradeHeader = []string{"ts", "ticker", "source", "side", "size"}
)

// DecodeMode controls how malformed rows are handled.
type DecodeMode int

const (
	// Strict fails the whole read on the first malformed row.
	Strict DecodeMode = iota
	// Lenient drops malformed rows and reports how many were dropped.
	Lenient
)

// ReadBookEvents decodes a book event CSV stream. A leading header row
// is tolerated. The int return is the number of rows dropped, always
// zero in Strict mode.
func ReadBookEvents(r io.Reader, mode DecodeMode) ([]domain.BookEvent, int, error) {
	var out []domain.BookEvent
	skipped, err := readRows(r, "ts", func(rec []string) error {
		ev, err := parseBookRecord(rec)
		if err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	}, mode)
	if err != nil {
		return nil, 0, fmt.Errorf("book csv: %w", err)
	}
	return out, skipped, nil
}

// ReadTradeEvents decodes a trade print CSV stream, with the same
// header and mode handling as ReadBookEvents.
func ReadTradeEvents(r io.Reader, mode DecodeMode) ([]domain.TradeEvent, int, error) {
	var out []domain.TradeEvent
	skipped, err := readRows(r, "ts", func(rec []string) error {
		tr, err := parseTradeRecord(rec)
		if err != nil {
			return err
		}
		out = append(out, tr)
		return nil
	}, mode)
	if err != nil {
		return nil, 0, fmt.Errorf("trade csv: %w", err)
	}
	return out, skipped, nil
}

// readRows drives the csv reader, skipping a header row whose first
// field matches headerTag and applying mode to every failure.
func readRows(r io.Reader, headerTag string, apply func([]string) error, mode DecodeMode) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var skipped, row int
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return skipped, nil
		}
		row++
		if err == nil {
			if row == 1 && len(rec) > 0 && rec[0] == headerTag {
				continue
			}
			err = apply(rec)
		}
		if err != nil {
			if mode == Lenient {
				skipped++
				continue
			}
			return 0, fmt.Errorf("row %d: %w", row, err)
		}
	}
}

func parseBookRecord(rec []string) (domain.BookEvent, error) {
	if len(rec) != len(bookHeader) {
		return domain.BookEvent{}, fmt.Errorf("%w: want %d fields, got %d", domain.ErrBadRecord, len(bookHeader), len(rec))
	}
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return domain.BookEvent{}, fmt.Errorf("%w: ts %q", domain.ErrBadRecord, rec[0])
	}
	if rec[1] == "" {
		return domain.BookEvent{}, fmt.Errorf("%w: empty ticker", domain.ErrBadRecord)
	}
	kind, err := domain.ParseBookEventKind(rec[2])
	if err != nil {
		return domain.BookEvent{}, err
	}
	side, err := domain.ParseSide(rec[3])
	if err != nil {
		return domain.BookEvent{}, err
	}
	price, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return domain.BookEvent{}, fmt.Errorf("%w: price %q", domain.ErrBadRecord, rec[4])
	}
	size, err := strconv.ParseFloat(rec[5], 64)
	if err != nil {
		return domain.BookEvent{}, fmt.Errorf("%w: size %q", domain.ErrBadRecord, rec[5])
	}
	return domain.BookEvent{TS: ts, Ticker: rec[1], Kind: kind, Side: side, Price: price, Size: size}, nil
}

func parseTradeRecord(rec []string) (domain.TradeEvent, error) {
	if len(rec) != len(tradeHeader) {
		return domain.TradeEvent{}, fmt.Errorf("%w: want %d fields, got %d", domain.ErrBadRecord, len(tradeHeader), len(rec))
	}
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return domain.TradeEvent{}, fmt.Errorf("%w: ts %q", domain.ErrBadRecord, rec[0])
	}
	if rec[1] == "" {
		return domain.TradeEvent{}, fmt.Errorf("%w: empty ticker", domain.ErrBadRecord)
	}
	side := strings.ToUpper(rec[3])
	if side != "BUY" && side != "SELL" {
		return domain.TradeEvent{}, fmt.Errorf("%w: trade side %q", domain.ErrBadRecord, rec[3])
	}
	size, err := strconv.ParseFloat(rec[4], 64)
	if err != nil {
		return domain.TradeEvent{}, fmt.Errorf("%w: size %q", domain.ErrBadRecord, rec[4])
	}
	return domain.TradeEvent{TS: ts, Ticker: rec[1], Source: rec[2], Side: side, Size: size}, nil
}

// LoadFiles reads a book CSV and a trade CSV into a sorted Log. Either
// path may be empty to skip that stream. The int return is the total
// number of rows dropped in Lenient mode.
func LoadFiles(bookPath, tradePath string, mode DecodeMode) (*Log, int, error) {
	var (
		books   []domain.BookEvent
		trades  []domain.TradeEvent
		skipped int
	)
	if bookPath != "" {
		f, err := os.Open(bookPath)
		if err != nil {
			return nil, 0, fmt.Errorf("open book csv: %w", err)
		}
		books, skipped, err = ReadBookEvents(f, mode)
		f.Close()
		if err != nil {
			return nil, 0, err
		}
	}
	if tradePath != "" {
		f, err := os.Open(tradePath)
		if err != nil {
			return nil, 0, fmt.Errorf("open trade csv: %w", err)
		}
		var n int
		trades, n, err = ReadTradeEvents(f, mode)
		f.Close()
		if err != nil {
			return nil, 0, err
		}
		skipped += n
	}
	return NewLog(books, trades), skipped, nil
}
