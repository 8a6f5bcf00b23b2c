package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the time-ranged read methods it actually calls,
// not the full domain store interfaces. The Postgres stores satisfy these
// implicitly.
// ---------------------------------------------------------------------------

// BookEventArchiveStore provides read access to book events for archival.
type BookEventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.BookEvent, error)
}

// TradeEventArchiveStore provides read access to trade prints for archival.
type TradeEventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.TradeEvent, error)
}

// CandleArchiveStore provides read access to candles for archival.
type CandleArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.CandleRow, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the stores for aged
// rows, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally
// NOT performed here. That is a separate, explicit step executed by the
// retention job after the archive upload has succeeded.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	books   BookEventArchiveStore
	trades  TradeEventArchiveStore
	candles CandleArchiveStore
	logger  *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	books BookEventArchiveStore,
	trades TradeEventArchiveStore,
	candles CandleArchiveStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		books:   books,
		trades:  trades,
		candles: candles,
		logger:  logger,
	}
}

// ArchiveBookEvents queries all book events before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at
// archive/book_events/YYYY-MM.jsonl. Returns the number of archived rows.
func (a *ArchiveImpl) ArchiveBookEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.books.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive book events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive book events marshal: %w", err)
	}

	path := archivePath("book_events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive book events upload: %w", err)
	}

	count := int64(len(events))
	a.logger.Info("archived book events",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)),
	)
	return count, nil
}

// ArchiveTrades queries all trade prints before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at
// archive/trade_events/YYYY-MM.jsonl. Returns the number of archived rows.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trade_events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))
	a.logger.Info("archived trades",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)),
	)
	return count, nil
}

// ArchiveCandles queries all candles whose buckets start before the
// cutoff, serializes them to JSONL, and uploads the file to S3 at
// archive/candles/YYYY-MM.jsonl. Returns the number of archived rows.
func (a *ArchiveImpl) ArchiveCandles(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.candles.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candles query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive candles marshal: %w", err)
	}

	path := archivePath("candles", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive candles upload: %w", err)
	}

	count := int64(len(rows))
	a.logger.Info("archived candles",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.Format(time.RFC3339)),
	)
	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/book_events/2025-01.jsonl
//	archive/trade_events/2025-01.jsonl
//	archive/candles/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
