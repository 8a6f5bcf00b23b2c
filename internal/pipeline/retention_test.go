package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichka/ladderd/internal/domain"
)

type fakeArchiver struct {
	bookCount, tradeCount, candleCount int64
	err                                error
	calls                              []string
}

func (f *fakeArchiver) ArchiveBookEvents(context.Context, time.Time) (int64, error) {
	f.calls = append(f.calls, "books")
	return f.bookCount, f.err
}

func (f *fakeArchiver) ArchiveTrades(context.Context, time.Time) (int64, error) {
	f.calls = append(f.calls, "trades")
	return f.tradeCount, f.err
}

func (f *fakeArchiver) ArchiveCandles(context.Context, time.Time) (int64, error) {
	f.calls = append(f.calls, "candles")
	return f.candleCount, f.err
}

type deleteRecorder struct {
	fakeBookStore
	deletes int
}

func (d *deleteRecorder) DeleteBefore(context.Context, time.Time) (int64, error) {
	d.deletes++
	return 7, nil
}

func TestRetentionRun(t *testing.T) {
	t.Run("Deletes only after a successful archive", func(t *testing.T) {
		arch := &fakeArchiver{bookCount: 7, tradeCount: 3, candleCount: 1}
		books := &deleteRecorder{}
		trades := &fakeTradeStore{}
		candles := &fakeCandleStore{}

		r := NewRetention(arch, books, trades, candles, 30, discardLogger())
		require.NoError(t, r.Run(context.Background()))

		assert.Equal(t, []string{"books", "trades", "candles"}, arch.calls)
		assert.Equal(t, 1, books.deletes)
	})

	t.Run("Archive failure stops the pass before any delete", func(t *testing.T) {
		arch := &fakeArchiver{err: errors.New("bucket unreachable")}
		books := &deleteRecorder{}

		r := NewRetention(arch, books, &fakeTradeStore{}, &fakeCandleStore{}, 30, discardLogger())
		err := r.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "book_events")
		assert.Zero(t, books.deletes)
	})

	t.Run("Nothing to archive skips the delete", func(t *testing.T) {
		arch := &fakeArchiver{}
		books := &deleteRecorder{}

		r := NewRetention(arch, books, &fakeTradeStore{}, &fakeCandleStore{}, 30, discardLogger())
		require.NoError(t, r.Run(context.Background()))
		assert.Zero(t, books.deletes)
	})
}

func TestParseCron(t *testing.T) {
	t.Run("Wildcards and value lists", func(t *testing.T) {
		c, err := parseCron("0 3 1,15 * *")
		require.NoError(t, err)
		assert.False(t, c.minute.wildcard)
		assert.True(t, c.month.wildcard)
		assert.True(t, c.dayOfMonth.matches(15))
		assert.False(t, c.dayOfMonth.matches(2))
	})

	t.Run("Rejects wrong field count", func(t *testing.T) {
		_, err := parseCron("0 3 * *")
		assert.Error(t, err)
	})

	t.Run("Rejects non-numeric values", func(t *testing.T) {
		_, err := parseCron("0 3 * * mon")
		assert.Error(t, err)
	})
}

func TestNextCronTime(t *testing.T) {
	base := time.Date(2024, time.June, 10, 14, 30, 45, 0, time.UTC)

	t.Run("Daily schedule rolls to the next day", func(t *testing.T) {
		next, err := nextCronTime("0 3 * * *", base)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 11, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("Same-day schedule still ahead", func(t *testing.T) {
		next, err := nextCronTime("0 18 * * *", base)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 10, 18, 0, 0, 0, time.UTC), next)
	})

	t.Run("Monthly schedule finds the first of next month", func(t *testing.T) {
		next, err := nextCronTime("0 3 1 * *", base)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.July, 1, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("Invalid expression surfaces the parse error", func(t *testing.T) {
		_, err := nextCronTime("bogus", base)
		assert.Error(t, err)
	})
}

var _ domain.Archiver = (*fakeArchiver)(nil)
