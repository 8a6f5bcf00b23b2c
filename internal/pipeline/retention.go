package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// Retention ages event and candle rows out of Postgres: each kind is
// archived to cold storage first and deleted only once the upload
// succeeded, so a failed archive never loses rows.
type Retention struct {
	archiver      domain.Archiver
	books         domain.BookEventStore
	trades        domain.TradeEventStore
	candles       domain.CandleStore
	retentionDays int
	triggerCh     chan struct{}
	logger        *slog.Logger
}

// NewRetention creates a Retention job over the given archiver and
// stores.
func NewRetention(
	archiver domain.Archiver,
	books domain.BookEventStore,
	trades domain.TradeEventStore,
	candles domain.CandleStore,
	retentionDays int,
	logger *slog.Logger,
) *Retention {
	return &Retention{
		archiver:      archiver,
		books:         books,
		trades:        trades,
		candles:       candles,
		retentionDays: retentionDays,
		triggerCh:     make(chan struct{}, 1),
		logger:        logger.With(slog.String("component", "retention")),
	}
}

// TriggerCh returns the channel a manual trigger is sent on. RunCron
// consumes it and runs one pass outside the schedule.
func (r *Retention) TriggerCh() chan<- struct{} {
	return r.triggerCh
}

// Run executes a single retention pass. The cutoff is retentionDays
// before now; rows older than the cutoff are uploaded and then removed.
func (r *Retention) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.Info("starting retention run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	booksArchived, err := r.archiveKind(ctx, "book_events", cutoff, r.archiver.ArchiveBookEvents, r.books.DeleteBefore)
	if err != nil {
		return err
	}
	tradesArchived, err := r.archiveKind(ctx, "trade_events", cutoff, r.archiver.ArchiveTrades, r.trades.DeleteBefore)
	if err != nil {
		return err
	}
	candlesArchived, err := r.archiveKind(ctx, "candles", cutoff, r.archiver.ArchiveCandles, r.candles.DeleteBefore)
	if err != nil {
		return err
	}

	r.logger.Info("retention run complete",
		slog.Int64("book_events", booksArchived),
		slog.Int64("trade_events", tradesArchived),
		slog.Int64("candles", candlesArchived),
	)
	return nil
}

// archiveKind uploads one row kind and deletes it on success. A kind
// with nothing to archive skips the delete.
func (r *Retention) archiveKind(
	ctx context.Context,
	kind string,
	cutoff time.Time,
	archive func(context.Context, time.Time) (int64, error),
	remove func(context.Context, time.Time) (int64, error),
) (int64, error) {
	archived, err := archive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving %s before %v: %w", kind, cutoff, err)
	}
	if archived == 0 {
		return 0, nil
	}

	deleted, err := remove(ctx, cutoff)
	if err != nil {
		return archived, fmt.Errorf("deleting archived %s before %v: %w", kind, cutoff, err)
	}

	r.logger.Info("aged rows archived",
		slog.String("kind", kind),
		slog.Int64("archived", archived),
		slog.Int64("deleted", deleted),
	)
	return archived, nil
}

// RunCron runs the retention job on a cron schedule until the context
// is cancelled. It supports cron expressions in the standard 5-field
// format: "minute hour day-of-month month day-of-week"
//
// Example: "0 3 * * *" runs at 3:00 AM every day.
func (r *Retention) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.Info("retention cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		r.logger.Info("retention waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("retention cron stopped")
			return ctx.Err()
		case <-r.triggerCh:
			timer.Stop()
			r.logger.Info("retention triggered manually")
			if err := r.Run(ctx); err != nil {
				r.logger.Error("retention run failed", slog.String("error", err.Error()))
			}
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error("retention run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
