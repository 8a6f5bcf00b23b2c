// Package candle aggregates (ts, price, volume) samples into OHLCV
// buckets across multiple timeframes.
package candle

import (
	"fmt"
	"strconv"
	"strings"
)

// BucketStart floors ts to the start of its bucket for a tf-second
// timeframe. Both values are unix seconds.
func BucketStart(ts, tf int64) int64 {
	return (ts / tf) * tf
}

// ParseTimeframe converts a timeframe token into seconds. It accepts
// plain second counts ("60") and short labels ("30s", "1m", "4h", "1d").
func ParseTimeframe(token string) (int64, error) {
	s := strings.TrimSpace(strings.ToLower(token))
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	unit := int64(1)
	switch s[len(s)-1] {
	case 's':
		s = s[:len(s)-1]
	case 'm':
		unit, s = 60, s[:len(s)-1]
	case 'h':
		unit, s = 3600, s[:len(s)-1]
	case 'd':
		unit, s = 86400, s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", token)
	}
	return n * unit, nil
}

// FormatTimeframe renders seconds as the shortest whole-unit label,
// e.g. 60 becomes "1m" and 14400 becomes "4h".
func FormatTimeframe(tf int64) string {
	switch {
	case tf >= 86400 && tf%86400 == 0:
		return fmt.Sprintf("%dd", tf/86400)
	case tf >= 3600 && tf%3600 == 0:
		return fmt.Sprintf("%dh", tf/3600)
	case tf >= 60 && tf%60 == 0:
		return fmt.Sprintf("%dm", tf/60)
	default:
		return fmt.Sprintf("%ds", tf)
	}
}
