package workflow

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

var delayRe = regexp.MustCompile(`^(\d+)(ms|s|m|h|d)$`)

// maxDelayMillis is the largest millisecond count a time.Duration can hold.
const maxDelayMillis = math.MaxInt64 / int64(time.Millisecond)

// ParseDelay converts strings such as "10ms", "5m" or "1d" into a duration.
// Surrounding whitespace is rejected.
func ParseDelay(s string) (time.Duration, error) {
	m := delayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: want <number><ms|s|m|h|d>", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	unit := map[string]time.Duration{
		"ms": time.Millisecond,
		"s":  time.Second,
		"m":  time.Minute,
		"h":  time.Hour,
		"d":  24 * time.Hour,
	}[m[2]]
	if n > int64(math.MaxInt64/unit) {
		return 0, fmt.Errorf("invalid duration %q: out of range", s)
	}
	return time.Duration(n) * unit, nil
}

// durationValue accepts a delay string or a number of milliseconds.
func durationValue(v any) (time.Duration, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case string:
		if t == "" {
			return 0, false, nil
		}
		d, err := ParseDelay(t)
		return d, err == nil, err
	}
	if ms, ok := toNumber(v); ok && isNumeric(v) {
		if math.IsNaN(ms) {
			return 0, false, fmt.Errorf("invalid duration %v", v)
		}
		if ms < 0 {
			return 0, false, fmt.Errorf("invalid duration %v: negative", v)
		}
		if ms > float64(maxDelayMillis) {
			return 0, false, fmt.Errorf("invalid duration %v: out of range", v)
		}
		return time.Duration(ms * float64(time.Millisecond)), true, nil
	}
	return 0, false, fmt.Errorf("invalid duration %v", v)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
