package schedule

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
)

var delayRegex = regexp.MustCompile(`^(\d+)([smhd])$`)

var delayUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Parses a delay like "30s", "10m", "2h", or "1d" (unit is case-insensitive). The result is always positive.
func ParseDelay(raw string) (time.Duration, error) {
	m := delayRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(raw)))
	if m == nil {
		return 0, fmt.Errorf("%w: invalid time format %q (use eg 30s, 10m, 2h, 1d)", chat.ErrInvalidInput, raw)
	}
	amount, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: time amount out of range: %q", chat.ErrInvalidInput, raw)
	}
	unit := delayUnits[m[2]]
	if amount <= 0 {
		return 0, fmt.Errorf("%w: delay must be positive: %q", chat.ErrInvalidInput, raw)
	}
	if amount > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: time amount out of range: %q", chat.ErrInvalidInput, raw)
	}
	return time.Duration(amount) * unit, nil
}

// Renders a duration in the largest whole unit that fits, eg 90s is "1m". Inverse of ParseDelay only for exact multiples.
func FormatDelay(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	default:
		return fmt.Sprintf("%dd", secs/86400)
	}
}
