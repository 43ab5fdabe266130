package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format the timer endpoints use.
const DateLayout = "2006-01-02"

var (
	segmentPattern = regexp.MustCompile(`^\s*(\d+)\s*([a-z]+)`)
	digitsPattern  = regexp.MustCompile(`^\d+$`)
	unitMap        = map[string]time.Duration{
		"s":       time.Second,
		"sec":     time.Second,
		"secs":    time.Second,
		"second":  time.Second,
		"seconds": time.Second,
		"m":       time.Minute,
		"min":     time.Minute,
		"mins":    time.Minute,
		"minute":  time.Minute,
		"minutes": time.Minute,
		"h":       time.Hour,
		"hr":      time.Hour,
		"hrs":     time.Hour,
		"hour":    time.Hour,
		"hours":   time.Hour,
		"d":       24 * time.Hour,
		"day":     24 * time.Hour,
		"days":    24 * time.Hour,
		"w":       7 * 24 * time.Hour,
		"week":    7 * 24 * time.Hour,
		"weeks":   7 * 24 * time.Hour,
	}
)

// ParseDuration parses a human-friendly duration such as "25m", "1h30m" or
// "2d". A bare number is seconds. Empty input is zero.
func ParseDuration(input string) (time.Duration, error) {
	remaining := strings.ToLower(strings.TrimSpace(input))
	if remaining == "" {
		return 0, nil
	}
	if digitsPattern.MatchString(remaining) {
		n, err := strconv.ParseInt(remaining, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", input, err)
		}
		return time.Duration(n) * time.Second, nil
	}
	total := time.Duration(0)
	for len(remaining) > 0 {
		matches := segmentPattern.FindStringSubmatch(remaining)
		if len(matches) != 3 {
			return 0, fmt.Errorf("invalid duration segment %q", strings.TrimSpace(remaining))
		}
		value, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration value %q: %w", matches[1], err)
		}
		base, ok := unitMap[matches[2]]
		if !ok {
			return 0, fmt.Errorf("unsupported duration unit %q", matches[2])
		}
		total += time.Duration(value) * base
		remaining = remaining[len(matches[0]):]
	}
	return total, nil
}

// FormatCompact renders a duration using week/day/hour/minute/second tokens,
// for example "1d2h".
func FormatCompact(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	units := []struct {
		label string
		value time.Duration
	}{
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}
	var parts []string
	remaining := d
	for _, u := range units {
		if remaining < u.value {
			continue
		}
		count := remaining / u.value
		remaining -= count * u.value
		parts = append(parts, fmt.Sprintf("%d%s", count, u.label))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, "")
}

// FormatClock renders seconds as H:MM:SS, or MM:SS under an hour.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds/60)%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Date is the UTC calendar day of t.
func Date(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate accepts "today", "yesterday", "tomorrow" or YYYY-MM-DD. Empty
// input is today.
func ParseDate(input string, now time.Time) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(input)); v {
	case "", "today":
		return Date(now), nil
	case "yesterday":
		return Date(now.AddDate(0, 0, -1)), nil
	case "tomorrow":
		return Date(now.AddDate(0, 0, 1)), nil
	default:
		if _, err := time.Parse(DateLayout, v); err != nil {
			return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", input)
		}
		return v, nil
	}
}
