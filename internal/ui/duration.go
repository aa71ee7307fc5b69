package ui

import (
	"strconv"
	"strings"
	"time"
)

var durationUnits = map[string]int64{
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": 86400, "day": 86400, "days": 86400,
	"w": 604800, "week": 604800, "weeks": 604800,
}

// ParseDuration parses a human-readable duration like "30m", "2h" or "1d"
// into a duration. It returns false for anything it does not recognize,
// including zero and negative values.
func ParseDuration(input string) (time.Duration, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}

	value, err := strconv.ParseInt(trimmed[:i], 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}

	unit := strings.TrimSpace(trimmed[i:])
	multiplier, ok := durationUnits[unit]
	if !ok {
		return 0, false
	}

	return time.Duration(value*multiplier) * time.Second, true
}

// FormatDuration renders a duration as compact week/day/hour/minute parts,
// e.g. "1d 6h". Sub-minute durations render as seconds.
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0s"
	}

	weeks := seconds / 604800
	seconds %= 604800
	days := seconds / 86400
	seconds %= 86400
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	var parts []string
	if weeks > 0 {
		parts = append(parts, strconv.FormatInt(weeks, 10)+"w")
	}
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+"h")
	}
	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(minutes, 10)+"m")
	}
	if seconds > 0 && len(parts) == 0 {
		parts = append(parts, strconv.FormatInt(seconds, 10)+"s")
	}

	return strings.Join(parts, " ")
}
