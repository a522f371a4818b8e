package tokens

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultLifetime is used when a configured lifetime cannot be parsed.
const DefaultLifetime = 7 * 24 * time.Hour

var lifetimePattern = regexp.MustCompile(`^(\d+)\s*([smhdSMHD])$`)

// ParseLifetime reads lifetimes written as an integer and a unit: "45s", "30m",
// "24h", "7d". Anything it cannot read (empty, unknown unit, zero, overflow)
// yields DefaultLifetime rather than an error.
func ParseLifetime(value string) time.Duration {
	m := lifetimePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return DefaultLifetime
	}
	amount, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || amount <= 0 {
		return DefaultLifetime
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if amount > int64(1<<63-1)/int64(unit) {
		return DefaultLifetime
	}
	return time.Duration(amount) * unit
}
