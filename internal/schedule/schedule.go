// Package schedule interprets the restricted cron-like schedule strings used
// by the dashboard. This is deliberately not full cron: the dashboard only
// ever emits every-N-minutes and every-N-hours shapes.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is the fallback when a schedule string doesn't match any
// supported shape. The dashboard's own 30-second countdown default is a client
// concern; the orchestrator always falls back to this value.
const DefaultInterval = 5 * time.Minute

// ParseInterval derives a check interval from a 5-field cron-like string.
//
// Supported shapes:
//
//	*/N * * * *   every N minutes
//	0 */H * * *   every H hours
//	0 * * * *     every hour
//
// Anything else (including malformed input) falls back to DefaultInterval.
func ParseInterval(expr string) time.Duration {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		if expr != "" {
			log.Warn().Str("schedule", expr).Msg("Unsupported schedule string, using default interval")
		}
		return DefaultInterval
	}

	minute, hour := fields[0], fields[1]

	if n, ok := stepValue(minute); ok {
		return time.Duration(n) * time.Minute
	}
	if minute == "0" {
		if h, ok := stepValue(hour); ok {
			return time.Duration(h) * time.Hour
		}
		if hour == "*" {
			return time.Hour
		}
	}

	log.Warn().Str("schedule", expr).Msg("Unsupported schedule string, using default interval")
	return DefaultInterval
}

// stepValue parses a "*/N" field, returning N and whether it matched.
func stepValue(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
