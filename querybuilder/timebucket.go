package querybuilder

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// validTimezone validates a timezone name against the system timezone
// database. Invalid or empty names fall back to UTC, so only a verified
// name ever reaches SQL text.
func validTimezone(tz string) string {
	if tz == "" {
		return "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "UTC"
	}
	return tz
}

// bucketExpr returns the timestamp truncation expression for a bucket
// width in minutes. Sub-day widths that are not whole hours truncate at
// minute granularity instead of silently rounding to the hour.
func bucketExpr(minutes int, tz string) string {
	loc := validTimezone(tz)
	switch {
	case minutes <= 1:
		return fmt.Sprintf("toStartOfInterval(p.timestamp, INTERVAL 1 MINUTE, '%s')", loc)
	case minutes < minutesPerDay:
		if minutes%60 == 0 {
			return fmt.Sprintf("toStartOfInterval(p.timestamp, INTERVAL %d HOUR, '%s')", minutes/60, loc)
		}
		return fmt.Sprintf("toStartOfInterval(p.timestamp, INTERVAL %d MINUTE, '%s')", minutes, loc)
	case minutes <= 7*minutesPerDay:
		days := minutes / minutesPerDay
		if days < 1 {
			days = 1
		}
		return fmt.Sprintf("toStartOfInterval(p.timestamp, INTERVAL %d DAY, '%s')", days, loc)
	case minutes <= 31*minutesPerDay:
		return fmt.Sprintf("toStartOfWeek(p.timestamp, 1, '%s')", loc)
	default:
		return fmt.Sprintf("toStartOfMonth(p.timestamp, '%s')", loc)
	}
}
