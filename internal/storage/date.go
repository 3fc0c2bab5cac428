package storage

import (
	"fmt"
	"time"
)

// DateLayout is the format of UsageRecord.Date. It sorts lexically in date order.
const DateLayout = "2006-01-02"

// Day returns the local calendar day of t as a record date.
func Day(t time.Time) string {
	return t.Format(DateLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a record date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// RetentionCutoff returns the first day that survives a retention of days days.
func RetentionCutoff(now time.Time, days int) string {
	return Day(StartOfDay(now).AddDate(0, 0, -days))
}
