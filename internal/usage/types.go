package usage

import (
	"fmt"
	"time"
)

// DailyTotal is the summed foreground time of every app on one day.
type DailyTotal struct {
	Date        string
	TotalMillis int64
}

// AppTotal is one app's foreground time summed over a period.
type AppTotal struct {
	Package     string
	AppName     string
	TotalMillis int64
}

// WeeklySummary covers the seven days ending today.
type WeeklySummary struct {
	Start              string
	End                string
	TotalMillis        int64
	DailyAverageMillis int64
	Days               []DailyTotal // newest first
	TopApps            []AppTotal
}

// FormatDuration renders d as "Xh Ym", or "Ym" under an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int64(d / time.Hour)
	minutes := int64((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatMillis is FormatDuration for stored millisecond totals.
func FormatMillis(ms int64) string {
	return FormatDuration(time.Duration(ms) * time.Millisecond)
}
