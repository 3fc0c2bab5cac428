package usage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/storage"
)

// TopAppsInSummary is how many apps WeeklySummary ranks.
const TopAppsInSummary = 5

// Report answers read-only questions about stored usage.
type Report struct {
	usage storage.UsageStore
	clock quartz.Clock
	loc   *time.Location
}

// NewReport creates a usage report over store.
func NewReport(usage storage.UsageStore, clock quartz.Clock, loc *time.Location) *Report {
	if loc == nil {
		loc = time.Local
	}
	return &Report{usage: usage, clock: clock, loc: loc}
}

func (r *Report) now() time.Time {
	return r.clock.Now().In(r.loc)
}

// Today returns today's records, largest first, and their sum.
func (r *Report) Today(ctx context.Context) ([]storage.UsageRecord, int64, error) {
	today := storage.Day(r.now())
	records, err := r.usage.GetForDate(ctx, today)
	if err != nil {
		return nil, 0, fmt.Errorf("get usage for %s: %w", today, err)
	}
	total, err := r.usage.TotalForDate(ctx, today)
	if err != nil {
		return nil, 0, fmt.Errorf("get total for %s: %w", today, err)
	}
	return records, total, nil
}

// Range returns one DailyTotal per day in [start, end], newest first.
// Days without records are reported as zero.
func (r *Report) Range(ctx context.Context, start, end string) ([]DailyTotal, error) {
	first, err := storage.ParseDate(start)
	if err != nil {
		return nil, err
	}
	last, err := storage.ParseDate(end)
	if err != nil {
		return nil, err
	}
	if last.Before(first) {
		return nil, fmt.Errorf("range end %s is before start %s", end, start)
	}

	records, err := r.usage.GetForRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("get usage for %s..%s: %w", start, end, err)
	}
	byDay := make(map[string]int64)
	for _, rec := range records {
		byDay[rec.Date] += rec.TotalTimeMillis
	}

	var days []DailyTotal
	for t := last; !t.Before(first); t = t.AddDate(0, 0, -1) {
		day := storage.Day(t)
		days = append(days, DailyTotal{Date: day, TotalMillis: byDay[day]})
	}
	return days, nil
}

// TopApps returns at most n records for date, largest first.
func (r *Report) TopApps(ctx context.Context, date string, n int) ([]storage.UsageRecord, error) {
	records, err := r.usage.GetForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("get usage for %s: %w", date, err)
	}
	storage.SortByTotalDesc(records)
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// AppHistory returns pkg's records for the last days days, newest first.
func (r *Report) AppHistory(ctx context.Context, pkg string, days int) ([]storage.UsageRecord, error) {
	if days < 1 {
		days = 1
	}
	since := storage.Day(storage.StartOfDay(r.now()).AddDate(0, 0, -(days - 1)))
	records, err := r.usage.GetForApp(ctx, pkg, since)
	if err != nil {
		return nil, fmt.Errorf("get usage for %s: %w", pkg, err)
	}
	return records, nil
}

// WeeklySummary totals the seven days ending today.
func (r *Report) WeeklySummary(ctx context.Context) (*WeeklySummary, error) {
	today := storage.StartOfDay(r.now())
	start := storage.Day(today.AddDate(0, 0, -6))
	end := storage.Day(today)

	records, err := r.usage.GetForRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("get usage for %s..%s: %w", start, end, err)
	}

	summary := &WeeklySummary{Start: start, End: end}
	byDay := make(map[string]int64)
	byApp := make(map[string]*AppTotal)
	for _, rec := range records {
		byDay[rec.Date] += rec.TotalTimeMillis
		summary.TotalMillis += rec.TotalTimeMillis

		app, ok := byApp[rec.Package]
		if !ok {
			app = &AppTotal{Package: rec.Package}
			byApp[rec.Package] = app
		}
		app.TotalMillis += rec.TotalTimeMillis
		if app.AppName == "" {
			app.AppName = rec.AppName
		}
	}

	for i := 0; i < 7; i++ {
		day := storage.Day(today.AddDate(0, 0, -i))
		summary.Days = append(summary.Days, DailyTotal{Date: day, TotalMillis: byDay[day]})
	}
	summary.DailyAverageMillis = summary.TotalMillis / 7

	for _, app := range byApp {
		summary.TopApps = append(summary.TopApps, *app)
	}
	sort.Slice(summary.TopApps, func(i, j int) bool {
		a, b := summary.TopApps[i], summary.TopApps[j]
		if a.TotalMillis != b.TotalMillis {
			return a.TotalMillis > b.TotalMillis
		}
		return a.Package < b.Package
	})
	if len(summary.TopApps) > TopAppsInSummary {
		summary.TopApps = summary.TopApps[:TopAppsInSummary]
	}

	return summary, nil
}
