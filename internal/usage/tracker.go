package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/sampler"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/rs/zerolog"
)

// Reconciler copies the sampler's cumulative foreground totals for today
// into the usage store.
type Reconciler struct {
	usage    storage.UsageStore
	sampler  sampler.Sampler
	resolver sampler.Resolver
	clock    quartz.Clock
	loc      *time.Location
	logger   zerolog.Logger
}

// NewReconciler creates a usage reconciler. Days are cut at midnight in loc.
func NewReconciler(usage storage.UsageStore, s sampler.Sampler, r sampler.Resolver, clock quartz.Clock, loc *time.Location, logger zerolog.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{
		usage:    usage,
		sampler:  s,
		resolver: r,
		clock:    clock,
		loc:      loc,
		logger:   logger.With().Str("component", "usage-reconciler").Logger(),
	}
}

// Tick performs one reconciliation and returns the number of records written.
// The stored total for each app becomes the sampler's total, so repeated ticks
// over the same interval never double count.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.tick(ctx)
	metrics.TickDuration.WithLabelValues("tracking").Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ReconcileTicks.WithLabelValues("ok").Inc()
		metrics.RecordsWritten.Add(float64(n))
	case errors.Is(err, sampler.ErrPermissionDenied):
		metrics.ReconcileTicks.WithLabelValues("denied").Inc()
	default:
		metrics.ReconcileTicks.WithLabelValues("error").Inc()
	}
	return n, err
}

func (r *Reconciler) tick(ctx context.Context) (int, error) {
	now := r.clock.Now().In(r.loc)
	midnight := storage.StartOfDay(now)
	today := storage.Day(now)

	apps, err := r.sampler.AggregatedUsage(ctx, midnight, now)
	if err != nil {
		return 0, fmt.Errorf("aggregate usage: %w", err)
	}

	records := make([]storage.UsageRecord, 0, len(apps))
	for _, app := range apps {
		if app.TotalForegroundMillis <= 0 {
			continue
		}

		name, err := r.resolver.DisplayName(ctx, app.Package)
		if err != nil {
			if errors.Is(err, sampler.ErrUnresolvable) {
				r.logger.Debug().Str("package", app.Package).Msg("Skipping unresolvable app")
			} else {
				r.logger.Warn().Err(err).Str("package", app.Package).Msg("Failed to resolve app name, skipping")
			}
			continue
		}

		records = append(records, storage.UsageRecord{
			Package:         app.Package,
			AppName:         name,
			Date:            today,
			TotalTimeMillis: app.TotalForegroundMillis,
			LastUsedMillis:  app.LastUsedMillis,
		})
	}

	if len(records) == 0 {
		return 0, nil
	}
	if err := r.usage.UpsertDaily(ctx, records...); err != nil {
		return 0, fmt.Errorf("upsert daily usage: %w", err)
	}

	r.logger.Debug().
		Str("date", today).
		Int("records", len(records)).
		Msg("Reconciled daily usage")

	return len(records), nil
}

// Restore seeds s with the totals already stored for today, so a restarted
// sampler continues from them instead of counting from zero.
func Restore(ctx context.Context, usage storage.UsageStore, s sampler.Seeder, today string) (int, error) {
	records, err := usage.GetForDate(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("load usage for %s: %w", today, err)
	}
	s.Seed(records)
	return len(records), nil
}
