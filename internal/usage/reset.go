package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionScheduler prunes old usage records on a cron schedule.
type RetentionScheduler struct {
	usage  storage.UsageStore
	days   int
	spec   string
	clock  quartz.Clock
	loc    *time.Location
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRetentionScheduler creates a scheduler that keeps days days of history.
// spec is a standard cron expression or descriptor such as "@daily".
func NewRetentionScheduler(usage storage.UsageStore, days int, spec string, clock quartz.Clock, loc *time.Location, logger zerolog.Logger) (*RetentionScheduler, error) {
	if days < 1 {
		return nil, fmt.Errorf("retention must keep at least one day, got %d", days)
	}
	if loc == nil {
		loc = time.Local
	}

	rs := &RetentionScheduler{
		usage:  usage,
		days:   days,
		spec:   spec,
		clock:  clock,
		loc:    loc,
		logger: logger.With().Str("component", "retention").Logger(),
	}

	cronLogger := rs.logger
	rs.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cron.PrintfLogger(&cronLogger)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := rs.cron.AddFunc(spec, rs.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}

	return rs, nil
}

// Start begins the scheduler
func (rs *RetentionScheduler) Start() {
	rs.cron.Start()
	rs.logger.Info().
		Str("schedule", rs.spec).
		Int("retention_days", rs.days).
		Msg("Usage retention scheduler started")
}

// Stop stops the scheduler and waits for a running prune to finish.
func (rs *RetentionScheduler) Stop() {
	<-rs.cron.Stop().Done()
	rs.logger.Info().Msg("Usage retention scheduler stopped")
}

func (rs *RetentionScheduler) run() {
	if _, err := rs.Prune(context.Background()); err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune old usage records")
	}
}

// Prune deletes every record older than the retention window.
func (rs *RetentionScheduler) Prune(ctx context.Context) (int, error) {
	cutoff := storage.RetentionCutoff(rs.clock.Now().In(rs.loc), rs.days)

	deleted, err := rs.usage.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete usage before %s: %w", cutoff, err)
	}
	metrics.RecordsPruned.Add(float64(deleted))

	rs.logger.Info().
		Int("rows_deleted", deleted).
		Str("cutoff_date", cutoff).
		Msg("Old usage records cleaned up")

	return deleted, nil
}
