package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/rs/zerolog"
)

// Probe reports the process that owns the focused window right now.
type Probe interface {
	Active(ctx context.Context) (pkg string, ok bool, err error)
}

// DesktopConfig tunes the desktop poller.
type DesktopConfig struct {
	PollInterval time.Duration
	// MaxGap caps the time credited for a single observation, so a suspended
	// machine does not charge its sleep to the last focused app.
	MaxGap   time.Duration
	Location *time.Location
}

type ledgerEntry struct {
	totalMillis    int64
	lastUsedMillis int64
	// observed is false for entries only restored by Seed.
	observed bool
}

// Desktop builds a cumulative per-day usage ledger by polling a Probe.
type Desktop struct {
	probe  Probe
	clock  quartz.Clock
	cfg    DesktopConfig
	logger zerolog.Logger

	mu       sync.Mutex
	days     map[string]map[string]*ledgerEntry
	lastPoll time.Time
	fatal    error
}

// NewDesktop creates a Desktop sampler. Run must be called to start polling.
func NewDesktop(probe Probe, clock quartz.Clock, cfg DesktopConfig, logger zerolog.Logger) *Desktop {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = 5 * cfg.PollInterval
	}
	return &Desktop{
		probe:  probe,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With().Str("component", "sampler").Logger(),
		days:   make(map[string]map[string]*ledgerEntry),
	}
}

// Run polls until ctx is cancelled. Polling continues while access is denied
// so the sampler recovers once the probe works again.
func (d *Desktop) Run(ctx context.Context) error {
	d.logger.Info().Dur("poll_interval", d.cfg.PollInterval).Msg("Desktop sampler started")
	w := d.clock.TickerFunc(ctx, d.cfg.PollInterval, func() error {
		_ = d.Poll(ctx)
		return nil
	}, "sampler", "poll")
	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Poll takes one observation. Only ErrPermissionDenied is returned; other
// probe failures are logged and the observation is dropped. The denial is
// reported by the query methods until a later probe succeeds.
func (d *Desktop) Poll(ctx context.Context) error {
	pkg, ok, err := d.probe.Active(ctx)
	now := d.clock.Now().In(d.cfg.Location)

	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.lastPoll
	d.lastPoll = now

	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			if d.fatal == nil {
				d.logger.Warn().Err(err).Msg("Foreground access denied")
			}
			d.fatal = err
			return err
		}
		d.logger.Debug().Err(err).Msg("Foreground probe failed")
		return nil
	}
	if d.fatal != nil {
		d.logger.Info().Msg("Foreground access restored")
		d.fatal = nil
		// Time spent denied is not credited.
		prev = time.Time{}
	}
	if !ok {
		return nil
	}

	elapsed := d.cfg.PollInterval
	if !prev.IsZero() {
		elapsed = now.Sub(prev)
	}
	if elapsed > d.cfg.MaxGap {
		elapsed = d.cfg.MaxGap
	}
	if elapsed < 0 {
		elapsed = 0
	}

	day := storage.Day(now)
	apps, found := d.days[day]
	if !found {
		apps = make(map[string]*ledgerEntry)
		d.days[day] = apps
		d.prune(now)
	}
	entry, found := apps[pkg]
	if !found {
		entry = &ledgerEntry{}
		apps[pkg] = entry
	}
	entry.totalMillis += elapsed.Milliseconds()
	entry.lastUsedMillis = now.UnixMilli()
	entry.observed = true
	return nil
}

// Seed restores totals persisted by a previous run. An app's total for a day
// never drops below its seeded value.
func (d *Desktop) Seed(records []storage.UsageRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range records {
		apps, found := d.days[r.Date]
		if !found {
			apps = make(map[string]*ledgerEntry)
			d.days[r.Date] = apps
		}
		entry, found := apps[r.Package]
		if !found {
			entry = &ledgerEntry{}
			apps[r.Package] = entry
		}
		entry.totalMillis = max(entry.totalMillis, r.TotalTimeMillis)
		entry.lastUsedMillis = max(entry.lastUsedMillis, r.LastUsedMillis)
	}
}

// prune drops ledger days older than yesterday.
func (d *Desktop) prune(now time.Time) {
	keep := storage.Day(storage.StartOfDay(now).AddDate(0, 0, -1))
	for day := range d.days {
		if day < keep {
			delete(d.days, day)
		}
	}
}

func (d *Desktop) ForegroundApp(_ context.Context, start, end time.Time) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fatal != nil {
		return "", false, d.fatal
	}

	lo, hi := start.UnixMilli(), end.UnixMilli()
	var (
		best     string
		bestSeen int64
	)
	for _, day := range d.daysBetween(start, end) {
		for pkg, entry := range d.days[day] {
			if !entry.observed || entry.lastUsedMillis < lo || entry.lastUsedMillis > hi {
				continue
			}
			if entry.lastUsedMillis > bestSeen {
				best, bestSeen = pkg, entry.lastUsedMillis
			}
		}
	}
	return best, best != "", nil
}

// AggregatedUsage sums the ledger for every day touched by [start, end].
// The ledger has day granularity, so start is expected to be a local midnight.
func (d *Desktop) AggregatedUsage(_ context.Context, start, end time.Time) ([]AppUsage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fatal != nil {
		return nil, d.fatal
	}

	totals := make(map[string]*AppUsage)
	for _, day := range d.daysBetween(start, end) {
		for pkg, entry := range d.days[day] {
			u, found := totals[pkg]
			if !found {
				u = &AppUsage{Package: pkg}
				totals[pkg] = u
			}
			u.TotalForegroundMillis += entry.totalMillis
			if entry.lastUsedMillis > u.LastUsedMillis {
				u.LastUsedMillis = entry.lastUsedMillis
			}
		}
	}

	usage := make([]AppUsage, 0, len(totals))
	for _, u := range totals {
		usage = append(usage, *u)
	}
	return usage, nil
}

func (d *Desktop) daysBetween(start, end time.Time) []string {
	first := storage.StartOfDay(start.In(d.cfg.Location))
	last := storage.Day(end.In(d.cfg.Location))
	var days []string
	for t := first; storage.Day(t) <= last; t = t.AddDate(0, 0, 1) {
		days = append(days, storage.Day(t))
	}
	return days
}
