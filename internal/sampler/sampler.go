// Package sampler reports which application is in the foreground and how long
// each application has been in the foreground over a time window.
package sampler

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/screentime/internal/storage"
)

var (
	// ErrPermissionDenied is returned when the host refuses access to usage data.
	ErrPermissionDenied = errors.New("sampler: usage access denied")

	// ErrUnresolvable is returned when an app identity has no display name.
	ErrUnresolvable = errors.New("sampler: app identity unresolvable")
)

// AppUsage is the aggregated foreground time of one app over a window.
type AppUsage struct {
	Package               string
	TotalForegroundMillis int64
	LastUsedMillis        int64
}

// Sampler is the OS usage source shared by the tracking and enforcement loops.
type Sampler interface {
	// ForegroundApp returns the app with the most recent use inside [start, end].
	ForegroundApp(ctx context.Context, start, end time.Time) (pkg string, ok bool, err error)
	// AggregatedUsage returns the cumulative foreground time per app since start.
	AggregatedUsage(ctx context.Context, start, end time.Time) ([]AppUsage, error)
}

// Resolver maps an app identity to a human readable name.
type Resolver interface {
	DisplayName(ctx context.Context, pkg string) (string, error)
}

// Seeder is implemented by samplers that keep their own ledger and must be
// told what was already recorded before they started.
type Seeder interface {
	Seed(records []storage.UsageRecord)
}
