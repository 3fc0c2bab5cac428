package storage

import (
	"context"
	"errors"
	"os"
)

var (
	// ErrNotFound is returned when a record is missing from storage.
	ErrNotFound = errors.New("storage: record not found")

	// ErrInvalidPolicy is returned when a policy fails validation before a write.
	ErrInvalidPolicy = errors.New("storage: invalid policy")

	// ErrMalformed is returned when a stored row cannot be decoded.
	ErrMalformed = errors.New("storage: malformed record")
)

// Store represents the root storage interface.
type Store interface {
	Close() error
	Usage() UsageStore
	Limits() LimitStore
	Blocks() BlockStore
}

// UsageStore holds one cumulative record per package per local day.
type UsageStore interface {
	// UpsertDaily replaces the stored record for each (package, date) pair.
	UpsertDaily(ctx context.Context, records ...UsageRecord) error
	// GetForDate returns all records for a day ordered by total time, largest first.
	GetForDate(ctx context.Context, date string) ([]UsageRecord, error)
	// GetForRange returns all records with start <= date <= end.
	GetForRange(ctx context.Context, start, end string) ([]UsageRecord, error)
	// GetForApp returns a package's records on or after since, newest first.
	GetForApp(ctx context.Context, pkg, since string) ([]UsageRecord, error)
	TotalForDate(ctx context.Context, date string) (int64, error)
	// DeleteOlderThan removes every record whose date is strictly before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff string) (int, error)
}

// LimitStore manages per-app daily limits.
type LimitStore interface {
	ListEnabled(ctx context.Context) ([]LimitPolicy, error)
	List(ctx context.Context) ([]LimitPolicy, error)
	Get(ctx context.Context, pkg string) (*LimitPolicy, error)
	Upsert(ctx context.Context, limit LimitPolicy) error
	Delete(ctx context.Context, pkg string) error
	SetEnabled(ctx context.Context, pkg string, enabled bool) error
}

// BlockStore manages the app denylist.
type BlockStore interface {
	ListEnabled(ctx context.Context) ([]BlockPolicy, error)
	List(ctx context.Context) ([]BlockPolicy, error)
	Get(ctx context.Context, pkg string) (*BlockPolicy, error)
	Upsert(ctx context.Context, block BlockPolicy) error
	Delete(ctx context.Context, pkg string) error
	SetEnabled(ctx context.Context, pkg string, enabled bool) error
}

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
