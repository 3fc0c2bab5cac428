package storage

import (
	"fmt"
	"sort"
)

// UsageRecord is the cumulative foreground time of one package on one local day.
type UsageRecord struct {
	Package         string `json:"package"`
	AppName         string `json:"app_name"`
	Date            string `json:"date"`
	TotalTimeMillis int64  `json:"total_time_ms"`
	LastUsedMillis  int64  `json:"last_used_ms"`
	LaunchCount     int    `json:"launch_count"`
}

// Validate checks the identity and counters of a record.
func (r UsageRecord) Validate() error {
	if r.Package == "" {
		return fmt.Errorf("usage record package is required")
	}
	if _, err := ParseDate(r.Date); err != nil {
		return fmt.Errorf("usage record %s: %w", r.Package, err)
	}
	if r.TotalTimeMillis < 0 {
		return fmt.Errorf("usage record %s: negative total time %d", r.Package, r.TotalTimeMillis)
	}
	return nil
}

// LimitPolicy caps the daily foreground time of a package.
type LimitPolicy struct {
	Package          string `json:"package"`
	AppName          string `json:"app_name"`
	DailyLimitMillis int64  `json:"daily_limit_ms"`
	Enabled          bool   `json:"enabled"`
}

// Validate rejects limits without a package or with a non-positive cap.
func (l LimitPolicy) Validate() error {
	if l.Package == "" {
		return fmt.Errorf("%w: limit package is required", ErrInvalidPolicy)
	}
	if l.DailyLimitMillis <= 0 {
		return fmt.Errorf("%w: limit for %s must be positive, got %d", ErrInvalidPolicy, l.Package, l.DailyLimitMillis)
	}
	return nil
}

// BlockPolicy denies a package outright while enabled.
type BlockPolicy struct {
	Package     string `json:"package"`
	AppName     string `json:"app_name"`
	Enabled     bool   `json:"enabled"`
	AddedMillis int64  `json:"added_ms"`
}

// Validate rejects blocks without a package.
func (b BlockPolicy) Validate() error {
	if b.Package == "" {
		return fmt.Errorf("%w: block package is required", ErrInvalidPolicy)
	}
	return nil
}

// SortByTotalDesc orders records by total time, largest first, with package as tiebreaker.
func SortByTotalDesc(records []UsageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TotalTimeMillis != records[j].TotalTimeMillis {
			return records[i].TotalTimeMillis > records[j].TotalTimeMillis
		}
		return records[i].Package < records[j].Package
	})
}

// SortByDateDesc orders records newest day first.
func SortByDateDesc(records []UsageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].Package < records[j].Package
	})
}
