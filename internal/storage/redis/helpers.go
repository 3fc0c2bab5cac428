package redis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goodtune/screentime/internal/storage"
)

func usageKey(date, pkg string) string {
	return fmt.Sprintf("%s:usage:%s:%s", keyPrefix, date, pkg)
}

func usageIndexKey(date string) string {
	return fmt.Sprintf("%s:usage:index:%s", keyPrefix, date)
}

func usageDatesKey() string {
	return keyPrefix + ":usage:dates"
}

func usageAppKey(pkg string) string {
	return fmt.Sprintf("%s:usage:app:%s", keyPrefix, pkg)
}

// dateScore maps a record date to a sortable integer score (yyyymmdd).
func dateScore(date string) (int64, error) {
	if _, err := storage.ParseDate(date); err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.ReplaceAll(date, "-", ""), 10, 64)
}

// parseUsageRecord converts a Redis hash to UsageRecord
func parseUsageRecord(data map[string]string) (*storage.UsageRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	total, err := strconv.ParseInt(data["total_time_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse total_time_ms: %v", storage.ErrMalformed, err)
	}

	lastUsed, err := strconv.ParseInt(data["last_used_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse last_used_ms: %v", storage.ErrMalformed, err)
	}

	launches, err := strconv.Atoi(data["launch_count"])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse launch_count: %v", storage.ErrMalformed, err)
	}

	return &storage.UsageRecord{
		Package:         data["package"],
		AppName:         data["app_name"],
		Date:            data["date"],
		TotalTimeMillis: total,
		LastUsedMillis:  lastUsed,
		LaunchCount:     launches,
	}, nil
}
