package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	upsertUsage       = redis.NewScript(upsertUsageScript)
	deleteUsageBefore = redis.NewScript(deleteUsageBeforeScript)
)

type usageStore struct {
	client *redis.Client
}

// UpsertDaily replaces each record atomically, one script call per record
func (s *usageStore) UpsertDaily(ctx context.Context, records ...storage.UsageRecord) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}

	for _, record := range records {
		score, err := dateScore(record.Date)
		if err != nil {
			return err
		}

		keys := []string{
			usageKey(record.Date, record.Package),
			usageIndexKey(record.Date),
			usageDatesKey(),
			usageAppKey(record.Package),
		}
		args := []interface{}{
			record.Package,
			record.AppName,
			record.Date,
			record.TotalTimeMillis,
			record.LastUsedMillis,
			record.LaunchCount,
			score,
		}

		if err := upsertUsage.Run(ctx, s.client, keys, args...).Err(); err != nil {
			return fmt.Errorf("upsert usage %s/%s: %w", record.Date, record.Package, err)
		}
	}
	return nil
}

// GetForDate returns all records for a date, largest total first
func (s *usageStore) GetForDate(ctx context.Context, date string) ([]storage.UsageRecord, error) {
	packages, err := s.client.SMembers(ctx, usageIndexKey(date)).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(packages))
	for i, pkg := range packages {
		keys[i] = usageKey(date, pkg)
	}

	records, err := s.fetch(ctx, keys)
	if err != nil {
		return nil, err
	}
	storage.SortByTotalDesc(records)
	return records, nil
}

// GetForRange returns all records between two dates inclusive, oldest day first
func (s *usageStore) GetForRange(ctx context.Context, start, end string) ([]storage.UsageRecord, error) {
	lo, err := dateScore(start)
	if err != nil {
		return nil, err
	}
	hi, err := dateScore(end)
	if err != nil {
		return nil, err
	}

	dates, err := s.client.ZRangeByScore(ctx, usageDatesKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(lo, 10),
		Max: strconv.FormatInt(hi, 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	records := make([]storage.UsageRecord, 0)
	for _, date := range dates {
		day, err := s.GetForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		records = append(records, day...)
	}
	return records, nil
}

// GetForApp returns one package's records on or after since, newest first
func (s *usageStore) GetForApp(ctx context.Context, pkg, since string) ([]storage.UsageRecord, error) {
	lo, err := dateScore(since)
	if err != nil {
		return nil, err
	}

	dates, err := s.client.ZRevRangeByScore(ctx, usageAppKey(pkg), &redis.ZRangeBy{
		Min: strconv.FormatInt(lo, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(dates))
	for i, date := range dates {
		keys[i] = usageKey(date, pkg)
	}
	return s.fetch(ctx, keys)
}

// TotalForDate sums the totals of every record for a date
func (s *usageStore) TotalForDate(ctx context.Context, date string) (int64, error) {
	records, err := s.GetForDate(ctx, date)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, record := range records {
		total += record.TotalTimeMillis
	}
	return total, nil
}

// DeleteOlderThan removes every record dated strictly before cutoff
func (s *usageStore) DeleteOlderThan(ctx context.Context, cutoff string) (int, error) {
	score, err := dateScore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}

	deleted, err := deleteUsageBefore.Run(ctx, s.client,
		[]string{usageDatesKey()},
		score, keyPrefix+":usage:",
	).Int()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// fetch loads usage hashes in one pipeline, preserving key order and skipping bad rows
func (s *usageStore) fetch(ctx context.Context, keys []string) ([]storage.UsageRecord, error) {
	if len(keys) == 0 {
		return []storage.UsageRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]storage.UsageRecord, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		record, err := parseUsageRecord(data)
		if err == nil {
			records = append(records, *record)
		}
	}
	return records, nil
}
