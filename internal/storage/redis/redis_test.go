package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero.
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestOpenInvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon"})
	if err == nil {
		t.Fatal("expected error for invalid dial_timeout")
	}
}

func TestUsageStore_UpsertReplaces(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()

	record := storage.UsageRecord{Package: "com.example.video", AppName: "Video", Date: "2024-03-01", TotalTimeMillis: 1000, LastUsedMillis: 42}
	if err := usage.UpsertDaily(ctx, record); err != nil {
		t.Fatalf("UpsertDaily failed: %v", err)
	}

	record.TotalTimeMillis = 2500
	if err := usage.UpsertDaily(ctx, record); err != nil {
		t.Fatalf("UpsertDaily failed: %v", err)
	}

	records, err := usage.GetForDate(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("GetForDate failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].TotalTimeMillis != 2500 {
		t.Errorf("Expected TotalTimeMillis 2500, got %d", records[0].TotalTimeMillis)
	}
	if records[0].AppName != "Video" || records[0].LastUsedMillis != 42 {
		t.Errorf("Unexpected record fields: %+v", records[0])
	}
}

func TestUsageStore_Queries(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()

	err := usage.UpsertDaily(ctx,
		storage.UsageRecord{Package: "a", Date: "2024-03-01", TotalTimeMillis: 10},
		storage.UsageRecord{Package: "b", Date: "2024-03-01", TotalTimeMillis: 50},
		storage.UsageRecord{Package: "a", Date: "2024-03-02", TotalTimeMillis: 20},
		storage.UsageRecord{Package: "a", Date: "2024-03-04", TotalTimeMillis: 30},
	)
	if err != nil {
		t.Fatalf("UpsertDaily failed: %v", err)
	}

	day, err := usage.GetForDate(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("GetForDate failed: %v", err)
	}
	if len(day) != 2 || day[0].Package != "b" {
		t.Errorf("Expected b first, got %+v", day)
	}

	rng, err := usage.GetForRange(ctx, "2024-03-02", "2024-03-04")
	if err != nil {
		t.Fatalf("GetForRange failed: %v", err)
	}
	if len(rng) != 2 {
		t.Errorf("Expected 2 records in range, got %d", len(rng))
	}

	app, err := usage.GetForApp(ctx, "a", "2024-03-02")
	if err != nil {
		t.Fatalf("GetForApp failed: %v", err)
	}
	if len(app) != 2 || app[0].Date != "2024-03-04" {
		t.Errorf("Expected newest first, got %+v", app)
	}

	total, err := usage.TotalForDate(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("TotalForDate failed: %v", err)
	}
	if total != 60 {
		t.Errorf("Expected total 60, got %d", total)
	}
}

func TestUsageStore_DeleteOlderThan(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()

	err := usage.UpsertDaily(ctx,
		storage.UsageRecord{Package: "a", Date: "2024-03-01", TotalTimeMillis: 10},
		storage.UsageRecord{Package: "b", Date: "2024-03-01", TotalTimeMillis: 10},
		storage.UsageRecord{Package: "a", Date: "2024-03-02", TotalTimeMillis: 10},
	)
	if err != nil {
		t.Fatalf("UpsertDaily failed: %v", err)
	}

	deleted, err := usage.DeleteOlderThan(ctx, "2024-03-02")
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	if mr.Exists(usageKey("2024-03-01", "a")) {
		t.Error("Expected 2024-03-01 record to be gone")
	}
	if !mr.Exists(usageKey("2024-03-02", "a")) {
		t.Error("Expected 2024-03-02 record to remain")
	}
	if mr.Exists(usageIndexKey("2024-03-01")) {
		t.Error("Expected 2024-03-01 index to be gone")
	}

	app, err := usage.GetForApp(ctx, "a", "2000-01-01")
	if err != nil {
		t.Fatalf("GetForApp failed: %v", err)
	}
	if len(app) != 1 {
		t.Errorf("Expected 1 remaining app record, got %d", len(app))
	}
}

func TestLimitStore_Lifecycle(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	limits := store.Limits()

	if err := limits.Upsert(ctx, storage.LimitPolicy{Package: "a", DailyLimitMillis: -1}); !errors.Is(err, storage.ErrInvalidPolicy) {
		t.Fatalf("Expected ErrInvalidPolicy, got %v", err)
	}

	if err := limits.Upsert(ctx, storage.LimitPolicy{Package: "a", AppName: "A", DailyLimitMillis: 3_600_000, Enabled: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := limits.Upsert(ctx, storage.LimitPolicy{Package: "b", DailyLimitMillis: 60_000}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	enabled, err := limits.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Package != "a" {
		t.Errorf("Expected only a enabled, got %+v", enabled)
	}

	if err := limits.SetEnabled(ctx, "a", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	got, err := limits.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Enabled || got.DailyLimitMillis != 3_600_000 || got.AppName != "A" {
		t.Errorf("Unexpected limit after disable: %+v", got)
	}

	if err := limits.SetEnabled(ctx, "missing", true); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := limits.Delete(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := limits.Delete(ctx, "b"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	all, err := limits.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 limit, got %d", len(all))
	}
}

func TestBlockStore_Malformed(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	blocks := store.Blocks()

	if err := blocks.Upsert(ctx, storage.BlockPolicy{Package: "a", Enabled: true, AddedMillis: 1}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	mr.HSet(keyPrefix+":blocks", "broken", "{")

	enabled, err := blocks.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled failed: %v", err)
	}
	if len(enabled) != 1 {
		t.Errorf("Expected malformed row skipped, got %+v", enabled)
	}

	if _, err := blocks.Get(ctx, "broken"); !errors.Is(err, storage.ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
	if _, err := blocks.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
