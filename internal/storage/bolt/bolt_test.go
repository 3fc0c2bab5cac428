package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

func TestUsageStoreUpsertReplaces(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()

	first := storage.UsageRecord{Package: "com.example.game", AppName: "Game", Date: "2024-01-02", TotalTimeMillis: 60_000}
	second := first
	second.TotalTimeMillis = 90_000

	if err := usage.UpsertDaily(ctx, first); err != nil {
		t.Fatalf("upsert first: %v", err)
	}
	if err := usage.UpsertDaily(ctx, second); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	records, err := usage.GetForDate(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("get for date: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TotalTimeMillis != 90_000 {
		t.Fatalf("expected later total 90000, got %d", records[0].TotalTimeMillis)
	}
}

func TestUsageStoreQueries(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()

	seed := []storage.UsageRecord{
		{Package: "a", Date: "2024-01-01", TotalTimeMillis: 10},
		{Package: "b", Date: "2024-01-01", TotalTimeMillis: 30},
		{Package: "a", Date: "2024-01-02", TotalTimeMillis: 20},
		{Package: "c", Date: "2024-01-02", TotalTimeMillis: 5},
		{Package: "a", Date: "2024-01-03", TotalTimeMillis: 40},
	}
	if err := usage.UpsertDaily(ctx, seed...); err != nil {
		t.Fatalf("seed: %v", err)
	}

	day, err := usage.GetForDate(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("get for date: %v", err)
	}
	if len(day) != 2 || day[0].Package != "b" {
		t.Fatalf("expected b first on 2024-01-01, got %+v", day)
	}

	rng, err := usage.GetForRange(ctx, "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("get for range: %v", err)
	}
	if len(rng) != 3 {
		t.Fatalf("expected 3 records in range, got %d", len(rng))
	}

	app, err := usage.GetForApp(ctx, "a", "2024-01-02")
	if err != nil {
		t.Fatalf("get for app: %v", err)
	}
	if len(app) != 2 || app[0].Date != "2024-01-03" || app[1].Date != "2024-01-02" {
		t.Fatalf("expected newest first from 2024-01-02, got %+v", app)
	}

	total, err := usage.TotalForDate(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("total for date: %v", err)
	}
	if total != 25 {
		t.Fatalf("expected total 25, got %d", total)
	}
}

func TestUsageStoreDeleteOlderThan(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()

	if err := usage.UpsertDaily(ctx,
		storage.UsageRecord{Package: "a", Date: "2024-01-01", TotalTimeMillis: 1},
		storage.UsageRecord{Package: "b", Date: "2024-01-02", TotalTimeMillis: 1},
		storage.UsageRecord{Package: "a", Date: "2024-01-03", TotalTimeMillis: 1},
	); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := usage.DeleteOlderThan(ctx, "2024-01-03")
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	remaining, err := usage.GetForRange(ctx, "2000-01-01", "2100-01-01")
	if err != nil {
		t.Fatalf("get for range: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Date != "2024-01-03" {
		t.Fatalf("expected only 2024-01-03 to remain, got %+v", remaining)
	}

	app, err := usage.GetForApp(ctx, "a", "2000-01-01")
	if err != nil {
		t.Fatalf("get for app: %v", err)
	}
	if len(app) != 1 {
		t.Fatalf("expected app index pruned to 1 entry, got %d", len(app))
	}
}

func TestUsageStoreRejectsInvalidRecord(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	err := store.Usage().UpsertDaily(context.Background(), storage.UsageRecord{Package: "a", Date: "yesterday"})
	if err == nil {
		t.Fatalf("expected error for bad date")
	}
}

func TestLimitStore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	limits := store.Limits()

	if err := limits.Upsert(ctx, storage.LimitPolicy{Package: "a", DailyLimitMillis: 0}); !errors.Is(err, storage.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}

	for _, limit := range []storage.LimitPolicy{
		{Package: "a", DailyLimitMillis: 1000, Enabled: true},
		{Package: "b", DailyLimitMillis: 2000, Enabled: false},
	} {
		if err := limits.Upsert(ctx, limit); err != nil {
			t.Fatalf("upsert limit: %v", err)
		}
	}

	enabled, err := limits.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Package != "a" {
		t.Fatalf("expected only a enabled, got %+v", enabled)
	}

	if err := limits.SetEnabled(ctx, "b", true); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	got, err := limits.Get(ctx, "b")
	if err != nil {
		t.Fatalf("get limit: %v", err)
	}
	if !got.Enabled || got.DailyLimitMillis != 2000 {
		t.Fatalf("unexpected limit after enable: %+v", got)
	}

	if err := limits.SetEnabled(ctx, "missing", true); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := limits.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete limit: %v", err)
	}
	if _, err := limits.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBlockStoreSkipsMalformedRows(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	blocks := store.Blocks()

	if err := blocks.Upsert(ctx, storage.BlockPolicy{Package: "a", Enabled: true}); err != nil {
		t.Fatalf("upsert block: %v", err)
	}
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketBlocks)).Put([]byte("broken"), []byte("{not json"))
	})
	if err != nil {
		t.Fatalf("write malformed row: %v", err)
	}

	enabled, err := blocks.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 1 {
		t.Fatalf("expected malformed row skipped, got %+v", enabled)
	}

	if _, err := blocks.Get(ctx, "broken"); !errors.Is(err, storage.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "screentime.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
