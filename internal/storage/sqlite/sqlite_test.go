package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "screentime.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screentime.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	var version int
	require.NoError(t, second.db.QueryRow(`SELECT MAX(version) FROM migrations`).Scan(&version))
	require.Equal(t, len(migrations), version)
}

func TestUsageStore(t *testing.T) {
	ctx := context.Background()
	usage := openTestStore(t).Usage()

	require.NoError(t, usage.UpsertDaily(ctx,
		storage.UsageRecord{Package: "a", AppName: "A", Date: "2024-02-01", TotalTimeMillis: 100},
		storage.UsageRecord{Package: "b", AppName: "B", Date: "2024-02-01", TotalTimeMillis: 300},
		storage.UsageRecord{Package: "a", AppName: "A", Date: "2024-02-02", TotalTimeMillis: 200},
	))
	require.NoError(t, usage.UpsertDaily(ctx,
		storage.UsageRecord{Package: "a", AppName: "A", Date: "2024-02-01", TotalTimeMillis: 150},
	))

	day, err := usage.GetForDate(ctx, "2024-02-01")
	require.NoError(t, err)
	require.Len(t, day, 2)
	require.Equal(t, "b", day[0].Package)
	require.EqualValues(t, 150, day[1].TotalTimeMillis)

	total, err := usage.TotalForDate(ctx, "2024-02-01")
	require.NoError(t, err)
	require.EqualValues(t, 450, total)

	app, err := usage.GetForApp(ctx, "a", "2024-02-01")
	require.NoError(t, err)
	require.Len(t, app, 2)
	require.Equal(t, "2024-02-02", app[0].Date)

	rng, err := usage.GetForRange(ctx, "2024-02-02", "2024-02-02")
	require.NoError(t, err)
	require.Len(t, rng, 1)

	deleted, err := usage.DeleteOlderThan(ctx, "2024-02-02")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	rest, err := usage.GetForRange(ctx, "2000-01-01", "2100-01-01")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "2024-02-02", rest[0].Date)
}

func TestPolicyStores(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	limits := store.Limits()
	require.ErrorIs(t, limits.Upsert(ctx, storage.LimitPolicy{Package: "a"}), storage.ErrInvalidPolicy)
	require.NoError(t, limits.Upsert(ctx, storage.LimitPolicy{Package: "a", DailyLimitMillis: 1000, Enabled: true}))
	require.NoError(t, limits.Upsert(ctx, storage.LimitPolicy{Package: "b", DailyLimitMillis: 1000, Enabled: false}))

	enabled, err := limits.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	require.NoError(t, limits.SetEnabled(ctx, "b", true))
	require.ErrorIs(t, limits.SetEnabled(ctx, "zz", true), storage.ErrNotFound)

	_, err = store.db.Exec(`INSERT INTO app_limits (package, daily_limit_ms, enabled) VALUES ('bad', 0, 1)`)
	require.NoError(t, err)
	enabled, err = limits.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	_, err = limits.Get(ctx, "bad")
	require.ErrorIs(t, err, storage.ErrMalformed)

	blocks := store.Blocks()
	require.NoError(t, blocks.Upsert(ctx, storage.BlockPolicy{Package: "x", Enabled: true, AddedMillis: 7}))
	got, err := blocks.Get(ctx, "x")
	require.NoError(t, err)
	require.EqualValues(t, 7, got.AddedMillis)

	require.NoError(t, blocks.SetEnabled(ctx, "x", false))
	listed, err := blocks.ListEnabled(ctx)
	require.NoError(t, err)
	require.Empty(t, listed)

	require.NoError(t, blocks.Delete(ctx, "x"))
	require.ErrorIs(t, blocks.Delete(ctx, "x"), storage.ErrNotFound)
}
