package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
)

const usageColumns = `package, app_name, date, total_time_ms, last_used_ms, launch_count`

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) UpsertDaily(ctx context.Context, records ...storage.UsageRecord) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO app_usage (`+usageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Package, r.AppName, r.Date, r.TotalTimeMillis, r.LastUsedMillis, r.LaunchCount); err != nil {
			return fmt.Errorf("upsert usage %s/%s: %w", r.Date, r.Package, err)
		}
	}
	return tx.Commit()
}

func (s *usageStore) GetForDate(ctx context.Context, date string) ([]storage.UsageRecord, error) {
	return s.query(ctx, `SELECT `+usageColumns+` FROM app_usage WHERE date = ? ORDER BY total_time_ms DESC, package`, date)
}

func (s *usageStore) GetForRange(ctx context.Context, start, end string) ([]storage.UsageRecord, error) {
	return s.query(ctx, `SELECT `+usageColumns+` FROM app_usage WHERE date BETWEEN ? AND ? ORDER BY date, total_time_ms DESC, package`, start, end)
}

func (s *usageStore) GetForApp(ctx context.Context, pkg, since string) ([]storage.UsageRecord, error) {
	return s.query(ctx, `SELECT `+usageColumns+` FROM app_usage WHERE package = ? AND date >= ? ORDER BY date DESC`, pkg, since)
}

func (s *usageStore) TotalForDate(ctx context.Context, date string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_time_ms), 0) FROM app_usage WHERE date = ?`, date).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total for %s: %w", date, err)
	}
	return total, nil
}

func (s *usageStore) DeleteOlderThan(ctx context.Context, cutoff string) (int, error) {
	if _, err := storage.ParseDate(cutoff); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_usage WHERE date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete usage before %s: %w", cutoff, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *usageStore) query(ctx context.Context, query string, args ...any) ([]storage.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]storage.UsageRecord, 0)
	for rows.Next() {
		var r storage.UsageRecord
		if err := rows.Scan(&r.Package, &r.AppName, &r.Date, &r.TotalTimeMillis, &r.LastUsedMillis, &r.LaunchCount); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
