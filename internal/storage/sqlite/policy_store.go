package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
)

type limitStore struct {
	db *sql.DB
}

// Rows with a non-positive limit are malformed and never listed.
func (s *limitStore) ListEnabled(ctx context.Context) ([]storage.LimitPolicy, error) {
	return s.query(ctx, `SELECT package, app_name, daily_limit_ms, enabled FROM app_limits WHERE enabled = 1 AND daily_limit_ms > 0 ORDER BY package`)
}

func (s *limitStore) List(ctx context.Context) ([]storage.LimitPolicy, error) {
	return s.query(ctx, `SELECT package, app_name, daily_limit_ms, enabled FROM app_limits WHERE daily_limit_ms > 0 ORDER BY package`)
}

func (s *limitStore) Get(ctx context.Context, pkg string) (*storage.LimitPolicy, error) {
	var l storage.LimitPolicy
	err := s.db.QueryRowContext(ctx, `SELECT package, app_name, daily_limit_ms, enabled FROM app_limits WHERE package = ?`, pkg).
		Scan(&l.Package, &l.AppName, &l.DailyLimitMillis, &l.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get limit %s: %w", pkg, err)
	}
	if l.DailyLimitMillis <= 0 {
		return nil, fmt.Errorf("%w: limit %s has non-positive cap", storage.ErrMalformed, pkg)
	}
	return &l, nil
}

func (s *limitStore) Upsert(ctx context.Context, limit storage.LimitPolicy) error {
	if err := limit.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO app_limits (package, app_name, daily_limit_ms, enabled) VALUES (?, ?, ?, ?)`,
		limit.Package, limit.AppName, limit.DailyLimitMillis, limit.Enabled)
	if err != nil {
		return fmt.Errorf("upsert limit %s: %w", limit.Package, err)
	}
	return nil
}

func (s *limitStore) Delete(ctx context.Context, pkg string) error {
	return execOne(ctx, s.db, `DELETE FROM app_limits WHERE package = ?`, pkg)
}

func (s *limitStore) SetEnabled(ctx context.Context, pkg string, enabled bool) error {
	return execOne(ctx, s.db, `UPDATE app_limits SET enabled = ? WHERE package = ?`, enabled, pkg)
}

func (s *limitStore) query(ctx context.Context, query string) ([]storage.LimitPolicy, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query limits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	limits := make([]storage.LimitPolicy, 0)
	for rows.Next() {
		var l storage.LimitPolicy
		if err := rows.Scan(&l.Package, &l.AppName, &l.DailyLimitMillis, &l.Enabled); err != nil {
			return nil, fmt.Errorf("scan limit: %w", err)
		}
		limits = append(limits, l)
	}
	return limits, rows.Err()
}

type blockStore struct {
	db *sql.DB
}

func (s *blockStore) ListEnabled(ctx context.Context) ([]storage.BlockPolicy, error) {
	return s.query(ctx, `SELECT package, app_name, enabled, added_ms FROM blocked_apps WHERE enabled = 1 ORDER BY package`)
}

func (s *blockStore) List(ctx context.Context) ([]storage.BlockPolicy, error) {
	return s.query(ctx, `SELECT package, app_name, enabled, added_ms FROM blocked_apps ORDER BY package`)
}

func (s *blockStore) Get(ctx context.Context, pkg string) (*storage.BlockPolicy, error) {
	var b storage.BlockPolicy
	err := s.db.QueryRowContext(ctx, `SELECT package, app_name, enabled, added_ms FROM blocked_apps WHERE package = ?`, pkg).
		Scan(&b.Package, &b.AppName, &b.Enabled, &b.AddedMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", pkg, err)
	}
	return &b, nil
}

func (s *blockStore) Upsert(ctx context.Context, block storage.BlockPolicy) error {
	if err := block.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blocked_apps (package, app_name, enabled, added_ms) VALUES (?, ?, ?, ?)`,
		block.Package, block.AppName, block.Enabled, block.AddedMillis)
	if err != nil {
		return fmt.Errorf("upsert block %s: %w", block.Package, err)
	}
	return nil
}

func (s *blockStore) Delete(ctx context.Context, pkg string) error {
	return execOne(ctx, s.db, `DELETE FROM blocked_apps WHERE package = ?`, pkg)
}

func (s *blockStore) SetEnabled(ctx context.Context, pkg string, enabled bool) error {
	return execOne(ctx, s.db, `UPDATE blocked_apps SET enabled = ? WHERE package = ?`, enabled, pkg)
}

func (s *blockStore) query(ctx context.Context, query string) ([]storage.BlockPolicy, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	blocks := make([]storage.BlockPolicy, 0)
	for rows.Next() {
		var b storage.BlockPolicy
		if err := rows.Scan(&b.Package, &b.AppName, &b.Enabled, &b.AddedMillis); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// execOne runs a statement that must touch exactly one existing row.
func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
