package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface on a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the database and runs migrations
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Usage returns the usage store.
func (s *Store) Usage() storage.UsageStore { return &usageStore{db: s.db} }

// Limits returns the limit policy store.
func (s *Store) Limits() storage.LimitStore { return &limitStore{db: s.db} }

// Blocks returns the block policy store.
func (s *Store) Blocks() storage.BlockStore { return &blockStore{db: s.db} }

// runMigrations applies every migration newer than the recorded version, in order
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migration); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// migrations are applied in slice order; version is index+1
var migrations = []string{
	migration001AppUsage,
	migration002AppLimits,
	migration003BlockedApps,
}

const migration001AppUsage = `
CREATE TABLE IF NOT EXISTS app_usage (
	package TEXT NOT NULL,
	app_name TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL,
	total_time_ms INTEGER NOT NULL DEFAULT 0,
	last_used_ms INTEGER NOT NULL DEFAULT 0,
	launch_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (package, date)
);

CREATE INDEX idx_app_usage_date ON app_usage(date);
`

const migration002AppLimits = `
CREATE TABLE IF NOT EXISTS app_limits (
	package TEXT PRIMARY KEY,
	app_name TEXT NOT NULL DEFAULT '',
	daily_limit_ms INTEGER NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1
);
`

const migration003BlockedApps = `
CREATE TABLE IF NOT EXISTS blocked_apps (
	package TEXT PRIMARY KEY,
	app_name TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1,
	added_ms INTEGER NOT NULL DEFAULT 0
);
`
