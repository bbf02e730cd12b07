// Package cache is the sqlite-backed persistence layer backing the
// combination evaluator's strike-set/leg-pair memoization and the
// credential store, so a process restart doesn't cold-start a scan cycle
// against an upstream that's still rate-limit-shy. The instrument store's
// CSV file is written by internal/instruments itself, not through here.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"boxscan/internal/logger"

	_ "modernc.org/sqlite"
)

const tag = "CACHE"

// DB wraps a SQLite connection shared by the strike-set/leg-pair cache and
// the credential store.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success(tag, fmt.Sprintf("opened %s", path))
	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.sql.Close() }

// SQL returns the underlying *sql.DB, for collaborators (internal/auth)
// that need their own tables on the same connection/schema.
func (d *DB) SQL() *sql.DB { return d.sql }

func (d *DB) migrate() error {
	var version int
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS strike_set (
				combo_key  TEXT PRIMARY KEY,
				strikes    TEXT NOT NULL,
				cached_at  INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS leg_pair (
				combo_key    TEXT NOT NULL,
				strike       REAL NOT NULL,
				call_token   INTEGER,
				put_token    INTEGER,
				cached_at    INTEGER NOT NULL,
				PRIMARY KEY (combo_key, strike)
			);

			CREATE TABLE IF NOT EXISTS quote_snapshot (
				token       INTEGER PRIMARY KEY,
				last_price  REAL NOT NULL,
				fetched_at  INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS credential (
				id           INTEGER PRIMARY KEY CHECK (id = 1),
				access_token TEXT NOT NULL,
				expires_at   INTEGER NOT NULL,
				valid        INTEGER NOT NULL DEFAULT 1
			);

			INSERT INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return err
		}
	}
	return nil
}

func unixNow() int64 { return time.Now().Unix() }
