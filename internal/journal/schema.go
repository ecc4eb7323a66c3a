package journal

import (
	"database/sql"
	"fmt"
)

const runMetaTableDDL = `
CREATE TABLE IF NOT EXISTS run_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    root_path TEXT NOT NULL,
    user_name TEXT NOT NULL,
    group_name TEXT NOT NULL,
    uid INTEGER NOT NULL,
    gid INTEGER NOT NULL,
    file_mode INTEGER NOT NULL,
    dir_mode INTEGER NOT NULL,
    dry_run INTEGER NOT NULL DEFAULT 0,
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    file_count INTEGER DEFAULT 0,
    dir_count INTEGER DEFAULT 0,
    failure_count INTEGER DEFAULT 0
);
`

const entriesTableDDL = `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL,
    kind INTEGER NOT NULL,
    mode INTEGER NOT NULL,
    uid INTEGER NOT NULL,
    gid INTEGER NOT NULL,
    status INTEGER NOT NULL
);
`

const failuresTableDDL = `
CREATE TABLE IF NOT EXISTS failures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    op TEXT NOT NULL,
    message TEXT NOT NULL
);
`

const entriesPathIndexDDL = `CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path);`
const entriesStatusIndexDDL = `CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);`
const failuresPathIndexDDL = `CREATE INDEX IF NOT EXISTS idx_failures_path ON failures(path);`

// InitSchema creates all tables in the database.
func InitSchema(db *sql.DB) error {
	ddls := []string{
		runMetaTableDDL,
		entriesTableDDL,
		failuresTableDDL,
	}

	for _, ddl := range ddls {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}

// ApplyWritePragmas configures SQLite for bulk inserts during a run.
func ApplyWritePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// ApplyReadPragmas configures SQLite for read-only reporting.
func ApplyReadPragmas(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("failed to apply pragma %q: %w", "PRAGMA query_only = ON", err)
	}
	return nil
}

// BuildIndexes creates indexes after the run has been recorded.
func BuildIndexes(db *sql.DB) error {
	indexes := []string{
		entriesPathIndexDDL,
		entriesStatusIndexDDL,
		failuresPathIndexDDL,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Finalize prepares the database for read-only access.
func Finalize(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}

	// Switch from WAL to DELETE so the journal is a single file
	if _, err := db.Exec("PRAGMA journal_mode = DELETE"); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}

	return nil
}
