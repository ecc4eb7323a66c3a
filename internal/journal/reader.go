package journal

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/michaelscutari/filepwn/internal/entry"
	"github.com/michaelscutari/filepwn/internal/pathutil"
)

// GetRunMeta retrieves run metadata.
func GetRunMeta(db *sql.DB) (*entry.RunMeta, error) {
	var m entry.RunMeta
	var fileMode, dirMode uint32
	var startTime, endTime int64

	err := db.QueryRow(`
		SELECT root_path, user_name, group_name, uid, gid, file_mode, dir_mode, dry_run,
		       start_time, COALESCE(end_time, 0), file_count, dir_count, failure_count
		FROM run_meta WHERE id = 1
	`).Scan(&m.RootPath, &m.User, &m.Group, &m.UID, &m.GID, &fileMode, &dirMode, &m.DryRun,
		&startTime, &endTime, &m.FileCount, &m.DirCount, &m.FailureCount)
	if err != nil {
		return nil, err
	}

	m.FileMode = os.FileMode(fileMode)
	m.DirMode = os.FileMode(dirMode)
	m.StartTime = time.Unix(startTime, 0)
	if endTime > 0 {
		m.EndTime = time.Unix(endTime, 0)
	}

	return &m, nil
}

// LoadFailures returns up to limit failures in the order they were recorded.
func LoadFailures(db *sql.DB, limit int) ([]entry.Failure, error) {
	rows, err := db.Query(`SELECT path, op, message FROM failures ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var failures []entry.Failure
	for rows.Next() {
		var f entry.Failure
		var op string
		if err := rows.Scan(&f.Path, &op, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		f.Op = entry.Op(op)
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

// CountByStatus returns how many entries were recorded with each status.
func CountByStatus(db *sql.DB) (map[entry.Status]int64, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[entry.Status]int64)
	for rows.Next() {
		var status entry.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// GetEntry returns the recorded outcome for path, or nil if none exists.
func GetEntry(db *sql.DB, path string) (*entry.Applied, error) {
	path = pathutil.Normalize(path)
	var a entry.Applied
	var mode uint32

	err := db.QueryRow(`
		SELECT path, kind, mode, uid, gid, status FROM entries
		WHERE path = ? ORDER BY id DESC LIMIT 1
	`, path).Scan(&a.Path, &a.Kind, &mode, &a.UID, &a.GID, &a.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Mode = os.FileMode(mode)
	return &a, nil
}
