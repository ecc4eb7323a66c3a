package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/michaelscutari/filepwn/internal/entry"
)

const insertMetaSQL = `INSERT INTO run_meta (id, root_path, user_name, group_name, uid, gid, file_mode, dir_mode, dry_run, start_time) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
const insertEntrySQL = `INSERT INTO entries (path, kind, mode, uid, gid, status) VALUES (?, ?, ?, ?, ?, ?)`
const insertFailureSQL = `INSERT INTO failures (path, op, message) VALUES (?, ?, ?)`
const finishMetaSQL = `UPDATE run_meta SET end_time = ?, file_count = ?, dir_count = ?, failure_count = ? WHERE id = 1`

// DefaultBatchSize is the number of rows buffered before a flush.
const DefaultBatchSize = 1000

// Writer buffers run records and writes them to the database in
// transactions. It is not safe for concurrent use.
type Writer struct {
	db        *sql.DB
	batchSize int

	entryBatch   []entry.Applied
	failureBatch []entry.Failure

	entryStmt   *sql.Stmt
	failureStmt *sql.Stmt
}

// NewWriter prepares insert statements against an initialized database.
func NewWriter(db *sql.DB, batchSize int) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	entryStmt, err := db.Prepare(insertEntrySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare entry statement: %w", err)
	}
	failureStmt, err := db.Prepare(insertFailureSQL)
	if err != nil {
		entryStmt.Close()
		return nil, fmt.Errorf("failed to prepare failure statement: %w", err)
	}

	return &Writer{
		db:           db,
		batchSize:    batchSize,
		entryBatch:   make([]entry.Applied, 0, batchSize),
		failureBatch: make([]entry.Failure, 0, 100),
		entryStmt:    entryStmt,
		failureStmt:  failureStmt,
	}, nil
}

// Begin records the run parameters.
func (w *Writer) Begin(meta entry.RunMeta) error {
	_, err := w.db.Exec(insertMetaSQL,
		meta.RootPath, meta.User, meta.Group, meta.UID, meta.GID,
		uint32(meta.FileMode), uint32(meta.DirMode), meta.DryRun, meta.StartTime.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run metadata: %w", err)
	}
	return nil
}

// RecordEntry buffers the outcome for one entry.
func (w *Writer) RecordEntry(a entry.Applied) error {
	w.entryBatch = append(w.entryBatch, a)
	if len(w.entryBatch) >= w.batchSize {
		return w.flushEntries()
	}
	return nil
}

// RecordFailure buffers one per-entry failure.
func (w *Writer) RecordFailure(f entry.Failure) error {
	w.failureBatch = append(w.failureBatch, f)
	if len(w.failureBatch) >= w.batchSize {
		return w.flushFailures()
	}
	return nil
}

// Finish flushes pending rows and stores the final counts.
func (w *Writer) Finish(meta entry.RunMeta) error {
	if err := w.Flush(); err != nil {
		return err
	}
	end := meta.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	_, err := w.db.Exec(finishMetaSQL, end.Unix(), meta.FileCount, meta.DirCount, meta.FailureCount)
	if err != nil {
		return fmt.Errorf("failed to update run metadata: %w", err)
	}
	return nil
}

// Flush writes all buffered rows.
func (w *Writer) Flush() error {
	if err := w.flushEntries(); err != nil {
		return err
	}
	return w.flushFailures()
}

// Close releases prepared statements. Buffered rows are not flushed.
func (w *Writer) Close() error {
	w.entryStmt.Close()
	return w.failureStmt.Close()
}

func (w *Writer) flushEntries() error {
	if len(w.entryBatch) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(w.entryStmt)
	for _, a := range w.entryBatch {
		_, err := stmt.Exec(a.Path, a.Kind, uint32(a.Mode), a.UID, a.GID, a.Status)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert entry %q: %w", a.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.entryBatch = w.entryBatch[:0]
	return nil
}

func (w *Writer) flushFailures() error {
	if len(w.failureBatch) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin failure transaction: %w", err)
	}

	stmt := tx.Stmt(w.failureStmt)
	for _, f := range w.failureBatch {
		_, err := stmt.Exec(f.Path, string(f.Op), f.Message)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert failure for %q: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit failure transaction: %w", err)
	}

	w.failureBatch = w.failureBatch[:0]
	return nil
}
