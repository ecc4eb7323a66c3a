package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const (
	journalPrefix = "filepwn-"
	journalSuffix = ".db"
	latestName    = "latest.db"
	lockName      = ".filepwn.lock"
)

// ErrLocked is returned when another run holds the journal directory.
var ErrLocked = errors.New("another run is recording to this journal directory")

// Journal is an open run journal backed by a temporary database file.
type Journal struct {
	*Writer

	db       *sql.DB
	tempPath string
}

// Manager owns a directory of run journals: it serializes runs with a lock,
// publishes finished journals atomically and prunes old ones.
type Manager struct {
	outputDir string
	retention int
	batchSize int
	lock      *flock.Flock
	log       *zap.Logger
}

// NewManager creates a journal manager. A retention of zero keeps every journal.
func NewManager(outputDir string, retention int, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		outputDir: outputDir,
		retention: retention,
		batchSize: DefaultBatchSize,
		log:       log,
	}
}

// SetBatchSize sets how many rows are buffered before each write.
func (m *Manager) SetBatchSize(n int) {
	m.batchSize = n
}

// Open locks the directory and starts a new journal in a temporary file.
func (m *Manager) Open() (*Journal, error) {
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	if err := m.acquireLock(); err != nil {
		return nil, err
	}

	tempPath := filepath.Join(m.outputDir, fmt.Sprintf(".filepwn-temp-%d.db", time.Now().UnixNano()))
	database, err := sql.Open("sqlite", tempPath)
	if err != nil {
		m.releaseLock()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	cleanup := func() {
		database.Close()
		os.Remove(tempPath)
		m.releaseLock()
	}

	if err := InitSchema(database); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := ApplyWritePragmas(database); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	w, err := NewWriter(database, m.batchSize)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &Journal{Writer: w, db: database, tempPath: tempPath}, nil
}

// Commit finalizes j, renames it into place, points latest.db at it and
// prunes old journals. The lock is released in every case.
func (m *Manager) Commit(j *Journal) (string, error) {
	defer m.releaseLock()

	fail := func(err error) (string, error) {
		j.Close()
		j.db.Close()
		os.Remove(j.tempPath)
		return "", err
	}

	if err := j.Flush(); err != nil {
		return fail(err)
	}
	if err := BuildIndexes(j.db); err != nil {
		return fail(fmt.Errorf("failed to build indexes: %w", err))
	}
	if err := Finalize(j.db); err != nil {
		return fail(fmt.Errorf("failed to finalize database: %w", err))
	}

	j.Close()
	j.db.Close()

	finalName := journalPrefix + time.Now().Format("20060102-150405.000") + journalSuffix
	finalPath := filepath.Join(m.outputDir, finalName)
	if err := os.Rename(j.tempPath, finalPath); err != nil {
		os.Remove(j.tempPath)
		return "", fmt.Errorf("failed to rename database: %w", err)
	}

	// Update latest.db atomically via temp symlink + rename
	latestPath := filepath.Join(m.outputDir, latestName)
	tempLink := filepath.Join(m.outputDir, ".latest.db.tmp")
	os.Remove(tempLink)
	if err := os.Symlink(finalName, tempLink); err == nil {
		if err := os.Rename(tempLink, latestPath); err != nil {
			os.Remove(tempLink)
			m.log.Warn("failed to update latest journal link", zap.Error(err))
		}
	} else {
		m.log.Warn("failed to create latest journal link", zap.Error(err))
	}

	if err := m.pruneOldJournals(); err != nil {
		m.log.Warn("failed to prune old journals", zap.Error(err))
	}

	return finalPath, nil
}

// Abort discards j without publishing it.
func (m *Manager) Abort(j *Journal) {
	defer m.releaseLock()
	j.Close()
	j.db.Close()
	os.Remove(j.tempPath)
}

func (m *Manager) acquireLock() error {
	lock := flock.New(filepath.Join(m.outputDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	m.lock = lock
	return nil
}

func (m *Manager) releaseLock() {
	if m.lock != nil {
		m.lock.Unlock()
		m.lock = nil
	}
}

func (m *Manager) pruneOldJournals() error {
	if m.retention <= 0 {
		return nil
	}

	journals, err := m.ListJournals()
	if err != nil {
		return err
	}

	for len(journals) > m.retention {
		if err := os.Remove(journals[0]); err != nil {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(journals[0]), err)
		}
		journals = journals[1:]
	}

	return nil
}

// GetLatest returns the path to the latest journal.
func (m *Manager) GetLatest() (string, error) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(m.outputDir, latestName))
	if err != nil {
		return "", fmt.Errorf("no latest journal found: %w", err)
	}
	return resolved, nil
}

// ListJournals returns all published journals, oldest first.
func (m *Manager) ListJournals() ([]string, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, err
	}

	var journals []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), journalPrefix) && strings.HasSuffix(e.Name(), journalSuffix) {
			journals = append(journals, filepath.Join(m.outputDir, e.Name()))
		}
	}

	// Names embed the timestamp, so lexical order is chronological
	sort.Strings(journals)
	return journals, nil
}
