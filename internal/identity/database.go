// Package identity parses colon-delimited account and group databases
// (passwd(5) and group(5) layout) into name to numeric id mappings.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const (
	// DefaultPasswdPath is the system account database.
	DefaultPasswdPath = "/etc/passwd"
	// DefaultGroupPath is the system group database.
	DefaultGroupPath = "/etc/group"
)

const (
	nameField = 0
	idField   = 2
	minFields = 3
)

var (
	ErrDatabaseUnreadable     = errors.New("identity database unreadable")
	ErrMalformedIdentityField = errors.New("malformed identity field")

	errEmptyName = errors.New("empty name")
)

// UnreadableError reports a database that could not be opened or read.
type UnreadableError struct {
	Path string
	Err  error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("read identity database %s: %v", e.Path, e.Err)
}

func (e *UnreadableError) Unwrap() []error {
	return []error{ErrDatabaseUnreadable, e.Err}
}

// MalformedFieldError reports a record with an empty name, or whose id
// field is missing or not an unsigned integer. Line is 1-based and counts
// blank lines.
type MalformedFieldError struct {
	Name string
	Line int
	Err  error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("line %d: malformed record %q: %v", e.Line, e.Name, e.Err)
}

func (e *MalformedFieldError) Unwrap() []error {
	return []error{ErrMalformedIdentityField, e.Err}
}

// Database maps names to numeric ids.
type Database map[string]uint32

// Lookup returns the id recorded for name.
func (d Database) Lookup(name string) (uint32, bool) {
	id, ok := d[name]
	return id, ok
}

// Load reads and parses the database at path.
func Load(fsys afero.Fs, path string) (Database, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, &UnreadableError{Path: path, Err: err}
	}
	db, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return db, nil
}

// Parse builds a Database from database text. Blank lines are skipped and
// a name seen twice keeps the later id. Any malformed record fails the
// whole parse.
func Parse(content string) (Database, error) {
	db := make(Database)
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, ":")
		name := fields[nameField]
		if len(fields) < minFields {
			return nil, &MalformedFieldError{
				Name: name,
				Line: i + 1,
				Err:  fmt.Errorf("expected at least %d fields, got %d", minFields, len(fields)),
			}
		}

		if name == "" {
			return nil, &MalformedFieldError{Name: name, Line: i + 1, Err: errEmptyName}
		}

		id, err := strconv.ParseUint(fields[idField], 10, 32)
		if err != nil {
			return nil, &MalformedFieldError{Name: name, Line: i + 1, Err: err}
		}
		db[name] = uint32(id)
	}
	return db, nil
}
