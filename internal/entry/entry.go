package entry

import (
	"fmt"
	"os"
	"time"
)

// Kind represents the type of filesystem entry.
type Kind uint8

const (
	KindFile  Kind = 0
	KindDir   Kind = 1
	KindOther Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// KindFromMode derives the Kind from an os.FileMode.
// Symlinks, devices, sockets and fifos all map to KindOther.
func KindFromMode(mode os.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	default:
		return KindOther
	}
}

// Entry is a canonical absolute path discovered by the walker.
type Entry struct {
	Path string
	Kind Kind
}

// Op names the operation that failed for a single entry.
type Op string

const (
	OpCanonicalize Op = "canonicalize"
	OpStat         Op = "stat"
	OpList         Op = "list"
	OpChmod        Op = "chmod"
	OpChown        Op = "chown"
)

// Failure is a recoverable error for one entry.
type Failure struct {
	Path    string
	Op      Op
	Message string
}

// Error lets a Failure be aggregated as an error. Apply failures already
// name their path in Message.
func (f Failure) Error() string {
	switch f.Op {
	case OpChmod, OpChown:
		return f.Message
	}
	return fmt.Sprintf("%s %s: %s", f.Op, f.Path, f.Message)
}

// Status is the outcome of applying permissions to an entry.
type Status uint8

const (
	StatusApplied Status = 0
	StatusFailed  Status = 1
	StatusPlanned Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusFailed:
		return "failed"
	default:
		return "planned"
	}
}

// Applied records the permissions requested for an entry and how it went.
type Applied struct {
	Path   string
	Kind   Kind
	Mode   os.FileMode
	UID    uint32
	GID    uint32
	Status Status
}

// RunMeta holds metadata about a run.
type RunMeta struct {
	RootPath     string
	User         string
	Group        string
	UID          uint32
	GID          uint32
	FileMode     os.FileMode
	DirMode      os.FileMode
	DryRun       bool
	StartTime    time.Time
	EndTime      time.Time
	FileCount    int64
	DirCount     int64
	FailureCount int64
}
