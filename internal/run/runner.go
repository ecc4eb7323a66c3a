// Package run resolves the requested owner and modes, walks the tree and
// applies them to every entry, isolating failures per entry.
package run

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/michaelscutari/filepwn/internal/apply"
	"github.com/michaelscutari/filepwn/internal/entry"
	"github.com/michaelscutari/filepwn/internal/identity"
	"github.com/michaelscutari/filepwn/internal/mode"
	"github.com/michaelscutari/filepwn/internal/walk"
)

var (
	ErrUnknownUser  = errors.New("user not found")
	ErrUnknownGroup = errors.New("group not found")
)

// Walker discovers the entries below a root.
type Walker interface {
	Walk(root string) (*walk.Result, error)
}

// PermissionSetter mutates a single path.
type PermissionSetter interface {
	SetMode(path string, mode os.FileMode) error
	SetOwner(path string, uid, gid uint32) error
}

// Recorder receives the run as it happens, e.g. a journal.
type Recorder interface {
	Begin(meta entry.RunMeta) error
	RecordEntry(a entry.Applied) error
	RecordFailure(f entry.Failure) error
	Finish(meta entry.RunMeta) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithWalker replaces the filesystem walker.
func WithWalker(w Walker) Option {
	return func(r *Runner) { r.walker = w }
}

// WithApplier replaces the permission setter.
func WithApplier(a PermissionSetter) Option {
	return func(r *Runner) { r.applier = a }
}

// WithRecorder attaches a recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// Result summarizes a completed run.
type Result struct {
	Meta     entry.RunMeta
	Failures []entry.Failure
}

// Err combines every per-entry failure, or returns nil if there were none.
func (r *Result) Err() error {
	var merr *multierror.Error
	for _, f := range r.Failures {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}

// Runner executes runs.
type Runner struct {
	cfg      Config
	log      *zap.Logger
	walker   Walker
	applier  PermissionSetter
	recorder Recorder

	result *Result
}

// New creates a Runner. Unset collaborators default to the OS walker and applier.
func New(cfg Config, log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Fs == nil || cfg.Walk == nil {
		def := DefaultConfig()
		if cfg.Fs == nil {
			cfg.Fs = def.Fs
		}
		if cfg.Walk == nil {
			cfg.Walk = def.Walk
		}
	}

	r := &Runner{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(r)
	}
	if r.walker == nil {
		r.walker = walk.New(cfg.Walk, log)
	}
	if r.applier == nil {
		r.applier = apply.New(nil)
	}
	return r
}

// Run performs one request. Every error returned is fatal and, apart from
// a walk aborted by walk.ListAbort, occurs before the tree is walked;
// no error returned here ever follows a mutation. Per-entry failures are
// reported through the Result.
func (r *Runner) Run(req Request) (*Result, error) {
	meta, err := r.resolve(req)
	if err != nil {
		return nil, err
	}

	if r.recorder != nil {
		if err := r.recorder.Begin(*meta); err != nil {
			return nil, fmt.Errorf("start journal: %w", err)
		}
	}

	r.log.Info("walking tree", zap.String("root", req.Root))
	tree, err := r.walker.Walk(req.Root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", req.Root, err)
	}

	r.result = &Result{Meta: *meta}
	for _, f := range tree.Failures {
		r.addFailure(f)
	}

	// Files come first so a tightened directory mode cannot block them.
	for _, e := range tree.Entries() {
		perm := meta.FileMode
		if e.Kind == entry.KindDir {
			perm = meta.DirMode
		}
		r.applyOne(e.Path, e.Kind, perm)
	}

	res := r.result
	r.result = nil
	res.Meta.FileCount = int64(len(tree.Files))
	res.Meta.DirCount = int64(len(tree.Dirs))
	res.Meta.FailureCount = int64(len(res.Failures))
	res.Meta.EndTime = time.Now()

	if r.recorder != nil {
		if err := r.recorder.Finish(res.Meta); err != nil {
			r.log.Error("failed to finish journal", zap.Error(err))
		}
	}

	r.log.Info("completed",
		zap.Int64("files", res.Meta.FileCount),
		zap.Int64("dirs", res.Meta.DirCount),
		zap.Int64("failures", res.Meta.FailureCount),
		zap.Bool("dry_run", res.Meta.DryRun),
	)
	return res, nil
}

// resolve checks every precondition that can abort the run.
func (r *Runner) resolve(req Request) (*entry.RunMeta, error) {
	users, err := identity.Load(r.cfg.Fs, r.cfg.PasswdPath)
	if err != nil {
		return nil, fmt.Errorf("load account database: %w", err)
	}
	groups, err := identity.Load(r.cfg.Fs, r.cfg.GroupPath)
	if err != nil {
		return nil, fmt.Errorf("load group database: %w", err)
	}

	uid, ok := users.Lookup(req.User)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownUser, req.User, r.cfg.PasswdPath)
	}
	gid, ok := groups.Lookup(req.Group)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnknownGroup, req.Group, r.cfg.GroupPath)
	}

	fileMode, err := mode.Parse(req.FileMode)
	if err != nil {
		return nil, fmt.Errorf("file mode: %w", err)
	}
	dirMode, err := mode.Parse(req.DirMode)
	if err != nil {
		return nil, fmt.Errorf("directory mode: %w", err)
	}

	r.log.Debug("resolved request",
		zap.String("user", req.User), zap.Uint32("uid", uid),
		zap.String("group", req.Group), zap.Uint32("gid", gid),
		zap.Stringer("file_mode", fileMode), zap.Stringer("dir_mode", dirMode),
	)

	return &entry.RunMeta{
		RootPath:  req.Root,
		User:      req.User,
		Group:     req.Group,
		UID:       uid,
		GID:       gid,
		FileMode:  fileMode,
		DirMode:   dirMode,
		DryRun:    r.cfg.DryRun,
		StartTime: time.Now(),
	}, nil
}

// applyOne attempts chmod then chown; a failure of one does not skip the other.
func (r *Runner) applyOne(path string, kind entry.Kind, perm os.FileMode) {
	meta := r.result.Meta
	rec := entry.Applied{
		Path:   path,
		Kind:   kind,
		Mode:   perm,
		UID:    meta.UID,
		GID:    meta.GID,
		Status: entry.StatusApplied,
	}

	if meta.DryRun {
		r.log.Debug("would apply", zap.String("path", path), zap.Stringer("mode", perm))
		rec.Status = entry.StatusPlanned
		r.record(rec)
		return
	}

	if err := r.applier.SetMode(path, perm); err != nil {
		rec.Status = entry.StatusFailed
		r.addFailure(entry.Failure{Path: path, Op: entry.OpChmod, Message: err.Error()})
	}
	if err := r.applier.SetOwner(path, meta.UID, meta.GID); err != nil {
		rec.Status = entry.StatusFailed
		r.addFailure(entry.Failure{Path: path, Op: entry.OpChown, Message: err.Error()})
	}
	r.record(rec)
}

func (r *Runner) addFailure(f entry.Failure) {
	// Walker failures were already logged where they happened.
	if f.Op == entry.OpChmod || f.Op == entry.OpChown {
		r.log.Warn("failed to apply",
			zap.String("path", f.Path),
			zap.String("op", string(f.Op)),
			zap.String("error", f.Message),
		)
	}
	r.result.Failures = append(r.result.Failures, f)
	if r.recorder != nil {
		if err := r.recorder.RecordFailure(f); err != nil {
			r.dropRecorder(err)
		}
	}
}

func (r *Runner) record(a entry.Applied) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordEntry(a); err != nil {
		r.dropRecorder(err)
	}
}

// dropRecorder stops journaling after a write error; mutation continues.
func (r *Runner) dropRecorder(err error) {
	r.log.Error("journal write failed, continuing without journal", zap.Error(err))
	r.recorder = nil
}
