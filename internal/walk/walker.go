// Package walk discovers every file and directory below a root using a
// breadth-first traversal over an explicit frontier of directory listings.
package walk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/michaelscutari/filepwn/internal/entry"
	"github.com/michaelscutari/filepwn/internal/pathutil"
)

// ListError reports a directory whose contents could not be read.
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// Result holds the canonical paths found below the root, in discovery order.
// The root itself is in neither slice.
type Result struct {
	Files    []string
	Dirs     []string
	Failures []entry.Failure
}

// Entries returns files followed by directories as tree entries.
func (r *Result) Entries() []entry.Entry {
	out := make([]entry.Entry, 0, len(r.Files)+len(r.Dirs))
	for _, p := range r.Files {
		out = append(out, entry.Entry{Path: p, Kind: entry.KindFile})
	}
	for _, p := range r.Dirs {
		out = append(out, entry.Entry{Path: p, Kind: entry.KindDir})
	}
	return out
}

// batch is one raw directory listing waiting to be expanded.
type batch struct {
	dir     string
	entries []fs.DirEntry
}

// Walker performs the traversal.
type Walker struct {
	opts    *Options
	readDir ReadDirFunc
	log     *zap.Logger
}

// New creates a walker. A nil logger discards diagnostics.
func New(opts *Options, log *zap.Logger) *Walker {
	if opts == nil {
		opts = DefaultOptions()
	}
	if log == nil {
		log = zap.NewNop()
	}
	readDir := opts.ReadDir
	if readDir == nil {
		readDir = os.ReadDir
	}
	return &Walker{opts: opts, readDir: readDir, log: log}
}

// Walk lists root and then expands one frontier level per round until no
// listings remain. Failing to resolve or list the root is always fatal.
func (w *Walker) Walk(root string) (*Result, error) {
	canonRoot, err := pathutil.Canonical(root)
	if err != nil {
		return nil, &ListError{Path: root, Err: err}
	}
	listing, err := w.readDir(canonRoot)
	if err != nil {
		return nil, &ListError{Path: canonRoot, Err: err}
	}

	res := &Result{}
	seen := map[string]struct{}{canonRoot: {}}
	frontier := []batch{{dir: canonRoot, entries: listing}}

	for len(frontier) > 0 {
		level := frontier
		frontier = nil

		for _, b := range level {
			for _, de := range b.entries {
				next, err := w.visit(res, seen, b.dir, de)
				if err != nil {
					return nil, err
				}
				if next != nil {
					frontier = append(frontier, *next)
				}
			}
		}
	}

	w.log.Debug("walk finished",
		zap.String("root", canonRoot),
		zap.Int("files", len(res.Files)),
		zap.Int("dirs", len(res.Dirs)),
		zap.Int("failures", len(res.Failures)),
	)
	return res, nil
}

// visit classifies one raw entry and returns its listing when it is a
// directory that should be expanded next round.
func (w *Walker) visit(res *Result, seen map[string]struct{}, dir string, de fs.DirEntry) (*batch, error) {
	raw := filepath.Join(dir, de.Name())

	// Links are never followed, so a link back to an ancestor cannot loop.
	if de.Type()&fs.ModeSymlink != 0 {
		return nil, nil
	}

	path, err := pathutil.Canonical(raw)
	if err != nil {
		w.fail(res, raw, entry.OpCanonicalize, err)
		return nil, nil
	}
	if _, dup := seen[path]; dup {
		return nil, nil
	}
	if w.opts.ShouldExclude(path) {
		w.log.Debug("excluded", zap.String("path", path))
		return nil, nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		w.fail(res, path, entry.OpStat, err)
		return nil, nil
	}

	switch entry.KindFromMode(info.Mode()) {
	case entry.KindFile:
		seen[path] = struct{}{}
		res.Files = append(res.Files, path)
	case entry.KindDir:
		seen[path] = struct{}{}
		res.Dirs = append(res.Dirs, path)

		children, err := w.readDir(path)
		if err != nil {
			if w.opts.ListPolicy == ListAbort {
				return nil, &ListError{Path: path, Err: err}
			}
			w.fail(res, path, entry.OpList, err)
			return nil, nil
		}
		return &batch{dir: path, entries: children}, nil
	}
	return nil, nil
}

func (w *Walker) fail(res *Result, path string, op entry.Op, err error) {
	w.log.Warn("skipping entry",
		zap.String("path", path),
		zap.String("op", string(op)),
		zap.Error(err),
	)
	res.Failures = append(res.Failures, entry.Failure{
		Path:    path,
		Op:      op,
		Message: err.Error(),
	})
}
