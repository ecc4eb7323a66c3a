package walk

import (
	"io/fs"
	"os"
	"regexp"
)

// ReadDirFunc lists the entries of one directory.
type ReadDirFunc func(path string) ([]fs.DirEntry, error)

// ListPolicy decides what happens when a directory below the root cannot be listed.
type ListPolicy int

const (
	// ListSkip records the failure, keeps the directory in the output
	// and continues without expanding it.
	ListSkip ListPolicy = iota
	// ListAbort stops the whole walk with a *ListError.
	ListAbort
)

func (p ListPolicy) String() string {
	if p == ListAbort {
		return "abort"
	}
	return "skip"
}

// Options configures the walk.
type Options struct {
	// ListPolicy handles unreadable directories below the root.
	ListPolicy ListPolicy

	// ExcludePatterns are regular expressions matched against canonical paths.
	ExcludePatterns []*regexp.Regexp

	// ReadDir lists directories; nil means os.ReadDir.
	ReadDir ReadDirFunc
}

// DefaultOptions returns the default walk configuration.
func DefaultOptions() *Options {
	return &Options{
		ListPolicy: ListSkip,
		ReadDir:    os.ReadDir,
	}
}

// WithListPolicy sets the listing failure policy.
func (o *Options) WithListPolicy(p ListPolicy) *Options {
	o.ListPolicy = p
	return o
}

// WithReadDir replaces how directories are listed.
func (o *Options) WithReadDir(fn ReadDirFunc) *Options {
	o.ReadDir = fn
	return o
}

// AddExcludePattern adds a pattern to exclude.
func (o *Options) AddExcludePattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	o.ExcludePatterns = append(o.ExcludePatterns, re)
	return nil
}

// ShouldExclude checks if a path matches any exclude pattern.
func (o *Options) ShouldExclude(path string) bool {
	for _, re := range o.ExcludePatterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
