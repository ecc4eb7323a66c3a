package run

import (
	"github.com/spf13/afero"

	"github.com/michaelscutari/filepwn/internal/identity"
	"github.com/michaelscutari/filepwn/internal/walk"
)

// Config holds the settings that stay fixed for a run.
type Config struct {
	// PasswdPath is the account database used to resolve the user.
	PasswdPath string

	// GroupPath is the group database used to resolve the group.
	GroupPath string

	// Fs is where the identity databases are read from.
	Fs afero.Fs

	// Walk configures traversal.
	Walk *walk.Options

	// DryRun resolves and walks but changes nothing.
	DryRun bool
}

// DefaultConfig reads the system databases from the OS filesystem.
func DefaultConfig() Config {
	return Config{
		PasswdPath: identity.DefaultPasswdPath,
		GroupPath:  identity.DefaultGroupPath,
		Fs:         afero.NewOsFs(),
		Walk:       walk.DefaultOptions(),
	}
}

// WithDatabases points the run at alternative account and group databases.
func (c Config) WithDatabases(passwd, group string) Config {
	c.PasswdPath = passwd
	c.GroupPath = group
	return c
}

// WithWalk sets the traversal options.
func (c Config) WithWalk(opts *walk.Options) Config {
	c.Walk = opts
	return c
}

// WithDryRun toggles dry-run mode.
func (c Config) WithDryRun(dryRun bool) Config {
	c.DryRun = dryRun
	return c
}

// Request is what the caller asks to apply.
type Request struct {
	Root     string
	User     string
	Group    string
	FileMode string
	DirMode  string
}
