// Package apply changes permission bits and ownership of single paths.
package apply

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/spf13/afero"
)

// ErrIDOutOfRange is returned for an id that does not fit in a native int.
// Converting it would wrap negative, and chown treats -1 as "leave unchanged".
var ErrIDOutOfRange = errors.New("id exceeds platform int range")

// ModeError reports a failed chmod.
type ModeError struct {
	Path string
	Mode os.FileMode
	Err  error
}

func (e *ModeError) Error() string {
	return fmt.Sprintf("chmod %s to %04o: %v", e.Path, e.Mode, e.Err)
}

func (e *ModeError) Unwrap() error { return e.Err }

// OwnershipError reports a failed chown.
type OwnershipError struct {
	Path string
	UID  uint32
	GID  uint32
	Err  error
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("chown %s to %d:%d: %v", e.Path, e.UID, e.GID, e.Err)
}

func (e *OwnershipError) Unwrap() error { return e.Err }

// Applier mutates entries on a filesystem. Each call is independent.
type Applier struct {
	fs afero.Fs
}

// New returns an Applier backed by fsys, or the OS filesystem when nil.
func New(fsys afero.Fs) *Applier {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Applier{fs: fsys}
}

// SetMode sets the permission bits of path.
func (a *Applier) SetMode(path string, mode os.FileMode) error {
	if err := a.fs.Chmod(path, mode); err != nil {
		return &ModeError{Path: path, Mode: mode, Err: err}
	}
	return nil
}

// SetOwner sets the owning uid and gid of path.
func (a *Applier) SetOwner(path string, uid, gid uint32) error {
	u, err := nativeID(uid)
	if err != nil {
		return &OwnershipError{Path: path, UID: uid, GID: gid, Err: err}
	}
	g, err := nativeID(gid)
	if err != nil {
		return &OwnershipError{Path: path, UID: uid, GID: gid, Err: err}
	}
	if err := a.fs.Chown(path, u, g); err != nil {
		return &OwnershipError{Path: path, UID: uid, GID: gid, Err: err}
	}
	return nil
}

func nativeID(id uint32) (int, error) {
	if uint64(id) > math.MaxInt {
		return 0, fmt.Errorf("%w: %d", ErrIDOutOfRange, id)
	}
	return int(id), nil
}
