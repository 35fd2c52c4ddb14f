// Package lock implements the Lock Discipline (§4.8): every named-file
// write goes through an exclusively-created "<path>.lock" file that is
// either committed (renamed over path) or rolled back (unlinked).
package lock

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
)

// ErrDenied is returned when "<path>.lock" already exists.
var ErrDenied = errors.New("lock: denied, lockfile already exists")

// ErrMissingParent is returned when path's parent directory does not
// exist; the caller may mkdir -p and retry.
var ErrMissingParent = errors.New("lock: missing parent directory")

// ErrStale is returned by any operation attempted after Commit or
// Rollback.
var ErrStale = errors.New("lock: stale, already committed or rolled back")

// Lock holds an open "<path>.lock" file pending Commit or Rollback.
type Lock struct {
	fs       billy.Filesystem
	path     string
	lockPath string
	file     billy.File
	done     bool
}

// Acquire exclusively creates "<path>.lock". It fails with ErrDenied if the
// lockfile already exists, or ErrMissingParent if path's directory is
// absent.
func Acquire(fs billy.Filesystem, path string) (*Lock, error) {
	lockPath := path + ".lock"

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if _, err := fs.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrMissingParent, lockPath)
			}
			return nil, err
		}
	}

	f, err := fs.OpenFile(lockPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDenied, lockPath)
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingParent, lockPath)
		}
		return nil, err
	}

	return &Lock{fs: fs, path: path, lockPath: lockPath, file: f}, nil
}

// File exposes the open lockfile for writing.
func (l *Lock) File() billy.File { return l.file }

// Write writes p to the lockfile.
func (l *Lock) Write(p []byte) (int, error) {
	if l.done {
		return 0, ErrStale
	}
	return l.file.Write(p)
}

var _ io.Writer = (*Lock)(nil)

// Commit closes the lockfile and renames it over the target path,
// publishing the write.
func (l *Lock) Commit() error {
	if l.done {
		return ErrStale
	}
	l.done = true
	if err := l.file.Close(); err != nil {
		return err
	}
	return l.fs.Rename(l.lockPath, l.path)
}

// Rollback closes and removes the lockfile without touching path.
func (l *Lock) Rollback() error {
	if l.done {
		return ErrStale
	}
	l.done = true
	_ = l.file.Close()
	return l.fs.Remove(l.lockPath)
}
