package index

import (
	"fmt"
	"os"

	billy "github.com/go-git/go-billy/v5"

	"github.com/harpreetsinghsandhu021/tide-version-control/lock"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// File wraps an on-disk index together with the lock needed to write it
// back safely: LoadForUpdate acquires "<path>.lock" before reading, and
// WriteUpdates/ReleaseLock are the only ways to publish or discard it.
type File struct {
	fs   billy.Filesystem
	path string
	lk   *lock.Lock
}

// ReadFile loads the index at path without taking a lock (read-only
// callers: status, diff).
func ReadFile(fs billy.Filesystem, path string) (*Index, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	defer f.Close()

	idx, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("index: reading %s: %w", path, err)
	}
	return idx, nil
}

// LoadForUpdate acquires the write lock on path and loads the current
// index (or an empty one if the file does not yet exist).
func LoadForUpdate(fs billy.Filesystem, path string) (*Index, *File, error) {
	lk, err := lock.Acquire(fs, path)
	if err != nil {
		return nil, nil, err
	}

	idx, err := ReadFile(fs, path)
	if err != nil {
		_ = lk.Rollback()
		return nil, nil, err
	}

	return idx, &File{fs: fs, path: path, lk: lk}, nil
}

// WriteUpdates serializes idx into the held lockfile and commits it,
// publishing the new index atomically.
func (f *File) WriteUpdates(idx *Index) error {
	if err := Encode(f.lk, idx); err != nil {
		_ = f.lk.Rollback()
		return fmt.Errorf("index: encoding: %w", err)
	}
	trace.Index.Printf("index: committing %d entries to %s", idx.Len(), f.path)
	return f.lk.Commit()
}

// ReleaseLock discards the lock without writing, leaving the on-disk index
// untouched.
func (f *File) ReleaseLock() error {
	return f.lk.Rollback()
}
