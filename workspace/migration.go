// Package workspace implements the Workspace Migration (§4.7): applying a
// clean diff produced by merge or checkout to both the filesystem and the
// staging index, with conflict pre-flight and an ordered, lockstep commit.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/harpreetsinghsandhu021/tide-version-control/diff"
	"github.com/harpreetsinghsandhu021/tide-version-control/format/index"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// ErrWorkingTreeConflict is returned when a delete target has been
// modified on disk relative to the old entry's OID.
var ErrWorkingTreeConflict = errors.New("workspace: working tree has modifications that would be lost")

// ErrUntrackedOverwrite is returned when a create target's ancestor
// directory is occupied by untracked, non-directory data.
var ErrUntrackedOverwrite = errors.New("workspace: untracked file would be overwritten")

// BlobLoader loads a blob's content by OID.
type BlobLoader interface {
	Load(oid objfmt.OID) (objfmt.Object, error)
}

// Migration applies a Diff ([]diff.Change) against fs (the worktree) and
// idx (the staging index) in the order §4.7 specifies: deletes, directory
// removals (reverse depth), directory creations (forward depth), updates,
// creates.
type Migration struct {
	fs    billy.Filesystem
	store BlobLoader
	idx   *index.Index

	deletes []diff.Change
	updates []diff.Change
	creates []diff.Change
}

// New groups changes into delete/update/create sets ready for pre-flight
// and Apply.
func New(fs billy.Filesystem, store BlobLoader, idx *index.Index, changes []diff.Change) *Migration {
	m := &Migration{fs: fs, store: store, idx: idx}
	for _, c := range changes {
		switch {
		case c.Old != nil && c.New == nil:
			m.deletes = append(m.deletes, c)
		case c.Old == nil && c.New != nil:
			m.creates = append(m.creates, c)
		default:
			m.updates = append(m.updates, c)
		}
	}
	return m
}

// Preflight validates every delete/create before any mutation happens, so
// Apply either fully succeeds or touches nothing.
func (m *Migration) Preflight() error {
	for _, c := range m.creates {
		if err := m.checkCreateConflict(c.Path); err != nil {
			return err
		}
	}
	for _, c := range m.deletes {
		if err := m.checkDeleteConflict(c); err != nil {
			return err
		}
	}
	return nil
}

// checkCreateConflict ensures no ancestor directory of path is occupied by
// a non-directory file in the workspace (§4.7 pre-flight).
func (m *Migration) checkCreateConflict(path string) error {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		anc := strings.Join(parts[:i], "/")
		fi, err := m.fs.Lstat(anc)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if !fi.IsDir() {
			return fmt.Errorf("%w: %s", ErrUntrackedOverwrite, anc)
		}
	}
	return nil
}

// checkDeleteConflict flags WorkingTreeConflict when the workspace copy of
// a deleted path differs from the old entry's recorded OID.
func (m *Migration) checkDeleteConflict(c diff.Change) error {
	f, err := m.fs.Open(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	oid := objfmt.HashObject(objfmt.BlobObject, data)
	if oid != c.Old.OID {
		return fmt.Errorf("%w: %s", ErrWorkingTreeConflict, c.Path)
	}
	return nil
}

// Apply executes the migration: Preflight, then deletes, directory
// removals, directory creations, updates, and creates in that order,
// updating the index in lockstep. Callers are responsible for committing
// or rolling back the index lock around Apply.
func (m *Migration) Apply() error {
	if err := m.Preflight(); err != nil {
		return err
	}

	var touchedDirs []string
	for _, c := range m.deletes {
		if err := m.fs.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		m.idx.Remove(c.Path)
		touchedDirs = append(touchedDirs, parentDirs(c.Path)...)
	}
	if err := m.removeEmptyDirs(touchedDirs); err != nil {
		return err
	}

	var newDirs []string
	for _, c := range m.creates {
		newDirs = append(newDirs, parentDirs(c.Path)...)
	}
	if err := m.createDirs(newDirs); err != nil {
		return err
	}

	for _, c := range m.updates {
		if err := m.writeFile(c); err != nil {
			return err
		}
	}
	for _, c := range m.creates {
		if err := m.writeFile(c); err != nil {
			return err
		}
	}
	return nil
}

// removeEmptyDirs removes directories left empty by a delete pass, deepest
// first, best-effort (a non-empty directory is left alone).
func (m *Migration) removeEmptyDirs(dirs []string) error {
	uniq := dedupSortedByDepthDesc(dirs)
	for _, d := range uniq {
		entries, err := m.fs.ReadDir(d)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if len(entries) > 0 {
			continue
		}
		_ = m.fs.Remove(d) // best-effort; ignore NotEmpty races
	}
	return nil
}

// createDirs creates ancestor directories forward (shallowest first).
func (m *Migration) createDirs(dirs []string) error {
	uniq := dedupSortedByDepthAsc(dirs)
	for _, d := range uniq {
		if err := m.fs.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// writeFile materializes c.New's blob at c.Path: remove any existing path,
// create exclusively, write the blob bytes, and set the mode; then stage
// the result in the index.
func (m *Migration) writeFile(c diff.Change) error {
	_ = m.fs.Remove(c.Path)

	obj, err := m.store.Load(c.New.OID)
	if err != nil {
		return err
	}
	blob, ok := obj.(*objfmt.Blob)
	if !ok {
		return fmt.Errorf("workspace: %s is not a blob", c.New.OID)
	}

	f, err := m.fs.OpenFile(c.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode(c.New.Mode))
	if err != nil {
		return err
	}
	if _, err := f.Write(blob.Data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	m.idx.Add(c.Path, c.New.Mode, c.New.OID, index.StatCache{})
	return nil
}

func fileMode(m objfmt.FileMode) os.FileMode {
	if m == objfmt.Executable {
		return 0o755
	}
	return 0o644
}

func parentDirs(path string) []string {
	parts := strings.Split(path, "/")
	var out []string
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

func dedupSortedByDepthDesc(dirs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range dirs {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Count(out[i], "/") > strings.Count(out[j], "/")
	})
	return out
}

func dedupSortedByDepthAsc(dirs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range dirs {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Count(out[i], "/") < strings.Count(out[j], "/")
	})
	return out
}

// WriteRaw materializes arbitrary content at path, overwriting anything
// already there. Used for merge-conflict blobs (marker-interleaved file
// content) and the "<name>~<side>" untracked files a file/directory
// collision produces (§4.6 step 3) — neither goes through the index.
func WriteRaw(fs billy.Filesystem, path string, content []byte) error {
	dir := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir = path[:i]
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	_ = fs.Remove(path)
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
