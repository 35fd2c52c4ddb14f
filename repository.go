// Package tide ties the Object Store, Reference Store, Index, Revision
// Walker, Merge Core, and Workspace Migration into the single entry point
// a caller actually opens: Init/Open a repository rooted at a metadata
// directory plus an optional worktree, then Commit/Checkout/Merge against
// it. Command dispatch, CLI parsing, and transport dialing stay out of
// this core (§1); Repository is the library surface those layers would be
// built on top of.
package tide

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/harpreetsinghsandhu021/tide-version-control/diff"
	"github.com/harpreetsinghsandhu021/tide-version-control/format/index"
	"github.com/harpreetsinghsandhu021/tide-version-control/merge"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/refstore"
	"github.com/harpreetsinghsandhu021/tide-version-control/revwalk"
	"github.com/harpreetsinghsandhu021/tide-version-control/store"
	"github.com/harpreetsinghsandhu021/tide-version-control/store/loose"
	"github.com/harpreetsinghsandhu021/tide-version-control/store/packed"
	"github.com/harpreetsinghsandhu021/tide-version-control/workspace"
)

var (
	// ErrRepositoryAlreadyExists is returned by Init when HEAD already
	// resolves inside the target metadata directory.
	ErrRepositoryAlreadyExists = errors.New("tide: repository already exists")
	// ErrRepositoryNotExist is returned by Open when no HEAD is found.
	ErrRepositoryNotExist = errors.New("tide: repository does not exist")
	// ErrBareRepository is returned by any worktree operation on a
	// repository opened without one.
	ErrBareRepository = errors.New("tide: worktree not available in a bare repository")
	// ErrNothingToCommit is returned by Commit when the index has no
	// staged conflict-free entries to record.
	ErrNothingToCommit = errors.New("tide: nothing to commit")
)

const (
	headRef       = "HEAD"
	defaultBranch = "refs/heads/main"
	indexPath     = "index"
	packDir       = "objects/pack"
	looseDir      = "objects"
	origHeadRef   = "ORIG_HEAD"

	mergeHeadPath = "MERGE_HEAD"
	mergeMsgPath  = "MERGE_MSG"
)

// Repository is a metadata directory (".tide", conventionally) plus an
// optional worktree filesystem. A nil worktree means bare: Commit/Merge
// still work against the index, but Checkout has nothing to materialize
// into.
type Repository struct {
	metaFS billy.Filesystem
	wt     billy.Filesystem

	Objects *store.Store
	Refs    *refstore.Store
}

// Init creates an empty repository rooted at metaFS: an empty object
// store, a symbolic HEAD pointing at refs/heads/main (unborn), and no
// index file until the first Commit writes one. worktree may be nil for
// a bare repository.
func Init(metaFS billy.Filesystem, worktree billy.Filesystem) (*Repository, error) {
	r := newRepository(metaFS, worktree)

	if _, err := r.Refs.Read(headRef); err == nil {
		return nil, ErrRepositoryAlreadyExists
	} else if !errors.Is(err, refstore.ErrNotFound) {
		return nil, err
	}

	if err := metaFS.MkdirAll(looseDir, 0o755); err != nil {
		return nil, err
	}
	if err := metaFS.MkdirAll(packDir, 0o755); err != nil {
		return nil, err
	}
	if err := metaFS.MkdirAll("refs/heads", 0o755); err != nil {
		return nil, err
	}
	if err := metaFS.MkdirAll("refs/remotes", 0o755); err != nil {
		return nil, err
	}
	if err := r.Refs.SetSymbolic(headRef, defaultBranch); err != nil {
		return nil, err
	}
	return r, nil
}

// Open opens an existing repository rooted at metaFS; HEAD must already
// resolve (directly or symbolically) to something, even an unborn branch.
func Open(metaFS billy.Filesystem, worktree billy.Filesystem) (*Repository, error) {
	r := newRepository(metaFS, worktree)
	if _, err := r.Refs.CurrentRef(headRef); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryNotExist, err)
	}
	return r, nil
}

func newRepository(metaFS, worktree billy.Filesystem) *Repository {
	return &Repository{
		metaFS:  metaFS,
		wt:      worktree,
		Objects: store.New(loose.New(metaFS, looseDir), packed.New(metaFS, packDir)),
		Refs:    refstore.New(metaFS, ""),
	}
}

// IsBare reports whether this repository was opened without a worktree.
func (r *Repository) IsBare() bool { return r.wt == nil }

// loadIndex opens the staging index for update, acquiring its lock; the
// caller must call release (File.ReleaseLock, after either WriteUpdates or
// on an error path) exactly once.
func (r *Repository) loadIndex() (*index.Index, *index.File, error) {
	return index.LoadForUpdate(r.metaFS, indexPath)
}

// HeadOID resolves HEAD to a commit id, returning the zero OID for an
// unborn branch (HEAD is symbolic but its target doesn't exist yet).
func (r *Repository) HeadOID() (objfmt.OID, error) {
	oid, err := r.Refs.Read(headRef)
	if errors.Is(err, refstore.ErrNotFound) {
		return objfmt.ZeroOID, nil
	}
	return oid, err
}

// Resolve implements revwalk.Resolver: bare OID hex, a ref name, or HEAD.
func (r *Repository) Resolve(name string) (objfmt.OID, error) {
	if name == headRef {
		return r.HeadOID()
	}
	if oid, err := objfmt.ParseOID(name); err == nil {
		return oid, nil
	}
	for _, candidate := range []string{name, "refs/heads/" + name, "refs/remotes/" + name} {
		if oid, err := r.Refs.Read(candidate); err == nil {
			return oid, nil
		}
	}
	return objfmt.OID{}, fmt.Errorf("tide: unresolvable revision %q", name)
}

// Commit implements revwalk.Resolver and merge's CommitLoader: load a
// commit object by OID.
func (r *Repository) Commit(oid objfmt.OID) (*objfmt.Commit, error) {
	obj, err := r.Objects.Load(oid)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*objfmt.Commit)
	if !ok {
		return nil, fmt.Errorf("tide: %s is not a commit", oid)
	}
	return c, nil
}

// CommitterTime implements the CommitterTime half of merge.MergeBase's
// loader constraint.
func (r *Repository) CommitterTime(oid objfmt.OID) (int64, error) {
	c, err := r.Commit(oid)
	if err != nil {
		return 0, err
	}
	return c.Committer.When.Unix(), nil
}

// Walker builds a revwalk.Walker over this repository's object store.
func (r *Repository) Walker(paths []string, walk, objects bool) *revwalk.Walker {
	return revwalk.New(r.Objects, paths, walk, objects)
}

// CreateCommit creates a commit object from the current index content, parented
// on HEAD (or rootless, for the first commit), advances the current
// branch to it via compare-and-swap, and returns its OID.
func (r *Repository) CreateCommit(author, committer objfmt.Signature, message string) (objfmt.OID, error) {
	idx, f, err := r.loadIndex()
	if err != nil {
		return objfmt.OID{}, err
	}
	defer f.ReleaseLock()

	if idx.Conflict() {
		return objfmt.OID{}, fmt.Errorf("tide: cannot commit with unresolved conflicts: %v", idx.ConflictPaths())
	}
	if idx.Len() == 0 {
		return objfmt.OID{}, ErrNothingToCommit
	}

	treeOID, err := buildTree(r.Objects, idx.Entries())
	if err != nil {
		return objfmt.OID{}, err
	}

	parentOID, err := r.HeadOID()
	if err != nil {
		return objfmt.OID{}, err
	}
	var parents []objfmt.OID
	if !parentOID.IsZero() {
		parents = []objfmt.OID{parentOID}
	}

	commit := &objfmt.Commit{
		TreeOID:    treeOID,
		ParentOIDs: parents,
		Author:     author,
		Committer:  committer,
		Message:    message,
	}
	commitOID, err := r.Objects.Store(commit)
	if err != nil {
		return objfmt.OID{}, err
	}

	current, err := r.Refs.CurrentRef(headRef)
	if err != nil {
		return objfmt.OID{}, err
	}
	var expected *objfmt.OID
	if !parentOID.IsZero() {
		expected = &parentOID
	}
	if err := r.Refs.CompareAndSwap(current.Name, expected, &commitOID); err != nil {
		return objfmt.OID{}, err
	}
	return commitOID, nil
}

// buildTree groups a flat list of index entries by directory and writes
// one objfmt.Tree per directory, deepest first, returning the root tree's
// OID. Index entries are already conflict-free by the time Commit gets
// here (idx.Conflict() gates that).
func buildTree(s *store.Store, entries []*index.Entry) (objfmt.OID, error) {
	type dirNode struct {
		files map[string]objfmt.TreeEntry
		dirs  map[string]bool
	}
	dirs := map[string]*dirNode{"": {files: map[string]objfmt.TreeEntry{}, dirs: map[string]bool{}}}

	ensureDir := func(path string) *dirNode {
		if d, ok := dirs[path]; ok {
			return d
		}
		d := &dirNode{files: map[string]objfmt.TreeEntry{}, dirs: map[string]bool{}}
		dirs[path] = d
		return d
	}

	var dirOrder []string
	for _, e := range entries {
		dir, name := splitPath(e.Path)
		// ensure every ancestor directory exists, parent-first.
		cur := ""
		for _, part := range splitAll(dir) {
			parent := cur
			if cur == "" {
				cur = part
			} else {
				cur = cur + "/" + part
			}
			d := ensureDir(parent)
			if !d.dirs[cur] {
				d.dirs[cur] = true
				dirOrder = append(dirOrder, cur)
			}
			ensureDir(cur)
		}
		ensureDir(dir).files[name] = objfmt.TreeEntry{Name: name, Mode: e.Mode, OID: e.OID}
	}

	// Write deepest directories first so parents can reference their
	// subtree OIDs.
	sortByDepthDesc(dirOrder)
	treeOIDs := make(map[string]objfmt.OID)
	for _, path := range dirOrder {
		d := dirs[path]
		var tree objfmt.Tree
		for _, te := range d.files {
			tree.Entries = append(tree.Entries, te)
		}
		for sub := range d.dirs {
			_, subName := splitPath(sub)
			tree.Entries = append(tree.Entries, objfmt.TreeEntry{Name: subName, Mode: objfmt.Dir, OID: treeOIDs[sub]})
		}
		oid, err := s.Store(&tree)
		if err != nil {
			return objfmt.OID{}, err
		}
		treeOIDs[path] = oid
	}

	root := dirs[""]
	var rootTree objfmt.Tree
	for _, te := range root.files {
		rootTree.Entries = append(rootTree.Entries, te)
	}
	for sub := range root.dirs {
		_, subName := splitPath(sub)
		rootTree.Entries = append(rootTree.Entries, objfmt.TreeEntry{Name: subName, Mode: objfmt.Dir, OID: treeOIDs[sub]})
	}
	return s.Store(&rootTree)
}

func splitPath(path string) (dir, name string) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}

func splitAll(dir string) []string {
	if dir == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i <= len(dir); i++ {
		if i == len(dir) || dir[i] == '/' {
			parts = append(parts, dir[start:i])
			start = i + 1
		}
	}
	return parts
}

func sortByDepthDesc(paths []string) {
	// insertion sort: the candidate set is small (one entry per touched
	// directory), and this keeps buildTree dependency-free of sort.Slice
	// closures capturing a depth helper twice.
	depth := func(p string) int {
		n := 0
		for _, b := range []byte(p) {
			if b == '/' {
				n++
			}
		}
		return n
	}
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && depth(paths[j]) > depth(paths[j-1]); j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}

// Checkout materializes targetOID's tree into the worktree and index,
// replacing the current contents, via a clean Workspace Migration from
// the current HEAD's tree to targetOID's.
func (r *Repository) Checkout(targetOID objfmt.OID) error {
	if r.wt == nil {
		return ErrBareRepository
	}
	idx, f, err := r.loadIndex()
	if err != nil {
		return err
	}
	defer f.ReleaseLock()

	headOID, err := r.HeadOID()
	if err != nil {
		return err
	}
	var fromTree, toTree objfmt.OID
	if !headOID.IsZero() {
		head, err := r.Commit(headOID)
		if err != nil {
			return err
		}
		fromTree = head.TreeOID
	}
	if !targetOID.IsZero() {
		target, err := r.Commit(targetOID)
		if err != nil {
			return err
		}
		toTree = target.TreeOID
	}
	changes, err := diff.TreeDiff(r.Objects, fromTree, toTree, nil)
	if err != nil {
		return err
	}

	mig := workspace.New(r.wt, r.Objects, idx, changes)
	if err := mig.Apply(); err != nil {
		return err
	}
	if err := f.WriteUpdates(idx); err != nil {
		return err
	}

	if !headOID.IsZero() {
		if err := r.Refs.Update(origHeadRef, headOID); err != nil {
			return err
		}
	}
	current, err := r.Refs.CurrentRef(headRef)
	if err != nil {
		return err
	}
	return r.Refs.Update(current.Name, targetOID)
}

// Merge runs the Merge Core between HEAD and theirs, applying a clean
// result to the worktree/index and leaving conflicts staged (and their
// marker-interleaved content written to disk) for the caller to resolve,
// per §4.6/§4.7.
func (r *Repository) Merge(theirs objfmt.OID, names merge.Names) (*merge.Result, error) {
	headOID, err := r.HeadOID()
	if err != nil {
		return nil, err
	}
	base, _, err := merge.MergeBase(r, headOID, theirs)
	if err != nil {
		return nil, err
	}

	result, err := merge.ThreeWayMerge(r.Objects, base, headOID, theirs, names)
	if err != nil {
		return nil, err
	}
	if result.AlreadyMerged {
		return result, nil
	}

	idx, f, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	defer f.ReleaseLock()

	if r.wt != nil {
		mig := workspace.New(r.wt, r.Objects, idx, result.Clean)
		if err := mig.Apply(); err != nil {
			return nil, err
		}
		for path, content := range result.ConflictBlobs {
			if err := workspace.WriteRaw(r.wt, path, content); err != nil {
				return nil, err
			}
		}
		for path, content := range result.Untracked {
			if err := workspace.WriteRaw(r.wt, path, content); err != nil {
				return nil, err
			}
		}
	}
	merge.ApplyConflicts(idx, result.Conflicts)
	if err := f.WriteUpdates(idx); err != nil {
		return nil, err
	}

	if len(result.Conflicts) > 0 {
		if err := r.writeMetaFile(mergeHeadPath, theirs.String()+"\n"); err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("Merge commit '%s' into %s\n", theirs, names.Right)
		if err := r.writeMetaFile(mergeMsgPath, msg); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// MergeHead returns the in-progress merge's other parent, and whether a
// merge is in fact pending (MERGE_HEAD exists).
func (r *Repository) MergeHead() (objfmt.OID, bool, error) {
	return r.readMetaOID(mergeHeadPath)
}

// AbortMerge discards an in-progress conflicted merge: the worktree and
// index are reset to HEAD (undoing whatever the conflicted merge staged),
// and the pending-operation markers are removed.
func (r *Repository) AbortMerge() error {
	headOID, err := r.HeadOID()
	if err != nil {
		return err
	}
	if r.wt != nil {
		if err := r.Checkout(headOID); err != nil {
			return err
		}
	}
	return r.clearMetaFiles(mergeHeadPath, mergeMsgPath)
}

// ContinueMerge finalizes a previously-conflicted merge once its
// conflicts have been resolved in the index: it commits with MERGE_HEAD
// as the second parent and clears the pending-operation markers.
func (r *Repository) ContinueMerge(author, committer objfmt.Signature) (objfmt.OID, error) {
	theirs, pending, err := r.MergeHead()
	if err != nil {
		return objfmt.OID{}, err
	}
	if !pending {
		return objfmt.OID{}, errors.New("tide: no merge in progress")
	}

	idx, f, err := r.loadIndex()
	if err != nil {
		return objfmt.OID{}, err
	}
	if idx.Conflict() {
		f.ReleaseLock()
		return objfmt.OID{}, fmt.Errorf("tide: cannot continue merge with unresolved conflicts: %v", idx.ConflictPaths())
	}
	f.ReleaseLock()

	message, err := r.readMetaText(mergeMsgPath)
	if err != nil {
		return objfmt.OID{}, err
	}

	commitOID, err := r.createMergeCommit(author, committer, message, theirs)
	if err != nil {
		return objfmt.OID{}, err
	}
	if err := r.clearMetaFiles(mergeHeadPath, mergeMsgPath); err != nil {
		return objfmt.OID{}, err
	}
	return commitOID, nil
}

// createMergeCommit is CreateCommit's two-parent sibling, used once a
// conflicted merge's conflicts have all been resolved in the index.
func (r *Repository) createMergeCommit(author, committer objfmt.Signature, message string, secondParent objfmt.OID) (objfmt.OID, error) {
	idx, f, err := r.loadIndex()
	if err != nil {
		return objfmt.OID{}, err
	}
	defer f.ReleaseLock()

	treeOID, err := buildTree(r.Objects, idx.Entries())
	if err != nil {
		return objfmt.OID{}, err
	}

	parentOID, err := r.HeadOID()
	if err != nil {
		return objfmt.OID{}, err
	}

	commit := &objfmt.Commit{
		TreeOID:    treeOID,
		ParentOIDs: []objfmt.OID{parentOID, secondParent},
		Author:     author,
		Committer:  committer,
		Message:    message,
	}
	commitOID, err := r.Objects.Store(commit)
	if err != nil {
		return objfmt.OID{}, err
	}

	current, err := r.Refs.CurrentRef(headRef)
	if err != nil {
		return objfmt.OID{}, err
	}
	if err := r.Refs.CompareAndSwap(current.Name, &parentOID, &commitOID); err != nil {
		return objfmt.OID{}, err
	}
	return commitOID, nil
}

func (r *Repository) writeMetaFile(path, content string) error {
	f, err := r.metaFS.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(content))
	return err
}

func (r *Repository) readMetaText(path string) (string, error) {
	f, err := r.metaFS.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// readMetaOID reads a single-OID pending-operation marker file (MERGE_HEAD),
// returning ok=false rather than an error when the file is simply absent.
func (r *Repository) readMetaOID(path string) (objfmt.OID, bool, error) {
	text, err := r.readMetaText(path)
	if err != nil {
		if os.IsNotExist(err) {
			return objfmt.OID{}, false, nil
		}
		return objfmt.OID{}, false, err
	}
	oid, err := objfmt.ParseOID(strings.TrimSpace(text))
	if err != nil {
		return objfmt.OID{}, false, err
	}
	return oid, true, nil
}

func (r *Repository) clearMetaFiles(paths ...string) error {
	for _, p := range paths {
		if err := r.metaFS.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
