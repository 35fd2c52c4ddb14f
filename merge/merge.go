package merge

import (
	"fmt"
	"strings"

	"github.com/harpreetsinghsandhu021/tide-version-control/diff"
	"github.com/harpreetsinghsandhu021/tide-version-control/format/index"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// Store is everything the tree merge needs from the Object Store: loading
// objects for the content merge, and storing merged blobs back.
type Store interface {
	Load(oid objfmt.OID) (objfmt.Object, error)
	Store(o objfmt.Object) (objfmt.OID, error)
}

// Names labels the three sides for conflict markers and untracked-content
// file suffixes (§4.6 step 3's "<name>~<side>").
type Names struct {
	Base, Left, Right string
}

// Result is the outcome of a ThreeWayMerge: a clean diff (apply via
// workspace.New), a parallel map of conflict stages to record in the
// index, and any untracked files that must be materialized at
// "<name>~<side>" because a file/directory collision displaced them.
type Result struct {
	// FastForward is true when the merge resolved to a pure fast-forward
	// (workspace.Migration still needs to run: see the Clean diff, which
	// in that case is simply right's full tree against left's).
	FastForward bool
	// AlreadyMerged is true for the base==right no-op shortcut.
	AlreadyMerged bool

	Clean     []diff.Change
	Conflicts map[string]ConflictEntry
	// ConflictBlobs holds, for each conflicted path under Conflicts, the
	// marker-interleaved (or surviving-side, for modify/delete) content
	// that must be written into the workspace at that path — distinct
	// from any index stage, which records the original base/ours/theirs
	// object ids for later inspection.
	ConflictBlobs map[string][]byte
	Untracked     map[string][]byte // "<name>~<side>" -> content
}

// ConflictEntry is one path's recorded conflict: any of Base/Ours/Theirs
// may be nil, per §3's index-entry data model (stage absent => that side
// had no entry).
type ConflictEntry struct {
	Mode                  objfmt.FileMode
	BaseOID, OursOID, TheirsOID *objfmt.OID
}

// ThreeWayMerge implements §4.6's tree-level merge. leftOID is HEAD,
// rightOID the incoming commit, baseOID the merge base (from MergeBase).
// Commit OIDs are diffed through their root trees; a tree OID is diffed
// as given.
func ThreeWayMerge(store Store, baseOID, leftOID, rightOID objfmt.OID, names Names) (*Result, error) {
	if baseOID == rightOID {
		return &Result{AlreadyMerged: true}, nil
	}

	trees := [3]objfmt.OID{baseOID, leftOID, rightOID}
	for i, oid := range trees {
		if obj, err := store.Load(oid); err == nil && !oid.IsZero() {
			if c, ok := obj.(*objfmt.Commit); ok {
				trees[i] = c.TreeOID
			}
		}
	}

	leftDiff, err := treeOf(store, trees[0], trees[1])
	if err != nil {
		return nil, err
	}

	if baseOID == leftOID {
		// fast-forward: the clean diff is simply base->right.
		ffDiff, err := diff.TreeDiff(store, trees[0], trees[2], nil)
		if err != nil {
			return nil, err
		}
		return &Result{FastForward: true, Clean: ffDiff}, nil
	}

	rightDiff, err := treeOf(store, trees[0], trees[2])
	if err != nil {
		return nil, err
	}

	leftByPath := indexByPath(leftDiff)

	res := &Result{
		Conflicts:     make(map[string]ConflictEntry),
		ConflictBlobs: make(map[string][]byte),
		Untracked:     make(map[string][]byte),
	}

	for _, rc := range rightDiff {
		lc, onLeft := leftByPath[rc.Path]
		switch {
		case !onLeft:
			res.Clean = append(res.Clean, rc)
		case sameChange(lc, rc):
			// both sides made the identical change: no-op, already
			// reflected in left.
		default:
			merged, conflict, blob, err := mergeFile(store, rc.Path, lc, rc, names)
			if err != nil {
				return nil, err
			}
			if conflict != nil {
				res.Conflicts[rc.Path] = *conflict
				res.ConflictBlobs[rc.Path] = blob
			} else {
				res.Clean = append(res.Clean, *merged)
			}
		}
	}

	if err := resolveCollisions(store, res, leftDiff, rightDiff, names); err != nil {
		return nil, err
	}

	trace.Merge.Printf("merge: %d clean, %d conflicts", len(res.Clean), len(res.Conflicts))
	return res, nil
}

func treeOf(store Store, baseOID, otherOID objfmt.OID) ([]diff.Change, error) {
	return diff.TreeDiff(store, baseOID, otherOID, nil)
}

func indexByPath(changes []diff.Change) map[string]diff.Change {
	m := make(map[string]diff.Change, len(changes))
	for _, c := range changes {
		m[c.Path] = c
	}
	return m
}

func sameChange(a, b diff.Change) bool {
	return sideEqual(a.New, b.New)
}

func sideEqual(a, b *diff.EntrySide) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Mode == b.Mode && a.OID == b.OID
}

// mergeFile resolves one path present (differently) on both sides: a
// three-way content/mode merge, recording conflict stages if either
// fails.
func mergeFile(store Store, path string, left, right diff.Change, names Names) (clean *diff.Change, conflict *ConflictEntry, conflictBlob []byte, err error) {
	var baseOID, leftOID, rightOID objfmt.OID
	var baseMode, leftMode, rightMode objfmt.FileMode
	var baseAbsent, leftAbsent, rightAbsent bool

	if left.Old != nil {
		baseOID, baseMode = left.Old.OID, left.Old.Mode
	} else {
		baseAbsent = true
	}
	if left.New != nil {
		leftOID, leftMode = left.New.OID, left.New.Mode
	} else {
		leftAbsent = true
	}
	if right.New != nil {
		rightOID, rightMode = right.New.OID, right.New.Mode
	} else {
		rightAbsent = true
	}

	baseContent, err := loadBlob(store, baseOID, baseAbsent)
	if err != nil {
		return nil, nil, nil, err
	}
	leftContent, err := loadBlob(store, leftOID, leftAbsent)
	if err != nil {
		return nil, nil, nil, err
	}
	rightContent, err := loadBlob(store, rightOID, rightAbsent)
	if err != nil {
		return nil, nil, nil, err
	}

	blobResult := Merge3(baseContent, leftContent, rightContent, names.Left, names.Right)
	modeOK, mergedMode := ModeMerge(baseMode, leftMode, rightMode)

	if blobResult.Clean && modeOK {
		newOID, err := store.Store(&objfmt.Blob{Data: blobResult.Content})
		if err != nil {
			return nil, nil, nil, err
		}
		return &diff.Change{Path: path, Old: left.New, New: &diff.EntrySide{Mode: mergedMode, OID: newOID}}, nil, nil, nil
	}

	entry := ConflictEntry{Mode: mergedMode}
	if !baseAbsent {
		entry.BaseOID = &baseOID
	}
	if !leftAbsent {
		entry.OursOID = &leftOID
	}
	if !rightAbsent {
		entry.TheirsOID = &rightOID
	}
	return nil, &entry, blobResult.Content, nil
}

func loadBlob(store Store, oid objfmt.OID, absent bool) ([]byte, error) {
	if absent {
		return nil, nil
	}
	obj, err := store.Load(oid)
	if err != nil {
		return nil, err
	}
	blob, ok := obj.(*objfmt.Blob)
	if !ok {
		return nil, fmt.Errorf("merge: %s is not a blob", oid)
	}
	return blob.Data, nil
}

// resolveCollisions implements §4.6 step 3: scan both diffs for
// file/directory collisions (one side's file at P sits where the other
// side's ancestor of P is a directory), demote the offending side to a
// conflict, remove it from the clean diff, and stash its content as an
// untracked "<name>~<side>" entry.
func resolveCollisions(store Store, res *Result, leftDiff, rightDiff []diff.Change, names Names) error {
	leftDirs := dirSet(leftDiff)
	rightDirs := dirSet(rightDiff)

	var remaining []diff.Change
	for _, c := range res.Clean {
		side := ""
		if ancestorIsDir(c.Path, rightDirs) {
			side = names.Right
		} else if ancestorIsDir(c.Path, leftDirs) {
			side = names.Left
		}
		if side == "" {
			remaining = append(remaining, c)
			continue
		}
		if c.New != nil {
			obj, err := store.Load(c.New.OID)
			if err != nil {
				return err
			}
			if blob, ok := obj.(*objfmt.Blob); ok {
				res.Untracked[fmt.Sprintf("%s~%s", c.Path, side)] = blob.Data
			}
		}
		entry := ConflictEntry{Mode: objfmt.Regular}
		if c.New != nil {
			if side == names.Right {
				entry.TheirsOID = &c.New.OID
			} else {
				entry.OursOID = &c.New.OID
			}
		}
		res.Conflicts[c.Path] = entry
	}
	res.Clean = remaining
	return nil
}

// dirSet returns the set of paths that are directories on a given side
// (present as the Old or New side of a tree-diff change, meaning at least
// one descendant path exists under them).
func dirSet(changes []diff.Change) map[string]bool {
	dirs := make(map[string]bool)
	for _, c := range changes {
		parts := strings.Split(c.Path, "/")
		for i := 1; i < len(parts); i++ {
			dirs[strings.Join(parts[:i], "/")] = true
		}
	}
	return dirs
}

func ancestorIsDir(path string, dirs map[string]bool) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if dirs[strings.Join(parts[:i], "/")] {
			return true
		}
	}
	return false
}

// ApplyConflicts records each entry of a Result's Conflicts map in idx
// via AddConflictSet.
func ApplyConflicts(idx *index.Index, conflicts map[string]ConflictEntry) {
	for path, c := range conflicts {
		idx.AddConflictSet(path, c.Mode, c.BaseOID, c.OursOID, c.TheirsOID)
	}
}
