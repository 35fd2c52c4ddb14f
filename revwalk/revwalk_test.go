package revwalk

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

type memStore map[objfmt.OID]objfmt.Object

func (m memStore) Load(oid objfmt.OID) (objfmt.Object, error) {
	o, ok := m[oid]
	if !ok {
		return nil, fmt.Errorf("not found: %s", oid)
	}
	return o, nil
}

func (m memStore) put(o objfmt.Object) objfmt.OID {
	oid := objfmt.OIDOf(o)
	m[oid] = o
	return oid
}

// commitAt builds and stores a commit at treeOID with the given parents,
// each one minute apart so queue ordering is deterministic.
func commitAt(store memStore, treeOID objfmt.OID, parents []objfmt.OID, minute int) objfmt.OID {
	c := &objfmt.Commit{
		TreeOID:    treeOID,
		ParentOIDs: parents,
		Author:     objfmt.Signature{Name: "a", Email: "a@x.com", When: time.Unix(int64(minute*60), 0).UTC()},
		Committer:  objfmt.Signature{Name: "a", Email: "a@x.com", When: time.Unix(int64(minute*60), 0).UTC()},
		Message:    fmt.Sprintf("commit %d", minute),
	}
	return store.put(c)
}

type RevWalkSuite struct {
	suite.Suite
}

func TestRevWalkSuite(t *testing.T) {
	suite.Run(t, new(RevWalkSuite))
}

// TestLinearHistoryNewestFirst builds a 3-commit chain and checks that a
// plain Include walk yields newest-committer-date first.
func (s *RevWalkSuite) TestLinearHistoryNewestFirst() {
	store := make(memStore)
	emptyTree := store.put(&objfmt.Tree{})

	c1 := commitAt(store, emptyTree, nil, 1)
	c2 := commitAt(store, emptyTree, []objfmt.OID{c1}, 2)
	c3 := commitAt(store, emptyTree, []objfmt.OID{c2}, 3)

	w := New(store, nil, true, false)
	s.Require().NoError(w.Include(c3))

	got, err := w.Commits()
	s.Require().NoError(err)
	s.Equal([]objfmt.OID{c3, c2, c1}, got)
}

// TestExcludeRootPrunesHistory checks that excluding an ancestor stops the
// walk from yielding it or anything below it.
func (s *RevWalkSuite) TestExcludeRootPrunesHistory() {
	store := make(memStore)
	emptyTree := store.put(&objfmt.Tree{})

	c1 := commitAt(store, emptyTree, nil, 1)
	c2 := commitAt(store, emptyTree, []objfmt.OID{c1}, 2)
	c3 := commitAt(store, emptyTree, []objfmt.OID{c2}, 3)

	w := New(store, nil, true, false)
	s.Require().NoError(w.Include(c3))
	s.Require().NoError(w.Exclude(c1))

	got, err := w.Commits()
	s.Require().NoError(err)
	s.Equal([]objfmt.OID{c3, c2}, got)
}

// TestWalkFalseYieldsOnlyRoots exercises fetch-negotiation mode: no
// ancestors are ever descended into.
func (s *RevWalkSuite) TestWalkFalseYieldsOnlyRoots() {
	store := make(memStore)
	emptyTree := store.put(&objfmt.Tree{})

	c1 := commitAt(store, emptyTree, nil, 1)
	c2 := commitAt(store, emptyTree, []objfmt.OID{c1}, 2)

	w := New(store, nil, false, false)
	s.Require().NoError(w.Include(c2))

	got, err := w.Commits()
	s.Require().NoError(err)
	s.Equal([]objfmt.OID{c2}, got)
}

// TestPathSimplificationSkipsTreesameCommits checks that a commit whose
// tree is unchanged from its parent (restricted to the filter) is
// suppressed from the output.
func (s *RevWalkSuite) TestPathSimplificationSkipsTreesameCommits() {
	store := make(memStore)
	blobA := store.put(&objfmt.Blob{Data: []byte("a")})
	blobB := store.put(&objfmt.Blob{Data: []byte("b")})

	treeBase := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "watched.txt", Mode: objfmt.Regular, OID: blobA},
		{Name: "other.txt", Mode: objfmt.Regular, OID: blobA},
	}})
	// c2 only touches "other.txt" -- should be TREESAME under the filter.
	treeUnrelated := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "watched.txt", Mode: objfmt.Regular, OID: blobA},
		{Name: "other.txt", Mode: objfmt.Regular, OID: blobB},
	}})
	// c3 touches "watched.txt" -- should survive the filter.
	treeWatched := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "watched.txt", Mode: objfmt.Regular, OID: blobB},
		{Name: "other.txt", Mode: objfmt.Regular, OID: blobB},
	}})

	c1 := commitAt(store, treeBase, nil, 1)
	c2 := commitAt(store, treeUnrelated, []objfmt.OID{c1}, 2)
	c3 := commitAt(store, treeWatched, []objfmt.OID{c2}, 3)

	w := New(store, []string{"watched.txt"}, true, false)
	s.Require().NoError(w.Include(c3))

	got, err := w.Commits()
	s.Require().NoError(err)
	s.Equal([]objfmt.OID{c3, c1}, got)
}

// TestObjectsSkipsUninterestingTrees checks that Objects only emits blobs
// and trees reachable from non-uninteresting commits.
func (s *RevWalkSuite) TestObjectsSkipsUninterestingTrees() {
	store := make(memStore)
	blobOld := store.put(&objfmt.Blob{Data: []byte("old")})
	blobNew := store.put(&objfmt.Blob{Data: []byte("new")})

	treeOld := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "f.txt", Mode: objfmt.Regular, OID: blobOld},
	}})
	treeNew := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "f.txt", Mode: objfmt.Regular, OID: blobNew},
	}})

	c1 := commitAt(store, treeOld, nil, 1)
	c2 := commitAt(store, treeNew, []objfmt.OID{c1}, 2)

	w := New(store, nil, true, true)
	s.Require().NoError(w.Include(c2))
	s.Require().NoError(w.Exclude(c1))

	_, err := w.Commits()
	s.Require().NoError(err)

	seen := make(map[objfmt.OID]objfmt.ObjectType)
	s.Require().NoError(w.Objects(func(oid objfmt.OID, t objfmt.ObjectType) bool {
		seen[oid] = t
		return true
	}))

	s.Contains(seen, treeNew)
	s.Contains(seen, blobNew)
	s.NotContains(seen, treeOld)
	s.NotContains(seen, blobOld)
}

// TestFromExprsDefaultsToHEAD checks the "empty input => HEAD" rule.
func (s *RevWalkSuite) TestFromExprsDefaultsToHEAD() {
	store := make(memStore)
	emptyTree := store.put(&objfmt.Tree{})
	head := commitAt(store, emptyTree, nil, 1)

	w, err := FromExprs(store, nil, nil, head, true, false)
	s.Require().NoError(err)

	got, err := w.Commits()
	s.Require().NoError(err)
	s.Equal([]objfmt.OID{head}, got)
}
