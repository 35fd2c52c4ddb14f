package merge

import (
	"fmt"
	"testing"

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

func (m memStore) Store(o objfmt.Object) (objfmt.OID, error) {
	oid := objfmt.OIDOf(o)
	m[oid] = o
	return oid, nil
}

func (m memStore) put(o objfmt.Object) objfmt.OID {
	oid, _ := m.Store(o)
	return oid
}

type MergeSuite struct {
	suite.Suite
}

func TestMergeSuite(t *testing.T) {
	suite.Run(t, new(MergeSuite))
}

func (s *MergeSuite) names() Names {
	return Names{Base: "base", Left: "ours", Right: "theirs"}
}

// TestCleanAddOnRightIsApplied checks a file added only on the right side
// becomes a clean change, exercising the general (non-fast-forward) merge
// path by also giving left an unrelated addition of its own.
func (s *MergeSuite) TestCleanAddOnRightIsApplied() {
	store := make(memStore)
	blobA := store.put(&objfmt.Blob{Data: []byte("a")})
	blobNew := store.put(&objfmt.Blob{Data: []byte("new")})
	blobLeftOnly := store.put(&objfmt.Blob{Data: []byte("left-only")})

	baseTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
	}})
	leftTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
		{Name: "c.txt", Mode: objfmt.Regular, OID: blobLeftOnly},
	}})
	rightTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
		{Name: "b.txt", Mode: objfmt.Regular, OID: blobNew},
	}})

	res, err := ThreeWayMerge(store, baseTree, leftTree, rightTree, s.names())
	s.Require().NoError(err)
	s.Empty(res.Conflicts)
	s.Require().Len(res.Clean, 1)
	s.Equal("b.txt", res.Clean[0].Path)
}

// TestNonConflictingEditsBothSidesMergeClean checks two different files
// edited on different sides both end up clean.
func (s *MergeSuite) TestNonConflictingEditsBothSidesMergeClean() {
	store := make(memStore)
	blobA := store.put(&objfmt.Blob{Data: []byte("a")})
	blobB := store.put(&objfmt.Blob{Data: []byte("b")})
	blobALeft := store.put(&objfmt.Blob{Data: []byte("a-left")})
	blobBRight := store.put(&objfmt.Blob{Data: []byte("b-right")})

	baseTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
		{Name: "b.txt", Mode: objfmt.Regular, OID: blobB},
	}})
	leftTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobALeft},
		{Name: "b.txt", Mode: objfmt.Regular, OID: blobB},
	}})
	rightTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
		{Name: "b.txt", Mode: objfmt.Regular, OID: blobBRight},
	}})

	res, err := ThreeWayMerge(store, baseTree, leftTree, rightTree, s.names())
	s.Require().NoError(err)
	s.Empty(res.Conflicts)
	s.Require().Len(res.Clean, 1)
	s.Equal("b.txt", res.Clean[0].Path)
	s.Equal(blobBRight, res.Clean[0].New.OID)
}

// TestSamePathEditedDifferentlyConflicts checks that both sides editing
// the same file differently (with overlapping content) produces a
// conflict entry and marker-interleaved workspace content.
func (s *MergeSuite) TestSamePathEditedDifferentlyConflicts() {
	store := make(memStore)
	blobBase := store.put(&objfmt.Blob{Data: []byte("line\n")})
	blobLeft := store.put(&objfmt.Blob{Data: []byte("left-line\n")})
	blobRight := store.put(&objfmt.Blob{Data: []byte("right-line\n")})

	baseTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "f.txt", Mode: objfmt.Regular, OID: blobBase},
	}})
	leftTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "f.txt", Mode: objfmt.Regular, OID: blobLeft},
	}})
	rightTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "f.txt", Mode: objfmt.Regular, OID: blobRight},
	}})

	res, err := ThreeWayMerge(store, baseTree, leftTree, rightTree, s.names())
	s.Require().NoError(err)
	s.Empty(res.Clean)
	s.Require().Contains(res.Conflicts, "f.txt")

	entry := res.Conflicts["f.txt"]
	s.Equal(blobBase, *entry.BaseOID)
	s.Equal(blobLeft, *entry.OursOID)
	s.Equal(blobRight, *entry.TheirsOID)

	blob := res.ConflictBlobs["f.txt"]
	s.Contains(string(blob), "<<<<<<< ours")
	s.Contains(string(blob), "left-line")
	s.Contains(string(blob), "right-line")
	s.Contains(string(blob), ">>>>>>> theirs")
}

// TestFastForwardShortCircuits checks that base == left returns a
// fast-forward result equal to base->right's diff.
func (s *MergeSuite) TestFastForwardShortCircuits() {
	store := make(memStore)
	blobA := store.put(&objfmt.Blob{Data: []byte("a")})
	blobB := store.put(&objfmt.Blob{Data: []byte("b")})

	baseTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
	}})
	rightTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobB},
	}})

	res, err := ThreeWayMerge(store, baseTree, baseTree, rightTree, s.names())
	s.Require().NoError(err)
	s.True(res.FastForward)
	s.Require().Len(res.Clean, 1)
	s.Equal("a.txt", res.Clean[0].Path)
}

// TestAlreadyMergedShortCircuits checks base == right is a no-op.
func (s *MergeSuite) TestAlreadyMergedShortCircuits() {
	store := make(memStore)
	blobA := store.put(&objfmt.Blob{Data: []byte("a")})
	baseTree := store.put(&objfmt.Tree{Entries: []objfmt.TreeEntry{
		{Name: "a.txt", Mode: objfmt.Regular, OID: blobA},
	}})

	res, err := ThreeWayMerge(store, baseTree, baseTree, baseTree, s.names())
	s.Require().NoError(err)
	s.True(res.AlreadyMerged)
}
