package objfmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ObjectSuite struct {
	suite.Suite
}

func TestObjectSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ObjectSuite))
}

// TestBlobRoundTrip exercises Testable Property 1: hashing a blob's
// canonical serialization and re-deriving its OID from the stored payload
// agree.
func (s *ObjectSuite) TestBlobRoundTrip() {
	blob := &Blob{Data: []byte("package main\n\nfunc main() {}\n")}
	oid := OIDOf(blob)

	got := HashObject(blob.Type(), blob.Payload())
	s.Equal(oid, got)

	s.Equal(BlobObject, blob.Type())
	s.Equal(blob.Data, blob.Payload())
}

func (s *ObjectSuite) TestEmptyBlobRoundTrip() {
	blob := &Blob{}
	oid := OIDOf(blob)
	s.Equal(oid, HashObject(BlobObject, nil))
}

// TestTreeRoundTrip exercises Testable Property 2: serializing a tree and
// parsing it back produces the same entries, regardless of the order
// entries were originally added in.
func (s *ObjectSuite) TestTreeRoundTrip() {
	oidA := HashObject(BlobObject, []byte("a"))
	oidB := HashObject(BlobObject, []byte("b"))
	sub := HashObject(TreeObject, []byte("sub"))

	tree := &Tree{Entries: []TreeEntry{
		{Name: "b.txt", Mode: Regular, OID: oidB},
		{Name: "a.txt", Mode: Regular, OID: oidA},
		{Name: "pkg", Mode: Dir, OID: sub},
	}}
	s.Require().NoError(tree.Validate())

	payload := tree.Payload()
	decoded, err := DecodeTree(payload)
	s.Require().NoError(err)

	s.ElementsMatch(tree.Entries, decoded.Entries)
	s.Equal(payload, decoded.Payload())
}

// TestTreeCanonicalOrderIsInputOrderIndependent confirms two trees built
// from the same entries in different insertion order serialize identically
// (and therefore hash identically), per §3's canonical sort requirement.
func (s *ObjectSuite) TestTreeCanonicalOrderIsInputOrderIndependent() {
	oid1 := HashObject(BlobObject, []byte("1"))
	oid2 := HashObject(BlobObject, []byte("2"))
	oid3 := HashObject(BlobObject, []byte("3"))

	entries := []TreeEntry{
		{Name: "zeta.go", Mode: Regular, OID: oid1},
		{Name: "alpha", Mode: Dir, OID: oid2},
		{Name: "alpha.go", Mode: Regular, OID: oid3},
	}

	forward := &Tree{Entries: entries}

	reversed := make([]TreeEntry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	backward := &Tree{Entries: reversed}

	s.Equal(forward.Payload(), backward.Payload())

	sorted := forward.Sorted()
	s.Require().Len(sorted, 3)
	// "alpha.go" sorts before the directory "alpha" (compared as "alpha/",
	// and '.' < '/'), and both before "zeta.go".
	s.Equal("alpha.go", sorted[0].Name)
	s.Equal("alpha", sorted[1].Name)
	s.Equal("zeta.go", sorted[2].Name)
}

func (s *ObjectSuite) TestTreeValidateRejectsDuplicateAndInvalidNames() {
	oid := HashObject(BlobObject, []byte("x"))

	dup := &Tree{Entries: []TreeEntry{
		{Name: "a", Mode: Regular, OID: oid},
		{Name: "a", Mode: Regular, OID: oid},
	}}
	s.ErrorIs(dup.Validate(), ErrDuplicateEntry)

	bad := &Tree{Entries: []TreeEntry{
		{Name: "a/b", Mode: Regular, OID: oid},
	}}
	s.ErrorIs(bad.Validate(), ErrInvalidEntryName)
}

// TestCommitRoundTrip exercises Testable Property 1 for the commit variant:
// encode, decode, re-encode must agree byte-for-byte.
func (s *ObjectSuite) TestCommitRoundTrip() {
	treeOID := HashObject(TreeObject, []byte("tree"))
	parentOID := HashObject(CommitObject, []byte("parent"))
	when := time.Unix(1700000000, 0).UTC()

	commit := &Commit{
		TreeOID:    treeOID,
		ParentOIDs: []OID{parentOID},
		Author:     Signature{Name: "A Author", Email: "a@example.com", When: when, TZOffset: 120},
		Committer:  Signature{Name: "C Committer", Email: "c@example.com", When: when, TZOffset: -300},
		Message:    "do the thing\n",
	}

	payload := commit.Payload()
	decoded, err := DecodeCommit(payload)
	s.Require().NoError(err)

	s.Equal(commit.TreeOID, decoded.TreeOID)
	s.Equal(commit.ParentOIDs, decoded.ParentOIDs)
	s.Equal(commit.Author.Name, decoded.Author.Name)
	s.Equal(commit.Author.Email, decoded.Author.Email)
	s.Equal(commit.Author.TZOffset, decoded.Author.TZOffset)
	s.Equal(commit.Message, decoded.Message)
	s.Equal(payload, decoded.Payload())

	oid := OIDOf(commit)
	s.Equal(oid, HashObject(CommitObject, decoded.Payload()))
}

func (s *ObjectSuite) TestCommitRootHasNoParents() {
	commit := &Commit{TreeOID: HashObject(TreeObject, nil), Author: Signature{When: time.Unix(0, 0)}, Committer: Signature{When: time.Unix(0, 0)}}
	s.Equal(0, commit.NumParents())

	decoded, err := DecodeCommit(commit.Payload())
	s.Require().NoError(err)
	s.Empty(decoded.ParentOIDs)
}

func (s *ObjectSuite) TestOIDHexRoundTrip() {
	oid := HashObject(BlobObject, []byte("round trip me"))
	parsed, err := ParseOID(oid.String())
	s.Require().NoError(err)
	s.Equal(oid, parsed)

	_, err = ParseOID("not-hex")
	s.ErrorIs(err, ErrInvalidHex)
}

func (s *ObjectSuite) TestFileModeIsDir() {
	s.True(Dir.IsDir())
	s.False(Regular.IsDir())
	s.True(Regular.Valid())
	s.False(FileMode(0).Valid())
}
