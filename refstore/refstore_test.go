package refstore

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

type RefStoreSuite struct {
	suite.Suite
}

func TestRefStoreSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(RefStoreSuite))
}

func oid(b byte) objfmt.OID {
	var o objfmt.OID
	o[len(o)-1] = b
	return o
}

func (s *RefStoreSuite) newStore() *Store {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("refs/heads", 0o755))
	s.Require().NoError(fs.MkdirAll("refs/remotes", 0o755))
	return New(fs, "")
}

func (s *RefStoreSuite) TestValidateName() {
	s.NoError(ValidateName("refs/heads/main"))
	s.NoError(ValidateName("HEAD"))
	s.Error(ValidateName(""))
	s.Error(ValidateName(".hidden"))
	s.Error(ValidateName("refs/heads/"))
	s.Error(ValidateName("/refs/heads/main"))
	s.Error(ValidateName("refs/heads/../x"))
	s.Error(ValidateName("refs/heads/a.lock"))
	s.Error(ValidateName("refs/heads/a@{1}"))
	s.Error(ValidateName("refs/heads/a*b"))
}

func (s *RefStoreSuite) TestCreateBranchAndRead() {
	st := s.newStore()
	target := oid(1)
	s.Require().NoError(st.CreateBranch("main", target))

	got, err := st.Read("refs/heads/main")
	s.NoError(err)
	s.Equal(target, got)

	s.ErrorIs(st.CreateBranch("main", target), ErrStaleValue)
}

func (s *RefStoreSuite) TestSymbolicHEADResolves() {
	st := s.newStore()
	target := oid(2)
	s.Require().NoError(st.CreateBranch("main", target))
	s.Require().NoError(st.SetSymbolic("HEAD", "refs/heads/main"))

	got, err := st.Read("HEAD")
	s.NoError(err)
	s.Equal(target, got)

	cur, err := st.CurrentRef("HEAD")
	s.NoError(err)
	s.False(cur.Detached)
	s.Equal("refs/heads/main", cur.Name)
}

func (s *RefStoreSuite) TestDetachedHEAD() {
	st := s.newStore()
	target := oid(3)
	s.Require().NoError(st.Update("HEAD", target))

	cur, err := st.CurrentRef("HEAD")
	s.NoError(err)
	s.True(cur.Detached)
	s.Equal(target, cur.OID)
}

func (s *RefStoreSuite) TestCompareAndSwap() {
	st := s.newStore()
	a, b := oid(4), oid(5)
	s.Require().NoError(st.CreateBranch("topic", a))

	err := st.CompareAndSwap("refs/heads/topic", &b, nil)
	s.ErrorIs(err, ErrStaleValue)

	s.Require().NoError(st.CompareAndSwap("refs/heads/topic", &a, &b))
	got, err := st.Read("refs/heads/topic")
	s.NoError(err)
	s.Equal(b, got)
}

func (s *RefStoreSuite) TestDeleteBranch() {
	st := s.newStore()
	target := oid(6)
	s.Require().NoError(st.CreateBranch("gone", target))

	got, err := st.DeleteBranch("gone")
	s.NoError(err)
	s.Equal(target, got)

	_, err = st.Read("refs/heads/gone")
	s.ErrorIs(err, ErrNotFound)
}

func (s *RefStoreSuite) TestListRefsAndReverseMap() {
	st := s.newStore()
	t1, t2 := oid(7), oid(8)
	s.Require().NoError(st.CreateBranch("main", t1))
	s.Require().NoError(st.CreateBranch("topic", t2))

	names, err := st.ListRefs("refs/heads")
	s.NoError(err)
	s.ElementsMatch([]string{"refs/heads/main", "refs/heads/topic"}, names)

	rev, err := st.ReverseMap()
	s.NoError(err)
	s.Equal([]string{"refs/heads/main"}, rev[t1])
	s.Equal([]string{"refs/heads/topic"}, rev[t2])
}

func (s *RefStoreSuite) TestShortName() {
	s.Equal("main", ShortName("refs/heads/main"))
	s.Equal("origin/main", ShortName("refs/remotes/origin/main"))
	s.Equal("tags/v1", ShortName("refs/tags/v1"))
}
