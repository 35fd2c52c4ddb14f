package merge

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

type ContentMergeSuite struct {
	suite.Suite
}

func TestContentMergeSuite(t *testing.T) {
	suite.Run(t, new(ContentMergeSuite))
}

func (s *ContentMergeSuite) TestOnlyLeftChangedTakesLeft() {
	base := []byte("one\ntwo\nthree\n")
	left := []byte("one\nTWO\nthree\n")
	res := Merge3(base, left, base, "ours", "theirs")
	s.True(res.Clean)
	s.Equal(left, res.Content)
}

func (s *ContentMergeSuite) TestOnlyRightChangedTakesRight() {
	base := []byte("one\ntwo\nthree\n")
	right := []byte("one\ntwo\nTHREE\n")
	res := Merge3(base, base, right, "ours", "theirs")
	s.True(res.Clean)
	s.Equal(right, res.Content)
}

func (s *ContentMergeSuite) TestIdenticalChangeIsClean() {
	base := []byte("one\ntwo\n")
	same := []byte("one\nTWO\n")
	res := Merge3(base, same, same, "ours", "theirs")
	s.True(res.Clean)
	s.Equal(same, res.Content)
}

func (s *ContentMergeSuite) TestNonOverlappingEditsMergeCleanly() {
	base := []byte("one\ntwo\nthree\nfour\n")
	left := []byte("ONE\ntwo\nthree\nfour\n")
	right := []byte("one\ntwo\nthree\nFOUR\n")
	res := Merge3(base, left, right, "ours", "theirs")
	s.Require().True(res.Clean)
	s.Equal("ONE\ntwo\nthree\nFOUR\n", string(res.Content))
}

func (s *ContentMergeSuite) TestOverlappingEditsConflict() {
	base := []byte("one\ntwo\nthree\n")
	left := []byte("one\nLEFT\nthree\n")
	right := []byte("one\nRIGHT\nthree\n")
	res := Merge3(base, left, right, "ours", "theirs")
	s.False(res.Clean)
	content := string(res.Content)
	s.Contains(content, "<<<<<<< ours")
	s.Contains(content, "LEFT")
	s.Contains(content, "=======")
	s.Contains(content, "RIGHT")
	s.Contains(content, ">>>>>>> theirs")
}

func (s *ContentMergeSuite) TestDeleteOnOneSideIsNotClean() {
	base := []byte("one\ntwo\n")
	right := []byte("one\ntwo\nthree\n")
	res := Merge3(base, nil, right, "ours", "theirs")
	s.False(res.Clean)
	s.Equal(right, res.Content)
}

func (s *ContentMergeSuite) TestModeMergeAgreesOnUnanimousChange() {
	ok, mode := ModeMerge(objfmt.Regular, objfmt.Executable, objfmt.Executable)
	s.True(ok)
	s.Equal(objfmt.Executable, mode)
}

func (s *ContentMergeSuite) TestModeMergeOneSidedChangeTakesChanger() {
	ok, mode := ModeMerge(objfmt.Regular, objfmt.Executable, objfmt.Regular)
	s.True(ok)
	s.Equal(objfmt.Executable, mode)
}

func (s *ContentMergeSuite) TestModeMergeConflictingChangesFail() {
	ok, _ := ModeMerge(objfmt.Regular, objfmt.Executable, objfmt.Symlink)
	s.False(ok)
}
