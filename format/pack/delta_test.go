package pack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DeltaSuite struct {
	suite.Suite
}

func TestDeltaSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(DeltaSuite))
}

func (s *DeltaSuite) TestRoundTripIdentical() {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 100)
	delta := Diff(base, base)
	out, err := ApplyDelta(base, delta)
	s.NoError(err)
	s.Equal(base, out)
}

func (s *DeltaSuite) TestRoundTripAppend() {
	base := bytes.Repeat([]byte("package main\n\nfunc main() {}\n"), 50)
	target := append(append([]byte{}, base...), []byte("\n// trailing comment\n")...)

	delta := Diff(base, target)
	out, err := ApplyDelta(base, delta)
	s.NoError(err)
	s.Equal(target, out)
}

func (s *DeltaSuite) TestRoundTripInsertMiddle() {
	base := bytes.Repeat([]byte("line one\nline two\nline three\n"), 40)
	target := append(append(append([]byte{}, base[:300]...), []byte("INSERTED BLOCK\n")...), base[300:]...)

	delta := Diff(base, target)
	out, err := ApplyDelta(base, delta)
	s.NoError(err)
	s.Equal(target, out)
}

func (s *DeltaSuite) TestRoundTripNoCommonMaterial() {
	base := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	target := []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	delta := Diff(base, target)
	out, err := ApplyDelta(base, delta)
	s.NoError(err)
	s.Equal(target, out)
}

func (s *DeltaSuite) TestApplyDeltaRejectsSourceSizeMismatch() {
	base := []byte("hello world")
	delta := Diff(base, []byte("hello there"))
	_, err := ApplyDelta([]byte("wrong base length"), delta)
	s.ErrorIs(err, ErrDeltaCorrupt)
}

func (s *DeltaSuite) TestEncodeCopyRoundTripsThroughLargeSizes() {
	base := bytes.Repeat([]byte{0x42}, maxCopySize+10)
	target := bytes.Repeat([]byte{0x42}, maxCopySize+10)
	target = append(target, []byte("tail")...)

	delta := Diff(base, target)
	out, err := ApplyDelta(base, delta)
	s.NoError(err)
	s.Equal(target, out)
}
