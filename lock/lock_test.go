package lock

import (
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"
)

type LockSuite struct {
	suite.Suite
}

func TestLockSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(LockSuite))
}

func (s *LockSuite) TestCommitPublishesWrite() {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("refs/heads", 0o755))

	l, err := Acquire(fs, "refs/heads/main")
	s.Require().NoError(err)

	_, err = l.Write([]byte("deadbeef\n"))
	s.Require().NoError(err)
	s.Require().NoError(l.Commit())

	f, err := fs.Open("refs/heads/main")
	s.Require().NoError(err)
	defer f.Close()

	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	s.Equal("deadbeef\n", string(buf[:n]))

	_, err = fs.Stat("refs/heads/main.lock")
	s.True(os.IsNotExist(err))
}

func (s *LockSuite) TestRollbackLeavesTargetUntouched() {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("refs/heads", 0o755))

	l, err := Acquire(fs, "refs/heads/main")
	s.Require().NoError(err)
	_, err = l.Write([]byte("ignored"))
	s.Require().NoError(err)
	s.Require().NoError(l.Rollback())

	_, err = fs.Stat("refs/heads/main")
	s.True(os.IsNotExist(err))
	_, err = fs.Stat("refs/heads/main.lock")
	s.True(os.IsNotExist(err))
}

func (s *LockSuite) TestAcquireDeniedWhileHeld() {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("refs/heads", 0o755))

	first, err := Acquire(fs, "refs/heads/main")
	s.Require().NoError(err)
	defer first.Rollback()

	_, err = Acquire(fs, "refs/heads/main")
	s.ErrorIs(err, ErrDenied)
}

func (s *LockSuite) TestAcquireMissingParent() {
	fs := memfs.New()
	_, err := Acquire(fs, "refs/heads/main")
	s.ErrorIs(err, ErrMissingParent)
}

func (s *LockSuite) TestOperationsAfterCommitAreStale() {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("refs/heads", 0o755))

	l, err := Acquire(fs, "refs/heads/main")
	s.Require().NoError(err)
	s.Require().NoError(l.Commit())

	_, err = l.Write([]byte("x"))
	s.ErrorIs(err, ErrStale)
	s.ErrorIs(l.Commit(), ErrStale)
	s.ErrorIs(l.Rollback(), ErrStale)
}
