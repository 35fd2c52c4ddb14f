package pktline

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PktlineSuite struct {
	suite.Suite
}

func TestPktlineSuite(t *testing.T) {
	suite.Run(t, new(PktlineSuite))
}

func (s *PktlineSuite) TestWriteFlush() {
	var buf bytes.Buffer
	s.Require().NoError(WriteFlush(&buf))
	s.Equal("0000", buf.String())
}

func (s *PktlineSuite) TestWriteAndReadPacket() {
	var buf bytes.Buffer
	s.Require().NoError(WritePacket(&buf, []byte("hello\n")))
	s.Equal("000ahello\n", buf.String())

	sc := NewScanner(&buf)
	payload, err := sc.ReadPacket()
	s.Require().NoError(err)
	s.Equal([]byte("hello\n"), payload)
}

func (s *PktlineSuite) TestWriteLineAppendsNewline() {
	var buf bytes.Buffer
	s.Require().NoError(WriteLine(&buf, "want deadbeef"))
	s.Equal("0012want deadbeef\n", buf.String())
}

func (s *PktlineSuite) TestWriteLineDoesNotDoubleNewline() {
	var buf bytes.Buffer
	s.Require().NoError(WriteLine(&buf, "want deadbeef\n"))
	s.Equal("0012want deadbeef\n", buf.String())
}

func (s *PktlineSuite) TestScannerReadsFlushAsNil() {
	var buf bytes.Buffer
	s.Require().NoError(WriteFlush(&buf))

	sc := NewScanner(&buf)
	payload, err := sc.ReadPacket()
	s.Require().NoError(err)
	s.Nil(payload)
}

func (s *PktlineSuite) TestReadAllStopsAtFlush() {
	var buf bytes.Buffer
	s.Require().NoError(WriteLine(&buf, "one"))
	s.Require().NoError(WriteLine(&buf, "two"))
	s.Require().NoError(WriteFlush(&buf))
	s.Require().NoError(WriteLine(&buf, "three")) // after the flush, unread

	sc := NewScanner(&buf)
	lines, err := sc.ReadAll()
	s.Require().NoError(err)
	s.Equal([][]byte{[]byte("one\n"), []byte("two\n")}, lines)
}

func (s *PktlineSuite) TestWriteTooLongPayloadFails() {
	var buf bytes.Buffer
	err := WritePacket(&buf, make([]byte, MaxLength+1))
	s.ErrorIs(err, ErrTooLong)
}

func (s *PktlineSuite) TestInvalidLengthHeaderFails() {
	r := bytes.NewReader([]byte("zzzz"))
	sc := NewScanner(r)
	_, err := sc.ReadPacket()
	s.ErrorIs(err, ErrInvalidLength)
}

func (s *PktlineSuite) TestShortDeclaredLengthFails() {
	r := bytes.NewReader([]byte("0001"))
	sc := NewScanner(r)
	_, err := sc.ReadPacket()
	s.ErrorIs(err, ErrInvalidLength)
}

func (s *PktlineSuite) TestReadPacketEOFOnEmptyStream() {
	sc := NewScanner(bytes.NewReader(nil))
	_, err := sc.ReadPacket()
	s.ErrorIs(err, io.EOF)
}
