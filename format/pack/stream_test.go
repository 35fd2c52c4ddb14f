package pack

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

type StreamSuite struct {
	suite.Suite
}

func TestStreamSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(StreamSuite))
}

func (s *StreamSuite) TestWriteReadFullObjects() {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 2)
	s.Require().NoError(err)

	blobData := []byte("hello, world\n")
	off1, _, err := w.WriteEntry(Entry{Type: objfmt.BlobObject, Data: blobData})
	s.NoError(err)
	s.Equal(int64(12), off1)

	treeData := append([]byte("100644 file\x00"), objfmt.ZeroOID[:]...)
	_, _, err = w.WriteEntry(Entry{Type: objfmt.TreeObject, Data: treeData})
	s.NoError(err)

	_, err = w.Checksum()
	s.NoError(err)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	s.Require().NoError(err)
	s.Equal(uint32(2), r.Header.Count)

	e1, err := r.Next()
	s.NoError(err)
	s.Equal(objfmt.BlobObject, e1.Type)
	s.Equal(blobData, e1.Data)

	e2, err := r.Next()
	s.NoError(err)
	s.Equal(objfmt.TreeObject, e2.Type)

	_, err = r.Next()
	s.ErrorIs(err, io.EOF)

	checksum, err := r.Checksum()
	s.NoError(err)
	s.False(checksum.IsZero())
}

func (s *StreamSuite) TestOFSDeltaOffsetRoundTrips() {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 2)
	s.Require().NoError(err)

	base := bytes.Repeat([]byte("base content\n"), 20)
	baseOff, _, err := w.WriteEntry(Entry{Type: objfmt.BlobObject, Data: base})
	s.NoError(err)

	target := append(append([]byte{}, base...), []byte("more\n")...)
	delta := Diff(base, target)
	_, _, err = w.WriteEntry(Entry{
		Type:       objfmt.OFSDeltaObject,
		Data:       delta,
		Size:       uint64(len(target)),
		BaseOffset: baseOff,
	})
	s.NoError(err)
	_, err = w.Checksum()
	s.NoError(err)

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	s.Require().NoError(err)

	first, err := r.Next()
	s.NoError(err)
	s.Equal(base, first.Data)

	second, err := r.Next()
	s.NoError(err)
	s.Equal(objfmt.OFSDeltaObject, second.Type)
	s.Equal(baseOff, second.BaseOffset)

	out, err := ApplyDelta(first.Data, second.Data)
	s.NoError(err)
	s.Equal(target, out)
}
