package pack

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pjbgf/sha1cd"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// magic is the 4-byte signature every pack stream opens with.
var magic = [4]byte{'P', 'A', 'C', 'K'}

const version = 2

// Header is the 12-byte PACK stream preamble: magic, version, object count.
type Header struct {
	Count uint32
}

func writeHeader(w io.Writer, h Header) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], version)
	binary.BigEndian.PutUint32(buf[4:8], h.Count)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (Header, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("pack: reading header: %w", err)
	}
	if !bytes.Equal(buf[0:4], magic[:]) {
		return Header{}, fmt.Errorf("pack: bad signature %q", buf[0:4])
	}
	v := binary.BigEndian.Uint32(buf[4:8])
	if v != version {
		return Header{}, fmt.Errorf("pack: unsupported version %d", v)
	}
	return Header{Count: binary.BigEndian.Uint32(buf[8:12])}, nil
}

// Entry is one object record as it appears in, or is about to be appended
// to, a pack stream. Type decides how Data is interpreted: a full object
// payload, a REF_DELTA delta against BaseOID, or an OFS_DELTA delta against
// the entry that starts at BaseOffset.
type Entry struct {
	Type       objfmt.ObjectType
	Offset     int64 // position of this entry's header in the stream
	Size       uint64 // inflated size of Data (full object) or delta target size
	Data       []byte // full object payload, or delta stream for *_DELTA entries
	BaseOID    objfmt.OID
	BaseOffset int64 // absolute offset of the base entry, for OFS_DELTA
}

func (e Entry) isDelta() bool {
	return e.Type == objfmt.OFSDeltaObject || e.Type == objfmt.REFDeltaObject
}

// countingWriter tracks total bytes written so the Writer can report exact
// stream offsets for OFS_DELTA back-references; the Reader uses one as a
// tee sink to count the bytes it has pulled from its source.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Writer streams pack entries out in Git's wire order: header, each entry's
// type/size varint header plus zlib-deflated body, then a trailing SHA-1
// over everything written so far.
type Writer struct {
	raw  io.Writer
	hash sha1cd.Hash
	cw   *countingWriter
}

func NewWriter(w io.Writer, count uint32) (*Writer, error) {
	h := sha1cd.New()
	cw := &countingWriter{w: io.MultiWriter(w, h)}
	pw := &Writer{raw: w, hash: h, cw: cw}
	if err := writeHeader(cw, Header{Count: count}); err != nil {
		return nil, err
	}
	return pw, nil
}

// WriteEntry appends one object or delta record, returning the offset its
// header was written at (needed by OFS_DELTA children that follow later)
// and the CRC32 of the entry's on-disk bytes (header through compressed
// body), which a caller building a companion .idx needs per entry.
func (pw *Writer) WriteEntry(e Entry) (offset int64, crc uint32, err error) {
	offset = pw.cw.n
	crcw := crc32.NewIEEE()
	mw := io.MultiWriter(pw.cw, crcw)

	var hdrType int
	switch e.Type {
	case objfmt.OFSDeltaObject:
		hdrType = 6
	case objfmt.REFDeltaObject:
		hdrType = 7
	default:
		hdrType = int(e.Type)
	}

	size := e.Size
	if size == 0 {
		size = uint64(len(e.Data))
	}
	hdr := putObjHeader(hdrType, size)
	if _, err := mw.Write(hdr); err != nil {
		return offset, 0, err
	}

	switch e.Type {
	case objfmt.REFDeltaObject:
		if _, err := mw.Write(e.BaseOID[:]); err != nil {
			return offset, 0, err
		}
	case objfmt.OFSDeltaObject:
		back := offset - e.BaseOffset
		buf := putOfsOffset(uint64(back))
		if _, err := mw.Write(buf); err != nil {
			return offset, 0, err
		}
	}

	zw := zlib.NewWriter(mw)
	if _, err := zw.Write(e.Data); err != nil {
		return offset, 0, err
	}
	if err := zw.Close(); err != nil {
		return offset, 0, err
	}
	return offset, crcw.Sum32(), nil
}

// Checksum finalizes the stream with the running SHA-1 trailer and returns
// its value.
func (pw *Writer) Checksum() (objfmt.OID, error) {
	sum := pw.hash.Sum(nil)
	var oid objfmt.OID
	copy(oid[:], sum)
	if _, err := pw.raw.Write(sum); err != nil {
		return objfmt.OID{}, err
	}
	return oid, nil
}

// Reader parses a pack stream's header and lets a caller pull entries one
// at a time, tracking byte offsets so OFS_DELTA bases can be resolved.
type Reader struct {
	br     *bufio.Reader
	hash   sha1cd.Hash
	Header Header
	cnt    *countingWriter // bytes pulled from the source, including br's read-ahead
	n      uint32
}

func NewReader(r io.Reader) (*Reader, error) {
	h := sha1cd.New()
	cnt := &countingWriter{w: io.Discard}
	tr := io.TeeReader(r, io.MultiWriter(h, cnt))
	br := bufio.NewReader(tr)
	hdr, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	return &Reader{br: br, hash: h, Header: hdr, cnt: cnt}, nil
}

// Next reads the following entry's header and inflates its body. For
// *_DELTA entries, Data holds the raw delta stream (not yet applied); the
// caller resolves bases via BaseOID/BaseOffset and Unpacker.
func (r *Reader) Next() (Entry, error) {
	if r.n >= r.Header.Count {
		return Entry{}, io.EOF
	}
	start := r.cnt.n - int64(r.br.Buffered())

	typeCode, size, err := ReadObjHeader(r.br)
	if err != nil {
		return Entry{}, fmt.Errorf("pack: reading entry %d header: %w", r.n, err)
	}

	e := Entry{Offset: start, Size: size}
	switch typeCode {
	case 1:
		e.Type = objfmt.CommitObject
	case 2:
		e.Type = objfmt.TreeObject
	case 3:
		e.Type = objfmt.BlobObject
	case 6:
		e.Type = objfmt.OFSDeltaObject
		back, err := ReadOfsOffset(r.br)
		if err != nil {
			return Entry{}, fmt.Errorf("pack: reading ofs-delta offset: %w", err)
		}
		e.BaseOffset = start - int64(back)
	case 7:
		e.Type = objfmt.REFDeltaObject
		if _, err := io.ReadFull(r.br, e.BaseOID[:]); err != nil {
			return Entry{}, fmt.Errorf("pack: reading ref-delta base: %w", err)
		}
	default:
		return Entry{}, fmt.Errorf("pack: unknown entry type code %d", typeCode)
	}

	zr, err := zlib.NewReader(r.br)
	if err != nil {
		return Entry{}, fmt.Errorf("pack: entry %d: opening zlib body: %w", r.n, err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return Entry{}, fmt.Errorf("pack: entry %d: inflating body: %w", r.n, err)
	}
	zr.Close()

	e.Data = data
	r.n++
	return e, nil
}

// headerLen reports how many bytes putObjHeader would have produced for
// (type, size), without re-encoding.
func headerLen(t int, size uint64) int {
	n := 1
	size >>= 4
	for size != 0 {
		n++
		size >>= 7
	}
	return n
}

// Checksum reads and returns the trailing 20-byte pack checksum; call it
// after the final Next returns io.EOF. The value is not compared against
// the bytes read.
func (r *Reader) Checksum() (objfmt.OID, error) {
	var oid objfmt.OID
	if _, err := io.ReadFull(r.br, oid[:]); err != nil {
		return oid, err
	}
	return oid, nil
}
