// Package packidx implements the pack index (.idx) codec: the 256-entry
// fan-out table, sorted OID table, CRC32 table, and 32/64-bit offset table
// that let a reader map an object id to its byte offset in a pack file
// without scanning the pack itself.
package packidx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/pjbgf/sha1cd"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

var magic = [4]byte{0xff, 't', 'O', 'c'}

const version = 2
const largeOffsetFlag = 1 << 31

// Entry is one object's record, collected while writing a pack and then
// sorted by OID before being serialized.
type Entry struct {
	OID    objfmt.OID
	Offset int64
	CRC32  uint32
}

// Index is an in-memory, queryable decoding of a .idx file.
type Index struct {
	entries []Entry
	byOID   map[objfmt.OID]Entry
	packOID objfmt.OID
}

// Write serializes entries (which need not be pre-sorted) into Git's v2 pack
// index format, trailed by the pack's own checksum and a running SHA-1 over
// everything written.
func Write(w io.Writer, entries []Entry, packChecksum objfmt.OID) error {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OID.Compare(sorted[j].OID) < 0
	})

	h := sha1cd.New()
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write(magic[:]); err != nil {
		return err
	}
	if err := writeU32(mw, version); err != nil {
		return err
	}

	var fanout [256]uint32
	for _, e := range sorted {
		fanout[e.OID[0]]++
	}
	var running uint32
	for i := range fanout {
		running += fanout[i]
		fanout[i] = running
	}
	for _, v := range fanout {
		if err := writeU32(mw, v); err != nil {
			return err
		}
	}

	for _, e := range sorted {
		if _, err := mw.Write(e.OID[:]); err != nil {
			return err
		}
	}

	for _, e := range sorted {
		if err := writeU32(mw, e.CRC32); err != nil {
			return err
		}
	}

	var large []int64
	for _, e := range sorted {
		if e.Offset > 0x7fffffff {
			if err := writeU32(mw, largeOffsetFlag|uint32(len(large))); err != nil {
				return err
			}
			large = append(large, e.Offset)
			continue
		}
		if err := writeU32(mw, uint32(e.Offset)); err != nil {
			return err
		}
	}
	for _, off := range large {
		if err := writeU64(mw, uint64(off)); err != nil {
			return err
		}
	}

	if _, err := mw.Write(packChecksum[:]); err != nil {
		return err
	}

	sum := h.Sum(nil)
	_, err := w.Write(sum)
	return err
}

// Read parses a .idx stream into a queryable Index.
func Read(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("packidx: reading magic: %w", err)
	}
	if hdr != magic {
		return nil, fmt.Errorf("packidx: not a v2 index (bad magic)")
	}
	v, err := readU32(br)
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, fmt.Errorf("packidx: unsupported version %d", v)
	}

	var fanout [256]uint32
	for i := range fanout {
		fanout[i], err = readU32(br)
		if err != nil {
			return nil, err
		}
	}
	count := int(fanout[255])

	oids := make([]objfmt.OID, count)
	for i := range oids {
		if _, err := io.ReadFull(br, oids[i][:]); err != nil {
			return nil, fmt.Errorf("packidx: reading oid %d: %w", i, err)
		}
	}

	crcs := make([]uint32, count)
	for i := range crcs {
		crcs[i], err = readU32(br)
		if err != nil {
			return nil, err
		}
	}

	rawOffsets := make([]uint32, count)
	for i := range rawOffsets {
		rawOffsets[i], err = readU32(br)
		if err != nil {
			return nil, err
		}
	}

	var nLarge int
	for _, o := range rawOffsets {
		if o&largeOffsetFlag != 0 {
			nLarge++
		}
	}
	large := make([]int64, nLarge)
	for i := range large {
		v, err := readU64(br)
		if err != nil {
			return nil, err
		}
		large[i] = int64(v)
	}

	idx := &Index{byOID: make(map[objfmt.OID]Entry, count)}
	for i := 0; i < count; i++ {
		off := int64(rawOffsets[i])
		if rawOffsets[i]&largeOffsetFlag != 0 {
			off = large[rawOffsets[i]&^largeOffsetFlag]
		}
		e := Entry{OID: oids[i], Offset: off, CRC32: crcs[i]}
		idx.entries = append(idx.entries, e)
		idx.byOID[e.OID] = e
	}

	if _, err := io.ReadFull(br, idx.packOID[:]); err != nil {
		return nil, fmt.Errorf("packidx: reading pack checksum: %w", err)
	}
	var trailer [20]byte
	if _, err := io.ReadFull(br, trailer[:]); err != nil {
		return nil, fmt.Errorf("packidx: reading index checksum: %w", err)
	}

	return idx, nil
}

// Lookup returns the pack offset for oid, if present.
func (idx *Index) Lookup(oid objfmt.OID) (int64, bool) {
	e, ok := idx.byOID[oid]
	return e.Offset, ok
}

// Has reports whether oid is present in the index.
func (idx *Index) Has(oid objfmt.OID) bool {
	_, ok := idx.byOID[oid]
	return ok
}

// PackChecksum returns the indexed pack's own trailing checksum.
func (idx *Index) PackChecksum() objfmt.OID {
	return idx.packOID
}

// Entries returns every indexed (OID, offset) pair in OID-sorted order.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

// Len reports how many objects are indexed.
func (idx *Index) Len() int {
	return len(idx.entries)
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
