package index

import (
	"bufio"
	"bytes"
	"crypto/sha1" //nolint:gosec // matches spec's on-disk trailer format, not content hashing
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

var signature = [4]byte{'D', 'I', 'R', 'C'}

const formatVersion uint32 = 2

// ErrCorrupt is returned when the trailing SHA-1 does not match the
// preceding bytes.
var ErrCorrupt = errors.New("index: corrupt (checksum mismatch)")

// ErrMalformed is returned for a structurally invalid header or entry.
var ErrMalformed = errors.New("index: malformed")

const flagsStageShift = 12
const flagsStageMask = 0x3
const flagsNameMask = 0x0FFF

// Encode writes idx's exact on-disk representation: header, entries in
// (path, stage) order, then a trailing SHA-1 over every preceding byte.
func Encode(w io.Writer, idx *Index) error {
	h := sha1.New() //nolint:gosec
	tw := io.MultiWriter(w, h)

	if _, err := tw.Write(signature[:]); err != nil {
		return err
	}
	if err := writeU32(tw, formatVersion); err != nil {
		return err
	}
	if err := writeU32(tw, uint32(idx.Len())); err != nil {
		return err
	}

	err := idx.EachEntry(func(e *Entry) error {
		return writeEntry(tw, e)
	})
	if err != nil {
		return err
	}

	_, err = w.Write(h.Sum(nil))
	return err
}

func writeEntry(w io.Writer, e *Entry) error {
	fields := []uint32{
		e.Stat.CTimeSec, e.Stat.CTimeNano,
		e.Stat.MTimeSec, e.Stat.MTimeNano,
		e.Stat.Dev, e.Stat.Ino,
		uint32(e.Mode),
		e.Stat.UID, e.Stat.GID,
		e.Stat.Size,
	}
	for _, f := range fields {
		if err := writeU32(w, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(e.OID[:]); err != nil {
		return err
	}

	nameLen := len(e.Path)
	if nameLen > flagsNameMask {
		nameLen = flagsNameMask
	}
	flags := uint16(e.Stage&flagsStageMask)<<flagsStageShift | uint16(nameLen)
	if err := writeU16(w, flags); err != nil {
		return err
	}

	data := append([]byte(e.Path), 0)
	// content length before padding: 62 fixed bytes + path + NUL
	const fixedLen = 4*10 + objfmt.Size + 2
	total := fixedLen + len(data)
	pad := (8 - total%8) % 8
	data = append(data, make([]byte, pad)...)

	_, err := w.Write(data)
	return err
}

// Decode parses an on-disk index, validating the trailing SHA-1 against
// the preceding bytes.
func Decode(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading index: %v", ErrMalformed, err)
	}
	body := data
	if len(data) >= 20 {
		body = data[:len(data)-20]
	}
	br := bufio.NewReader(bytes.NewReader(body))

	var sig [4]byte
	if _, err := io.ReadFull(br, sig[:]); err != nil {
		return nil, fmt.Errorf("%w: reading signature: %v", ErrMalformed, err)
	}
	if sig != signature {
		return nil, fmt.Errorf("%w: bad signature %q", ErrMalformed, sig)
	}

	version, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrMalformed, err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}

	count, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry count: %v", ErrMalformed, err)
	}

	idx := New()
	for n := uint32(0); n < count; n++ {
		e, err := readEntry(br)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, n, err)
		}
		stages, ok := idx.entries[e.Path]
		if !ok {
			stages = make(map[Stage]*Entry)
			idx.entries[e.Path] = stages
			idx.link(e.Path)
		}
		stages[e.Stage] = e
	}

	if len(data) < len(body)+20 {
		return nil, fmt.Errorf("%w: reading trailer: %v", ErrMalformed, io.ErrUnexpectedEOF)
	}
	sum := sha1Sum(body) //nolint:gosec
	if !bytes.Equal(sum, data[len(body):]) {
		return nil, ErrCorrupt
	}

	return idx, nil
}

func sha1Sum(b []byte) []byte {
	h := sha1.New() //nolint:gosec
	h.Write(b)
	return h.Sum(nil)
}

func readEntry(r *bufio.Reader) (*Entry, error) {
	e := &Entry{}
	fields := make([]uint32, 10)
	for i := range fields {
		v, err := readU32(r)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	e.Stat = StatCache{
		CTimeSec: fields[0], CTimeNano: fields[1],
		MTimeSec: fields[2], MTimeNano: fields[3],
		Dev: fields[4], Ino: fields[5],
		UID: fields[7], GID: fields[8],
		Size: fields[9],
	}
	e.Mode = objfmt.FileMode(fields[6])

	if _, err := io.ReadFull(r, e.OID[:]); err != nil {
		return nil, err
	}

	flags, err := readU16(r)
	if err != nil {
		return nil, err
	}
	e.Stage = Stage((flags >> flagsStageShift) & flagsStageMask)

	name, err := r.ReadString(0)
	if err != nil {
		return nil, err
	}
	e.Path = name[:len(name)-1]

	const fixedLen = 4*10 + objfmt.Size + 2
	total := fixedLen + len(name)
	pad := (8 - total%8) % 8
	if pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
