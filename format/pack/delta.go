package pack

import (
	"bufio"
	"bytes"
	"fmt"
)

const (
	deltaCopyOp   = 0x80
	deltaCopyOff  = 0x0f
	deltaCopySize = 0x70
	maxCopySize   = 0x10000
)

// ApplyDelta reconstructs a target blob from a base and a delta stream
// produced by Diff. It mirrors plumbing/format/packfile's patch_delta.go:
// the delta begins with the encoded source and target sizes, followed by a
// sequence of copy/insert instructions.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(delta))

	srcSize, err := readSizeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("pack: reading delta source size: %w", err)
	}
	if srcSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: source size %d != base length %d", ErrDeltaCorrupt, srcSize, len(base))
	}

	targetSize, err := readSizeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("pack: reading delta target size: %w", err)
	}

	out := make([]byte, 0, targetSize)
	for {
		op, err := r.ReadByte()
		if err != nil {
			break
		}
		if op&deltaCopyOp != 0 {
			var off, size uint32
			if op&0x01 != 0 {
				b, _ := r.ReadByte()
				off = uint32(b)
			}
			if op&0x02 != 0 {
				b, _ := r.ReadByte()
				off |= uint32(b) << 8
			}
			if op&0x04 != 0 {
				b, _ := r.ReadByte()
				off |= uint32(b) << 16
			}
			if op&0x08 != 0 {
				b, _ := r.ReadByte()
				off |= uint32(b) << 24
			}
			if op&0x10 != 0 {
				b, _ := r.ReadByte()
				size = uint32(b)
			}
			if op&0x20 != 0 {
				b, _ := r.ReadByte()
				size |= uint32(b) << 8
			}
			if op&0x40 != 0 {
				b, _ := r.ReadByte()
				size |= uint32(b) << 16
			}
			if size == 0 {
				size = maxCopySize
			}
			if uint64(off)+uint64(size) > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy (%d,%d) exceeds base length %d", ErrDeltaCorrupt, off, size, len(base))
			}
			out = append(out, base[off:off+size]...)
		} else if op != 0 {
			n := int(op)
			buf := make([]byte, n)
			if _, err := bufReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("pack: reading delta insert literal: %w", err)
			}
			out = append(out, buf...)
		} else {
			return nil, fmt.Errorf("%w: zero opcode", ErrDeltaCorrupt)
		}
	}

	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: produced %d bytes, want %d", ErrDeltaCorrupt, len(out), targetSize)
	}
	return out, nil
}

func bufReadFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// blockSize is the length of the fixed, non-overlapping source blocks the
// delta encoder indexes, matching the v4 packfile's diff_delta.go default.
const blockSize = 16

type copyOp struct {
	srcOff, targetOff, size int
}

// Diff produces a delta transforming base into target, searching base for
// reusable byte runs via a block index keyed on 16-byte chunks. This is a
// simplified, single-pass variant of Git's adler32-rolling-hash matcher:
// sufficient for the sliding-window multi-source search in Encoder, which
// calls Diff once per (base, target) candidate pair rather than needing the
// full suffix-automaton greedy walk.
func Diff(base, target []byte) []byte {
	index := make(map[string][]int, len(base)/blockSize+1)
	for i := 0; i+blockSize <= len(base); i += blockSize {
		key := string(base[i : i+blockSize])
		index[key] = append(index[key], i)
	}

	var ops []copyOp
	// litStart marks the beginning of a run of target bytes not yet
	// covered by a COPY op; -1 means there is no pending run. Tracking
	// the start index (rather than buffering the bytes themselves) lets a
	// COPY's backward expansion reach into the pending run without having
	// to un-accumulate anything.
	litStart := -1
	flushLiteral := func(end int) {
		for litStart >= 0 && litStart < end {
			n := end - litStart
			if n > 127 {
				n = 127
			}
			ops = append(ops, copyOp{srcOff: -1, targetOff: litStart, size: n})
			litStart += n
		}
		litStart = -1
	}

	i := 0
	for i < len(target) {
		match, matchLen := bestMatch(index, base, target, i)
		if matchLen >= blockSize {
			limit := i
			if litStart >= 0 {
				limit = litStart
			}
			srcOff, start, length := extendBackward(base, target, match, i, matchLen, limit)
			flushLiteral(start)
			ops = append(ops, copyOp{srcOff: srcOff, targetOff: start, size: length})
			i = start + length
			continue
		}
		if litStart < 0 {
			litStart = i
		}
		i++
	}
	flushLiteral(i)

	out := putSizeVarint(uint64(len(base)))
	out = append(out, putSizeVarint(uint64(len(target)))...)
	for _, op := range ops {
		if op.srcOff < 0 {
			out = append(out, byte(op.size))
			out = append(out, target[op.targetOff:op.targetOff+op.size]...)
			continue
		}
		out = append(out, encodeCopy(op.srcOff, op.size)...)
	}
	return out
}

// extendBackward grows a forward match at (srcOff, pos) backward while the
// preceding base and target bytes agree, stopping at limit — the earliest
// target index still available to claim, either the start of a pending
// literal run or the current scan position if there is none.
func extendBackward(base, target []byte, srcOff, pos, length, limit int) (int, int, int) {
	for srcOff > 0 && pos > limit && length < maxCopySize && base[srcOff-1] == target[pos-1] {
		srcOff--
		pos--
		length++
	}
	return srcOff, pos, length
}

func bestMatch(index map[string][]int, base, target []byte, pos int) (srcOff, length int) {
	if pos+blockSize > len(target) {
		return -1, 0
	}
	key := string(target[pos : pos+blockSize])
	candidates, ok := index[key]
	if !ok {
		return -1, 0
	}
	best, bestLen := -1, 0
	for _, c := range candidates {
		l := matchLen(base[c:], target[pos:])
		if l > bestLen {
			best, bestLen = c, l
		}
	}
	return best, bestLen
}

func matchLen(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && n < maxCopySize && a[n] == b[n] {
		n++
	}
	return n
}

func encodeCopy(off, size int) []byte {
	op := byte(deltaCopyOp)
	var args []byte
	o := uint32(off)
	if o&0xff != 0 {
		op |= 0x01
		args = append(args, byte(o))
	}
	if o>>8&0xff != 0 {
		op |= 0x02
		args = append(args, byte(o>>8))
	}
	if o>>16&0xff != 0 {
		op |= 0x04
		args = append(args, byte(o>>16))
	}
	if o>>24&0xff != 0 {
		op |= 0x08
		args = append(args, byte(o>>24))
	}
	s := uint32(size)
	if s == maxCopySize {
		s = 0
	}
	if s&0xff != 0 {
		op |= 0x10
		args = append(args, byte(s))
	}
	if s>>8&0xff != 0 {
		op |= 0x20
		args = append(args, byte(s>>8))
	}
	if s>>16&0xff != 0 {
		op |= 0x40
		args = append(args, byte(s>>16))
	}
	out := []byte{op}
	return append(out, args...)
}
