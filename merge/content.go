package merge

import (
	"bytes"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// BlobResult is the outcome of a three-way content merge: Clean is false
// whenever the caller must inspect Content for conflict markers (or, in
// the modify/delete case, when the surviving side's content is returned
// verbatim).
type BlobResult struct {
	Clean   bool
	Content []byte
}

// Merge3 implements §4.6's blob-merge contract over three optional byte
// slices (nil means "absent", i.e. the path doesn't exist on that side).
// leftName/rightName label the conflict markers ("ours"/"theirs" or
// branch names, caller's choice).
func Merge3(base, left, right []byte, leftName, rightName string) BlobResult {
	switch {
	case left == nil:
		return BlobResult{Clean: false, Content: right}
	case right == nil:
		return BlobResult{Clean: false, Content: left}
	case bytes.Equal(left, base) || bytes.Equal(left, right):
		return BlobResult{Clean: true, Content: right}
	case bytes.Equal(right, base):
		return BlobResult{Clean: true, Content: left}
	}
	return mergeLines(base, left, right, leftName, rightName)
}

// op is one base-anchored edit: [BaseStart, BaseEnd) base lines are
// replaced by Lines (a Kind==opEqual op's Lines always equals the base
// slice it spans, unchanged).
type opKind int

const (
	opEqual opKind = iota
	opChange
)

type op struct {
	Kind               opKind
	BaseStart, BaseEnd int
	Lines              []string
}

// buildOps runs a line-level Myers diff (base -> other) and returns a
// list of ops that exactly partitions [0, len(baseLines)) into alternating
// Equal/Change spans, with zero-width Change ops representing pure
// insertions at a boundary.
func buildOps(base, other []byte) []op {
	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(string(base), string(other))
	diffs := dmp.DiffMain(c1, c2, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var ops []op
	baseIdx := 0
	var pending *op // an open Change op accumulating Insert text right after a Delete

	flushPending := func() {
		if pending != nil {
			ops = append(ops, *pending)
			pending = nil
		}
	}

	for _, d := range diffs {
		ls := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flushPending()
			ops = append(ops, op{Kind: opEqual, BaseStart: baseIdx, BaseEnd: baseIdx + len(ls), Lines: ls})
			baseIdx += len(ls)
		case diffmatchpatch.DiffDelete:
			flushPending()
			pending = &op{Kind: opChange, BaseStart: baseIdx, BaseEnd: baseIdx + len(ls)}
			baseIdx += len(ls)
		case diffmatchpatch.DiffInsert:
			if pending != nil {
				pending.Lines = append(pending.Lines, ls...)
			} else {
				ops = append(ops, op{Kind: opChange, BaseStart: baseIdx, BaseEnd: baseIdx, Lines: ls})
			}
		}
	}
	flushPending()
	return ops
}

// splitLines splits text on "\n", dropping the trailing empty element
// produced by a terminal newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// stableAt reports, for each base line index, whether it falls inside an
// Equal op, plus the set of "insert points" (base indices where a
// zero-width Change attaches) for ops.
func stableAt(ops []op, n int) (stable []bool, insertPoints map[int]bool) {
	stable = make([]bool, n)
	insertPoints = make(map[int]bool)
	for _, o := range ops {
		if o.Kind == opEqual {
			for i := o.BaseStart; i < o.BaseEnd; i++ {
				stable[i] = true
			}
		} else if o.BaseStart == o.BaseEnd {
			insertPoints[o.BaseStart] = true
		}
	}
	return
}

// replay reconstructs one side's rendering of base[start:end) from its op
// list: Equal spans copy the base slice, Change spans contribute their
// full replacement lines (assumed, by construction of hunk boundaries at
// mutually-stable points, to lie fully within [start,end)).
func replay(ops []op, start, end int) []string {
	var out []string
	for _, o := range ops {
		if o.BaseEnd <= start || o.BaseStart >= end {
			if o.BaseStart == o.BaseEnd && o.BaseStart >= start && (o.BaseStart < end || start == end) {
				out = append(out, o.Lines...)
			}
			continue
		}
		if o.Kind == opEqual {
			lo, hi := max(o.BaseStart, start), min(o.BaseEnd, end)
			out = append(out, o.Lines[lo-o.BaseStart:hi-o.BaseStart]...)
		} else {
			out = append(out, o.Lines...)
		}
	}
	return out
}

// mergeLines implements the line-level 3-way diff/merge described in
// §4.6: Myers diff base->left and base->right, then walk the two edit
// scripts together, emitting clean chunks where one side matches base (or
// the two sides agree) and conflict-marker chunks otherwise.
func mergeLines(base, left, right []byte, leftName, rightName string) BlobResult {
	baseLines := splitLines(string(base))
	opsL := buildOps(base, left)
	opsR := buildOps(base, right)

	stableL, insertL := stableAt(opsL, len(baseLines))
	stableR, insertR := stableAt(opsR, len(baseLines))

	isStable := func(i int) bool {
		return stableL[i] && stableR[i] && !insertL[i] && !insertR[i]
	}

	var out []string
	conflict := false
	i := 0
	n := len(baseLines)
	for i <= n {
		if i < n && isStable(i) {
			out = append(out, baseLines[i])
			i++
			continue
		}
		// start (or continue) an unstable hunk [hStart, hEnd).
		hStart := i
		for i < n && !isStable(i) {
			i++
		}
		hEnd := i

		leftLines := replay(opsL, hStart, hEnd)
		rightLines := replay(opsR, hStart, hEnd)
		baseChunk := baseLines[hStart:hEnd]

		switch {
		case linesEqual(leftLines, rightLines):
			out = append(out, leftLines...)
		case linesEqual(leftLines, baseChunk):
			out = append(out, rightLines...)
		case linesEqual(rightLines, baseChunk):
			out = append(out, leftLines...)
		default:
			conflict = true
			out = append(out, "<<<<<<< "+leftName)
			out = append(out, leftLines...)
			out = append(out, "=======")
			out = append(out, rightLines...)
			out = append(out, ">>>>>>> "+rightName)
		}

		if hStart == hEnd {
			// zero-width hunk (pure insertion boundary at EOF or between
			// two stable lines): advance past it so the loop terminates.
			i++
			if hEnd >= n {
				break
			}
		}
	}

	content := strings.Join(out, "\n")
	if len(out) > 0 {
		content += "\n"
	}
	return BlobResult{Clean: !conflict, Content: []byte(content)}
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ModeMerge applies the same three-way contract to file modes, with no
// textual fallback: if the modes disagree and neither side matches base
// or the other, the merge is a conflict and the caller must record both
// stages.
func ModeMerge(base, left, right objfmt.FileMode) (ok bool, mode objfmt.FileMode) {
	switch {
	case left == base || left == right:
		return true, right
	case right == base:
		return true, left
	default:
		return false, left
	}
}
