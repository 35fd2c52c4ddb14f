package pack

import (
	"io"
	"path"
	"sort"

	"github.com/emirpasic/gods/lists/arraylist"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// Candidate is one object offered to the encoder as delta-compression
// material.
type Candidate struct {
	OID     objfmt.OID
	Type    objfmt.ObjectType
	Data    []byte
	pathKey string // used to cluster candidates of similar path/name
}

// NewCandidate wraps an object plus a path hint used to cluster similarly
// named objects near each other for better delta hit rates, mirroring how
// Git sorts the pack's write order by path before windowing.
func NewCandidate(oid objfmt.OID, typ objfmt.ObjectType, data []byte, pathHint string) Candidate {
	return Candidate{OID: oid, Type: typ, Data: data, pathKey: pathHint}
}

// windowSize is the number of recently visited objects kept as delta-base
// candidates, per the spec's W=8 sliding window.
const windowSize = 8

// maxDepth bounds delta chain length at Git's own default, MAX_DEPTH=50.
const maxDepth = 50

// minDeltaSize and maxDeltaSize bound which objects are even considered as
// delta material — too small and a delta costs more than it saves, too
// large and the window search isn't worth its own cost.
const (
	minDeltaSize = 50
	maxDeltaSize = 1 << 29
)

// IndexRecord is one object's (oid, offset, crc32) triple, returned by
// Encode so the caller can write a companion .idx via format/packidx.
type IndexRecord struct {
	OID    objfmt.OID
	Offset int64
	CRC32  uint32
}

// basePick is the delta search's verdict for one candidate: the source it
// was matched against, the resulting delta bytes, and the depth of the
// chain this pick extends.
type basePick struct {
	baseOID objfmt.OID
	delta   []byte
	depth   int
}

// Encode writes every candidate to w as a pack stream. It sorts candidates
// the way Git clusters its pack for delta locality, searches a sliding
// window for each one's best delta base, then writes entries in an order
// that always places a delta's base before the delta itself — regardless
// of where in the sorted order that base fell — using OFS_DELTA back
// offsets. It returns the stream's trailing checksum and one IndexRecord
// per object, ready for format/packidx.Write.
func Encode(w io.Writer, candidates []Candidate) (objfmt.OID, []IndexRecord, error) {
	ordered := sortCandidates(candidates)
	picks := selectBases(ordered)
	trace.Pack.Printf("pack: encoding %d objects, %d delta-compressed", len(ordered), len(picks))

	pw, err := NewWriter(w, uint32(len(ordered)))
	if err != nil {
		return objfmt.OID{}, nil, err
	}

	byOID := make(map[objfmt.OID]*Candidate, len(ordered))
	for i := range ordered {
		byOID[ordered[i].OID] = &ordered[i]
	}

	offsets := make(map[objfmt.OID]int64, len(ordered))
	written := make(map[objfmt.OID]bool, len(ordered))
	records := make([]IndexRecord, 0, len(ordered))

	var writeOne func(c *Candidate) error
	writeOne = func(c *Candidate) error {
		if written[c.OID] {
			return nil
		}

		var off int64
		var crc uint32
		var werr error
		if pick, ok := picks[c.OID]; ok {
			base := byOID[pick.baseOID]
			if err := writeOne(base); err != nil {
				return err
			}
			off, crc, werr = pw.WriteEntry(Entry{
				Type:       objfmt.OFSDeltaObject,
				Data:       pick.delta,
				Size:       uint64(len(c.Data)),
				BaseOffset: offsets[pick.baseOID],
			})
		} else {
			off, crc, werr = pw.WriteEntry(Entry{Type: c.Type, Data: c.Data})
		}
		if werr != nil {
			return werr
		}

		offsets[c.OID] = off
		written[c.OID] = true
		records = append(records, IndexRecord{OID: c.OID, Offset: off, CRC32: crc})
		return nil
	}

	for i := range ordered {
		if err := writeOne(&ordered[i]); err != nil {
			return objfmt.OID{}, nil, err
		}
	}

	checksum, err := pw.Checksum()
	if err != nil {
		return objfmt.OID{}, nil, err
	}
	return checksum, records, nil
}

// sortCandidates orders candidates by (type, path-basename, path-dirname,
// size), clustering same-typed, similarly-named, similarly-sized objects
// next to each other so the window search below finds good delta material.
func sortCandidates(candidates []Candidate) []Candidate {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if ba, bb := path.Base(a.pathKey), path.Base(b.pathKey); ba != bb {
			return ba < bb
		}
		if da, db := path.Dir(a.pathKey), path.Dir(b.pathKey); da != db {
			return da < db
		}
		return len(a.Data) < len(b.Data)
	})
	return ordered
}

// eligible reports whether a candidate's size falls in the [minDeltaSize,
// maxDeltaSize] band the encoder considers for delta compression at all —
// either as a source or as a target.
func eligible(c Candidate) bool {
	n := len(c.Data)
	return n >= minDeltaSize && n <= maxDeltaSize
}

// selectBases runs the encoder's delta search: a window of up to
// windowSize entries slides backward over ordered (in reverse sorted
// order), and each candidate tries every entry currently in the window as
// a delta source before the candidate itself joins the window for earlier
// entries to consider. Because a candidate can only ever pick a base from
// entries the reverse scan has already visited — strictly later in sorted
// order — the resulting base relation is acyclic, letting Encode's write
// pass recurse "base first" without cycle detection.
func selectBases(ordered []Candidate) map[objfmt.OID]*basePick {
	picks := make(map[objfmt.OID]*basePick, len(ordered))
	depths := make(map[objfmt.OID]int, len(ordered))
	window := arraylist.New()

	for i := len(ordered) - 1; i >= 0; i-- {
		target := ordered[i]
		if eligible(target) {
			if pick := pickBase(window, target, depths); pick != nil {
				picks[target.OID] = pick
				depths[target.OID] = pick.depth + 1
			}
		}
		pushWindow(window, target)
	}
	return picks
}

func pushWindow(win *arraylist.List, c Candidate) {
	win.Add(c)
	if win.Size() > windowSize {
		win.Remove(0)
	}
}

// pickBase searches win for the candidate that yields the smallest usable
// delta for target, applying the spec's depth and size-ratio heuristics.
func pickBase(win *arraylist.List, target Candidate, depths map[objfmt.OID]int) *basePick {
	var best *basePick
	for _, v := range win.Values() {
		source := v.(Candidate)
		if source.Type != target.Type || !eligible(source) {
			continue
		}
		sourceDepth := depths[source.OID]
		if sourceDepth >= maxDepth {
			continue
		}
		if len(target.Data) < len(source.Data)/32 {
			// Large source, tiny target: unhelpful — the delta's fixed
			// overhead would dwarf any savings.
			continue
		}

		budget := maxDeltaSizeFor(target, best, sourceDepth)
		if budget <= 0 {
			continue
		}
		delta := Diff(source.Data, target.Data)
		if len(delta) >= budget {
			continue
		}
		if best != nil && len(delta) >= len(best.delta) {
			continue
		}
		best = &basePick{baseOID: source.OID, delta: delta, depth: sourceDepth}
	}
	return best
}

// maxDeltaSizeFor implements the spec's depth-weighted max_delta_size
// heuristic: once a smaller delta has already been found for this target,
// only a strictly smaller one is worth keeping. Otherwise the budget
// starts at half the target's size (minus a small constant for the delta
// header) and shrinks as the candidate source's own chain gets deeper, so
// a source at the end of a long chain must earn an increasingly better
// ratio to be accepted. ref_depth (the depth of the chain's anchor point)
// is taken as 0, since the search always starts fresh from an undeltified
// target.
func maxDeltaSizeFor(target Candidate, best *basePick, sourceDepth int) int {
	if best != nil {
		return len(best.delta)
	}
	budget := len(target.Data)/2 - 20
	if budget <= 0 {
		return 0
	}
	const refDepth = 0
	return budget * (maxDepth - sourceDepth) / (maxDepth + 1 - refDepth)
}
