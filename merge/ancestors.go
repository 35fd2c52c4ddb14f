// Package merge implements the Merge Core (§4.6): common-ancestor
// discovery and three-way tree/content merge.
package merge

import (
	"errors"
	"sort"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// ancestorFlag mirrors spec.md §4.6's {parent1, parent2, stale, result}.
type ancestorFlag uint8

const (
	flagParent1 ancestorFlag = 1 << iota
	flagParent2
	flagStale
	flagResult
)

// CommitLoader is the subset of the Object Store common-ancestor search
// needs.
type CommitLoader interface {
	Commit(oid objfmt.OID) (*objfmt.Commit, error)
}

type ancestorNode struct {
	oid   objfmt.OID
	flags ancestorFlag
}

// CommonAncestors runs the BFS described in §4.6: from a and every element
// of bs, flood the commit graph tagging discoveries parent1/parent2; a
// commit reached from both becomes a result candidate and its further
// ancestors are pruned via `stale`. Returns the minimal candidate set
// (candidates reachable from another candidate are dropped).
func CommonAncestors(loader CommitLoader, a objfmt.OID, bs []objfmt.OID) ([]objfmt.OID, error) {
	nodes := make(map[objfmt.OID]*ancestorNode)
	var queue []*ancestorNode
	var results []*ancestorNode

	get := func(oid objfmt.OID) *ancestorNode {
		n, ok := nodes[oid]
		if !ok {
			n = &ancestorNode{oid: oid}
			nodes[oid] = n
		}
		return n
	}

	seed := func(oid objfmt.OID, f ancestorFlag) {
		n := get(oid)
		if n.flags&f == 0 {
			n.flags |= f
			queue = append(queue, n)
		}
	}

	seed(a, flagParent1)
	for _, b := range bs {
		seed(b, flagParent2)
	}

	for len(queue) > 0 {
		allStale := true
		for _, n := range queue {
			if n.flags&flagStale == 0 {
				allStale = false
				break
			}
		}
		if allStale {
			break
		}

		n := queue[0]
		queue = queue[1:]

		if n.flags&(flagParent1|flagParent2) == (flagParent1 | flagParent2) {
			if n.flags&flagResult == 0 {
				n.flags |= flagResult | flagStale
				results = append(results, n)
				if err := markStaleAncestors(loader, nodes, n, &queue); err != nil {
					return nil, err
				}
			}
			continue
		}

		c, err := loader.Commit(n.oid)
		if err != nil {
			return nil, err
		}
		for _, pOID := range c.ParentOIDs {
			p := get(pOID)
			before := p.flags
			p.flags |= n.flags &^ flagResult
			if p.flags != before {
				queue = append(queue, p)
			}
		}
	}

	var candidates []objfmt.OID
	for _, n := range results {
		if n.flags&flagStale != 0 && n.flags&flagResult != 0 {
			// still a valid candidate: `stale` here only prevented
			// re-discovery, the node itself remains a result.
			candidates = append(candidates, n.oid)
		}
	}
	return minimalCandidates(loader, candidates)
}

// markStaleAncestors propagates `stale` to every ancestor of n, preventing
// the BFS from re-discovering already-settled territory, per §4.6.
func markStaleAncestors(loader CommitLoader, nodes map[objfmt.OID]*ancestorNode, n *ancestorNode, queue *[]*ancestorNode) error {
	stack := []*ancestorNode{n}
	for len(stack) > 0 {
		cur := stack[0]
		stack = stack[1:]
		c, err := loader.Commit(cur.oid)
		if err != nil {
			return err
		}
		for _, pOID := range c.ParentOIDs {
			p, ok := nodes[pOID]
			if !ok {
				p = &ancestorNode{oid: pOID}
				nodes[pOID] = p
			}
			if p.flags&flagStale == 0 {
				p.flags |= flagStale
				stack = append(stack, p)
				*queue = append(*queue, p)
			}
		}
	}
	return nil
}

// minimalCandidates drops any candidate reachable from another candidate,
// checked pairwise with isAncestor, yielding the minimal set (§4.6).
func minimalCandidates(loader CommitLoader, candidates []objfmt.OID) ([]objfmt.OID, error) {
	if len(candidates) <= 1 {
		return candidates, nil
	}
	redundant := make(map[objfmt.OID]bool)
	for i, c := range candidates {
		if redundant[c] {
			continue
		}
		for j, other := range candidates {
			if i == j || redundant[other] {
				continue
			}
			reachable, err := isAncestor(loader, c, other)
			if err != nil {
				return nil, err
			}
			if reachable {
				// c is an ancestor of other: c is redundant, the more
				// recent `other` is the tighter bound.
				redundant[c] = true
				break
			}
		}
	}
	var out []objfmt.OID
	for _, c := range candidates {
		if !redundant[c] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}

// isAncestor reports whether candidate is reachable from other's history
// (a plain BFS, not the full flag-based search).
func isAncestor(loader CommitLoader, candidate, other objfmt.OID) (bool, error) {
	if candidate == other {
		return false, nil
	}
	seen := map[objfmt.OID]bool{other: true}
	queue := []objfmt.OID{other}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, err := loader.Commit(cur)
		if err != nil {
			return false, err
		}
		for _, p := range c.ParentOIDs {
			if p == candidate {
				return true, nil
			}
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false, nil
}

// ErrNoCommonAncestor is returned by MergeBase when the candidate set is
// empty (unrelated histories).
var ErrNoCommonAncestor = errors.New("merge: no common ancestor")

// MergeBase picks the merge base for a two-way merge between left and
// right: the sole candidate for a classical three-way merge, or (per
// §4.6's explicit simplest-policy allowance) the oldest of several
// candidates when the histories criss-cross.
func MergeBase(loader interface {
	CommitLoader
	CommitterTime(objfmt.OID) (int64, error)
}, left, right objfmt.OID) (objfmt.OID, []objfmt.OID, error) {
	candidates, err := CommonAncestors(loader, left, []objfmt.OID{right})
	if err != nil {
		return objfmt.OID{}, nil, err
	}
	if len(candidates) == 0 {
		return objfmt.OID{}, nil, ErrNoCommonAncestor
	}
	if len(candidates) == 1 {
		return candidates[0], candidates, nil
	}
	oldest := candidates[0]
	oldestTime, err := loader.CommitterTime(oldest)
	if err != nil {
		return objfmt.OID{}, nil, err
	}
	for _, c := range candidates[1:] {
		t, err := loader.CommitterTime(c)
		if err != nil {
			return objfmt.OID{}, nil, err
		}
		if t < oldestTime {
			oldest, oldestTime = c, t
		}
	}
	return oldest, candidates, nil
}
