// Package revwalk implements the Revision Walker (§4.4): commit-graph
// traversal with inclusion/exclusion roots, reverse-chronological
// ordering, optional path simplification, and object emission for fetch
// negotiation.
package revwalk

import (
	"fmt"
	"sort"

	"github.com/harpreetsinghsandhu021/tide-version-control/diff"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// flag is a bitset of per-commit walker state, matching spec.md §4.4's
// {SEEN, ADDED, UNINTERESTING, TREESAME, RESULT, STALE}.
type flag uint8

const (
	flagSeen flag = 1 << iota
	flagAdded
	flagUninteresting
	flagTreesame
	flagResult
	flagStale
)

// Loader is the subset of the Object Store a walk needs: commits and
// trees by OID, plus the tree-diff used for path simplification and
// object emission.
type Loader interface {
	Load(oid objfmt.OID) (objfmt.Object, error)
}

type node struct {
	oid     objfmt.OID
	commit  *objfmt.Commit
	flags   flag
	// parentOIDs is the set of parents actually followed for this commit:
	// all of them normally, or the single TREESAME parent once path
	// simplification has run.
	parentOIDs []objfmt.OID
}

func (n *node) has(f flag) bool  { return n.flags&f != 0 }
func (n *node) set(f flag)       { n.flags |= f }

// Walker enumerates commits reachable from Include but not from Exclude,
// newest-committer-timestamp first.
type Walker struct {
	store  Loader
	filter *diff.PathFilter

	nodes map[objfmt.OID]*node
	queue []*node // kept in reverse committer-date order

	limited bool
	walk    bool // false => "walk=false" fetch-negotiation mode (§4.4)
	objects bool

	seenObjects map[objfmt.OID]bool

	// shallow is the boundary-commit set of a shallow clone: these commits
	// are yielded (they still answer questions like "is this commit
	// reachable") but the walk never descends past them, the same way an
	// exclusion root stops traversal without requiring the caller to name
	// every excluded ancestor by hand. Full shallow-fetch deepening stays
	// out of scope; this only gives the walker the boundary-stops-here
	// behavior a shallow clone's history needs.
	shallow map[objfmt.OID]bool
}

// SetShallow installs boundaryOIDs as the walk's shallow boundary: commits
// in this set are yielded normally but their parents are never enqueued.
func (w *Walker) SetShallow(boundaryOIDs []objfmt.OID) {
	w.shallow = make(map[objfmt.OID]bool, len(boundaryOIDs))
	for _, oid := range boundaryOIDs {
		w.shallow[oid] = true
	}
}

// New returns a Walker over store, restricted to paths (nil/empty means
// no restriction). walk=false selects fetch-negotiation mode: only the
// input commits themselves are yielded, never their ancestors.
func New(store Loader, paths []string, walk, objects bool) *Walker {
	var pf *diff.PathFilter
	if len(paths) > 0 {
		pf = diff.NewPathFilter(paths)
	}
	return &Walker{
		store:       store,
		filter:      pf,
		nodes:       make(map[objfmt.OID]*node),
		walk:        walk,
		objects:     objects,
		seenObjects: make(map[objfmt.OID]bool),
	}
}

// FromExprs builds a Walker over store from parsed revision expressions
// and a path filter, defaulting to HEAD when exprs is empty per §4.4 step
// "If the net input list is empty, include HEAD".
func FromExprs(store Loader, exprs []Expr, paths []string, headOID objfmt.OID, walk, objects bool) (*Walker, error) {
	w := New(store, paths, walk, objects)
	if len(exprs) == 0 {
		if err := w.Include(headOID); err != nil {
			return nil, err
		}
		return w, nil
	}
	for _, e := range exprs {
		if e.Exclude {
			if err := w.Exclude(e.OID); err != nil {
				return nil, err
			}
		} else if err := w.Include(e.OID); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Walker) get(oid objfmt.OID) (*node, error) {
	if n, ok := w.nodes[oid]; ok {
		return n, nil
	}
	obj, err := w.store.Load(oid)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*objfmt.Commit)
	if !ok {
		return nil, fmt.Errorf("revwalk: %s is not a commit", oid)
	}
	n := &node{oid: oid, commit: c, parentOIDs: append([]objfmt.OID(nil), c.ParentOIDs...)}
	w.nodes[oid] = n
	return n, nil
}

// insertQueue inserts n into the queue, keeping reverse committer-date
// order via insertion-sort, as spec.md §4.4 step 1 specifies.
func (w *Walker) insertQueue(n *node) {
	i := sort.Search(len(w.queue), func(i int) bool {
		return w.queue[i].commit.Committer.When.Before(n.commit.Committer.When)
	})
	w.queue = append(w.queue, nil)
	copy(w.queue[i+1:], w.queue[i:])
	w.queue[i] = n
}

// enqueueCommit marks n SEEN/ADDED (if not already) and inserts it into
// the queue.
func (w *Walker) enqueueCommit(n *node) {
	if n.has(flagSeen) {
		return
	}
	n.set(flagSeen | flagAdded)
	w.insertQueue(n)
}

// Include adds name's resolved OID as an inclusion root.
func (w *Walker) Include(oid objfmt.OID) error {
	n, err := w.get(oid)
	if err != nil {
		return err
	}
	w.enqueueCommit(n)
	return nil
}

// Exclude adds oid as an exclusion root: it and every ancestor are marked
// UNINTERESTING and (if already queued) dropped from future yields.
func (w *Walker) Exclude(oid objfmt.OID) error {
	w.limited = true
	n, err := w.get(oid)
	if err != nil {
		return err
	}
	n.set(flagUninteresting)
	w.enqueueCommit(n)
	return w.markUninterestingAncestors(n)
}

// markUninterestingAncestors propagates UNINTERESTING to every ancestor of
// n via a BFS over parents, matching §4.4 step 1.
func (w *Walker) markUninterestingAncestors(n *node) error {
	queue := []*node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, pOID := range cur.commit.ParentOIDs {
			p, err := w.get(pOID)
			if err != nil {
				return err
			}
			already := p.has(flagUninteresting)
			p.set(flagUninteresting)
			if !p.has(flagSeen) {
				p.set(flagSeen)
			}
			if !already {
				queue = append(queue, p)
			}
		}
	}
	return nil
}

// limitList drains the queue into an output list per §4.4 step 2,
// stopping once the queue is empty, or once every queued commit is
// UNINTERESTING and the oldest commit output so far is no older than the
// newest queued one.
func (w *Walker) limitList() []*node {
	var out []*node
	for len(w.queue) > 0 {
		newestQueued := w.queue[0]
		if len(out) > 0 {
			newestOut := out[len(out)-1]
			allUninteresting := true
			for _, c := range w.queue {
				if !c.has(flagUninteresting) {
					allUninteresting = false
					break
				}
			}
			if !newestOut.commit.Committer.When.Before(newestQueued.commit.Committer.When) && allUninteresting {
				break
			}
		}
		n := w.queue[0]
		w.queue = w.queue[1:]
		if !n.has(flagUninteresting) {
			out = append(out, n)
		}
		w.addParents(n)
	}
	return out
}

// addParents enqueues n's parents, gated on ADDED in walk=false mode and
// resolved through simplifyCommit when a path filter is active.
func (w *Walker) addParents(n *node) {
	if !w.walk && n.has(flagAdded) {
		// fetch-negotiation mode never descends into ancestors.
		return
	}
	if w.shallow[n.oid] {
		// a shallow boundary commit is a dead end: it was cloned without
		// its history, so there is nothing upstream to enqueue.
		return
	}
	parents := n.parentOIDs
	if w.filter != nil {
		simplified, err := w.simplifyCommit(n)
		if err == nil {
			parents = simplified
		}
	}
	for _, pOID := range parents {
		p, err := w.get(pOID)
		if err != nil {
			continue
		}
		if n.has(flagUninteresting) {
			p.set(flagUninteresting)
		}
		w.enqueueCommit(p)
	}
}

// simplifyCommit applies §4.4's path-simplification rule: pick the first
// parent whose tree_diff against n's tree (restricted to the filter) is
// empty, mark n TREESAME, and follow only that parent. A root commit is
// treated as having a single nil parent (zero tree).
func (w *Walker) simplifyCommit(n *node) ([]objfmt.OID, error) {
	parents := n.commit.ParentOIDs
	if len(parents) == 0 {
		empty, err := diff.TreeDiff(w.store, objfmt.ZeroOID, n.commit.TreeOID, w.filter)
		if err != nil {
			return nil, err
		}
		if len(empty) == 0 {
			n.set(flagTreesame)
		}
		return nil, nil
	}
	for _, pOID := range parents {
		p, err := w.get(pOID)
		if err != nil {
			return nil, err
		}
		d, err := diff.TreeDiff(w.store, p.commit.TreeOID, n.commit.TreeOID, w.filter)
		if err != nil {
			return nil, err
		}
		if len(d) == 0 {
			n.set(flagTreesame)
			return []objfmt.OID{pOID}, nil
		}
	}
	return parents, nil
}

// Walk runs the walk and invokes yield for each commit in order, stopping
// early if yield returns false. It returns after exhausting the walk or
// after yield signals stop.
func (w *Walker) Walk(yield func(oid objfmt.OID, c *objfmt.Commit) bool) error {
	var ordered []*node
	if w.limited {
		ordered = w.limitList()
	}

	for len(w.queue) > 0 || len(ordered) > 0 {
		var n *node
		if w.limited {
			if len(ordered) == 0 {
				break
			}
			n = ordered[0]
			ordered = ordered[1:]
		} else {
			n = w.queue[0]
			w.queue = w.queue[1:]
			w.addParents(n)
		}

		if n.has(flagUninteresting) || n.has(flagTreesame) {
			continue
		}
		trace.General.Printf("revwalk: yield %s", n.oid)
		if !yield(n.oid, n.commit) {
			return nil
		}
	}
	return nil
}

// Commits is a convenience wrapper over Walk that collects every yielded
// commit OID in order.
func (w *Walker) Commits() ([]objfmt.OID, error) {
	var out []objfmt.OID
	err := w.Walk(func(oid objfmt.OID, _ *objfmt.Commit) bool {
		out = append(out, oid)
		return true
	})
	return out, err
}

// Objects yields, after the commit walk, every unique tree/blob OID
// reachable from the yielded commits' trees, skipping anything reachable
// from a commit marked UNINTERESTING (§4.4 "Object emission"). Call after
// Walk/Commits has populated w.nodes with UNINTERESTING flags; Objects
// performs its own pre-pass over uninteresting commits' trees first.
func (w *Walker) Objects(yield func(oid objfmt.OID, t objfmt.ObjectType) bool) error {
	if !w.objects {
		return nil
	}
	uninteresting := make(map[objfmt.OID]bool)
	tw := newTreeWalker(w.store)
	for _, n := range w.nodes {
		if n.has(flagUninteresting) {
			if err := tw.walk(n.commit.TreeOID, uninteresting, nil); err != nil {
				return err
			}
		}
	}

	ok := true
	for _, n := range w.nodes {
		if !ok {
			break
		}
		if n.has(flagUninteresting) {
			continue
		}
		if err := tw.walk(n.commit.TreeOID, uninteresting, func(oid objfmt.OID, t objfmt.ObjectType) bool {
			if w.seenObjects[oid] {
				return true
			}
			w.seenObjects[oid] = true
			ok = yield(oid, t)
			return ok
		}); err != nil {
			return err
		}
	}
	return nil
}

// treeWalker is a pre-order iterator over a tree's entries, recursing into
// subtrees, shared by Objects' reachability pre-pass and its emission
// pass. Pulled out as its own type (rather than left as a private
// recursive method) because both passes need the exact same traversal
// against a different seen-set/yield pair.
type treeWalker struct {
	store Loader
}

func newTreeWalker(store Loader) *treeWalker {
	return &treeWalker{store: store}
}

// walk recursively visits every tree/blob reachable from treeOID, adding
// each to seen (when yield is nil, a pure reachability pass) or invoking
// yield for anything not already in seen.
func (tw *treeWalker) walk(treeOID objfmt.OID, seen map[objfmt.OID]bool, yield func(objfmt.OID, objfmt.ObjectType) bool) error {
	if treeOID.IsZero() {
		return nil
	}
	if seen[treeOID] && yield == nil {
		return nil
	}
	obj, err := tw.store.Load(treeOID)
	if err != nil {
		return err
	}
	tree, ok := obj.(*objfmt.Tree)
	if !ok {
		return fmt.Errorf("revwalk: %s is not a tree", treeOID)
	}
	if yield == nil {
		seen[treeOID] = true
	} else if !seen[treeOID] {
		if !yield(treeOID, objfmt.TreeObject) {
			return nil
		}
	}
	for _, e := range tree.Entries {
		if e.Mode.IsDir() {
			if err := tw.walk(e.OID, seen, yield); err != nil {
				return err
			}
			continue
		}
		if yield == nil {
			seen[e.OID] = true
			continue
		}
		if seen[e.OID] {
			continue
		}
		if !yield(e.OID, objfmt.BlobObject) {
			return nil
		}
	}
	return nil
}
