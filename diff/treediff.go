package diff

import (
	"fmt"
	"sort"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// Loader is the subset of the Object Store diff needs: loading a tree by
// OID. store.Store satisfies this.
type Loader interface {
	Load(oid objfmt.OID) (objfmt.Object, error)
}

// EntrySide is one side of a changed path: nil if the path is absent on
// that side.
type EntrySide struct {
	Mode objfmt.FileMode
	OID  objfmt.OID
}

// Change describes one path that differs between two trees.
type Change struct {
	Path string
	Old  *EntrySide
	New  *EntrySide
}

// TreeDiff recursively compares two tree OIDs (either may be the zero OID,
// meaning "absent"), restricted to paths passing filter, and returns one
// Change per differing path. Equal (mode, oid) pairs short-circuit whole
// subtrees without being loaded.
func TreeDiff(store Loader, aOID, bOID objfmt.OID, filter *PathFilter) ([]Change, error) {
	if filter == nil {
		filter = NewPathFilter(nil)
	}
	var out []Change
	if err := diffTrees(store, "", aOID, bOID, filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffTrees(store Loader, prefix string, aOID, bOID objfmt.OID, filter *PathFilter, out *[]Change) error {
	if aOID == bOID {
		return nil
	}

	aEntries, err := loadTreeEntries(store, aOID)
	if err != nil {
		return err
	}
	bEntries, err := loadTreeEntries(store, bOID)
	if err != nil {
		return err
	}

	names := unionNames(aEntries, bEntries)
	for _, name := range names {
		sub := filter.Descend(name)
		if sub == nil {
			continue
		}

		a, aok := aEntries[name]
		b, bok := bEntries[name]
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}

		switch {
		case aok && bok && a.Mode == b.Mode && a.OID == b.OID:
			continue

		case aok && a.Mode.IsDir() && bok && b.Mode.IsDir():
			if err := diffTrees(store, path, a.OID, b.OID, sub, out); err != nil {
				return err
			}

		case aok && a.Mode.IsDir() && !bok:
			if err := diffTrees(store, path, a.OID, objfmt.ZeroOID, sub, out); err != nil {
				return err
			}

		case !aok && bok && b.Mode.IsDir():
			if err := diffTrees(store, path, objfmt.ZeroOID, b.OID, sub, out); err != nil {
				return err
			}

		default:
			if !sub.Matches() {
				continue
			}
			change := Change{Path: path}
			if aok {
				change.Old = &EntrySide{Mode: a.Mode, OID: a.OID}
			}
			if bok {
				change.New = &EntrySide{Mode: b.Mode, OID: b.OID}
			}
			*out = append(*out, change)
		}
	}
	return nil
}

func loadTreeEntries(store Loader, oid objfmt.OID) (map[string]objfmt.TreeEntry, error) {
	out := make(map[string]objfmt.TreeEntry)
	if oid.IsZero() {
		return out, nil
	}
	obj, err := store.Load(oid)
	if err != nil {
		return nil, err
	}
	tree, ok := obj.(*objfmt.Tree)
	if !ok {
		return nil, fmt.Errorf("diff: %s is not a tree", oid)
	}
	for _, e := range tree.Entries {
		out[e.Name] = e
	}
	return out, nil
}

func unionNames(a, b map[string]objfmt.TreeEntry) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var names []string
	for n := range a {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for n := range b {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
