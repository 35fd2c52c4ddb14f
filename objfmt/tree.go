package objfmt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateEntry is returned by Tree.Validate when two entries share a
// name.
var ErrDuplicateEntry = errors.New("objfmt: duplicate tree entry name")

// ErrInvalidEntryName is returned for a name that is empty or contains a
// NUL or '/'.
var ErrInvalidEntryName = errors.New("objfmt: invalid tree entry name")

// TreeEntry is one (name, mode, oid) binding inside a Tree.
type TreeEntry struct {
	Name string
	Mode FileMode
	OID  OID
}

// Tree is an ordered mapping from name to entry. The in-memory Entries
// slice need not be pre-sorted — Payload always emits canonical order.
type Tree struct {
	Entries []TreeEntry
}

func (t *Tree) Type() ObjectType { return TreeObject }

// sortKey returns the name used to order two tree entries: directories are
// compared as though they carried a trailing slash, so "foo" < "foo.c" <
// "foo/bar" (§3).
func sortKey(e TreeEntry) string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// Sorted returns a copy of the entries in canonical tree order.
func (t *Tree) Sorted() []TreeEntry {
	out := make([]TreeEntry, len(t.Entries))
	copy(out, t.Entries)
	sort.Slice(out, func(i, j int) bool { return sortKey(out[i]) < sortKey(out[j]) })
	return out
}

// Validate checks the name and uniqueness invariants from §3: non-empty
// names without '/' or NUL, and no two entries sharing a name.
func (t *Tree) Validate() error {
	seen := make(map[string]bool, len(t.Entries))
	for _, e := range t.Entries {
		if e.Name == "" || strings.ContainsRune(e.Name, '/') || strings.ContainsRune(e.Name, 0) {
			return fmt.Errorf("%w: %q", ErrInvalidEntryName, e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// Entry returns the entry named name, if present.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Payload serializes the tree in canonical order: for each entry,
// "<mode-octal> <name>\0<20-byte-oid>", with mode written without leading
// zeros the way Git's own tree format does (e.g. "100644", "40000").
func (t *Tree) Payload() []byte {
	var buf bytes.Buffer
	for _, e := range t.Sorted() {
		fmt.Fprintf(&buf, "%o %s\x00", uint32(e.Mode), e.Name)
		buf.Write(e.OID[:])
	}
	return buf.Bytes()
}

// DecodeTree parses a tree's canonical payload back into entries.
func DecodeTree(payload []byte) (*Tree, error) {
	t := &Tree{}
	for len(payload) > 0 {
		sp := bytes.IndexByte(payload, ' ')
		if sp < 0 {
			return nil, errors.New("objfmt: malformed tree entry (missing mode separator)")
		}
		var mode uint32
		if _, err := fmt.Sscanf(string(payload[:sp]), "%o", &mode); err != nil {
			return nil, fmt.Errorf("objfmt: malformed tree entry mode: %w", err)
		}
		payload = payload[sp+1:]

		nul := bytes.IndexByte(payload, 0)
		if nul < 0 {
			return nil, errors.New("objfmt: malformed tree entry (missing name terminator)")
		}
		name := string(payload[:nul])
		payload = payload[nul+1:]

		if len(payload) < Size {
			return nil, errors.New("objfmt: truncated tree entry oid")
		}
		var id OID
		copy(id[:], payload[:Size])
		payload = payload[Size:]

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: FileMode(mode), OID: id})
	}
	return t, nil
}
