// Package index implements the staging index (§4.3): an in-memory staged
// tree with per-path conflict stages and an exactly reproducible binary
// on-disk format.
package index

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// Stage tags an entry's role during a three-way merge conflict.
type Stage uint8

const (
	// Resolved is the normal, fully-merged stage.
	Resolved Stage = 0
	// Base is the common-ancestor version of a conflicted path.
	Base Stage = 1
	// Ours is our side of a conflicted path.
	Ours Stage = 2
	// Theirs is their side of a conflicted path.
	Theirs Stage = 3
)

// StatCache records filesystem metadata used only for cheap change
// detection — never part of any object's hash.
type StatCache struct {
	CTimeSec, CTimeNano uint32
	MTimeSec, MTimeNano uint32
	Dev, Ino            uint32
	UID, GID            uint32
	Size                uint32
}

// Entry is one (path, stage) binding. Key() gives the uniqueness tuple
// required by §3's data model.
type Entry struct {
	Path  string
	Stage Stage
	Mode  objfmt.FileMode
	OID   objfmt.OID
	Stat  StatCache
}

// Key returns the (path, stage) identity tuple.
func (e *Entry) Key() (string, Stage) { return e.Path, e.Stage }

// TimesMatch reports whether every one of the four cached timestamps
// agrees with st — when true the entry is assumed clean without
// re-hashing the workspace file.
func (e *Entry) TimesMatch(st StatCache) bool {
	return e.Stat.CTimeSec == st.CTimeSec && e.Stat.CTimeNano == st.CTimeNano &&
		e.Stat.MTimeSec == st.MTimeSec && e.Stat.MTimeNano == st.MTimeNano
}

// StatMatch reports whether mode and size agree with st (size 0 is
// treated as "unknown, assume match" — some callers stage paths without a
// filesystem size yet).
func (e *Entry) StatMatch(mode objfmt.FileMode, st StatCache) bool {
	if e.Mode != mode {
		return false
	}
	return e.Stat.Size == 0 || e.Stat.Size == st.Size
}

// ErrNotFound is returned by EntryFor when no matching (path, stage) entry
// exists.
var ErrNotFound = errors.New("index: entry not found")

// Index is the full staged tree plus its parent-directory side-index.
type Index struct {
	entries map[string]map[Stage]*Entry
	// children maps a directory path to the set of entry paths strictly
	// below it, supporting TrackedDirectory without a full scan.
	children map[string]map[string]bool
}

// New returns an empty index.
func New() *Index {
	return &Index{
		entries:  make(map[string]map[Stage]*Entry),
		children: make(map[string]map[string]bool),
	}
}

func ancestors(path string) []string {
	parts := strings.Split(path, "/")
	var out []string
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

func (i *Index) link(path string) {
	for _, dir := range ancestors(path) {
		set, ok := i.children[dir]
		if !ok {
			set = make(map[string]bool)
			i.children[dir] = set
		}
		set[path] = true
	}
}

func (i *Index) unlink(path string) {
	for _, dir := range ancestors(path) {
		if set, ok := i.children[dir]; ok {
			delete(set, path)
			if len(set) == 0 {
				delete(i.children, dir)
			}
		}
	}
}

// removePath deletes every stage of path.
func (i *Index) removePath(path string) {
	if _, ok := i.entries[path]; !ok {
		return
	}
	delete(i.entries, path)
	i.unlink(path)
}

// Add stages a resolved entry at path. Per §4.3 Add semantics: this removes
// any entry that is an ancestor directory of path (a file replaces a
// directory), removes every entry whose path is strictly below path (a
// directory replaces children), and clears stages 1-3 for path.
func (i *Index) Add(path string, mode objfmt.FileMode, oid objfmt.OID, st StatCache) *Entry {
	for _, dir := range ancestors(path) {
		i.removePath(dir)
	}
	if children, ok := i.children[path]; ok {
		for child := range children {
			i.removePath(child)
		}
		delete(i.children, path)
	}

	e := &Entry{Path: path, Stage: Resolved, Mode: mode, OID: oid, Stat: st}
	i.entries[path] = map[Stage]*Entry{Resolved: e}
	i.link(path)
	return e
}

// Remove deletes every stage of path.
func (i *Index) Remove(path string) {
	i.removePath(path)
}

// AddConflictSet records a path as conflicted: the three stage slots (base,
// ours, theirs) replace any stage-0 entry. A nil element in the triple
// means that side has no entry (e.g. the path didn't exist on that side).
func (i *Index) AddConflictSet(path string, mode objfmt.FileMode, base, ours, theirs *objfmt.OID) {
	i.removePath(path)
	stages := make(map[Stage]*Entry)
	set := func(s Stage, oid *objfmt.OID) {
		if oid == nil {
			return
		}
		stages[s] = &Entry{Path: path, Stage: s, Mode: mode, OID: *oid}
	}
	set(Base, base)
	set(Ours, ours)
	set(Theirs, theirs)
	if len(stages) == 0 {
		return
	}
	i.entries[path] = stages
	i.link(path)
}

// EntryFor returns the entry at (path, stage).
func (i *Index) EntryFor(path string, stage Stage) (*Entry, error) {
	stages, ok := i.entries[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	e, ok := stages[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s (stage %d)", ErrNotFound, path, stage)
	}
	return e, nil
}

// TrackedFile reports whether path has any staged entry (at any stage).
func (i *Index) TrackedFile(path string) bool {
	_, ok := i.entries[path]
	return ok
}

// TrackedDirectory reports whether path is a parent of any staged entry.
func (i *Index) TrackedDirectory(path string) bool {
	_, ok := i.children[path]
	return ok
}

// Tracked reports TrackedFile(path) || TrackedDirectory(path).
func (i *Index) Tracked(path string) bool {
	return i.TrackedFile(path) || i.TrackedDirectory(path)
}

// Conflict reports whether any path currently has a non-resolved stage.
func (i *Index) Conflict() bool {
	for _, stages := range i.entries {
		if _, ok := stages[Resolved]; !ok {
			return true
		}
	}
	return false
}

// ConflictPaths returns every path that currently has a non-resolved
// stage, sorted.
func (i *Index) ConflictPaths() []string {
	var out []string
	for path, stages := range i.entries {
		if _, ok := stages[Resolved]; !ok {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// EachEntry calls cb for every entry in (path, stage) order.
func (i *Index) EachEntry(cb func(*Entry) error) error {
	paths := make([]string, 0, len(i.entries))
	for p := range i.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		stages := i.entries[p]
		order := make([]Stage, 0, len(stages))
		for s := range stages {
			order = append(order, s)
		}
		sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })
		for _, s := range order {
			if err := cb(stages[s]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Entries returns every entry in (path, stage) order.
func (i *Index) Entries() []*Entry {
	var out []*Entry
	_ = i.EachEntry(func(e *Entry) error {
		out = append(out, e)
		return nil
	})
	return out
}

// Clear empties the index.
func (i *Index) Clear() {
	i.entries = make(map[string]map[Stage]*Entry)
	i.children = make(map[string]map[string]bool)
}

// Len returns the number of (path, stage) entries.
func (i *Index) Len() int {
	n := 0
	for _, stages := range i.entries {
		n += len(stages)
	}
	return n
}
