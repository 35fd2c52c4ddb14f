// Package refstore implements the Reference Store (§4.2): atomic
// name-to-object bindings under HEAD/refs/heads/refs/remotes, symbolic
// reference chains, and compare-and-swap updates guarded by the Lock
// Discipline.
package refstore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/harpreetsinghsandhu021/tide-version-control/lock"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// ErrNotFound is returned when a reference name has no on-disk binding.
var ErrNotFound = errors.New("refstore: reference not found")

// ErrStaleValue is returned by CompareAndSwap when the on-disk value no
// longer matches the caller's expectation.
var ErrStaleValue = errors.New("refstore: stale value")

// ErrInvalidName is returned by ValidateName and by any write that would
// create an invalid reference.
var ErrInvalidName = errors.New("refstore: invalid reference name")

// ErrExists is returned by CreateBranch when the branch already exists.
var ErrExists = errors.New("refstore: reference already exists")

const maxSymbolicDepth = 5

const symbolicPrefix = "ref: "

// Store is the reference store rooted at a repository's metadata
// directory (conventionally ".git").
type Store struct {
	fs   billy.Filesystem
	root string
}

// New returns a reference store rooted at root within fs.
func New(fs billy.Filesystem, root string) *Store {
	return &Store{fs: fs, root: root}
}

// ValidateName enforces spec §3's reference name grammar: no leading
// dot, no "/.", no "..", no leading/trailing slash, no trailing ".lock",
// no "@{", and none of the disallowed control/glob bytes.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.Contains(name, "/.") || strings.Contains(name, "..") || strings.Contains(name, "@{") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, b := range []byte(name) {
		if b <= 0x20 || b == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		switch b {
		case '*', ':', '?', '[', '\\', '^', '~':
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

func (s *Store) path(name string) string {
	return s.fs.Join(s.root, filepathFromRef(name))
}

// filepathFromRef maps a reference name to its on-disk path. HEAD lives at
// the root; everything else is relative to root as-is (refs/heads/main,
// refs/remotes/origin/main, ...).
func filepathFromRef(name string) string {
	return name
}

// rawEntry is the parsed content of one reference file: either Symbolic
// (set) or Target (set), never both.
type rawEntry struct {
	Symbolic string
	Target   objfmt.OID
}

func (s *Store) readRaw(name string) (rawEntry, error) {
	f, err := s.fs.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return rawEntry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return rawEntry{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return rawEntry{}, fmt.Errorf("refstore: %s: empty reference file", name)
	}
	line := strings.TrimRight(sc.Text(), "\r\n")

	if strings.HasPrefix(line, symbolicPrefix) {
		return rawEntry{Symbolic: strings.TrimSpace(strings.TrimPrefix(line, symbolicPrefix))}, nil
	}
	oid, err := objfmt.ParseOID(strings.TrimSpace(line))
	if err != nil {
		return rawEntry{}, fmt.Errorf("refstore: %s: %w", name, err)
	}
	return rawEntry{Target: oid}, nil
}

// Read resolves name to an OID, transparently following symbolic chains.
func (s *Store) Read(name string) (objfmt.OID, error) {
	seen := make(map[string]bool)
	cur := name
	for depth := 0; ; depth++ {
		if depth > maxSymbolicDepth {
			return objfmt.OID{}, fmt.Errorf("refstore: %s: symbolic reference chain too deep", name)
		}
		if seen[cur] {
			return objfmt.OID{}, fmt.Errorf("refstore: %s: symbolic reference loop", name)
		}
		seen[cur] = true

		e, err := s.readRaw(cur)
		if err != nil {
			return objfmt.OID{}, err
		}
		if e.Symbolic == "" {
			return e.Target, nil
		}
		cur = e.Symbolic
	}
}

// Update writes name to point directly at newOID, without a compare-and-swap
// check.
func (s *Store) Update(name string, newOID objfmt.OID) error {
	return s.writeThroughLock(name, newOID.String()+"\n")
}

// CompareAndSwap atomically replaces name's binding: expected == nil means
// "must not currently exist"; newOID == nil means "delete". Symbolic
// references are followed to their terminal file, which is the one
// actually compared and rewritten.
func (s *Store) CompareAndSwap(name string, expected, newOID *objfmt.OID) error {
	terminal, err := s.terminalName(name)
	if err != nil {
		return err
	}

	cur, err := s.readRaw(terminal)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	switch {
	case expected == nil && exists:
		return fmt.Errorf("%w: %s already exists", ErrStaleValue, terminal)
	case expected != nil && !exists:
		return fmt.Errorf("%w: %s does not exist", ErrStaleValue, terminal)
	case expected != nil && exists && cur.Target != *expected:
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStaleValue, terminal, cur.Target, *expected)
	}

	if newOID == nil {
		if err := ValidateName(terminal); err != nil {
			return err
		}
		if err := s.fs.Remove(s.path(terminal)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	return s.writeThroughLock(terminal, newOID.String()+"\n")
}

// terminalName follows symbolic links to find the file a write should
// actually target, per §4.2's "a symbolic update walks the chain and
// writes only the terminal file".
func (s *Store) terminalName(name string) (string, error) {
	seen := make(map[string]bool)
	cur := name
	for depth := 0; ; depth++ {
		if depth > maxSymbolicDepth || seen[cur] {
			return "", fmt.Errorf("refstore: %s: symbolic reference loop", name)
		}
		seen[cur] = true

		e, err := s.readRaw(cur)
		if errors.Is(err, ErrNotFound) {
			return cur, nil
		}
		if err != nil {
			return "", err
		}
		if e.Symbolic == "" {
			return cur, nil
		}
		cur = e.Symbolic
	}
}

func (s *Store) writeThroughLock(name, content string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.fs.Join(s.root, parentDir(name)), 0o755); err != nil {
		return err
	}

	lk, err := lock.Acquire(s.fs, s.path(name))
	if err != nil {
		return err
	}
	if _, err := lk.File().Write([]byte(content)); err != nil {
		_ = lk.Rollback()
		return err
	}
	return lk.Commit()
}

func parentDir(name string) string {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return "."
	}
	return name[:i]
}

// CreateBranch creates refs/heads/<name> pointing at startOID, failing if
// the name is invalid or the branch already exists.
func (s *Store) CreateBranch(name string, startOID objfmt.OID) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	full := "refs/heads/" + name
	err := s.CompareAndSwap(full, nil, &startOID)
	if errors.Is(err, ErrStaleValue) {
		return fmt.Errorf("%w: %w", ErrExists, err)
	}
	return err
}

// DeleteBranch removes refs/heads/<name>, returning the OID it pointed at.
func (s *Store) DeleteBranch(name string) (objfmt.OID, error) {
	full := "refs/heads/" + name
	oid, err := s.Read(full)
	if err != nil {
		return objfmt.OID{}, err
	}
	if err := s.CompareAndSwap(full, &oid, nil); err != nil {
		return objfmt.OID{}, err
	}
	return oid, nil
}

// SymRef describes the result of CurrentRef: either a symbolic name (the
// deepest one reachable before a direct binding) or a detached direct OID.
type SymRef struct {
	Name     string
	Detached bool
	OID      objfmt.OID
}

// CurrentRef resolves source (conventionally "HEAD") to the deepest
// symbolic name without collapsing it to the OID, the way status display
// needs to distinguish "on branch main" from "detached at <oid>".
func (s *Store) CurrentRef(source string) (SymRef, error) {
	e, err := s.readRaw(source)
	if err != nil {
		return SymRef{}, err
	}
	if e.Symbolic == "" {
		return SymRef{Name: source, Detached: true, OID: e.Target}, nil
	}

	seen := map[string]bool{source: true}
	cur := e.Symbolic
	for depth := 0; ; depth++ {
		if depth > maxSymbolicDepth || seen[cur] {
			return SymRef{}, fmt.Errorf("refstore: %s: symbolic reference loop", source)
		}
		seen[cur] = true
		next, err := s.readRaw(cur)
		if errors.Is(err, ErrNotFound) {
			// unborn branch: cur has no binding yet
			return SymRef{Name: cur}, nil
		}
		if err != nil {
			return SymRef{}, err
		}
		if next.Symbolic == "" {
			return SymRef{Name: cur}, nil
		}
		cur = next.Symbolic
	}
}

// ListRefs enumerates every reference whose name begins with prefix
// (conventionally "refs/heads/" or "refs/remotes/"), depth-first.
func (s *Store) ListRefs(prefix string) ([]string, error) {
	var out []string
	root := s.fs.Join(s.root, prefix)
	if err := s.walk(root, prefix, &out); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) walk(dir, name string, out *[]string) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childName := name
		if childName != "" {
			childName += "/"
		}
		childName += e.Name()
		if e.IsDir() {
			if err := s.walk(s.fs.Join(dir, e.Name()), childName, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, childName)
	}
	return nil
}

// ReverseMap returns every OID's owning reference names, built by reading
// every ref under refs/ plus HEAD.
func (s *Store) ReverseMap() (map[objfmt.OID][]string, error) {
	names, err := s.ListRefs("refs")
	if err != nil {
		return nil, err
	}
	out := make(map[objfmt.OID][]string)
	for _, n := range names {
		oid, err := s.Read(n)
		if err != nil {
			continue
		}
		out[oid] = append(out[oid], n)
	}
	if oid, err := s.Read("HEAD"); err == nil {
		out[oid] = append(out[oid], "HEAD")
	}
	return out, nil
}

// ShortName strips the longest of "refs/remotes/", "refs/heads/", "refs/"
// from path.
func ShortName(path string) string {
	for _, prefix := range []string{"refs/remotes/", "refs/heads/", "refs/"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

// SetSymbolic points name at target (another reference name), e.g.
// HEAD -> refs/heads/main, writing through the lock without resolving
// target.
func (s *Store) SetSymbolic(name, target string) error {
	if err := ValidateName(target); err != nil {
		return err
	}
	return s.writeThroughLock(name, symbolicPrefix+target+"\n")
}
