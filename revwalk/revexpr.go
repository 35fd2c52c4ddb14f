package revwalk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// Resolver looks up a revision name (branch, tag, or hex OID/prefix) and
// a commit's Nth parent/ancestor, the two primitives the expression
// grammar needs.
type Resolver interface {
	// Resolve turns a bare name into an OID (a ref, a short or full hex
	// id, or HEAD).
	Resolve(name string) (objfmt.OID, error)
	// Commit loads a commit by OID.
	Commit(oid objfmt.OID) (*objfmt.Commit, error)
}

// Expr is one parsed revision expression: a start point plus whether it
// is an inclusion or exclusion root, per spec.md §4.4.
type Expr struct {
	// Exclude is true for "^R" and the left side of "A..B".
	Exclude bool
	OID     objfmt.OID
}

// ParseRevisions parses a list of revision-expression strings (from a
// command line, say) into a list of Expr start points and a list of
// workspace paths (anything that isn't a recognized revision expression
// is treated as a path filter entry, per §4.4).
//
// Grammar (spec.md §9): expr := name | expr '^' n? | expr '~' n ; plus the
// two compound forms handled at this level, "^R" and "A..B".
func ParseRevisions(r Resolver, args []string) ([]Expr, []string, error) {
	var exprs []Expr
	var paths []string

	for _, arg := range args {
		switch {
		case strings.Contains(arg, ".."):
			parts := strings.SplitN(arg, "..", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return nil, nil, fmt.Errorf("revwalk: malformed range expression %q", arg)
			}
			aOID, err := resolveExpr(r, parts[0])
			if err != nil {
				return nil, nil, err
			}
			bOID, err := resolveExpr(r, parts[1])
			if err != nil {
				return nil, nil, err
			}
			exprs = append(exprs, Expr{Exclude: true, OID: aOID}, Expr{OID: bOID})

		case strings.HasPrefix(arg, "^"):
			oid, err := resolveExpr(r, arg[1:])
			if err != nil {
				return nil, nil, err
			}
			exprs = append(exprs, Expr{Exclude: true, OID: oid})

		default:
			oid, err := resolveExpr(r, arg)
			if err != nil {
				// Not a resolvable revision: treat as a workspace path,
				// per §4.4 "a workspace path -> added to the path filter".
				paths = append(paths, arg)
				continue
			}
			exprs = append(exprs, Expr{OID: oid})
		}
	}
	return exprs, paths, nil
}

// resolveExpr resolves a single revision atom, handling the trailing
// "^N" (Nth parent) and "~N" (Nth generation ancestor, first-parent only)
// suffixes recognized by the grammar in spec.md §9.
func resolveExpr(r Resolver, s string) (objfmt.OID, error) {
	if i := strings.LastIndexByte(s, '^'); i > 0 && isDigits(s[i+1:]) {
		base, err := resolveExpr(r, s[:i])
		if err != nil {
			return objfmt.OID{}, err
		}
		n := 1
		if s[i+1:] != "" {
			n, _ = strconv.Atoi(s[i+1:])
		}
		return nthParent(r, base, n)
	}
	if i := strings.LastIndexByte(s, '~'); i > 0 && isDigits(s[i+1:]) {
		base, err := resolveExpr(r, s[:i])
		if err != nil {
			return objfmt.OID{}, err
		}
		n, _ := strconv.Atoi(s[i+1:])
		cur := base
		for k := 0; k < n; k++ {
			var err error
			cur, err = nthParent(r, cur, 1)
			if err != nil {
				return objfmt.OID{}, err
			}
		}
		return cur, nil
	}
	return r.Resolve(s)
}

func nthParent(r Resolver, oid objfmt.OID, n int) (objfmt.OID, error) {
	c, err := r.Commit(oid)
	if err != nil {
		return objfmt.OID{}, err
	}
	if n == 0 {
		return oid, nil
	}
	if n > len(c.ParentOIDs) {
		return objfmt.OID{}, fmt.Errorf("revwalk: %s has no parent number %d", oid, n)
	}
	return c.ParentOIDs[n-1], nil
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, b := range []byte(s) {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}
