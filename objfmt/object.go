package objfmt

import "fmt"

// ObjectType distinguishes the three on-disk object kinds (plus the two
// pack-only delta markers used by the pack codec).
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	// OFSDeltaObject and REFDeltaObject never appear as a stored object's
	// type; they tag pack entries, see format/pack.
	OFSDeltaObject ObjectType = 6
	REFDeltaObject ObjectType = 7
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// Valid reports whether t is one of the three storable types.
func (t ObjectType) Valid() bool {
	switch t {
	case CommitObject, TreeObject, BlobObject:
		return true
	default:
		return false
	}
}

// ParseObjectType parses the textual form used in loose-object headers and
// pack entry type names.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	default:
		return InvalidObject, fmt.Errorf("objfmt: unknown object type %q", s)
	}
}

// Object is the common contract every stored variant satisfies: a type tag
// and a method to produce its canonical payload (the bytes that, prefixed
// with "<type> <size>\0", hash to the object's OID).
type Object interface {
	Type() ObjectType
	// Payload returns the canonical serialized bytes (without the
	// "<type> <size>\0" header).
	Payload() []byte
}

// OIDOf computes the content-addressed id of an Object.
func OIDOf(o Object) OID {
	p := o.Payload()
	return HashObject(o.Type(), p)
}
