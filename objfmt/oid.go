// Package objfmt implements the content-addressed object model: blobs,
// trees, commits, and the canonical byte representation each OID hashes.
package objfmt

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/pjbgf/sha1cd"
)

// Size is the length in bytes of an OID (SHA-1 digest).
const Size = 20

// HexSize is the length of an OID's hexadecimal string form.
const HexSize = Size * 2

// ErrInvalidHex is returned by ParseOID when the input is not HexSize hex
// digits.
var ErrInvalidHex = errors.New("objfmt: invalid hex object id")

// OID is the 40-hex-digit SHA-1 object id used throughout the core: object
// identity, tree entries, commit parents, and reference targets.
type OID [Size]byte

// ZeroOID is the all-zero id used on the wire to mean "absent".
var ZeroOID OID

// ParseOID decodes a 40-character hex string into an OID.
func ParseOID(s string) (OID, error) {
	var id OID
	if len(s) != HexSize {
		return id, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	copy(id[:], b)
	return id, nil
}

// MustParseOID is ParseOID but panics on error; for literals in tests and
// well-known constants.
func MustParseOID(s string) OID {
	id, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the lowercase hex representation.
func (o OID) String() string { return hex.EncodeToString(o[:]) }

// IsZero reports whether o is the all-zero id.
func (o OID) IsZero() bool { return o == ZeroOID }

// Compare orders two OIDs byte-for-byte, matching the sorted order used by
// the pack index OID table.
func (o OID) Compare(other OID) int { return bytes.Compare(o[:], other[:]) }

// HasHexPrefix reports whether o's hex string starts with prefix (used by
// the object store's short-id expansion).
func (o OID) HasHexPrefix(prefix string) bool {
	return bytes.HasPrefix([]byte(o.String()), []byte(prefix))
}

// SortOIDs sorts a slice of OIDs in increasing order, as required for the
// pack index's sorted OID table.
func SortOIDs(ids []OID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}

// Hasher wraps the collision-detecting SHA-1 implementation and primes it
// with the canonical "<type> <size>\0" header before the payload, exactly
// as Object's serialization defines an OID.
type Hasher struct {
	h interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
		Reset()
	}
}

// NewHasher returns a Hasher reset for the given object type and payload
// size.
func NewHasher(t ObjectType, size int64) *Hasher {
	h := &Hasher{h: sha1cd.New()}
	h.Reset(t, size)
	return h
}

// Reset reprimes the hasher for a new object header.
func (h *Hasher) Reset(t ObjectType, size int64) {
	h.h.Reset()
	fmt.Fprintf(byteWriter{h.h}, "%s %d\x00", t, size)
}

func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum returns the resulting OID.
func (h *Hasher) Sum() OID {
	var id OID
	copy(id[:], h.h.Sum(nil))
	return id
}

type byteWriter struct {
	w interface{ Write([]byte) (int, error) }
}

func (b byteWriter) Write(p []byte) (int, error) { return b.w.Write(p) }

// HashObject computes the OID of an object's canonical serialization in
// one call, for small one-shot callers that hold the whole payload.
func HashObject(t ObjectType, payload []byte) OID {
	h := NewHasher(t, int64(len(payload)))
	_, _ = h.Write(payload)
	return h.Sum()
}
