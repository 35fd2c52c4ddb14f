// Package store implements the content-addressed Object Store (§4.1): a
// facade over an ordered list of backends (loose objects, then packs),
// first-match wins for reads, first backend only for writes.
package store

import (
	"errors"
	"fmt"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// ErrNotFound is returned when an OID is absent from every backend.
var ErrNotFound = errors.New("store: object not found")

// Backend is one source of truth for objects. The loose backend and the
// pack backend both implement it; Store tries them in order.
type Backend interface {
	// Has reports whether oid is present in this backend.
	Has(oid objfmt.OID) (bool, error)
	// LoadRaw returns the object's type and canonical payload
	// without requiring the caller to know the type up front.
	LoadRaw(oid objfmt.OID) (objfmt.ObjectType, []byte, error)
	// LoadInfo returns type and size without reading the full payload.
	LoadInfo(oid objfmt.OID) (objfmt.ObjectType, int64, error)
	// PrefixMatch returns every OID beginning with hexPrefix.
	PrefixMatch(hexPrefix string) ([]objfmt.OID, error)
	// Reload re-scans on-disk state (after a new pack lands, or a loose
	// object was written by another process).
	Reload() error
}

// Writer is implemented by backends that accept single-object writes. Only
// the loose backend does; packs are written en masse by the pack encoder.
type Writer interface {
	StoreRaw(t objfmt.ObjectType, payload []byte) (objfmt.OID, error)
}

// Store is the Object Store facade. Reads consult Backends in order;
// writes always go to the first backend that implements Writer (the loose
// backend, conventionally index 0).
type Store struct {
	Backends []Backend
}

// New builds a Store from backends in read-priority order.
func New(backends ...Backend) *Store {
	return &Store{Backends: backends}
}

// Has reports whether oid exists in any backend.
func (s *Store) Has(oid objfmt.OID) (bool, error) {
	for _, b := range s.Backends {
		ok, err := b.Has(oid)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// LoadRaw returns the object's type and canonical payload, trying backends
// in order and failing with ErrNotFound if none have it.
func (s *Store) LoadRaw(oid objfmt.OID) (objfmt.ObjectType, []byte, error) {
	for _, b := range s.Backends {
		if ok, err := b.Has(oid); err != nil {
			return objfmt.InvalidObject, nil, err
		} else if !ok {
			continue
		}
		return b.LoadRaw(oid)
	}
	return objfmt.InvalidObject, nil, fmt.Errorf("%w: %s", ErrNotFound, oid)
}

// LoadInfo returns type and size without a full read.
func (s *Store) LoadInfo(oid objfmt.OID) (objfmt.ObjectType, int64, error) {
	for _, b := range s.Backends {
		if ok, err := b.Has(oid); err != nil {
			return objfmt.InvalidObject, 0, err
		} else if !ok {
			continue
		}
		return b.LoadInfo(oid)
	}
	return objfmt.InvalidObject, 0, fmt.Errorf("%w: %s", ErrNotFound, oid)
}

// Load parses the stored payload back into a typed Object.
func (s *Store) Load(oid objfmt.OID) (objfmt.Object, error) {
	t, payload, err := s.LoadRaw(oid)
	if err != nil {
		return nil, err
	}
	switch t {
	case objfmt.BlobObject:
		return &objfmt.Blob{Data: payload}, nil
	case objfmt.TreeObject:
		return objfmt.DecodeTree(payload)
	case objfmt.CommitObject:
		return objfmt.DecodeCommit(payload)
	default:
		return nil, fmt.Errorf("store: unsupported object type %s for %s", t, oid)
	}
}

// Store persists an object idempotently: if its OID is already present in
// any backend, this is a no-op.
func (s *Store) Store(o objfmt.Object) (objfmt.OID, error) {
	oid := objfmt.OIDOf(o)
	if ok, err := s.Has(oid); err != nil {
		return oid, err
	} else if ok {
		return oid, nil
	}
	for _, b := range s.Backends {
		w, ok := b.(Writer)
		if !ok {
			continue
		}
		got, err := w.StoreRaw(o.Type(), o.Payload())
		if err != nil {
			return oid, err
		}
		if got != oid {
			return oid, fmt.Errorf("store: computed oid %s does not match written oid %s", oid, got)
		}
		trace.General.Printf("store: wrote %s %s (%d bytes)", o.Type(), oid, len(o.Payload()))
		return oid, nil
	}
	return oid, errors.New("store: no writable backend configured")
}

// PrefixMatch expands a short hex id by unioning every backend's matches.
func (s *Store) PrefixMatch(hexPrefix string) ([]objfmt.OID, error) {
	seen := make(map[objfmt.OID]bool)
	var out []objfmt.OID
	for _, b := range s.Backends {
		ids, err := b.PrefixMatch(hexPrefix)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	objfmt.SortOIDs(out)
	return out, nil
}

// Reload asks every backend to re-scan on-disk state; call after a pack
// lands or loose objects are written externally.
func (s *Store) Reload() error {
	for _, b := range s.Backends {
		if err := b.Reload(); err != nil {
			return err
		}
	}
	return nil
}
