package pack

import (
	"fmt"
	"io"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// BaseLookup resolves an object already known outside the pack being read,
// used to satisfy REF_DELTA bases that point at objects already in the
// repository's object store (a "thin pack").
type BaseLookup func(oid objfmt.OID) (objfmt.ObjectType, []byte, bool)

// Unpacker materializes every entry of a pack stream into full objects,
// resolving OFS_DELTA chains against entries already seen in this same
// stream and REF_DELTA bases either likewise or via an external lookup.
type Unpacker struct {
	lookup BaseLookup
	byOff  map[int64]resolved
	byOID  map[objfmt.OID]resolved
}

type resolved struct {
	typ  objfmt.ObjectType
	data []byte
}

func NewUnpacker(lookup BaseLookup) *Unpacker {
	return &Unpacker{lookup: lookup, byOff: make(map[int64]resolved), byOID: make(map[objfmt.OID]resolved)}
}

// Resolve walks r's entries in order, returning each as a fully inflated
// (type, payload, oid) triple. Because OFS_DELTA bases always precede their
// children in a well-formed pack, a single forward pass suffices.
func (u *Unpacker) Resolve(r *Reader, emit func(objfmt.ObjectType, []byte, objfmt.OID) error) error {
	n := 0
	for {
		e, err := r.Next()
		if err == io.EOF {
			trace.Pack.Printf("pack: unpacker resolved %d entries", n)
			return nil
		}
		if err != nil {
			return err
		}

		typ, data, err := u.materialize(e)
		if err != nil {
			return fmt.Errorf("pack: resolving entry at offset %d: %w", e.Offset, err)
		}
		r := resolved{typ: typ, data: data}
		u.byOff[e.Offset] = r

		oid := objfmt.HashObject(typ, data)
		u.byOID[oid] = r
		if err := emit(typ, data, oid); err != nil {
			return err
		}
		n++
	}
}

func (u *Unpacker) materialize(e Entry) (objfmt.ObjectType, []byte, error) {
	if !e.isDelta() {
		return e.Type, e.Data, nil
	}

	var base resolved
	switch e.Type {
	case objfmt.OFSDeltaObject:
		b, ok := u.byOff[e.BaseOffset]
		if !ok {
			return 0, nil, fmt.Errorf("pack: ofs-delta base at offset %d not yet seen", e.BaseOffset)
		}
		base = b
	case objfmt.REFDeltaObject:
		if b, ok := u.byOID[e.BaseOID]; ok {
			base = b
		} else if u.lookup != nil {
			typ, data, ok := u.lookup(e.BaseOID)
			if !ok {
				return 0, nil, fmt.Errorf("pack: ref-delta base %s not found", e.BaseOID)
			}
			base = resolved{typ: typ, data: data}
		} else {
			return 0, nil, fmt.Errorf("pack: ref-delta base %s not found", e.BaseOID)
		}
	}

	out, err := ApplyDelta(base.data, e.Data)
	if err != nil {
		return 0, nil, err
	}
	return base.typ, out, nil
}
