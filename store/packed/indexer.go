package packed

import (
	"fmt"
	"hash/crc32"
	"io"

	billy "github.com/go-git/go-billy/v5"

	"github.com/harpreetsinghsandhu021/tide-version-control/format/pack"
	"github.com/harpreetsinghsandhu021/tide-version-control/format/packidx"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// Indexer consumes an incoming pack stream (§4.5) by writing it verbatim
// to a temp file while building its companion .idx. Every entry's inflated
// data, and every resolved object, is held in memory while indexing. Delta
// entries whose base hasn't been seen yet — possible only for REF_DELTA,
// since OFS_DELTA bases are always earlier offsets in the same stream —
// are deferred to a second resolve pass once the whole pack is on disk.
type Indexer struct {
	fs     billy.Filesystem
	root   string
	lookup pack.BaseLookup
}

// NewIndexer returns an Indexer that lands packs under root (conventionally
// the same directory a Backend reads from), resolving REF_DELTA bases
// absent from the incoming pack itself via lookup (nil for a non-thin
// pack).
func NewIndexer(fs billy.Filesystem, root string, lookup pack.BaseLookup) *Indexer {
	return &Indexer{fs: fs, root: root, lookup: lookup}
}

type resolvedObj struct {
	typ  objfmt.ObjectType
	data []byte
}

// Index reads a full pack stream (header through trailing checksum) from
// r, writes it byte-for-byte to "<root>/pack-<checksum>.pack", and writes
// the matching "<root>/pack-<checksum>.idx". It returns the pack's
// checksum. On any error, no .pack/.idx pair is left installed (§7: pack
// stream errors abort the receive and leave nothing behind).
func (ix *Indexer) Index(r io.Reader) (objfmt.OID, error) {
	tmp, err := ix.fs.TempFile(ix.root, "tmp_pack_")
	if err != nil {
		return objfmt.OID{}, fmt.Errorf("packed: creating temp pack: %w", err)
	}
	tmpName := tmp.Name()
	abort := func(err error) (objfmt.OID, error) {
		_ = tmp.Close()
		_ = ix.fs.Remove(tmpName)
		return objfmt.OID{}, err
	}

	teed := io.TeeReader(r, tmp)
	pr, err := pack.NewReader(teed)
	if err != nil {
		return abort(fmt.Errorf("packed: reading pack header: %w", err))
	}

	var entries []pack.Entry
	for {
		e, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return abort(fmt.Errorf("packed: reading entry %d: %w", len(entries), err))
		}
		entries = append(entries, e)
	}
	checksum, err := pr.Checksum()
	if err != nil {
		return abort(fmt.Errorf("packed: reading trailing checksum: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return abort(err)
	}
	trace.Pack.Printf("packed: indexer received %d entries, checksum %s", len(entries), checksum)

	oids, err := resolveEntries(entries, ix.lookup)
	if err != nil {
		_ = ix.fs.Remove(tmpName)
		return objfmt.OID{}, err
	}

	f, err := ix.fs.Open(tmpName)
	if err != nil {
		_ = ix.fs.Remove(tmpName)
		return objfmt.OID{}, err
	}
	fi, err := ix.fs.Stat(tmpName)
	if err != nil {
		_ = f.Close()
		_ = ix.fs.Remove(tmpName)
		return objfmt.OID{}, err
	}
	records, err := crcRecords(f, entries, oids, fi.Size())
	_ = f.Close()
	if err != nil {
		_ = ix.fs.Remove(tmpName)
		return objfmt.OID{}, err
	}

	base := ix.fs.Join(ix.root, fmt.Sprintf("pack-%s", checksum))
	if err := ix.fs.Rename(tmpName, base+".pack"); err != nil {
		_ = ix.fs.Remove(tmpName)
		return objfmt.OID{}, fmt.Errorf("packed: installing %s.pack: %w", base, err)
	}

	idxFile, err := ix.fs.Create(base + ".idx")
	if err != nil {
		_ = ix.fs.Remove(base + ".pack")
		return objfmt.OID{}, fmt.Errorf("packed: creating %s.idx: %w", base, err)
	}
	if err := packidx.Write(idxFile, records, checksum); err != nil {
		_ = idxFile.Close()
		_ = ix.fs.Remove(base + ".pack")
		_ = ix.fs.Remove(base + ".idx")
		return objfmt.OID{}, fmt.Errorf("packed: writing %s.idx: %w", base, err)
	}
	if err := idxFile.Close(); err != nil {
		_ = ix.fs.Remove(base + ".pack")
		_ = ix.fs.Remove(base + ".idx")
		return objfmt.OID{}, err
	}

	return checksum, nil
}

// resolveEntries inflates every entry into its full object, resolving
// OFS_DELTA immediately (its base, at an earlier offset, was necessarily
// resolved in an earlier loop iteration) and REF_DELTA either immediately
// or by deferral when its base hasn't appeared in the stream yet.
func resolveEntries(entries []pack.Entry, lookup pack.BaseLookup) ([]objfmt.OID, error) {
	oids := make([]objfmt.OID, len(entries))
	byOffset := make(map[int64]resolvedObj, len(entries))
	byOID := make(map[objfmt.OID]resolvedObj, len(entries))

	record := func(i int, obj resolvedObj) {
		oid := objfmt.HashObject(obj.typ, obj.data)
		oids[i] = oid
		byOffset[entries[i].Offset] = obj
		byOID[oid] = obj
	}

	var pending []int
	for i, e := range entries {
		switch e.Type {
		case objfmt.OFSDeltaObject:
			base, ok := byOffset[e.BaseOffset]
			if !ok {
				return nil, fmt.Errorf("packed: ofs-delta at offset %d: base at %d not yet seen", e.Offset, e.BaseOffset)
			}
			out, err := pack.ApplyDelta(base.data, e.Data)
			if err != nil {
				return nil, err
			}
			record(i, resolvedObj{typ: base.typ, data: out})
		case objfmt.REFDeltaObject:
			if base, ok := byOID[e.BaseOID]; ok {
				out, err := pack.ApplyDelta(base.data, e.Data)
				if err != nil {
					return nil, err
				}
				record(i, resolvedObj{typ: base.typ, data: out})
			} else if lookup != nil {
				if typ, data, ok := lookup(e.BaseOID); ok {
					out, err := pack.ApplyDelta(data, e.Data)
					if err != nil {
						return nil, err
					}
					record(i, resolvedObj{typ: typ, data: out})
				} else {
					pending = append(pending, i)
				}
			} else {
				pending = append(pending, i)
			}
		default:
			record(i, resolvedObj{typ: e.Type, data: e.Data})
		}
	}

	for progress := true; len(pending) > 0 && progress; {
		progress = false
		var still []int
		for _, i := range pending {
			e := entries[i]
			base, ok := byOID[e.BaseOID]
			if !ok {
				still = append(still, i)
				continue
			}
			out, err := pack.ApplyDelta(base.data, e.Data)
			if err != nil {
				return nil, err
			}
			record(i, resolvedObj{typ: base.typ, data: out})
			progress = true
		}
		pending = still
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("packed: %d ref-delta object(s) never found their base", len(pending))
	}
	return oids, nil
}

// crcRecords computes each entry's on-disk CRC32 (header through
// compressed body) by slicing the now-fully-written pack file between
// consecutive entry offsets, the last entry's range ending at the start of
// the trailing 20-byte checksum.
func crcRecords(f billy.File, entries []pack.Entry, oids []objfmt.OID, packSize int64) ([]packidx.Entry, error) {
	records := make([]packidx.Entry, len(entries))
	for i, e := range entries {
		end := packSize - objfmt.Size
		if i+1 < len(entries) {
			end = entries[i+1].Offset
		}
		if _, err := f.Seek(e.Offset, io.SeekStart); err != nil {
			return nil, err
		}
		buf := make([]byte, end-e.Offset)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("packed: reading entry %d for crc: %w", i, err)
		}
		records[i] = packidx.Entry{OID: oids[i], Offset: e.Offset, CRC32: crc32.ChecksumIEEE(buf)}
	}
	return records, nil
}
