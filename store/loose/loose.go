// Package loose implements the Object Store's loose backend: one deflated
// file per object under objects/xx/yyyy..., written through a same-directory
// temp file and atomic rename (§4.1, §5).
package loose

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"strconv"

	billy "github.com/go-git/go-billy/v5"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

// Backend stores loose objects under root (conventionally ".git/objects").
type Backend struct {
	fs   billy.Filesystem
	root string
}

// New returns a loose backend rooted at root within fs.
func New(fs billy.Filesystem, root string) *Backend {
	return &Backend{fs: fs, root: root}
}

func (b *Backend) path(oid objfmt.OID) string {
	hex := oid.String()
	return b.fs.Join(b.root, hex[:2], hex[2:])
}

// Has reports whether oid's loose file exists.
func (b *Backend) Has(oid objfmt.OID) (bool, error) {
	_, err := b.fs.Stat(b.path(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Reload is a no-op for the loose backend: every read consults the
// filesystem directly, there is no cached directory listing to refresh.
func (b *Backend) Reload() error { return nil }

// LoadInfo reads only the header ("<type> <size>\0"), needed for load_info
// without inflating the whole payload.
func (b *Backend) LoadInfo(oid objfmt.OID) (objfmt.ObjectType, int64, error) {
	t, size, _, close, err := b.openHeader(oid)
	if err != nil {
		return objfmt.InvalidObject, 0, err
	}
	defer close()
	return t, size, nil
}

// LoadRaw inflates and returns the object's full canonical payload.
func (b *Backend) LoadRaw(oid objfmt.OID) (objfmt.ObjectType, []byte, error) {
	t, size, r, close, err := b.openHeader(oid)
	if err != nil {
		return objfmt.InvalidObject, nil, err
	}
	defer close()

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return objfmt.InvalidObject, nil, fmt.Errorf("loose: reading %s: %w", oid, err)
	}

	got := objfmt.HashObject(t, payload)
	if got != oid {
		return objfmt.InvalidObject, nil, fmt.Errorf("loose: %w: %s decoded to %s", ErrCorrupt, oid, got)
	}
	return t, payload, nil
}

// ErrCorrupt is returned when a loose object's recomputed hash does not
// match its filename.
var ErrCorrupt = fmt.Errorf("loose object failed hash validation")

func (b *Backend) openHeader(oid objfmt.OID) (objfmt.ObjectType, int64, io.Reader, func() error, error) {
	f, err := b.fs.Open(b.path(oid))
	if err != nil {
		return objfmt.InvalidObject, 0, nil, nil, err
	}

	zr, err := zlib.NewReader(f)
	if err != nil {
		_ = f.Close()
		return objfmt.InvalidObject, 0, nil, nil, fmt.Errorf("loose: inflating %s: %w", oid, err)
	}

	br := bufio.NewReader(zr)
	typeWord, err := br.ReadString(' ')
	if err != nil {
		_ = f.Close()
		return objfmt.InvalidObject, 0, nil, nil, fmt.Errorf("loose: %s: malformed header: %w", oid, err)
	}
	t, err := objfmt.ParseObjectType(typeWord[:len(typeWord)-1])
	if err != nil {
		_ = f.Close()
		return objfmt.InvalidObject, 0, nil, nil, err
	}

	sizeWord, err := br.ReadString(0)
	if err != nil {
		_ = f.Close()
		return objfmt.InvalidObject, 0, nil, nil, fmt.Errorf("loose: %s: malformed header: %w", oid, err)
	}
	size, err := strconv.ParseInt(sizeWord[:len(sizeWord)-1], 10, 64)
	if err != nil {
		_ = f.Close()
		return objfmt.InvalidObject, 0, nil, nil, fmt.Errorf("loose: %s: malformed size: %w", oid, err)
	}

	return t, size, br, f.Close, nil
}

// StoreRaw writes the object through a temp file in the same directory and
// an atomic rename, so two writers racing to create the same OID never
// observe a torn file.
func (b *Backend) StoreRaw(t objfmt.ObjectType, payload []byte) (objfmt.OID, error) {
	oid := objfmt.HashObject(t, payload)
	if ok, err := b.Has(oid); err != nil {
		return oid, err
	} else if ok {
		return oid, nil
	}

	dir := b.fs.Join(b.root, oid.String()[:2])
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return oid, fmt.Errorf("loose: creating %s: %w", dir, err)
	}

	tmp, err := b.fs.TempFile(dir, "tmp_obj_")
	if err != nil {
		return oid, fmt.Errorf("loose: creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	fmt.Fprintf(zw, "%s %d\x00", t, len(payload))
	zw.Write(payload) //nolint:errcheck
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		_ = b.fs.Remove(tmpName)
		return oid, fmt.Errorf("loose: deflating %s: %w", oid, err)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = b.fs.Remove(tmpName)
		return oid, fmt.Errorf("loose: writing %s: %w", oid, err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmpName)
		return oid, fmt.Errorf("loose: closing temp file for %s: %w", oid, err)
	}

	if err := b.fs.Rename(tmpName, b.path(oid)); err != nil {
		_ = b.fs.Remove(tmpName)
		return oid, fmt.Errorf("loose: renaming into place %s: %w", oid, err)
	}
	return oid, nil
}

// PrefixMatch lists the fan-out subdirectory matching hexPrefix[:2] (when
// long enough) and filters by the remainder, otherwise scans all
// subdirectories.
func (b *Backend) PrefixMatch(hexPrefix string) ([]objfmt.OID, error) {
	var out []objfmt.OID
	var dirs []string
	if len(hexPrefix) >= 2 {
		dirs = []string{hexPrefix[:2]}
	} else {
		entries, err := b.fs.ReadDir(b.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && len(e.Name()) == 2 {
				dirs = append(dirs, e.Name())
			}
		}
	}

	for _, d := range dirs {
		if len(hexPrefix) >= 2 && d != hexPrefix[:2] {
			continue
		}
		entries, err := b.fs.ReadDir(b.fs.Join(b.root, d))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			hex := d + e.Name()
			if len(hex) < len(hexPrefix) || hex[:len(hexPrefix)] != hexPrefix {
				continue
			}
			id, err := objfmt.ParseOID(hex)
			if err != nil {
				continue
			}
			out = append(out, id)
		}
	}
	return out, nil
}
