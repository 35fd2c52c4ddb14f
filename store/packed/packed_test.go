package packed

import (
	"fmt"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"

	"github.com/harpreetsinghsandhu021/tide-version-control/format/pack"
	"github.com/harpreetsinghsandhu021/tide-version-control/format/packidx"
	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
)

type PackedSuite struct {
	suite.Suite
}

func TestPackedSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PackedSuite))
}

func (s *PackedSuite) TestHasAndLoadRawResolveDeltas() {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("pack", 0o755))

	base := []byte("package config\n\nfunc Load() {}\n")
	variant := append(append([]byte{}, base...), []byte("\n// extra\n")...)

	baseOID := objfmt.HashObject(objfmt.BlobObject, base)
	variantOID := objfmt.HashObject(objfmt.BlobObject, variant)

	candidates := []pack.Candidate{
		pack.NewCandidate(baseOID, objfmt.BlobObject, base, "a.go"),
		pack.NewCandidate(variantOID, objfmt.BlobObject, variant, "b.go"),
	}

	packFile, err := fs.Create("pack/pack-test.pack")
	s.Require().NoError(err)
	checksum, records, err := pack.Encode(packFile, candidates)
	s.Require().NoError(err)
	s.Require().NoError(packFile.Close())

	var idxEntries []packidx.Entry
	for _, r := range records {
		idxEntries = append(idxEntries, packidx.Entry{OID: r.OID, Offset: r.Offset, CRC32: r.CRC32})
	}
	idxFile, err := fs.Create("pack/pack-test.idx")
	s.Require().NoError(err)
	s.Require().NoError(packidx.Write(idxFile, idxEntries, checksum))
	s.Require().NoError(idxFile.Close())

	b := New(fs, "pack")
	s.Require().NoError(b.Reload())

	for _, want := range []struct {
		oid  objfmt.OID
		data []byte
	}{
		{baseOID, base},
		{variantOID, variant},
	} {
		ok, err := b.Has(want.oid)
		s.NoError(err)
		s.True(ok, "expected %s to be present", want.oid)

		typ, data, err := b.LoadRaw(want.oid)
		s.NoError(err)
		s.Equal(objfmt.BlobObject, typ)
		s.Equal(want.data, data)
	}

	missing := objfmt.HashObject(objfmt.BlobObject, []byte("not in the pack"))
	ok, err := b.Has(missing)
	s.NoError(err)
	s.False(ok)

	prefix := baseOID.String()[:6]
	matches, err := b.PrefixMatch(prefix)
	s.NoError(err)
	s.Contains(matches, baseOID)
}

func (s *PackedSuite) TestPrefixMatchAcrossMultiplePacks() {
	fs := memfs.New()
	s.Require().NoError(fs.MkdirAll("pack", 0o755))

	for i := 0; i < 2; i++ {
		data := []byte(fmt.Sprintf("standalone object %d", i))
		oid := objfmt.HashObject(objfmt.BlobObject, data)
		cand := []pack.Candidate{pack.NewCandidate(oid, objfmt.BlobObject, data, "x.go")}

		name := fmt.Sprintf("pack/p%d", i)
		pf, err := fs.Create(name + ".pack")
		s.Require().NoError(err)
		checksum, records, err := pack.Encode(pf, cand)
		s.Require().NoError(err)
		s.Require().NoError(pf.Close())

		idxf, err := fs.Create(name + ".idx")
		s.Require().NoError(err)
		s.Require().NoError(packidx.Write(idxf, []packidx.Entry{{OID: records[0].OID, Offset: records[0].Offset, CRC32: records[0].CRC32}}, checksum))
		s.Require().NoError(idxf.Close())
	}

	b := New(fs, "pack")
	s.Require().NoError(b.Reload())
	all, err := b.PrefixMatch("")
	s.NoError(err)
	s.Len(all, 2)
}
