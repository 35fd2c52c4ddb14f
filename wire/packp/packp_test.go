package packp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/wire/pktline"
)

func oid(b byte) objfmt.OID {
	var o objfmt.OID
	o[len(o)-1] = b
	return o
}

type PackpSuite struct {
	suite.Suite
}

func TestPackpSuite(t *testing.T) {
	suite.Run(t, new(PackpSuite))
}

func (s *PackpSuite) TestCapabilitiesRoundTrip() {
	c := NewCapabilities()
	c.Add("report-status", "")
	c.Add("agent", "tide/1.0")
	c.Add("ofs-delta", "")

	parsed := ParseCapabilities(c.String())
	s.True(parsed.Supports("report-status"))
	s.True(parsed.Supports("ofs-delta"))
	s.True(parsed.Supports("agent"))
	s.False(parsed.Supports("no-thin"))
}

func (s *PackpSuite) TestAdvRefsEncodeDecode() {
	ad := &AdvRefs{
		Refs: []RefAd{
			{Name: "refs/heads/main", OID: oid(1)},
			{Name: "refs/heads/dev", OID: oid(2)},
		},
		Caps: ParseCapabilities("report-status delete-refs"),
	}

	var buf bytes.Buffer
	s.Require().NoError(ad.Encode(&buf))

	sc := pktline.NewScanner(&buf)
	lines, err := sc.ReadAll()
	s.Require().NoError(err)

	decoded, err := DecodeAdvRefs(lines)
	s.Require().NoError(err)
	s.Require().Len(decoded.Refs, 2)
	s.Equal("refs/heads/main", decoded.Refs[0].Name)
	s.Equal(oid(1), decoded.Refs[0].OID)
	s.Equal("refs/heads/dev", decoded.Refs[1].Name)
	s.Equal(oid(2), decoded.Refs[1].OID)
	s.True(decoded.Caps.Supports("report-status"))
	s.True(decoded.Caps.Supports("delete-refs"))
}

func (s *PackpSuite) TestUploadPackRequestEncodeDecode() {
	req := &UploadPackRequest{
		Wants: []objfmt.OID{oid(1), oid(2)},
		Haves: []objfmt.OID{oid(3)},
	}
	var buf bytes.Buffer
	s.Require().NoError(req.Encode(&buf))

	sc := pktline.NewScanner(&buf)
	var lines [][]byte
	for {
		p, err := sc.ReadPacket()
		s.Require().NoError(err)
		if p == nil {
			continue // flush between wants and haves
		}
		lines = append(lines, p)
		if string(bytes.TrimRight(p, "\n")) == "done" {
			break
		}
	}

	decoded, err := DecodeUploadPackRequest(lines)
	s.Require().NoError(err)
	s.Equal(req.Wants, decoded.Wants)
	s.Equal(req.Haves, decoded.Haves)
}

func (s *PackpSuite) TestReceivePackRequestEncodeDecode() {
	req := &ReceivePackRequest{
		Updates: []RefUpdate{
			{Old: objfmt.ZeroOID, New: oid(1), Name: "refs/heads/main"},
			{Old: oid(1), New: oid(2), Name: "refs/heads/dev"},
		},
		Caps: ParseCapabilities("report-status"),
	}
	var buf bytes.Buffer
	s.Require().NoError(req.Encode(&buf))

	sc := pktline.NewScanner(&buf)
	lines, err := sc.ReadAll()
	s.Require().NoError(err)

	decoded, err := DecodeReceivePackRequest(lines)
	s.Require().NoError(err)
	s.Require().Len(decoded.Updates, 2)
	s.Equal(objfmt.ZeroOID, decoded.Updates[0].Old)
	s.Equal(oid(1), decoded.Updates[0].New)
	s.Equal("refs/heads/main", decoded.Updates[0].Name)
	s.True(decoded.Caps.Supports("report-status"))
}

func (s *PackpSuite) TestReportStatusEncodeDecodeSuccess() {
	rs := &ReportStatus{
		RefStatus: map[string]string{"refs/heads/main": ""},
		RefOrder:  []string{"refs/heads/main"},
	}
	var buf bytes.Buffer
	s.Require().NoError(rs.Encode(&buf))

	sc := pktline.NewScanner(&buf)
	lines, err := sc.ReadAll()
	s.Require().NoError(err)

	decoded, err := DecodeReportStatus(lines)
	s.Require().NoError(err)
	s.Empty(decoded.UnpackError)
	s.Equal("", decoded.RefStatus["refs/heads/main"])
}

func (s *PackpSuite) TestReportStatusEncodeDecodeFailure() {
	rs := &ReportStatus{
		RefStatus: map[string]string{"refs/heads/main": "non-fast-forward"},
		RefOrder:  []string{"refs/heads/main"},
	}
	var buf bytes.Buffer
	s.Require().NoError(rs.Encode(&buf))

	sc := pktline.NewScanner(&buf)
	lines, err := sc.ReadAll()
	s.Require().NoError(err)

	decoded, err := DecodeReportStatus(lines)
	s.Require().NoError(err)
	s.Equal("non-fast-forward", decoded.RefStatus["refs/heads/main"])
}
