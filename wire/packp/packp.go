// Package packp implements the wire message semantics layered on pktline
// framing (§6): capability advertisement, upload-pack want/have/done
// negotiation, and receive-pack ref update reporting. Only message
// structure is in scope — process spawning and packet transport over
// stdio belong to the out-of-scope transport glue (§1).
package packp

import (
	"fmt"
	"io"
	"strings"

	"github.com/harpreetsinghsandhu021/tide-version-control/objfmt"
	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
	"github.com/harpreetsinghsandhu021/tide-version-control/wire/pktline"
)

// Capabilities is an ordered, de-duplicated set of negotiated protocol
// extensions (report-status, delete-refs, no-thin, ofs-delta, ...).
type Capabilities struct {
	names []string
	set   map[string]string // name -> value, "" for valueless capabilities
}

// NewCapabilities returns an empty capability set.
func NewCapabilities() *Capabilities {
	return &Capabilities{set: make(map[string]string)}
}

// Add records a capability, optionally with a "name=value" payload.
func (c *Capabilities) Add(name, value string) {
	if _, ok := c.set[name]; !ok {
		c.names = append(c.names, name)
	}
	c.set[name] = value
}

// Supports reports whether name was negotiated.
func (c *Capabilities) Supports(name string) bool {
	_, ok := c.set[name]
	return ok
}

// String renders the space-delimited capability list as it appears after
// the NUL in an advertisement line.
func (c *Capabilities) String() string {
	parts := make([]string, len(c.names))
	for i, n := range c.names {
		if v := c.set[n]; v != "" {
			parts[i] = n + "=" + v
		} else {
			parts[i] = n
		}
	}
	return strings.Join(parts, " ")
}

// ParseCapabilities splits a space-delimited capability list.
func ParseCapabilities(s string) *Capabilities {
	c := NewCapabilities()
	for _, tok := range strings.Fields(s) {
		if i := strings.IndexByte(tok, '='); i >= 0 {
			c.Add(tok[:i], tok[i+1:])
		} else {
			c.Add(tok, "")
		}
	}
	return c
}

// RefAd is one advertised ref: a name and the OID it currently points at
// (the zero OID for a symref-only or absent entry is not modeled here —
// absence is simply "not present in the list").
type RefAd struct {
	Name string
	OID  objfmt.OID
}

// AdvRefs is the first non-flush packet of a server's response: ref
// advertisements and capabilities. The
// first ref line carries capabilities NUL-separated after the OID/name;
// every subsequent line is a plain "<oid> <name>".
type AdvRefs struct {
	Refs []RefAd
	Caps *Capabilities
}

// Encode writes the advertisement followed by a flush packet.
func (a *AdvRefs) Encode(w io.Writer) error {
	for i, r := range a.Refs {
		line := fmt.Sprintf("%s %s", r.OID, r.Name)
		if i == 0 {
			line += "\x00" + a.Caps.String()
		}
		if err := pktline.WriteLine(w, line); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

// DecodeAdvRefs parses a capability-advertisement message already split
// into pktline payloads (as returned by pktline.Scanner.ReadAll up to the
// terminating flush).
func DecodeAdvRefs(lines [][]byte) (*AdvRefs, error) {
	ad := &AdvRefs{Caps: NewCapabilities()}
	for i, raw := range lines {
		line := strings.TrimRight(string(raw), "\n")
		if i == 0 {
			if nul := strings.IndexByte(line, 0); nul >= 0 {
				ad.Caps = ParseCapabilities(line[nul+1:])
				line = line[:nul]
			}
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("packp: malformed ref advertisement line %q", line)
		}
		oid, err := objfmt.ParseOID(line[:sp])
		if err != nil {
			return nil, fmt.Errorf("packp: %w", err)
		}
		ad.Refs = append(ad.Refs, RefAd{Name: line[sp+1:], OID: oid})
	}
	trace.Wire.Printf("packp: advertised %d refs, caps %q", len(ad.Refs), ad.Caps.String())
	return ad, nil
}

// UploadPackRequest is the client's want/have/done negotiation for
// fetch (§6).
type UploadPackRequest struct {
	Wants []objfmt.OID
	Haves []objfmt.OID
}

// Encode writes "want <oid>"* , flush, "have <oid>"*, "done", matching the
// spec's described upload-pack negotiation. With no haves, "done" follows
// the flush directly; "done" always terminates the request.
func (r *UploadPackRequest) Encode(w io.Writer) error {
	for _, want := range r.Wants {
		if err := pktline.WriteLine(w, "want "+want.String()); err != nil {
			return err
		}
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}
	for _, have := range r.Haves {
		if err := pktline.WriteLine(w, "have "+have.String()); err != nil {
			return err
		}
	}
	return pktline.WriteLine(w, "done")
}

// DecodeUploadPackRequest parses the packet payloads of a want/have/done
// negotiation (flush packets included as nil entries, matching
// pktline.Scanner.ReadPacket's convention, so callers scanning live can
// feed payloads as they arrive).
func DecodeUploadPackRequest(lines [][]byte) (*UploadPackRequest, error) {
	r := &UploadPackRequest{}
	for _, raw := range lines {
		line := strings.TrimSpace(string(raw))
		switch {
		case raw == nil:
			// flush packet
		case line == "done":
			trace.Wire.Printf("packp: upload-pack request, %d wants %d haves", len(r.Wants), len(r.Haves))
			return r, nil
		case strings.HasPrefix(line, "want "):
			oid, err := objfmt.ParseOID(strings.Fields(line)[1])
			if err != nil {
				return nil, err
			}
			r.Wants = append(r.Wants, oid)
		case strings.HasPrefix(line, "have "):
			oid, err := objfmt.ParseOID(strings.Fields(line)[1])
			if err != nil {
				return nil, err
			}
			r.Haves = append(r.Haves, oid)
		default:
			return nil, fmt.Errorf("packp: unexpected upload-pack request line %q", line)
		}
	}
	return r, nil
}

// Negotiation is the server's NAK/ACK response preceding the pack stream.
type Negotiation struct {
	// ACKOID is set when the server found a common commit; the zero OID
	// plus NAK means no common history was found yet.
	ACKOID objfmt.OID
	ACK    bool
}

func (n Negotiation) String() string {
	if n.ACK {
		return "ACK " + n.ACKOID.String()
	}
	return "NAK"
}

// ZeroUpdate is the 40-zero-byte OID string meaning "ref does not exist",
// used on both sides of a receive-pack update line.
const ZeroUpdate = "0000000000000000000000000000000000000000"

// RefUpdate is one "<old> <new> <ref>" line of a receive-pack (push)
// request (§6). Old/New use the all-zero OID to mean "absent".
type RefUpdate struct {
	Old, New objfmt.OID
	Name     string
}

// ReceivePackRequest is the client's push update list.
type ReceivePackRequest struct {
	Updates []RefUpdate
	Caps    *Capabilities
}

// Encode writes each update line (the first capability-tagged), then a
// flush.
func (r *ReceivePackRequest) Encode(w io.Writer) error {
	for i, u := range r.Updates {
		oldStr, newStr := u.Old.String(), u.New.String()
		if u.Old.IsZero() {
			oldStr = ZeroUpdate
		}
		if u.New.IsZero() {
			newStr = ZeroUpdate
		}
		line := fmt.Sprintf("%s %s %s", oldStr, newStr, u.Name)
		if i == 0 && r.Caps != nil {
			line += "\x00" + r.Caps.String()
		}
		if err := pktline.WriteLine(w, line); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

// DecodeReceivePackRequest parses the update lines of a push request.
func DecodeReceivePackRequest(lines [][]byte) (*ReceivePackRequest, error) {
	r := &ReceivePackRequest{Caps: NewCapabilities()}
	for i, raw := range lines {
		line := string(raw)
		if i == 0 {
			if nul := strings.IndexByte(line, 0); nul >= 0 {
				r.Caps = ParseCapabilities(strings.TrimRight(line[nul+1:], "\n"))
				line = line[:nul]
			}
		}
		line = strings.TrimRight(line, "\n")
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("packp: malformed ref update line %q", line)
		}
		old, err := parseMaybeZero(fields[0])
		if err != nil {
			return nil, err
		}
		nw, err := parseMaybeZero(fields[1])
		if err != nil {
			return nil, err
		}
		r.Updates = append(r.Updates, RefUpdate{Old: old, New: nw, Name: fields[2]})
	}
	trace.Wire.Printf("packp: receive-pack request, %d ref updates", len(r.Updates))
	return r, nil
}

func parseMaybeZero(s string) (objfmt.OID, error) {
	if s == ZeroUpdate {
		return objfmt.ZeroOID, nil
	}
	return objfmt.ParseOID(s)
}

// ReportStatus is the server's reply to a push: "unpack ok" or
// "unpack <error>", followed by one "ok <ref>" or "ng <ref> <reason>" per
// update line.
type ReportStatus struct {
	UnpackError string // empty means "unpack ok"
	RefStatus   map[string]string // ref -> "" (ok) or failure reason
	// RefOrder preserves the order refs were reported in, since RefStatus
	// is a map.
	RefOrder []string
}

// Encode writes the status report as a sequence of pktlines plus flush.
func (r *ReportStatus) Encode(w io.Writer) error {
	unpack := "unpack ok"
	if r.UnpackError != "" {
		unpack = "unpack " + r.UnpackError
	}
	if err := pktline.WriteLine(w, unpack); err != nil {
		return err
	}
	for _, ref := range r.RefOrder {
		reason := r.RefStatus[ref]
		line := "ok " + ref
		if reason != "" {
			line = fmt.Sprintf("ng %s %s", ref, reason)
		}
		if err := pktline.WriteLine(w, line); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

// DecodeReportStatus parses a push status report.
func DecodeReportStatus(lines [][]byte) (*ReportStatus, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("packp: empty report-status message")
	}
	r := &ReportStatus{RefStatus: make(map[string]string)}
	first := strings.TrimRight(string(lines[0]), "\n")
	if !strings.HasPrefix(first, "unpack ") {
		return nil, fmt.Errorf("packp: expected unpack status, got %q", first)
	}
	if status := strings.TrimPrefix(first, "unpack "); status != "ok" {
		r.UnpackError = status
	}
	for _, raw := range lines[1:] {
		line := strings.TrimRight(string(raw), "\n")
		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "ok":
			if len(fields) < 2 {
				return nil, fmt.Errorf("packp: malformed ok line %q", line)
			}
			r.RefStatus[fields[1]] = ""
			r.RefOrder = append(r.RefOrder, fields[1])
		case "ng":
			if len(fields) < 3 {
				return nil, fmt.Errorf("packp: malformed ng line %q", line)
			}
			r.RefStatus[fields[1]] = fields[2]
			r.RefOrder = append(r.RefOrder, fields[1])
		default:
			return nil, fmt.Errorf("packp: unexpected report-status line %q", line)
		}
	}
	trace.Wire.Printf("packp: report-status, unpack error %q, %d ref results", r.UnpackError, len(r.RefOrder))
	return r, nil
}
