// Package pktline implements the wire protocol's packet framing (§6): each
// packet is a 4-hex-digit length prefix (the total length including those
// 4 bytes) followed by payload, terminated by "\n" within the payload; the
// length "0000" is a flush packet. No socket or process dialing lives
// here — only the message framing, per spec.md §1's scoping of the
// transport glue out of this core.
package pktline

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/harpreetsinghsandhu021/tide-version-control/trace"
)

// MaxLength is the largest payload a single packet may carry (65516 bytes
// of payload plus the 4-byte length prefix, Git's historical pkt-line
// cap).
const MaxLength = 65516

// Flush is the zero-length "0000" packet marking a message boundary.
var Flush = []byte(nil)

// ErrInvalidLength is returned when a length header isn't 4 valid hex
// digits, or declares a packet shorter than the header itself.
var ErrInvalidLength = errors.New("pktline: invalid length header")

// ErrTooLong is returned when a caller tries to write a payload larger
// than MaxLength.
var ErrTooLong = errors.New("pktline: payload exceeds maximum packet length")

// WriteFlush writes the flush packet "0000".
func WriteFlush(w io.Writer) error {
	_, err := w.Write([]byte("0000"))
	return err
}

// WritePacket writes one length-prefixed packet. An empty (zero-length,
// but non-nil) payload is a valid, distinct packet from flush.
func WritePacket(w io.Writer, payload []byte) error {
	if len(payload) > MaxLength {
		return ErrTooLong
	}
	total := len(payload) + 4
	if _, err := fmt.Fprintf(w, "%04x", total); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteLine writes payload with a trailing "\n" appended if not already
// present, matching Git's convention that most non-flush packets are
// newline-terminated text lines.
func WriteLine(w io.Writer, line string) error {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}
	return WritePacket(w, []byte(line))
}

// Scanner reads a stream of pkt-line packets; ReadPacket surfaces a flush
// packet as a nil payload with a nil error.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps r for packet-at-a-time reads.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, MaxLength+4)}
}

// ReadPacket reads the next packet. A flush packet returns (nil, nil). EOF
// with no bytes read returns io.EOF.
func (s *Scanner) ReadPacket() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n, err := parseLength(lenBuf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // flush
	}
	if n < 4 {
		return nil, fmt.Errorf("%w: declared length %d shorter than header", ErrInvalidLength, n)
	}
	payload := make([]byte, n-4)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseLength(b [4]byte) (int, error) {
	n := 0
	for _, c := range b {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'a' && c <= 'f':
			n |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= int(c-'A') + 10
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidLength, b)
		}
	}
	return n, nil
}

// ReadAll drains every packet up to and including the next flush,
// returning the non-flush payloads in order.
func (s *Scanner) ReadAll() ([][]byte, error) {
	var out [][]byte
	for {
		p, err := s.ReadPacket()
		if err != nil {
			return out, err
		}
		if p == nil {
			trace.Wire.Printf("pktline: read %d packets to flush", len(out))
			return out, nil
		}
		out = append(out, p)
	}
}
