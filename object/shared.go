// Functionality shared between Commit and Tag objects: the author/
// committer/tagger signature line format, and the line-oriented header
// scanner both parsers use.
package object

import (
	"bytes"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/embervcs/odb/dberr"
)

// Signature records who made a commit or tag, and when.
type Signature struct {
	Name  string
	Email string
	// Seconds is a Unix timestamp (seconds since the epoch, UTC).
	Seconds int64
	// TZOffsetMinutes is the signed offset, in minutes, of the
	// timezone the signature was made in, e.g. -420 for "-0700".
	TZOffsetMinutes int
}

// String renders the signature in the canonical
// "Name <email> seconds ±HHMM" form used in commit/tag headers.
func (s Signature) String() string {
	sign := '+'
	off := s.TZOffsetMinutes
	if off < 0 {
		sign = '-'
		off = -off
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d", s.Name, s.Email, s.Seconds, sign, off/60, off%60)
}

// parseSignature parses the "Name <email> seconds ±HHMM" form. It is
// deliberately permissive about the name (anything up to the last
// "<" on the line, trimmed of one trailing space), matching real Git
// signatures, which allow almost any byte in the name field.
func parseSignature(line []byte) (Signature, error) {
	var s Signature
	lt := bytes.LastIndexByte(line, '<')
	gt := bytes.LastIndexByte(line, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return s, dberr.New(dberr.Corruption, "object.parseSignature", xerrors.Errorf("missing <email> in %q", line))
	}
	s.Name = string(bytes.TrimSuffix(line[:lt], []byte(" ")))
	s.Email = string(line[lt+1 : gt])
	rest := bytes.TrimSpace(line[gt+1:])
	var seconds int64
	var tzSign byte
	var tzH, tzM int
	n, err := fmt.Sscanf(string(rest), "%d %c%02d%02d", &seconds, &tzSign, &tzH, &tzM)
	if err != nil || n != 4 {
		return s, dberr.New(dberr.Corruption, "object.parseSignature", xerrors.Errorf("malformed date/tz %q", rest))
	}
	s.Seconds = seconds
	s.TZOffsetMinutes = tzH*60 + tzM
	if tzSign == '-' {
		s.TZOffsetMinutes = -s.TZOffsetMinutes
	} else if tzSign != '+' {
		return s, dberr.New(dberr.Corruption, "object.parseSignature", xerrors.Errorf("malformed tz sign %q", rest))
	}
	return s, nil
}

// headerScanner walks the header-block-then-message shape Commit and
// Tag payloads share: a run of "key value\n" lines terminated by a
// blank line, followed by the raw message to EOF. It tracks its
// position in the original byte slice directly rather than through a
// bufio.Scanner, so that message() can hand back the exact remaining
// bytes without any risk of the scanner having read ahead.
type headerScanner struct {
	data []byte
	pos  int
}

func newHeaderScanner(data []byte) *headerScanner {
	return &headerScanner{data: data}
}

// next returns the key and rest-of-line for the next header line, or
// ok=false once the blank line separating headers from the message is
// reached (the blank line itself is consumed). After ok is false,
// message returns everything remaining.
func (h *headerScanner) next() (key string, rest []byte, ok bool) {
	nl := bytes.IndexByte(h.data[h.pos:], '\n')
	if nl < 0 {
		return "", nil, false
	}
	line := h.data[h.pos : h.pos+nl]
	h.pos += nl + 1
	if len(line) == 0 {
		return "", nil, false
	}
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return string(line), nil, true
	}
	return string(line[:sp]), line[sp+1:], true
}

// message returns every byte after the header block.
func (h *headerScanner) message() []byte {
	return h.data[h.pos:]
}
