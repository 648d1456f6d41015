package loader

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// Session reassembles one image from the chunks received on the bulk OUT
// endpoint and writes its payload to the load address.
type Session struct {
	mem hal.Memory

	first bool
	hdr   Header
	dst   []byte // payload destination, len == PayloadLength
	off   int
}

// NewSession returns a session writing into mem, waiting for a header.
func NewSession(mem hal.Memory) *Session {
	s := &Session{mem: mem}
	s.Reset()
	return s
}

// Reset discards any partial image; the next chunk must carry a header.
func (s *Session) Reset() {
	s.first = true
	s.hdr = Header{}
	s.dst = nil
	s.off = 0
}

// Started reports whether a header has been accepted.
func (s *Session) Started() bool { return !s.first }

// Header returns the accepted header.
func (s *Session) Header() Header { return s.hdr }

// Written returns the number of payload bytes stored so far.
func (s *Session) Written() int { return s.off }

// Feed consumes one received chunk and reports whether the image is
// complete. The first chunk must hold the whole header; the bytes after it
// are the start of the payload. A rejected first chunk is discarded and the
// session keeps waiting for a header. Bytes beyond the declared length are
// dropped.
func (s *Session) Feed(chunk []byte) (bool, error) {
	if s.first {
		var h Header
		if err := ParseHeader(chunk, &h); err != nil {
			return false, err
		}
		dst, err := s.mem.Slice(h.Addr, h.PayloadLength())
		if err != nil {
			return false, fmt.Errorf("load 0x%08x+%d: %w", h.Addr, h.PayloadLength(), err)
		}
		s.first = false
		s.hdr = h
		s.dst = dst
		s.off = 0
		chunk = chunk[HeaderSize:]

		pkg.LogDebug(pkg.ComponentLoader, "header",
			"addr", h.Addr,
			"length", h.Length)
	}

	n := copy(s.dst[s.off:], chunk)
	s.off += n
	if n < len(chunk) {
		pkg.LogDebug(pkg.ComponentLoader, "excess data dropped", "bytes", len(chunk)-n)
	}
	return s.off == len(s.dst), nil
}
