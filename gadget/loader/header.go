package loader

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softudc/pkg"
)

// HeaderVersion is the image framing implemented by this package.
const HeaderVersion = 1

// HeaderSize is the size of the image header in bytes.
const HeaderSize = 8

// Header prefixes every image sent to the loader. Both fields are
// little-endian on the wire.
type Header struct {
	Addr   uint32 // load address of the payload
	Length uint32 // header plus payload, in bytes
}

// PayloadLength returns the number of payload bytes following the header.
func (h *Header) PayloadLength() uint32 {
	if h.Length < HeaderSize {
		return 0
	}
	return h.Length - HeaderSize
}

// MarshalTo serializes the header to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (h *Header) MarshalTo(buf []byte) int {
	if len(buf) < HeaderSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], h.Addr)
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
	return HeaderSize
}

// ParseHeader decodes the header at the start of data into out.
func ParseHeader(data []byte, out *Header) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", pkg.ErrShortHeader, len(data))
	}
	h := Header{
		Addr:   binary.LittleEndian.Uint32(data[0:4]),
		Length: binary.LittleEndian.Uint32(data[4:8]),
	}
	if h.Length < HeaderSize {
		return fmt.Errorf("%w: length %d", pkg.ErrBadHeader, h.Length)
	}
	*out = h
	return nil
}
