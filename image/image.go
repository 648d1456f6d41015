package image

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"

	"github.com/ardnew/softudc/gadget/diag"
	"github.com/ardnew/softudc/gadget/loader"
	"github.com/ardnew/softudc/pkg"
)

// Pad fills the gaps between Intel HEX segments.
const Pad = 0xFF

// Image is a contiguous block of bytes destined for one load address.
type Image struct {
	Addr uint32
	Data []byte
}

// LoadBinary reads a raw image to be loaded at addr.
func LoadBinary(r io.Reader, addr uint32) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read binary: %w", err)
	}
	img := &Image{Addr: addr, Data: data}
	if err := img.validate(); err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentImage, "binary loaded", "addr", addr, "bytes", len(data))
	return img, nil
}

// LoadHex reads an Intel HEX image. The image starts at the lowest segment
// address; gaps between segments are filled with [Pad].
func LoadHex(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse intel hex: %w", err)
	}
	segs := mem.GetDataSegments()
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: intel hex has no data", pkg.ErrInvalidArgument)
	}

	lo, hi := uint64(math.MaxUint32), uint64(0)
	for _, s := range segs {
		lo = min(lo, uint64(s.Address))
		hi = max(hi, uint64(s.Address)+uint64(len(s.Data)))
	}
	img := &Image{
		Addr: uint32(lo),
		Data: mem.ToBinary(uint32(lo), uint32(hi-lo), Pad),
	}
	if err := img.validate(); err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentImage, "intel hex loaded",
		"addr", img.Addr,
		"bytes", len(img.Data),
		"segments", len(segs))
	return img, nil
}

// Load reads the file at path: Intel HEX for .hex and .ihex files, which
// carry their own address, raw binary at addr otherwise.
func Load(path string, addr uint32) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		return LoadHex(f)
	default:
		return LoadBinary(f, addr)
	}
}

func (img *Image) validate() error {
	if uint64(len(img.Data))+loader.HeaderSize > math.MaxUint32 {
		return fmt.Errorf("%w: %d byte image", pkg.ErrBadHeader, len(img.Data))
	}
	if uint64(img.Addr)+uint64(len(img.Data)) > 1<<32 {
		return fmt.Errorf("%w: image at 0x%08x wraps the address space", pkg.ErrAddress, img.Addr)
	}
	return nil
}

// Header returns the loader header describing the image.
func (img *Image) Header() loader.Header {
	return loader.Header{
		Addr:   img.Addr,
		Length: uint32(loader.HeaderSize + len(img.Data)),
	}
}

// Frame returns the image as the loader expects it on the wire: the header
// followed by the payload.
func (img *Image) Frame() []byte {
	h := img.Header()
	b := make([]byte, loader.HeaderSize, h.Length)
	h.MarshalTo(b)
	return append(b, img.Data...)
}

// Checksum returns the additive 32-bit sum of the payload, as computed by
// the diagnostic checksum command.
func (img *Image) Checksum() uint32 { return diag.Checksum(img.Data) }

// CRC16 returns the CRC-16/CCITT-FALSE of the payload, as computed by the
// diagnostic crc command.
func (img *Image) CRC16() uint16 { return diag.CRC16(img.Data) }

// WriteHex writes the image as Intel HEX with 16-byte records.
func (img *Image) WriteHex(w io.Writer) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(img.Addr, img.Data); err != nil {
		return fmt.Errorf("intel hex: %w", err)
	}
	return mem.DumpIntelHex(w, 16)
}
