package sim

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/marcinbor85/gohex"

	"github.com/ardnew/softudc/pkg"
)

// handleBase is the first bus address handed out for buffers that live
// outside the simulated RAM. It sits above any RAM window the simulator
// accepts.
const handleBase = 0xF0000000

// region maps a Go buffer to a synthetic bus address.
type region struct {
	start uintptr
	addr  uint32
	buf   []byte
}

func (r *region) contains(p uintptr, n int) bool {
	return p >= r.start && p+uintptr(n) <= r.start+uintptr(len(r.buf))
}

// Memory is the simulated physical address space: a RAM window plus a
// registry of Go buffers the controller has programmed for DMA.
type Memory struct {
	base uint32
	ram  []byte

	regions []region
	next    uint32
}

// NewMemory allocates size bytes of RAM mapped at base.
func NewMemory(base, size uint32) (*Memory, error) {
	if size == 0 || uint64(base)+uint64(size) > handleBase {
		return nil, fmt.Errorf("%w: RAM window 0x%08x+0x%x", pkg.ErrInvalidArgument, base, size)
	}
	return &Memory{
		base: base,
		ram:  make([]byte, size),
		next: handleBase,
	}, nil
}

// Base returns the RAM base address.
func (m *Memory) Base() uint32 { return m.base }

// Size returns the RAM size in bytes.
func (m *Memory) Size() uint32 { return uint32(len(m.ram)) }

// Slice implements [hal.Memory]. The returned slice aliases RAM.
func (m *Memory) Slice(addr, n uint32) ([]byte, error) {
	if addr < m.base || uint64(addr-m.base)+uint64(n) > uint64(len(m.ram)) {
		return nil, fmt.Errorf("%w: 0x%08x+0x%x outside RAM", pkg.ErrAddress, addr, n)
	}
	off := addr - m.base
	return m.ram[off : off+n : off+n], nil
}

// Available implements [hal.Memory].
func (m *Memory) Available(addr uint32) uint32 {
	if addr < m.base || addr-m.base >= uint32(len(m.ram)) {
		return 0
	}
	return uint32(len(m.ram)) - (addr - m.base)
}

// Address implements [hal.Memory]. RAM views map to their physical
// address; any other buffer is registered and given a synthetic address
// that stays valid for the life of the Memory.
func (m *Memory) Address(buf []byte) (uint32, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty DMA buffer", pkg.ErrInvalidArgument)
	}
	p := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	ram := uintptr(unsafe.Pointer(unsafe.SliceData(m.ram)))
	if p >= ram && p+uintptr(len(buf)) <= ram+uintptr(len(m.ram)) {
		return m.base + uint32(p-ram), nil
	}

	for i := range m.regions {
		r := &m.regions[i]
		if r.contains(p, len(buf)) {
			return r.addr + uint32(p-r.start), nil
		}
	}

	full := buf[:cap(buf)]
	r := region{start: p, addr: m.next, buf: full}
	m.regions = append(m.regions, r)
	m.next += (uint32(len(full)) + 3) &^ 3
	return r.addr, nil
}

// resolve returns the n bytes at bus address addr for DMA.
func (m *Memory) resolve(addr, n uint32) ([]byte, error) {
	if addr >= m.base && uint64(addr-m.base)+uint64(n) <= uint64(len(m.ram)) {
		return m.Slice(addr, n)
	}
	for i := range m.regions {
		r := &m.regions[i]
		if addr >= r.addr && uint64(addr-r.addr)+uint64(n) <= uint64(len(r.buf)) {
			off := addr - r.addr
			return r.buf[off : off+n], nil
		}
	}
	return nil, fmt.Errorf("%w: DMA 0x%08x+0x%x unmapped", pkg.ErrAddress, addr, n)
}

// Read32 reads a little-endian word of RAM. Unmapped reads return zero.
func (m *Memory) Read32(addr uint32) uint32 {
	b, err := m.Slice(addr, 4)
	if err != nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Write32 writes a little-endian word of RAM. Unmapped writes are dropped.
func (m *Memory) Write32(addr, value uint32) {
	b, err := m.Slice(addr, 4)
	if err != nil {
		return
	}
	b[0], b[1], b[2], b[3] = byte(value), byte(value>>8), byte(value>>16), byte(value>>24)
}

// DumpHex writes n bytes of RAM at addr to w as Intel HEX.
func (m *Memory) DumpHex(w io.Writer, addr, n uint32) error {
	data, err := m.Slice(addr, n)
	if err != nil {
		return err
	}
	hex := gohex.NewMemory()
	if err := hex.AddBinary(addr, data); err != nil {
		return fmt.Errorf("dump 0x%08x: %w", addr, err)
	}
	return hex.DumpIntelHex(w, 16)
}
