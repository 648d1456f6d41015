package loader

import (
	"encoding/binary"

	"github.com/ardnew/softudc/gadget"
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Product is the product string of the loader gadget.
const Product = "Nanoboot DNW"

// Bulk endpoint addresses.
const (
	EndpointIn  = 0x81
	EndpointOut = 0x02
)

// Vendor requests, device recipient, 4-byte little-endian data stage.
const (
	RequestGetExecAddr = 0x00
	RequestSetExecAddr = 0x01
)

// Config sizes the loader.
type Config struct {
	// ChunkSize is the receive request size. It is rounded up to a
	// multiple of the high-speed bulk max packet.
	ChunkSize int
}

// DefaultConfig returns a 16 KiB chunk.
func DefaultConfig() Config {
	return Config{ChunkSize: 16 << 10}
}

// Gadget receives one image on EP2 OUT, writes it to its load address
// and jumps to it.
type Gadget struct {
	cfg    Config
	fn     *gadget.Function
	stream *Stream
	plat   hal.Platform

	exec    [4]byte
	execSet bool
}

var _ udc.Gadget = (*Gadget)(nil)

// New creates a loader writing into mem and handing off through plat.
func New(mem hal.Memory, plat hal.Platform, cfg Config) *Gadget {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if r := cfg.ChunkSize % udc.BulkMaxPacketHigh; r != 0 {
		cfg.ChunkSize += udc.BulkMaxPacketHigh - r
	}

	g := &Gadget{
		cfg:    cfg,
		fn:     gadget.NewFunction(gadget.NewProfile(Product, EndpointIn, EndpointOut)),
		stream: NewStream(EndpointOut&0x0F, mem, cfg.ChunkSize),
		plat:   plat,
	}
	g.fn.Configured = g.configured
	g.stream.Done = g.done
	return g
}

// Config returns the effective configuration.
func (g *Gadget) Config() Config { return g.cfg }

// Function returns the standard request handler.
func (g *Gadget) Function() *gadget.Function { return g.fn }

// Session returns the image reassembly state.
func (g *Gadget) Session() *Session { return g.stream.Session() }

// ExecAddr returns the address set with SET_EXECADDR, or zero.
func (g *Gadget) ExecAddr() uint32 { return binary.LittleEndian.Uint32(g.exec[:]) }

// Bind implements [udc.Gadget].
func (g *Gadget) Bind(u *udc.UDC) error {
	g.fn.Reset()
	g.exec = [4]byte{}
	g.execSet = false
	g.stream.Bind(u)
	return nil
}

// Unbind implements [udc.Gadget].
func (g *Gadget) Unbind(u *udc.UDC) {
	g.stream.Unbind(u)
}

// Setup implements [udc.Gadget].
func (g *Gadget) Setup(u *udc.UDC, s *udc.SetupPacket) error {
	if s.IsVendor() {
		if !s.IsDeviceRecipient() || s.Length != uint16(len(g.exec)) {
			return pkg.ErrInvalidArgument
		}
		switch {
		case s.Request == RequestGetExecAddr && s.IsDeviceToHost():
			return u.Reply(g.exec[:])
		case s.Request == RequestSetExecAddr && s.IsHostToDevice():
			return u.Receive(g.exec[:], func(_ *udc.Endpoint, req *udc.Request) {
				g.execSet = req.Status == pkg.StatusSuccess && req.Actual == len(g.exec)
				pkg.LogDebug(pkg.ComponentLoader, "exec address", "addr", g.ExecAddr(), "set", g.execSet)
			})
		}
		return pkg.ErrInvalidArgument
	}
	return g.fn.Setup(u, s)
}

func (g *Gadget) configured(u *udc.UDC) {
	if err := g.stream.Start(u); err != nil {
		pkg.LogError(pkg.ComponentLoader, "arm receive", "error", err)
	}
}

func (g *Gadget) done(u *udc.UDC, h Header) {
	addr := h.Addr
	if g.execSet && g.ExecAddr() != 0 {
		addr = g.ExecAddr()
	}
	gadget.Handoff(u, g.plat, addr)
}
