package diag

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ardnew/softudc/gadget"
	"github.com/ardnew/softudc/gadget/loader"
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Product is the product string of the diagnostic gadget.
const Product = "Nanoboot bootloader"

// Bulk endpoint addresses: a command pair and an image-loader pair.
const (
	EndpointCommandIn  = 0x81
	EndpointCommandOut = 0x02
	EndpointLoaderIn   = 0x83
	EndpointLoaderOut  = 0x04
)

// Phase is the state of the command pipe.
type Phase uint8

// Command pipe phases.
const (
	PhaseCommand Phase = iota // OUT requests carry command lines
	PhaseRxData               // the next OUT packet is memwrite payload
	PhaseTxData               // a reply is queued on the IN endpoint
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCommand:
		return "command"
	case PhaseRxData:
		return "rx-data"
	case PhaseTxData:
		return "tx-data"
	default:
		return "unknown"
	}
}

// Config sizes the gadget.
type Config struct {
	// BufferSize is the command buffer capacity; a line holds at most
	// BufferSize-1 bytes.
	BufferSize int

	// Loader sizes the image-loader stream.
	Loader loader.Config
}

// DefaultConfig returns a 256-byte command buffer and the default loader.
func DefaultConfig() Config {
	return Config{BufferSize: 256, Loader: loader.DefaultConfig()}
}

// Gadget serves textual memory commands on EP2 OUT / EP1 IN and streams
// images on EP4 OUT.
type Gadget struct {
	cfg    Config
	fn     *gadget.Function
	mem    hal.Memory
	plat   hal.Platform
	stream *loader.Stream

	buf   []byte
	reply [16]byte
	phase Phase
	out   *udc.Request
	in    *udc.Request
}

var _ udc.Gadget = (*Gadget)(nil)

// New creates a diagnostic gadget over mem, handing off through plat.
func New(mem hal.Memory, plat hal.Platform, cfg Config) *Gadget {
	def := DefaultConfig()
	if cfg.BufferSize < 2 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Loader.ChunkSize <= 0 {
		cfg.Loader = def.Loader
	}

	p := gadget.NewProfile(Product,
		EndpointCommandIn, EndpointCommandOut,
		EndpointLoaderIn, EndpointLoaderOut)
	g := &Gadget{
		cfg:    cfg,
		fn:     gadget.NewFunction(p),
		mem:    mem,
		plat:   plat,
		stream: loader.NewStream(EndpointLoaderOut&0x0F, mem, cfg.Loader.ChunkSize),
		buf:    make([]byte, cfg.BufferSize),
	}
	g.fn.Configured = g.configured
	g.stream.Done = func(u *udc.UDC, h loader.Header) {
		gadget.Handoff(u, g.plat, h.Addr)
	}
	return g
}

// Config returns the effective configuration.
func (g *Gadget) Config() Config { return g.cfg }

// Function returns the standard request handler.
func (g *Gadget) Function() *gadget.Function { return g.fn }

// Phase returns the command pipe phase.
func (g *Gadget) Phase() Phase { return g.phase }

// Session returns the image-loader reassembly state.
func (g *Gadget) Session() *loader.Session { return g.stream.Session() }

// Bind implements [udc.Gadget].
func (g *Gadget) Bind(u *udc.UDC) error {
	g.fn.Reset()
	g.phase = PhaseCommand
	g.out = u.Endpoint(EndpointCommandOut & 0x0F).AllocRequest()
	g.in = u.Endpoint(EndpointCommandIn & 0x0F).AllocRequest()
	g.stream.Bind(u)
	return nil
}

// Unbind implements [udc.Gadget].
func (g *Gadget) Unbind(u *udc.UDC) {
	g.stream.Unbind(u)
	u.Endpoint(EndpointCommandIn & 0x0F).FreeRequest(g.in)
	u.Endpoint(EndpointCommandOut & 0x0F).FreeRequest(g.out)
	g.in = nil
	g.out = nil
}

// Setup implements [udc.Gadget].
func (g *Gadget) Setup(u *udc.UDC, s *udc.SetupPacket) error {
	return g.fn.Setup(u, s)
}

func (g *Gadget) configured(u *udc.UDC) {
	g.phase = PhaseCommand
	if ep := u.Endpoint(EndpointCommandOut & 0x0F); ep.Pending() == 0 {
		g.out.Complete = g.received
		g.armCommand(ep)
	}
	if err := g.stream.Start(u); err != nil {
		pkg.LogError(pkg.ComponentDiag, "arm loader stream", "error", err)
	}
}

// armCommand points the OUT request back at the command buffer.
func (g *Gadget) armCommand(ep *udc.Endpoint) {
	g.out.Buf = g.buf
	g.out.Length = len(g.buf) - 1
	if err := ep.Queue(g.out); err != nil {
		pkg.LogWarn(pkg.ComponentDiag, "arm command", "error", err)
	}
}

func (g *Gadget) received(ep *udc.Endpoint, req *udc.Request) {
	if req.Status != pkg.StatusSuccess {
		return
	}

	if g.phase == PhaseRxData {
		pkg.LogDebug(pkg.ComponentDiag, "memwrite data", "bytes", req.Actual)
		g.phase = PhaseCommand
		g.armCommand(ep)
		return
	}

	line := req.Buf[:min(len(g.buf)-1, req.Actual)]
	var toks [maxTokens][]byte
	n := tokenize(line, toks[:])
	if n == 0 {
		g.armCommand(ep)
		return
	}

	redirect, err := g.command(ep, toks[:n])
	switch {
	case errors.Is(err, errHandedOff):
		return
	case err != nil:
		pkg.LogWarn(pkg.ComponentDiag, "command failed", "command", string(toks[0]), "error", err)
	}
	if redirect != nil {
		req.Buf = redirect
		req.Length = len(redirect)
		if err := ep.Queue(req); err != nil {
			pkg.LogWarn(pkg.ComponentDiag, "arm memwrite", "error", err)
		}
		return
	}
	g.armCommand(ep)
}

// errHandedOff reports that execute transferred control.
var errHandedOff = errors.New("handed off")

// command runs one tokenized command. A non-nil result is the memory the
// next OUT packet is received into.
func (g *Gadget) command(ep *udc.Endpoint, toks [][]byte) ([]byte, error) {
	u := ep.UDC()
	name := toks[0]
	switch {
	case bytes.EqualFold(name, cmdMemWrite):
		a, err := args(toks, 2)
		if err != nil {
			return nil, err
		}
		// The window ends at the packet size or the end of RAM.
		n := min(uint32(ep.MaxPacket()), g.mem.Available(a[0]))
		if n == 0 {
			return nil, fmt.Errorf("%w: memwrite 0x%08x outside RAM", pkg.ErrAddress, a[0])
		}
		dst, err := g.mem.Slice(a[0], n)
		if err != nil {
			return nil, err
		}
		g.phase = PhaseRxData
		return dst, nil

	case bytes.EqualFold(name, cmdMemRead):
		if g.in.Queued() {
			return nil, fmt.Errorf("%w: previous reply not read", pkg.ErrBusy)
		}
		a, err := args(toks, 3)
		if err != nil {
			return nil, err
		}
		src, err := g.mem.Slice(a[0], a[1])
		if err != nil {
			return nil, err
		}
		return nil, g.send(u, src)

	case bytes.EqualFold(name, cmdChecksum):
		if g.in.Queued() {
			return nil, fmt.Errorf("%w: previous reply not read", pkg.ErrBusy)
		}
		a, err := args(toks, 3)
		if err != nil {
			return nil, err
		}
		src, err := g.mem.Slice(a[0], a[1])
		if err != nil {
			return nil, err
		}
		return nil, g.send(u, fmt.Appendf(g.reply[:0], "0x%08x", Checksum(src)))

	case bytes.EqualFold(name, cmdCRC):
		if g.in.Queued() {
			return nil, fmt.Errorf("%w: previous reply not read", pkg.ErrBusy)
		}
		a, err := args(toks, 3)
		if err != nil {
			return nil, err
		}
		src, err := g.mem.Slice(a[0], a[1])
		if err != nil {
			return nil, err
		}
		return nil, g.send(u, fmt.Appendf(g.reply[:0], "0x%04x", CRC16(src)))

	case bytes.EqualFold(name, cmdExecute):
		a, err := args(toks, 2)
		if err != nil {
			return nil, err
		}
		gadget.Handoff(u, g.plat, a[0])
		return nil, errHandedOff
	}
	return nil, fmt.Errorf("%w: %q", pkg.ErrUnknownCommand, name)
}

// send queues data on the IN endpoint as the reply to the last command.
func (g *Gadget) send(u *udc.UDC, data []byte) error {
	g.in.Buf = data
	g.in.Length = len(data)
	g.in.Complete = func(_ *udc.Endpoint, req *udc.Request) {
		pkg.LogDebug(pkg.ComponentDiag, "reply sent",
			"status", req.Status.String(),
			"bytes", req.Actual)
	}
	if err := u.Endpoint(EndpointCommandIn & 0x0F).Queue(g.in); err != nil {
		return err
	}
	g.phase = PhaseTxData
	return nil
}
