package sim

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// endpoint is the register state of one endpoint direction.
type endpoint struct {
	ctl  uint32
	intr uint32
	tsiz uint32
	dma  uint32

	nak     bool
	toggles int // SETD0PID writes
}

func (ep *endpoint) armed() bool { return ep.ctl&ctlEPEna != 0 }

// Core models the DWC2 device-mode registers the controller driver uses,
// the PHY power block and the isolation bit. Interrupt status registers
// are write-one-to-clear; reset and flush bits clear themselves.
type Core struct {
	cfg  Config
	mem  *Memory
	plat *Platform

	regs map[uint32]uint32
	in   [16]endpoint
	out  [16]endpoint

	phy  [3]uint32
	isol uint32

	speed     uint32 // DSTS enumerated speed code
	resets    int
	rxFlushes int
	txFlushes map[uint32]int
}

func newCore(cfg Config, mem *Memory, plat *Platform) *Core {
	c := &Core{
		cfg:       cfg,
		mem:       mem,
		plat:      plat,
		regs:      make(map[uint32]uint32),
		txFlushes: make(map[uint32]int),
	}
	c.phy[phyPWR/4] = phyPowerOff
	c.clearEndpoints()
	return c
}

func (c *Core) clearEndpoints() {
	for i := range c.in {
		c.in[i] = endpoint{nak: true}
		c.out[i] = endpoint{nak: true}
	}
}

// Resets returns the number of core soft resets.
func (c *Core) Resets() int { return c.resets }

// TxFlushes returns the number of flushes of TX FIFO num; num 16 counts
// flushes of all FIFOs.
func (c *Core) TxFlushes(num uint32) int { return c.txFlushes[num] }

// RxFlushes returns the number of RX FIFO flushes.
func (c *Core) RxFlushes() int { return c.rxFlushes }

// Register returns the raw value of the core register at offset off.
func (c *Core) Register(off uint32) uint32 { return c.read(off) }

// Address returns the device address programmed in DCFG.
func (c *Core) Address() uint8 {
	return uint8((c.regs[regDCFG] & dcfgAddrMask) >> dcfgAddrShift)
}

// PHYPowered reports whether PHY0 is out of power down and isolation.
func (c *Core) PHYPowered() bool {
	return c.phy[phyPWR/4]&phyPowerOff == 0 && c.isol&isolDevice != 0
}

// Connected reports whether the device presents itself on the bus.
func (c *Core) Connected() bool {
	return c.PHYPowered() &&
		c.regs[regGUSBCFG]&usbForceDevMode != 0 &&
		c.regs[regDCTL]&dctlSftDiscon == 0
}

// Stalled reports whether endpoint num is stalled in direction in.
func (c *Core) Stalled(num uint8, in bool) bool {
	return c.ep(num, in).ctl&ctlStall != 0
}

// Active reports whether endpoint num is activated in direction in.
func (c *Core) Active(num uint8, in bool) bool {
	return c.ep(num, in).ctl&ctlUSBAct != 0
}

// ToggleResets returns the number of data toggle resets on an endpoint.
func (c *Core) ToggleResets(num uint8, in bool) int {
	return c.ep(num, in).toggles
}

func (c *Core) ep(num uint8, in bool) *endpoint {
	if in {
		return &c.in[num&0xF]
	}
	return &c.out[num&0xF]
}

// epFor decodes an endpoint register offset into its endpoint and field.
func (c *Core) epFor(off uint32) (*endpoint, uint32, bool) {
	if off < regDIEPBase || off >= regEPEnd {
		return nil, 0, false
	}
	field := off % regEPStride
	if off < regDOEPBase {
		return &c.in[(off-regDIEPBase)/regEPStride], field, true
	}
	return &c.out[(off-regDOEPBase)/regEPStride], field, true
}

func (c *Core) read(off uint32) uint32 {
	if ep, field, ok := c.epFor(off); ok {
		switch field {
		case regEPCTL:
			if ep.nak {
				return ep.ctl | ctlNAKSts
			}
			return ep.ctl
		case regEPINT:
			return ep.intr
		case regEPTSIZ:
			return ep.tsiz
		case regEPDMA:
			return ep.dma
		}
		return 0
	}

	switch off {
	case regGRSTCTL:
		return c.regs[off] | rstAHBIdle
	case regGINTSTS:
		return c.gintsts()
	case regDAINT:
		return c.daint()
	case regDSTS:
		return c.speed << dstsSpdShift
	}
	return c.regs[off]
}

func (c *Core) write(off, value uint32) {
	defer c.update()

	if ep, field, ok := c.epFor(off); ok {
		switch field {
		case regEPCTL:
			ep.writeCtl(value)
		case regEPINT:
			ep.intr &^= value
		case regEPTSIZ:
			ep.tsiz = value
		case regEPDMA:
			ep.dma = value
		}
		return
	}

	switch off {
	case regGRSTCTL:
		if value&rstCSftRst != 0 {
			c.softReset()
		}
		if value&rstRxFFlsh != 0 {
			c.rxFlushes++
		}
		if value&rstTxFFlsh != 0 {
			c.txFlushes[(value&rstTxFNum)>>6]++
		}
		c.regs[off] = value &^ (rstCSftRst | rstRxFFlsh | rstTxFFlsh)
	case regGINTSTS:
		c.regs[off] &^= value
	case regDAINT, regDSTS:
	default:
		c.regs[off] = value
	}
}

func (ep *endpoint) writeCtl(value uint32) {
	if value&ctlSNAK != 0 {
		ep.nak = true
	}
	if value&ctlCNAK != 0 {
		ep.nak = false
	}
	if value&ctlSetD0PID != 0 {
		ep.toggles++
	}
	v := value &^ (ctlWriteOne | ctlNAKSts)
	if value&ctlEPDis != 0 {
		v &^= ctlEPEna
	}
	ep.ctl = v
}

func (c *Core) softReset() {
	usbcfg := c.regs[regGUSBCFG]
	clear(c.regs)
	c.regs[regGUSBCFG] = usbcfg
	c.clearEndpoints()
	c.resets++
	pkg.LogDebug(pkg.ComponentSim, "core soft reset")
}

func (c *Core) daint() uint32 {
	var v uint32
	inMask, outMask := c.regs[regDIEPMSK], c.regs[regDOEPMSK]
	for n := range c.in {
		if c.in[n].intr&inMask != 0 {
			v |= 1 << n
		}
		if c.out[n].intr&outMask != 0 {
			v |= 1 << (16 + n)
		}
	}
	return v
}

func (c *Core) gintsts() uint32 {
	v := c.regs[regGINTSTS]
	d := c.daint() & c.regs[regDAINTMSK]
	if d&0xFFFF != 0 {
		v |= intIEPInt
	}
	if d>>16 != 0 {
		v |= intOEPInt
	}
	return v
}

// update drives the interrupt line from the unmasked core status.
func (c *Core) update() {
	level := c.regs[regGAHBCFG]&ahbGlblIntrEn != 0 &&
		c.gintsts()&c.regs[regGINTMSK] != 0
	c.plat.setLine(c.cfg.IRQ, level)
}

func (c *Core) readPHY(off uint32) uint32 { return c.phy[(off/4)%3] }

func (c *Core) writePHY(off, value uint32) { c.phy[(off/4)%3] = value }

// maxPacket returns the programmed max packet size of an endpoint.
func (c *Core) maxPacket(num uint8, in bool) uint32 {
	ep := c.ep(num, in)
	if num == 0 {
		return 64 >> (ep.ctl & ctlEP0MPS)
	}
	return ep.ctl & ctlMPS
}

func (c *Core) xferMask(num uint8) uint32 {
	if num == 0 {
		return tsiz0XferMask
	}
	return tsizXferMask
}

// busReset signals a USB reset followed by enumeration at speed.
func (c *Core) busReset(speed hal.Speed) error {
	if !c.Connected() {
		return pkg.ErrNoDevice
	}
	for i := range c.in {
		c.in[i].ctl &^= ctlEPEna
		c.out[i].ctl &^= ctlEPEna
	}
	c.regs[regGINTSTS] |= intUSBRst
	c.update()

	c.speed = 0
	if speed != hal.SpeedHigh {
		c.speed = 1
	}
	c.regs[regGINTSTS] |= intEnumDone
	c.update()
	return nil
}

// setup delivers an 8-byte SETUP packet to endpoint 0.
func (c *Core) setup(pkt []byte) error {
	if !c.Connected() {
		return pkg.ErrNoDevice
	}
	ep := &c.out[0]
	buf, err := c.mem.resolve(ep.dma, uint32(len(pkt)))
	if err != nil {
		return fmt.Errorf("%w: setup buffer: %w", pkg.ErrNoDevice, err)
	}
	copy(buf, pkt)

	ep.ctl &^= ctlEPEna | ctlStall
	c.in[0].ctl &^= ctlStall | ctlEPEna
	xfer := ep.tsiz & tsiz0XferMask
	xfer -= min(xfer, uint32(len(pkt)))
	ep.tsiz = ep.tsiz&^tsiz0XferMask | xfer
	ep.intr |= epSetup
	c.update()
	return nil
}

// outPacket delivers one OUT data packet to endpoint num.
func (c *Core) outPacket(num uint8, data []byte) error {
	if !c.Connected() {
		return pkg.ErrNoDevice
	}
	ep := &c.out[num]
	switch {
	case ep.ctl&ctlStall != 0:
		return pkg.ErrStall
	case !ep.armed() || ep.nak:
		return pkg.ErrNAK
	}

	mask := c.xferMask(num)
	xfer := ep.tsiz & mask
	pkts := (ep.tsiz >> tsizPktShift) & tsizPktMask
	n := uint32(len(data))
	if n > xfer {
		return fmt.Errorf("%w: %d byte packet overflows %d byte transfer on ep%d",
			pkg.ErrProtocol, n, xfer, num)
	}
	if n > 0 {
		buf, err := c.mem.resolve(ep.dma, n)
		if err != nil {
			return fmt.Errorf("%w: ep%d OUT DMA: %w", pkg.ErrProtocol, num, err)
		}
		copy(buf, data)
	}

	ep.dma += n
	xfer -= n
	if pkts > 0 {
		pkts--
	}
	ep.tsiz = ep.tsiz&^(mask|tsizPktMask<<tsizPktShift) | pkts<<tsizPktShift | xfer
	if n < c.maxPacket(num, false) || xfer == 0 || pkts == 0 {
		ep.ctl &^= ctlEPEna
		ep.intr |= epXferCompl
		c.update()
	}
	return nil
}

// inPacket collects one IN data packet from endpoint num.
func (c *Core) inPacket(num uint8) ([]byte, error) {
	if !c.Connected() {
		return nil, pkg.ErrNoDevice
	}
	ep := &c.in[num]
	switch {
	case ep.ctl&ctlStall != 0:
		return nil, pkg.ErrStall
	case !ep.armed() || ep.nak:
		return nil, pkg.ErrNAK
	}

	mask := c.xferMask(num)
	xfer := ep.tsiz & mask
	pkts := (ep.tsiz >> tsizPktShift) & tsizPktMask
	n := min(xfer, c.maxPacket(num, true))

	pkt := make([]byte, n)
	if n > 0 {
		buf, err := c.mem.resolve(ep.dma, n)
		if err != nil {
			return nil, fmt.Errorf("%w: ep%d IN DMA: %w", pkg.ErrProtocol, num, err)
		}
		copy(pkt, buf)
	}

	ep.dma += n
	xfer -= n
	if pkts > 0 {
		pkts--
	}
	ep.tsiz = ep.tsiz&^(mask|tsizPktMask<<tsizPktShift) | pkts<<tsizPktShift | xfer
	if xfer == 0 || pkts == 0 {
		ep.ctl &^= ctlEPEna
		ep.intr |= epXferCompl
		c.update()
	}
	return pkt, nil
}
