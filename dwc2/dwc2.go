package dwc2

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Controller drives a DWC2 OTG core in device mode with internal DMA.
type Controller struct {
	bus  hal.Bus
	plat hal.Platform
	mem  hal.Memory
	cfg  Config
	ev   udc.Events

	// ep0buf receives every SETUP packet and bounces EP0 OUT data.
	ep0buf  [udc.EP0MaxPacketHigh]byte
	ep0Addr uint32
	ep0Dst  []byte

	inLen    [udc.NumEndpoints]uint32 // bytes armed per IN endpoint
	outLen   [udc.NumEndpoints]uint32 // bytes armed per OUT endpoint
	attached bool
}

var _ udc.Transport = (*Controller)(nil)

// New creates a controller for the core described by cfg. A zero SpinLimit
// is replaced with the default.
func New(bus hal.Bus, plat hal.Platform, mem hal.Memory, cfg Config) *Controller {
	if cfg.SpinLimit <= 0 {
		cfg.SpinLimit = DefaultConfig().SpinLimit
	}
	return &Controller{
		bus:  bus,
		plat: plat,
		mem:  mem,
		cfg:  cfg,
	}
}

// Config returns the controller configuration.
func (c *Controller) Config() Config { return c.cfg }

// Attached reports whether the controller is powered and servicing
// interrupts.
func (c *Controller) Attached() bool { return c.attached }

func (c *Controller) read(off uint32) uint32 {
	return c.bus.Read32(c.cfg.CoreBase + off)
}

func (c *Controller) write(off, value uint32) {
	c.bus.Write32(c.cfg.CoreBase+off, value)
}

func (c *Controller) modify(off, clear, set uint32) {
	c.write(off, c.read(off)&^clear|set)
}

// waitClear spins until every bit in mask reads zero.
func (c *Controller) waitClear(off, mask uint32) error {
	for i := 0; i < c.cfg.SpinLimit; i++ {
		if c.read(off)&mask == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: register 0x%03x mask 0x%08x still set", pkg.ErrTimeout, off, mask)
}

// waitSet spins until every bit in mask reads one.
func (c *Controller) waitSet(off, mask uint32) error {
	for i := 0; i < c.cfg.SpinLimit; i++ {
		if c.read(off)&mask == mask {
			return nil
		}
	}
	return fmt.Errorf("%w: register 0x%03x mask 0x%08x still clear", pkg.ErrTimeout, off, mask)
}

// Bind implements [udc.Transport].
func (c *Controller) Bind(ev udc.Events) { c.ev = ev }

// Attach implements [udc.Transport].
func (c *Controller) Attach() error {
	if c.ev == nil {
		return pkg.ErrNotBound
	}
	addr, err := c.mem.Address(c.ep0buf[:])
	if err != nil {
		return fmt.Errorf("map control buffer: %w", err)
	}
	c.ep0Addr = addr

	c.phyOn()
	if err := c.reconfig(); err != nil {
		c.phyOff()
		return err
	}
	c.plat.SetInterruptHandler(c.cfg.IRQ, c.handleIRQ)
	c.plat.EnableInterrupt(c.cfg.IRQ)
	c.attached = true

	pkg.LogInfo(pkg.ComponentDWC2, "attached",
		"core", fmt.Sprintf("0x%08x", c.cfg.CoreBase),
		"irq", c.cfg.IRQ)
	return nil
}

// Detach implements [udc.Transport].
func (c *Controller) Detach() {
	if !c.attached {
		return
	}
	c.plat.DisableInterrupt(c.cfg.IRQ)
	c.SetAddress(0)
	c.phyOff()
	c.attached = false
	c.ep0Dst = nil
	c.outLen = [udc.NumEndpoints]uint32{}

	pkg.LogInfo(pkg.ComponentDWC2, "detached")
}

// reconfig soft-resets the core and programs it for device mode: interrupt
// masks, NAK on every endpoint, the FIFO partition and DMA.
func (c *Controller) reconfig() error {
	c.modify(offsetGRSTCTL, 0, grstctlCSftRst)
	if err := c.waitClear(offsetGRSTCTL, grstctlCSftRst); err != nil {
		return fmt.Errorf("core reset: %w", err)
	}
	c.plat.DelayMicroseconds(1000)
	if err := c.waitSet(offsetGRSTCTL, grstctlAHBIdle); err != nil {
		return fmt.Errorf("core reset: %w", err)
	}

	c.modify(offsetDCTL, 0, dctlSftDiscon)
	c.modify(offsetGUSBCFG, gusbcfgForceHostMode, gusbcfgForceDevMode)
	c.plat.DelayMicroseconds(25000)
	c.modify(offsetDCTL, dctlSftDiscon, 0)

	c.modify(offsetGINTMSK, 0, gintOEPInt|gintIEPInt|gintEnumDone|gintUSBRst)

	for n := uint8(0); n < udc.NumEndpoints; n++ {
		c.write(doepctl(n), depctlEPDis|depctlSNAK)
		c.write(diepctl(n), depctlEPDis|depctlSNAK)
	}

	c.write(offsetDAINTMSK, 1<<daintOutShift|1)
	c.write(offsetDOEPMSK, depintSetup|depintXferCompl)
	c.write(offsetDIEPMSK, depintXferCompl)

	f := c.cfg.FIFO
	c.write(offsetGRXFSIZ, f.RxDepth)
	c.write(offsetGNPTXFSIZ, f.NPTxDepth<<16|f.RxDepth)
	start := f.RxDepth + f.NPTxDepth
	for n := uint8(1); n <= f.TxCount; n++ {
		c.write(dptxfsiz(n), f.TxDepth<<16|start)
		start += f.TxDepth
	}

	c.write(offsetGRSTCTL, grstctlRxFFlsh)
	if err := c.waitClear(offsetGRSTCTL, grstctlRxFFlsh); err != nil {
		return fmt.Errorf("flush rx fifo: %w", err)
	}
	c.write(offsetGRSTCTL, grstctlTxFNumAll)
	c.write(offsetGRSTCTL, grstctlTxFNumAll|grstctlTxFFlsh)
	if err := c.waitClear(offsetGRSTCTL, grstctlTxFFlsh); err != nil {
		return fmt.Errorf("flush tx fifos: %w", err)
	}

	c.write(doepctl(0), depctlEPDis|depctlCNAK)

	c.write(offsetGAHBCFG, gahbcfgPTxFEmpLvl|gahbcfgNPTxFEmpLvl|
		gahbcfgDMAEn|gahbcfgHBstLenIncr|gahbcfgGlblIntrEn)

	pkg.LogDebug(pkg.ComponentDWC2, "core configured",
		"rxDepth", f.RxDepth,
		"txFIFOs", f.TxCount)
	return nil
}

// SetAddress implements [udc.Transport].
func (c *Controller) SetAddress(addr uint8) {
	c.modify(offsetDCFG, dcfgDevAddrMask, uint32(addr)<<dcfgDevAddrShift&dcfgDevAddrMask)
}

// SetEP0MaxPacket implements [udc.Transport].
func (c *Controller) SetEP0MaxPacket(mps uint16) {
	var enc uint32
	switch mps {
	case 64:
		enc = depctlEP0MPS64
	case 32:
		enc = depctlEP0MPS32
	case 16:
		enc = depctlEP0MPS16
	case 8:
		enc = depctlEP0MPS8
	default:
		pkg.LogWarn(pkg.ComponentDWC2, "unsupported ep0 max packet", "mps", mps)
		return
	}
	c.modify(diepctl(0), depctlEP0MPSMask, enc)
	c.modify(doepctl(0), depctlEP0MPSMask, enc)
}

// ActivateEndpoint implements [udc.Transport].
func (c *Controller) ActivateEndpoint(ep *udc.Endpoint) {
	num := ep.Number()
	ctl, bit := doepctl(num), uint32(1)<<(daintOutShift+uint32(num))
	if ep.IsIn() {
		ctl, bit = diepctl(num), uint32(1)<<num
	}

	v := c.read(ctl)
	if v&depctlUSBActEP == 0 {
		v &^= depctlEPTypeMask | depctlMPSMask
		v |= uint32(ep.TransferType()) << depctlEPTypeShift
		v |= uint32(ep.MaxPacket()) & depctlMPSMask
		v |= depctlSetD0PID | depctlUSBActEP | depctlSNAK
		if ep.IsIn() {
			v = v&^depctlTxFNumMask | uint32(num)<<depctlTxFNumShift
		}
		c.write(ctl, v)
	}
	c.modify(offsetDAINTMSK, 0, bit)
}

// DeactivateEndpoint implements [udc.Transport].
func (c *Controller) DeactivateEndpoint(ep *udc.Endpoint) {
	num := ep.Number()
	ctl, bit := doepctl(num), uint32(1)<<(daintOutShift+uint32(num))
	if ep.IsIn() {
		ctl, bit = diepctl(num), uint32(1)<<num
	}

	v := c.read(ctl)
	if v&depctlEPEna != 0 {
		v |= depctlEPDis
	}
	v &^= depctlUSBActEP | depctlEPEna
	c.write(ctl, v|depctlSNAK)
	c.modify(offsetDAINTMSK, bit, 0)

	if !ep.IsIn() {
		c.outLen[num] = 0
	}
}

func (c *Controller) ctl(ep *udc.Endpoint) uint32 {
	if ep.IsIn() {
		return diepctl(ep.Number())
	}
	return doepctl(ep.Number())
}

// SetNAK implements [udc.Transport].
func (c *Controller) SetNAK(ep *udc.Endpoint) {
	c.modify(c.ctl(ep), 0, depctlSNAK)
}

// SetStall implements [udc.Transport].
func (c *Controller) SetStall(ep *udc.Endpoint) {
	off := c.ctl(ep)
	v := c.read(off)
	if ep.IsIn() && v&depctlEPEna != 0 {
		v |= depctlEPDis
	}
	c.write(off, v|depctlStall)
}

// ClearStall implements [udc.Transport].
func (c *Controller) ClearStall(ep *udc.Endpoint) {
	c.modify(c.ctl(ep), depctlStall, depctlSetD0PID)
}

func packets(n, mps uint32) uint32 {
	if n == 0 || mps == 0 {
		return 1
	}
	return (n-1)/mps + 1
}

func (c *Controller) dmaAddress(buf []byte) (uint32, bool) {
	if len(buf) == 0 {
		return c.ep0Addr, true
	}
	addr, err := c.mem.Address(buf)
	if err != nil {
		pkg.LogError(pkg.ComponentDWC2, "buffer not DMA-capable", "error", err)
		return 0, false
	}
	return addr, true
}

// StartIn implements [udc.Transport].
func (c *Controller) StartIn(ep *udc.Endpoint, buf []byte) {
	num := ep.Number()
	addr, ok := c.dmaAddress(buf)
	if !ok {
		return
	}

	c.write(offsetGRSTCTL, uint32(num)<<grstctlTxFNumShift|grstctlTxFFlsh)
	if err := c.waitClear(offsetGRSTCTL, grstctlTxFFlsh); err != nil {
		pkg.LogWarn(pkg.ComponentDWC2, "tx fifo flush", "endpoint", num, "error", err)
	}

	n := uint32(len(buf))
	pkts := packets(n, uint32(ep.MaxPacket()))
	if n > deptsizXferSizeMask || pkts > deptsizPktCntMask>>deptsizPktCntShift {
		pkg.LogError(pkg.ComponentDWC2, "IN transfer exceeds DIEPTSIZ", "endpoint", num, "bytes", n)
		return
	}
	c.inLen[num] = n
	c.write(diepdma(num), addr)
	c.write(dieptsiz(num), pkts<<deptsizPktCntShift|n)

	v := c.read(diepctl(num))
	v &^= depctlTxFNumMask | depctlNextEPMask
	v |= uint32(num) << depctlTxFNumShift
	c.write(diepctl(num), v|depctlEPEna|depctlCNAK)
}

// StartOut implements [udc.Transport]. Endpoint 0 data lands in the
// control bounce buffer and is copied out on completion.
func (c *Controller) StartOut(ep *udc.Endpoint, buf []byte) {
	num := ep.Number()
	n := uint32(len(buf))

	var addr uint32
	pkts := packets(n, uint32(ep.MaxPacket()))
	if num == 0 {
		if n > uint32(len(c.ep0buf)) {
			pkg.LogError(pkg.ComponentDWC2, "ep0 OUT larger than a packet", "bytes", n)
			return
		}
		c.ep0Dst = buf
		addr, pkts = c.ep0Addr, 1
	} else {
		var ok bool
		if addr, ok = c.dmaAddress(buf); !ok {
			return
		}
	}

	c.outLen[num] = n
	c.write(doepdma(num), addr)
	c.write(doeptsiz(num), pkts<<deptsizPktCntShift|n)
	c.modify(doepctl(num), 0, depctlEPEna|depctlCNAK)
}

func (c *Controller) armEP0Out(setup bool) {
	c.ep0Dst = nil
	c.outLen[0] = 8
	c.write(doepdma(0), c.ep0Addr)
	tsiz := uint32(1)<<deptsizPktCntShift | 8
	set := uint32(depctlEPEna)
	if setup {
		tsiz |= doeptsiz0SUPCntDefault
	} else {
		set |= depctlCNAK
	}
	c.write(doeptsiz(0), tsiz)
	c.modify(doepctl(0), 0, set)
}

// ArmSetup implements [udc.Transport].
func (c *Controller) ArmSetup() { c.armEP0Out(true) }

// ArmStatusOut implements [udc.Transport].
func (c *Controller) ArmStatusOut() { c.armEP0Out(false) }

// SendZLP implements [udc.Transport].
func (c *Controller) SendZLP() {
	c.inLen[0] = 0
	c.write(diepdma(0), c.ep0Addr)
	c.write(dieptsiz(0), 1<<deptsizPktCntShift)
	c.modify(diepctl(0), 0, depctlEPEna|depctlCNAK)
}

// StallEP0 implements [udc.Transport]. The core clears the stall itself
// when the next SETUP arrives.
func (c *Controller) StallEP0() {
	v := c.read(diepctl(0))
	if v&depctlEPEna != 0 {
		v |= depctlEPDis
	}
	c.write(diepctl(0), v|depctlStall)
	c.modify(doepctl(0), 0, depctlStall)
}

// handleIRQ demultiplexes the core interrupt: enumeration, reset, then IN
// and OUT endpoint completions in ascending endpoint order.
func (c *Controller) handleIRQ(int) {
	sts := c.read(offsetGINTSTS)

	if sts&gintEnumDone != 0 {
		c.write(offsetGINTSTS, gintEnumDone)
		c.ev.EnumDone(c.enumSpeed())
	}

	if sts&gintUSBRst != 0 {
		c.write(offsetGINTSTS, gintUSBRst)
		c.ev.BusReset()
	}

	if sts&gintIEPInt != 0 {
		bits := c.read(offsetDAINT) & daintInMask
		for num := uint8(0); bits != 0; num, bits = num+1, bits>>1 {
			if bits&1 == 0 {
				continue
			}
			st := c.read(diepint(num))
			c.write(diepint(num), st)
			c.inInterrupt(num, st)
		}
	}

	if sts&gintOEPInt != 0 {
		bits := c.read(offsetDAINT) >> daintOutShift
		for num := uint8(0); bits != 0; num, bits = num+1, bits>>1 {
			if bits&1 == 0 {
				continue
			}
			st := c.read(doepint(num))
			c.write(doepint(num), st)
			c.outInterrupt(num, st)
		}
	}
}

func (c *Controller) enumSpeed() hal.Speed {
	switch (c.read(offsetDSTS) & dstsEnumSpdMask) >> dstsEnumSpdShift {
	case dstsEnumSpdHigh:
		return hal.SpeedHigh
	case dstsEnumSpdFull, dstsEnumSpdFull4:
		return hal.SpeedFull
	default:
		pkg.LogWarn(pkg.ComponentDWC2, "low speed enumeration treated as full speed")
		return hal.SpeedFull
	}
}

func (c *Controller) inInterrupt(num uint8, st uint32) {
	if st&depintAHBErr != 0 {
		pkg.LogError(pkg.ComponentDWC2, "AHB error", "endpoint", num, "dir", "in")
	}
	if st&depintXferCompl != 0 {
		c.ev.InComplete(num, c.sent(num))
	}
}

func (c *Controller) outInterrupt(num uint8, st uint32) {
	if st&depintAHBErr != 0 {
		pkg.LogError(pkg.ComponentDWC2, "AHB error", "endpoint", num, "dir", "out")
	}

	// A SETUP phase may also flag XferCompl on endpoint 0; the SETUP wins.
	if st&depintXferCompl != 0 && !(num == 0 && st&depintSetup != 0) {
		c.ev.OutComplete(num, c.received(num))
	}

	if num == 0 && st&depintSetup != 0 {
		c.ep0Dst = nil
		var pkt [8]byte
		copy(pkt[:], c.ep0buf[:8])
		c.ev.SetupReceived(pkt[:])
	}
}

// transferred returns armed less the XferSize residue left in the
// transfer size register at off.
func (c *Controller) transferred(num uint8, off, armed uint32) int {
	mask := uint32(deptsizXferSizeMask)
	if num == 0 {
		mask = deptsiz0XferSizeMask
	}
	residue := c.read(off) & mask
	if residue > armed {
		return 0
	}
	return int(armed - residue)
}

// sent returns the bytes transferred by the IN transfer armed on num.
func (c *Controller) sent(num uint8) int {
	n := c.transferred(num, dieptsiz(num), c.inLen[num])
	c.inLen[num] = 0
	return n
}

// received returns the bytes transferred by the OUT transfer armed on num.
func (c *Controller) received(num uint8) int {
	n := c.transferred(num, doeptsiz(num), c.outLen[num])
	c.outLen[num] = 0

	if num == 0 && c.ep0Dst != nil {
		n = copy(c.ep0Dst, c.ep0buf[:n])
		c.ep0Dst = nil
	}
	return n
}
