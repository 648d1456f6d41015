package udc

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// Control endpoint max packet sizes per speed.
const (
	EP0MaxPacketHigh = 64
	EP0MaxPacketFull = 8
)

// Largest data endpoint max packet size the controller accepts per speed.
const (
	MaxPacketHigh = 1024
	MaxPacketFull = 64
)

// Bulk endpoint max packet sizes per speed.
const (
	BulkMaxPacketHigh = 512
	BulkMaxPacketFull = 64
)

// EP0MaxPacket returns the control endpoint max packet size used at speed.
func EP0MaxPacket(speed hal.Speed) uint16 {
	if speed == hal.SpeedFull {
		return EP0MaxPacketFull
	}
	return EP0MaxPacketHigh
}

// BulkMaxPacket returns the bulk endpoint max packet size used at speed.
func BulkMaxPacket(speed hal.Speed) uint16 {
	if speed == hal.SpeedFull {
		return BulkMaxPacketFull
	}
	return BulkMaxPacketHigh
}

// Gadget is a device-side protocol handler attached with RegisterGadget.
type Gadget interface {
	// Bind allocates the gadget's session state. Called on registration and
	// again after every bus reset.
	Bind(u *UDC) error

	// Unbind releases the session state.
	Unbind(u *UDC)

	// Setup handles a control request the core does not answer itself.
	// Returning nil after queueing on endpoint 0 (see Reply and Receive)
	// accepts the request; returning nil without queueing accepts a request
	// with no data stage. An error stalls endpoint 0.
	Setup(u *UDC, setup *SetupPacket) error
}

// UDC is the device controller context: the endpoint array, the negotiated
// speed, the control transfer state and the active gadget. One instance is
// created per controller and passed to every gadget callback.
type UDC struct {
	hw   Transport
	plat hal.Platform
	pool *requestPool

	ep      [NumEndpoints]Endpoint
	gadget  Gadget
	speed   hal.Speed
	address uint8

	state       EP0State
	setup       SetupPacket
	zlp         bool // the IN data stage owes a terminating ZLP
	status      [2]byte
	haltCleared int // endpoint to restart after the status stage, or -1
}

var _ Events = (*UDC)(nil)

// New creates a controller context driving hw.
func New(hw Transport, plat hal.Platform) *UDC {
	u := &UDC{
		hw:          hw,
		plat:        plat,
		pool:        newRequestPool(),
		haltCleared: -1,
	}
	for i := range u.ep {
		ep := &u.ep[i]
		ep.udc = u
		ep.num = uint8(i)
		ep.address = uint8(i)
	}
	u.reinit()
	hw.Bind(u)
	return u
}

// Speed returns the negotiated bus speed.
func (u *UDC) Speed() hal.Speed { return u.speed }

// Address returns the device address assigned by the host.
func (u *UDC) Address() uint8 { return u.address }

// State returns the control endpoint state.
func (u *UDC) State() EP0State { return u.state }

// Gadget returns the active gadget, or nil.
func (u *UDC) Gadget() Gadget { return u.gadget }

// Endpoint returns endpoint num, or nil if num is out of range.
func (u *UDC) Endpoint(num uint8) *Endpoint {
	if int(num) >= NumEndpoints {
		return nil
	}
	return &u.ep[num]
}

// RegisterGadget replaces the active gadget. The current gadget, if any, is
// torn down first: queued requests complete with [pkg.StatusShutdown], the
// gadget is unbound and the controller is detached. A non-nil g is then
// bound and the controller attached. RegisterGadget(nil) only detaches.
func (u *UDC) RegisterGadget(g Gadget) error {
	defer u.mask()()

	if old := u.gadget; old != nil {
		u.speed = hal.SpeedUnknown
		u.stopActivity()
		old.Unbind(u)
		u.gadget = nil
		u.hw.Detach()
		u.address = 0
		pkg.LogInfo(pkg.ComponentUDC, "gadget unregistered")
	}
	if g == nil {
		return nil
	}

	u.gadget = g
	if err := g.Bind(u); err != nil {
		u.gadget = nil
		return fmt.Errorf("bind gadget: %w", err)
	}
	if err := u.hw.Attach(); err != nil {
		g.Unbind(u)
		u.gadget = nil
		return fmt.Errorf("attach controller: %w", err)
	}
	pkg.LogInfo(pkg.ComponentUDC, "gadget registered")
	return nil
}

// stopActivity flushes every endpoint. The negotiated speed survives: a
// reset and its enumeration may be reported by one interrupt, enumeration
// first.
func (u *UDC) stopActivity() {
	for i := NumEndpoints - 1; i >= 0; i-- {
		u.nuke(&u.ep[i], pkg.StatusShutdown)
	}
	u.reinit()
}

// reinit returns every endpoint and the control state to power-on values.
func (u *UDC) reinit() {
	for i := range u.ep {
		ep := &u.ep[i]
		ep.desc = nil
		ep.halted = false
		ep.stopped = i != 0
		ep.armed = false
		ep.discard = false
		ep.inflight = 0
		if i != 0 {
			ep.address = uint8(i)
			ep.attrs = 0
		}
	}
	u.setMaxPacket(u.speed)
	u.state = WaitForSetup
	u.zlp = false
	u.haltCleared = -1
}

func (u *UDC) setMaxPacket(speed hal.Speed) {
	limit := uint16(MaxPacketHigh)
	if speed == hal.SpeedFull {
		limit = MaxPacketFull
	}
	u.ep[0].maxPacket = EP0MaxPacket(speed)
	u.ep[0].limit = u.ep[0].maxPacket
	for i := 1; i < NumEndpoints; i++ {
		u.ep[i].limit = limit
	}
}

// mask disables CPU interrupts and returns a function restoring them.
func (u *UDC) mask() func() {
	prev := u.plat.SetInterruptsEnabled(false)
	return func() { u.plat.SetInterruptsEnabled(prev) }
}

// EnumDone records the negotiated speed and reprograms endpoint 0.
func (u *UDC) EnumDone(speed hal.Speed) {
	u.speed = speed
	u.setMaxPacket(speed)
	u.hw.SetEP0MaxPacket(u.ep[0].maxPacket)
	pkg.LogInfo(pkg.ComponentUDC, "enumeration done",
		"speed", speed.String(),
		"ep0MaxPacket", u.ep[0].maxPacket)
}

// BusReset discards all endpoint state and rebinds the active gadget.
func (u *UDC) BusReset() {
	pkg.LogInfo(pkg.ComponentUDC, "bus reset", "state", u.state.String())

	u.stopActivity()
	u.address = 0
	u.hw.SetAddress(0)

	if g := u.gadget; g != nil {
		g.Unbind(u)
		if err := g.Bind(u); err != nil {
			pkg.LogError(pkg.ComponentUDC, "rebind after reset failed", "error", err)
			u.gadget = nil
		}
	}
	u.hw.ArmSetup()
}

// InComplete finishes the transfer armed on IN endpoint num, of which n
// bytes were sent.
func (u *UDC) InComplete(num uint8, n int) {
	if int(num) >= NumEndpoints {
		return
	}
	if num == 0 {
		u.ep0InComplete(n)
		return
	}
	u.completeTx(&u.ep[num], n)
}

// OutComplete finishes the transfer armed on OUT endpoint num.
func (u *UDC) OutComplete(num uint8, n int) {
	if int(num) >= NumEndpoints {
		return
	}
	if num == 0 {
		u.ep0OutComplete(n)
		return
	}
	u.completeRx(&u.ep[num], n)
}

func (u *UDC) completeTx(ep *Endpoint, n int) {
	ep.armed = false
	if ep.discard {
		ep.discard = false
		u.advance(ep)
		return
	}
	req := ep.queue.front()
	if req == nil {
		pkg.LogDebug(pkg.ComponentEndpoint, "spurious IN completion", "address", ep.address)
		return
	}
	req.Actual += min(n, ep.inflight, req.Remaining())
	ep.inflight = 0

	pkg.LogDebug(pkg.ComponentEndpoint, "IN complete",
		"address", ep.address,
		"bytes", n,
		"actual", req.Actual,
		"length", req.Length)

	if req.Actual == req.Length {
		u.done(ep, req, pkg.StatusSuccess)
	}
	u.advance(ep)
}

func (u *UDC) completeRx(ep *Endpoint, n int) {
	ep.armed = false
	if ep.discard {
		ep.discard = false
		u.advance(ep)
		return
	}
	req := ep.queue.front()
	if req == nil {
		pkg.LogDebug(pkg.ComponentEndpoint, "spurious OUT completion", "address", ep.address)
		return
	}
	short := n < ep.inflight
	req.Actual += min(n, req.Remaining())
	ep.inflight = 0

	pkg.LogDebug(pkg.ComponentEndpoint, "OUT complete",
		"address", ep.address,
		"bytes", n,
		"actual", req.Actual,
		"length", req.Length)

	if short || req.Actual == req.Length {
		u.done(ep, req, pkg.StatusSuccess)
	}
	u.advance(ep)
}

// advance starts the front request if the endpoint is idle.
func (u *UDC) advance(ep *Endpoint) {
	if u.gadget == nil || !ep.Enabled() || !ep.idle() || ep.armed {
		return
	}
	req := ep.queue.front()
	if req == nil {
		return
	}
	if ep.IsIn() {
		u.startIn(ep, req)
	} else {
		u.startOut(ep, req)
	}
}

// maxTransfer returns the largest IN transfer one DIEPTSIZ programming can
// describe for the endpoint: MaxTransferPackets packets and at most
// MaxTransferSize bytes, in whole packets.
func (ep *Endpoint) maxTransfer() int {
	mps := max(int(ep.maxPacket), 1)
	return min(MaxTransferPackets*mps, MaxTransferSize/mps*mps)
}

// startIn arms as much of the remainder of req as one DMA transfer can
// carry. completeTx arms the rest.
func (u *UDC) startIn(ep *Endpoint, req *Request) {
	n := min(req.Remaining(), ep.maxTransfer())
	ep.inflight = n
	ep.armed = true
	u.hw.StartIn(ep, req.Buf[req.Actual:req.Actual+n])
}

// startOut arms at most one packet of req.
func (u *UDC) startOut(ep *Endpoint, req *Request) {
	n := min(req.Remaining(), int(ep.maxPacket))
	ep.inflight = n
	ep.armed = true
	u.hw.StartOut(ep, req.Buf[req.Actual:req.Actual+n])
}

// done removes req from its queue and delivers its completion. The endpoint
// does not start new transfers while the callback runs.
func (u *UDC) done(ep *Endpoint, req *Request, status pkg.Status) {
	if ep.queue.front() == req && ep.armed && ep.num != 0 {
		// The armed transfer belongs to req; its completion is dropped.
		ep.discard = true
	}
	if !ep.queue.remove(req) {
		return
	}
	if req.Status == pkg.StatusInProgress {
		req.Status = status
	}

	pkg.LogDebug(pkg.ComponentEndpoint, "request done",
		"address", ep.address,
		"status", req.Status.String(),
		"actual", req.Actual)

	completing := ep.completing
	ep.completing = true
	if req.Complete != nil {
		req.Complete(ep, req)
	}
	ep.completing = completing
}

// nuke completes every queued request with status. It is a no-op on an
// empty queue.
func (u *UDC) nuke(ep *Endpoint, status pkg.Status) {
	flushing := ep.flushing
	ep.flushing = true
	for req := ep.queue.front(); req != nil; req = ep.queue.front() {
		u.done(ep, req, status)
	}
	ep.flushing = flushing
	ep.inflight = 0
}
