package udc

import (
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// NumEndpoints is the number of hardware endpoint numbers.
const NumEndpoints = 16

// Transfer size limits of one DMA programming of a data endpoint.
const (
	MaxTransferPackets = 1023
	MaxTransferSize    = 0x7FFFF
)

// Ops is the operation set every endpoint provides to gadgets.
type Ops interface {
	Enable(desc *EndpointDescriptor) error
	Disable() error
	AllocRequest() *Request
	FreeRequest(req *Request)
	Queue(req *Request) error
	Dequeue(req *Request) error
	SetHalt(halt bool) error
}

var _ Ops = (*Endpoint)(nil)

// Endpoint is one hardware endpoint and its queue of pending requests.
// Endpoint 0 is bidirectional and driven by the control state machine.
type Endpoint struct {
	udc *UDC

	num       uint8
	address   uint8 // number and direction of the bound descriptor
	attrs     uint8
	maxPacket uint16
	limit     uint16 // largest max packet the hardware allows at this speed

	desc    *EndpointDescriptor
	stopped bool
	halted  bool

	queue      requestQueue
	completing bool // a completion callback is running
	flushing   bool // nuke in progress
	armed      bool // a DMA transfer is programmed
	discard    bool // the armed transfer's request was dequeued
	inflight   int  // bytes armed by the last DMA start
}

// UDC returns the controller the endpoint belongs to.
func (ep *Endpoint) UDC() *UDC { return ep.udc }

// Number returns the endpoint number (0-15).
func (ep *Endpoint) Number() uint8 { return ep.num }

// Address returns the endpoint address including the direction bit.
func (ep *Endpoint) Address() uint8 { return ep.address }

// IsIn returns true for an IN (device to host) endpoint.
func (ep *Endpoint) IsIn() bool { return ep.address&EndpointDirIn != 0 }

// TransferType returns the transfer type of the bound descriptor.
func (ep *Endpoint) TransferType() uint8 { return ep.attrs & 0x03 }

// MaxPacket returns the negotiated maximum packet size.
func (ep *Endpoint) MaxPacket() uint16 { return ep.maxPacket }

// Enabled reports whether a descriptor is bound. Endpoint 0 is always enabled.
func (ep *Endpoint) Enabled() bool { return ep.num == 0 || ep.desc != nil }

// Halted reports whether the endpoint is halted.
func (ep *Endpoint) Halted() bool { return ep.halted }

// Pending returns the number of queued requests.
func (ep *Endpoint) Pending() int { return ep.queue.len() }

func (ep *Endpoint) idle() bool {
	return !ep.stopped && !ep.completing
}

// Enable binds desc to the endpoint and activates it in hardware.
func (ep *Endpoint) Enable(desc *EndpointDescriptor) error {
	u := ep.udc
	if ep.num == 0 || desc == nil || desc.Number() != ep.num {
		return pkg.ErrInvalidArgument
	}
	if desc.TransferType() == EndpointTypeControl || ep.desc != nil {
		return pkg.ErrInvalidArgument
	}
	if desc.MaxPacketSize == 0 {
		return pkg.ErrInvalidArgument
	}
	if desc.MaxPacketSize > ep.limit {
		return pkg.ErrRange
	}
	if u.gadget == nil || u.speed == hal.SpeedUnknown {
		return pkg.ErrShutdown
	}

	defer u.mask()()

	d := *desc
	ep.desc = &d
	ep.address = d.EndpointAddress
	ep.attrs = d.Attributes
	ep.maxPacket = d.MaxPacketSize
	ep.stopped = false
	ep.armed = false
	ep.discard = false

	u.hw.SetNAK(ep)
	u.hw.ActivateEndpoint(ep)
	ep.clearHalt()

	pkg.LogDebug(pkg.ComponentEndpoint, "enabled",
		"address", ep.address,
		"type", ep.TransferType(),
		"maxPacket", ep.maxPacket)
	return nil
}

// Disable unbinds the descriptor and completes every queued request with
// [pkg.StatusShutdown].
func (ep *Endpoint) Disable() error {
	u := ep.udc
	if ep.num == 0 || ep.desc == nil {
		return pkg.ErrInvalidArgument
	}

	defer u.mask()()

	ep.desc = nil
	ep.stopped = true
	u.nuke(ep, pkg.StatusShutdown)
	u.hw.DeactivateEndpoint(ep)
	ep.armed = false
	ep.discard = false

	pkg.LogDebug(pkg.ComponentEndpoint, "disabled", "address", ep.address)
	return nil
}

// AllocRequest returns a zeroed request from the controller's pool.
func (ep *Endpoint) AllocRequest() *Request {
	return ep.udc.pool.get()
}

// FreeRequest returns req to the pool. Queued requests are not released.
func (ep *Endpoint) FreeRequest(req *Request) {
	if req == nil {
		return
	}
	if req.Queued() {
		pkg.LogWarn(pkg.ComponentEndpoint, "free of queued request ignored", "address", ep.address)
		return
	}
	ep.udc.pool.put(req)
}

// Queue submits req. If the endpoint was idle the transfer starts at once;
// otherwise it starts when the requests ahead of it complete.
func (ep *Endpoint) Queue(req *Request) error {
	u := ep.udc
	if req == nil || req.Length < 0 || req.Length > len(req.Buf) || req.Queued() {
		return pkg.ErrInvalidArgument
	}
	if !ep.Enabled() {
		return pkg.ErrInvalidArgument
	}
	if u.gadget == nil || u.speed == hal.SpeedUnknown || ep.flushing {
		return pkg.ErrShutdown
	}

	defer u.mask()()

	req.Status = pkg.StatusInProgress
	req.Actual = 0

	start := ep.queue.empty() && ep.idle() && (ep.num == 0 || !ep.armed)
	ep.queue.append(ep, req)

	pkg.LogDebug(pkg.ComponentEndpoint, "queue",
		"address", ep.address,
		"length", req.Length,
		"start", start)

	if start {
		switch {
		case ep.num == 0:
			u.ep0Kick(req)
		case ep.IsIn():
			u.startIn(ep, req)
		default:
			u.startOut(ep, req)
		}
	}
	return nil
}

// Dequeue removes req from the queue and completes it with
// [pkg.StatusConnReset]. Endpoint 0 requests cannot be dequeued.
func (ep *Endpoint) Dequeue(req *Request) error {
	u := ep.udc
	if ep.num == 0 || req == nil || req.ep != ep {
		return pkg.ErrInvalidArgument
	}

	defer u.mask()()

	u.done(ep, req, pkg.StatusConnReset)
	return nil
}

// SetHalt sets or clears the endpoint halt feature. Halting an IN endpoint
// with queued requests fails with [pkg.ErrBusy].
func (ep *Endpoint) SetHalt(halt bool) error {
	u := ep.udc
	if ep.num == 0 || ep.desc == nil || ep.TransferType() == EndpointTypeIsochronous {
		return pkg.ErrInvalidArgument
	}

	defer u.mask()()

	if halt {
		if ep.IsIn() && !ep.queue.empty() {
			return pkg.ErrBusy
		}
		ep.setHalt()
		return nil
	}
	ep.clearHalt()
	u.advance(ep)
	return nil
}

func (ep *Endpoint) setHalt() {
	ep.halted = true
	ep.stopped = true
	ep.udc.hw.SetStall(ep)
	if ep.IsIn() {
		ep.armed = false
		ep.discard = false
	}
	pkg.LogDebug(pkg.ComponentEndpoint, "halt set", "address", ep.address)
}

func (ep *Endpoint) clearHalt() {
	ep.halted = false
	ep.stopped = false
	ep.udc.hw.ClearStall(ep)
}
