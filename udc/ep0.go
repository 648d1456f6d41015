package udc

import (
	"encoding/binary"

	"github.com/ardnew/softudc/pkg"
)

// EP0State is the control endpoint transfer state.
type EP0State uint8

// Control endpoint states.
const (
	WaitForSetup        EP0State = iota // Idle, expecting a SETUP packet
	DataStateXmit                       // IN data stage in progress
	DataStateRecv                       // OUT data stage in progress
	WaitForComplete                     // Last IN data packet armed
	WaitForOutComplete                  // OUT status stage armed
	WaitForInComplete                   // IN status stage (ZLP) armed
	WaitForNullComplete                 // Core-generated GET_STATUS reply armed
)

// String returns the state name.
func (s EP0State) String() string {
	switch s {
	case WaitForSetup:
		return "wait-for-setup"
	case DataStateXmit:
		return "data-xmit"
	case DataStateRecv:
		return "data-recv"
	case WaitForComplete:
		return "wait-for-complete"
	case WaitForOutComplete:
		return "wait-for-out-complete"
	case WaitForInComplete:
		return "wait-for-in-complete"
	case WaitForNullComplete:
		return "wait-for-null-complete"
	default:
		return "unknown"
	}
}

// Device status bits returned by GET_STATUS.
const (
	StatusSelfPowered = 0x0001
	StatusHalt        = 0x0001
)

// CurrentSetup returns the SETUP packet of the current control transfer.
func (u *UDC) CurrentSetup() SetupPacket { return u.setup }

// Reply queues data as the IN data stage of the current control transfer,
// truncated to the host's wLength. data must stay valid until the transfer
// completes.
func (u *UDC) Reply(data []byte) error {
	ep := &u.ep[0]
	req := ep.AllocRequest()
	req.Buf = data
	req.Length = min(len(data), int(u.setup.Length))
	req.Complete = func(ep *Endpoint, r *Request) { ep.FreeRequest(r) }
	if err := ep.Queue(req); err != nil {
		ep.FreeRequest(req)
		return err
	}
	return nil
}

// Receive queues buf for the OUT data stage of the current control transfer,
// truncated to the host's wLength. fn runs once the status stage completes.
func (u *UDC) Receive(buf []byte, fn CompleteFunc) error {
	ep := &u.ep[0]
	req := ep.AllocRequest()
	req.Buf = buf
	req.Length = min(len(buf), int(u.setup.Length))
	req.Complete = func(ep *Endpoint, r *Request) {
		if fn != nil {
			fn(ep, r)
		}
		ep.FreeRequest(r)
	}
	if err := ep.Queue(req); err != nil {
		ep.FreeRequest(req)
		return err
	}
	return nil
}

// SetupReceived starts a new control transfer. A SETUP packet always aborts
// the transfer in progress; its requests complete with [pkg.StatusProtocol].
func (u *UDC) SetupReceived(data []byte) {
	ep := &u.ep[0]

	var s SetupPacket
	if err := ParseSetupPacket(data, &s); err != nil {
		pkg.LogWarn(pkg.ComponentEP0, "malformed setup", "error", err)
		u.stallEP0()
		return
	}
	if u.state != WaitForSetup {
		pkg.LogDebug(pkg.ComponentEP0, "setup aborts control transfer", "state", u.state.String())
	}

	u.nuke(ep, pkg.StatusProtocol)
	u.state = WaitForSetup
	u.zlp = false
	u.setup = s
	ep.address = s.Direction()

	pkg.LogDebug(pkg.ComponentEP0, "setup", "packet", s.String())

	if handled, err := u.standard(&s); handled {
		if err != nil {
			pkg.LogDebug(pkg.ComponentEP0, "standard request rejected", "request", s.Request, "error", err)
			u.stallEP0()
		}
		return
	}

	if u.gadget == nil {
		u.stallEP0()
		return
	}
	if err := u.gadget.Setup(u, &s); err != nil {
		pkg.LogDebug(pkg.ComponentEP0, "gadget rejected setup", "request", s.Request, "error", err)
		u.stallEP0()
		return
	}
	if u.state == WaitForSetup && ep.queue.empty() {
		if s.Length != 0 {
			pkg.LogWarn(pkg.ComponentEP0, "gadget accepted setup without data stage", "request", s.Request)
			u.stallEP0()
			return
		}
		u.ep0Status()
	}
}

// ep0Kick starts the data stage for the request just queued on endpoint 0.
func (u *UDC) ep0Kick(req *Request) {
	if u.setup.IsDeviceToHost() {
		mps := int(u.ep[0].maxPacket)
		u.zlp = req.Length > 0 && req.Length < int(u.setup.Length) && req.Length%mps == 0
		u.ep0Write(req)
		return
	}
	u.state = DataStateRecv
	u.ep0Read(req)
}

// ep0Write arms the next IN data packet of req.
func (u *UDC) ep0Write(req *Request) {
	ep := &u.ep[0]
	mps := int(ep.maxPacket)
	n := min(req.Remaining(), mps)
	ep.inflight = n
	u.hw.StartIn(ep, req.Buf[req.Actual:req.Actual+n])

	last := n != mps || req.Actual+n == req.Length
	switch {
	case !last:
		u.state = DataStateXmit
	case u.zlp:
		u.zlp = false
		u.state = DataStateXmit
	default:
		u.state = WaitForComplete
	}
}

// ep0Read arms the next OUT data packet of req, or the status stage if
// there is nothing to receive.
func (u *UDC) ep0Read(req *Request) {
	if req.Remaining() == 0 {
		u.ep0Status()
		return
	}
	u.startOut(&u.ep[0], req)
}

// ep0Status sends the IN status stage.
func (u *UDC) ep0Status() {
	u.ep[0].inflight = 0
	u.state = WaitForInComplete
	u.hw.SendZLP()
}

func (u *UDC) stallEP0() {
	u.nuke(&u.ep[0], pkg.StatusProtocol)
	u.hw.StallEP0()
	u.state = WaitForSetup
	u.hw.ArmSetup()
}

func (u *UDC) ep0InComplete(n int) {
	ep := &u.ep[0]
	req := ep.queue.front()
	sent := min(n, ep.inflight)
	ep.inflight = 0

	switch u.state {
	case WaitForNullComplete:
		u.state = WaitForOutComplete
		u.hw.ArmStatusOut()
	case DataStateXmit:
		if req == nil {
			u.stallEP0()
			return
		}
		req.Actual += min(sent, req.Remaining())
		u.ep0Write(req)
	case WaitForComplete:
		if req != nil {
			req.Actual += min(sent, req.Remaining())
			u.done(ep, req, pkg.StatusSuccess)
		}
		u.state = WaitForOutComplete
		u.hw.ArmStatusOut()
	case WaitForInComplete:
		u.state = WaitForSetup
		if req != nil {
			u.done(ep, req, pkg.StatusSuccess)
		}
	default:
		pkg.LogDebug(pkg.ComponentEP0, "spurious IN completion", "state", u.state.String())
	}

	if u.state == WaitForSetup {
		u.hw.ArmSetup()
		if n := u.haltCleared; n > 0 {
			u.haltCleared = -1
			u.advance(&u.ep[n])
		}
	}
}

func (u *UDC) ep0OutComplete(n int) {
	ep := &u.ep[0]
	switch u.state {
	case DataStateRecv:
		req := ep.queue.front()
		if req == nil {
			u.stallEP0()
			return
		}
		short := n < ep.inflight
		req.Actual += min(n, req.Remaining())
		ep.inflight = 0
		if short || req.Remaining() == 0 {
			u.ep0Status()
			return
		}
		u.startOut(ep, req)
	case WaitForOutComplete:
		u.state = WaitForSetup
		u.hw.ArmSetup()
	case WaitForSetup:
		u.hw.ArmSetup()
	default:
		pkg.LogDebug(pkg.ComponentEP0, "spurious OUT completion", "state", u.state.String())
	}
}

// standard answers the requests the core owns. It reports whether s was
// handled; a non-nil error stalls endpoint 0.
func (u *UDC) standard(s *SetupPacket) (bool, error) {
	if !s.IsStandard() {
		return false, nil
	}
	switch s.Request {
	case RequestSetAddress:
		if s.RequestType != RequestDirectionHostToDevice|RequestTypeStandard|RequestRecipientDevice {
			return false, nil
		}
		return true, u.setAddress(s)
	case RequestGetStatus:
		return true, u.getStatus(s)
	case RequestClearFeature:
		return true, u.feature(s, false)
	case RequestSetFeature:
		return true, u.feature(s, true)
	}
	return false, nil
}

func (u *UDC) setAddress(s *SetupPacket) error {
	if s.Value > 127 || s.Length != 0 {
		return pkg.ErrInvalidArgument
	}
	u.address = uint8(s.Value)
	u.hw.SetAddress(u.address)
	pkg.LogDebug(pkg.ComponentEP0, "address assigned", "address", u.address)
	u.ep0Status()
	return nil
}

func (u *UDC) getStatus(s *SetupPacket) error {
	if !s.IsDeviceToHost() || s.Length > 2 {
		return pkg.ErrInvalidArgument
	}
	var v uint16
	switch s.Recipient() {
	case RequestRecipientDevice:
		v = StatusSelfPowered
	case RequestRecipientInterface:
	case RequestRecipientEndpoint:
		ep := &u.ep[s.EndpointNumber()]
		if !ep.Enabled() {
			return pkg.ErrInvalidArgument
		}
		if ep.halted {
			v = StatusHalt
		}
	default:
		return pkg.ErrInvalidArgument
	}

	ep := &u.ep[0]
	binary.LittleEndian.PutUint16(u.status[:], v)
	n := min(len(u.status), int(s.Length))
	ep.inflight = n
	u.state = WaitForNullComplete
	u.hw.StartIn(ep, u.status[:n])
	return nil
}

// feature handles CLEAR_FEATURE and SET_FEATURE.
func (u *UDC) feature(s *SetupPacket, set bool) error {
	if s.Length != 0 {
		return pkg.ErrInvalidArgument
	}
	switch s.Recipient() {
	case RequestRecipientDevice:
		// Remote wakeup and test mode are acknowledged without effect.
		u.ep0Status()
		return nil
	case RequestRecipientEndpoint:
	default:
		return pkg.ErrInvalidArgument
	}
	if s.Value != FeatureEndpointHalt {
		return pkg.ErrInvalidArgument
	}

	num := s.EndpointNumber()
	ep := &u.ep[num]
	switch {
	case num == 0 && set:
		return pkg.ErrInvalidArgument
	case num == 0:
	case ep.desc == nil:
		return pkg.ErrInvalidArgument
	case set:
		ep.setHalt()
	default:
		u.hw.ActivateEndpoint(ep)
		ep.clearHalt()
		u.haltCleared = int(num)
	}

	pkg.LogDebug(pkg.ComponentEP0, "endpoint halt", "endpoint", num, "set", set)
	u.ep0Status()
	return nil
}
