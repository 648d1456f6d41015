package udc

import (
	"errors"
	"testing"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// mockTransport implements Transport and records what the core asks of it.
type mockTransport struct {
	ev        Events
	attached  bool
	attachErr error
	detaches  int

	address uint8
	ep0MPS  uint16

	active  map[uint8]bool // endpoint address -> activated
	stalled map[uint8]bool
	nak     map[uint8]bool

	in    map[uint8][][]byte // IN buffers armed per endpoint number
	out   map[uint8][][]byte // OUT buffers armed per endpoint number
	inLen map[uint8]int      // bytes of the IN transfer armed last

	setupArms  int
	statusOuts int
	zlps       int
	ep0Stalls  int
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		active:  make(map[uint8]bool),
		stalled: make(map[uint8]bool),
		nak:     make(map[uint8]bool),
		in:      make(map[uint8][][]byte),
		out:     make(map[uint8][][]byte),
		inLen:   make(map[uint8]int),
	}
}

func (m *mockTransport) Bind(ev Events) { m.ev = ev }

func (m *mockTransport) Attach() error {
	if m.attachErr != nil {
		return m.attachErr
	}
	m.attached = true
	return nil
}

func (m *mockTransport) Detach() {
	m.attached = false
	m.detaches++
}

func (m *mockTransport) SetAddress(addr uint8)         { m.address = addr }
func (m *mockTransport) SetEP0MaxPacket(mps uint16)    { m.ep0MPS = mps }
func (m *mockTransport) ActivateEndpoint(ep *Endpoint) { m.active[ep.Address()] = true }
func (m *mockTransport) DeactivateEndpoint(ep *Endpoint) {
	m.active[ep.Address()] = false
}
func (m *mockTransport) SetNAK(ep *Endpoint)     { m.nak[ep.Address()] = true }
func (m *mockTransport) SetStall(ep *Endpoint)   { m.stalled[ep.Address()] = true }
func (m *mockTransport) ClearStall(ep *Endpoint) { m.stalled[ep.Address()] = false }

func (m *mockTransport) StartIn(ep *Endpoint, buf []byte) {
	m.in[ep.Number()] = append(m.in[ep.Number()], append([]byte(nil), buf...))
	m.inLen[ep.Number()] = len(buf)
}

func (m *mockTransport) StartOut(ep *Endpoint, buf []byte) {
	m.out[ep.Number()] = append(m.out[ep.Number()], buf)
}

func (m *mockTransport) ArmSetup()     { m.setupArms++ }
func (m *mockTransport) ArmStatusOut() { m.statusOuts++ }
func (m *mockTransport) StallEP0()     { m.ep0Stalls++ }

func (m *mockTransport) SendZLP() {
	m.zlps++
	m.inLen[0] = 0
}

// inDone completes the IN transfer armed on num in full.
func (m *mockTransport) inDone(num uint8) {
	m.ev.InComplete(num, m.inLen[num])
}

// lastIn returns the most recent IN buffer armed on num.
func (m *mockTransport) lastIn(num uint8) []byte {
	bufs := m.in[num]
	if len(bufs) == 0 {
		return nil
	}
	return bufs[len(bufs)-1]
}

// lastOut returns the most recent OUT buffer armed on num.
func (m *mockTransport) lastOut(num uint8) []byte {
	bufs := m.out[num]
	if len(bufs) == 0 {
		return nil
	}
	return bufs[len(bufs)-1]
}

// mockPlatform implements hal.Platform.
type mockPlatform struct {
	enabled bool
	masks   int
}

func (p *mockPlatform) SetInterruptHandler(int, hal.InterruptHandler) {}
func (p *mockPlatform) EnableInterrupt(int)                           {}
func (p *mockPlatform) DisableInterrupt(int)                          {}
func (p *mockPlatform) InvalidateICache()                             {}
func (p *mockPlatform) DelayMicroseconds(uint32)                      {}
func (p *mockPlatform) Jump(uint32)                                   {}

func (p *mockPlatform) SetInterruptsEnabled(enabled bool) bool {
	if !enabled {
		p.masks++
	}
	prev := p.enabled
	p.enabled = enabled
	return prev
}

// testGadget implements Gadget with optional hooks.
type testGadget struct {
	binds, unbinds int
	bindErr        error
	onBind         func(u *UDC) error
	onSetup        func(u *UDC, s *SetupPacket) error
	setups         []SetupPacket
}

func (g *testGadget) Bind(u *UDC) error {
	g.binds++
	if g.bindErr != nil {
		return g.bindErr
	}
	if g.onBind != nil {
		return g.onBind(u)
	}
	return nil
}

func (g *testGadget) Unbind(*UDC) { g.unbinds++ }

func (g *testGadget) Setup(u *UDC, s *SetupPacket) error {
	g.setups = append(g.setups, *s)
	if g.onSetup != nil {
		return g.onSetup(u, s)
	}
	return pkg.ErrInvalidArgument
}

// newTestUDC returns a controller with g registered and enumerated at speed.
func newTestUDC(t *testing.T, g Gadget, speed hal.Speed) (*UDC, *mockTransport) {
	t.Helper()
	tr := newMockTransport()
	u := New(tr, &mockPlatform{enabled: true})
	if g == nil {
		return u, tr
	}
	if err := u.RegisterGadget(g); err != nil {
		t.Fatalf("RegisterGadget() error = %v", err)
	}
	tr.ev.BusReset()
	tr.ev.EnumDone(speed)
	return u, tr
}

func setupBytes(s SetupPacket) []byte {
	buf := make([]byte, SetupPacketSize)
	s.MarshalTo(buf)
	return buf
}

func bulkDesc(addr uint8, mps uint16) *EndpointDescriptor {
	return &EndpointDescriptor{
		EndpointAddress: addr,
		Attributes:      EndpointTypeBulk,
		MaxPacketSize:   mps,
	}
}

func enable(t *testing.T, u *UDC, addr uint8, mps uint16) *Endpoint {
	t.Helper()
	ep := u.Endpoint(addr & 0x0F)
	if err := ep.Enable(bulkDesc(addr, mps)); err != nil {
		t.Fatalf("Enable(0x%02x) error = %v", addr, err)
	}
	return ep
}

func TestEP0MaxPacket(t *testing.T) {
	tests := []struct {
		speed    hal.Speed
		ep0, blk uint16
	}{
		{hal.SpeedHigh, 64, 512},
		{hal.SpeedFull, 8, 64},
		{hal.SpeedUnknown, 64, 512},
	}
	for _, tt := range tests {
		t.Run(tt.speed.String(), func(t *testing.T) {
			if got := EP0MaxPacket(tt.speed); got != tt.ep0 {
				t.Errorf("EP0MaxPacket() = %d, want %d", got, tt.ep0)
			}
			if got := BulkMaxPacket(tt.speed); got != tt.blk {
				t.Errorf("BulkMaxPacket() = %d, want %d", got, tt.blk)
			}
		})
	}
}

func TestRegisterGadget(t *testing.T) {
	g := &testGadget{}
	tr := newMockTransport()
	plat := &mockPlatform{enabled: true}
	u := New(tr, plat)

	if err := u.RegisterGadget(g); err != nil {
		t.Fatalf("RegisterGadget() error = %v", err)
	}
	if !tr.attached || g.binds != 1 || u.Gadget() != g {
		t.Fatalf("after register: attached=%v binds=%d", tr.attached, g.binds)
	}
	if !plat.enabled {
		t.Error("interrupt mask not restored after RegisterGadget")
	}

	if err := u.RegisterGadget(nil); err != nil {
		t.Fatalf("RegisterGadget(nil) error = %v", err)
	}
	if tr.attached || g.unbinds != 1 || u.Gadget() != nil {
		t.Errorf("after unregister: attached=%v unbinds=%d", tr.attached, g.unbinds)
	}
}

func TestRegisterGadgetErrors(t *testing.T) {
	t.Run("bind fails", func(t *testing.T) {
		tr := newMockTransport()
		u := New(tr, &mockPlatform{})
		g := &testGadget{bindErr: pkg.ErrNoMemory}
		err := u.RegisterGadget(g)
		if !errors.Is(err, pkg.ErrNoMemory) {
			t.Fatalf("RegisterGadget() error = %v, want %v", err, pkg.ErrNoMemory)
		}
		if u.Gadget() != nil || tr.attached {
			t.Error("failed bind left gadget registered")
		}
	})

	t.Run("attach fails", func(t *testing.T) {
		tr := newMockTransport()
		tr.attachErr = pkg.ErrTimeout
		u := New(tr, &mockPlatform{})
		g := &testGadget{}
		err := u.RegisterGadget(g)
		if !errors.Is(err, pkg.ErrTimeout) {
			t.Fatalf("RegisterGadget() error = %v, want %v", err, pkg.ErrTimeout)
		}
		if u.Gadget() != nil || g.unbinds != 1 {
			t.Errorf("gadget = %v, unbinds = %d", u.Gadget(), g.unbinds)
		}
	})
}

func TestBusResetMidTransfer(t *testing.T) {
	g := &testGadget{}
	u, tr := newTestUDC(t, g, hal.SpeedHigh)
	ep := enable(t, u, 0x81, 512)

	var got []pkg.Status
	for range 2 {
		req := ep.AllocRequest()
		req.Buf = make([]byte, 100)
		req.Length = 100
		req.Complete = func(_ *Endpoint, r *Request) { got = append(got, r.Status) }
		if err := ep.Queue(req); err != nil {
			t.Fatalf("Queue() error = %v", err)
		}
	}

	arms := tr.setupArms
	tr.ev.BusReset()

	if len(got) != 2 || got[0] != pkg.StatusShutdown || got[1] != pkg.StatusShutdown {
		t.Errorf("completions = %v, want two shutdown", got)
	}
	if ep.Enabled() || ep.Pending() != 0 {
		t.Errorf("endpoint enabled=%v pending=%d after reset", ep.Enabled(), ep.Pending())
	}
	if u.Speed() != hal.SpeedHigh || u.Address() != 0 || tr.address != 0 {
		t.Errorf("speed=%v address=%d", u.Speed(), u.Address())
	}
	if g.binds != 3 || g.unbinds != 2 {
		t.Errorf("binds=%d unbinds=%d, want 3 and 2", g.binds, g.unbinds)
	}
	if tr.setupArms != arms+1 {
		t.Errorf("setup arms = %d, want %d", tr.setupArms, arms+1)
	}
	if u.State() != WaitForSetup {
		t.Errorf("State() = %v, want %v", u.State(), WaitForSetup)
	}

	// A late completion from the aborted transfer is ignored.
	tr.inDone(1)
	if len(got) != 2 {
		t.Errorf("late completion delivered: %v", got)
	}
}

func TestEnumDone(t *testing.T) {
	tests := []struct {
		speed hal.Speed
		mps   uint16
	}{
		{hal.SpeedHigh, 64},
		{hal.SpeedFull, 8},
	}
	for _, tt := range tests {
		t.Run(tt.speed.String(), func(t *testing.T) {
			u, tr := newTestUDC(t, &testGadget{}, tt.speed)
			if u.Speed() != tt.speed {
				t.Errorf("Speed() = %v, want %v", u.Speed(), tt.speed)
			}
			if tr.ep0MPS != tt.mps || u.Endpoint(0).MaxPacket() != tt.mps {
				t.Errorf("ep0 max packet = %d/%d, want %d", tr.ep0MPS, u.Endpoint(0).MaxPacket(), tt.mps)
			}
		})
	}
}

func TestEnumDoneBeforeReset(t *testing.T) {
	g := &testGadget{}
	u, tr := newTestUDC(t, g, hal.SpeedHigh)

	// One interrupt carrying both events reports enumeration first.
	tr.ev.EnumDone(hal.SpeedFull)
	tr.ev.BusReset()

	if u.Speed() != hal.SpeedFull || u.Endpoint(0).MaxPacket() != EP0MaxPacketFull {
		t.Fatalf("speed=%v ep0 mps=%d", u.Speed(), u.Endpoint(0).MaxPacket())
	}
	ep := enable(t, u, 0x81, 64)
	if err := ep.Queue(&Request{Buf: make([]byte, 4), Length: 4}); err != nil {
		t.Errorf("Queue() error = %v", err)
	}

	if err := u.RegisterGadget(nil); err != nil {
		t.Fatalf("RegisterGadget(nil) error = %v", err)
	}
	if u.Speed() != hal.SpeedUnknown {
		t.Errorf("speed after teardown = %v, want %v", u.Speed(), hal.SpeedUnknown)
	}
}
