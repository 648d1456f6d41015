package gadget_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/softudc/dwc2"
	"github.com/ardnew/softudc/dwc2/sim"
	"github.com/ardnew/softudc/gadget"
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// pairGadget is the smallest gadget built on Function: an EP1 IN / EP2 OUT
// pair with a receive request primed on configuration.
type pairGadget struct {
	fn      *gadget.Function
	rx      *udc.Request
	buf     [64]byte
	binds   int
	unbinds int

	statuses []pkg.Status
}

func newPairGadget() *pairGadget {
	g := &pairGadget{fn: gadget.NewFunction(gadget.NewProfile("Test", 0x81, 0x02))}
	g.fn.Configured = g.configured
	return g
}

func (g *pairGadget) Bind(u *udc.UDC) error {
	g.binds++
	g.fn.Reset()
	g.rx = u.Endpoint(2).AllocRequest()
	return nil
}

func (g *pairGadget) Unbind(u *udc.UDC) {
	g.unbinds++
	u.Endpoint(2).FreeRequest(g.rx)
	g.rx = nil
}

func (g *pairGadget) Setup(u *udc.UDC, s *udc.SetupPacket) error {
	return g.fn.Setup(u, s)
}

func (g *pairGadget) configured(u *udc.UDC) {
	ep := u.Endpoint(2)
	if ep.Pending() != 0 {
		return
	}
	g.rx.Buf = g.buf[:]
	g.rx.Length = len(g.buf)
	g.rx.Complete = func(ep *udc.Endpoint, req *udc.Request) {
		g.statuses = append(g.statuses, req.Status)
	}
	if err := ep.Queue(g.rx); err != nil {
		pkg.LogError(pkg.ComponentGadget, "prime receive", "error", err)
	}
}

type rig struct {
	sys  *sim.System
	u    *udc.UDC
	host *sim.Host
}

func newRig(t *testing.T, g udc.Gadget) *rig {
	t.Helper()
	sys, err := sim.New(sim.DefaultConfig())
	if err != nil {
		t.Fatalf("sim.New() error = %v", err)
	}
	ctl := dwc2.New(sys, sys.Platform, sys.Memory, dwc2.DefaultConfig())
	r := &rig{sys: sys, u: udc.New(ctl, sys.Platform), host: sys.Host()}
	if err := r.u.RegisterGadget(g); err != nil {
		t.Fatalf("RegisterGadget() error = %v", err)
	}
	return r
}

func TestProfileBuild(t *testing.T) {
	p := gadget.NewProfile("Nanoboot DNW", 0x81, 0x02)
	tests := []struct {
		speed    hal.Speed
		mps0     uint8
		qualMPS0 uint8
		bulk     uint16
		other    uint16
	}{
		{hal.SpeedHigh, 64, 8, 512, 64},
		{hal.SpeedFull, 8, 64, 64, 512},
	}
	for _, tt := range tests {
		t.Run(tt.speed.String(), func(t *testing.T) {
			d := p.Build(tt.speed)

			var dev udc.DeviceDescriptor
			if err := udc.ParseDeviceDescriptor(d.Device, &dev); err != nil {
				t.Fatalf("device descriptor: %v", err)
			}
			if dev.MaxPacketSize0 != tt.mps0 || dev.VendorID != gadget.VendorID ||
				dev.ProductID != gadget.ProductID || dev.USBVersion != udc.USBVersion20 {
				t.Errorf("device descriptor = %+v", dev)
			}
			if dev.ManufacturerIndex != gadget.StringManufacturer || dev.ProductIndex != gadget.StringProduct {
				t.Errorf("string indexes = %d, %d", dev.ManufacturerIndex, dev.ProductIndex)
			}
			if d.Qualifier[1] != udc.DescriptorTypeDeviceQualifier || d.Qualifier[7] != tt.qualMPS0 {
				t.Errorf("qualifier = %x", d.Qualifier)
			}

			for _, c := range []struct {
				buf []byte
				typ uint8
				mps uint16
			}{
				{d.Configuration, udc.DescriptorTypeConfiguration, tt.bulk},
				{d.OtherSpeed, udc.DescriptorTypeOtherSpeedConfig, tt.other},
			} {
				if len(c.buf) != 32 || c.buf[1] != c.typ || c.buf[2] != 32 {
					t.Fatalf("configuration type 0x%02x = %x", c.typ, c.buf)
				}
				if c.buf[7] != udc.ConfigAttrBusPowered|udc.ConfigAttrSelfPowered {
					t.Errorf("bmAttributes = 0x%02x", c.buf[7])
				}
				if c.buf[9+5] != udc.ClassVendor || c.buf[9+4] != 2 {
					t.Errorf("interface = %x", c.buf[9:18])
				}
				var ep udc.EndpointDescriptor
				if err := udc.ParseEndpointDescriptor(c.buf[18:25], &ep); err != nil {
					t.Fatal(err)
				}
				if ep.EndpointAddress != 0x81 || ep.MaxPacketSize != c.mps {
					t.Errorf("endpoint = %+v, want mps %d", ep, c.mps)
				}
			}

			if len(d.Endpoints) != 2 || d.Endpoints[1].MaxPacketSize != tt.bulk {
				t.Errorf("Endpoints = %+v", d.Endpoints)
			}
			if len(d.Strings) != 3 || !bytes.Equal(d.Strings[0], []byte{4, 3, 0x09, 0x04}) {
				t.Errorf("Strings = %x", d.Strings)
			}
			if d.Strings[2][0] != uint8(2+2*len("Nanoboot DNW")) {
				t.Errorf("product string = %x", d.Strings[2])
			}
		})
	}
}

func TestFunctionSetup(t *testing.T) {
	g := newPairGadget()
	r := newRig(t, g)
	e, err := r.host.Enumerate(hal.SpeedHigh, 5)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if e.Device.MaxPacketSize0 != 64 || len(e.Configuration) != 32 {
		t.Errorf("enumeration = %+v", e)
	}
	if g.fn.Config() != 1 || !r.u.Endpoint(1).Enabled() || r.u.Endpoint(2).Pending() != 1 {
		t.Fatalf("config=%d ep1=%v ep2 pending=%d",
			g.fn.Config(), r.u.Endpoint(1).Enabled(), r.u.Endpoint(2).Pending())
	}

	var s udc.SetupPacket
	tests := []struct {
		name  string
		setup func(*udc.SetupPacket)
		want  []byte
		stall bool
	}{
		{
			name:  "get configuration",
			setup: udc.GetConfigurationSetup,
			want:  []byte{1},
		},
		{
			name:  "qualifier",
			setup: func(s *udc.SetupPacket) { udc.GetDescriptorSetup(s, udc.DescriptorTypeDeviceQualifier, 0, 10) },
			want:  []byte{10, 6, 0, 2, 0, 0, 0, 8, 1, 0},
		},
		{
			name:  "other speed truncated",
			setup: func(s *udc.SetupPacket) { udc.GetDescriptorSetup(s, udc.DescriptorTypeOtherSpeedConfig, 0, 4) },
			want:  []byte{9, 7, 32, 0},
		},
		{
			name:  "language ids",
			setup: func(s *udc.SetupPacket) { udc.GetDescriptorSetup(s, udc.DescriptorTypeString, 0, 255) },
			want:  []byte{4, 3, 0x09, 0x04},
		},
		{
			name:  "product string",
			setup: func(s *udc.SetupPacket) { udc.GetDescriptorSetup(s, udc.DescriptorTypeString, 2, 255) },
			want:  []byte{10, 3, 'T', 0, 'e', 0, 's', 0, 't', 0},
		},
		{
			name:  "missing string",
			setup: func(s *udc.SetupPacket) { udc.GetDescriptorSetup(s, udc.DescriptorTypeString, 3, 255) },
			stall: true,
		},
		{
			name:  "get interface",
			setup: func(s *udc.SetupPacket) { udc.GetInterfaceSetup(s, 0) },
			want:  []byte{0},
		},
		{
			name:  "get interface 1",
			setup: func(s *udc.SetupPacket) { udc.GetInterfaceSetup(s, 1) },
			stall: true,
		},
		{
			name:  "set alternate setting",
			setup: func(s *udc.SetupPacket) { udc.GetSetInterfaceSetup(s, 0, 1) },
			stall: true,
		},
		{
			name:  "set interface",
			setup: func(s *udc.SetupPacket) { udc.GetSetInterfaceSetup(s, 0, 0) },
		},
		{
			name:  "set configuration 2",
			setup: func(s *udc.SetupPacket) { udc.GetSetConfigurationSetup(s, 2) },
			stall: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(&s)
			got, err := r.host.Control(&s, nil)
			if tt.stall {
				if !errors.Is(err, pkg.ErrStall) {
					t.Errorf("Control() error = %v, want %v", err, pkg.ErrStall)
				}
				return
			}
			if err != nil {
				t.Fatalf("Control() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Control() = %x, want %x", got, tt.want)
			}
		})
	}

	if g.fn.Config() != 1 {
		t.Errorf("rejected SET_CONFIGURATION changed config to %d", g.fn.Config())
	}
}

func TestSetConfigFlushes(t *testing.T) {
	g := newPairGadget()
	r := newRig(t, g)
	if _, err := r.host.Enumerate(hal.SpeedFull, 2); err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if got := r.u.Endpoint(2).MaxPacket(); got != 64 {
		t.Errorf("full speed bulk max packet = %d", got)
	}

	var s udc.SetupPacket
	udc.GetSetConfigurationSetup(&s, 0)
	if _, err := r.host.Control(&s, nil); err != nil {
		t.Fatalf("SET_CONFIGURATION(0) error = %v", err)
	}
	if r.u.Endpoint(1).Enabled() || r.u.Endpoint(2).Enabled() {
		t.Error("bulk endpoints enabled after configuration 0")
	}
	if len(g.statuses) != 1 || g.statuses[0] != pkg.StatusShutdown {
		t.Fatalf("completions = %v, want [shutdown]", g.statuses)
	}
	if _, err := r.host.BulkOut(2, []byte("x")); err == nil {
		t.Error("BulkOut() succeeded on a disabled endpoint")
	}

	udc.GetSetConfigurationSetup(&s, 1)
	if _, err := r.host.Control(&s, nil); err != nil {
		t.Fatalf("SET_CONFIGURATION(1) error = %v", err)
	}
	if n := r.u.Endpoint(2).Pending(); n != 1 {
		t.Errorf("Pending() = %d after reconfiguration, want 1", n)
	}
	if _, err := r.host.BulkOut(2, []byte("ping")); err != nil {
		t.Fatalf("BulkOut() error = %v", err)
	}
	if len(g.statuses) != 2 || g.statuses[1] != pkg.StatusSuccess || string(g.buf[:4]) != "ping" {
		t.Errorf("completions = %v, buf = %q", g.statuses, g.buf[:4])
	}
}

func TestHandoff(t *testing.T) {
	g := newPairGadget()
	r := newRig(t, g)
	if _, err := r.host.Enumerate(hal.SpeedHigh, 1); err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}

	gadget.Handoff(r.u, r.sys.Platform, 0x20008000)

	if r.u.Gadget() != nil {
		t.Error("gadget still registered after handoff")
	}
	if g.unbinds == 0 || g.rx != nil {
		t.Error("gadget not unbound")
	}
	if len(g.statuses) != 1 || g.statuses[0] != pkg.StatusShutdown {
		t.Errorf("completions = %v, want [shutdown]", g.statuses)
	}
	jumps := r.sys.Platform.Jumps()
	want := sim.Jump{Addr: 0x20008000, InterruptsMasked: true, ICacheInvalidated: true}
	if len(jumps) != 1 || jumps[0] != want {
		t.Errorf("Jumps() = %+v, want [%+v]", jumps, want)
	}
	if r.sys.Core.PHYPowered() {
		t.Error("PHY powered after handoff")
	}
}
