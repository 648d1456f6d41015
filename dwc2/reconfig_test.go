package dwc2

import (
	"errors"
	"testing"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// stuckBus is a register file whose GRSTCTL bits never self-clear.
type stuckBus struct {
	regs map[uint32]uint32
	core uint32
	hold uint32 // GRSTCTL bits that stay set once written
}

func (b *stuckBus) Read32(addr uint32) uint32 {
	v := b.regs[addr]
	if addr == b.core+offsetGRSTCTL {
		v |= grstctlAHBIdle
	}
	return v
}

func (b *stuckBus) Write32(addr, value uint32) {
	if addr == b.core+offsetGRSTCTL {
		value &= b.hold
	}
	b.regs[addr] = value
}

type nopPlatform struct{ delays []uint32 }

func (p *nopPlatform) SetInterruptHandler(int, hal.InterruptHandler) {}
func (p *nopPlatform) EnableInterrupt(int)                           {}
func (p *nopPlatform) DisableInterrupt(int)                          {}
func (p *nopPlatform) SetInterruptsEnabled(bool) bool                { return true }
func (p *nopPlatform) InvalidateICache()                             {}
func (p *nopPlatform) DelayMicroseconds(us uint32)                   { p.delays = append(p.delays, us) }
func (p *nopPlatform) Jump(uint32)                                   {}

type flatMemory struct{}

func (flatMemory) Slice(addr, n uint32) ([]byte, error) { return make([]byte, n), nil }
func (flatMemory) Address([]byte) (uint32, error)       { return 0x1000, nil }
func (flatMemory) Available(uint32) uint32              { return 1 << 20 }

type nopEvents struct{}

func (nopEvents) EnumDone(hal.Speed)        {}
func (nopEvents) BusReset()                 {}
func (nopEvents) InComplete(uint8, int)     {}
func (nopEvents) OutComplete(uint8, int)    {}
func (nopEvents) SetupReceived(data []byte) {}

func TestAttachTimeout(t *testing.T) {
	tests := []struct {
		name string
		hold uint32
	}{
		{"core reset", grstctlCSftRst},
		{"rx flush", grstctlRxFFlsh},
		{"tx flush", grstctlTxFFlsh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SpinLimit = 16
			bus := &stuckBus{regs: make(map[uint32]uint32), core: cfg.CoreBase, hold: tt.hold}
			c := New(bus, &nopPlatform{}, flatMemory{}, cfg)
			c.Bind(nopEvents{})

			err := c.Attach()
			if !errors.Is(err, pkg.ErrTimeout) {
				t.Fatalf("Attach() error = %v, want %v", err, pkg.ErrTimeout)
			}
			if c.Attached() {
				t.Error("controller attached after timeout")
			}
			if bus.regs[cfg.PHYBase+offsetUPHYPWR]&uphypwrPHY0PowerOff != uphypwrPHY0PowerOff {
				t.Error("PHY left powered after failed attach")
			}
		})
	}
}

func TestAttachUnbound(t *testing.T) {
	c := New(&stuckBus{regs: make(map[uint32]uint32)}, &nopPlatform{}, flatMemory{}, Config{})
	if err := c.Attach(); !errors.Is(err, pkg.ErrNotBound) {
		t.Errorf("Attach() error = %v, want %v", err, pkg.ErrNotBound)
	}
	if c.Config().SpinLimit != DefaultConfig().SpinLimit {
		t.Errorf("SpinLimit = %d, want default", c.Config().SpinLimit)
	}
}

func TestPackets(t *testing.T) {
	tests := []struct {
		n, mps, want uint32
	}{
		{0, 512, 1},
		{1, 512, 1},
		{512, 512, 1},
		{513, 512, 2},
		{1300, 512, 3},
		{18, 8, 3},
		{5, 0, 1},
	}
	for _, tt := range tests {
		if got := packets(tt.n, tt.mps); got != tt.want {
			t.Errorf("packets(%d, %d) = %d, want %d", tt.n, tt.mps, got, tt.want)
		}
	}
}

func TestReceived(t *testing.T) {
	bus := &stuckBus{regs: make(map[uint32]uint32)}
	c := New(bus, &nopPlatform{}, flatMemory{}, Config{})

	tests := []struct {
		name    string
		num     uint8
		armed   uint32
		residue uint32
		want    int
	}{
		{"full", 2, 512, 0, 512},
		{"short", 2, 512, 312, 200},
		{"zero length", 2, 512, 512, 0},
		{"residue beyond armed", 2, 8, 64, 0},
		{"ep0 status", 0, 8, 8, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.outLen[tt.num] = tt.armed
			bus.regs[doeptsiz(tt.num)] = 1<<deptsizPktCntShift | tt.residue
			if got := c.received(tt.num); got != tt.want {
				t.Errorf("received() = %d, want %d", got, tt.want)
			}
			if c.outLen[tt.num] != 0 {
				t.Error("armed length not consumed")
			}
		})
	}
}

func TestReceivedEP0Bounce(t *testing.T) {
	bus := &stuckBus{regs: make(map[uint32]uint32)}
	c := New(bus, &nopPlatform{}, flatMemory{}, Config{})
	copy(c.ep0buf[:], "abcdefgh")

	dst := make([]byte, 8)
	c.ep0Dst = dst[:5]
	c.outLen[0] = 5
	bus.regs[doeptsiz(0)] = 2

	if got := c.received(0); got != 3 || string(dst[:3]) != "abc" {
		t.Errorf("received() = %d, dst = %q", got, dst)
	}
	if c.ep0Dst != nil {
		t.Error("bounce destination not released")
	}
}

func TestSetEP0MaxPacket(t *testing.T) {
	tests := []struct {
		mps  uint16
		code uint32
	}{
		{64, depctlEP0MPS64},
		{32, depctlEP0MPS32},
		{16, depctlEP0MPS16},
		{8, depctlEP0MPS8},
	}
	for _, tt := range tests {
		bus := &stuckBus{regs: make(map[uint32]uint32)}
		c := New(bus, &nopPlatform{}, flatMemory{}, Config{})
		c.SetEP0MaxPacket(tt.mps)
		if got := bus.regs[diepctl(0)] & depctlEP0MPSMask; got != tt.code {
			t.Errorf("SetEP0MaxPacket(%d) DIEPCTL0 = %d, want %d", tt.mps, got, tt.code)
		}
		if got := bus.regs[doepctl(0)] & depctlEP0MPSMask; got != tt.code {
			t.Errorf("SetEP0MaxPacket(%d) DOEPCTL0 = %d, want %d", tt.mps, got, tt.code)
		}
	}
}

var _ udc.Events = nopEvents{}
