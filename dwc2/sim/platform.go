package sim

import (
	"time"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// maxDeliveries bounds back-to-back handler invocations for one line.
const maxDeliveries = 1024

// Platform is a single-CPU boot environment. Interrupt handlers run
// synchronously on the goroutine that raises or unmasks a line; handlers
// never nest.
type Platform struct {
	handlers map[int]hal.InterruptHandler
	enabled  map[int]bool
	asserted map[int]bool

	cpuEnabled bool
	inHandler  bool

	elapsed time.Duration
	delays  []uint32
	icache  int
	jumps   []Jump

	icacheAtJump int
}

// Jump records one transfer of control.
type Jump struct {
	Addr uint32

	// InterruptsMasked reports the CPU mask at the time of the jump.
	InterruptsMasked bool

	// ICacheInvalidated reports whether the instruction cache was
	// invalidated since the previous jump.
	ICacheInvalidated bool
}

var _ hal.Platform = (*Platform)(nil)

// NewPlatform returns a platform with CPU interrupts enabled.
func NewPlatform() *Platform {
	return &Platform{
		handlers:   make(map[int]hal.InterruptHandler),
		enabled:    make(map[int]bool),
		asserted:   make(map[int]bool),
		cpuEnabled: true,
	}
}

// SetInterruptHandler implements [hal.Platform].
func (p *Platform) SetInterruptHandler(irq int, handler hal.InterruptHandler) {
	p.handlers[irq] = handler
	p.deliver()
}

// EnableInterrupt implements [hal.Platform].
func (p *Platform) EnableInterrupt(irq int) {
	p.enabled[irq] = true
	p.deliver()
}

// DisableInterrupt implements [hal.Platform].
func (p *Platform) DisableInterrupt(irq int) {
	p.enabled[irq] = false
}

// SetInterruptsEnabled implements [hal.Platform].
func (p *Platform) SetInterruptsEnabled(enabled bool) bool {
	prev := p.cpuEnabled
	p.cpuEnabled = enabled
	if enabled && !prev {
		p.deliver()
	}
	return prev
}

// InterruptsEnabled reports the CPU interrupt mask.
func (p *Platform) InterruptsEnabled() bool { return p.cpuEnabled }

// InterruptEnabled reports whether irq is unmasked at the controller.
func (p *Platform) InterruptEnabled(irq int) bool { return p.enabled[irq] }

// InvalidateICache implements [hal.Platform].
func (p *Platform) InvalidateICache() { p.icache++ }

// ICacheInvalidations returns the number of instruction cache invalidations.
func (p *Platform) ICacheInvalidations() int { return p.icache }

// DelayMicroseconds implements [hal.Platform]. Time is accounted, not spent.
func (p *Platform) DelayMicroseconds(us uint32) {
	p.delays = append(p.delays, us)
	p.elapsed += time.Duration(us) * time.Microsecond
}

// Delays returns every requested delay in call order.
func (p *Platform) Delays() []uint32 { return p.delays }

// Elapsed returns the total delay requested.
func (p *Platform) Elapsed() time.Duration { return p.elapsed }

// Jump implements [hal.Platform]. The target is recorded and Jump returns.
func (p *Platform) Jump(addr uint32) {
	pkg.LogInfo(pkg.ComponentSim, "jump", "addr", addr)
	p.jumps = append(p.jumps, Jump{
		Addr:              addr,
		InterruptsMasked:  !p.cpuEnabled,
		ICacheInvalidated: p.icache > p.icacheAtJump,
	})
	p.icacheAtJump = p.icache
}

// Jumps returns every jump in call order.
func (p *Platform) Jumps() []Jump { return p.jumps }

// setLine drives the level of irq and services it if deliverable.
func (p *Platform) setLine(irq int, level bool) {
	p.asserted[irq] = level
	if level {
		p.deliver()
	}
}

// deliver runs handlers for asserted, enabled lines until none remain.
func (p *Platform) deliver() {
	if p.inHandler {
		return
	}
	for irq, h := range p.handlers {
		for n := 0; p.deliverable(irq) && h != nil; n++ {
			if n == maxDeliveries {
				pkg.LogError(pkg.ComponentSim, "interrupt storm", "irq", irq)
				break
			}
			p.inHandler = true
			p.cpuEnabled = false
			h(irq)
			p.cpuEnabled = true
			p.inHandler = false
			h = p.handlers[irq]
		}
	}
}

func (p *Platform) deliverable(irq int) bool {
	return p.cpuEnabled && p.enabled[irq] && p.asserted[irq]
}
