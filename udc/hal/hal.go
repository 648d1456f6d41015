package hal

// Speed represents the negotiated USB connection speed.
type Speed uint8

// USB speed constants.
const (
	SpeedUnknown Speed = iota // Not enumerated
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedFull:
		return "full"
	case SpeedHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Bus is the memory-mapped register access primitive for the controller,
// its PHY and the power-management block. Addresses are physical.
type Bus interface {
	Read32(addr uint32) uint32
	Write32(addr, value uint32)
}

// InterruptHandler services one interrupt line.
type InterruptHandler func(irq int)

// Platform collects the boot environment services the controller needs.
//
// On hardware the handler registered with SetInterruptHandler runs in
// interrupt context. While interrupts are masked with SetInterruptsEnabled
// no handler runs; pending lines are serviced once unmasked.
type Platform interface {
	// SetInterruptHandler installs handler for irq, replacing any previous one.
	SetInterruptHandler(irq int, handler InterruptHandler)

	// EnableInterrupt unmasks irq at the interrupt controller.
	EnableInterrupt(irq int)

	// DisableInterrupt masks irq at the interrupt controller.
	DisableInterrupt(irq int)

	// SetInterruptsEnabled sets the CPU interrupt mask and returns the
	// previous setting.
	SetInterruptsEnabled(enabled bool) bool

	// InvalidateICache discards the instruction cache.
	InvalidateICache()

	// DelayMicroseconds busy-waits for at least us microseconds.
	DelayMicroseconds(us uint32)

	// Jump transfers control to addr. It does not return on hardware.
	Jump(addr uint32)
}

// Memory maps physical memory for DMA and for the gadget protocols.
type Memory interface {
	// Slice returns a view of n bytes of physical memory at addr.
	Slice(addr, n uint32) ([]byte, error)

	// Address returns the DMA bus address of buf[0].
	Address(buf []byte) (uint32, error)

	// Available returns the bytes mapped from addr to the end of its
	// region, or 0 if addr is unmapped.
	Available(addr uint32) uint32
}
