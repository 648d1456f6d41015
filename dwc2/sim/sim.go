package sim

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc/hal"
)

// Config places the simulated blocks in the physical address space.
type Config struct {
	CoreBase      uint32
	PHYBase       uint32
	IsolationAddr uint32
	IRQ           int

	RAMBase uint32
	RAMSize uint32
}

// DefaultConfig returns the S5PV210 layout with 16 MiB of DRAM at
// 0x20000000.
func DefaultConfig() Config {
	return Config{
		CoreBase:      0xEC000000,
		PHYBase:       0xEC100000,
		IsolationAddr: 0xE010E80C,
		IRQ:           56,
		RAMBase:       0x20000000,
		RAMSize:       16 << 20,
	}
}

// System is a simulated board: memory, the interrupt controller and the
// DWC2 core, reachable through one physical bus.
type System struct {
	cfg Config

	Memory   *Memory
	Platform *Platform
	Core     *Core
}

var _ hal.Bus = (*System)(nil)

// New builds a system from cfg.
func New(cfg Config) (*System, error) {
	mem, err := NewMemory(cfg.RAMBase, cfg.RAMSize)
	if err != nil {
		return nil, err
	}
	if ramOverlaps(cfg, cfg.CoreBase, coreSize) || ramOverlaps(cfg, cfg.PHYBase, 12) ||
		ramOverlaps(cfg, cfg.IsolationAddr, 4) {
		return nil, fmt.Errorf("%w: RAM overlaps controller registers", pkg.ErrInvalidArgument)
	}
	plat := NewPlatform()
	return &System{
		cfg:      cfg,
		Memory:   mem,
		Platform: plat,
		Core:     newCore(cfg, mem, plat),
	}, nil
}

func ramOverlaps(cfg Config, addr, n uint32) bool {
	lo, hi := uint64(cfg.RAMBase), uint64(cfg.RAMBase)+uint64(cfg.RAMSize)
	return uint64(addr) < hi && uint64(addr)+uint64(n) > lo
}

// Config returns the system layout.
func (s *System) Config() Config { return s.cfg }

// Host returns a host attached to the system's USB port.
func (s *System) Host() *Host { return &Host{core: s.Core} }

func (s *System) inCore(addr uint32) bool {
	return addr >= s.cfg.CoreBase && addr-s.cfg.CoreBase < coreSize
}

func (s *System) inPHY(addr uint32) bool {
	return addr >= s.cfg.PHYBase && addr-s.cfg.PHYBase < 12
}

// Read32 implements [hal.Bus].
func (s *System) Read32(addr uint32) uint32 {
	switch {
	case s.inCore(addr):
		return s.Core.read(addr - s.cfg.CoreBase)
	case s.inPHY(addr):
		return s.Core.readPHY(addr - s.cfg.PHYBase)
	case addr == s.cfg.IsolationAddr:
		return s.Core.isol
	}
	if _, err := s.Memory.Slice(addr, 4); err != nil {
		pkg.LogWarn(pkg.ComponentSim, "read of unmapped address", "addr", fmt.Sprintf("0x%08x", addr))
		return 0
	}
	return s.Memory.Read32(addr)
}

// Write32 implements [hal.Bus].
func (s *System) Write32(addr, value uint32) {
	switch {
	case s.inCore(addr):
		s.Core.write(addr-s.cfg.CoreBase, value)
		return
	case s.inPHY(addr):
		s.Core.writePHY(addr-s.cfg.PHYBase, value)
		return
	case addr == s.cfg.IsolationAddr:
		s.Core.isol = value
		return
	}
	if _, err := s.Memory.Slice(addr, 4); err != nil {
		pkg.LogWarn(pkg.ComponentSim, "write to unmapped address", "addr", fmt.Sprintf("0x%08x", addr))
		return
	}
	s.Memory.Write32(addr, value)
}
