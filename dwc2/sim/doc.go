// Package sim simulates an S5PV210 board well enough to run the controller
// core, the DWC2 transport and the gadgets without hardware.
//
// A [System] bundles:
//
//   - [Memory]: a RAM window plus DMA mappings for buffers outside it
//   - [Platform]: the interrupt controller, CPU interrupt mask, delays,
//     instruction cache and jump recording
//   - [Core]: the DWC2 device registers, the PHY block and isolation bit
//
// A [Host] plays the other end of the cable. Each transaction runs
// synchronously: packets move by DMA, completion bits are raised and the
// device's interrupt handler runs before the call returns.
//
//	sys, _ := sim.New(sim.DefaultConfig())
//	ctl := dwc2.New(sys, sys.Platform, sys.Memory, dwc2.DefaultConfig())
//	u := udc.New(ctl, sys.Platform)
//	_ = u.RegisterGadget(g)
//	enum, err := sys.Host().Enumerate(hal.SpeedHigh, 5)
package sim
