package gadget

import (
	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Handoff transfers control to code at addr: the active gadget is
// unregistered, CPU interrupts are masked, the instruction cache is
// invalidated and execution jumps to addr. On hardware it does not return.
//
// Handoff may be called from a completion callback. The caller must not
// touch its requests afterwards; they are released by Unbind.
func Handoff(u *udc.UDC, plat hal.Platform, addr uint32) {
	pkg.LogInfo(pkg.ComponentGadget, "handoff", "addr", addr)

	if err := u.RegisterGadget(nil); err != nil {
		pkg.LogError(pkg.ComponentGadget, "unregister before handoff", "error", err)
	}
	plat.SetInterruptsEnabled(false)
	plat.InvalidateICache()
	plat.Jump(addr)
}
