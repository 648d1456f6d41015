package dwc2

import "github.com/ardnew/softudc/pkg"

// PHY reset pulse timing, in microseconds.
const (
	phyResetAssert = 10
	phyResetSettle = 80
)

func (c *Controller) phyRead(off uint32) uint32 {
	return c.bus.Read32(c.cfg.PHYBase + off)
}

func (c *Controller) phyWrite(off, value uint32) {
	c.bus.Write32(c.cfg.PHYBase+off, value)
}

// phyOn releases the PHY isolation, selects the reference clock, powers
// PHY0 and pulses its reset.
func (c *Controller) phyOn() {
	isol := c.cfg.IsolationAddr
	c.bus.Write32(isol, c.bus.Read32(isol)|usbIsolDevice)

	c.phyWrite(offsetUPHYCLK, c.cfg.PHYClock&uphyclkRefMask)
	c.phyWrite(offsetUPHYPWR, c.phyRead(offsetUPHYPWR)&^uphypwrPHY0PowerOff)

	c.phyWrite(offsetUPHYRST, c.phyRead(offsetUPHYRST)|uphyrstPHY0)
	c.plat.DelayMicroseconds(phyResetAssert)
	c.phyWrite(offsetUPHYRST, c.phyRead(offsetUPHYRST)&^uphyrstPHY0)
	c.plat.DelayMicroseconds(phyResetSettle)

	pkg.LogDebug(pkg.ComponentPHY, "powered on", "clock", c.cfg.PHYClock)
}

// phyOff suspends and powers down PHY0 and re-isolates it.
func (c *Controller) phyOff() {
	c.phyWrite(offsetUPHYPWR, c.phyRead(offsetUPHYPWR)|uphypwrPHY0PowerOff)

	isol := c.cfg.IsolationAddr
	c.bus.Write32(isol, c.bus.Read32(isol)&^usbIsolDevice)

	pkg.LogDebug(pkg.ComponentPHY, "powered off")
}
