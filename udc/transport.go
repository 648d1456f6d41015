package udc

import "github.com/ardnew/softudc/udc/hal"

// Transport programs a concrete controller on behalf of the core. Every
// method except Attach and Detach is called with the controller interrupt
// masked or from the interrupt handler itself.
type Transport interface {
	// Bind connects the transport to the core's event entry points.
	// Called once by New.
	Bind(ev Events)

	// Attach powers the PHY, reinitialises the controller, installs the
	// interrupt handler and enables the controller interrupt.
	Attach() error

	// Detach disables the controller interrupt, clears the device address
	// and powers the PHY down.
	Detach()

	// SetAddress programs the device address.
	SetAddress(addr uint8)

	// SetEP0MaxPacket programs the control endpoint max packet size.
	SetEP0MaxPacket(mps uint16)

	// ActivateEndpoint programs type and max packet size and unmasks the
	// endpoint interrupt.
	ActivateEndpoint(ep *Endpoint)

	// DeactivateEndpoint disables the endpoint and masks its interrupt.
	DeactivateEndpoint(ep *Endpoint)

	// SetNAK makes the endpoint NAK until the next transfer is armed.
	SetNAK(ep *Endpoint)

	// SetStall stalls the endpoint, aborting any armed IN transfer.
	SetStall(ep *Endpoint)

	// ClearStall clears the stall and resets the data toggle.
	ClearStall(ep *Endpoint)

	// StartIn flushes the endpoint TX FIFO and arms a DMA transfer of buf.
	StartIn(ep *Endpoint, buf []byte)

	// StartOut arms a DMA transfer into buf.
	StartOut(ep *Endpoint, buf []byte)

	// ArmSetup prepares endpoint 0 to receive the next SETUP packet.
	ArmSetup()

	// ArmStatusOut arms the zero-length OUT status stage on endpoint 0.
	ArmStatusOut()

	// SendZLP sends a zero-length IN status packet on endpoint 0.
	SendZLP()

	// StallEP0 stalls the control endpoint until the next SETUP.
	StallEP0()
}

// Events are the completion and bus notifications a Transport delivers to
// the core from its interrupt handler, in this priority order.
type Events interface {
	// EnumDone reports the negotiated bus speed.
	EnumDone(speed hal.Speed)

	// BusReset reports a USB reset signalled by the host.
	BusReset()

	// InComplete reports the end of the DMA transfer armed on IN endpoint
	// num, of which n bytes were sent.
	InComplete(num uint8, n int)

	// OutComplete reports n bytes received on OUT endpoint num.
	OutComplete(num uint8, n int)

	// SetupReceived delivers an 8-byte SETUP packet received on endpoint 0.
	SetupReceived(data []byte)
}
