package sim

import (
	"errors"
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Host drives the simulated port the way a USB host controller would.
// Every transaction runs to completion synchronously: a NAK means the
// device had nothing armed and is reported as [pkg.ErrNAK] instead of
// being retried.
type Host struct {
	core *Core
}

// Reset signals a bus reset and enumerates the device at speed.
func (h *Host) Reset(speed hal.Speed) error {
	if err := h.core.busReset(speed); err != nil {
		return fmt.Errorf("bus reset: %w", err)
	}
	pkg.LogDebug(pkg.ComponentSim, "bus reset", "speed", speed.String())
	return nil
}

// Setup sends only the SETUP stage of a control transfer.
func (h *Host) Setup(s *udc.SetupPacket) error {
	var pkt [udc.SetupPacketSize]byte
	s.MarshalTo(pkt[:])
	return h.core.setup(pkt[:])
}

// Control runs a complete control transfer. For device-to-host requests
// the data stage result is returned; data is ignored. For host-to-device
// requests data is sent as the data stage and must hold s.Length bytes.
func (h *Host) Control(s *udc.SetupPacket, data []byte) ([]byte, error) {
	if s.IsHostToDevice() && len(data) != int(s.Length) {
		return nil, fmt.Errorf("%w: %d bytes for wLength %d", pkg.ErrInvalidArgument, len(data), s.Length)
	}
	if err := h.Setup(s); err != nil {
		return nil, fmt.Errorf("setup stage: %w", err)
	}

	if s.IsDeviceToHost() {
		var in []byte
		if s.Length > 0 {
			var err error
			if in, err = h.readControl(int(s.Length)); err != nil {
				return in, fmt.Errorf("data stage: %w", err)
			}
		}
		if err := h.core.outPacket(0, nil); err != nil {
			return in, fmt.Errorf("status stage: %w", err)
		}
		return in, nil
	}

	mps := int(h.core.maxPacket(0, false))
	for off := 0; off < len(data); off += mps {
		end := min(off+mps, len(data))
		if err := h.core.outPacket(0, data[off:end]); err != nil {
			return nil, fmt.Errorf("data stage: %w", err)
		}
	}
	status, err := h.core.inPacket(0)
	if err != nil {
		return nil, fmt.Errorf("status stage: %w", err)
	}
	if len(status) != 0 {
		return nil, fmt.Errorf("%w: %d byte status stage", pkg.ErrProtocol, len(status))
	}
	return nil, nil
}

func (h *Host) readControl(n int) ([]byte, error) {
	mps := int(h.core.maxPacket(0, true))
	var in []byte
	for len(in) < n {
		pkt, err := h.core.inPacket(0)
		if err != nil {
			return in, err
		}
		in = append(in, pkt...)
		if len(pkt) < mps {
			break
		}
	}
	if len(in) > n {
		return in, fmt.Errorf("%w: device sent %d bytes for wLength %d", pkg.ErrProtocol, len(in), n)
	}
	return in, nil
}

// BulkOut sends data to OUT endpoint ep in max-packet-sized pieces. An
// empty data sends one zero-length packet. It returns the bytes accepted.
func (h *Host) BulkOut(ep uint8, data []byte) (int, error) {
	mps := int(h.core.maxPacket(ep, false))
	if mps == 0 {
		return 0, fmt.Errorf("ep%d OUT: %w", ep, pkg.ErrNAK)
	}
	if len(data) == 0 {
		return 0, h.core.outPacket(ep, nil)
	}
	sent := 0
	for sent < len(data) {
		end := min(sent+mps, len(data))
		if err := h.core.outPacket(ep, data[sent:end]); err != nil {
			return sent, fmt.Errorf("ep%d OUT: %w", ep, err)
		}
		sent = end
	}
	return sent, nil
}

// BulkIn reads from IN endpoint ep until at least n bytes arrive, a short
// packet ends the transfer or the endpoint has nothing more armed.
func (h *Host) BulkIn(ep uint8, n int) ([]byte, error) {
	mps := int(h.core.maxPacket(ep, true))
	var in []byte
	for len(in) < n {
		pkt, err := h.core.inPacket(ep)
		if err != nil {
			if errors.Is(err, pkg.ErrNAK) && len(in) > 0 {
				break
			}
			return in, fmt.Errorf("ep%d IN: %w", ep, err)
		}
		in = append(in, pkt...)
		if len(pkt) < mps {
			break
		}
	}
	return in, nil
}

// Enumeration is what the host learns while enumerating a device.
type Enumeration struct {
	Speed         hal.Speed
	Address       uint8
	Device        udc.DeviceDescriptor
	Configuration []byte // full configuration descriptor set
}

// Enumerate resets the bus at speed, reads the device and configuration
// descriptors, assigns address and selects configuration 1.
func (h *Host) Enumerate(speed hal.Speed, address uint8) (*Enumeration, error) {
	if err := h.Reset(speed); err != nil {
		return nil, err
	}
	e := &Enumeration{Speed: speed, Address: address}

	var s udc.SetupPacket
	udc.GetDescriptorSetup(&s, udc.DescriptorTypeDevice, 0, 64)
	data, err := h.Control(&s, nil)
	if err != nil {
		return nil, fmt.Errorf("get device descriptor: %w", err)
	}
	if err := udc.ParseDeviceDescriptor(data, &e.Device); err != nil {
		return nil, fmt.Errorf("get device descriptor: %w", err)
	}

	udc.GetSetAddressSetup(&s, address)
	if _, err := h.Control(&s, nil); err != nil {
		return nil, fmt.Errorf("set address: %w", err)
	}

	udc.GetDescriptorSetup(&s, udc.DescriptorTypeConfiguration, 0, udc.ConfigurationDescriptorSize)
	if data, err = h.Control(&s, nil); err != nil {
		return nil, fmt.Errorf("get configuration descriptor: %w", err)
	}
	var cfg udc.ConfigurationDescriptor
	if err := udc.ParseConfigurationDescriptor(data, &cfg); err != nil {
		return nil, fmt.Errorf("get configuration descriptor: %w", err)
	}
	udc.GetDescriptorSetup(&s, udc.DescriptorTypeConfiguration, 0, cfg.TotalLength)
	if e.Configuration, err = h.Control(&s, nil); err != nil {
		return nil, fmt.Errorf("get configuration descriptor: %w", err)
	}

	udc.GetSetConfigurationSetup(&s, cfg.ConfigurationValue)
	if _, err := h.Control(&s, nil); err != nil {
		return nil, fmt.Errorf("set configuration: %w", err)
	}

	pkg.LogDebug(pkg.ComponentSim, "enumerated",
		"vid", e.Device.VendorID,
		"pid", e.Device.ProductID,
		"address", address)
	return e, nil
}

// Address returns the device address programmed into the controller.
func (h *Host) Address() uint8 { return h.core.Address() }
