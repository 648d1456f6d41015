package gadget

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Function answers the standard requests the controller core delegates to
// a gadget and tracks the selected configuration.
type Function struct {
	profile Profile
	high    *Descriptors
	full    *Descriptors

	config uint8
	reply  [1]byte

	// Configured runs after configuration 1 has enabled the bulk endpoints.
	Configured func(u *udc.UDC)
}

// NewFunction builds the descriptor sets of p for both speeds.
func NewFunction(p Profile) *Function {
	p.Endpoints = append([]uint8(nil), p.Endpoints...)
	return &Function{
		profile: p,
		high:    p.Build(hal.SpeedHigh),
		full:    p.Build(hal.SpeedFull),
	}
}

// Profile returns the device identity.
func (f *Function) Profile() Profile { return f.profile }

// Config returns the selected configuration value.
func (f *Function) Config() uint8 { return f.config }

// Descriptors returns the descriptor set used at speed.
func (f *Function) Descriptors(speed hal.Speed) *Descriptors {
	if speed == hal.SpeedFull {
		return f.full
	}
	return f.high
}

// Reset forgets the selected configuration. Gadgets call it from Bind.
func (f *Function) Reset() { f.config = 0 }

// Setup handles GET_DESCRIPTOR, GET/SET_CONFIGURATION and
// GET/SET_INTERFACE. Any other request is rejected.
func (f *Function) Setup(u *udc.UDC, s *udc.SetupPacket) error {
	if !s.IsStandard() {
		return pkg.ErrInvalidArgument
	}
	switch s.Request {
	case udc.RequestGetDescriptor:
		if !s.IsDeviceRecipient() || !s.IsDeviceToHost() {
			break
		}
		return f.getDescriptor(u, s)

	case udc.RequestGetConfiguration:
		if !s.IsDeviceRecipient() {
			break
		}
		f.reply[0] = f.config
		return u.Reply(f.reply[:])

	case udc.RequestSetConfiguration:
		if !s.IsDeviceRecipient() || s.Value > 0xFF {
			break
		}
		return f.SetConfig(u, uint8(s.Value))

	case udc.RequestGetInterface:
		if !s.IsInterfaceRecipient() || s.InterfaceNumber() != 0 {
			break
		}
		f.reply[0] = 0
		return u.Reply(f.reply[:])

	case udc.RequestSetInterface:
		if !s.IsInterfaceRecipient() || s.InterfaceNumber() != 0 || s.Value != 0 {
			break
		}
		return nil
	}
	return pkg.ErrInvalidArgument
}

func (f *Function) getDescriptor(u *udc.UDC, s *udc.SetupPacket) error {
	d := f.Descriptors(u.Speed())
	switch s.DescriptorType() {
	case udc.DescriptorTypeDevice:
		return u.Reply(d.Device)
	case udc.DescriptorTypeDeviceQualifier:
		return u.Reply(d.Qualifier)
	case udc.DescriptorTypeConfiguration:
		return u.Reply(d.Configuration)
	case udc.DescriptorTypeOtherSpeedConfig:
		return u.Reply(d.OtherSpeed)
	case udc.DescriptorTypeString:
		i := int(s.DescriptorIndex())
		if i >= len(d.Strings) {
			return fmt.Errorf("%w: string descriptor %d", pkg.ErrInvalidArgument, i)
		}
		return u.Reply(d.Strings[i])
	}
	return fmt.Errorf("%w: descriptor type 0x%02x", pkg.ErrInvalidArgument, s.DescriptorType())
}

// SetConfig selects configuration value. Every bulk endpoint of the
// profile is disabled first, flushing its queue with [pkg.StatusShutdown].
// Configuration 1 then enables the endpoints described for the current
// speed and runs the Configured hook.
func (f *Function) SetConfig(u *udc.UDC, value uint8) error {
	if value > 1 {
		return fmt.Errorf("%w: configuration %d", pkg.ErrInvalidArgument, value)
	}

	d := f.Descriptors(u.Speed())
	for i := range d.Endpoints {
		ep := u.Endpoint(d.Endpoints[i].Number())
		if ep.Enabled() {
			if err := ep.Disable(); err != nil {
				return fmt.Errorf("disable endpoint 0x%02x: %w", ep.Address(), err)
			}
		}
	}
	f.config = 0
	if value == 0 {
		pkg.LogDebug(pkg.ComponentGadget, "unconfigured")
		return nil
	}

	for i := range d.Endpoints {
		desc := &d.Endpoints[i]
		if err := u.Endpoint(desc.Number()).Enable(desc); err != nil {
			return fmt.Errorf("enable endpoint 0x%02x: %w", desc.EndpointAddress, err)
		}
	}
	f.config = value

	pkg.LogInfo(pkg.ComponentGadget, "configured",
		"product", f.profile.Product,
		"speed", d.Speed.String())

	if f.Configured != nil {
		f.Configured(u)
	}
	return nil
}
