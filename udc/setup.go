package udc

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softudc/pkg"
)

// Standard request codes (USB 2.0 Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// Feature selectors (USB 2.0 Table 9-6).
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
)

// bmRequestType fields.
const (
	RequestTypeDirectionMask = 0x80
	RequestTypeTypeMask      = 0x60
	RequestTypeRecipientMask = 0x1F

	RequestDirectionHostToDevice = 0x00
	RequestDirectionDeviceToHost = 0x80

	RequestTypeStandard = 0x00
	RequestTypeClass    = 0x20
	RequestTypeVendor   = 0x40

	RequestRecipientDevice    = 0x00
	RequestRecipientInterface = 0x01
	RequestRecipientEndpoint  = 0x02
)

// SetupPacketSize is the size of a SETUP packet in bytes.
const SetupPacketSize = 8

// SetupPacket is the 8-byte SETUP stage of a control transfer.
type SetupPacket struct {
	RequestType uint8  // bmRequestType
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength
}

// ParseSetupPacket decodes the first 8 bytes of data into out.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return fmt.Errorf("%w: setup packet is %d bytes", pkg.ErrInvalidArgument, len(data))
	}
	*out = SetupPacket{
		RequestType: data[0],
		Request:     data[1],
		Value:       binary.LittleEndian.Uint16(data[2:]),
		Index:       binary.LittleEndian.Uint16(data[4:]),
		Length:      binary.LittleEndian.Uint16(data[6:]),
	}
	return nil
}

// MarshalTo encodes the packet into buf and returns 8, or 0 if buf is
// too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0], buf[1] = s.RequestType, s.Request
	binary.LittleEndian.PutUint16(buf[2:], s.Value)
	binary.LittleEndian.PutUint16(buf[4:], s.Index)
	binary.LittleEndian.PutUint16(buf[6:], s.Length)
	return SetupPacketSize
}

// Direction returns the direction bit of bmRequestType, which is also the
// direction bit of the data stage endpoint address.
func (s *SetupPacket) Direction() uint8 { return s.RequestType & RequestTypeDirectionMask }

// Type returns the standard/class/vendor field of bmRequestType.
func (s *SetupPacket) Type() uint8 { return s.RequestType & RequestTypeTypeMask }

// Recipient returns the recipient field of bmRequestType.
func (s *SetupPacket) Recipient() uint8 { return s.RequestType & RequestTypeRecipientMask }

// Predicates over bmRequestType.
func (s *SetupPacket) IsDeviceToHost() bool       { return s.Direction() == RequestDirectionDeviceToHost }
func (s *SetupPacket) IsHostToDevice() bool       { return s.Direction() == RequestDirectionHostToDevice }
func (s *SetupPacket) IsStandard() bool           { return s.Type() == RequestTypeStandard }
func (s *SetupPacket) IsVendor() bool             { return s.Type() == RequestTypeVendor }
func (s *SetupPacket) IsDeviceRecipient() bool    { return s.Recipient() == RequestRecipientDevice }
func (s *SetupPacket) IsInterfaceRecipient() bool { return s.Recipient() == RequestRecipientInterface }

// DescriptorType and DescriptorIndex split wValue of GET_DESCRIPTOR.
func (s *SetupPacket) DescriptorType() uint8  { return uint8(s.Value >> 8) }
func (s *SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value) }

// InterfaceNumber returns wIndex as an interface number.
func (s *SetupPacket) InterfaceNumber() uint8 { return uint8(s.Index) }

// EndpointAddress returns wIndex as an endpoint address, direction included.
func (s *SetupPacket) EndpointAddress() uint8 { return uint8(s.Index) }

// EndpointNumber returns wIndex as an endpoint number.
func (s *SetupPacket) EndpointNumber() uint8 { return uint8(s.Index & 0x0F) }

func requestName(s *SetupPacket) string {
	switch s.Type() {
	case RequestTypeClass:
		return fmt.Sprintf("CLASS_0x%02X", s.Request)
	case RequestTypeVendor:
		return fmt.Sprintf("VENDOR_0x%02X", s.Request)
	}
	switch s.Request {
	case RequestGetStatus:
		return "GET_STATUS"
	case RequestClearFeature:
		return "CLEAR_FEATURE"
	case RequestSetFeature:
		return "SET_FEATURE"
	case RequestSetAddress:
		return "SET_ADDRESS"
	case RequestGetDescriptor:
		return "GET_DESCRIPTOR"
	case RequestGetConfiguration:
		return "GET_CONFIGURATION"
	case RequestSetConfiguration:
		return "SET_CONFIGURATION"
	case RequestGetInterface:
		return "GET_INTERFACE"
	case RequestSetInterface:
		return "SET_INTERFACE"
	}
	return fmt.Sprintf("REQUEST_0x%02X", s.Request)
}

// String formats the packet for debug logs, e.g.
// "GET_DESCRIPTOR IN device wValue=0x0302 wIndex=0x0000 wLength=255".
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	recip := "device"
	switch s.Recipient() {
	case RequestRecipientDevice:
	case RequestRecipientInterface:
		recip = "interface"
	case RequestRecipientEndpoint:
		recip = "endpoint"
	default:
		recip = "other"
	}
	return fmt.Sprintf("%s %s %s wValue=0x%04X wIndex=0x%04X wLength=%d",
		requestName(s), dir, recip, s.Value, s.Index, s.Length)
}

// The builders below fill out a request as a host issues it. The simulated
// host, the CLI and the tests use them.

func (s *SetupPacket) set(requestType, request uint8, value, index, length uint16) {
	*s = SetupPacket{requestType, request, value, index, length}
}

const (
	stdIn  = RequestDirectionDeviceToHost | RequestTypeStandard
	stdOut = RequestDirectionHostToDevice | RequestTypeStandard
)

// GetDescriptorSetup fills out as GET_DESCRIPTOR.
func GetDescriptorSetup(out *SetupPacket, descType, descIndex uint8, length uint16) {
	out.set(stdIn|RequestRecipientDevice, RequestGetDescriptor, uint16(descType)<<8|uint16(descIndex), 0, length)
}

// GetSetAddressSetup fills out as SET_ADDRESS.
func GetSetAddressSetup(out *SetupPacket, address uint8) {
	out.set(stdOut|RequestRecipientDevice, RequestSetAddress, uint16(address), 0, 0)
}

// GetSetConfigurationSetup fills out as SET_CONFIGURATION.
func GetSetConfigurationSetup(out *SetupPacket, config uint8) {
	out.set(stdOut|RequestRecipientDevice, RequestSetConfiguration, uint16(config), 0, 0)
}

// GetConfigurationSetup fills out as GET_CONFIGURATION.
func GetConfigurationSetup(out *SetupPacket) {
	out.set(stdIn|RequestRecipientDevice, RequestGetConfiguration, 0, 0, 1)
}

// GetStatusSetup fills out as GET_STATUS for recipient and wIndex.
func GetStatusSetup(out *SetupPacket, recipient uint8, index uint16) {
	out.set(stdIn|recipient, RequestGetStatus, 0, index, 2)
}

// GetSetFeatureSetup fills out as SET_FEATURE.
func GetSetFeatureSetup(out *SetupPacket, recipient uint8, feature, index uint16) {
	out.set(stdOut|recipient, RequestSetFeature, feature, index, 0)
}

// GetClearFeatureSetup fills out as CLEAR_FEATURE.
func GetClearFeatureSetup(out *SetupPacket, recipient uint8, feature, index uint16) {
	out.set(stdOut|recipient, RequestClearFeature, feature, index, 0)
}

// GetSetInterfaceSetup fills out as SET_INTERFACE.
func GetSetInterfaceSetup(out *SetupPacket, iface, alt uint8) {
	out.set(stdOut|RequestRecipientInterface, RequestSetInterface, uint16(alt), uint16(iface), 0)
}

// GetInterfaceSetup fills out as GET_INTERFACE.
func GetInterfaceSetup(out *SetupPacket, iface uint8) {
	out.set(stdIn|RequestRecipientInterface, RequestGetInterface, 0, uint16(iface), 1)
}

// VendorSetup fills out as a device-recipient vendor request with a data
// stage of length bytes in direction dir.
func VendorSetup(out *SetupPacket, dir, request uint8, value, length uint16) {
	out.set(dir|RequestTypeVendor|RequestRecipientDevice, request, value, 0, length)
}
