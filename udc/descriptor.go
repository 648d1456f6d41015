package udc

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/ardnew/softudc/pkg"
)

// USB Descriptor Types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice           = 0x01
	DescriptorTypeConfiguration    = 0x02
	DescriptorTypeString           = 0x03
	DescriptorTypeInterface        = 0x04
	DescriptorTypeEndpoint         = 0x05
	DescriptorTypeDeviceQualifier  = 0x06
	DescriptorTypeOtherSpeedConfig = 0x07
)

// ClassVendor is the vendor-specific class code.
const ClassVendor = 0xFF

// Endpoint transfer types (bmAttributes bits 1:0).
const (
	EndpointTypeControl     = 0x00
	EndpointTypeIsochronous = 0x01
	EndpointTypeBulk        = 0x02
	EndpointTypeInterrupt   = 0x03
)

// EndpointDirIn is the direction bit of an endpoint address.
const EndpointDirIn = 0x80

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80 // Reserved, always set
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// USBVersion20 is bcdUSB for USB 2.0.
const USBVersion20 = 0x0200

// Descriptor sizes in bytes.
const (
	DeviceDescriptorSize        = 18
	QualifierDescriptorSize     = 10
	ConfigurationDescriptorSize = 9
	InterfaceDescriptorSize     = 9
	EndpointDescriptorSize      = 7
)

var le = binary.LittleEndian

// putHeader writes bLength and bDescriptorType, reporting whether buf can
// hold size bytes.
func putHeader(buf []byte, size int, typ uint8) bool {
	if len(buf) < size {
		return false
	}
	buf[0], buf[1] = uint8(size), typ
	return true
}

func checkHeader(data []byte, size int, typ uint8) error {
	if len(data) < size {
		return fmt.Errorf("%w: descriptor is %d bytes, want %d", pkg.ErrInvalidArgument, len(data), size)
	}
	if data[1] != typ {
		return fmt.Errorf("%w: descriptor type 0x%02x, want 0x%02x", pkg.ErrInvalidArgument, data[1], typ)
	}
	return nil
}

// DeviceDescriptor is the 18-byte device descriptor.
type DeviceDescriptor struct {
	USBVersion        uint16 // bcdUSB
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16 // bcdDevice
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// MarshalTo encodes d into buf and returns the bytes written, or 0 if buf
// is too small.
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, DeviceDescriptorSize, DescriptorTypeDevice) {
		return 0
	}
	le.PutUint16(buf[2:], d.USBVersion)
	buf[4], buf[5], buf[6], buf[7] = d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol, d.MaxPacketSize0
	le.PutUint16(buf[8:], d.VendorID)
	le.PutUint16(buf[10:], d.ProductID)
	le.PutUint16(buf[12:], d.DeviceVersion)
	buf[14], buf[15], buf[16], buf[17] = d.ManufacturerIndex, d.ProductIndex, d.SerialNumberIndex, d.NumConfigurations
	return DeviceDescriptorSize
}

// ParseDeviceDescriptor decodes a device descriptor into out.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if err := checkHeader(data, DeviceDescriptorSize, DescriptorTypeDevice); err != nil {
		return err
	}
	*out = DeviceDescriptor{
		USBVersion:        le.Uint16(data[2:]),
		DeviceClass:       data[4],
		DeviceSubClass:    data[5],
		DeviceProtocol:    data[6],
		MaxPacketSize0:    data[7],
		VendorID:          le.Uint16(data[8:]),
		ProductID:         le.Uint16(data[10:]),
		DeviceVersion:     le.Uint16(data[12:]),
		ManufacturerIndex: data[14],
		ProductIndex:      data[15],
		SerialNumberIndex: data[16],
		NumConfigurations: data[17],
	}
	return nil
}

// QualifierDescriptor describes the device as it would enumerate at the
// other speed.
type QualifierDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	NumConfigurations uint8
}

// Qualifier returns the qualifier of d for a device whose EP0 max packet
// at the other speed is mps0.
func (d *DeviceDescriptor) Qualifier(mps0 uint8) QualifierDescriptor {
	return QualifierDescriptor{
		USBVersion:        d.USBVersion,
		DeviceClass:       d.DeviceClass,
		DeviceSubClass:    d.DeviceSubClass,
		DeviceProtocol:    d.DeviceProtocol,
		MaxPacketSize0:    mps0,
		NumConfigurations: d.NumConfigurations,
	}
}

// MarshalTo encodes q into buf and returns the bytes written, or 0 if buf
// is too small. bReserved is written as zero.
func (q *QualifierDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, QualifierDescriptorSize, DescriptorTypeDeviceQualifier) {
		return 0
	}
	le.PutUint16(buf[2:], q.USBVersion)
	buf[4], buf[5], buf[6], buf[7] = q.DeviceClass, q.DeviceSubClass, q.DeviceProtocol, q.MaxPacketSize0
	buf[8], buf[9] = q.NumConfigurations, 0
	return QualifierDescriptorSize
}

// ConfigurationDescriptor is the header of a configuration descriptor set.
// DescriptorType selects between a configuration and an other-speed
// configuration; zero means DescriptorTypeConfiguration.
type ConfigurationDescriptor struct {
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8 // 2 mA units
}

// MarshalTo encodes c into buf and returns the bytes written, or 0 if buf
// is too small.
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	typ := c.DescriptorType
	if typ == 0 {
		typ = DescriptorTypeConfiguration
	}
	if !putHeader(buf, ConfigurationDescriptorSize, typ) {
		return 0
	}
	le.PutUint16(buf[2:], c.TotalLength)
	buf[4], buf[5], buf[6] = c.NumInterfaces, c.ConfigurationValue, c.ConfigurationIndex
	buf[7], buf[8] = c.Attributes, c.MaxPower
	return ConfigurationDescriptorSize
}

// ParseConfigurationDescriptor decodes the header of a configuration
// descriptor set.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) error {
	if err := checkHeader(data, ConfigurationDescriptorSize, DescriptorTypeConfiguration); err != nil {
		return err
	}
	*out = ConfigurationDescriptor{
		DescriptorType:     data[1],
		TotalLength:        le.Uint16(data[2:]),
		NumInterfaces:      data[4],
		ConfigurationValue: data[5],
		ConfigurationIndex: data[6],
		Attributes:         data[7],
		MaxPower:           data[8],
	}
	return nil
}

// InterfaceDescriptor is the 9-byte interface descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// MarshalTo encodes i into buf and returns the bytes written, or 0 if buf
// is too small.
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, InterfaceDescriptorSize, DescriptorTypeInterface) {
		return 0
	}
	copy(buf[2:], []byte{
		i.InterfaceNumber, i.AlternateSetting, i.NumEndpoints,
		i.InterfaceClass, i.InterfaceSubClass, i.InterfaceProtocol,
		i.InterfaceIndex,
	})
	return InterfaceDescriptorSize
}

// EndpointDescriptor is the 7-byte endpoint descriptor.
type EndpointDescriptor struct {
	EndpointAddress uint8 // number and direction
	Attributes      uint8 // transfer type in bits 1:0
	MaxPacketSize   uint16
	Interval        uint8
}

func (e *EndpointDescriptor) Number() uint8       { return e.EndpointAddress & 0x0F }
func (e *EndpointDescriptor) IsIn() bool          { return e.EndpointAddress&EndpointDirIn != 0 }
func (e *EndpointDescriptor) TransferType() uint8 { return e.Attributes & 0x03 }

// MarshalTo encodes e into buf and returns the bytes written, or 0 if buf
// is too small.
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if !putHeader(buf, EndpointDescriptorSize, DescriptorTypeEndpoint) {
		return 0
	}
	buf[2], buf[3] = e.EndpointAddress, e.Attributes
	le.PutUint16(buf[4:], e.MaxPacketSize)
	buf[6] = e.Interval
	return EndpointDescriptorSize
}

// ParseEndpointDescriptor decodes an endpoint descriptor into out.
func ParseEndpointDescriptor(data []byte, out *EndpointDescriptor) error {
	if err := checkHeader(data, EndpointDescriptorSize, DescriptorTypeEndpoint); err != nil {
		return err
	}
	*out = EndpointDescriptor{
		EndpointAddress: data[2],
		Attributes:      data[3],
		MaxPacketSize:   le.Uint16(data[4:]),
		Interval:        data[6],
	}
	return nil
}

// maxStringDescriptor is the largest even bLength.
const maxStringDescriptor = 254

// StringDescriptorTo encodes s as a UTF-16LE string descriptor, truncated
// to 126 code units. It returns the bytes written, or 0 if buf is too
// small.
func StringDescriptorTo(buf []byte, s string) int {
	units := utf16.Encode([]rune(s))
	if 2+2*len(units) > maxStringDescriptor {
		units = units[:(maxStringDescriptor-2)/2]
	}
	return putUnits(buf, units)
}

// LanguageDescriptorTo encodes string descriptor zero listing langIDs. It
// returns the bytes written, or 0 if buf is too small.
func LanguageDescriptorTo(buf []byte, langIDs ...uint16) int {
	return putUnits(buf, langIDs)
}

func putUnits(buf []byte, units []uint16) int {
	size := 2 + 2*len(units)
	if !putHeader(buf, size, DescriptorTypeString) {
		return 0
	}
	for i, u := range units {
		le.PutUint16(buf[2+2*i:], u)
	}
	return size
}

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409
