package gadget

import (
	"github.com/ardnew/softudc/udc"
	"github.com/ardnew/softudc/udc/hal"
)

// Default identity of the boot gadgets.
const (
	VendorID     = 0x04e8
	ProductID    = 0x1234
	Manufacturer = "Jeff Kent <jeff@jkent.net>"
)

// String descriptor indexes.
const (
	StringLanguages    = 0
	StringManufacturer = 1
	StringProduct      = 2

	numStrings = 3
)

// Profile describes a single-configuration, single-interface vendor
// device with a set of bulk endpoints.
type Profile struct {
	VendorID      uint16
	ProductID     uint16
	DeviceVersion uint16
	Manufacturer  string
	Product       string

	// Endpoints lists the bulk endpoint addresses in interface order.
	Endpoints []uint8
}

// NewProfile returns the default identity with product name and bulk
// endpoint addresses eps.
func NewProfile(product string, eps ...uint8) Profile {
	return Profile{
		VendorID:     VendorID,
		ProductID:    ProductID,
		Manufacturer: Manufacturer,
		Product:      product,
		Endpoints:    eps,
	}
}

// Descriptors is the serialized descriptor set of a profile for one bus
// speed.
type Descriptors struct {
	Speed hal.Speed

	Device        []byte
	Qualifier     []byte
	Configuration []byte // configuration, interface and endpoints
	OtherSpeed    []byte // the other speed's set, typed OTHER_SPEED_CONFIG

	Endpoints []udc.EndpointDescriptor
	Strings   [][]byte
}

// Build serializes p for speed. Any speed other than full is treated as
// high speed.
func (p *Profile) Build(speed hal.Speed) *Descriptors {
	if speed != hal.SpeedFull {
		speed = hal.SpeedHigh
	}
	other := hal.SpeedFull
	if speed == hal.SpeedFull {
		other = hal.SpeedHigh
	}

	d := &Descriptors{
		Speed:         speed,
		Device:        make([]byte, udc.DeviceDescriptorSize),
		Qualifier:     make([]byte, udc.QualifierDescriptorSize),
		Configuration: p.configuration(speed, udc.DescriptorTypeConfiguration),
		OtherSpeed:    p.configuration(other, udc.DescriptorTypeOtherSpeedConfig),
		Endpoints:     p.endpoints(speed),
	}

	dev := udc.DeviceDescriptor{
		USBVersion:        udc.USBVersion20,
		MaxPacketSize0:    uint8(udc.EP0MaxPacket(speed)),
		VendorID:          p.VendorID,
		ProductID:         p.ProductID,
		DeviceVersion:     p.DeviceVersion,
		ManufacturerIndex: StringManufacturer,
		ProductIndex:      StringProduct,
		NumConfigurations: 1,
	}
	dev.MarshalTo(d.Device)

	// The qualifier describes the device at the speed not in use.
	qual := dev.Qualifier(uint8(udc.EP0MaxPacket(other)))
	qual.MarshalTo(d.Qualifier)

	d.Strings = make([][]byte, numStrings)
	d.Strings[StringLanguages] = stringDescriptor(func(b []byte) int {
		return udc.LanguageDescriptorTo(b, udc.LangIDUSEnglish)
	})
	d.Strings[StringManufacturer] = stringDescriptor(func(b []byte) int {
		return udc.StringDescriptorTo(b, p.Manufacturer)
	})
	d.Strings[StringProduct] = stringDescriptor(func(b []byte) int {
		return udc.StringDescriptorTo(b, p.Product)
	})
	return d
}

func stringDescriptor(marshal func([]byte) int) []byte {
	var buf [255]byte
	n := marshal(buf[:])
	return append([]byte(nil), buf[:n]...)
}

func (p *Profile) endpoints(speed hal.Speed) []udc.EndpointDescriptor {
	mps := udc.BulkMaxPacket(speed)
	eps := make([]udc.EndpointDescriptor, len(p.Endpoints))
	for i, addr := range p.Endpoints {
		eps[i] = udc.EndpointDescriptor{
			EndpointAddress: addr,
			Attributes:      udc.EndpointTypeBulk,
			MaxPacketSize:   mps,
		}
	}
	return eps
}

func (p *Profile) configuration(speed hal.Speed, typ uint8) []byte {
	eps := p.endpoints(speed)
	total := udc.ConfigurationDescriptorSize + udc.InterfaceDescriptorSize +
		len(eps)*udc.EndpointDescriptorSize
	buf := make([]byte, total)

	cfg := udc.ConfigurationDescriptor{
		DescriptorType:     typ,
		TotalLength:        uint16(total),
		NumInterfaces:      1,
		ConfigurationValue: 1,
		Attributes:         udc.ConfigAttrBusPowered | udc.ConfigAttrSelfPowered,
	}
	n := cfg.MarshalTo(buf)

	iface := udc.InterfaceDescriptor{
		NumEndpoints:   uint8(len(eps)),
		InterfaceClass: udc.ClassVendor,
	}
	n += iface.MarshalTo(buf[n:])

	for i := range eps {
		n += eps[i].MarshalTo(buf[n:])
	}
	return buf
}
