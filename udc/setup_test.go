package udc

import (
	"errors"
	"testing"

	"github.com/ardnew/softudc/pkg"
)

func TestParseSetupPacket(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    SetupPacket
		wantErr bool
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00},
			want: SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 64},
		},
		{
			name: "CLEAR_FEATURE halt ep2 out",
			data: []byte{0x02, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00},
			want: SetupPacket{RequestType: 0x02, Request: 0x01, Index: 0x0002},
		},
		{
			name: "vendor SET_EXECADDR",
			data: []byte{0x40, 0x01, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00},
			want: SetupPacket{RequestType: 0x40, Request: 0x01, Length: 4},
		},
		{
			name:    "too short",
			data:    []byte{0x80, 0x06, 0x00},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SetupPacket
			err := ParseSetupPacket(tt.data, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSetupPacket() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, pkg.ErrInvalidArgument) {
					t.Errorf("ParseSetupPacket() error = %v, want %v", err, pkg.ErrInvalidArgument)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseSetupPacket() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetupPacketMarshalRoundTrip(t *testing.T) {
	var in, out SetupPacket
	GetStatusSetup(&in, RequestRecipientEndpoint, 0x81)

	var buf [SetupPacketSize]byte
	if n := in.MarshalTo(buf[:]); n != SetupPacketSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, SetupPacketSize)
	}
	if n := in.MarshalTo(buf[:4]); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}
	if err := ParseSetupPacket(buf[:], &out); err != nil {
		t.Fatalf("ParseSetupPacket() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestSetupPacketFields(t *testing.T) {
	tests := []struct {
		name      string
		setup     SetupPacket
		in        bool
		standard  bool
		vendor    bool
		recipient uint8
		epNum     uint8
	}{
		{"get status ep1 in", SetupPacket{RequestType: 0x82, Index: 0x81}, true, true, false, RequestRecipientEndpoint, 1},
		{"set address", SetupPacket{RequestType: 0x00, Request: RequestSetAddress}, false, true, false, RequestRecipientDevice, 0},
		{"vendor in", SetupPacket{RequestType: 0xC0}, true, false, true, RequestRecipientDevice, 0},
		{"interface out", SetupPacket{RequestType: 0x01, Index: 0x0003}, false, true, false, RequestRecipientInterface, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setup
			if got := s.IsDeviceToHost(); got != tt.in {
				t.Errorf("IsDeviceToHost() = %v, want %v", got, tt.in)
			}
			if got := s.IsHostToDevice(); got == tt.in {
				t.Errorf("IsHostToDevice() = %v, want %v", got, !tt.in)
			}
			if got := s.IsStandard(); got != tt.standard {
				t.Errorf("IsStandard() = %v, want %v", got, tt.standard)
			}
			if got := s.IsVendor(); got != tt.vendor {
				t.Errorf("IsVendor() = %v, want %v", got, tt.vendor)
			}
			if got := s.Recipient(); got != tt.recipient {
				t.Errorf("Recipient() = %d, want %d", got, tt.recipient)
			}
			if got := s.EndpointNumber(); got != tt.epNum {
				t.Errorf("EndpointNumber() = %d, want %d", got, tt.epNum)
			}
		})
	}
}

func TestSetupPacketString(t *testing.T) {
	tests := []struct {
		build func(*SetupPacket)
		want  string
	}{
		{
			func(s *SetupPacket) { GetDescriptorSetup(s, DescriptorTypeString, 2, 255) },
			"GET_DESCRIPTOR IN device wValue=0x0302 wIndex=0x0000 wLength=255",
		},
		{
			func(s *SetupPacket) { GetClearFeatureSetup(s, RequestRecipientEndpoint, FeatureEndpointHalt, 0x81) },
			"CLEAR_FEATURE OUT endpoint wValue=0x0000 wIndex=0x0081 wLength=0",
		},
		{
			func(s *SetupPacket) { VendorSetup(s, RequestDirectionHostToDevice, 0x01, 0, 4) },
			"VENDOR_0x01 OUT device wValue=0x0000 wIndex=0x0000 wLength=4",
		},
		{
			func(s *SetupPacket) { *s = SetupPacket{RequestType: 0x21, Request: 0x09} },
			"CLASS_0x09 OUT interface wValue=0x0000 wIndex=0x0000 wLength=0",
		},
		{
			func(s *SetupPacket) { *s = SetupPacket{RequestType: 0x83, Request: 0x42} },
			"REQUEST_0x42 IN other wValue=0x0000 wIndex=0x0000 wLength=0",
		},
	}
	for _, tt := range tests {
		var s SetupPacket
		tt.build(&s)
		if got := s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestVendorSetup(t *testing.T) {
	var s SetupPacket
	VendorSetup(&s, RequestDirectionDeviceToHost, 0x00, 0x1234, 4)
	want := SetupPacket{RequestType: 0xC0, Request: 0x00, Value: 0x1234, Length: 4}
	if s != want {
		t.Fatalf("VendorSetup() = %+v, want %+v", s, want)
	}
	if !s.IsVendor() || !s.IsDeviceRecipient() || !s.IsDeviceToHost() {
		t.Errorf("VendorSetup() fields: vendor=%v device=%v in=%v", s.IsVendor(), s.IsDeviceRecipient(), s.IsDeviceToHost())
	}
}
