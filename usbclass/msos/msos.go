// Package msos implements the Microsoft OS 1.0 "zero-driver-install"
// descriptor responder: the magic string descriptor at index 0xEE, and the
// vendor-coded compat-ID / extended-properties feature descriptors that
// follow it. It never touches endpoints; it only answers control requests
// at the SETUP stage (spec section 4.2).
package msos

import (
	"bytes"
	"encoding/binary"

	"github.com/nullstream/usbxgadget/usb"
	"github.com/nullstream/usbxgadget/usbclass"
)

// StringIndex is the fixed string-descriptor index Windows probes for the
// MS OS 1.0 signature.
const StringIndex = 0xEE

const signature = "MSFT100"

// ContainerIDSupported is bit 1 of the OS string descriptor's flags byte.
const ContainerIDSupported = 0x02

// wIndex values Windows sends with the vendor-coded request once it has
// read the OS string descriptor.
const (
	IndexCompatID           = 0x0004
	IndexExtendedProperties = 0x0005
)

// CompatIDFunction is one 24-byte function section of a compat-ID feature
// descriptor: the interface it binds and the driver compatible ID Windows
// should auto-select.
type CompatIDFunction struct {
	FirstInterfaceNumber uint8
	CompatibleID         string // up to 8 bytes, NUL-padded, e.g. "XUSB10"
	SubCompatibleID      string // up to 8 bytes, NUL-padded
}

func padTo8(s string) []byte {
	b := make([]byte, 8)
	copy(b, s)
	return b
}

func (f CompatIDFunction) bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(f.FirstInterfaceNumber)
	b.WriteByte(0x01) // reserved, always 1
	b.Write(padTo8(f.CompatibleID))
	b.Write(padTo8(f.SubCompatibleID))
	b.Write(make([]byte, 6)) // reserved
	return b.Bytes()
}

// CustomProperty is one custom-property section of an extended-properties
// feature descriptor.
type CustomProperty struct {
	DataType uint32
	Name     string // encoded UTF-16LE, NUL-terminated
	Data     []byte
}

func (p CustomProperty) bytes() []byte {
	nameUTF16 := encodeUTF16LE(p.Name)
	nameUTF16 = append(nameUTF16, 0, 0) // NUL terminator

	var body bytes.Buffer
	_ = binary.Write(&body, binary.LittleEndian, p.DataType)
	_ = binary.Write(&body, binary.LittleEndian, uint16(len(nameUTF16)))
	body.Write(nameUTF16)
	_ = binary.Write(&body, binary.LittleEndian, uint32(len(p.Data)))
	body.Write(p.Data)

	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func encodeUTF16LE(s string) []byte {
	runes := []rune(s)
	b := make([]byte, 0, len(runes)*2)
	for _, r := range runes {
		b = append(b, byte(r), byte(r>>8))
	}
	return b
}

// Provider supplies the feature-descriptor payloads an application wants to
// expose. Either method may return nil to mean "not supported", which the
// responder turns into an unhandled (stall) reply per spec section 4.2.
type Provider interface {
	CompatID() []CompatIDFunction
	ExtendedProperties() []CustomProperty
}

// StringDescriptor builds the 0x12-byte OS string descriptor payload: the
// MSFT100 signature, the vendor code Windows must use for subsequent
// requests, and a flags byte.
func StringDescriptor(vendorCode uint8, flags uint8) []byte {
	body := usb.EncodeStringDescriptor(signature)
	full := append(body, vendorCode, flags)
	full[0] = uint8(len(full))
	return full
}

// Responder answers the vendor-coded compat-ID and extended-properties
// requests Windows issues after reading the OS string descriptor.
type Responder struct {
	VendorCode uint8
	Provider   Provider
}

// ControlXfer handles the SETUP stage of a vendor-type request whose
// bRequest equals r.VendorCode. It returns false (unhandled) for any other
// request, or if the application didn't register a Provider for the
// feature being asked about.
func (r Responder) ControlXfer(rhport uint8, host usbclass.HostStack, stage usbclass.Stage, req usbclass.ControlRequest) bool {
	if stage != usbclass.StageSetup {
		return false
	}
	if req.Type() != usbclass.TypeVendor || req.BRequest != r.VendorCode {
		return false
	}
	if r.Provider == nil {
		return false
	}

	switch req.WIndex {
	case IndexCompatID:
		fns := r.Provider.CompatID()
		if len(fns) == 0 {
			return false
		}
		return host.ControlReply(rhport, req, buildCompatID(fns))
	case IndexExtendedProperties:
		props := r.Provider.ExtendedProperties()
		if len(props) == 0 {
			return false
		}
		return host.ControlReply(rhport, req, buildExtendedProperties(props))
	}
	return false
}

// buildCompatID assembles the 16-byte header plus one 24-byte function
// section per entry (spec section 4.2).
func buildCompatID(fns []CompatIDFunction) []byte {
	var body bytes.Buffer
	for _, fn := range fns {
		body.Write(fn.bytes())
	}

	var out bytes.Buffer
	totalLen := 16 + body.Len()
	_ = binary.Write(&out, binary.LittleEndian, uint32(totalLen))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0x0100)) // bcdVersion
	_ = binary.Write(&out, binary.LittleEndian, uint16(IndexCompatID))
	out.WriteByte(uint8(len(fns))) // bCount
	out.Write(make([]byte, 7))     // reserved
	out.Write(body.Bytes())
	return out.Bytes()
}

// buildExtendedProperties assembles the 10-byte header plus one
// variable-length custom-property section per entry.
func buildExtendedProperties(props []CustomProperty) []byte {
	var body bytes.Buffer
	for _, p := range props {
		body.Write(p.bytes())
	}

	var out bytes.Buffer
	totalLen := 10 + body.Len()
	_ = binary.Write(&out, binary.LittleEndian, uint32(totalLen))
	_ = binary.Write(&out, binary.LittleEndian, uint16(0x0100)) // bcdVersion
	_ = binary.Write(&out, binary.LittleEndian, uint16(IndexExtendedProperties))
	_ = binary.Write(&out, binary.LittleEndian, uint16(len(props))) // wCount
	out.Write(body.Bytes())
	return out.Bytes()
}
