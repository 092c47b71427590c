// Package usb contains helpers for building and parsing USB descriptors.
package usb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// USB descriptor type constants.
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
	HIDDescType       = 0x21
	ReportDescType    = 0x22
)

// Descriptor lengths in bytes (fixed values from the USB spec).
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
	HIDDescLen       = 9
)

// ErrShortDescriptor is returned by the parsers below when the supplied byte
// stream ends before a declared bLength/bNumEndpoints is satisfied. Per the
// driver's error model this is a caller bug (a malformed descriptor blob),
// not a recoverable protocol condition.
var ErrShortDescriptor = errors.New("usb: descriptor block shorter than declared")

// Descriptor holds all static descriptor/config data for a device: the
// device descriptor, each interface's descriptors, and a string table.
type Descriptor struct {
	Device     DeviceDescriptor
	Interfaces []InterfaceConfig
	Strings    map[uint8]string
}

// InterfaceConfig holds all descriptors for a single interface.
type InterfaceConfig struct {
	Descriptor       InterfaceDescriptor
	ClassDescriptors []ClassSpecificDescriptor
	Endpoints        []EndpointDescriptor
}

// ClassSpecificDescriptor is an opaque class/vendor descriptor (DescriptorType
// 0x21 for XInput/HID, or vendor-private types) that appears between an
// interface descriptor and its endpoints.
type ClassSpecificDescriptor struct {
	DescriptorType uint8
	Payload        Data // payload only, not including bLength/bDescriptorType
}

// Bytes returns the descriptor on the wire: bLength, bDescriptorType, payload.
func (c ClassSpecificDescriptor) Bytes() []byte {
	b := make([]byte, 2+len(c.Payload))
	b[0] = uint8(len(b))
	b[1] = c.DescriptorType
	copy(b[2:], c.Payload)
	return b
}

// EncodeStringDescriptor converts a UTF-8 string to a USB string descriptor.
//
//	Byte 0: bLength (total descriptor length)
//	Byte 1: bDescriptorType (0x03 for string)
//	Bytes 2+: UTF-16LE encoded string
func EncodeStringDescriptor(s string) []byte {
	runes := []rune(s)
	buf := make([]byte, 2+len(runes)*2)
	buf[0] = uint8(len(buf))
	buf[1] = StringDescType
	for i, r := range runes {
		buf[2+i*2] = uint8(r)
		buf[2+i*2+1] = uint8(r >> 8)
	}
	return buf
}

// DeviceDescriptor represents the standard USB device descriptor.
type DeviceDescriptor struct {
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

// Bytes returns the 18-byte wire representation, bLength/bDescriptorType filled in.
func (d DeviceDescriptor) Bytes() []byte {
	var b bytes.Buffer
	b.WriteByte(DeviceDescLen)
	b.WriteByte(DeviceDescType)
	_ = binary.Write(&b, binary.LittleEndian, d.BcdUSB)
	b.WriteByte(d.BDeviceClass)
	b.WriteByte(d.BDeviceSubClass)
	b.WriteByte(d.BDeviceProtocol)
	b.WriteByte(d.BMaxPacketSize0)
	_ = binary.Write(&b, binary.LittleEndian, d.IDVendor)
	_ = binary.Write(&b, binary.LittleEndian, d.IDProduct)
	_ = binary.Write(&b, binary.LittleEndian, d.BcdDevice)
	b.WriteByte(d.IManufacturer)
	b.WriteByte(d.IProduct)
	b.WriteByte(d.ISerialNumber)
	b.WriteByte(d.BNumConfigurations)
	return b.Bytes()
}

// ConfigHeader represents the USB configuration descriptor header (9 bytes).
type ConfigHeader struct {
	WTotalLength        uint16 // patched after the full config blob is built
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8
}

func (h ConfigHeader) Write(b *bytes.Buffer) {
	b.WriteByte(ConfigDescLen)
	b.WriteByte(ConfigDescType)
	_ = binary.Write(b, binary.LittleEndian, h.WTotalLength)
	b.WriteByte(h.BNumInterfaces)
	b.WriteByte(h.BConfigurationValue)
	b.WriteByte(h.IConfiguration)
	b.WriteByte(h.BMAttributes)
	b.WriteByte(h.BMaxPower)
}

// InterfaceDescriptor is the standard 9-byte interface descriptor.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (i InterfaceDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(InterfaceDescLen)
	b.WriteByte(InterfaceDescType)
	b.WriteByte(i.BInterfaceNumber)
	b.WriteByte(i.BAlternateSetting)
	b.WriteByte(i.BNumEndpoints)
	b.WriteByte(i.BInterfaceClass)
	b.WriteByte(i.BInterfaceSubClass)
	b.WriteByte(i.BInterfaceProtocol)
	b.WriteByte(i.IInterface)
}

// parseInterfaceDescriptor reads a 9-byte interface descriptor starting at data[0].
func parseInterfaceDescriptor(data []byte) (InterfaceDescriptor, error) {
	if len(data) < InterfaceDescLen {
		return InterfaceDescriptor{}, ErrShortDescriptor
	}
	if data[1] != InterfaceDescType {
		return InterfaceDescriptor{}, fmt.Errorf("usb: expected interface descriptor, got type 0x%02x", data[1])
	}
	return InterfaceDescriptor{
		BInterfaceNumber:   data[2],
		BAlternateSetting:  data[3],
		BNumEndpoints:      data[4],
		BInterfaceClass:    data[5],
		BInterfaceSubClass: data[6],
		BInterfaceProtocol: data[7],
		IInterface:         data[8],
	}, nil
}

// EndpointDescriptor is the standard 7-byte endpoint descriptor.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

func (e EndpointDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(EndpointDescLen)
	b.WriteByte(EndpointDescType)
	b.WriteByte(e.BEndpointAddress)
	b.WriteByte(e.BMAttributes)
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

func parseEndpointDescriptor(data []byte) (EndpointDescriptor, error) {
	if len(data) < EndpointDescLen {
		return EndpointDescriptor{}, ErrShortDescriptor
	}
	if data[1] != EndpointDescType {
		return EndpointDescriptor{}, fmt.Errorf("usb: expected endpoint descriptor, got type 0x%02x", data[1])
	}
	return EndpointDescriptor{
		BEndpointAddress: data[2],
		BMAttributes:     data[3],
		WMaxPacketSize:   binary.LittleEndian.Uint16(data[4:6]),
		BInterval:        data[6],
	}, nil
}

// IsIN reports whether the endpoint address is the device-to-host direction.
func (e EndpointDescriptor) IsIN() bool { return e.BEndpointAddress&0x80 != 0 }

// Number returns the endpoint number without the direction bit.
func (e EndpointDescriptor) Number() uint8 { return e.BEndpointAddress & 0x0f }

// HIDDescriptor is the HID class descriptor (type 0x21) with one subordinate
// report descriptor (type 0x22).
type HIDDescriptor struct {
	BcdHID            uint16
	BCountryCode      uint8
	BNumDescriptors   uint8
	ClassDescType     uint8 // 0x22 (report)
	WDescriptorLength uint16
}

func (h HIDDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(HIDDescLen)
	b.WriteByte(HIDDescType)
	_ = binary.Write(b, binary.LittleEndian, h.BcdHID)
	b.WriteByte(h.BCountryCode)
	b.WriteByte(h.BNumDescriptors)
	b.WriteByte(h.ClassDescType)
	_ = binary.Write(b, binary.LittleEndian, h.WDescriptorLength)
}

// Bytes returns the 9-byte HID descriptor.
func (h HIDDescriptor) Bytes() []byte {
	var b bytes.Buffer
	h.Write(&b)
	return b.Bytes()
}

// ParsedInterfaceBlock is the result of walking a contiguous
// interface+class-descriptor+endpoints block out of a configuration
// descriptor byte stream, as described in spec section 4.1/4.3: "given a
// packed configuration-descriptor byte stream, recognize class/subclass/
// protocol triples, consume the correct number of trailing bytes".
type ParsedInterfaceBlock struct {
	Interface InterfaceDescriptor
	ClassDesc ClassSpecificDescriptor // zero value if none present
	HasClass  bool
	Endpoints []EndpointDescriptor
	Consumed  int // total bytes consumed from the input slice
}

// ParseClassInterfaceBlock walks data (which must begin with a standard
// interface descriptor) and consumes: the interface descriptor, at most one
// class-specific descriptor, then exactly BNumEndpoints endpoint
// descriptors. It fails without partial binding if the block would exceed
// maxLen, matching the "open() with max_len < expected_block_len fails
// without binding" boundary behavior.
func ParseClassInterfaceBlock(data []byte, maxLen int) (*ParsedInterfaceBlock, error) {
	itf, err := parseInterfaceDescriptor(data)
	if err != nil {
		return nil, err
	}
	pos := InterfaceDescLen
	block := &ParsedInterfaceBlock{Interface: itf}

	if pos < len(data) && pos < maxLen && pos+1 < len(data) && data[pos+1] != EndpointDescType {
		cdLen := int(data[pos])
		cdType := data[pos+1]
		if cdLen < 2 || pos+cdLen > len(data) {
			return nil, ErrShortDescriptor
		}
		block.ClassDesc = ClassSpecificDescriptor{
			DescriptorType: cdType,
			Payload:        Data(data[pos+2 : pos+cdLen]),
		}
		block.HasClass = true
		pos += cdLen
	}

	for i := 0; i < int(itf.BNumEndpoints); i++ {
		if pos+EndpointDescLen > len(data) {
			return nil, ErrShortDescriptor
		}
		ep, err := parseEndpointDescriptor(data[pos : pos+EndpointDescLen])
		if err != nil {
			return nil, err
		}
		block.Endpoints = append(block.Endpoints, ep)
		pos += EndpointDescLen
	}

	if pos > maxLen {
		return nil, fmt.Errorf("usb: interface block of %d bytes exceeds max_len %d", pos, maxLen)
	}
	block.Consumed = pos
	return block, nil
}
