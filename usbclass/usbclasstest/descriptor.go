package usbclasstest

import (
	"bytes"

	"github.com/nullstream/usbxgadget/usb"
)

// InterfaceBlock builds the byte stream usb.ParseClassInterfaceBlock expects:
// a standard interface descriptor, an optional class-specific descriptor,
// then one endpoint descriptor per entry in eps.
func InterfaceBlock(itf usb.InterfaceDescriptor, class *usb.ClassSpecificDescriptor, eps []usb.EndpointDescriptor) []byte {
	itf.BNumEndpoints = uint8(len(eps))

	var buf bytes.Buffer
	itf.Write(&buf)
	if class != nil {
		buf.Write(class.Bytes())
	}
	for _, ep := range eps {
		ep.Write(&buf)
	}
	return buf.Bytes()
}

// X360InterfaceBlock builds a ready-to-Open XInput interface block: the
// 0xFF/0x5D/0x01 triple, an opaque class-specific descriptor with a
// 16-byte zero payload, and interrupt IN (+ optional OUT) endpoints.
func X360InterfaceBlock(itfNum uint8, inEP uint8, outEP uint8) []byte {
	class := usb.ClassSpecificDescriptor{
		DescriptorType: 0x21,
		Payload:        make(usb.Data, 16),
	}
	eps := []usb.EndpointDescriptor{
		{BEndpointAddress: inEP, BMAttributes: 0x03, WMaxPacketSize: 32, BInterval: 4},
	}
	if outEP != 0 {
		eps = append(eps, usb.EndpointDescriptor{BEndpointAddress: outEP, BMAttributes: 0x03, WMaxPacketSize: 32, BInterval: 8})
	}
	return InterfaceBlock(usb.InterfaceDescriptor{
		BInterfaceNumber:   itfNum,
		BInterfaceClass:    0xFF,
		BInterfaceSubClass: 0x5D,
		BInterfaceProtocol: 0x01,
	}, &class, eps)
}

// HIDInterfaceBlock builds a ready-to-Open custom HID interface block: class
// 0x03, a HID sub-descriptor pointing at a report descriptor of
// reportDescLen bytes, and interrupt IN (+ optional OUT) endpoints.
func HIDInterfaceBlock(itfNum uint8, inEP uint8, outEP uint8, reportDescLen int) []byte {
	hidDesc := usb.HIDDescriptor{
		BcdHID:            0x0111,
		BNumDescriptors:   1,
		ClassDescType:     usb.ReportDescType,
		WDescriptorLength: uint16(reportDescLen),
	}
	hidBytes := hidDesc.Bytes()
	class := usb.ClassSpecificDescriptor{
		DescriptorType: hidBytes[1],
		Payload:        usb.Data(hidBytes[2:]),
	}
	eps := []usb.EndpointDescriptor{
		{BEndpointAddress: inEP, BMAttributes: 0x03, WMaxPacketSize: 8, BInterval: 10},
	}
	if outEP != 0 {
		eps = append(eps, usb.EndpointDescriptor{BEndpointAddress: outEP, BMAttributes: 0x03, WMaxPacketSize: 8, BInterval: 10})
	}
	return InterfaceBlock(usb.InterfaceDescriptor{
		BInterfaceNumber:   itfNum,
		BInterfaceClass:    0x03,
		BInterfaceSubClass: 0x00,
		BInterfaceProtocol: 0x00,
	}, &class, eps)
}
