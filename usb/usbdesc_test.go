package usb_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullstream/usbxgadget/usb"
	"github.com/nullstream/usbxgadget/usbclass/usbclasstest"
)

func TestParseClassInterfaceBlockRoundTrip(t *testing.T) {
	block := usbclasstest.X360InterfaceBlock(2, 0x83, 0x02)

	parsed, err := usb.ParseClassInterfaceBlock(block, len(block))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), parsed.Interface.BInterfaceNumber)
	assert.Equal(t, uint8(0xFF), parsed.Interface.BInterfaceClass)
	assert.True(t, parsed.HasClass)
	assert.Equal(t, uint8(0x21), parsed.ClassDesc.DescriptorType)
	require.Len(t, parsed.Endpoints, 2)
	assert.Equal(t, uint8(0x83), parsed.Endpoints[0].BEndpointAddress)
	assert.Equal(t, uint8(0x02), parsed.Endpoints[1].BEndpointAddress)
	assert.Equal(t, len(block), parsed.Consumed)
}

func TestParseClassInterfaceBlockFailsWhenMaxLenTooSmall(t *testing.T) {
	block := usbclasstest.X360InterfaceBlock(0, 0x81, 0x01)
	_, err := usb.ParseClassInterfaceBlock(block, len(block)-1)
	assert.Error(t, err)
}

func TestParseClassInterfaceBlockFailsOnTruncatedEndpoint(t *testing.T) {
	block := usbclasstest.X360InterfaceBlock(0, 0x81, 0x01)
	truncated := block[:len(block)-3]
	_, err := usb.ParseClassInterfaceBlock(truncated, len(truncated))
	assert.ErrorIs(t, err, usb.ErrShortDescriptor)
}

func TestParseClassInterfaceBlockNoClassDescriptor(t *testing.T) {
	itf := usb.InterfaceDescriptor{BInterfaceNumber: 0, BNumEndpoints: 1, BInterfaceClass: 0x03}
	ep := usb.EndpointDescriptor{BEndpointAddress: 0x81, WMaxPacketSize: 8}

	var buf bytes.Buffer
	itf.Write(&buf)
	ep.Write(&buf)
	b := buf.Bytes()

	parsed, err := usb.ParseClassInterfaceBlock(b, len(b))
	require.NoError(t, err)
	assert.False(t, parsed.HasClass)
	require.Len(t, parsed.Endpoints, 1)
}

func TestDeviceDescriptorBytesLength(t *testing.T) {
	d := usb.DeviceDescriptor{IDVendor: 0x045E, IDProduct: 0x028E, BNumConfigurations: 1}
	b := d.Bytes()
	require.Len(t, b, usb.DeviceDescLen)
	assert.Equal(t, uint8(usb.DeviceDescLen), b[0])
	assert.Equal(t, uint8(usb.DeviceDescType), b[1])
}

func TestEncodeStringDescriptorUTF16LE(t *testing.T) {
	got := usb.EncodeStringDescriptor("Hi")
	want := []byte{6, usb.StringDescType, 'H', 0, 'i', 0}
	assert.Equal(t, want, got)
}
