package hiddrv_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullstream/usbxgadget/usbclass"
	"github.com/nullstream/usbxgadget/usbclass/hiddrv"
	"github.com/nullstream/usbxgadget/usbclass/usbclasstest"
)

func newOpenDriver(t *testing.T, cb hiddrv.Callbacks, outEP uint8) (*hiddrv.Driver, *usbclasstest.HostStack, uint8) {
	t.Helper()
	host := usbclasstest.NewHostStack()
	d := hiddrv.New(hiddrv.Config{}, cb, host, nil)
	block := usbclasstest.HIDInterfaceBlock(0, 0x81, outEP, 40)
	itf, err := d.Open(0, block, len(block))
	require.NoError(t, err)
	return d, host, itf
}

func TestOpenBindsAnySubclassOfHIDClass(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := hiddrv.New(hiddrv.Config{}, hiddrv.Callbacks{}, host, nil)
	block := usbclasstest.HIDInterfaceBlock(0, 0x81, 0, 40)
	block[6], block[7] = 0x01, 0x02 // bInterfaceSubClass = boot, bInterfaceProtocol = mouse

	itf, err := d.Open(0, block, len(block))
	require.NoError(t, err)
	assert.Equal(t, uint8(0), itf)
}

func TestOpenFailsWhenBlockExceedsMaxLen(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := hiddrv.New(hiddrv.Config{}, hiddrv.Callbacks{}, host, nil)
	block := usbclasstest.HIDInterfaceBlock(0, 0x81, 0x01, 40)

	_, err := d.Open(0, block, len(block)-1)
	assert.Error(t, err)
	assert.False(t, d.Ready(0))
}

func TestOpenFailsWithInvariantErrorWhenNoFreeSlots(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := hiddrv.New(hiddrv.Config{MaxInstances: 1}, hiddrv.Callbacks{}, host, nil)
	first := usbclasstest.HIDInterfaceBlock(0, 0x81, 0x01, 40)
	_, err := d.Open(0, first, len(first))
	require.NoError(t, err)

	second := usbclasstest.HIDInterfaceBlock(1, 0x82, 0x02, 40)
	_, err = d.Open(0, second, len(second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, usbclass.ErrInvariant))
}

func TestOpenInvokesOutEndpointOpened(t *testing.T) {
	var opened uint8
	var called bool
	_, _, itf := newOpenDriver(t, hiddrv.Callbacks{
		OutEndpointOpened: func(itf uint8) { called = true; opened = itf },
	}, 0x01)
	assert.True(t, called)
	assert.Equal(t, itf, opened)
}

func TestSendReportDeliversExactBytes(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)
	report := []byte{0x01, 0xAA, 0xBB, 0xCC}
	assert.True(t, d.SendReport(itf, report))

	call, ok := host.LastTransfer(0x81)
	require.True(t, ok)
	assert.Equal(t, report, call.Buf)
}

func TestSendReportFailsWhenIAlreadyOutstanding(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)
	require.True(t, d.SendReport(itf, []byte{0x01}))
	assert.False(t, d.SendReport(itf, []byte{0x02}))

	host.ReleaseEndpoint(0, 0x81)
	assert.True(t, d.SendReport(itf, []byte{0x02}))
}

func TestReceiveReportArmsOUTAndClearsOnCompletion(t *testing.T) {
	var gotBuf []byte
	var gotLen int
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{
		ReportReceivedComplete: func(itf uint8, id uint8, typ uint8, buf []byte, length int) {
			gotBuf = append([]byte(nil), buf...)
			gotLen = length
		},
	}, 0x01)

	buf := make([]byte, 8)
	require.True(t, d.ReceiveReport(itf, buf))

	armed := host.ArmedBuffer(0, 0x01)
	copy(armed, []byte{1, 2, 3, 4})

	assert.True(t, d.Xfer(0, 0x01, usbclass.XferSuccess, 4))
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, gotBuf)
	assert.Equal(t, 4, gotLen)
	assert.Len(t, host.Transfers, 1, "a completed OUT transfer stays unarmed until ReceiveReport is called again")
}

func TestGetReportStallsWhenCallbackReturnsNil(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{
		GetReport: func(itf uint8, id uint8, typ uint8) []byte { return nil },
	}, 0)

	req := usbclass.ControlRequest{BmRequestType: 0xA1, BRequest: 0x01, WValue: 0x0100, WIndex: uint16(itf)}
	assert.False(t, d.ControlXfer(0, usbclass.StageSetup, req))
	assert.Empty(t, host.Replies)
}

func TestGetReportRepliesWithExactBytes(t *testing.T) {
	report := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{
		GetReport: func(itf uint8, id uint8, typ uint8) []byte {
			assert.Equal(t, uint8(hiddrv.ReportTypeInput), typ)
			assert.Equal(t, uint8(0), id)
			return report
		},
	}, 0)

	// Spec section 8 scenario 5: {0xA1, 0x01, wValue=0x0100, wIndex=0, wLength=8}.
	req := usbclass.ControlRequest{BmRequestType: 0xA1, BRequest: 0x01, WValue: 0x0100, WIndex: uint16(itf), WLength: 8}
	assert.True(t, d.ControlXfer(0, usbclass.StageSetup, req))
	require.Len(t, host.Replies, 1)
	assert.Equal(t, report, host.Replies[0].Data)
}

func TestSetReportTwoStageSequence(t *testing.T) {
	recvBuf := make([]byte, 4)
	var receivedID, receivedType uint8
	var receivedLen int
	var receivedBuf []byte

	d, _, itf := newOpenDriver(t, hiddrv.Callbacks{
		SetReport: func(itf uint8, id, typ uint8) []byte { return recvBuf },
		ReportReceived: func(itf uint8, id, typ uint8, buf []byte, length int) {
			receivedID, receivedType = id, typ
			receivedBuf = buf
			receivedLen = length
		},
	}, 0)

	req := usbclass.ControlRequest{BmRequestType: 0x21, BRequest: 0x09, WValue: 0x0203, WIndex: uint16(itf), WLength: 4}
	assert.True(t, d.ControlXfer(0, usbclass.StageSetup, req))

	copy(recvBuf, []byte{0x11, 0x22, 0x33, 0x44})
	assert.True(t, d.ControlXfer(0, usbclass.StageAck, req))

	assert.Equal(t, uint8(0x03), receivedID)
	assert.Equal(t, uint8(0x02), receivedType)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, receivedBuf)
	assert.Equal(t, 4, receivedLen)
}

func TestSetIdleBoundaryValues(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)

	// Spec section 8: wValue=0x0000 -> idle_rate=0 (disable).
	req := usbclass.ControlRequest{BmRequestType: 0x21, BRequest: 0x0A, WValue: 0x0000, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, req))

	getReq := usbclass.ControlRequest{BmRequestType: 0xA1, BRequest: 0x02, WValue: 0x0000, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, getReq))
	require.NotEmpty(t, host.Replies)
	assert.Equal(t, []byte{0x00}, host.Replies[len(host.Replies)-1].Data)

	// wValue=0xFF00 -> idle_rate=0xFF.
	req2 := usbclass.ControlRequest{BmRequestType: 0x21, BRequest: 0x0A, WValue: 0xFF00, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, req2))
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, getReq))
	assert.Equal(t, []byte{0xFF}, host.Replies[len(host.Replies)-1].Data)
}

func TestSetIdle500msMatchesScenario6(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)

	// Spec section 8 scenario 6: {0x21, 0x0A, wValue=0x7D00, wIndex=0}.
	req := usbclass.ControlRequest{BmRequestType: 0x21, BRequest: 0x0A, WValue: 0x7D00, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, req))

	getReq := usbclass.ControlRequest{BmRequestType: 0xA1, BRequest: 0x02, WValue: 0x0000, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, getReq))
	assert.Equal(t, []byte{0x7D}, host.Replies[len(host.Replies)-1].Data)
}

func TestSetProtocolBootPersistsUntilChanged(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)

	setReq := usbclass.ControlRequest{BmRequestType: 0x21, BRequest: 0x0B, WValue: 0x0000, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, setReq))

	getReq := usbclass.ControlRequest{BmRequestType: 0xA1, BRequest: 0x03, WIndex: uint16(itf)}
	require.True(t, d.ControlXfer(0, usbclass.StageSetup, getReq))
	assert.Equal(t, []byte{hiddrv.ProtocolBoot}, host.Replies[len(host.Replies)-1].Data)

	require.True(t, d.ControlXfer(0, usbclass.StageSetup, getReq))
	assert.Equal(t, []byte{hiddrv.ProtocolBoot}, host.Replies[len(host.Replies)-1].Data)
}

func TestGetDescriptorHIDRepliesWithStashedSubDescriptor(t *testing.T) {
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)

	req := usbclass.ControlRequest{BmRequestType: 0x81, BRequest: 0x06, WValue: 0x2100, WIndex: uint16(itf)}
	assert.True(t, d.ControlXfer(0, usbclass.StageSetup, req))
	require.Len(t, host.Replies, 1)
	assert.Equal(t, uint8(0x09), host.Replies[0].Data[0]) // bLength of a HID descriptor
}

func TestGetDescriptorReportDelegatesToApplication(t *testing.T) {
	reportDesc := []byte{0x05, 0x01, 0x09, 0x06, 0xC0}
	d, host, itf := newOpenDriver(t, hiddrv.Callbacks{
		DescriptorReport: func(itf uint8) []byte { return reportDesc },
	}, 0)

	req := usbclass.ControlRequest{BmRequestType: 0x81, BRequest: 0x06, WValue: 0x2200, WIndex: uint16(itf)}
	assert.True(t, d.ControlXfer(0, usbclass.StageSetup, req))
	require.Len(t, host.Replies, 1)
	assert.Equal(t, reportDesc, host.Replies[0].Data)
}

func TestUnknownClassRequestIsUnhandled(t *testing.T) {
	d, _, itf := newOpenDriver(t, hiddrv.Callbacks{}, 0)
	req := usbclass.ControlRequest{BmRequestType: 0x21, BRequest: 0x7F, WIndex: uint16(itf)}
	assert.False(t, d.ControlXfer(0, usbclass.StageSetup, req))
}
