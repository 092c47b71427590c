package x360_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullstream/usbxgadget/usbclass"
	"github.com/nullstream/usbxgadget/usbclass/usbclasstest"
	"github.com/nullstream/usbxgadget/usbclass/x360"
)

func TestReportRoundTrip(t *testing.T) {
	c := x360.Controls{Buttons: x360.ButtonA, LT: 0x12, RT: 0x34, LX: -100, LY: 200, RX: -300, RY: 400}
	got := x360.DecodeReport(x360.EncodeReport(c))
	assert.Equal(t, c, got)
}

func TestEncodeReportButtonA(t *testing.T) {
	// Spec section 8 scenario 2: report(0, {buttons.A=1}) produces this exact
	// 20-byte frame.
	got := x360.EncodeReport(x360.Controls{Buttons: x360.ButtonA})
	want := []byte{
		0x00, 0x14, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, got)
}

func newOpenDriver(t *testing.T, outEP uint8) (*x360.Driver, *usbclasstest.HostStack, uint8) {
	t.Helper()
	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{}, x360.Callbacks{}, host, nil)
	block := usbclasstest.X360InterfaceBlock(0, 0x81, outEP)
	itf, err := d.Open(0, block, len(block))
	require.NoError(t, err)
	return d, host, itf
}

func TestOpenBindsAndArmsOUT(t *testing.T) {
	d, host, itf := newOpenDriver(t, 0x01)
	assert.True(t, d.Ready(itf))
	_, ok := host.LastTransfer(0x01)
	assert.True(t, ok, "Open should arm the initial OUT transfer")
}

func TestOpenFailsWhenBlockExceedsMaxLen(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{}, x360.Callbacks{}, host, nil)
	block := usbclasstest.X360InterfaceBlock(0, 0x81, 0x01)

	_, err := d.Open(0, block, len(block)-1)
	assert.Error(t, err)
	assert.False(t, d.Ready(0))
}

func TestOpenFailsWithInvariantErrorWhenNoFreeSlots(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{MaxInstances: 1}, x360.Callbacks{}, host, nil)
	first := usbclasstest.X360InterfaceBlock(0, 0x81, 0x01)
	_, err := d.Open(0, first, len(first))
	require.NoError(t, err)

	second := usbclasstest.X360InterfaceBlock(1, 0x82, 0x02)
	_, err = d.Open(0, second, len(second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, usbclass.ErrInvariant))
}

func TestReportFailsWhenNotBound(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{}, x360.Callbacks{}, host, nil)
	assert.False(t, d.Report(0, x360.Controls{}))
}

func TestReportDeliversExactBytes(t *testing.T) {
	d, host, itf := newOpenDriver(t, 0)
	assert.True(t, d.Report(itf, x360.Controls{Buttons: x360.ButtonA}))

	call, ok := host.LastTransfer(0x81)
	require.True(t, ok)
	assert.Equal(t, x360.EncodeReport(x360.Controls{Buttons: x360.ButtonA}), call.Buf)
}

func TestReportFailsWhenInAlreadyOutstanding(t *testing.T) {
	d, host, itf := newOpenDriver(t, 0)
	require.True(t, d.Report(itf, x360.Controls{}))
	assert.False(t, d.Report(itf, x360.Controls{}), "a second report before completion must fail")

	host.ReleaseEndpoint(0, 0x81)
	assert.True(t, d.Report(itf, x360.Controls{}), "after completion the endpoint is claimable again")
}

func TestRumbleArrivalNotifiesAndRearms(t *testing.T) {
	var gotLeft, gotRight uint8
	var called bool

	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{}, x360.Callbacks{
		ReceivedRumble: func(itf uint8, left, right uint8) {
			called = true
			gotLeft, gotRight = left, right
		},
	}, host, nil)
	block := usbclasstest.X360InterfaceBlock(0, 0x81, 0x01)
	_, err := d.Open(0, block, len(block))
	require.NoError(t, err)

	// Spec section 8 scenario 3: the host DMAs the rumble bytes into the
	// armed OUT buffer before notifying the driver of completion.
	armed := host.ArmedBuffer(0, 0x01)
	copy(armed, []byte{0x00, 0x08, 0x00, 0x80, 0x40, 0x00, 0x00, 0x00})

	transfersBefore := len(host.Transfers)
	handled := d.Xfer(0, 0x01, usbclass.XferSuccess, 8)
	assert.True(t, handled)
	assert.True(t, called)
	assert.Equal(t, uint8(0x80), gotLeft)
	assert.Equal(t, uint8(0x40), gotRight)

	rearmed := len(host.Transfers) > transfersBefore && host.Transfers[len(host.Transfers)-1].EpAddr == 0x01
	assert.True(t, rearmed, "OUT must be re-armed after a successful rumble delivery")
}

func TestLEDDebounceFiresOnceForRepeatedMessages(t *testing.T) {
	var calls int
	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{}, x360.Callbacks{
		ReceivedLED: func(itf uint8, animation uint8) { calls++ },
	}, host, nil)
	block := usbclasstest.X360InterfaceBlock(0, 0x81, 0x01)
	_, err := d.Open(0, block, len(block))
	require.NoError(t, err)

	armed := host.ArmedBuffer(0, 0x01)
	copy(armed, []byte{0x01, 0x03, 0x06})

	d.Xfer(0, 0x01, usbclass.XferSuccess, 3)
	d.Xfer(0, 0x01, usbclass.XferSuccess, 3)

	assert.Equal(t, 1, calls, "two identical LED messages must fire received_led exactly once")
}

func TestVendorRequestRumbleAndSerialDisambiguatedByRecipient(t *testing.T) {
	host := usbclasstest.NewHostStack()
	d := x360.New(x360.Config{
		RumbleCapability: x360.Rumble{Left: 0xAA, Right: 0xBB},
		Serial:           "ABC123",
	}, x360.Callbacks{}, host, nil)
	block := usbclasstest.X360InterfaceBlock(0, 0x81, 0)
	_, err := d.Open(0, block, len(block))
	require.NoError(t, err)

	ifaceReq := usbclass.ControlRequest{BmRequestType: 0xC1, BRequest: 0x01, WValue: 0x0000, WIndex: 0}
	assert.True(t, d.ControlXfer(0, usbclass.StageSetup, ifaceReq))

	deviceReq := usbclass.ControlRequest{BmRequestType: 0xC0, BRequest: 0x01, WValue: 0x0000, WIndex: 0}
	assert.True(t, d.ControlXfer(0, usbclass.StageSetup, deviceReq))

	require.Len(t, host.Replies, 2)
	assert.NotEqual(t, host.Replies[0].Data, host.Replies[1].Data)
	assert.Equal(t, []byte("ABC123"), host.Replies[1].Data)
}

func TestResetFreesInstances(t *testing.T) {
	d, _, itf := newOpenDriver(t, 0)
	d.Reset(0)
	assert.False(t, d.Ready(itf))
}
