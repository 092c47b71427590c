package simhost_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullstream/usbxgadget/internal/simhost"
	"github.com/nullstream/usbxgadget/usbclass"
)

func TestClaimEndpointEnforcesAtMostOneOutstanding(t *testing.T) {
	h := simhost.New(nil, nil)
	assert.True(t, h.ClaimEndpoint(0, 0x81))
	assert.False(t, h.ClaimEndpoint(0, 0x81))

	h.ReleaseEndpoint(0, 0x81)
	assert.True(t, h.ClaimEndpoint(0, 0x81))
}

func TestTransferInvokesOnXferSynchronously(t *testing.T) {
	var gotRhport, gotEp uint8
	var gotResult usbclass.XferResult
	var gotLen int
	h := simhost.New(nil, func(rhport, epAddr uint8, result usbclass.XferResult, xferredBytes int) {
		gotRhport, gotEp, gotResult, gotLen = rhport, epAddr, result, xferredBytes
	})

	buf := []byte{1, 2, 3, 4}
	assert.True(t, h.Transfer(0, 0x01, buf, len(buf)))
	assert.Equal(t, uint8(0), gotRhport)
	assert.Equal(t, uint8(0x01), gotEp)
	assert.Equal(t, usbclass.XferSuccess, gotResult)
	assert.Equal(t, 4, gotLen)
}

func TestTransferReleasesClaimedEndpoint(t *testing.T) {
	h := simhost.New(nil, nil)
	assert.True(t, h.ClaimEndpoint(0, 0x81))
	h.Transfer(0, 0x81, []byte{0}, 1)
	assert.True(t, h.ClaimEndpoint(0, 0x81))
}

func TestControlReplyRecordsData(t *testing.T) {
	h := simhost.New(nil, nil)
	req := usbclass.ControlRequest{BRequest: 0x06}
	assert.True(t, h.ControlReply(0, req, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{0xAA, 0xBB}, h.LastReply)
	assert.False(t, h.LastAccepted)
	assert.False(t, h.LastStalled)
}

func TestControlAcceptClearsPriorReply(t *testing.T) {
	h := simhost.New(nil, nil)
	req := usbclass.ControlRequest{}
	h.ControlReply(0, req, []byte{0x01})
	assert.True(t, h.ControlAccept(0, req))
	assert.Nil(t, h.LastReply)
	assert.True(t, h.LastAccepted)
}

func TestStallEndpointRecordsStall(t *testing.T) {
	h := simhost.New(nil, nil)
	h.StallEndpoint(0, 0x01)
	assert.True(t, h.LastStalled)
}
