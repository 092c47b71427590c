// Package usbclasstest provides an in-memory fake of usbclass.HostStack and
// helpers for synthesizing interface-descriptor byte streams, for use by the
// driver test suites in usbclass/x360, usbclass/hiddrv, and usbclass/msos.
package usbclasstest

import (
	"sync"

	"github.com/nullstream/usbxgadget/usbclass"
)

// Reply records a single ControlReply or ControlAccept call.
type Reply struct {
	Req  usbclass.ControlRequest
	Data []byte // nil for a ControlAccept (status-only) call
}

// HostStack is a fake usbclass.HostStack that records every call instead of
// driving real hardware, and lets tests script Transfer's return value per
// endpoint.
type HostStack struct {
	mu sync.Mutex

	claimed map[endpointKey]bool
	fail    map[endpointKey]bool
	rawBufs map[endpointKey][]byte

	Transfers []TransferCall
	Replies   []Reply
	Stalls    []StallCall
}

type endpointKey struct {
	rhport uint8
	ep     uint8
}

// TransferCall records one Transfer invocation, including a copy of the
// buffer contents at the time of the call (buf is often reused afterward).
type TransferCall struct {
	Rhport uint8
	EpAddr uint8
	Buf    []byte
	Total  int
}

// StallCall records one StallEndpoint invocation.
type StallCall struct {
	Rhport uint8
	EpAddr uint8
}

// NewHostStack returns a fake with all endpoints initially unclaimed and
// Transfer scripted to succeed.
func NewHostStack() *HostStack {
	return &HostStack{
		claimed: make(map[endpointKey]bool),
		fail:    make(map[endpointKey]bool),
		rawBufs: make(map[endpointKey][]byte),
	}
}

// FailTransfer makes the next Transfer call on this endpoint report failure,
// for exercising the retry/delegate paths in section 7's error model.
func (h *HostStack) FailTransfer(rhport, epAddr uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail[endpointKey{rhport, epAddr}] = true
}

// ClaimEndpoint implements usbclass.HostStack.
func (h *HostStack) ClaimEndpoint(rhport uint8, epAddr uint8) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := endpointKey{rhport, epAddr}
	if h.claimed[key] {
		return false
	}
	h.claimed[key] = true
	return true
}

// ReleaseEndpoint lets a test simulate completion freeing the endpoint back
// up for another outstanding-transfer check.
func (h *HostStack) ReleaseEndpoint(rhport uint8, epAddr uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.claimed, endpointKey{rhport, epAddr})
}

// Transfer implements usbclass.HostStack. It records the call and reports
// failure exactly once per FailTransfer scheduled on this endpoint.
func (h *HostStack) Transfer(rhport uint8, epAddr uint8, buf []byte, total int) bool {
	h.mu.Lock()
	key := endpointKey{rhport, epAddr}
	failNow := h.fail[key]
	if failNow {
		delete(h.fail, key)
	}
	h.Transfers = append(h.Transfers, TransferCall{
		Rhport: rhport,
		EpAddr: epAddr,
		Buf:    append([]byte(nil), buf[:min(total, len(buf))]...),
		Total:  total,
	})
	h.rawBufs[key] = buf
	h.mu.Unlock()
	return !failNow
}

// ArmedBuffer returns the actual (non-copied) buffer slice most recently
// handed to Transfer for this endpoint, so a test can write simulated
// incoming OUT data into it before driving the driver's Xfer callback.
func (h *HostStack) ArmedBuffer(rhport uint8, epAddr uint8) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rawBufs[endpointKey{rhport, epAddr}]
}

// ControlReply implements usbclass.HostStack.
func (h *HostStack) ControlReply(rhport uint8, req usbclass.ControlRequest, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Replies = append(h.Replies, Reply{Req: req, Data: append([]byte(nil), data...)})
	return true
}

// ControlAccept implements usbclass.HostStack.
func (h *HostStack) ControlAccept(rhport uint8, req usbclass.ControlRequest) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Replies = append(h.Replies, Reply{Req: req, Data: nil})
	return true
}

// StallEndpoint implements usbclass.HostStack.
func (h *HostStack) StallEndpoint(rhport uint8, epAddr uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Stalls = append(h.Stalls, StallCall{Rhport: rhport, EpAddr: epAddr})
}

// LastTransfer returns the most recently recorded Transfer call on epAddr,
// or the zero value and false if none occurred.
func (h *HostStack) LastTransfer(epAddr uint8) (TransferCall, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Transfers) - 1; i >= 0; i-- {
		if h.Transfers[i].EpAddr == epAddr {
			return h.Transfers[i], true
		}
	}
	return TransferCall{}, false
}
