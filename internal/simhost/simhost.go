// Package simhost provides a minimal, synchronous, in-process
// implementation of usbclass.HostStack for the gadgetsim demo CLI.
//
// usbclass.HostStack's own doc comment is explicit that a real
// implementation is an external collaborator (enumeration engine, endpoint
// hardware, SETUP-packet routing) out of scope for this module. Host is
// not that: Transfer completions run synchronously, looped straight back
// into the caller-supplied onXfer hook, instead of asynchronously off real
// hardware. It exists only so the demo CLI can drive the full
// Open/ControlXfer/Xfer protocol end-to-end against the real driver
// packages without a kernel or a physical bus.
package simhost

import (
	"sync"

	"github.com/nullstream/usbxgadget/internal/log"
	"github.com/nullstream/usbxgadget/usbclass"
)

// Host is the demo CLI's stand-in HostStack.
type Host struct {
	trace log.TraceLogger

	mu      sync.Mutex
	claimed map[uint8]bool

	// onXfer simulates completion of a Transfer call. simulate.go wires it
	// to dispatch to whichever class driver owns epAddr.
	onXfer func(rhport uint8, epAddr uint8, result usbclass.XferResult, xferredBytes int)

	LastReply    []byte
	LastAccepted bool
	LastStalled  bool
}

// New constructs a Host. onXfer, if non-nil, is invoked synchronously from
// Transfer to simulate the transfer completing.
func New(trace log.TraceLogger, onXfer func(rhport, epAddr uint8, result usbclass.XferResult, xferredBytes int)) *Host {
	if trace == nil {
		trace = log.NewTrace(nil)
	}
	return &Host{
		trace:   trace,
		claimed: make(map[uint8]bool),
		onXfer:  onXfer,
	}
}

// ClaimEndpoint implements usbclass.HostStack's at-most-one-outstanding
// enforcement point.
func (h *Host) ClaimEndpoint(rhport uint8, epAddr uint8) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed[epAddr] {
		return false
	}
	h.claimed[epAddr] = true
	return true
}

// ReleaseEndpoint frees epAddr without requiring a full Transfer/Xfer
// round-trip.
func (h *Host) ReleaseEndpoint(rhport uint8, epAddr uint8) {
	h.mu.Lock()
	delete(h.claimed, epAddr)
	h.mu.Unlock()
}

// Transfer simulates enqueuing buf on epAddr and immediately completing it.
func (h *Host) Transfer(rhport uint8, epAddr uint8, buf []byte, totalBytes int) bool {
	h.mu.Lock()
	delete(h.claimed, epAddr)
	cb := h.onXfer
	h.mu.Unlock()

	h.trace.Trace(epAddr&0x80 == 0, "DATA", buf[:min(totalBytes, len(buf))])
	if cb != nil {
		cb(rhport, epAddr, usbclass.XferSuccess, totalBytes)
	}
	return true
}

// ControlReply records the bytes a driver answered a SETUP stage with.
func (h *Host) ControlReply(rhport uint8, req usbclass.ControlRequest, data []byte) bool {
	h.trace.Trace(false, "DATA", data)
	h.mu.Lock()
	h.LastReply = append([]byte(nil), data...)
	h.LastAccepted = false
	h.LastStalled = false
	h.mu.Unlock()
	return true
}

// ControlAccept records a zero-length status-stage accept.
func (h *Host) ControlAccept(rhport uint8, req usbclass.ControlRequest) bool {
	h.mu.Lock()
	h.LastReply = nil
	h.LastAccepted = true
	h.LastStalled = false
	h.mu.Unlock()
	return true
}

// StallEndpoint records that epAddr was explicitly stalled.
func (h *Host) StallEndpoint(rhport uint8, epAddr uint8) {
	h.mu.Lock()
	h.LastStalled = true
	h.mu.Unlock()
}
