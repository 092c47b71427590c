// Package usbclass provides the shared USB control-transfer types and the
// host-stack seam that the X360, custom-HID, and MS OS 1.0 class drivers are
// written against. The host stack itself (enumeration engine, endpoint
// hardware, SETUP-packet routing) is an external collaborator — out of
// scope per the spec this package implements against — so HostStack is
// intentionally a small interface, not an implementation; see
// usbclass/usbclasstest for the fake used by the driver test suites.
package usbclass

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Direction is the bmRequestType direction bit.
type Direction uint8

const (
	DirOut Direction = iota
	DirIn
)

// RequestType is the bmRequestType type field (bits 6:5).
type RequestType uint8

const (
	TypeStandard RequestType = iota
	TypeClass
	TypeVendor
)

// Recipient is the bmRequestType recipient field (bits 4:0).
type Recipient uint8

const (
	RecipientDevice Recipient = iota
	RecipientInterface
	RecipientEndpoint
	RecipientOther
)

// Stage identifies which phase of a control transfer a ControlXfer callback
// is being invoked for.
type Stage uint8

const (
	StageSetup Stage = iota
	StageData
	StageAck
)

// XferResult is the outcome reported to a driver's Xfer completion callback.
type XferResult uint8

const (
	XferSuccess XferResult = iota
	XferFailed
	XferStalled
)

// ErrInvariant marks a programming-invariant violation per the spec's error
// model (section 7.3): the host stack's Open call offered an interface that
// doesn't satisfy the driver's binding contract, or no free instance slot
// remains for it. A well-behaved host stack should never trigger this;
// callers and tests check for it with errors.Is.
var ErrInvariant = errors.New("usbclass: programming invariant violated")

// Invariantf builds an error wrapping ErrInvariant with a formatted detail.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
}

// ControlRequest is the 8-byte USB SETUP packet, decoded.
type ControlRequest struct {
	BmRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16
}

// ParseControlRequest decodes an 8-byte SETUP packet.
func ParseControlRequest(setup []byte) (ControlRequest, error) {
	if len(setup) != 8 {
		return ControlRequest{}, fmt.Errorf("usbclass: setup packet must be 8 bytes, got %d", len(setup))
	}
	return ControlRequest{
		BmRequestType: setup[0],
		BRequest:      setup[1],
		WValue:        binary.LittleEndian.Uint16(setup[2:4]),
		WIndex:        binary.LittleEndian.Uint16(setup[4:6]),
		WLength:       binary.LittleEndian.Uint16(setup[6:8]),
	}, nil
}

// Direction returns the bmRequestType direction bit.
func (r ControlRequest) Direction() Direction {
	if r.BmRequestType&0x80 != 0 {
		return DirIn
	}
	return DirOut
}

// Type returns the bmRequestType type field.
func (r ControlRequest) Type() RequestType {
	return RequestType((r.BmRequestType >> 5) & 0x03)
}

// Recipient returns the bmRequestType recipient field.
func (r ControlRequest) Recipient() Recipient {
	return Recipient(r.BmRequestType & 0x1f)
}

// ValueHigh/ValueLow split wValue into its two bytes, used pervasively by
// the HID class requests (report type/id) and GET_DESCRIPTOR (type/index).
func (r ControlRequest) ValueHigh() uint8 { return uint8(r.WValue >> 8) }
func (r ControlRequest) ValueLow() uint8  { return uint8(r.WValue & 0xff) }

// IndexLow returns the low byte of wIndex, typically the interface number.
func (r ControlRequest) IndexLow() uint8 { return uint8(r.WIndex & 0xff) }

// HostStack is the minimal callback surface a class driver needs from its
// host environment. A real implementation lives in the host USB device
// stack; usbclass/usbclasstest supplies an in-memory fake for unit tests.
type HostStack interface {
	// ClaimEndpoint marks epAddr busy for rhport. It returns false if the
	// endpoint was already claimed (an outstanding transfer is in flight) —
	// this is the sole enforcement point for the at-most-one-outstanding
	// invariant.
	ClaimEndpoint(rhport uint8, epAddr uint8) bool

	// Transfer enqueues totalBytes from buf (IN) or into buf (OUT) on
	// epAddr. Completion is reported asynchronously to the driver's own
	// Xfer method, never synchronously from this call.
	Transfer(rhport uint8, epAddr uint8, buf []byte, totalBytes int) bool

	// ControlReply answers a SETUP stage with IN data; the host stack owns
	// the subsequent DATA/ACK stages (spec section 4.2: "DATA and ACK
	// stages of a successfully initiated descriptor reply are handled by
	// the stack").
	ControlReply(rhport uint8, req ControlRequest, data []byte) bool

	// ControlAccept sends a zero-length status stage, or — for an OUT
	// request with wLength > 0 — arms the control endpoint to receive
	// wLength bytes of OUT data before the driver's ControlXfer is called
	// again at StageAck.
	ControlAccept(rhport uint8, req ControlRequest) bool

	// StallEndpoint explicitly stalls epAddr. Returning "unhandled" (false)
	// from a driver's dispatch has the same caller-visible effect;
	// StallEndpoint exists for drivers that need to stall after having
	// already started processing a request.
	StallEndpoint(rhport uint8, epAddr uint8)
}
