// Package x360 implements the XInput / Xbox 360 gamepad class driver:
// interface binding against the unofficial 0xFF/0x5D/0x01 triple, 20-byte
// input report shaping, rumble/LED OUT dispatch with LED debounce, and the
// vendor control requests XInput hosts issue (rumble/input capability
// queries, serial number). It is written against usbclass.HostStack, never
// against a concrete transport.
package x360

import (
	"io"
	"log/slog"
	"sync"

	"github.com/nullstream/usbxgadget/usb"
	"github.com/nullstream/usbxgadget/usbclass"
)

// Callbacks are the application hooks the spec names as optional. A nil
// callback degrades gracefully per section 7: IN failures are silently
// dropped, LED/rumble notifications are simply not delivered.
type Callbacks struct {
	ReportIssue    func(itf uint8, epAddr uint8, result usbclass.XferResult, xferredBytes int)
	ReportComplete func(itf uint8, buf []byte, xferredBytes int)
	ReceivedLED    func(itf uint8, animation uint8)
	ReceivedRumble func(itf uint8, left, right uint8)
}

// Config holds the compile-time configuration options spec section 6 names
// for this driver.
type Config struct {
	MaxInstances     int
	InBufferSize     int // defaults to 0x14 (one input report)
	OutBufferSize    int // defaults to 0x08 (one rumble message)
	RumbleCapability Rumble
	InputCapability  Controls
	Serial           string
}

func (c Config) withDefaults() Config {
	if c.MaxInstances <= 0 {
		c.MaxInstances = 1
	}
	if c.InBufferSize <= 0 {
		c.InBufferSize = inputReportLen
	}
	if c.OutBufferSize <= 0 {
		c.OutBufferSize = rumbleMsgLen
	}
	return c
}

// instance is one bound XInput interface. Per spec section 3, it is free
// iff both endpoint addresses are zero.
type instance struct {
	rhport  uint8
	itfNum  uint8
	inEP    uint8
	outEP   uint8
	inBuf   []byte
	outBuf  []byte
	lastLED uint8
	ledSet  bool
}

func (i *instance) free() bool { return i.inEP == 0 && i.outEP == 0 }

func (i *instance) reset() { *i = instance{} }

// Driver is the X360 class driver's owned state: a fixed-size instance
// array plus the optional application callbacks, mutated only from
// serialized host-stack callback context (section 5).
type Driver struct {
	cfg    Config
	cb     Callbacks
	host   usbclass.HostStack
	logger *slog.Logger

	mu        sync.Mutex
	instances []instance
}

// New constructs a Driver with cfg.MaxInstances fixed-size instance slots.
func New(cfg Config, cb Callbacks, host usbclass.HostStack, logger *slog.Logger) *Driver {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{
		cfg:       cfg,
		cb:        cb,
		host:      host,
		logger:    logger,
		instances: make([]instance, cfg.MaxInstances),
	}
}

// Ready reports whether an interface is bound and able to accept Report calls.
func (d *Driver) Ready(itf uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupByItfLocked(itf) != nil
}

func (d *Driver) lookupByItfLocked(itf uint8) *instance {
	for i := range d.instances {
		inst := &d.instances[i]
		if inst.free() {
			continue
		}
		if inst.itfNum == itf {
			return inst
		}
	}
	return nil
}

func (d *Driver) lookupByEndpointLocked(rhport uint8, epAddr uint8) *instance {
	for i := range d.instances {
		inst := &d.instances[i]
		if inst.free() || inst.rhport != rhport {
			continue
		}
		if inst.inEP == epAddr || inst.outEP == epAddr {
			return inst
		}
	}
	return nil
}

// Open is called by the enumerator when it offers a candidate interface: a
// byte stream beginning with a standard interface descriptor, for which it
// guarantees at most maxLen bytes belong to this interface's block. Open
// fails without binding anything if the triple doesn't match, the class
// descriptor is missing, no interrupt IN endpoint was found, or the block
// would exceed maxLen.
func (d *Driver) Open(rhport uint8, descData []byte, maxLen int) (itfNum uint8, err error) {
	block, err := usb.ParseClassInterfaceBlock(descData, maxLen)
	if err != nil {
		return 0, err
	}
	itf := block.Interface
	if itf.BInterfaceClass != InterfaceClass || itf.BInterfaceSubClass != InterfaceSubClass || itf.BInterfaceProtocol != InterfaceProtocol {
		return 0, usbclass.Invariantf("x360: interface %d does not match the XInput triple", itf.BInterfaceNumber)
	}
	if !block.HasClass || block.ClassDesc.DescriptorType != ClassSpecificDescriptorType {
		return 0, usbclass.Invariantf("x360: interface %d missing class-specific descriptor 0x21", itf.BInterfaceNumber)
	}

	var inEP, outEP uint8
	for _, ep := range block.Endpoints {
		if ep.IsIN() {
			inEP = ep.BEndpointAddress
		} else {
			outEP = ep.BEndpointAddress
		}
	}
	if inEP == 0 {
		return 0, usbclass.Invariantf("x360: interface %d has no interrupt IN endpoint", itf.BInterfaceNumber)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	slot := d.freeSlotLocked()
	if slot == nil {
		return 0, usbclass.Invariantf("x360: no free instance slots (max %d)", d.cfg.MaxInstances)
	}

	slot.rhport = rhport
	slot.itfNum = itf.BInterfaceNumber
	slot.inEP = inEP
	slot.outEP = outEP
	slot.inBuf = make([]byte, alignUp(d.cfg.InBufferSize, 4))
	if outEP != 0 {
		slot.outBuf = make([]byte, alignUp(d.cfg.OutBufferSize, 4))
		if ok := d.host.Transfer(rhport, outEP, slot.outBuf, len(slot.outBuf)); !ok {
			d.logger.Warn("x360: failed to arm initial OUT transfer", "itf", slot.itfNum)
		}
	}
	return slot.itfNum, nil
}

func (d *Driver) freeSlotLocked() *instance {
	for i := range d.instances {
		if d.instances[i].free() {
			return &d.instances[i]
		}
	}
	return nil
}

func alignUp(n, align int) int {
	if rem := n % align; rem != 0 {
		n += align - rem
	}
	return n
}

// Reset invalidates every instance bound to rhport, per spec section 3's
// "reset-to-zero by reset() on bus reset or cable detach".
func (d *Driver) Reset(rhport uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.instances {
		if d.instances[i].rhport == rhport {
			d.instances[i].reset()
		}
	}
}

// Report serializes controls into a 20-byte input report and enqueues it on
// itf's IN endpoint. It returns false if itf is not bound or if an IN
// transfer is already outstanding — the at-most-one-outstanding guarantee.
func (d *Driver) Report(itf uint8, controls Controls) bool {
	d.mu.Lock()
	inst := d.lookupByItfLocked(itf)
	if inst == nil {
		d.mu.Unlock()
		return false
	}
	rhport, inEP := inst.rhport, inst.inEP
	buf := inst.inBuf
	d.mu.Unlock()

	if !d.host.ClaimEndpoint(rhport, inEP) {
		return false
	}
	copy(buf, EncodeReport(controls))
	return d.host.Transfer(rhport, inEP, buf[:inputReportLen], inputReportLen)
}

// ControlXfer dispatches vendor control requests. Only bRequest 0x01 is
// handled, and only at the SETUP stage — every reply here is a
// device-to-host descriptor-style reply that the host stack completes on
// its own (spec section 4.1/4.2).
func (d *Driver) ControlXfer(rhport uint8, stage usbclass.Stage, req usbclass.ControlRequest) bool {
	if stage != usbclass.StageSetup {
		return false
	}
	if req.Type() != usbclass.TypeVendor || req.BRequest != vendorRequest {
		return false
	}

	d.mu.Lock()
	inst := d.lookupByItfLocked(req.IndexLow())
	d.mu.Unlock()
	if inst == nil {
		return false
	}

	switch req.Recipient() {
	case usbclass.RecipientInterface:
		switch req.WValue {
		case wValueRumbleCapability:
			return d.host.ControlReply(rhport, req, encodeRumble(d.cfg.RumbleCapability))
		case wValueInputCapability:
			return d.host.ControlReply(rhport, req, EncodeReport(d.cfg.InputCapability))
		}
	case usbclass.RecipientDevice:
		if req.WValue == wValueSerialNumber {
			return d.host.ControlReply(rhport, req, []byte(d.cfg.Serial))
		}
	}
	return false
}

// Xfer is the transfer-complete callback for both IN and OUT endpoints of
// an X360 instance.
func (d *Driver) Xfer(rhport uint8, epAddr uint8, result usbclass.XferResult, xferredBytes int) bool {
	d.mu.Lock()
	inst := d.lookupByEndpointLocked(rhport, epAddr)
	if inst == nil {
		d.mu.Unlock()
		return false
	}
	itf := inst.itfNum

	switch {
	case epAddr == inst.inEP:
		buf := inst.inBuf
		d.mu.Unlock()
		if result == usbclass.XferSuccess {
			if d.cb.ReportComplete != nil {
				d.cb.ReportComplete(itf, buf, xferredBytes)
			}
		} else if d.cb.ReportIssue != nil {
			d.cb.ReportIssue(itf, epAddr, result, xferredBytes)
		}
		return true

	case epAddr == inst.outEP:
		if result != usbclass.XferSuccess {
			d.mu.Unlock()
			if d.cb.ReportIssue != nil {
				d.cb.ReportIssue(itf, epAddr, result, xferredBytes)
			} else {
				d.host.Transfer(rhport, epAddr, inst.outBuf, len(inst.outBuf))
			}
			return true
		}
		buf := append([]byte(nil), inst.outBuf[:xferredBytes]...)
		kind, left, right, led := classifyOut(inst, buf)
		outBuf := inst.outBuf
		d.mu.Unlock()

		switch kind {
		case outKindRumble:
			if d.cb.ReceivedRumble != nil {
				d.cb.ReceivedRumble(itf, left, right)
			}
		case outKindLED:
			if d.cb.ReceivedLED != nil {
				d.cb.ReceivedLED(itf, led)
			}
		}
		d.host.Transfer(rhport, epAddr, outBuf, len(outBuf))
		return true
	}

	d.mu.Unlock()
	return false
}

type outKind uint8

const (
	outKindNone outKind = iota
	outKindRumble
	outKindLED
)

// classifyOut decides which OUT message arrived and, for LED messages,
// applies the debounce rule (spec section 4.1/8: two identical LED messages
// in a row must produce exactly one ReceivedLED call). It is called with
// d.mu held because it mutates inst.lastLED.
func classifyOut(inst *instance, buf []byte) (kind outKind, left, right, led uint8) {
	switch {
	case isRumbleMsg(len(buf), buf):
		r := parseRumble(buf)
		return outKindRumble, r.Left, r.Right, 0
	case isLEDMsg(len(buf), buf):
		led := parseLED(buf)
		if inst.ledSet && inst.lastLED == led {
			return outKindNone, 0, 0, 0
		}
		inst.lastLED = led
		inst.ledSet = true
		return outKindLED, 0, 0, led
	}
	return outKindNone, 0, 0, 0
}
