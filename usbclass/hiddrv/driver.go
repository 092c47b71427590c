// Package hiddrv implements a custom HID class driver exposing the full HID
// control protocol (GET/SET_REPORT, GET/SET_IDLE, GET/SET_PROTOCOL) without
// assuming any fixed report layout. The application supplies the report
// descriptor and every report's bytes; this package never interprets them.
package hiddrv

import (
	"io"
	"log/slog"
	"sync"

	"github.com/nullstream/usbxgadget/usb"
	"github.com/nullstream/usbxgadget/usbclass"
)

// Callbacks are the application hooks named in spec section 6.
// DescriptorReport and GetReport are mandatory: a nil value there always
// stalls the corresponding request. A nil DescriptorPhysical, SetReport, or
// GetIdle (for a non-zero report ID) also stalls its request; a nil SetIdle
// or SetProtocol still accepts the request and updates the stored state; a
// nil ReportIssue means IN failures are dropped and OUT failures re-arm the
// stored buffer; the remaining callbacks are simply skipped when nil.
type Callbacks struct {
	OutEndpointOpened func(itf uint8)

	DescriptorReport   func(itf uint8) []byte
	DescriptorPhysical func(itf uint8, index uint8) []byte

	GetReport   func(itf uint8, id uint8, typ uint8) []byte
	SetReport   func(itf uint8, id uint8, typ uint8) []byte
	GetIdle     func(itf uint8, id uint8) (rate uint8, ok bool)
	SetIdle     func(itf uint8, id uint8, duration uint8)
	SetProtocol func(itf uint8, protocol uint8)

	ReportReceived         func(itf uint8, id uint8, typ uint8, buf []byte, length int)
	ReportSentComplete     func(itf uint8, buf []byte, length int)
	ReportReceivedComplete func(itf uint8, id uint8, typ uint8, buf []byte, length int)
	ReportIssue            func(itf uint8, epAddr uint8, result usbclass.XferResult, xferredBytes int)
}

// Config holds the compile-time configuration options spec section 6 names
// for this driver.
type Config struct {
	MaxInstances int
}

func (c Config) withDefaults() Config {
	if c.MaxInstances <= 0 {
		c.MaxInstances = 1
	}
	return c
}

type pendingSetReport struct {
	armed bool
	id    uint8
	typ   uint8
	buf   []byte
}

// instance is one bound HID interface. Per spec section 3, it is free iff
// both endpoint addresses are zero.
type instance struct {
	rhport uint8
	itfNum uint8
	inEP   uint8
	outEP  uint8

	hidDesc []byte // stashed sub-descriptor bytes, reused verbatim for GET_DESCRIPTOR(HID)

	protocolMode uint8
	idleRate     uint8

	inBuf []byte // borrowed, non-owning; live only until the IN completion fires

	outBuf   []byte // borrowed receive buffer, armed via ReceiveReport
	outArmed bool

	setReport pendingSetReport
}

func (i *instance) free() bool { return i.inEP == 0 && i.outEP == 0 }

func (i *instance) reset() { *i = instance{} }

// Driver is the custom HID class driver's owned state: a fixed-size
// instance array plus the optional application callbacks, mutated only
// from serialized host-stack callback context (spec section 5).
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

// Ready reports whether an interface is bound.
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

func (d *Driver) freeSlotLocked() *instance {
	for i := range d.instances {
		if d.instances[i].free() {
			return &d.instances[i]
		}
	}
	return nil
}

// Open is called by the enumerator when it offers a candidate interface:
// interface descriptor, HID sub-descriptor (type 0x21), then
// bNumEndpoints endpoint descriptors. Binding matches bInterfaceClass =
// 0x03 regardless of subclass/protocol.
func (d *Driver) Open(rhport uint8, descData []byte, maxLen int) (itfNum uint8, err error) {
	block, err := usb.ParseClassInterfaceBlock(descData, maxLen)
	if err != nil {
		return 0, err
	}
	itf := block.Interface
	if itf.BInterfaceClass != InterfaceClass {
		return 0, usbclass.Invariantf("hiddrv: interface %d is not class 0x03 (HID)", itf.BInterfaceNumber)
	}
	if !block.HasClass || block.ClassDesc.DescriptorType != usb.HIDDescType {
		return 0, usbclass.Invariantf("hiddrv: interface %d missing HID sub-descriptor 0x21", itf.BInterfaceNumber)
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
		return 0, usbclass.Invariantf("hiddrv: interface %d has no interrupt IN endpoint", itf.BInterfaceNumber)
	}

	d.mu.Lock()
	slot := d.freeSlotLocked()
	if slot == nil {
		d.mu.Unlock()
		return 0, usbclass.Invariantf("hiddrv: no free instance slots (max %d)", d.cfg.MaxInstances)
	}
	slot.rhport = rhport
	slot.itfNum = itf.BInterfaceNumber
	slot.inEP = inEP
	slot.outEP = outEP
	slot.hidDesc = block.ClassDesc.Bytes()
	slot.protocolMode = ProtocolReport
	resultItf := slot.itfNum
	d.mu.Unlock()

	if outEP != 0 && d.cb.OutEndpointOpened != nil {
		d.cb.OutEndpointOpened(resultItf)
	}
	return resultItf, nil
}

// Reset invalidates every instance bound to rhport.
func (d *Driver) Reset(rhport uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.instances {
		if d.instances[i].rhport == rhport {
			d.instances[i].reset()
		}
	}
}

// SendReport enqueues buf on itf's IN endpoint. buf is borrowed: the
// application must keep it live until ReportSentComplete fires. It returns
// false if itf is not bound or an IN transfer is already outstanding.
func (d *Driver) SendReport(itf uint8, buf []byte) bool {
	d.mu.Lock()
	inst := d.lookupByItfLocked(itf)
	if inst == nil {
		d.mu.Unlock()
		return false
	}
	rhport, inEP := inst.rhport, inst.inEP
	d.mu.Unlock()

	if !d.host.ClaimEndpoint(rhport, inEP) {
		return false
	}

	d.mu.Lock()
	inst.inBuf = buf
	d.mu.Unlock()

	return d.host.Transfer(rhport, inEP, buf, len(buf))
}

// ReceiveReport arms an OUT-endpoint transfer into buf, transitioning the
// instance's OUT state machine from UNARMED to ARMED. buf is borrowed: the
// application must keep it live until the completion callback fires.
func (d *Driver) ReceiveReport(itf uint8, buf []byte) bool {
	d.mu.Lock()
	inst := d.lookupByItfLocked(itf)
	if inst == nil || inst.outEP == 0 {
		d.mu.Unlock()
		return false
	}
	rhport, outEP := inst.rhport, inst.outEP
	inst.outBuf = buf
	inst.outArmed = true
	d.mu.Unlock()

	return d.host.Transfer(rhport, outEP, buf, len(buf))
}

// GetProtocol returns the current protocol mode for a bound interface.
func (d *Driver) GetProtocol(itf uint8) (uint8, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst := d.lookupByItfLocked(itf)
	if inst == nil {
		return 0, false
	}
	return inst.protocolMode, true
}

// ControlXfer dispatches standard GET_DESCRIPTOR and the full class-specific
// HID control table, per spec section 4.3. recipient must be interface.
func (d *Driver) ControlXfer(rhport uint8, stage usbclass.Stage, req usbclass.ControlRequest) bool {
	if req.Recipient() != usbclass.RecipientInterface {
		return false
	}

	d.mu.Lock()
	inst := d.lookupByItfLocked(req.IndexLow())
	d.mu.Unlock()
	if inst == nil {
		return false
	}

	switch req.Type() {
	case usbclass.TypeStandard:
		return d.handleStandard(rhport, stage, req, inst)
	case usbclass.TypeClass:
		return d.handleClass(rhport, stage, req, inst)
	}
	return false
}

func (d *Driver) handleStandard(rhport uint8, stage usbclass.Stage, req usbclass.ControlRequest, inst *instance) bool {
	if stage != usbclass.StageSetup || req.BRequest != stdRequestGetDescriptor {
		return false
	}

	switch req.ValueHigh() {
	case usb.HIDDescType:
		d.mu.Lock()
		desc := inst.hidDesc
		d.mu.Unlock()
		if len(desc) == 0 {
			return false
		}
		return d.host.ControlReply(rhport, req, desc)

	case usb.ReportDescType:
		if d.cb.DescriptorReport == nil {
			return false
		}
		report := d.cb.DescriptorReport(inst.itfNum)
		if len(report) == 0 {
			return false
		}
		return d.host.ControlReply(rhport, req, report)

	case physicalDescType:
		if d.cb.DescriptorPhysical == nil {
			return false
		}
		phys := d.cb.DescriptorPhysical(inst.itfNum, req.ValueLow())
		if phys == nil {
			return false
		}
		return d.host.ControlReply(rhport, req, phys)
	}
	return false
}

// physicalDescType is the standard HID physical descriptor type (0x23),
// requested via GET_DESCRIPTOR but not otherwise modeled by this package.
const physicalDescType = 0x23

func (d *Driver) handleClass(rhport uint8, stage usbclass.Stage, req usbclass.ControlRequest, inst *instance) bool {
	switch req.BRequest {
	case classGetReport:
		if stage != usbclass.StageSetup || d.cb.GetReport == nil {
			return false
		}
		buf := d.cb.GetReport(inst.itfNum, req.ValueLow(), req.ValueHigh())
		if buf == nil {
			return false
		}
		return d.host.ControlReply(rhport, req, buf)

	case classSetReport:
		return d.handleSetReport(rhport, stage, req, inst)

	case classGetIdle:
		if stage != usbclass.StageSetup {
			return false
		}
		id := req.ValueLow()
		if id == 0 {
			d.mu.Lock()
			rate := inst.idleRate
			d.mu.Unlock()
			return d.host.ControlReply(rhport, req, []byte{rate})
		}
		if d.cb.GetIdle == nil {
			return false
		}
		rate, ok := d.cb.GetIdle(inst.itfNum, id)
		if !ok {
			return false
		}
		return d.host.ControlReply(rhport, req, []byte{rate})

	case classSetIdle:
		if stage != usbclass.StageSetup {
			return false
		}
		id := req.ValueLow()
		duration := req.ValueHigh()
		if id == 0 {
			d.mu.Lock()
			inst.idleRate = duration
			d.mu.Unlock()
		}
		if d.cb.SetIdle != nil {
			d.cb.SetIdle(inst.itfNum, id, duration)
		}
		return d.host.ControlAccept(rhport, req)

	case classGetProtocol:
		if stage != usbclass.StageSetup {
			return false
		}
		d.mu.Lock()
		mode := inst.protocolMode
		d.mu.Unlock()
		return d.host.ControlReply(rhport, req, []byte{mode})

	case classSetProtocol:
		if stage != usbclass.StageSetup {
			return false
		}
		mode := req.ValueLow()
		d.mu.Lock()
		inst.protocolMode = mode
		d.mu.Unlock()
		if d.cb.SetProtocol != nil {
			d.cb.SetProtocol(inst.itfNum, mode)
		}
		return d.host.ControlAccept(rhport, req)
	}
	return false
}

// handleSetReport implements the two-stage SET_REPORT sequence: at SETUP it
// asks the application for a receive buffer and arms the control endpoint's
// data-OUT stage; at ACK it delivers the bytes the host stack wrote into
// that buffer.
func (d *Driver) handleSetReport(rhport uint8, stage usbclass.Stage, req usbclass.ControlRequest, inst *instance) bool {
	switch stage {
	case usbclass.StageSetup:
		if d.cb.SetReport == nil {
			return false
		}
		id, typ := req.ValueLow(), req.ValueHigh()
		buf := d.cb.SetReport(inst.itfNum, id, typ)
		if buf == nil {
			return false
		}
		d.mu.Lock()
		inst.setReport = pendingSetReport{armed: true, id: id, typ: typ, buf: buf}
		d.mu.Unlock()
		return d.host.ControlAccept(rhport, req)

	case usbclass.StageAck:
		d.mu.Lock()
		pending := inst.setReport
		inst.setReport = pendingSetReport{}
		d.mu.Unlock()
		if !pending.armed {
			return false
		}
		if d.cb.ReportReceived != nil {
			d.cb.ReportReceived(inst.itfNum, pending.id, pending.typ, pending.buf, int(req.WLength))
		}
		return true
	}
	return false
}

// Xfer is the transfer-complete callback for both IN and OUT endpoints of a
// HID instance.
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
		inst.inBuf = nil
		d.mu.Unlock()
		switch result {
		case usbclass.XferSuccess:
			if d.cb.ReportSentComplete != nil {
				d.cb.ReportSentComplete(itf, buf, xferredBytes)
			}
		default:
			if d.cb.ReportIssue != nil {
				d.cb.ReportIssue(itf, epAddr, result, xferredBytes)
			}
		}
		return true

	case epAddr == inst.outEP:
		if result != usbclass.XferSuccess {
			outBuf := inst.outBuf
			d.mu.Unlock()
			if d.cb.ReportIssue != nil {
				d.cb.ReportIssue(itf, epAddr, result, xferredBytes)
			} else {
				d.host.Transfer(rhport, epAddr, outBuf, len(outBuf))
			}
			return true
		}

		buf := inst.outBuf
		inst.outBuf = nil
		inst.outArmed = false
		d.mu.Unlock()

		if d.cb.ReportReceivedComplete != nil {
			d.cb.ReportReceivedComplete(itf, 0xFF, ReportTypeOutput, buf, xferredBytes)
		}
		return true
	}

	d.mu.Unlock()
	return false
}
