package cmd

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/nullstream/usbxgadget/internal/log"
	"github.com/nullstream/usbxgadget/internal/simhost"
	"github.com/nullstream/usbxgadget/usb"
	"github.com/nullstream/usbxgadget/usb/hid"
	"github.com/nullstream/usbxgadget/usbclass"
	"github.com/nullstream/usbxgadget/usbclass/hiddrv"
	"github.com/nullstream/usbxgadget/usbclass/msos"
	"github.com/nullstream/usbxgadget/usbclass/x360"
)

// X360Config exposes the X360 driver's compile-time configuration options
// (spec section 6) as CLI flags/config-file fields. RumbleCapability and
// InputCapability are not configurable: they come from the package-level
// values defaultRumbleCapability and defaultInputCapability below.
type X360Config struct {
	MaxInstances  int    `help:"Maximum number of bound X360 interfaces." default:"1"`
	InBufferSize  int    `help:"Input-report buffer size in bytes." default:"20"`
	OutBufferSize int    `help:"Rumble/LED OUT buffer size in bytes." default:"8"`
	Serial        string `help:"Serial number string returned by the vendor SERIAL_NUMBER request." default:"USBXGADGET0001"`
}

// HIDConfig exposes the custom HID driver's compile-time configuration.
type HIDConfig struct {
	MaxInstances int `help:"Maximum number of bound HID interfaces." default:"1"`
}

// MSOSConfig exposes the Microsoft OS 1.0 responder's configuration.
type MSOSConfig struct {
	VendorCode uint8 `help:"Vendor code Windows must echo back on compat-ID/extended-properties requests." default:"32"`
}

// MonitorConfig exposes the optional encrypted report-monitor channel's
// configuration (spec.md is silent on this; see SPEC_FULL.md section F).
type MonitorConfig struct {
	Addr string `help:"Listen address for the encrypted report-monitor channel. Empty disables it." default:""`
	Key  string `help:"Passphrase the monitor channel's session key is derived from." default:""`
}

// Simulate drives a scripted enumeration and traffic exchange against the
// real X360, custom-HID, and MS OS 1.0 responder packages over an
// in-process simhost.Host, printing what each stage does. It is a thin
// demo/test harness (SPEC_FULL.md section Non-goals), not a USB-IP server.
type Simulate struct {
	X360    X360Config    `embed:"" prefix:"x360."`
	HID     HIDConfig     `embed:"" prefix:"hid."`
	MSOS    MSOSConfig    `embed:"" prefix:"msos."`
	Monitor MonitorConfig `embed:"" prefix:"monitor."`
	Trace   bool          `help:"Hex-dump every control/data transfer." default:"false"`
}

// defaultRumbleCapability and defaultInputCapability are the compile-time
// capability masks spec.md section 6 names; a real gadget firmware bakes
// these in rather than taking them from a config file.
var (
	defaultRumbleCapability = x360.Rumble{Left: 0xFF, Right: 0xFF}
	defaultInputCapability  = x360.Controls{
		Buttons: 0xFFFF,
		LT:      0xFF, RT: 0xFF,
		LX: -1, LY: -1, RX: -1, RY: -1,
	}
)

// ReportPublisher receives each report the simulation drives through the
// X360 and HID drivers, for the optional monitor channel to fan out.
type ReportPublisher interface {
	PublishX360Report(itf uint8, c x360.Controls)
	PublishHIDReport(itf uint8, reportID uint8, data []byte)
}

const rootPort uint8 = 0

// Run wires up both class drivers and the MS OS responder against a
// simhost.Host, opens one X360 and one HID interface, logs the MS OS string
// descriptor, issues the compat-ID vendor request, and sends one X360 input
// report. It does not drive rumble or LED OUT messages or any HID class
// control request.
func (s *Simulate) Run(logger *slog.Logger, trace log.TraceLogger, publisher ReportPublisher) error {
	if trace == nil {
		trace = log.NewTrace(nil)
	}

	var x360Drv *x360.Driver
	var hidDrv *hiddrv.Driver

	host := simhost.New(trace, func(rhport, epAddr uint8, result usbclass.XferResult, xferredBytes int) {
		if x360Drv != nil && x360Drv.Xfer(rhport, epAddr, result, xferredBytes) {
			return
		}
		if hidDrv != nil {
			hidDrv.Xfer(rhport, epAddr, result, xferredBytes)
		}
	})

	x360Drv = x360.New(x360.Config{
		MaxInstances:     s.X360.MaxInstances,
		InBufferSize:     s.X360.InBufferSize,
		OutBufferSize:    s.X360.OutBufferSize,
		RumbleCapability: defaultRumbleCapability,
		InputCapability:  defaultInputCapability,
		Serial:           s.X360.Serial,
	}, x360.Callbacks{
		ReportComplete: func(itf uint8, buf []byte, xferredBytes int) {
			logger.Debug("x360: input report sent", "itf", itf, "bytes", xferredBytes)
		},
		ReceivedRumble: func(itf uint8, left, right uint8) {
			logger.Info("x360: rumble received", "itf", itf, "left", left, "right", right)
		},
		ReceivedLED: func(itf uint8, animation uint8) {
			logger.Info("x360: LED received", "itf", itf, "animation", animation)
		},
		ReportIssue: func(itf uint8, epAddr uint8, result usbclass.XferResult, xferredBytes int) {
			logger.Warn("x360: transfer issue", "itf", itf, "ep", epAddr, "result", result)
		},
	}, host, logger)

	reportDesc := gamepadReportDescriptor()
	hidDrv = hiddrv.New(hiddrv.Config{MaxInstances: s.HID.MaxInstances}, hiddrv.Callbacks{
		DescriptorReport: func(itf uint8) []byte { return reportDesc },
		GetReport: func(itf uint8, id uint8, typ uint8) []byte {
			return []byte{id, 0x00, 0x00}
		},
		SetReport: func(itf uint8, id uint8, typ uint8) []byte {
			return make([]byte, 3)
		},
		ReportReceived: func(itf uint8, id uint8, typ uint8, buf []byte, length int) {
			logger.Info("hid: SET_REPORT received", "itf", itf, "id", id, "type", typ, "bytes", buf[:length])
			if publisher != nil {
				publisher.PublishHIDReport(itf, id, buf[:length])
			}
		},
		ReportSentComplete: func(itf uint8, buf []byte, length int) {
			logger.Debug("hid: report sent", "itf", itf, "bytes", length)
		},
		ReportReceivedComplete: func(itf uint8, id uint8, typ uint8, buf []byte, length int) {
			logger.Info("hid: OUT report received", "itf", itf, "bytes", buf[:length])
		},
	}, host, logger)

	osResponder := msos.Responder{
		VendorCode: s.MSOS.VendorCode,
		Provider:   gadgetMSOSProvider{},
	}

	x360Itf, err := x360Drv.Open(rootPort, usbxgadgetX360Descriptor(), 64)
	if err != nil {
		return fmt.Errorf("simulate: opening x360 interface: %w", err)
	}
	logger.Info("x360 interface bound", "itf", x360Itf)

	hidItf, err := hidDrv.Open(rootPort, usbxgadgetHIDDescriptor(reportDesc), 64)
	if err != nil {
		return fmt.Errorf("simulate: opening hid interface: %w", err)
	}
	logger.Info("hid interface bound", "itf", hidItf)

	logger.Info("MS OS 1.0 string descriptor", "bytes", msos.StringDescriptor(s.MSOS.VendorCode, msos.ContainerIDSupported))

	compatReq := usbclass.ControlRequest{BmRequestType: 0xC1, BRequest: s.MSOS.VendorCode, WIndex: msos.IndexCompatID}
	if osResponder.ControlXfer(rootPort, host, usbclass.StageSetup, compatReq) {
		logger.Info("MS OS compat-ID reply", "bytes", host.LastReply)
	}

	controls := x360.Controls{Buttons: x360.ButtonA, LT: 0, RT: 128, LX: 1000, LY: -1000, RX: 0, RY: 0}
	if !x360Drv.Report(x360Itf, controls) {
		logger.Warn("failed to send x360 input report")
	} else if publisher != nil {
		publisher.PublishX360Report(x360Itf, controls)
	}

	return nil
}

// gamepadReportDescriptor builds a small generic-desktop gamepad report
// descriptor using the usb/hid item DSL, for the custom HID driver demo
// interface (distinct from the dedicated X360 interface).
func gamepadReportDescriptor() []byte {
	r := hid.Report{Items: []hid.Item{
		hid.UsagePage{Page: hid.UsagePageGenericDesktop},
		hid.Usage{Usage: hid.UsageGamePad},
		hid.Collection{Kind: hid.CollectionApplication, Items: []hid.Item{
			hid.ReportID{ID: 1},
			hid.UsagePage{Page: hid.UsagePageButton},
			hid.UsageMinimum{Min: 1},
			hid.UsageMaximum{Max: 8},
			hid.LogicalMinimum{Min: 0},
			hid.LogicalMaximum{Max: 1},
			hid.ReportSize{Bits: 1},
			hid.ReportCount{Count: 8},
			hid.Input{Flags: hid.MainVar},
		}},
	}}
	return r.Bytes()
}

func usbxgadgetX360Descriptor() []byte {
	itf := usb.InterfaceDescriptor{BInterfaceNumber: 0, BNumEndpoints: 2, BInterfaceClass: x360.InterfaceClass, BInterfaceSubClass: x360.InterfaceSubClass, BInterfaceProtocol: x360.InterfaceProtocol}
	class := usb.ClassSpecificDescriptor{DescriptorType: x360.ClassSpecificDescriptorType, Payload: make(usb.Data, 16)}
	eps := []usb.EndpointDescriptor{
		{BEndpointAddress: 0x81, BMAttributes: 0x03, WMaxPacketSize: 32, BInterval: 4},
		{BEndpointAddress: 0x01, BMAttributes: 0x03, WMaxPacketSize: 32, BInterval: 8},
	}
	return buildInterfaceBlock(itf, &class, eps)
}

func usbxgadgetHIDDescriptor(reportDesc []byte) []byte {
	hidDesc := usb.HIDDescriptor{BcdHID: 0x0111, BNumDescriptors: 1, ClassDescType: usb.ReportDescType, WDescriptorLength: uint16(len(reportDesc))}
	hidBytes := hidDesc.Bytes()
	class := usb.ClassSpecificDescriptor{DescriptorType: hidBytes[1], Payload: usb.Data(hidBytes[2:])}
	itf := usb.InterfaceDescriptor{BInterfaceNumber: 1, BNumEndpoints: 1, BInterfaceClass: hiddrv.InterfaceClass}
	eps := []usb.EndpointDescriptor{{BEndpointAddress: 0x82, BMAttributes: 0x03, WMaxPacketSize: 8, BInterval: 10}}
	return buildInterfaceBlock(itf, &class, eps)
}

func buildInterfaceBlock(itf usb.InterfaceDescriptor, class *usb.ClassSpecificDescriptor, eps []usb.EndpointDescriptor) []byte {
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
