package hiddrv

// HID report types, used in the high byte of wValue for GET_REPORT/SET_REPORT
// and as the type argument of the get_report/set_report callbacks.
const (
	ReportTypeInput   = 0x01
	ReportTypeOutput  = 0x02
	ReportTypeFeature = 0x03
)

// Protocol modes for GET_PROTOCOL/SET_PROTOCOL.
const (
	ProtocolBoot   = 0x00
	ProtocolReport = 0x01
)

// Standard request: GET_DESCRIPTOR, dispatched here by the high byte of wValue.
const stdRequestGetDescriptor = 0x06

// Class-specific bRequest values (spec section 4.3's dispatch table).
const (
	classGetReport   = 0x01
	classGetIdle     = 0x02
	classGetProtocol = 0x03
	classSetReport   = 0x09
	classSetIdle     = 0x0A
	classSetProtocol = 0x0B
)

// InterfaceClass is the standard USB HID class code this driver binds on,
// regardless of subclass/protocol (spec section 4.3's "Binding").
const InterfaceClass = 0x03
