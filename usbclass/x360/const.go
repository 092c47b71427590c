package x360

// Button bitmasks for the Xbox 360 wired controller input report, per spec
// section 6's bit layout (bit0=DpadUp ... bit15=Y).
const (
	ButtonDPadUp    = 0x0001
	ButtonDPadDown  = 0x0002
	ButtonDPadLeft  = 0x0004
	ButtonDPadRight = 0x0008
	ButtonStart     = 0x0010
	ButtonBack      = 0x0020
	ButtonLThumb    = 0x0040
	ButtonRThumb    = 0x0080
	ButtonLShoulder = 0x0100
	ButtonRShoulder = 0x0200
	ButtonHome      = 0x0400
	// bit 11 is reserved.
	ButtonA = 0x1000
	ButtonB = 0x2000
	ButtonX = 0x4000
	ButtonY = 0x8000
)

// Report message types (the two-byte header on every IN/OUT message).
const (
	msgTypeInput  = 0x00 // IN: controller state
	msgTypeRumble = 0x00 // OUT: rumble (disambiguated from input by direction + length)
	msgTypeLED    = 0x01 // OUT: LED animation
)

// Message lengths, including the two-byte header.
const (
	inputReportLen = 20
	rumbleMsgLen   = 8
	ledMsgLen      = 3
)

// LED animation codes (spec section 3/6), sent in the single animation byte
// of the 3-byte LED OUT message.
const (
	LEDOff = iota
	LEDBlinking
	LEDFlashOnSlot1
	LEDFlashOnSlot2
	LEDFlashOnSlot3
	LEDFlashOnSlot4
	LEDSlot1On
	LEDSlot2On
	LEDSlot3On
	LEDSlot4On
	LEDRotating
	LEDSectionBlink
	LEDSlowBlink
	LEDAlternating
	_ // 0x0e unused
	LEDFastBlink
)

// Vendor control request: bRequest 0x01 is the only one this driver answers.
const vendorRequest = 0x01

// wValue selectors for the vendor request, keyed by recipient — the open
// question pinned by spec section 9: X360_HANDLE_RUMBLE (interface) and
// X360_HANDLE_SERIAL (device) share wValue 0x0000, disambiguated only by
// bmRequestType's recipient field.
const (
	wValueRumbleCapability = 0x0000 // recipient = interface
	wValueInputCapability  = 0x0100 // recipient = interface
	wValueSerialNumber     = 0x0000 // recipient = device
)

// The unofficial XInput interface triple.
const (
	InterfaceClass    = 0xFF
	InterfaceSubClass = 0x5D
	InterfaceProtocol = 0x01
)

// ClassSpecificDescriptorType is the XInput class-specific descriptor (0x21),
// treated as an opaque blob by this driver.
const ClassSpecificDescriptorType = 0x21
