package x360

import "encoding/binary"

// Controls is the 18-byte controls payload of an XInput input report (spec
// section 3/6): button bitmap, two trigger axes, four signed joystick axes,
// and six reserved bytes that are always zero on the wire.
type Controls struct {
	Buttons    uint16
	LT, RT     uint8
	LX, LY     int16
	RX, RY     int16
}

// EncodeReport serializes the 20-byte XInput input report: a two-byte
// {type=0x00, length=0x14} header followed by the controls payload.
func EncodeReport(c Controls) []byte {
	b := make([]byte, inputReportLen)
	b[0] = msgTypeInput
	b[1] = inputReportLen
	binary.LittleEndian.PutUint16(b[2:4], c.Buttons)
	b[4] = c.LT
	b[5] = c.RT
	binary.LittleEndian.PutUint16(b[6:8], uint16(c.LX))
	binary.LittleEndian.PutUint16(b[8:10], uint16(c.LY))
	binary.LittleEndian.PutUint16(b[10:12], uint16(c.RX))
	binary.LittleEndian.PutUint16(b[12:14], uint16(c.RY))
	// bytes 14-19 stay zero (reserved).
	return b
}

// DecodeReport is the inverse of EncodeReport, used by round-trip tests.
// It does not validate the {type, length} header bytes.
func DecodeReport(b []byte) Controls {
	var c Controls
	c.Buttons = binary.LittleEndian.Uint16(b[2:4])
	c.LT = b[4]
	c.RT = b[5]
	c.LX = int16(binary.LittleEndian.Uint16(b[6:8]))
	c.LY = int16(binary.LittleEndian.Uint16(b[8:10]))
	c.RX = int16(binary.LittleEndian.Uint16(b[10:12]))
	c.RY = int16(binary.LittleEndian.Uint16(b[12:14]))
	return c
}

// Rumble is the decoded payload of the 8-byte rumble OUT message.
type Rumble struct {
	Left, Right uint8
}

// parseRumble decodes an 8-byte {0x00,0x08,reserved,left,right,0,0,0} message.
func parseRumble(b []byte) Rumble {
	return Rumble{Left: b[3], Right: b[4]}
}

// encodeRumble builds the synthetic rumble message returned by the
// rumble-capability vendor query (spec section 4.1), carrying the
// compile-time capability mask rather than live motor state.
func encodeRumble(r Rumble) []byte {
	return []byte{msgTypeRumble, rumbleMsgLen, 0x00, r.Left, r.Right, 0, 0, 0}
}

// parseLED decodes the single animation byte of a 3-byte LED OUT message.
func parseLED(b []byte) uint8 { return b[2] }

// isRumbleMsg reports whether an 8-byte OUT transfer is shaped like the
// rumble message per spec section 4.1's classification rule.
func isRumbleMsg(transferred int, b []byte) bool {
	return transferred == rumbleMsgLen && len(b) >= 2 && b[0] == msgTypeRumble && b[1] == rumbleMsgLen
}

// isLEDMsg reports whether a 3-byte OUT transfer is shaped like the LED message.
func isLEDMsg(transferred int, b []byte) bool {
	return transferred == ledMsgLen && len(b) >= 2 && b[0] == msgTypeLED && b[1] == ledMsgLen
}
