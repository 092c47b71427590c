// Package hid builds HID report descriptors (the byte stream a host parses
// to learn a device's input/output report layout) from a small item DSL,
// rather than hand-assembling byte arrays. The custom HID class driver
// (usbclass/hiddrv) never interprets these bytes itself — per the spec's
// Non-goals it does not parse HID reports — it only stores and replies with
// whatever Report an application builds here.
package hid

import "bytes"

// ItemType is the two-bit HID short-item type field.
type ItemType uint8

const (
	ItemTypeMain ItemType = iota
	ItemTypeGlobal
	ItemTypeLocal
)

// Main item tags.
const (
	tagInput         = 0x8
	tagOutput        = 0x9
	tagCollection    = 0xA
	tagFeature       = 0xB
	tagEndCollection = 0xC
)

// Global item tags.
const (
	tagUsagePage       = 0x0
	tagLogicalMinimum  = 0x1
	tagLogicalMaximum  = 0x2
	tagPhysicalMinimum = 0x3
	tagPhysicalMaximum = 0x4
	tagUnitExponent    = 0x5
	tagUnit            = 0x6
	tagReportSize      = 0x7
	tagReportID        = 0x8
	tagReportCount     = 0x9
)

// Local item tags.
const (
	tagUsage        = 0x0
	tagUsageMinimum = 0x1
	tagUsageMaximum = 0x2
)

// Main item data flags (Input/Output/Feature).
const (
	MainData      = 0x00
	MainConst     = 0x01
	MainArray     = 0x00
	MainVar       = 0x02
	MainAbs       = 0x00
	MainRel       = 0x04
	MainNoWrap    = 0x00
	MainWrap      = 0x08
	MainNullState = 0x40
)

// Common usage pages.
const (
	UsagePageGenericDesktop = 0x01
	UsagePageKeyboard       = 0x07
	UsagePageLEDs           = 0x08
	UsagePageButton         = 0x09
)

// Common usages (Generic Desktop page unless noted).
const (
	UsagePointer  = 0x01
	UsageMouse    = 0x02
	UsageJoystick = 0x04
	UsageGamePad  = 0x05
	UsageKeyboard = 0x06
	UsageX        = 0x30
	UsageY        = 0x31
	UsageZ        = 0x32
	UsageRx       = 0x33
	UsageRy       = 0x34
	UsageRz       = 0x35
)

// Collection kinds.
const (
	CollectionPhysical    = 0x00
	CollectionApplication = 0x01
	CollectionLogical     = 0x02
)

// Item is one element of a HID report descriptor: a concrete field like
// UsagePage, or an AnyItem escape hatch for tags this package does not name.
type Item interface {
	encode(buf *bytes.Buffer)
}

// Data is a raw item payload for AnyItem.
type Data []byte

func writeShortItem(buf *bytes.Buffer, typ ItemType, tag uint8, data []byte) {
	var sizeBits uint8
	switch len(data) {
	case 0:
		sizeBits = 0
	case 1:
		sizeBits = 1
	case 2:
		sizeBits = 2
	case 4:
		sizeBits = 3
	default:
		// Pad odd sizes (notably 3) up to 4 bytes, the next representable size.
		padded := make([]byte, 4)
		copy(padded, data)
		data = padded
		sizeBits = 3
	}
	prefix := sizeBits | uint8(typ)<<2 | tag<<4
	buf.WriteByte(prefix)
	buf.Write(data)
}

func uintBytes(v uint32, n int) []byte {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func minimalUint(v uint32) []byte {
	switch {
	case v <= 0xFF:
		return uintBytes(v, 1)
	case v <= 0xFFFF:
		return uintBytes(v, 2)
	default:
		return uintBytes(v, 4)
	}
}

func minimalInt(v int32) []byte {
	switch {
	case v >= -128 && v <= 127:
		return []byte{byte(int8(v))}
	case v >= -32768 && v <= 32767:
		return uintBytes(uint32(uint16(int16(v))), 2)
	default:
		return uintBytes(uint32(v), 4)
	}
}

// AnyItem emits a raw short item for tags not otherwise named in this
// package (e.g. Push/Pop, Unit, PhysicalMinimum/Maximum).
type AnyItem struct {
	Type ItemType
	Tag  uint8
	Data Data
}

func (a AnyItem) encode(buf *bytes.Buffer) { writeShortItem(buf, a.Type, a.Tag, a.Data) }

// UsagePage sets the current usage page (Global).
type UsagePage struct{ Page uint16 }

func (u UsagePage) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeGlobal, tagUsagePage, minimalUint(uint32(u.Page)))
}

// Usage declares a usage within the current page (Local).
type Usage struct{ Usage uint16 }

func (u Usage) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeLocal, tagUsage, minimalUint(uint32(u.Usage)))
}

// UsageMinimum/UsageMaximum declare a usage range (Local).
type UsageMinimum struct{ Min uint16 }

func (u UsageMinimum) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeLocal, tagUsageMinimum, minimalUint(uint32(u.Min)))
}

type UsageMaximum struct{ Max uint16 }

func (u UsageMaximum) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeLocal, tagUsageMaximum, minimalUint(uint32(u.Max)))
}

// LogicalMinimum/LogicalMaximum set the field's raw value range (Global).
type LogicalMinimum struct{ Min int32 }

func (l LogicalMinimum) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeGlobal, tagLogicalMinimum, minimalInt(l.Min))
}

type LogicalMaximum struct{ Max int32 }

func (l LogicalMaximum) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeGlobal, tagLogicalMaximum, minimalInt(l.Max))
}

// ReportSize sets the bit width of the fields that follow (Global).
type ReportSize struct{ Bits uint32 }

func (r ReportSize) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeGlobal, tagReportSize, minimalUint(r.Bits))
}

// ReportCount sets the number of fields that follow (Global).
type ReportCount struct{ Count uint32 }

func (r ReportCount) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeGlobal, tagReportCount, minimalUint(r.Count))
}

// ReportID tags the following fields with a numeric report ID (Global).
type ReportID struct{ ID uint8 }

func (r ReportID) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeGlobal, tagReportID, []byte{r.ID})
}

// Input/Output/Feature close out a field run with its data flags (Main).
type Input struct{ Flags uint32 }

func (i Input) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeMain, tagInput, minimalUint(i.Flags))
}

type Output struct{ Flags uint32 }

func (o Output) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeMain, tagOutput, minimalUint(o.Flags))
}

type Feature struct{ Flags uint32 }

func (f Feature) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeMain, tagFeature, minimalUint(f.Flags))
}

// Collection opens a collection, emits its nested items, then closes it.
type Collection struct {
	Kind  uint8
	Items []Item
}

func (c Collection) encode(buf *bytes.Buffer) {
	writeShortItem(buf, ItemTypeMain, tagCollection, []byte{c.Kind})
	for _, item := range c.Items {
		item.encode(buf)
	}
	writeShortItem(buf, ItemTypeMain, tagEndCollection, nil)
}

// Report is a complete HID report descriptor, the payload answered by
// GET_DESCRIPTOR(REPORT) (descriptor type 0x22).
type Report struct {
	Items []Item
}

// Bytes encodes the descriptor.
func (r Report) Bytes() []byte {
	var buf bytes.Buffer
	for _, item := range r.Items {
		item.encode(&buf)
	}
	return buf.Bytes()
}

// Len returns len(r.Bytes()) without allocating twice; used when only the
// report length is needed (e.g. to size a HID descriptor's wDescriptorLength).
func (r Report) Len() int { return len(r.Bytes()) }
