package hid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullstream/usbxgadget/usb/hid"
)

func TestSimpleUsagePageItemEncoding(t *testing.T) {
	r := hid.Report{Items: []hid.Item{hid.UsagePage{Page: hid.UsagePageGenericDesktop}}}
	// Global item, tag 0x0, one data byte: prefix = size(1) | type(1)<<2 | tag(0)<<4 = 0x05.
	assert.Equal(t, []byte{0x05, 0x01}, r.Bytes())
}

func TestReportIDUsesOneDataByte(t *testing.T) {
	r := hid.Report{Items: []hid.Item{hid.ReportID{ID: 0x01}}}
	// Global item, tag 0x8: prefix = 1 | 1<<2 | 8<<4 = 0x85.
	assert.Equal(t, []byte{0x85, 0x01}, r.Bytes())
}

func TestCollectionNestsAndClosesItems(t *testing.T) {
	r := hid.Report{Items: []hid.Item{
		hid.Collection{Kind: hid.CollectionApplication, Items: []hid.Item{
			hid.Usage{Usage: hid.UsageX},
		}},
	}}
	b := r.Bytes()
	// Main item (collection open), tag 0xA: prefix = 1 | 0<<2 | 0xA<<4 = 0xA1.
	assert.Equal(t, uint8(0xA1), b[0])
	assert.Equal(t, uint8(hid.CollectionApplication), b[1])
	// End collection: zero-length main item, tag 0xC: prefix = 0 | 0<<2 | 0xC<<4 = 0xC0.
	assert.Equal(t, uint8(0xC0), b[len(b)-1])
}

func TestLogicalMinimumNegativeUsesSignedEncoding(t *testing.T) {
	r := hid.Report{Items: []hid.Item{hid.LogicalMinimum{Min: -1}}}
	b := r.Bytes()
	assert.Equal(t, []byte{0xFF}, b[1:])
}

func TestReportLenMatchesBytesLength(t *testing.T) {
	r := hid.Report{Items: []hid.Item{
		hid.UsagePage{Page: hid.UsagePageGenericDesktop},
		hid.Usage{Usage: hid.UsageGamePad},
	}}
	assert.Equal(t, len(r.Bytes()), r.Len())
}

func TestAnyItemEscapeHatch(t *testing.T) {
	r := hid.Report{Items: []hid.Item{hid.AnyItem{Type: hid.ItemTypeGlobal, Tag: 0x5, Data: hid.Data{0x00}}}}
	assert.Equal(t, []byte{0x55, 0x00}, r.Bytes())
}
