// Package usb provides USB descriptor types and byte-level encode/decode
// helpers shared by the class drivers. It never relies on structure packing:
// every multi-byte field is written and read explicitly, little-endian, per
// the USB 2.0 wire format.
package usb

// Data is a raw, opaque byte payload carried verbatim on the wire (a
// class-specific descriptor body, a vendor blob, ...). It exists so call
// sites can write usb.Data{...} to signal "fixed descriptor payload",
// distinct from a scratch buffer.
type Data []byte

// Bytes returns the payload unchanged.
func (d Data) Bytes() []byte { return []byte(d) }
