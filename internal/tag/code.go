package tag

import (
	"fmt"
	"strings"
)

// Code is a decoded tag: 44 data bits, most significant first, plus the
// parity bit when it survived the end marker. Parity is carried, not checked.
type Code struct {
	Bits        [DataBits]uint8
	Parity      uint8
	ParityKnown bool
}

// Fields are the semantic parts of a tag code.
type Fields struct {
	ManufacturerID uint32
	SiteCode       uint8
	UniqueID       uint16
}

// Fold accumulates bits most significant first: result = result<<1 | bit.
func Fold(bits []uint8) uint32 {
	var result uint32
	for _, b := range bits {
		result = result<<1 | uint32(b&0x01)
	}
	return result
}

// ManufacturerID extracts the 20-bit manufacturer code.
func (c *Code) ManufacturerID() uint32 {
	return Fold(c.Bits[ManufacturerIDOffset : ManufacturerIDOffset+ManufacturerIDLength])
}

// SiteCode extracts the 8-bit site (facility) code.
func (c *Code) SiteCode() uint8 {
	return uint8(Fold(c.Bits[SiteCodeOffset : SiteCodeOffset+SiteCodeLength]))
}

// UniqueID extracts the 16-bit card number checked against the allow list.
func (c *Code) UniqueID() uint16 {
	return uint16(Fold(c.Bits[UniqueIDOffset : UniqueIDOffset+UniqueIDLength]))
}

// Fields extracts all three fields.
func (c *Code) Fields() Fields {
	return Fields{
		ManufacturerID: c.ManufacturerID(),
		SiteCode:       c.SiteCode(),
		UniqueID:       c.UniqueID(),
	}
}

// Value returns the 44 data bits as an integer.
func (c *Code) Value() uint64 {
	var v uint64
	for _, b := range c.Bits {
		v = v<<1 | uint64(b&0x01)
	}
	return v
}

// Binary renders the data bits as '0' and '1' characters.
func (c *Code) Binary() string {
	var sb strings.Builder
	sb.Grow(DataBits)
	for _, b := range c.Bits {
		sb.WriteByte('0' + b&0x01)
	}
	return sb.String()
}

// Hex renders the data bits as 11 hex digits.
func (c *Code) Hex() string {
	return fmt.Sprintf("%011X", c.Value())
}

// NewCode packs fields into a code. Values wider than their field are
// truncated to the field width.
func NewCode(f Fields) Code {
	var c Code
	put := func(offset, length int, v uint32) {
		for i := 0; i < length; i++ {
			c.Bits[offset+i] = uint8(v>>(length-1-i)) & 0x01
		}
	}
	put(ManufacturerIDOffset, ManufacturerIDLength, f.ManufacturerID)
	put(SiteCodeOffset, SiteCodeLength, uint32(f.SiteCode))
	put(UniqueIDOffset, UniqueIDLength, uint32(f.UniqueID))
	return c
}
