// Package adv encodes and decodes advertising payloads: the
// length-tagged field lists broadcast pre-connection and used for
// discovery matching.
package adv

import (
	ble "github.com/antonvh/btbricks"
)

// MaxAdvertisingLength is the fixed upper bound of an advertising
// payload.
const MaxAdvertisingLength = 31

// Advertising flag bits.
const (
	FlagLimitedDiscoverable = 0x01
	FlagGeneralDiscoverable = 0x02
	FlagLEOnly              = 0x04
)

// Packet holds an advertising payload, either under construction or
// decoded from the air.
type Packet struct {
	b []byte
	m map[string]interface{}
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

// Len returns the length of the packet.
func (p *Packet) Len() int {
	return len(p.b)
}

// NewPacket builds an advertising packet from fields. It returns
// ErrPayloadTooLarge if the fields do not fit the advertising length.
func NewPacket(fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxAdvertisingLength)}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Decode parses a received payload. Unrecognized field tags are skipped;
// when a tag occurs more than once the last occurrence wins.
func Decode(b []byte) (*Packet, error) {
	bb := make([]byte, len(b))
	copy(bb, b)

	m, err := decode(bb)
	if err != nil {
		return nil, err
	}
	return &Packet{b: bb, m: m}, nil
}

// Field is an advertising field which can be appended to a packet.
type Field func(p *Packet) error

// Append appends a field to the packet. It returns ErrPayloadTooLarge if
// the field doesn't fit into the packet, and leaves the packet intact.
func (p *Packet) Append(f Field) error {
	return f(p)
}

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > MaxAdvertisingLength {
		return ble.ErrPayloadTooLarge
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)
	return nil
}

// Raw appends pre-encoded bytes to the packet.
func Raw(b []byte) Field {
	return func(p *Packet) error {
		if p.Len()+len(b) > MaxAdvertisingLength {
			return ble.ErrPayloadTooLarge
		}
		p.b = append(p.b, b...)
		return nil
	}
}

// Flags is a flags field.
func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(flags, []byte{f})
	}
}

// ShortName is a short local name.
func ShortName(n string) Field {
	return func(p *Packet) error {
		return p.append(shortName, []byte(n))
	}
}

// CompleteName is a complete local name.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		return p.append(completeName, []byte(n))
	}
}

// ManufacturerData is manufacturer specific data.
func ManufacturerData(id uint16, b []byte) Field {
	return func(p *Packet) error {
		d := append([]byte{uint8(id), uint8(id >> 8)}, b...)
		return p.append(manufacturerData, d)
	}
}

// TxPower is a transmit power level field.
func TxPower(pwr int8) Field {
	return func(p *Packet) error {
		return p.append(txPower, []byte{uint8(pwr)})
	}
}

// AllUUID is one of the complete service UUID list.
func AllUUID(u ble.UUID) Field {
	return func(p *Packet) error {
		if u.Len() == 2 {
			return p.append(allUUID16, u)
		}
		return p.append(allUUID128, u)
	}
}

// SomeUUID is one of the incomplete service UUID list.
func SomeUUID(u ble.UUID) Field {
	return func(p *Packet) error {
		if u.Len() == 2 {
			return p.append(someUUID16, u)
		}
		return p.append(someUUID128, u)
	}
}

// Flags returns the flags field of the packet.
func (p *Packet) Flags() (f byte, present bool) {
	if b, ok := p.m[keys.flags].([]byte); ok && len(b) > 0 {
		return b[0], true
	}
	return 0, false
}

// LocalName returns the short or complete local name if present.
func (p *Packet) LocalName() string {
	if b, ok := p.m[keys.name].([]byte); ok {
		return string(b)
	}
	return ""
}

// TxPower returns the transmit power level field if present.
func (p *Packet) TxPower() (power int, present bool) {
	if b, ok := p.m[keys.txpwr].([]byte); ok && len(b) > 0 {
		return int(int8(b[0])), true
	}
	return 0, false
}

// UUIDs returns the advertised service UUID list, 16-bit entries first.
func (p *Packet) UUIDs() []ble.UUID {
	var u []ble.UUID
	u = p.appendUUIDs(keys.uuid16, u)
	u = p.appendUUIDs(keys.uuid128, u)
	return u
}

func (p *Packet) appendUUIDs(key string, u []ble.UUID) []ble.UUID {
	v, ok := p.m[key].([]ble.UUID)
	if !ok {
		return u
	}
	return append(u, v...)
}

// ManufacturerData returns the manufacturer data field if present.
func (p *Packet) ManufacturerData() []byte {
	v, _ := p.m[keys.mfgdata].([]byte)
	return v
}
