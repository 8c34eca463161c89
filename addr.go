package btbricks

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Addr represents a peer device address.
type Addr interface {
	String() string
	Bytes() []byte
}

// AddrType distinguishes public and random device addresses.
type AddrType uint8

// Address types as delivered by the radio.
const (
	AddrTypePublic AddrType = 0x00
	AddrTypeRandom AddrType = 0x01
)

func (t AddrType) String() string {
	switch t {
	case AddrTypePublic:
		return "public"
	case AddrTypeRandom:
		return "random"
	default:
		return fmt.Sprintf("addrtype(%d)", uint8(t))
	}
}

// NewAddr creates an Addr from string
func NewAddr(s string) Addr {
	return addr(strings.ToLower(s))
}

// AddrFromBytes creates an Addr from raw address bytes as they arrive
// in a radio event.
func AddrFromBytes(b []byte) Addr {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = hex.EncodeToString([]byte{v})
	}
	return addr(strings.Join(parts, ":"))
}

type addr string

func (a addr) String() string {
	return string(a)
}

func (a addr) Bytes() []byte {
	hexStr := strings.Replace(a.String(), ":", "", -1)

	out, err := hex.DecodeString(hexStr)
	if err != nil {
		fmt.Println("error decoding address:", err, a.String())
	}

	return out
}
