package serial

import (
	"encoding/binary"

	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"
)

// Command opcodes.
const (
	opScanStart = 0x01 + iota
	opScanStop
	opConnect
	opConnectCancel
	opDisconnect
	opDiscoverServices
	opDiscoverCharacteristics
	opWrite
	opSubscribe
	opExchangeMTU
	opNotify
	opAddService
	opAdvertiseStart
	opAdvertiseStop
)

// Event codes.
const (
	evScanResult = 0x01 + iota
	evScanDone
	evConnectComplete
	evDisconnectComplete
	evServiceResult
	evServiceDone
	evCharacteristicResult
	evCharacteristicDone
	evNotification
	evWriteDone
	evMTUExchanged
	evCentralConnected
	evCentralDisconnected
	evGattsWrite
	evServiceAdded
)

const (
	addrLen       = 6
	maxPayload    = 255
	writeFlagResp = 0x01
	subscribeOn   = 0x01
	subscribeOff  = 0x00
)

// command frames a command packet: type, opcode, length, payload.
func command(op byte, payload []byte) ([]byte, error) {
	if len(payload) > maxPayload {
		return nil, errors.Errorf("command payload too large: %d", len(payload))
	}
	out := make([]byte, 0, headerLength+len(payload))
	out = append(out, commandPacket, op, byte(len(payload)))
	return append(out, payload...), nil
}

func putUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func putUUID(b []byte, u ble.UUID) []byte {
	b = append(b, byte(u.Len()))
	return append(b, u...)
}

func putAddr(b []byte, t ble.AddrType, a ble.Addr) ([]byte, error) {
	raw := a.Bytes()
	if len(raw) != addrLen {
		return nil, errors.Errorf("bad address length: %d", len(raw))
	}
	b = append(b, byte(t))
	return append(b, raw...), nil
}

// reader walks an event payload; a short payload trips the fail flag
// instead of panicking so one malformed frame is droppable.
type reader struct {
	b    []byte
	fail bool
}

func (r *reader) u8() uint8 {
	if r.fail || len(r.b) < 1 {
		r.fail = true
		return 0
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v
}

func (r *reader) u16() uint16 {
	if r.fail || len(r.b) < 2 {
		r.fail = true
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b)
	r.b = r.b[2:]
	return v
}

func (r *reader) bytes(n int) []byte {
	if r.fail || len(r.b) < n {
		r.fail = true
		return nil
	}
	out := make([]byte, n)
	copy(out, r.b[:n])
	r.b = r.b[n:]
	return out
}

func (r *reader) rest() []byte {
	return r.bytes(len(r.b))
}

func (r *reader) uuid() ble.UUID {
	n := int(r.u8())
	return ble.UUID(r.bytes(n))
}

func (r *reader) addr() (ble.AddrType, ble.Addr) {
	t := ble.AddrType(r.u8())
	raw := r.bytes(addrLen)
	if r.fail {
		return t, nil
	}
	return t, ble.AddrFromBytes(raw)
}

// decodeEvent turns one assembled event frame into its typed event.
// The evServiceAdded frame is transport-internal and handled before
// this point.
func decodeEvent(fr []byte) (ble.Event, error) {
	if len(fr) < headerLength {
		return nil, errors.New("frame too short")
	}
	r := &reader{b: fr[headerLength:]}

	var ev ble.Event
	switch fr[headerOffsetOpcode] {
	case evScanResult:
		t, a := r.addr()
		rssi := int8(r.u8())
		name := string(r.bytes(int(r.u8())))
		n := int(r.u8())
		var svcs []ble.UUID
		for i := 0; i < n && !r.fail; i++ {
			svcs = append(svcs, r.uuid())
		}
		ev = ble.ScanResult{AddrType: t, Addr: a, Name: name, Services: svcs, RSSI: int(rssi)}

	case evScanDone:
		ev = ble.ScanDone{}

	case evConnectComplete:
		h := r.u16()
		t, a := r.addr()
		ev = ble.ConnectComplete{Handle: h, AddrType: t, Addr: a}

	case evDisconnectComplete:
		ev = ble.DisconnectComplete{Handle: r.u16(), Reason: r.u8()}

	case evServiceResult:
		ev = ble.ServiceResult{Handle: r.u16(), Start: r.u16(), End: r.u16(), UUID: r.uuid()}

	case evServiceDone:
		ev = ble.ServiceDone{Handle: r.u16(), Status: r.u8()}

	case evCharacteristicResult:
		ev = ble.CharacteristicResult{
			Handle:      r.u16(),
			DefHandle:   r.u16(),
			ValueHandle: r.u16(),
			Properties:  r.u8(),
			UUID:        r.uuid(),
		}

	case evCharacteristicDone:
		ev = ble.CharacteristicDone{Handle: r.u16(), Status: r.u8()}

	case evNotification:
		ev = ble.Notification{Handle: r.u16(), ValueHandle: r.u16(), Data: r.rest()}

	case evWriteDone:
		ev = ble.WriteDone{Handle: r.u16(), ValueHandle: r.u16(), Status: r.u8()}

	case evMTUExchanged:
		ev = ble.MTUExchanged{Handle: r.u16(), MTU: int(r.u16())}

	case evCentralConnected:
		h := r.u16()
		t, a := r.addr()
		ev = ble.CentralConnected{Handle: h, AddrType: t, Addr: a}

	case evCentralDisconnected:
		ev = ble.CentralDisconnected{Handle: r.u16(), Reason: r.u8()}

	case evGattsWrite:
		ev = ble.GattsWrite{Handle: r.u16(), ValueHandle: r.u16(), Data: r.rest()}

	default:
		return nil, errors.Errorf("unknown event code 0x%02x", fr[headerOffsetOpcode])
	}

	if r.fail {
		return nil, errors.Errorf("truncated event 0x%02x", fr[headerOffsetOpcode])
	}
	return ev, nil
}

// decodeServiceAdded parses the role-to-handle table the coprocessor
// returns for a registered service.
func decodeServiceAdded(fr []byte) (map[ble.Role]uint16, error) {
	if len(fr) < headerLength {
		return nil, errors.New("frame too short")
	}
	r := &reader{b: fr[headerLength:]}

	n := int(r.u8())
	out := make(map[ble.Role]uint16, n)
	for i := 0; i < n; i++ {
		role := ble.Role(r.bytes(int(r.u8())))
		out[role] = r.u16()
	}
	if r.fail {
		return nil, errors.New("truncated service table")
	}
	return out, nil
}
