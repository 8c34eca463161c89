package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ble "github.com/antonvh/btbricks"
)

func TestFrameAssembleWhole(t *testing.T) {
	out := make(chan []byte, 4)
	f := newFrame(out)

	f.Assemble([]byte{eventPacket, evScanDone, 0x00})

	require.Len(t, out, 1)
	assert.Equal(t, []byte{eventPacket, evScanDone, 0x00}, <-out)
}

func TestFrameAssembleSplit(t *testing.T) {
	out := make(chan []byte, 4)
	f := newFrame(out)

	f.Assemble([]byte{eventPacket, evDisconnectComplete})
	require.Len(t, out, 0)
	f.Assemble([]byte{0x03, 0x10})
	require.Len(t, out, 0)
	f.Assemble([]byte{0x00, 0x13})

	require.Len(t, out, 1)
	assert.Equal(t, []byte{eventPacket, evDisconnectComplete, 0x03, 0x10, 0x00, 0x13}, <-out)
}

func TestFrameAssembleBackToBack(t *testing.T) {
	out := make(chan []byte, 4)
	f := newFrame(out)

	f.Assemble([]byte{
		eventPacket, evScanDone, 0x00,
		eventPacket, evServiceDone, 0x03, 0x10, 0x00, 0x00,
	})

	require.Len(t, out, 2)
	assert.Equal(t, []byte{eventPacket, evScanDone, 0x00}, <-out)
	assert.Equal(t, []byte{eventPacket, evServiceDone, 0x03, 0x10, 0x00, 0x00}, <-out)
}

func TestFrameAssembleSkipsNoise(t *testing.T) {
	out := make(chan []byte, 4)
	f := newFrame(out)

	f.Assemble([]byte{0x00, 0xff, 0x7a, eventPacket, evScanDone, 0x00})

	require.Len(t, out, 1)
	assert.Equal(t, []byte{eventPacket, evScanDone, 0x00}, <-out)
}

func TestDecodeNotification(t *testing.T) {
	fr := []byte{eventPacket, evNotification, 0x07, 0x10, 0x00, 0x12, 0x00, 'a', 'b', 'c'}

	ev, err := decodeEvent(fr)
	require.NoError(t, err)

	n, ok := ev.(ble.Notification)
	require.True(t, ok)
	assert.Equal(t, uint16(0x0010), n.Handle)
	assert.Equal(t, uint16(0x0012), n.ValueHandle)
	assert.Equal(t, []byte("abc"), n.Data)
}

func TestDecodeScanResult(t *testing.T) {
	payload := []byte{
		0x01,                               // random address
		0xab, 0x90, 0x78, 0x56, 0x34, 0x12, // address
		0xc4,           // rssi -60
		0x03, 'r', 'o', 'b', // name
		0x01,       // one service uuid
		0x02, 0x23, 0x16, // 16 bit uuid
	}
	fr := append([]byte{eventPacket, evScanResult, byte(len(payload))}, payload...)

	ev, err := decodeEvent(fr)
	require.NoError(t, err)

	r, ok := ev.(ble.ScanResult)
	require.True(t, ok)
	assert.Equal(t, ble.AddrTypeRandom, r.AddrType)
	assert.Equal(t, "rob", r.Name)
	assert.Equal(t, -60, r.RSSI)
	require.Len(t, r.Services, 1)
	assert.True(t, r.Services[0].Equal(ble.UUID16(0x1623)))
}

func TestDecodeTruncated(t *testing.T) {
	fr := []byte{eventPacket, evConnectComplete, 0x02, 0x10, 0x00}

	_, err := decodeEvent(fr)
	assert.Error(t, err)
}

func TestDecodeUnknownEvent(t *testing.T) {
	fr := []byte{eventPacket, 0x7f, 0x00}

	_, err := decodeEvent(fr)
	assert.Error(t, err)
}

func TestDecodeServiceAdded(t *testing.T) {
	payload := []byte{
		0x02,
		0x02, 'r', 'x', 0x12, 0x00,
		0x02, 't', 'x', 0x14, 0x00,
	}
	fr := append([]byte{eventPacket, evServiceAdded, byte(len(payload))}, payload...)

	handles, err := decodeServiceAdded(fr)
	require.NoError(t, err)
	assert.Equal(t, map[ble.Role]uint16{"rx": 0x0012, "tx": 0x0014}, handles)
}
