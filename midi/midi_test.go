package midi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/bletest"
	"github.com/antonvh/btbricks/engine"
)

func startController(t *testing.T) (*Controller, *bletest.Radio) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{RoleIo: 0x30}
	eng, err := engine.New(radio)
	require.NoError(t, err)

	c, err := New(eng)
	require.NoError(t, err)
	// Fixed clock: 5ms into the epoch, so timestamp bytes are stable.
	c.now = func() time.Time { return time.Unix(0, 5*int64(time.Millisecond)) }

	require.NoError(t, c.Start("piano"))
	radio.Emit(ble.CentralConnected{Handle: 0x50, AddrType: ble.AddrTypeRandom, Addr: ble.NewAddr("ab:90:78:56:34:12")})
	require.True(t, c.Connected())
	return c, radio
}

func TestNoteOnPacket(t *testing.T) {
	c, radio := startController(t)

	var pkt []byte
	radio.OnNotify = func(h, vh uint16, data []byte) {
		assert.Equal(t, uint16(0x30), vh)
		pkt = data
	}

	require.NoError(t, c.NoteOn(0, 60, 100))
	assert.Equal(t, []byte{0x80, 0x85, 0x90, 60, 100}, pkt)
}

func TestNoteOffPacket(t *testing.T) {
	c, radio := startController(t)

	var pkt []byte
	radio.OnNotify = func(_, _ uint16, data []byte) { pkt = data }

	require.NoError(t, c.NoteOff(2, 60))
	assert.Equal(t, []byte{0x80, 0x85, 0x82, 60, 0}, pkt)
}

func TestControlChangePacket(t *testing.T) {
	c, radio := startController(t)

	var pkt []byte
	radio.OnNotify = func(_, _ uint16, data []byte) { pkt = data }

	require.NoError(t, c.ControlChange(1, 7, 127))
	assert.Equal(t, []byte{0x80, 0x85, 0xb1, 7, 127}, pkt)
}

func TestPitchBendPacket(t *testing.T) {
	c, radio := startController(t)

	var pkt []byte
	radio.OnNotify = func(_, _ uint16, data []byte) { pkt = data }

	// Center position splits into 7-bit lsb/msb.
	require.NoError(t, c.PitchBend(0, 0x2000))
	assert.Equal(t, []byte{0x80, 0x85, 0xe0, 0x00, 0x40}, pkt)
}

func TestArgumentRanges(t *testing.T) {
	c, _ := startController(t)

	assert.Error(t, c.NoteOn(16, 60, 100))
	assert.Error(t, c.NoteOn(0, 128, 100))
	assert.Error(t, c.NoteOn(0, 60, 128))
	assert.Error(t, c.PitchBend(0, 0x4000))
	assert.Error(t, c.ProgramChange(0, 128))
}

func TestSendWithoutHost(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{RoleIo: 0x30}
	eng, err := engine.New(radio)
	require.NoError(t, err)

	c, err := New(eng)
	require.NoError(t, err)
	require.NoError(t, c.Start("piano"))

	assert.Equal(t, ble.ErrNotReady, c.NoteOn(0, 60, 100))
}
