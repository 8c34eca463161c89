package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/bletest"
)

var midiService = ble.MustParseUUID("03b80e5a-ede8-4b33-a751-6ce34ec4c700")

func midiLayout() ble.ServiceLayout {
	return ble.ServiceLayout{
		Service: midiService,
		Characteristics: []ble.CharLayout{
			{Role: "io", UUID: ble.MustParseUUID("7772e5db-3868-4112-a1a9-f2669d106bf3"),
				Properties: ble.PropRead | ble.PropWriteNoResponse | ble.PropNotify},
		},
	}
}

func host(handle uint16) ble.CentralConnected {
	return ble.CentralConnected{
		Handle:   handle,
		AddrType: ble.AddrTypeRandom,
		Addr:     ble.NewAddr("ab:90:78:56:34:12"),
	}
}

func TestPeripheralStartRegistersOnce(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio)
	require.NoError(t, err)

	p, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)

	require.NoError(t, p.Start("piano"))
	assert.Equal(t, 1, radio.Count("add_service"))
	assert.Equal(t, 1, radio.Count("advertise_start"))

	vh, ok := p.ValueHandle("io")
	require.True(t, ok)
	assert.Equal(t, uint16(0x30), vh)

	// The fixed table survives an advertising restart.
	require.NoError(t, p.Stop())
	require.NoError(t, p.Start("piano"))
	assert.Equal(t, 1, radio.Count("add_service"))
	assert.Equal(t, 2, radio.Count("advertise_start"))
}

func TestPeripheralAcceptsCentral(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio)
	require.NoError(t, err)

	p, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)
	require.NoError(t, p.Start("piano"))

	eng.HandleEvent(host(0x50))

	assert.True(t, p.IsConnected())
	assert.Equal(t, 1, p.Links())

	ctx, ok := eng.Table().Lookup(0x50)
	require.True(t, ok)
	assert.Equal(t, StateReady, ctx.State())
	assert.Equal(t, RolePeripheral, ctx.Role())

	// Advertising resumes while capacity remains.
	assert.Equal(t, 2, radio.Count("advertise_start"))
}

func TestPeripheralWriteCallbackSurvivesReconnect(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio)
	require.NoError(t, err)

	p, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)
	require.NoError(t, p.Start("piano"))

	var got [][]byte
	require.NoError(t, p.OnReceive("io", func(_ uint16, data []byte) {
		got = append(got, data)
	}))

	eng.HandleEvent(host(0x50))
	eng.HandleEvent(ble.GattsWrite{Handle: 0x50, ValueHandle: 0x30, Data: []byte("a")})

	eng.HandleEvent(ble.CentralDisconnected{Handle: 0x50, Reason: 0x13})
	assert.False(t, p.IsConnected())
	assert.Equal(t, 0, eng.Table().Len())

	// The write listener is bound to the fixed local table, not to the
	// connection, so it fires again for the next central.
	eng.HandleEvent(host(0x51))
	eng.HandleEvent(ble.GattsWrite{Handle: 0x51, ValueHandle: 0x30, Data: []byte("b")})

	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, got)
}

func TestPeripheralSendNotifiesEveryLink(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio)
	require.NoError(t, err)

	p, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)
	require.NoError(t, p.Start("piano"))

	assert.Equal(t, ble.ErrNotReady, p.Send("io", []byte{0x90}))

	eng.HandleEvent(host(0x50))
	eng.HandleEvent(host(0x51))

	notified := map[uint16][]byte{}
	radio.OnNotify = func(h, vh uint16, data []byte) {
		assert.Equal(t, uint16(0x30), vh)
		notified[h] = data
	}
	require.NoError(t, p.Send("io", []byte{0x90, 0x3c, 0x64}))

	assert.Len(t, notified, 2)
	assert.Contains(t, notified, uint16(0x50))
	assert.Contains(t, notified, uint16(0x51))
}

func TestPeripheralLinkLimit(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio, ble.OptMaxPeripheralLinks(1))
	require.NoError(t, err)

	p, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)
	require.NoError(t, p.Start("piano"))

	eng.HandleEvent(host(0x50))
	assert.Equal(t, 1, p.Links())

	// The over-limit central is dropped immediately.
	eng.HandleEvent(host(0x51))
	assert.Equal(t, 1, p.Links())
	assert.Equal(t, 1, radio.Count("disconnect"))
	_, ok := eng.Table().Lookup(0x51)
	assert.False(t, ok)
}

func TestPeripheralSingleAdvertiser(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio)
	require.NoError(t, err)

	a, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)
	b, err := eng.NewPeripheral("uart", midiLayout())
	require.NoError(t, err)

	require.NoError(t, a.Start("piano"))
	assert.Error(t, b.Start("console"))

	require.NoError(t, a.Stop())
	assert.NoError(t, b.Start("console"))
}

func TestOrphanCentralDisconnected(t *testing.T) {
	radio := bletest.NewRadio()
	eng, err := New(radio)
	require.NoError(t, err)

	// Nobody is advertising; an incoming central is refused.
	eng.HandleEvent(host(0x50))
	assert.Equal(t, 1, radio.Count("disconnect"))
	assert.Equal(t, 0, eng.Table().Len())
}

func TestPeripheralReceiveBeforeStart(t *testing.T) {
	radio := bletest.NewRadio()
	radio.ServiceHandles = map[ble.Role]uint16{"io": 0x30}
	eng, err := New(radio)
	require.NoError(t, err)

	p, err := eng.NewPeripheral("midi", midiLayout())
	require.NoError(t, err)

	// The value handles don't exist yet; the listener is held until
	// the table is registered.
	var got []byte
	require.NoError(t, p.OnReceive("io", func(_ uint16, data []byte) { got = data }))
	assert.Error(t, p.OnReceive("nope", func(uint16, []byte) {}))

	require.NoError(t, p.Start("piano"))
	eng.HandleEvent(host(0x50))

	eng.HandleEvent(ble.GattsWrite{Handle: 0x50, ValueHandle: 0x30, Data: []byte{0x90, 0x3c, 0x40}})
	assert.Equal(t, []byte{0x90, 0x3c, 0x40}, got)
}
