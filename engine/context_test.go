package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ble "github.com/antonvh/btbricks"
)

func TestContextAdvanceIsMonotonic(t *testing.T) {
	tbl := NewTable()
	c := tbl.Create("uart", RoleCentral, ble.AddrTypePublic, ble.NewAddr("12:34:56:78:90:ab"))

	assert.Equal(t, StateConnecting, c.State())

	assert.True(t, c.advance(StateDiscoveringServices))
	assert.True(t, c.advance(StateReady))

	// Backward and repeated transitions are rejected.
	assert.False(t, c.advance(StateDiscoveringServices))
	assert.False(t, c.advance(StateReady))
	assert.Equal(t, StateReady, c.State())

	assert.True(t, c.advance(StateClosed))
	assert.False(t, c.advance(StateDisconnecting))
}

func TestTableBindRejectsLiveHandle(t *testing.T) {
	tbl := NewTable()
	a := tbl.Create("uart", RoleCentral, ble.AddrTypePublic, ble.NewAddr("12:34:56:78:90:ab"))
	b := tbl.Create("hub", RoleCentral, ble.AddrTypePublic, ble.NewAddr("ab:90:78:56:34:12"))

	require.NoError(t, tbl.Bind(a, 0x10))
	assert.Error(t, tbl.Bind(b, 0x10))

	// After removal the handle number is reusable.
	tbl.Remove(0x10)
	assert.NoError(t, tbl.Bind(b, 0x10))
}

func TestTableBindStateByRole(t *testing.T) {
	tbl := NewTable()

	c := tbl.Create("uart", RoleCentral, ble.AddrTypePublic, ble.NewAddr("12:34:56:78:90:ab"))
	require.NoError(t, tbl.Bind(c, 0x10))
	assert.Equal(t, StateDiscoveringServices, c.State())

	p := tbl.Create("midi", RolePeripheral, ble.AddrTypeRandom, ble.NewAddr("ab:90:78:56:34:12"))
	require.NoError(t, tbl.Bind(p, 0x11))
	assert.Equal(t, StateReady, p.State())
}

func TestContextValueHandles(t *testing.T) {
	tbl := NewTable()
	c := tbl.Create("uart", RoleCentral, ble.AddrTypePublic, ble.NewAddr("12:34:56:78:90:ab"))

	c.SetValueHandle("rx", 0x12)
	c.SetValueHandle("tx", 0x14)

	vh, ok := c.ValueHandle("rx")
	require.True(t, ok)
	assert.Equal(t, uint16(0x12), vh)

	_, ok = c.ValueHandle("io")
	assert.False(t, ok)

	// The snapshot is a copy, not a view.
	snap := c.ValueHandles()
	snap["rx"] = 0xff
	vh, _ = c.ValueHandle("rx")
	assert.Equal(t, uint16(0x12), vh)
}
