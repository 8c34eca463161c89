package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	ble "github.com/antonvh/btbricks"
)

func TestRegistryTrigger(t *testing.T) {
	r := NewRegistry()

	var got []byte
	r.Register(0x12, CbNotify, func(e ble.Event) {
		got = e.(ble.Notification).Data
	})

	fired := r.Trigger(0x12, CbNotify, ble.Notification{ValueHandle: 0x12, Data: []byte("hi")})
	assert.True(t, fired)
	assert.Equal(t, []byte("hi"), got)
}

func TestRegistryMissingEntryIsNormal(t *testing.T) {
	r := NewRegistry()

	fired := r.Trigger(0x99, CbNotify, ble.Notification{})
	assert.False(t, fired)
}

func TestRegistryOverwriteLastWins(t *testing.T) {
	r := NewRegistry()

	var calls []int
	r.Register(0x10, CbDisconnected, func(ble.Event) { calls = append(calls, 1) })
	r.Register(0x10, CbDisconnected, func(ble.Event) { calls = append(calls, 2) })

	r.Trigger(0x10, CbDisconnected, ble.DisconnectComplete{Handle: 0x10})
	assert.Equal(t, []int{2}, calls)
}

func TestRegistryNilDeletes(t *testing.T) {
	r := NewRegistry()

	r.Register(0x10, CbWrite, func(ble.Event) { t.Fatal("deleted entry fired") })
	r.Register(0x10, CbWrite, nil)

	fired := r.Trigger(0x10, CbWrite, ble.GattsWrite{})
	assert.False(t, fired)
}

func TestRegistryCleanupDrainsAllKinds(t *testing.T) {
	r := NewRegistry()

	r.Register(0x10, CbDisconnected, func(ble.Event) {})
	r.Register(0x10, CbWriteDone, func(ble.Event) {})
	r.Register(0x20, CbNotify, func(ble.Event) {})

	n := r.Cleanup(0x10)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, r.CountFor(0x10))
	assert.Equal(t, 1, r.CountFor(0x20))

	// A late event for the drained handle fires nothing.
	assert.False(t, r.Trigger(0x10, CbDisconnected, ble.DisconnectComplete{}))
}

func TestRegistryReregisterAfterCleanup(t *testing.T) {
	r := NewRegistry()

	r.Register(0x10, CbNotify, func(ble.Event) {})
	r.Cleanup(0x10)

	fired := false
	r.Register(0x10, CbNotify, func(ble.Event) { fired = true })
	r.Trigger(0x10, CbNotify, ble.Notification{})
	assert.True(t, fired)
}
