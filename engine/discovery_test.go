package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/bletest"
)

var uartService = ble.MustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")

func advertisement(name string, services ...ble.UUID) ble.ScanResult {
	return ble.ScanResult{
		AddrType: ble.AddrTypeRandom,
		Addr:     ble.NewAddr("12:34:56:78:90:ab"),
		Name:     name,
		Services: services,
		RSSI:     -60,
	}
}

func TestDiscoveryMatchByName(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	var got *ble.ScanResult
	require.NoError(t, d.Start(SearchCriteria{Name: "robot"}, time.Second, func(r *ble.ScanResult) { got = r }))

	d.HandleScanResult(advertisement("other"))
	assert.Nil(t, got)
	assert.True(t, d.IsScanning())

	d.HandleScanResult(advertisement("robot"))
	require.NotNil(t, got)
	assert.Equal(t, "robot", got.Name)
	assert.False(t, d.IsScanning())
	assert.Equal(t, 1, radio.Count("scan_stop"))
}

func TestDiscoveryMatchByService(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	var got *ble.ScanResult
	require.NoError(t, d.Start(SearchCriteria{Service: uartService}, time.Second, func(r *ble.ScanResult) { got = r }))

	d.HandleScanResult(advertisement("whatever", ble.UUID16(0x180d)))
	assert.Nil(t, got)

	d.HandleScanResult(advertisement("whatever", uartService))
	require.NotNil(t, got)
}

func TestDiscoveryFirstMatchWins(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	var delivered int
	require.NoError(t, d.Start(SearchCriteria{Name: "robot"}, time.Second, func(r *ble.ScanResult) { delivered++ }))

	d.HandleScanResult(advertisement("robot"))
	d.HandleScanResult(advertisement("robot"))
	assert.Equal(t, 1, delivered)
}

func TestDiscoveryNoMatchResolvesNil(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	resolved := false
	var got *ble.ScanResult
	require.NoError(t, d.Start(SearchCriteria{Name: "robot"}, time.Second, func(r *ble.ScanResult) {
		resolved = true
		got = r
	}))

	d.HandleScanResult(advertisement("other"))
	d.HandleScanDone()

	assert.True(t, resolved)
	assert.Nil(t, got)
	assert.False(t, d.IsScanning())
}

func TestDiscoverySecondStartFails(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	require.NoError(t, d.Start(SearchCriteria{Name: "a"}, time.Second, func(*ble.ScanResult) {}))

	err := d.Start(SearchCriteria{Name: "b"}, time.Second, func(*ble.ScanResult) {})
	assert.Equal(t, ble.ErrAlreadyScanning, err)
}

func TestDiscoveryStopAbandon(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	resolved := false
	require.NoError(t, d.Start(SearchCriteria{Name: "robot"}, time.Second, func(*ble.ScanResult) { resolved = true }))
	require.NoError(t, d.Stop())

	// A late scan end for the abandoned session resolves nothing.
	d.HandleScanDone()
	assert.False(t, resolved)

	// The radio can be scanned again afterwards.
	require.NoError(t, d.Start(SearchCriteria{Name: "robot"}, time.Second, func(*ble.ScanResult) {}))
}

func TestDiscoveryObservers(t *testing.T) {
	radio := bletest.NewRadio()
	d := NewDiscovery(radio)

	var seen []string
	remove := d.Observe(func(r ble.ScanResult) { seen = append(seen, r.Name) })

	require.NoError(t, d.Start(SearchCriteria{Name: "robot"}, time.Second, func(*ble.ScanResult) {}))
	d.HandleScanResult(advertisement("a"))
	d.HandleScanResult(advertisement("robot"))

	// Observers see every record, even the one that resolved the
	// session.
	assert.Equal(t, []string{"a", "robot"}, seen)

	remove()
	d.HandleScanResult(advertisement("b"))
	assert.Equal(t, []string{"a", "robot"}, seen)
}
