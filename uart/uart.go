// Package uart implements the Nordic UART service on both sides of
// the link: a central-role client that attaches to a remote console
// and a peripheral-role server that exposes one.
package uart

import (
	ble "github.com/antonvh/btbricks"
)

// Nordic UART service. The rx characteristic is written by the
// central, the tx characteristic notifies the central.
var (
	ServiceUUID = ble.MustParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	RxUUID      = ble.MustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	TxUUID      = ble.MustParseUUID("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

const (
	// RoleRx is the peer-writable characteristic.
	RoleRx ble.Role = "rx"
	// RoleTx is the notifying characteristic.
	RoleTx ble.Role = "tx"
)

// maxChunk is the largest write payload guaranteed to fit the default
// ATT payload before any MTU exchange.
const maxChunk = 20

func chunk(data []byte, size int) [][]byte {
	if size <= 0 {
		size = maxChunk
	}
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	return append(out, data)
}
