// Package hub attaches to vendor smart hubs that expose a single
// bidirectional command characteristic.
package hub

import (
	"time"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/engine"
)

// Hub control service. One characteristic carries commands out and
// status notifications back.
var (
	ServiceUUID = ble.MustParseUUID("00001623-1212-efde-1623-785feabcd123")
	IoUUID      = ble.MustParseUUID("00001624-1212-efde-1623-785feabcd123")
)

// RoleIo is the single bidirectional characteristic.
const RoleIo ble.Role = "io"

// Hub is the central-role handle on a smart hub.
type Hub struct {
	central *engine.Central
}

// New builds a hub client on the engine.
func New(e *engine.Engine) (*Hub, error) {
	central, err := e.NewCentral(engine.ProtocolConfig{
		Tag:     "hub",
		Service: ServiceUUID,
		Roles: []engine.RoleSpec{
			{Role: RoleIo, UUID: IoUUID, Required: true, Subscribe: true},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Hub{central: central}, nil
}

// Connect attaches to the first hub advertising the control service.
func (h *Hub) Connect(timeout time.Duration) error {
	_, err := h.central.Connect(engine.SearchCriteria{Service: ServiceUUID}, timeout)
	return err
}

// ConnectNamed attaches to a specific hub by advertised name.
func (h *Hub) ConnectNamed(name string, timeout time.Duration) error {
	_, err := h.central.Connect(engine.SearchCriteria{Name: name}, timeout)
	return err
}

// Disconnect drops the link.
func (h *Hub) Disconnect() error { return h.central.Disconnect() }

// Connected reports whether the link is up and ready.
func (h *Hub) Connected() bool { return h.central.Ready() }

// Send writes one command frame to the hub.
func (h *Hub) Send(cmd []byte) error {
	return h.central.Send(RoleIo, cmd)
}

// SendWithResponse writes one command frame requesting confirmation;
// completion is observable through OnCommandDone.
func (h *Hub) SendWithResponse(cmd []byte) error {
	return h.central.SendWithResponse(RoleIo, cmd)
}

// OnReceive registers the listener for status frames from the hub.
func (h *Hub) OnReceive(cb func(data []byte)) error {
	return h.central.OnReceive(RoleIo, cb)
}

// OnCommandDone registers the listener for confirmed-write completion.
func (h *Hub) OnCommandDone(cb func(status uint8)) error {
	return h.central.OnWriteDone(func(_ uint16, status uint8) { cb(status) })
}

// OnDisconnected registers a listener fired when the hub drops the
// link.
func (h *Hub) OnDisconnected(cb func()) error {
	return h.central.OnDisconnected(cb)
}
