// Package midi advertises a BLE-MIDI peripheral so the device shows
// up as a musical controller to hosts.
package midi

import (
	"time"

	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/engine"
)

// BLE-MIDI service and its single I/O characteristic.
var (
	ServiceUUID = ble.MustParseUUID("03b80e5a-ede8-4b33-a751-6ce34ec4c700")
	IoUUID      = ble.MustParseUUID("7772e5db-3868-4112-a1a9-f2669d106bf3")
)

// RoleIo is the single MIDI I/O characteristic.
const RoleIo ble.Role = "io"

// MIDI channel voice status nibbles.
const (
	statusNoteOff       = 0x80
	statusNoteOn        = 0x90
	statusControlChange = 0xb0
	statusProgramChange = 0xc0
	statusPitchBend     = 0xe0
)

// Controller is a BLE-MIDI peripheral sending channel voice messages
// to attached hosts.
type Controller struct {
	peripheral *engine.Peripheral
	now        func() time.Time
}

// New builds a MIDI controller on the engine.
func New(e *engine.Engine) (*Controller, error) {
	peripheral, err := e.NewPeripheral("midi", ble.ServiceLayout{
		Service: ServiceUUID,
		Characteristics: []ble.CharLayout{
			{Role: RoleIo, UUID: IoUUID, Properties: ble.PropRead | ble.PropWriteNoResponse | ble.PropNotify},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Controller{peripheral: peripheral, now: time.Now}, nil
}

// Start begins advertising under the given name.
func (c *Controller) Start(name string) error { return c.peripheral.Start(name) }

// Stop halts advertising; attached hosts stay connected.
func (c *Controller) Stop() error { return c.peripheral.Stop() }

// Connected reports whether a host is attached.
func (c *Controller) Connected() bool { return c.peripheral.IsConnected() }

// NoteOn sends a note-on message.
func (c *Controller) NoteOn(channel, note, velocity uint8) error {
	return c.send(statusNoteOn, channel, note, velocity)
}

// NoteOff sends a note-off message.
func (c *Controller) NoteOff(channel, note uint8) error {
	return c.send(statusNoteOff, channel, note, 0)
}

// ControlChange sends a controller value change.
func (c *Controller) ControlChange(channel, control, value uint8) error {
	return c.send(statusControlChange, channel, control, value)
}

// ProgramChange selects an instrument program.
func (c *Controller) ProgramChange(channel, program uint8) error {
	if channel > 15 || program > 127 {
		return errors.New("midi argument out of range")
	}
	ts := timestamp(c.now())
	pkt := []byte{header(ts), low(ts), statusProgramChange | channel, program}
	return c.peripheral.Send(RoleIo, pkt)
}

// PitchBend sends a 14-bit pitch bend value, 0x2000 being center.
func (c *Controller) PitchBend(channel uint8, value uint16) error {
	if channel > 15 || value > 0x3fff {
		return errors.New("midi argument out of range")
	}
	return c.send(statusPitchBend, channel, uint8(value&0x7f), uint8(value>>7))
}

// OnReceive registers the listener for MIDI data written by the host.
func (c *Controller) OnReceive(cb func(data []byte)) error {
	return c.peripheral.OnReceive(RoleIo, func(_ uint16, data []byte) { cb(data) })
}

func (c *Controller) send(status, channel, d1, d2 uint8) error {
	if channel > 15 || d1 > 127 || d2 > 127 {
		return errors.New("midi argument out of range")
	}
	ts := timestamp(c.now())
	pkt := []byte{header(ts), low(ts), status | channel, d1, d2}
	return c.peripheral.Send(RoleIo, pkt)
}

// timestamp is the 13-bit millisecond clock BLE-MIDI packets carry.
func timestamp(t time.Time) uint16 {
	return uint16(t.UnixNano()/int64(time.Millisecond)) & 0x1fff
}

func header(ts uint16) byte { return 0x80 | byte(ts>>7) }
func low(ts uint16) byte    { return 0x80 | byte(ts&0x7f) }
