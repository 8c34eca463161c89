// Package bletest provides a scriptable in-memory radio for tests.
package bletest

import (
	"sync"
	"time"

	ble "github.com/antonvh/btbricks"
)

// Radio records every command and lets a test script synchronous event
// delivery through hooks. Hooks run inside the command call, so code
// passing tests against it tolerates re-entrant completion.
type Radio struct {
	mu       sync.Mutex
	sink     ble.EventSink
	commands []string

	OnScanStart               func()
	OnScanStop                func()
	OnConnect                 func(t ble.AddrType, a ble.Addr)
	OnDisconnect              func(handle uint16)
	OnDiscoverServices        func(handle uint16, svc ble.UUID)
	OnDiscoverCharacteristics func(handle, start, end uint16)
	OnWrite                   func(handle, valueHandle uint16, data []byte, withResponse bool)
	OnNotify                  func(handle, valueHandle uint16, data []byte)
	OnAdvertiseStart          func(payload []byte)

	// ServiceHandles is returned by AddService.
	ServiceHandles map[ble.Role]uint16
}

// NewRadio returns an idle fake radio.
func NewRadio() *Radio {
	return &Radio{
		ServiceHandles: map[ble.Role]uint16{},
	}
}

// Emit delivers one event to the registered sink.
func (r *Radio) Emit(e ble.Event) {
	r.sink.HandleEvent(e)
}

func (r *Radio) record(cmd string) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
}

// Commands returns a copy of every command issued so far, in order.
func (r *Radio) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	copy(out, r.commands)
	return out
}

// Count returns how many times a command was issued.
func (r *Radio) Count(cmd string) int {
	n := 0
	for _, c := range r.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// SetSink implements ble.Radio.
func (r *Radio) SetSink(s ble.EventSink) { r.sink = s }

// ScanStart implements ble.Radio.
func (r *Radio) ScanStart(window time.Duration) error {
	r.record("scan_start")
	if r.OnScanStart != nil {
		r.OnScanStart()
	}
	return nil
}

// ScanStop implements ble.Radio.
func (r *Radio) ScanStop() error {
	r.record("scan_stop")
	if r.OnScanStop != nil {
		r.OnScanStop()
	}
	return nil
}

// Connect implements ble.Radio.
func (r *Radio) Connect(t ble.AddrType, a ble.Addr) error {
	r.record("connect")
	if r.OnConnect != nil {
		r.OnConnect(t, a)
	}
	return nil
}

// ConnectCancel implements ble.Radio.
func (r *Radio) ConnectCancel() error {
	r.record("connect_cancel")
	return nil
}

// Disconnect implements ble.Radio.
func (r *Radio) Disconnect(handle uint16) error {
	r.record("disconnect")
	if r.OnDisconnect != nil {
		r.OnDisconnect(handle)
	}
	return nil
}

// DiscoverServices implements ble.Radio.
func (r *Radio) DiscoverServices(handle uint16, svc ble.UUID) error {
	r.record("discover_services")
	if r.OnDiscoverServices != nil {
		r.OnDiscoverServices(handle, svc)
	}
	return nil
}

// DiscoverCharacteristics implements ble.Radio.
func (r *Radio) DiscoverCharacteristics(handle, start, end uint16) error {
	r.record("discover_characteristics")
	if r.OnDiscoverCharacteristics != nil {
		r.OnDiscoverCharacteristics(handle, start, end)
	}
	return nil
}

// Write implements ble.Radio.
func (r *Radio) Write(handle, valueHandle uint16, data []byte, withResponse bool) error {
	r.record("write")
	if r.OnWrite != nil {
		r.OnWrite(handle, valueHandle, data, withResponse)
	}
	return nil
}

// Subscribe implements ble.Radio.
func (r *Radio) Subscribe(handle, valueHandle uint16, enable bool) error {
	r.record("subscribe")
	return nil
}

// ExchangeMTU implements ble.Radio.
func (r *Radio) ExchangeMTU(handle uint16, mtu int) error {
	r.record("exchange_mtu")
	return nil
}

// Notify implements ble.Radio.
func (r *Radio) Notify(handle, valueHandle uint16, data []byte) error {
	r.record("notify")
	if r.OnNotify != nil {
		r.OnNotify(handle, valueHandle, data)
	}
	return nil
}

// AddService implements ble.Radio.
func (r *Radio) AddService(layout ble.ServiceLayout) (map[ble.Role]uint16, error) {
	r.record("add_service")
	out := make(map[ble.Role]uint16, len(r.ServiceHandles))
	for k, v := range r.ServiceHandles {
		out[k] = v
	}
	return out, nil
}

// AdvertiseStart implements ble.Radio.
func (r *Radio) AdvertiseStart(payload []byte, interval time.Duration) error {
	r.record("advertise_start")
	if r.OnAdvertiseStart != nil {
		r.OnAdvertiseStart(payload)
	}
	return nil
}

// AdvertiseStop implements ble.Radio.
func (r *Radio) AdvertiseStop() error {
	r.record("advertise_stop")
	return nil
}
