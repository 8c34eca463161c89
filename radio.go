package btbricks

import "time"

// Role names a characteristic's function within a protocol ("rx", "tx",
// "io"). Protocol managers address characteristics by role; the numeric
// value handle behind a role is per-connection state.
type Role string

// Characteristic property bits, as reported in discovery results and
// declared in fixed attribute tables.
const (
	PropRead            uint8 = 0x02
	PropWriteNoResponse uint8 = 0x04
	PropWrite           uint8 = 0x08
	PropNotify          uint8 = 0x10
)

// CharLayout declares one characteristic of a fixed attribute table.
type CharLayout struct {
	Role       Role
	UUID       UUID
	Properties uint8
}

// ServiceLayout declares a peripheral-role service registered with the
// radio at startup. The layout is fixed for the life of the process.
type ServiceLayout struct {
	Service         UUID
	Characteristics []CharLayout
}

// HasRole reports whether the layout declares a characteristic for
// the role.
func (l ServiceLayout) HasRole(r Role) bool {
	for _, c := range l.Characteristics {
		if c.Role == r {
			return true
		}
	}
	return false
}

// Radio is the control surface of the external radio subsystem. All
// commands are asynchronous: the call returns once the command is
// queued, and the outcome arrives later as an Event on the sink. A
// radio implementation is free to complete a command synchronously,
// invoking the sink before the command call returns.
type Radio interface {
	// SetSink registers the single event sink. Must be called before
	// any command is issued.
	SetSink(s EventSink)

	// ScanStart enables scan mode for at most the given window, after
	// which the radio emits ScanDone on its own.
	ScanStart(window time.Duration) error
	ScanStop() error

	// Connect issues a connect to the given address. Completion arrives
	// as ConnectComplete.
	Connect(t AddrType, a Addr) error
	// ConnectCancel aborts a connect that has not completed yet.
	ConnectCancel() error
	Disconnect(handle uint16) error

	// DiscoverServices starts service discovery for one service UUID.
	// Results arrive as ServiceResult, terminated by ServiceDone.
	DiscoverServices(handle uint16, svc UUID) error
	// DiscoverCharacteristics starts characteristic discovery within a
	// handle range. Results arrive as CharacteristicResult, terminated
	// by CharacteristicDone.
	DiscoverCharacteristics(handle uint16, start, end uint16) error

	Write(handle, valueHandle uint16, data []byte, withResponse bool) error
	// Subscribe enables or disables notifications for a value handle.
	Subscribe(handle, valueHandle uint16, enable bool) error
	ExchangeMTU(handle uint16, mtu int) error

	// Notify pushes a value to a connected central (peripheral role).
	Notify(handle, valueHandle uint16, data []byte) error

	// AddService registers a fixed service layout and returns the value
	// handle assigned to each role. Peripheral role only, called once
	// per service before advertising starts.
	AddService(layout ServiceLayout) (map[Role]uint16, error)

	// AdvertiseStart begins advertising the given encoded payload.
	AdvertiseStart(payload []byte, interval time.Duration) error
	AdvertiseStop() error
}
