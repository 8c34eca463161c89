package btbricks

import "fmt"

// EventKind identifies one kind of asynchronous radio event. The radio
// subsystem delivers exactly one event per hardware interrupt, strictly
// in arrival order, through a single sink.
type EventKind uint8

const (
	EvtScanResult EventKind = iota + 1
	EvtScanDone
	EvtConnectComplete    // central role: outgoing connect accepted
	EvtDisconnectComplete // central role: link dropped
	EvtServiceResult
	EvtServiceDone
	EvtCharacteristicResult
	EvtCharacteristicDone
	EvtNotification
	EvtWriteDone
	EvtMTUExchanged
	EvtCentralConnected    // peripheral role: a central connected to us
	EvtCentralDisconnected // peripheral role: a central dropped the link
	EvtGattsWrite          // peripheral role: a local value handle was written
)

func (k EventKind) String() string {
	switch k {
	case EvtScanResult:
		return "scan_result"
	case EvtScanDone:
		return "scan_done"
	case EvtConnectComplete:
		return "connect_complete"
	case EvtDisconnectComplete:
		return "disconnect_complete"
	case EvtServiceResult:
		return "service_result"
	case EvtServiceDone:
		return "service_done"
	case EvtCharacteristicResult:
		return "characteristic_result"
	case EvtCharacteristicDone:
		return "characteristic_done"
	case EvtNotification:
		return "notification"
	case EvtWriteDone:
		return "write_done"
	case EvtMTUExchanged:
		return "mtu_exchanged"
	case EvtCentralConnected:
		return "central_connected"
	case EvtCentralDisconnected:
		return "central_disconnected"
	case EvtGattsWrite:
		return "gatts_write"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one radio event plus its payload. Payloads are opaque to the
// router; only the owning subsystem interprets them.
type Event interface {
	Kind() EventKind
}

// ScanResult reports one advertisement seen during a scan session.
type ScanResult struct {
	AddrType AddrType
	Addr     Addr
	Name     string
	Services []UUID
	RSSI     int
}

func (ScanResult) Kind() EventKind { return EvtScanResult }

// ScanDone reports the end of a scan session.
type ScanDone struct{}

func (ScanDone) Kind() EventKind { return EvtScanDone }

// ConnectComplete reports acceptance of an outgoing connect; Handle is
// valid from this point until DisconnectComplete.
type ConnectComplete struct {
	Handle   uint16
	AddrType AddrType
	Addr     Addr
}

func (ConnectComplete) Kind() EventKind { return EvtConnectComplete }

// DisconnectComplete reports loss of a central-role link.
type DisconnectComplete struct {
	Handle uint16
	Reason uint8
}

func (DisconnectComplete) Kind() EventKind { return EvtDisconnectComplete }

// ServiceResult reports one discovered service and its handle range.
type ServiceResult struct {
	Handle uint16
	Start  uint16
	End    uint16
	UUID   UUID
}

func (ServiceResult) Kind() EventKind { return EvtServiceResult }

// ServiceDone reports the end of service discovery.
type ServiceDone struct {
	Handle uint16
	Status uint8
}

func (ServiceDone) Kind() EventKind { return EvtServiceDone }

// CharacteristicResult reports one discovered characteristic.
type CharacteristicResult struct {
	Handle      uint16
	DefHandle   uint16
	ValueHandle uint16
	Properties  uint8
	UUID        UUID
}

func (CharacteristicResult) Kind() EventKind { return EvtCharacteristicResult }

// CharacteristicDone reports the end of characteristic discovery.
type CharacteristicDone struct {
	Handle uint16
	Status uint8
}

func (CharacteristicDone) Kind() EventKind { return EvtCharacteristicDone }

// Notification carries a peer-pushed value for a subscribed handle.
type Notification struct {
	Handle      uint16
	ValueHandle uint16
	Data        []byte
}

func (Notification) Kind() EventKind { return EvtNotification }

// WriteDone reports completion of a write-with-response.
type WriteDone struct {
	Handle      uint16
	ValueHandle uint16
	Status      uint8
}

func (WriteDone) Kind() EventKind { return EvtWriteDone }

// MTUExchanged reports the negotiated transfer size for a link.
type MTUExchanged struct {
	Handle uint16
	MTU    int
}

func (MTUExchanged) Kind() EventKind { return EvtMTUExchanged }

// CentralConnected reports an incoming connection while advertising.
type CentralConnected struct {
	Handle   uint16
	AddrType AddrType
	Addr     Addr
}

func (CentralConnected) Kind() EventKind { return EvtCentralConnected }

// CentralDisconnected reports loss of a peripheral-role link.
type CentralDisconnected struct {
	Handle uint16
	Reason uint8
}

func (CentralDisconnected) Kind() EventKind { return EvtCentralDisconnected }

// GattsWrite reports a write by a connected central into the local
// attribute table.
type GattsWrite struct {
	Handle      uint16
	ValueHandle uint16
	Data        []byte
}

func (GattsWrite) Kind() EventKind { return EvtGattsWrite }

// EventSink is the single entry point through which the radio subsystem
// delivers every event. Delivery must be serial: processing of one event
// completes before the next is dispatched. A radio stack may invoke the
// sink synchronously from inside a command issued by the core.
type EventSink interface {
	HandleEvent(e Event)
}
