package uart

import (
	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/engine"
)

// Server is the peripheral side of the UART link: it advertises the
// UART service and serves connecting centrals.
type Server struct {
	peripheral *engine.Peripheral
}

// NewServer builds a UART server on the engine.
func NewServer(e *engine.Engine) (*Server, error) {
	peripheral, err := e.NewPeripheral("uart", ble.ServiceLayout{
		Service: ServiceUUID,
		Characteristics: []ble.CharLayout{
			{Role: RoleRx, UUID: RxUUID, Properties: ble.PropWrite | ble.PropWriteNoResponse},
			{Role: RoleTx, UUID: TxUUID, Properties: ble.PropRead | ble.PropNotify},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Server{peripheral: peripheral}, nil
}

// Start begins advertising under the given name.
func (s *Server) Start(name string) error { return s.peripheral.Start(name) }

// Stop halts advertising; established links stay up.
func (s *Server) Stop() error { return s.peripheral.Stop() }

// Connected reports whether at least one central is attached.
func (s *Server) Connected() bool { return s.peripheral.IsConnected() }

// Send notifies a byte stream to every attached central, split into
// ATT-sized chunks.
func (s *Server) Send(data []byte) error {
	for _, part := range chunk(data, maxChunk) {
		if err := s.peripheral.Send(RoleTx, part); err != nil {
			return err
		}
	}
	return nil
}

// OnReceive registers the listener for bytes written by any central.
// The registration survives disconnects.
func (s *Server) OnReceive(cb func(data []byte)) error {
	return s.peripheral.OnReceive(RoleRx, func(_ uint16, data []byte) { cb(data) })
}
