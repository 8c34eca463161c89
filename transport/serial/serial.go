// Package serial drives a radio coprocessor over a serial port. The
// wire protocol frames commands out and events back; assembled events
// are decoded and fed to the engine's sink.
package serial

import (
	"io"
	"sync"
	"time"

	goserial "github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"
)

var logger = ble.GetLogger()

const (
	rxQueueSize       = 64
	addServiceTimeout = 2 * time.Second
)

// Options selects the serial port.
type Options struct {
	Port string
	Baud uint
}

// Serial is the ble.Radio implementation over a serial-attached
// coprocessor.
type Serial struct {
	sp  io.ReadWriteCloser
	wmu sync.Mutex

	sink ble.EventSink
	smu  sync.Mutex

	rxQueue chan []byte

	// AddService is the one command with a synchronous reply.
	svcMu      sync.Mutex
	svcPending chan []byte

	done chan struct{}
	cmu  sync.Mutex

	logger ble.Logger
}

// New opens the port and starts the receive loop. The sink must be
// set before events can be delivered.
func New(opts Options) (*Serial, error) {
	if opts.Baud == 0 {
		opts.Baud = 115200
	}
	sp, err := goserial.Open(goserial.OpenOptions{
		PortName:              opts.Port,
		BaudRate:              opts.Baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}

	s := &Serial{
		sp:      sp,
		rxQueue: make(chan []byte, rxQueueSize),
		done:    make(chan struct{}),
		logger:  ble.GetLogger().ChildLogger(map[string]interface{}{"pkg": "serial", "port": opts.Port}),
	}

	go s.rxLoop()
	go s.dispatchLoop()

	return s, nil
}

// Close stops the loops and releases the port.
func (s *Serial) Close() error {
	s.cmu.Lock()
	defer s.cmu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
		return errors.Wrap(s.sp.Close(), "can't close serial port")
	}
}

// SetSink implements ble.Radio.
func (s *Serial) SetSink(sink ble.EventSink) {
	s.smu.Lock()
	s.sink = sink
	s.smu.Unlock()
}

func (s *Serial) currentSink() ble.EventSink {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.sink
}

func (s *Serial) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return s.sp != nil
	}
}

func (s *Serial) send(op byte, payload []byte) error {
	if !s.isOpen() {
		return io.EOF
	}
	fr, err := command(op, payload)
	if err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err = s.sp.Write(fr)
	return errors.Wrap(err, "can't write command")
}

// ScanStart implements ble.Radio.
func (s *Serial) ScanStart(window time.Duration) error {
	ms := window / time.Millisecond
	if ms > 0xffff {
		ms = 0xffff
	}
	return s.send(opScanStart, putUint16(nil, uint16(ms)))
}

// ScanStop implements ble.Radio.
func (s *Serial) ScanStop() error {
	return s.send(opScanStop, nil)
}

// Connect implements ble.Radio.
func (s *Serial) Connect(t ble.AddrType, a ble.Addr) error {
	p, err := putAddr(nil, t, a)
	if err != nil {
		return err
	}
	return s.send(opConnect, p)
}

// ConnectCancel implements ble.Radio.
func (s *Serial) ConnectCancel() error {
	return s.send(opConnectCancel, nil)
}

// Disconnect implements ble.Radio.
func (s *Serial) Disconnect(handle uint16) error {
	return s.send(opDisconnect, putUint16(nil, handle))
}

// DiscoverServices implements ble.Radio.
func (s *Serial) DiscoverServices(handle uint16, svc ble.UUID) error {
	p := putUint16(nil, handle)
	p = putUUID(p, svc)
	return s.send(opDiscoverServices, p)
}

// DiscoverCharacteristics implements ble.Radio.
func (s *Serial) DiscoverCharacteristics(handle, start, end uint16) error {
	p := putUint16(nil, handle)
	p = putUint16(p, start)
	p = putUint16(p, end)
	return s.send(opDiscoverCharacteristics, p)
}

// Write implements ble.Radio.
func (s *Serial) Write(handle, valueHandle uint16, data []byte, withResponse bool) error {
	p := putUint16(nil, handle)
	p = putUint16(p, valueHandle)
	var flags byte
	if withResponse {
		flags |= writeFlagResp
	}
	p = append(p, flags)
	p = append(p, data...)
	return s.send(opWrite, p)
}

// Subscribe implements ble.Radio.
func (s *Serial) Subscribe(handle, valueHandle uint16, enable bool) error {
	p := putUint16(nil, handle)
	p = putUint16(p, valueHandle)
	if enable {
		p = append(p, subscribeOn)
	} else {
		p = append(p, subscribeOff)
	}
	return s.send(opSubscribe, p)
}

// ExchangeMTU implements ble.Radio.
func (s *Serial) ExchangeMTU(handle uint16, mtu int) error {
	p := putUint16(nil, handle)
	p = putUint16(p, uint16(mtu))
	return s.send(opExchangeMTU, p)
}

// Notify implements ble.Radio.
func (s *Serial) Notify(handle, valueHandle uint16, data []byte) error {
	p := putUint16(nil, handle)
	p = putUint16(p, valueHandle)
	p = append(p, data...)
	return s.send(opNotify, p)
}

// AddService implements ble.Radio. It blocks for the coprocessor's
// handle table reply.
func (s *Serial) AddService(layout ble.ServiceLayout) (map[ble.Role]uint16, error) {
	p := putUUID(nil, layout.Service)
	p = append(p, byte(len(layout.Characteristics)))
	for _, ch := range layout.Characteristics {
		p = append(p, byte(len(ch.Role)))
		p = append(p, []byte(ch.Role)...)
		p = putUUID(p, ch.UUID)
		p = append(p, ch.Properties)
	}

	reply := make(chan []byte, 1)
	s.svcMu.Lock()
	if s.svcPending != nil {
		s.svcMu.Unlock()
		return nil, errors.New("service registration already in flight")
	}
	s.svcPending = reply
	s.svcMu.Unlock()

	defer func() {
		s.svcMu.Lock()
		s.svcPending = nil
		s.svcMu.Unlock()
	}()

	if err := s.send(opAddService, p); err != nil {
		return nil, err
	}

	select {
	case fr := <-reply:
		return decodeServiceAdded(fr)
	case <-time.After(addServiceTimeout):
		return nil, errors.New("timeout waiting for service registration")
	case <-s.done:
		return nil, io.EOF
	}
}

// AdvertiseStart implements ble.Radio.
func (s *Serial) AdvertiseStart(payload []byte, interval time.Duration) error {
	ms := interval / time.Millisecond
	p := putUint16(nil, uint16(ms))
	p = append(p, payload...)
	return s.send(opAdvertiseStart, p)
}

// AdvertiseStop implements ble.Radio.
func (s *Serial) AdvertiseStop() error {
	return s.send(opAdvertiseStop, nil)
}

func (s *Serial) rxLoop() {
	fr := newFrame(s.rxQueue)
	tmp := make([]byte, 512)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.sp.Read(tmp)
		if err != nil || n == 0 {
			continue
		}
		fr.Assemble(tmp[:n])
	}
}

// dispatchLoop decodes assembled frames and feeds the sink one event
// at a time, preserving arrival order.
func (s *Serial) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case fr := <-s.rxQueue:
			s.dispatch(fr)
		}
	}
}

func (s *Serial) dispatch(fr []byte) {
	if len(fr) < headerLength {
		return
	}

	if fr[headerOffsetOpcode] == evServiceAdded {
		s.svcMu.Lock()
		pending := s.svcPending
		s.svcMu.Unlock()
		if pending != nil {
			select {
			case pending <- fr:
			default:
			}
		} else {
			s.logger.Warn("unexpected service table frame")
		}
		return
	}

	ev, err := decodeEvent(fr)
	if err != nil {
		s.logger.Warn("dropping frame:", err)
		return
	}

	sink := s.currentSink()
	if sink == nil {
		s.logger.Debug("no sink, dropping event:", ev.Kind())
		return
	}
	sink.HandleEvent(ev)
}
