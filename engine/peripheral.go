package engine

import (
	"sync"

	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"

	"github.com/antonvh/btbricks/adv"
)

// Peripheral runs the peripheral-role machine for one local GATT
// service: register the table once, advertise, accept central links up
// to the configured limit, notify and receive writes.
type Peripheral struct {
	eng    *Engine
	tag    string
	layout ble.ServiceLayout

	mu          sync.Mutex
	handles     map[ble.Role]uint16
	pending     map[ble.Role]func(handle uint16, data []byte)
	registered  bool
	advertising bool
	name        string
	payload     []byte
	links       map[uint16]*Context

	logger ble.Logger
}

// NewPeripheral builds the advertising machine for a local service
// layout. The GATT table is registered lazily on the first Start.
func (e *Engine) NewPeripheral(tag string, layout ble.ServiceLayout) (*Peripheral, error) {
	if tag == "" {
		return nil, errors.New("peripheral tag required")
	}
	if len(layout.Service) == 0 {
		return nil, errors.New("service uuid required")
	}
	if len(layout.Characteristics) == 0 {
		return nil, errors.New("at least one characteristic required")
	}
	return &Peripheral{
		eng:     e,
		tag:     tag,
		layout:  layout,
		pending: make(map[ble.Role]func(uint16, []byte)),
		links:   make(map[uint16]*Context),
		logger:  ble.GetLogger().ChildLogger(map[string]interface{}{"proto": tag}),
	}, nil
}

// Start registers the service table if needed, builds the advertising
// payload and begins advertising under the given name. An oversized
// payload surfaces ErrPayloadTooLarge before any radio traffic.
func (p *Peripheral) Start(name string) error {
	p.mu.Lock()
	registered := p.registered
	p.mu.Unlock()

	if !registered {
		handles, err := p.eng.radio.AddService(p.layout)
		if err != nil {
			return errors.Wrap(err, "service registration")
		}
		p.mu.Lock()
		p.handles = handles
		p.registered = true
		held := p.pending
		p.pending = nil
		p.mu.Unlock()
		p.logger.Debug("service registered, roles:", len(handles))

		for role, cb := range held {
			vh, ok := handles[role]
			if !ok {
				p.logger.Warn("no value handle for held listener, role:", string(role))
				continue
			}
			p.bindWriteListener(vh, cb)
		}
	}

	pkt, err := adv.NewPacket(
		adv.Flags(adv.FlagGeneralDiscoverable|adv.FlagLEOnly),
		adv.CompleteName(name),
		adv.AllUUID(p.layout.Service),
	)
	if err != nil {
		return err
	}

	if err := p.eng.claimAdvertiser(p); err != nil {
		return err
	}

	p.mu.Lock()
	p.name = name
	p.payload = pkt.Bytes()
	p.advertising = true
	p.mu.Unlock()

	if err := p.eng.radio.AdvertiseStart(pkt.Bytes(), advInterval); err != nil {
		p.mu.Lock()
		p.advertising = false
		p.mu.Unlock()
		p.eng.releaseAdvertiser(p)
		return errors.Wrap(err, "advertise start")
	}
	p.logger.Info("advertising as", name)
	return nil
}

// Stop halts advertising. Established links stay up.
func (p *Peripheral) Stop() error {
	p.mu.Lock()
	advertising := p.advertising
	p.advertising = false
	p.mu.Unlock()

	if !advertising {
		return nil
	}
	err := p.eng.radio.AdvertiseStop()
	p.eng.releaseAdvertiser(p)
	return err
}

// IsConnected reports whether at least one central link is up.
func (p *Peripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links) > 0
}

// Links returns the number of live central links.
func (p *Peripheral) Links() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}

// ValueHandle returns the local value handle bound to a role.
func (p *Peripheral) ValueHandle(r ble.Role) (uint16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[r]
	return h, ok
}

// Send notifies the role's characteristic value to every connected
// central. With no links up it returns ErrNotReady.
func (p *Peripheral) Send(role ble.Role, payload []byte) error {
	p.mu.Lock()
	vh, ok := p.handles[role]
	handles := make([]uint16, 0, len(p.links))
	for h := range p.links {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	if !ok {
		return errors.Errorf("no value handle for role %q", role)
	}
	if len(handles) == 0 {
		return ble.ErrNotReady
	}

	var firstErr error
	for _, h := range handles {
		if err := p.eng.radio.Notify(h, vh, payload); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "notify handle %d", h)
		}
	}
	return firstErr
}

// OnReceive registers the listener for central writes to a role's
// characteristic. The entry is keyed by the fixed local value handle
// and lives for the peripheral's lifetime, surviving disconnects.
// Before the first Start the value handles are unknown, so the
// listener is held back and bound once the table is registered.
func (p *Peripheral) OnReceive(role ble.Role, cb func(handle uint16, data []byte)) error {
	if !p.layout.HasRole(role) {
		return errors.Errorf("role %q not in service layout", role)
	}

	p.mu.Lock()
	if !p.registered {
		p.pending[role] = cb
		p.mu.Unlock()
		return nil
	}
	vh, ok := p.handles[role]
	p.mu.Unlock()

	if !ok {
		return errors.Errorf("no value handle for role %q", role)
	}
	p.bindWriteListener(vh, cb)
	return nil
}

func (p *Peripheral) bindWriteListener(vh uint16, cb func(handle uint16, data []byte)) {
	p.eng.registry.Register(vh, CbWrite, func(e ble.Event) {
		if w, ok := e.(ble.GattsWrite); ok {
			cb(w.Handle, w.Data)
		}
	})
}

// OnDisconnected registers a listener for a specific central link.
func (p *Peripheral) OnDisconnected(handle uint16, cb func()) {
	p.eng.registry.Register(handle, CbDisconnected, func(ble.Event) { cb() })
}

// handleCentralConnected accepts an incoming central link, enforcing
// the link limit.
func (p *Peripheral) handleCentralConnected(v ble.CentralConnected) {
	p.mu.Lock()
	full := len(p.links) >= p.eng.maxLinks
	p.mu.Unlock()

	if full {
		p.logger.Warn("link limit reached, dropping central", v.Addr.String())
		if err := p.eng.radio.Disconnect(v.Handle); err != nil {
			p.logger.Warn("disconnect over-limit central:", err)
		}
		return
	}

	ctx := p.eng.table.Create(p.tag, RolePeripheral, v.AddrType, v.Addr)
	if err := p.eng.table.Bind(ctx, v.Handle); err != nil {
		p.logger.Error("handle bind:", err)
		if derr := p.eng.radio.Disconnect(v.Handle); derr != nil {
			p.logger.Warn("disconnect after bind failure:", derr)
		}
		return
	}

	p.mu.Lock()
	p.links[v.Handle] = ctx
	count := len(p.links)
	p.mu.Unlock()
	p.eng.bindServer(v.Handle, p)

	p.logger.Info("central connected, handle:", v.Handle, "links:", count)

	// Most radios stop advertising on an incoming connection; resume
	// while capacity remains.
	p.resumeAdvertising()
}

// handleCentralDisconnected forgets the link; the engine has already
// torn its context down.
func (p *Peripheral) handleCentralDisconnected(handle uint16) {
	p.mu.Lock()
	delete(p.links, handle)
	count := len(p.links)
	p.mu.Unlock()

	p.logger.Info("central disconnected, handle:", handle, "links:", count)
	p.resumeAdvertising()
}

func (p *Peripheral) resumeAdvertising() {
	p.mu.Lock()
	resume := p.advertising && len(p.links) < p.eng.maxLinks
	payload := p.payload
	p.mu.Unlock()

	if !resume {
		return
	}
	if err := p.eng.radio.AdvertiseStart(payload, advInterval); err != nil {
		p.logger.Warn("advertise resume:", err)
	}
}
