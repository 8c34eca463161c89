// Package engine correlates the serial stream of asynchronous radio
// events against per-connection state: it owns the context table, the
// callback registry, the discovery session and the protocol connection
// machines built on top of them.
package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"
)

var logger = ble.GetLogger()

const (
	defaultConnectTimeout = 10 * time.Second
	defaultScanWindow     = 10 * time.Second
	defaultMaxLinks       = 3

	advInterval = 100 * time.Millisecond
)

// Engine is the single event-correlation hub. All radio events enter
// through HandleEvent, strictly in arrival order on one logical thread
// of control; handlers tolerate re-entrant invocation because a radio
// may complete a command synchronously inside the issuing call.
type Engine struct {
	radio     ble.Radio
	table     *Table
	registry  *Registry
	discovery *Discovery

	connectTimeout time.Duration
	scanWindow     time.Duration
	targetMTU      int
	cache          ble.HandleCache
	maxLinks       int

	// The platform supports a single central-role link; the machine
	// holding the claim receives all client GATT events.
	muCentral sync.Mutex
	central   *Central

	muServers  sync.Mutex
	advertiser *Peripheral
	servers    map[uint16]*Peripheral

	logger ble.Logger
}

// New wires an engine to its radio and registers the event sink.
func New(radio ble.Radio, opts ...ble.Option) (*Engine, error) {
	e := &Engine{
		radio:          radio,
		table:          NewTable(),
		registry:       NewRegistry(),
		discovery:      NewDiscovery(radio),
		connectTimeout: defaultConnectTimeout,
		scanWindow:     defaultScanWindow,
		maxLinks:       defaultMaxLinks,
		servers:        make(map[uint16]*Peripheral),
		logger:         ble.GetLogger().ChildLogger(map[string]interface{}{"pkg": "engine"}),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, errors.Wrap(err, "can't set options")
		}
	}

	radio.SetSink(e)
	return e, nil
}

// Table exposes the connection context table.
func (e *Engine) Table() *Table { return e.table }

// Registry exposes the callback registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Discovery exposes the scan session manager.
func (e *Engine) Discovery() *Discovery { return e.discovery }

// Radio returns the radio control handle.
func (e *Engine) Radio() ble.Radio { return e.radio }

// SetConnectTimeout implements ble.OptionHandler.
func (e *Engine) SetConnectTimeout(d time.Duration) error {
	if d <= 0 {
		return errors.New("connect timeout must be positive")
	}
	e.connectTimeout = d
	return nil
}

// SetScanWindow implements ble.OptionHandler.
func (e *Engine) SetScanWindow(d time.Duration) error {
	if d <= 0 {
		return errors.New("scan window must be positive")
	}
	e.scanWindow = d
	return nil
}

// SetTargetMTU implements ble.OptionHandler.
func (e *Engine) SetTargetMTU(mtu int) error {
	if mtu < 0 {
		return errors.New("target mtu must not be negative")
	}
	e.targetMTU = mtu
	return nil
}

// SetHandleCache implements ble.OptionHandler.
func (e *Engine) SetHandleCache(c ble.HandleCache) error {
	e.cache = c
	return nil
}

// SetMaxPeripheralLinks implements ble.OptionHandler.
func (e *Engine) SetMaxPeripheralLinks(n int) error {
	if n < 1 {
		return errors.New("at least one peripheral link required")
	}
	e.maxLinks = n
	return nil
}

func (e *Engine) claimCentral(c *Central) bool {
	e.muCentral.Lock()
	defer e.muCentral.Unlock()
	if e.central != nil && e.central != c {
		return false
	}
	e.central = c
	return true
}

func (e *Engine) releaseCentral(c *Central) {
	e.muCentral.Lock()
	defer e.muCentral.Unlock()
	if e.central == c {
		e.central = nil
	}
}

func (e *Engine) currentCentral() *Central {
	e.muCentral.Lock()
	defer e.muCentral.Unlock()
	return e.central
}

func (e *Engine) claimAdvertiser(p *Peripheral) error {
	e.muServers.Lock()
	defer e.muServers.Unlock()
	if e.advertiser != nil && e.advertiser != p {
		return errors.Errorf("another peripheral (%s) is advertising", e.advertiser.tag)
	}
	e.advertiser = p
	return nil
}

func (e *Engine) releaseAdvertiser(p *Peripheral) {
	e.muServers.Lock()
	defer e.muServers.Unlock()
	if e.advertiser == p {
		e.advertiser = nil
	}
}

func (e *Engine) currentAdvertiser() *Peripheral {
	e.muServers.Lock()
	defer e.muServers.Unlock()
	return e.advertiser
}

func (e *Engine) serverFor(handle uint16) (*Peripheral, bool) {
	e.muServers.Lock()
	defer e.muServers.Unlock()
	p, ok := e.servers[handle]
	return p, ok
}

func (e *Engine) bindServer(handle uint16, p *Peripheral) {
	e.muServers.Lock()
	defer e.muServers.Unlock()
	e.servers[handle] = p
}

func (e *Engine) unbindServer(handle uint16) {
	e.muServers.Lock()
	defer e.muServers.Unlock()
	delete(e.servers, handle)
}

// teardown runs exactly once per disconnect: it drains the callback
// registry for the handle, then removes the context. A repeated
// disconnect for an already-torn-down handle is ignored and logged,
// never an error.
func (e *Engine) teardown(handle uint16) {
	ctx, ok := e.table.Lookup(handle)
	if !ok {
		e.logger.Warn("teardown for unknown handle, ignoring:", handle)
		return
	}

	ctx.advance(StateDisconnecting)

	n := e.registry.Cleanup(handle)

	// Central-role contexts also own notify entries keyed by the peer's
	// value handles; the peer attribute table dies with the connection.
	if ctx.Role() == RoleCentral {
		for _, vh := range ctx.ValueHandles() {
			e.registry.Remove(vh, CbNotify)
		}
	}

	e.table.Remove(handle)
	ctx.advance(StateClosed)

	e.logger.Debug("teardown complete for handle", handle, "entries drained:", n)
}
