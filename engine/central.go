package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"
)

// RoleSpec declares one characteristic role a protocol expects on the
// peer: the UUID that identifies it during discovery, whether the
// connection is unusable without it, and whether notifications should
// be enabled once the link is ready.
type RoleSpec struct {
	Role      ble.Role
	UUID      ble.UUID
	Required  bool
	Subscribe bool
}

// ProtocolConfig parametrizes the shared central-role connection
// machine for one protocol. One configuration record replaces
// copy-pasted per-protocol connect logic.
type ProtocolConfig struct {
	Tag     string
	Service ble.UUID
	Roles   []RoleSpec
}

func (cfg ProtocolConfig) roleFor(u ble.UUID) (RoleSpec, bool) {
	for _, rs := range cfg.Roles {
		if rs.UUID.Equal(u) {
			return rs, true
		}
	}
	return RoleSpec{}, false
}

func (cfg ProtocolConfig) missingRequired(c *Context) []ble.Role {
	var missing []ble.Role
	for _, rs := range cfg.Roles {
		if !rs.Required {
			continue
		}
		if _, ok := c.ValueHandle(rs.Role); !ok {
			missing = append(missing, rs.Role)
		}
	}
	return missing
}

type connectResult struct {
	handle uint16
	err    error
}

// Central drives the central-role machine for one protocol:
// scan, connect, discover services and characteristics, subscribe,
// exchange MTU, ready. One terminal outcome per attempt, no automatic
// retry.
type Central struct {
	eng *Engine
	cfg ProtocolConfig

	mu        sync.Mutex
	ctx       *Context
	done      chan connectResult
	fromCache bool

	logger ble.Logger
}

// NewCentral builds the connection machine for a protocol
// configuration.
func (e *Engine) NewCentral(cfg ProtocolConfig) (*Central, error) {
	if cfg.Tag == "" {
		return nil, errors.New("protocol tag required")
	}
	if len(cfg.Service) == 0 {
		return nil, errors.New("protocol service uuid required")
	}
	if len(cfg.Roles) == 0 {
		return nil, errors.New("at least one characteristic role required")
	}
	return &Central{
		eng:    e,
		cfg:    cfg,
		logger: ble.GetLogger().ChildLogger(map[string]interface{}{"proto": cfg.Tag}),
	}, nil
}

// Config returns the protocol configuration driving the machine.
func (c *Central) Config() ProtocolConfig { return c.cfg }

// Connect scans for a peer matching the criteria, connects, and runs
// GATT setup. It blocks until the link is ready or a terminal failure:
// ErrNotFound, ErrConnectTimeout, ErrIncompleteService or
// ErrConnectionLost. On success the bound connection handle is
// returned.
func (c *Central) Connect(criteria SearchCriteria, timeout time.Duration) (uint16, error) {
	if criteria.Empty() {
		return 0, errors.New("empty search criteria")
	}
	if timeout <= 0 {
		timeout = c.eng.connectTimeout
	}

	if !c.eng.claimCentral(c) {
		return 0, errors.New("a central connection is already active")
	}

	c.mu.Lock()
	if c.ctx != nil {
		c.mu.Unlock()
		return 0, errors.New("connection machine already in use")
	}
	// Buffered: the radio may complete the whole attempt synchronously
	// before this goroutine reaches the select below.
	done := make(chan connectResult, 1)
	c.done = done
	c.fromCache = false
	c.mu.Unlock()

	c.logger.Info("connecting, name:", criteria.Name, "service:", c.cfg.Service.String())

	if err := c.eng.discovery.Start(criteria, c.eng.scanWindow, c.onScanOutcome); err != nil {
		c.reset()
		c.eng.releaseCentral(c)
		return 0, err
	}

	select {
	case r := <-done:
		if r.err != nil {
			c.reset()
			c.eng.releaseCentral(c)
			return 0, r.err
		}
		return r.handle, nil

	case <-time.After(timeout):
		// Self-cancel so no half-open context leaks; the failure is
		// terminal, retry is the caller's decision.
		c.cancel()
		return 0, ble.ErrConnectTimeout
	}
}

// Disconnect drops the link, safe from any state.
func (c *Central) Disconnect() error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil {
		return nil
	}
	h, bound := ctx.Handle()
	if !bound {
		c.cancel()
		return nil
	}
	ctx.advance(StateDisconnecting)
	return c.eng.radio.Disconnect(h)
}

// Ready reports whether the link reached the ready state.
func (c *Central) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx != nil && c.ctx.State() == StateReady
}

// Handle returns the bound connection handle.
func (c *Central) Handle() (uint16, bool) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return 0, false
	}
	return ctx.Handle()
}

// ValueHandle returns the value handle bound to a role once ready.
func (c *Central) ValueHandle(r ble.Role) (uint16, bool) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return 0, false
	}
	return ctx.ValueHandle(r)
}

// MTU returns the negotiated transfer size, zero if never exchanged.
func (c *Central) MTU() int {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return 0
	}
	return ctx.MTU()
}

// Send writes a payload to the peer characteristic bound to the role.
func (c *Central) Send(role ble.Role, payload []byte) error {
	return c.send(role, payload, false)
}

// SendWithResponse writes requesting a write response; completion is
// observable through OnWriteDone.
func (c *Central) SendWithResponse(role ble.Role, payload []byte) error {
	return c.send(role, payload, true)
}

func (c *Central) send(role ble.Role, payload []byte, withResponse bool) error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil || ctx.State() != StateReady {
		return ble.ErrNotReady
	}
	h, _ := ctx.Handle()
	vh, ok := ctx.ValueHandle(role)
	if !ok {
		return errors.Errorf("no value handle for role %q", role)
	}
	return c.eng.radio.Write(h, vh, payload, withResponse)
}

// OnReceive registers the notification listener for a role. Last
// registration wins; the entry dies with the connection.
func (c *Central) OnReceive(role ble.Role, cb func(data []byte)) error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil || ctx.State() != StateReady {
		return ble.ErrNotReady
	}
	vh, ok := ctx.ValueHandle(role)
	if !ok {
		return errors.Errorf("no value handle for role %q", role)
	}
	c.eng.registry.Register(vh, CbNotify, func(e ble.Event) {
		if n, ok := e.(ble.Notification); ok {
			cb(n.Data)
		}
	})
	return nil
}

// OnDisconnected registers a listener fired once when the link drops.
func (c *Central) OnDisconnected(cb func()) error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil {
		return ble.ErrNotReady
	}
	h, bound := ctx.Handle()
	if !bound {
		return ble.ErrNotReady
	}
	c.eng.registry.Register(h, CbDisconnected, func(ble.Event) { cb() })
	return nil
}

// OnWriteDone registers a listener for write-with-response completions.
func (c *Central) OnWriteDone(cb func(valueHandle uint16, status uint8)) error {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil {
		return ble.ErrNotReady
	}
	h, bound := ctx.Handle()
	if !bound {
		return ble.ErrNotReady
	}
	c.eng.registry.Register(h, CbWriteDone, func(e ble.Event) {
		if w, ok := e.(ble.WriteDone); ok {
			cb(w.ValueHandle, w.Status)
		}
	})
	return nil
}

func (c *Central) ownsHandle(h uint16) bool {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return false
	}
	ch, bound := ctx.Handle()
	return bound && ch == h
}

func (c *Central) reset() {
	c.mu.Lock()
	c.ctx = nil
	c.done = nil
	c.mu.Unlock()
}

func (c *Central) complete(r connectResult) {
	c.mu.Lock()
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if done == nil {
		return
	}
	select {
	case done <- r:
	default:
	}
}

// cancel aborts the in-flight attempt according to its state.
func (c *Central) cancel() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if ctx == nil {
		// Still scanning.
		if err := c.eng.discovery.Stop(); err != nil {
			c.logger.Warn("scan stop on cancel:", err)
		}
		c.reset()
		c.eng.releaseCentral(c)
		return
	}

	h, bound := ctx.Handle()
	if !bound {
		// Connect issued but not accepted yet.
		if err := c.eng.radio.ConnectCancel(); err != nil {
			c.logger.Warn("connect cancel:", err)
		}
		ctx.advance(StateClosed)
		c.reset()
		c.eng.releaseCentral(c)
		return
	}

	// GATT setup in progress; a clean disconnect tears the rest down.
	ctx.advance(StateDisconnecting)
	if err := c.eng.radio.Disconnect(h); err != nil {
		c.logger.Warn("disconnect on cancel:", err)
	}
}

// onScanOutcome resolves the discovery stage: a nil record means the
// session ended without a match.
func (c *Central) onScanOutcome(r *ble.ScanResult) {
	if r == nil {
		c.eng.releaseCentral(c)
		c.complete(connectResult{err: ble.ErrNotFound})
		return
	}

	c.logger.Info("matched", r.Addr.String(), "name:", r.Name, "rssi:", r.RSSI)

	ctx := c.eng.table.Create(c.cfg.Tag, RoleCentral, r.AddrType, r.Addr)
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if err := c.eng.radio.Connect(r.AddrType, r.Addr); err != nil {
		ctx.advance(StateClosed)
		c.reset()
		c.eng.releaseCentral(c)
		c.complete(connectResult{err: errors.Wrap(err, "connect command")})
	}
}

// handleEvent consumes client GATT events while the machine owns the
// central link. Events addressed to other handles are ignored: their
// context is already gone.
func (c *Central) handleEvent(ev ble.Event) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return
	}

	switch v := ev.(type) {
	case ble.ConnectComplete:
		if ctx.State() != StateConnecting {
			return
		}
		c.onConnected(ctx, v)

	case ble.ServiceResult:
		if !c.ownsHandle(v.Handle) || ctx.State() != StateDiscoveringServices {
			return
		}
		if v.UUID.Equal(c.cfg.Service) {
			ctx.SetRange(v.Start, v.End)
		}

	case ble.ServiceDone:
		if !c.ownsHandle(v.Handle) || ctx.State() != StateDiscoveringServices {
			return
		}
		start, end, ok := ctx.Range()
		if !ok {
			// Service absent means the required roles can never appear.
			c.fail(ctx, ble.ErrIncompleteService)
			return
		}
		ctx.advance(StateDiscoveringCharacteristics)
		if err := c.eng.radio.DiscoverCharacteristics(v.Handle, start, end); err != nil {
			c.fail(ctx, errors.Wrap(err, "characteristic discovery"))
		}

	case ble.CharacteristicResult:
		if !c.ownsHandle(v.Handle) || ctx.State() != StateDiscoveringCharacteristics {
			return
		}
		if rs, ok := c.cfg.roleFor(v.UUID); ok {
			ctx.SetValueHandle(rs.Role, v.ValueHandle)
		}

	case ble.CharacteristicDone:
		if !c.ownsHandle(v.Handle) || ctx.State() != StateDiscoveringCharacteristics {
			return
		}
		if missing := c.cfg.missingRequired(ctx); len(missing) > 0 {
			c.logger.Warn("missing required roles:", missing)
			c.fail(ctx, ble.ErrIncompleteService)
			return
		}
		c.finishSetup(ctx, v.Handle)
	}
}

func (c *Central) onConnected(ctx *Context, v ble.ConnectComplete) {
	if err := c.eng.table.Bind(ctx, v.Handle); err != nil {
		c.logger.Error("handle bind:", err)
		c.complete(connectResult{err: err})
		ctx.advance(StateDisconnecting)
		if derr := c.eng.radio.Disconnect(v.Handle); derr != nil {
			c.logger.Warn("disconnect after bind failure:", derr)
		}
		return
	}

	// Reconnect fast path: a cached handle profile skips discovery.
	if prof, ok := c.loadCachedProfile(ctx); ok {
		ctx.SetRange(prof.Start, prof.End)
		for role, vh := range prof.Roles {
			ctx.SetValueHandle(role, vh)
		}
		c.mu.Lock()
		c.fromCache = true
		c.mu.Unlock()
		c.logger.Debug("handle profile cache hit for", ctx.Addr().String())
		c.finishSetup(ctx, v.Handle)
		return
	}

	if err := c.eng.radio.DiscoverServices(v.Handle, c.cfg.Service); err != nil {
		c.fail(ctx, errors.Wrap(err, "service discovery"))
	}
}

func (c *Central) loadCachedProfile(ctx *Context) (ble.HandleProfile, bool) {
	if c.eng.cache == nil {
		return ble.HandleProfile{}, false
	}
	prof, err := c.eng.cache.Load(ctx.Addr())
	if err != nil {
		return ble.HandleProfile{}, false
	}
	if prof.Service != c.cfg.Service.String() {
		return ble.HandleProfile{}, false
	}
	for _, rs := range c.cfg.Roles {
		if _, ok := prof.Roles[rs.Role]; rs.Required && !ok {
			return ble.HandleProfile{}, false
		}
	}
	return prof, true
}

// finishSetup subscribes notify roles, requests the MTU exchange and
// moves the link to ready. MTU negotiation is best effort and does not
// gate readiness.
func (c *Central) finishSetup(ctx *Context, handle uint16) {
	for _, rs := range c.cfg.Roles {
		if !rs.Subscribe {
			continue
		}
		vh, ok := ctx.ValueHandle(rs.Role)
		if !ok {
			continue
		}
		if err := c.eng.radio.Subscribe(handle, vh, true); err != nil {
			c.logger.Warn("subscribe", rs.Role, ":", err)
		}
	}

	if c.eng.targetMTU > 0 {
		if err := c.eng.radio.ExchangeMTU(handle, c.eng.targetMTU); err != nil {
			c.logger.Warn("mtu exchange:", err)
		}
	}

	c.storeProfile(ctx)

	ctx.advance(StateReady)
	c.logger.Info("ready, handle:", handle)
	c.complete(connectResult{handle: handle})
}

func (c *Central) storeProfile(ctx *Context) {
	c.mu.Lock()
	fromCache := c.fromCache
	c.mu.Unlock()
	if c.eng.cache == nil || fromCache {
		return
	}

	start, end, _ := ctx.Range()
	prof := ble.HandleProfile{
		Service: c.cfg.Service.String(),
		Start:   start,
		End:     end,
		Roles:   ctx.ValueHandles(),
	}
	if err := c.eng.cache.Store(ctx.Addr(), prof, true); err != nil {
		c.logger.Warn("handle profile store:", err)
	}
}

// fail resolves the attempt with a terminal error and drops the link.
// The attempt resolves before the disconnect is issued: a radio
// completing the disconnect synchronously must not override the
// outcome.
func (c *Central) fail(ctx *Context, err error) {
	if c.eng.cache != nil && errors.Cause(err) == ble.ErrIncompleteService {
		if cerr := c.eng.cache.Invalidate(ctx.Addr()); cerr != nil {
			c.logger.Warn("cache invalidate:", cerr)
		}
	}

	c.complete(connectResult{err: err})

	ctx.advance(StateDisconnecting)
	if h, bound := ctx.Handle(); bound {
		if derr := c.eng.radio.Disconnect(h); derr != nil {
			c.logger.Warn("disconnect on failure:", derr)
		}
	}
}

// handleDisconnect resolves a still-pending attempt when the peer drops
// the link first; called by the router before teardown.
func (c *Central) handleDisconnect() {
	c.complete(connectResult{err: ble.ErrConnectionLost})
	c.reset()
}
