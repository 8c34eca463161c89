package engine

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	ble "github.com/antonvh/btbricks"
)

// State is the connection machine state. States advance monotonically;
// the only way back is a disconnect, which destroys the context.
type State uint8

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateReady
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateDiscoveringServices:
		return "discovering_services"
	case StateDiscoveringCharacteristics:
		return "discovering_characteristics"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// LinkRole is the side of the link this context represents.
type LinkRole uint8

const (
	RoleCentral LinkRole = iota
	RolePeripheral
)

// Context is the authoritative state of one connection: protocol tag,
// machine state, bound handle, peer address, discovered handle range,
// role to value-handle bindings and the negotiated transfer size.
type Context struct {
	mu sync.Mutex

	tag  string
	role LinkRole

	state  State
	handle uint16
	bound  bool

	addrType ble.AddrType
	addr     ble.Addr

	start, end uint16
	values     map[ble.Role]uint16
	mtu        int
}

func newContext(tag string, role LinkRole, t ble.AddrType, a ble.Addr) *Context {
	return &Context{
		tag:      tag,
		role:     role,
		state:    StateConnecting,
		addrType: t,
		addr:     a,
		values:   make(map[ble.Role]uint16),
	}
}

func (c *Context) Tag() string            { return c.tag }
func (c *Context) Role() LinkRole         { return c.role }
func (c *Context) Addr() ble.Addr         { return c.addr }
func (c *Context) AddrType() ble.AddrType { return c.addrType }

// State returns the current machine state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// advance moves the machine forward. Backward transitions are refused;
// a disconnect resets by destroying the context, never by rewinding it.
func (c *Context) advance(s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s <= c.state {
		return false
	}
	c.state = s
	return true
}

// Handle returns the connection handle, valid only once bound.
func (c *Context) Handle() (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle, c.bound
}

// SetRange records the discovered service handle range.
func (c *Context) SetRange(start, end uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start, c.end = start, end
}

// Range returns the discovered service handle range.
func (c *Context) Range() (start, end uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start, c.end, c.end != 0
}

// SetValueHandle binds a characteristic role to its value handle.
func (c *Context) SetValueHandle(r ble.Role, vh uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[r] = vh
}

// ValueHandle returns the value handle bound to a role.
func (c *Context) ValueHandle(r ble.Role) (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vh, ok := c.values[r]
	return vh, ok
}

// ValueHandles returns a copy of the role bindings.
func (c *Context) ValueHandles() map[ble.Role]uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	vv := make(map[ble.Role]uint16, len(c.values))
	for r, vh := range c.values {
		vv[r] = vh
	}
	return vv
}

// SetMTU records the negotiated transfer size.
func (c *Context) SetMTU(mtu int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mtu = mtu
}

// MTU returns the negotiated transfer size, zero if never exchanged.
func (c *Context) MTU() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtu
}

func (c *Context) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("context(%s, %s, handle=%04X, roles=%d)", c.tag, c.state, c.handle, len(c.values))
}

// Table is the per-connection context store, indexed by connection
// handle. At most one live context may hold a given handle.
type Table struct {
	mu       sync.Mutex
	byHandle map[uint16]*Context
}

// NewTable returns an empty context table.
func NewTable() *Table {
	return &Table{byHandle: make(map[uint16]*Context)}
}

// Create allocates a context in the connecting state, before the
// connect command is issued. The handle is unknown until accepted.
func (t *Table) Create(tag string, role LinkRole, at ble.AddrType, a ble.Addr) *Context {
	return newContext(tag, role, at, a)
}

// Bind attaches the accepted connection handle to a context and indexes
// it. Central contexts move to service discovery; peripheral contexts
// move straight to ready, their attribute table being fixed at startup.
func (t *Table) Bind(c *Context, handle uint16) error {
	t.mu.Lock()
	if live, ok := t.byHandle[handle]; ok {
		t.mu.Unlock()
		return errors.Errorf("handle %04X already bound to a live %s context", handle, live.tag)
	}
	t.byHandle[handle] = c
	t.mu.Unlock()

	c.mu.Lock()
	c.handle = handle
	c.bound = true
	if c.role == RolePeripheral {
		c.state = StateReady
	} else {
		c.state = StateDiscoveringServices
	}
	c.mu.Unlock()
	return nil
}

// Lookup returns the live context for a handle.
func (t *Table) Lookup(handle uint16) (*Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byHandle[handle]
	return c, ok
}

// Remove unindexes the context for a handle and returns it.
func (t *Table) Remove(handle uint16) (*Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byHandle[handle]
	if ok {
		delete(t.byHandle, handle)
	}
	return c, ok
}

// Len returns the number of live bound contexts.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byHandle)
}
