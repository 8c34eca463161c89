package uart

import (
	"time"

	"github.com/antonvh/btbricks/engine"
)

// Client is the central side of the UART link: it finds a named peer
// advertising the UART service, attaches, and exchanges byte streams.
type Client struct {
	central *engine.Central
}

// NewClient builds a UART client on the engine.
func NewClient(e *engine.Engine) (*Client, error) {
	central, err := e.NewCentral(engine.ProtocolConfig{
		Tag:     "uart",
		Service: ServiceUUID,
		Roles: []engine.RoleSpec{
			{Role: RoleRx, UUID: RxUUID, Required: true},
			{Role: RoleTx, UUID: TxUUID, Required: true, Subscribe: true},
		},
	})
	if err != nil {
		return nil, err
	}
	return &Client{central: central}, nil
}

// Connect attaches to the peer advertising under the given name. It
// blocks until the link is ready or fails terminally.
func (c *Client) Connect(name string, timeout time.Duration) error {
	_, err := c.central.Connect(engine.SearchCriteria{Name: name}, timeout)
	return err
}

// ConnectAny attaches to the first peer advertising the UART service.
func (c *Client) ConnectAny(timeout time.Duration) error {
	_, err := c.central.Connect(engine.SearchCriteria{Service: ServiceUUID}, timeout)
	return err
}

// Disconnect drops the link.
func (c *Client) Disconnect() error { return c.central.Disconnect() }

// Connected reports whether the link is up and ready.
func (c *Client) Connected() bool { return c.central.Ready() }

// Send writes a byte stream to the peer, split into ATT-sized chunks.
func (c *Client) Send(data []byte) error {
	size := maxChunk
	if mtu := c.central.MTU(); mtu > 3 {
		size = mtu - 3
	}
	for _, part := range chunk(data, size) {
		if err := c.central.Send(RoleRx, part); err != nil {
			return err
		}
	}
	return nil
}

// OnReceive registers the listener for bytes arriving from the peer.
func (c *Client) OnReceive(cb func(data []byte)) error {
	return c.central.OnReceive(RoleTx, cb)
}

// OnDisconnected registers a listener fired when the link drops.
func (c *Client) OnDisconnected(cb func()) error {
	return c.central.OnDisconnected(cb)
}
