package btbricks

// HandleProfile is the discovered layout of one peer: the service handle
// range plus the value handle bound to each characteristic role.
type HandleProfile struct {
	Service string          `json:"service"`
	Start   uint16          `json:"start"`
	End     uint16          `json:"end"`
	Roles   map[Role]uint16 `json:"roles"`
}

// HandleCache persists discovered handle profiles per peer address so a
// reconnect can skip GATT discovery.
type HandleCache interface {
	// Store records the profile for a peer. With replace false, storing
	// over an existing profile is an error.
	Store(a Addr, p HandleProfile, replace bool) error

	// Load returns the stored profile for a peer.
	Load(a Addr) (HandleProfile, error)

	// Invalidate removes the stored profile for a peer, if any.
	Invalidate(a Addr) error

	// Clear removes all stored profiles.
	Clear() error
}
