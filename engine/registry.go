package engine

import (
	"sync"

	ble "github.com/antonvh/btbricks"
)

// CallbackKind classifies the event a callback listens for. Notify and
// write entries are keyed by value handle, write-done and disconnected
// entries by connection handle.
type CallbackKind uint8

const (
	CbNotify CallbackKind = iota + 1
	CbWrite
	CbWriteDone
	CbDisconnected
)

func (k CallbackKind) String() string {
	switch k {
	case CbNotify:
		return "notify"
	case CbWrite:
		return "write"
	case CbWriteDone:
		return "write_done"
	case CbDisconnected:
		return "disconnected"
	default:
		return "callback(?)"
	}
}

// Callback receives the routed event. The handler runs on the dispatch
// path and must not block.
type Callback func(e ble.Event)

type cbKey struct {
	handle uint16
	kind   CallbackKind
}

// Registry maps (handle, event kind) to a single callback. It replaces
// scattered per-kind callback maps with one store that can be drained
// atomically with context teardown.
type Registry struct {
	mu      sync.Mutex
	entries map[cbKey]Callback
}

// NewRegistry returns an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[cbKey]Callback)}
}

// Register stores the callback for (handle, kind). Overwriting an
// existing entry is allowed and logged; last write wins. A nil callback
// removes the entry.
func (r *Registry) Register(handle uint16, kind CallbackKind, cb Callback) {
	k := cbKey{handle, kind}

	r.mu.Lock()
	_, existed := r.entries[k]
	if cb == nil {
		delete(r.entries, k)
	} else {
		r.entries[k] = cb
	}
	r.mu.Unlock()

	if existed && cb != nil {
		logger.Warn("registry", "overwriting callback", kind.String(), "for handle", handle)
	}
}

// Trigger invokes the callback for (handle, kind), if any. A missing
// entry is the normal no-listener case, not an error. The callback runs
// outside the registry lock.
func (r *Registry) Trigger(handle uint16, kind CallbackKind, e ble.Event) bool {
	r.mu.Lock()
	cb, ok := r.entries[cbKey{handle, kind}]
	r.mu.Unlock()

	if !ok {
		return false
	}
	cb(e)
	return true
}

// Cleanup removes every entry for a handle, across all kinds. It must
// run before the handle's context is removed so no callback can fire
// against a destroyed context.
func (r *Registry) Cleanup(handle uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.entries {
		if k.handle == handle {
			delete(r.entries, k)
			n++
		}
	}
	return n
}

// Remove drops the single entry for (handle, kind), if present.
func (r *Registry) Remove(handle uint16, kind CallbackKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, cbKey{handle, kind})
}

// CountFor returns the number of entries keyed by a handle.
func (r *Registry) CountFor(handle uint16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k := range r.entries {
		if k.handle == handle {
			n++
		}
	}
	return n
}
