package engine

import (
	"sync"
	"time"

	ble "github.com/antonvh/btbricks"
)

// SearchCriteria selects a device during a scan session: a record
// matches on advertised name equality or on membership of the service
// UUID in its advertised service list. Criteria are scoped to one
// session.
type SearchCriteria struct {
	Name    string
	Service ble.UUID
}

// Match reports whether a scan record satisfies the criteria.
func (c SearchCriteria) Match(r ble.ScanResult) bool {
	if c.Name != "" && r.Name == c.Name {
		return true
	}
	if len(c.Service) > 0 && ble.Contains(r.Services, c.Service) {
		return true
	}
	return false
}

// Empty reports whether the criteria select nothing.
func (c SearchCriteria) Empty() bool {
	return c.Name == "" && len(c.Service) == 0
}

// Discovery owns the single scan session the radio supports. Matching
// lives here so the per-protocol managers don't duplicate scan logic.
type Discovery struct {
	mu        sync.Mutex
	radio     ble.Radio
	active    bool
	criteria  SearchCriteria
	deliver   func(*ble.ScanResult)
	observers []*scanObserver
}

type scanObserver struct {
	fn func(ble.ScanResult)
}

// NewDiscovery returns a discovery engine issuing scan commands against
// the given radio.
func NewDiscovery(radio ble.Radio) *Discovery {
	return &Discovery{radio: radio}
}

// Start opens a scan session. deliver is called exactly once: with the
// first matching record (first match wins; scanning stops immediately),
// or with nil when the session ends without a match. A second Start
// while a session is active fails with ErrAlreadyScanning.
func (d *Discovery) Start(criteria SearchCriteria, window time.Duration, deliver func(*ble.ScanResult)) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return ble.ErrAlreadyScanning
	}
	d.active = true
	d.criteria = criteria
	d.deliver = deliver
	d.mu.Unlock()

	// The radio may complete synchronously and re-enter the scan
	// handlers below, so no lock is held across the command.
	if err := d.radio.ScanStart(window); err != nil {
		d.mu.Lock()
		d.active = false
		d.deliver = nil
		d.mu.Unlock()
		return err
	}
	return nil
}

// Stop abandons the active session without resolving its waiter. Used
// by managers that time out and resolve the failure themselves.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	d.active = false
	d.deliver = nil
	d.mu.Unlock()

	return d.radio.ScanStop()
}

// IsScanning reports whether a session is active.
func (d *Discovery) IsScanning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// HandleScanResult processes one advertisement report.
func (d *Discovery) HandleScanResult(r ble.ScanResult) {
	d.mu.Lock()
	obs := make([]*scanObserver, len(d.observers))
	copy(obs, d.observers)
	d.mu.Unlock()

	for _, o := range obs {
		o.fn(r)
	}

	d.mu.Lock()
	if !d.active || !d.criteria.Match(r) {
		d.mu.Unlock()
		return
	}
	// First match wins; no ranking happens here.
	d.active = false
	deliver := d.deliver
	d.deliver = nil
	d.mu.Unlock()

	if err := d.radio.ScanStop(); err != nil {
		logger.Warn("discovery", "scan stop after match:", err)
	}
	if deliver != nil {
		deliver(&r)
	}
}

// HandleScanDone processes the end of the scan window. A session still
// active at this point saw no match and resolves with no record.
func (d *Discovery) HandleScanDone() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	deliver := d.deliver
	d.deliver = nil
	d.mu.Unlock()

	if deliver != nil {
		deliver(nil)
	}
}

// Observe registers a passive observer called for every scan record of
// every session. The returned function removes it.
func (d *Discovery) Observe(fn func(ble.ScanResult)) func() {
	o := &scanObserver{fn: fn}

	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, v := range d.observers {
			if v == o {
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				break
			}
		}
	}
}
