package btbricks

import "time"

// OptionHandler is implemented by the engine to accept configuration
// options.
type OptionHandler interface {
	SetConnectTimeout(time.Duration) error
	SetScanWindow(time.Duration) error
	SetTargetMTU(int) error
	SetHandleCache(HandleCache) error
	SetMaxPeripheralLinks(int) error
}

// An Option is a configuration function, which configures the engine.
type Option func(OptionHandler) error

// OptConnectTimeout bounds a whole connect attempt: scan, connect and
// GATT completion. A manager not reaching ready within the bound
// self-cancels and reports ErrConnectTimeout.
func OptConnectTimeout(d time.Duration) Option {
	return func(opt OptionHandler) error {
		return opt.SetConnectTimeout(d)
	}
}

// OptScanWindow sets the scan window handed to the radio per scan
// session.
func OptScanWindow(d time.Duration) Option {
	return func(opt OptionHandler) error {
		return opt.SetScanWindow(d)
	}
}

// OptTargetMTU requests an MTU exchange toward the given transfer size
// once a central-role link completes discovery. Zero disables the
// exchange.
func OptTargetMTU(mtu int) Option {
	return func(opt OptionHandler) error {
		return opt.SetTargetMTU(mtu)
	}
}

// OptHandleCache installs a cache of discovered handle profiles,
// enabling the reconnect fast path.
func OptHandleCache(c HandleCache) Option {
	return func(opt OptionHandler) error {
		return opt.SetHandleCache(c)
	}
}

// OptMaxPeripheralLinks bounds the number of simultaneous incoming
// central connections accepted while advertising.
func OptMaxPeripheralLinks(n int) Option {
	return func(opt OptionHandler) error {
		return opt.SetMaxPeripheralLinks(n)
	}
}
