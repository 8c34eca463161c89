package btbricks

import "errors"

// Terminal outcomes surfaced to the caller of an in-flight connect or
// advertise call. Radio stack status codes never reach the caller raw;
// they are classified into one of these.
var (
	// ErrAlreadyScanning is returned when a scan is requested while
	// another scan session is active.
	ErrAlreadyScanning = errors.New("scan already in progress")

	// ErrNotFound is returned when a scan session ends without any
	// device matching the search criteria.
	ErrNotFound = errors.New("no matching device found")

	// ErrConnectTimeout is returned when a connect attempt does not
	// reach the ready state within its configured bound. The attempt is
	// cancelled before the error is returned; retry is a caller decision.
	ErrConnectTimeout = errors.New("connect timed out")

	// ErrIncompleteService is returned when characteristic discovery
	// completes without all required characteristic roles present.
	ErrIncompleteService = errors.New("peer service is missing required characteristics")

	// ErrPayloadTooLarge is returned when an advertising payload would
	// exceed the maximum advertising length.
	ErrPayloadTooLarge = errors.New("advertising payload too large")

	// ErrNotReady is returned by data operations issued against a
	// connection that is not in the ready state.
	ErrNotReady = errors.New("connection not ready")

	// ErrConnectionLost is returned when the peer disconnects while a
	// connect attempt is still in flight.
	ErrConnectionLost = errors.New("connection lost")
)
