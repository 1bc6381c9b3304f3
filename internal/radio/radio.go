// Package radio provides the BLE link with abstraction for testing.
package radio

import "errors"

var (
	// ErrNotConnected is returned by Notify when no peer is connected.
	// It is expected in the disconnected states and is not a fault.
	ErrNotConnected = errors.New("radio: not connected")
	// ErrNotSupported is returned where the platform has no BLE stack.
	ErrNotSupported = errors.New("radio: not supported on this platform")
)

// Radio advertises the device and sends notifications to a connected peer.
type Radio interface {
	// StartAdvertising (re)starts advertising at the given interval.
	StartAdvertising(intervalMs uint16) error

	StopAdvertising() error

	// Notify sends one notification. It returns ErrNotConnected when no
	// peer is connected.
	Notify(data []byte) error
}

// Handlers receives peer-initiated events from a real radio. Each handler
// runs on the BLE stack's goroutine. Nil handlers are skipped.
type Handlers struct {
	OnConnected    func()
	OnDisconnected func(reason uint8)

	// OnConfigWrite receives writes to the configuration characteristic.
	// A non-nil error rejects the write.
	OnConfigWrite func(p []byte, offset int) error
	// OnStreamModeWrite receives writes to the stream mode characteristic.
	OnStreamModeWrite func(p []byte, offset int) error
}
