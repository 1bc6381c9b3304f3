package radio

import "sync"

// Fake records radio calls for test assertions. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// Connected controls whether Notify succeeds.
	Connected bool

	Advertising bool
	Interval    uint16
	// StartCalls records every StartAdvertising interval in order.
	StartCalls []uint16
	StopCalls  int

	// Notifications contains every payload delivered while connected.
	Notifications [][]byte

	// StartError, if set, is returned by StartAdvertising.
	StartError error
	// StopError, if set, is returned by StopAdvertising.
	StopError error
	// NotifyError, if set, is returned by Notify while connected.
	NotifyError error
}

// NewFake creates a disconnected Fake.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) StartAdvertising(intervalMs uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls = append(f.StartCalls, intervalMs)
	if f.StartError != nil {
		return f.StartError
	}
	f.Advertising = true
	f.Interval = intervalMs
	return nil
}

func (f *Fake) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	if f.StopError != nil {
		return f.StopError
	}
	f.Advertising = false
	return nil
}

func (f *Fake) Notify(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Connected {
		return ErrNotConnected
	}
	if f.NotifyError != nil {
		return f.NotifyError
	}
	f.Notifications = append(f.Notifications, append([]byte(nil), data...))
	return nil
}

// SetConnected changes the simulated link state.
func (f *Fake) SetConnected(connected bool) {
	f.mu.Lock()
	f.Connected = connected
	f.mu.Unlock()
}

// AdvertisingState returns whether the fake is advertising and at what interval.
func (f *Fake) AdvertisingState() (bool, uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Advertising, f.Interval
}

// Sent returns a copy of the delivered notifications.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.Notifications...)
}

// Reset clears recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls = nil
	f.StopCalls = 0
	f.Notifications = nil
	f.StartError = nil
	f.StopError = nil
	f.NotifyError = nil
}
