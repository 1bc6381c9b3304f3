// Package config holds the device operating parameters.
// The Store is a pure data holder: setting a configuration never touches
// hardware. Applying it to the sensor and radio is the caller's job.
package config

import "fmt"

// AccelRange is the accelerometer full-scale range.
type AccelRange uint8

const (
	Range2G AccelRange = iota
	Range4G
	Range8G
	Range16G
)

func (r AccelRange) String() string {
	switch r {
	case Range2G:
		return "2G"
	case Range4G:
		return "4G"
	case Range8G:
		return "8G"
	case Range16G:
		return "16G"
	}
	return fmt.Sprintf("range(%d)", uint8(r))
}

// StreamMode selects how samples are transformed before transmission.
type StreamMode uint8

const (
	StreamRaw StreamMode = iota
	StreamFiltered
	StreamEvents
)

func (m StreamMode) String() string {
	switch m {
	case StreamRaw:
		return "RAW"
	case StreamFiltered:
		return "FILTERED"
	case StreamEvents:
		return "EVENTS"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Bounds on the validated fields.
const (
	MinNotifyRateHz = 1
	MaxNotifyRateHz = 100

	MinAdvIntervalIdleMs = 1000
	MaxAdvIntervalIdleMs = 2000

	MinAdvIntervalActiveMs = 20
	MaxAdvIntervalActiveMs = 100
)

// Config is the complete set of device operating parameters.
type Config struct {
	NotifyRateHz        uint16
	ActiveTimeoutMs     uint16
	AccelRange          AccelRange
	MotionThreshold     uint8
	AdvIntervalIdleMs   uint16
	AdvIntervalActiveMs uint16
	StreamMode          StreamMode
}

// Defaults returns the compiled-in configuration used at startup.
func Defaults() Config {
	return Config{
		NotifyRateHz:        50,
		ActiveTimeoutMs:     5000,
		AccelRange:          Range2G,
		MotionThreshold:     50,
		AdvIntervalIdleMs:   1000,
		AdvIntervalActiveMs: 100,
		StreamMode:          StreamFiltered,
	}
}

// ValidationError identifies the first field of a candidate configuration
// that is out of bounds.
type ValidationError struct {
	Field string
	Value int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %d", e.Field, e.Value)
}

// Validate checks each bounded field in record order and reports the first
// violation. active_timeout_ms and motion_threshold accept their whole range.
func Validate(c Config) error {
	switch {
	case c.NotifyRateHz < MinNotifyRateHz || c.NotifyRateHz > MaxNotifyRateHz:
		return &ValidationError{Field: "notify_rate_hz", Value: int(c.NotifyRateHz)}
	case c.AccelRange > Range16G:
		return &ValidationError{Field: "accel_range", Value: int(c.AccelRange)}
	case c.AdvIntervalIdleMs < MinAdvIntervalIdleMs || c.AdvIntervalIdleMs > MaxAdvIntervalIdleMs:
		return &ValidationError{Field: "adv_interval_idle_ms", Value: int(c.AdvIntervalIdleMs)}
	case c.AdvIntervalActiveMs < MinAdvIntervalActiveMs || c.AdvIntervalActiveMs > MaxAdvIntervalActiveMs:
		return &ValidationError{Field: "adv_interval_active_ms", Value: int(c.AdvIntervalActiveMs)}
	case c.StreamMode > StreamEvents:
		return &ValidationError{Field: "stream_mode", Value: int(c.StreamMode)}
	}
	return nil
}
