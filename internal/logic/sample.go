package logic

import "time"

const (
	// ActivityThreshold is the magnitude above which a connected, idle device
	// is promoted to connected-active. It is independent of the configurable
	// wake-on-motion threshold programmed into the sensor.
	ActivityThreshold = 100

	// MinPeriod bounds the sampling cadence from below.
	MinPeriod = 10 * time.Millisecond
)

// Magnitude returns (x² + y² + z²) / 1000 using integer division.
// Squares are summed in 64 bits so full-scale readings cannot overflow.
func Magnitude(s Sample) int64 {
	x, y, z := int64(s.X), int64(s.Y), int64(s.Z)
	return (x*x + y*y + z*z) / 1000
}

// ExceedsActivity reports whether the sample should promote a connected,
// idle device to connected-active.
func ExceedsActivity(s Sample) bool {
	return Magnitude(s) > ActivityThreshold
}

// Period returns the sampling period for a notify rate:
// max(10ms, 1000/rateHz ms) with floor division.
// A zero rate yields MinPeriod.
func Period(rateHz uint16) time.Duration {
	if rateHz == 0 {
		return MinPeriod
	}
	p := time.Duration(1000/uint32(rateHz)) * time.Millisecond
	if p < MinPeriod {
		return MinPeriod
	}
	return p
}
