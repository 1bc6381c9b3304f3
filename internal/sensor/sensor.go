// Package sensor provides accelerometer access with hardware abstraction.
// The real implementation uses the Linux IIO sysfs interface for samples and
// settings and a GPIO character device line for the motion interrupt.
// The fake implementation allows testing without hardware.
package sensor

import (
	"errors"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
)

// ErrNotSupported is returned where the platform cannot drive the sensor.
var ErrNotSupported = errors.New("sensor: not supported on this platform")

// Sensor programs the accelerometer and reads samples from it.
// Calls are expected to return promptly or fail fast.
type Sensor interface {
	SetRange(r config.AccelRange) error

	// SetOutputDataRate selects the nearest supported rate at or above hz
	// and returns the rate actually programmed.
	SetOutputDataRate(hz uint16) (uint16, error)

	SetMotionThreshold(threshold uint8) error

	// ArmMotionInterrupt enables or disables wake-on-motion.
	// Disarming an already disarmed interrupt is a no-op.
	ArmMotionInterrupt(armed bool) error

	ReadSample() (logic.Sample, error)

	Close() error
}

// InterruptSource delivers wake-on-motion interrupts. The handler runs on the
// source's own goroutine and must not block.
type InterruptSource interface {
	OnMotion(handler func())
}

// SupportedODRs are the output data rates the accelerometer can run at, in Hz.
var SupportedODRs = []uint16{1, 10, 25, 50, 100, 200, 400, 1600}

// NearestODR returns the first supported rate >= hz, or the highest rate.
func NearestODR(hz uint16) uint16 {
	for _, r := range SupportedODRs {
		if r >= hz {
			return r
		}
	}
	return SupportedODRs[len(SupportedODRs)-1]
}

// ThresholdMilliG converts a configured motion threshold to milli-g.
func ThresholdMilliG(threshold uint8) int {
	return int(threshold) * 16
}
