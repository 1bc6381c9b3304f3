// Package logic contains the pure decision rules of the motion sensor.
// This package has NO external dependencies (no hardware, radio, OS, or clocks).
// Side effects are described as values and executed by the caller.
package logic

import "fmt"

// State is the power state of the device.
type State string

const (
	StateIdle            State = "IDLE"
	StateActive          State = "ACTIVE"
	StateConnectedIdle   State = "CONNECTED_IDLE"
	StateConnectedActive State = "CONNECTED_ACTIVE"
)

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateActive, StateConnectedIdle, StateConnectedActive:
		return true
	}
	return false
}

// Connected reports whether a peer link is up in this state.
func (s State) Connected() bool {
	return s == StateConnectedIdle || s == StateConnectedActive
}

// Event is something that happened to the device.
type Event string

const (
	EventConnected                 Event = "CONNECTED"
	EventDisconnected              Event = "DISCONNECTED"
	EventMotionDetected            Event = "MOTION_DETECTED"
	EventActivityThresholdExceeded Event = "ACTIVITY_THRESHOLD_EXCEEDED"
	EventActiveTimeoutExpired      Event = "ACTIVE_TIMEOUT_EXPIRED"
	// EventIdleIntervalChanged is raised by the configuration apply path when
	// the idle advertising interval may have changed.
	EventIdleIntervalChanged Event = "IDLE_INTERVAL_CHANGED"
)

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	switch e {
	case EventConnected, EventDisconnected, EventMotionDetected,
		EventActivityThresholdExceeded, EventActiveTimeoutExpired,
		EventIdleIntervalChanged:
		return true
	}
	return false
}

// Effect is a collaborator action the caller must execute, in order.
type Effect int

const (
	// EffectStopAdvertising stops the radio advertising.
	EffectStopAdvertising Effect = iota + 1
	// EffectAdvertiseIdle (re)starts advertising at the idle interval.
	EffectAdvertiseIdle
	// EffectAdvertiseActive (re)starts advertising at the active interval.
	EffectAdvertiseActive
	// EffectArmInterrupt arms the wake-on-motion interrupt.
	EffectArmInterrupt
	// EffectDisarmInterrupt disarms the wake-on-motion interrupt.
	EffectDisarmInterrupt
	// EffectScheduleTimeout replaces any pending active timeout with a new one.
	EffectScheduleTimeout
	// EffectCancelTimeout cancels the pending active timeout, if any.
	EffectCancelTimeout
)

var effectNames = map[Effect]string{
	EffectStopAdvertising: "stop_advertising",
	EffectAdvertiseIdle:   "advertise_idle",
	EffectAdvertiseActive: "advertise_active",
	EffectArmInterrupt:    "arm_interrupt",
	EffectDisarmInterrupt: "disarm_interrupt",
	EffectScheduleTimeout: "schedule_timeout",
	EffectCancelTimeout:   "cancel_timeout",
}

func (k Effect) String() string {
	if n, ok := effectNames[k]; ok {
		return n
	}
	return fmt.Sprintf("effect(%d)", int(k))
}

// Sample is one accelerometer reading in milli-g.
type Sample struct {
	X int16
	Y int16
	Z int16
}
