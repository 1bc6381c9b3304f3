package logic

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownState is returned when a transition is requested from a state
	// that is not one of the four power states.
	ErrUnknownState = errors.New("unknown power state")
	// ErrUnknownEvent is returned for events outside the transition table.
	ErrUnknownEvent = errors.New("unknown event")
)

// Transition computes the next state and the side effects for an event.
// The table is total: any (state, event) pair it does not list leaves the
// state unchanged and produces no effects.
//
// Leaving ConnectedActive always starts with EffectCancelTimeout, so a pending
// timeout never outlives the state that scheduled it.
func Transition(from State, ev Event) (State, []Effect, error) {
	if !from.Valid() {
		return from, nil, fmt.Errorf("%w: %q", ErrUnknownState, from)
	}
	if !ev.Valid() {
		return from, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}

	to, effects := next(from, ev)
	if to != from && from == StateConnectedActive {
		effects = append([]Effect{EffectCancelTimeout}, effects...)
	}
	return to, effects, nil
}

func next(from State, ev Event) (State, []Effect) {
	switch ev {
	case EventConnected:
		return StateConnectedIdle, []Effect{EffectStopAdvertising, EffectArmInterrupt}

	case EventDisconnected:
		if from.Connected() {
			return StateIdle, []Effect{EffectAdvertiseIdle, EffectArmInterrupt}
		}

	case EventMotionDetected:
		if from == StateIdle {
			return StateActive, []Effect{EffectAdvertiseActive, EffectDisarmInterrupt}
		}

	case EventActivityThresholdExceeded:
		if from == StateConnectedIdle {
			return StateConnectedActive, []Effect{EffectDisarmInterrupt, EffectScheduleTimeout}
		}

	case EventActiveTimeoutExpired:
		if from == StateConnectedActive {
			return StateConnectedIdle, []Effect{EffectArmInterrupt}
		}

	case EventIdleIntervalChanged:
		// Other states pick up the new interval on their next entry to Idle.
		if from == StateIdle {
			return StateIdle, []Effect{EffectAdvertiseIdle}
		}
	}
	return from, nil
}
