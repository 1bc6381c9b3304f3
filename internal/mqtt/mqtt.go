// Package mqtt publishes power state transitions and daemon lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/motion-sensor/internal/power"
)

// Topic is the MQTT topic for power state transitions.
const Topic = "motion/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "motion/sensor/system"

// Publisher publishes events to MQTT. Publishing failures are returned to
// the caller, who logs them; they never stop the daemon.
type Publisher interface {
	// Publish sends a power state transition.
	Publish(tr power.Transition) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event such as STARTUP or SHUTDOWN.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // signal name for SHUTDOWN
	// RawPayload, if set, is published as is (full status snapshots).
	RawPayload []byte
	Retained   bool
}

// Payload is the message published on Topic.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload describes one transition.
type PowerPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	// Degraded is set when a radio or sensor call failed during the
	// transition.
	Degraded bool `json:"degraded,omitempty"`
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(tr power.Transition) ([]byte, error) {
	return json.Marshal(Payload{
		Power: PowerPayload{
			Timestamp: tr.At.UTC().Format(time.RFC3339),
			Event:     string(tr.Event),
			From:      string(tr.From),
			To:        string(tr.To),
			Degraded:  tr.Err != nil,
		},
	})
}

// SystemPayload is the message published on TopicSystem for events that do
// not carry a status snapshot (the will message, RECONNECTED).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
