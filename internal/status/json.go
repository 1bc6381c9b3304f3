package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/motion-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	BootID        string      `json:"boot_id"`
	Name          string      `json:"name"`
	Demo          bool        `json:"demo,omitempty"`
	State         string      `json:"state"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Link          LinkJSON    `json:"link"`
	Counts        CountsJSON  `json:"counts"`
	LastSample    *SampleJSON `json:"last_sample,omitempty"`
	Config        ConfigJSON  `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LinkJSON reports the BLE peer link.
type LinkJSON struct {
	Connected  bool   `json:"connected"`
	Since      string `json:"since,omitempty"`
	LastReason string `json:"last_disconnect_reason"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Transitions     int    `json:"transitions"`
	Samples         int    `json:"samples"`
	ReadErrors      int    `json:"read_errors"`
	Sent            int    `json:"notifications_sent"`
	Dropped         int    `json:"notifications_dropped"`
	Suppressed      int    `json:"notifications_suppressed"`
	NotifyFailures  int    `json:"notify_failures"`
	Promotions      int    `json:"promotions"`
	DegradedApplies int    `json:"degraded_applies"`
	RejectedConfigs int    `json:"rejected_configs"`
	Interrupts      uint64 `json:"interrupts"`
	InterruptDrops  uint64 `json:"interrupts_dropped"`
	Connects        int    `json:"connects"`
	Disconnects     int    `json:"disconnects"`
	EffectFailures  int    `json:"effect_failures"`
}

// SampleJSON is the last accelerometer reading in milli-g.
type SampleJSON struct {
	X         int16 `json:"x"`
	Y         int16 `json:"y"`
	Z         int16 `json:"z"`
	Magnitude int64 `json:"magnitude"`
}

// ConfigJSON is the JSON representation of the device configuration.
type ConfigJSON struct {
	NotifyRateHz        uint16 `json:"notify_rate_hz"`
	ActiveTimeoutMs     uint16 `json:"active_timeout_ms"`
	AccelRange          string `json:"accel_range"`
	MotionThreshold     uint8  `json:"motion_threshold"`
	AdvIntervalIdleMs   uint16 `json:"adv_interval_idle_ms"`
	AdvIntervalActiveMs uint16 `json:"adv_interval_active_ms"`
	StreamMode          string `json:"stream_mode"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		BootID:        snap.BootID,
		Name:          snap.Settings.Name,
		Demo:          snap.Settings.Demo,
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Settings.Broker},
		Link: LinkJSON{
			Connected:  snap.Link.Connected,
			LastReason: fmt.Sprintf("0x%02x", snap.Link.LastReason),
		},
		Counts: CountsJSON(snap.Counts),
		Config: ConfigJSON{
			NotifyRateHz:        snap.Config.NotifyRateHz,
			ActiveTimeoutMs:     snap.Config.ActiveTimeoutMs,
			AccelRange:          snap.Config.AccelRange.String(),
			MotionThreshold:     snap.Config.MotionThreshold,
			AdvIntervalIdleMs:   snap.Config.AdvIntervalIdleMs,
			AdvIntervalActiveMs: snap.Config.AdvIntervalActiveMs,
			StreamMode:          snap.Config.StreamMode.String(),
		},
	}
	if !snap.Link.Since.IsZero() {
		inner.Link.Since = snap.Link.Since.UTC().Format(time.RFC3339)
	}
	if s := snap.LastSample; s != nil {
		inner.LastSample = &SampleJSON{X: s.X, Y: s.Y, Z: s.Z, Magnitude: logic.Magnitude(*s)}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
