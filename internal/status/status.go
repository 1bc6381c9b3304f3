// Package status provides a thread-safe status tracker for the motion-sensor daemon.
// It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/device"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/power"
	"github.com/sweeney/motion-sensor/internal/sampler"
	"github.com/sweeney/motion-sensor/internal/stream"
)

// Settings contains daemon settings for display.
type Settings struct {
	Name     string
	Broker   string
	HTTPAddr string
	Demo     bool
}

// Counts are cumulative counters since boot.
type Counts struct {
	Transitions     int
	Samples         int
	ReadErrors      int
	Sent            int
	Dropped         int
	Suppressed      int
	NotifyFailures  int
	Promotions      int
	DegradedApplies int
	RejectedConfigs int
	Interrupts      uint64
	InterruptDrops  uint64
	Connects        int
	Disconnects     int
	EffectFailures  int
}

// Link is the peer connection as last reported.
type Link struct {
	Connected bool
	Since     time.Time
	// LastReason is the reason code of the most recent disconnect.
	LastReason uint8
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	State         logic.State
	Config        config.Config
	Counts        Counts
	LastSample    *logic.Sample
	Link          Link
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Settings      Settings
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	last logic.Sample
}

// NewTracker creates a Tracker for the boot identified by bootID.
func NewTracker(startTime time.Time, bootID string, settings Settings) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			State:     logic.StateIdle,
			Config:    config.Defaults(),
			StartTime: startTime,
			Settings:  settings,
		},
	}
}

// RecordTransition is a power.Machine transition hook.
func (t *Tracker) RecordTransition(tr power.Transition) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = tr.To
	if tr.Changed() {
		t.snap.Counts.Transitions++
	}
	if tr.Err != nil {
		t.snap.Counts.EffectFailures++
	}
}

// RecordTick is a sampler.Scheduler result hook.
func (t *Tracker) RecordTick(r sampler.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &t.snap.Counts
	if r.ReadErr != nil {
		c.ReadErrors++
		return
	}
	c.Samples++
	t.last = r.Sample
	t.snap.LastSample = &t.last
	switch r.Outcome {
	case stream.Sent:
		c.Sent++
	case stream.Dropped:
		c.Dropped++
	case stream.Suppressed:
		c.Suppressed++
	case stream.Failed:
		c.NotifyFailures++
	}
	if r.Promoted {
		c.Promotions++
	}
}

// RecordLink is a device.Coordinator link hook.
func (t *Tracker) RecordLink(l device.Link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Link.Connected = l.Connected
	t.snap.Link.Since = l.At
	if l.Connected {
		t.snap.Counts.Connects++
	} else {
		t.snap.Counts.Disconnects++
		t.snap.Link.LastReason = l.Reason
	}
}

// RecordConfig is a device.Coordinator configuration hook.
func (t *Tracker) RecordConfig(ch device.ConfigChange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch.Rejected != nil {
		t.snap.Counts.RejectedConfigs++
		return
	}
	t.snap.Config = ch.Config
	if ch.ApplyErr != nil {
		t.snap.Counts.DegradedApplies++
	}
}

// SetInterrupts sets the interrupt bridge counters.
func (t *Tracker) SetInterrupts(fired, dropped uint64) {
	t.mu.Lock()
	t.snap.Counts.Interrupts = fired
	t.snap.Counts.InterruptDrops = dropped
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastSample != nil {
		sample := *s.LastSample
		s.LastSample = &sample
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
