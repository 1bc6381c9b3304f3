package internal

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/device"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/mqtt"
	"github.com/sweeney/motion-sensor/internal/power"
	"github.com/sweeney/motion-sensor/internal/radio"
	"github.com/sweeney/motion-sensor/internal/sensor"
	"github.com/sweeney/motion-sensor/internal/status"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) power.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

var (
	rest  = logic.Sample{X: 4, Y: -3, Z: 9}
	shake = logic.Sample{X: 420, Y: -380, Z: 150}
)

type rig struct {
	clock     *manualClock
	sensor    *sensor.Fake
	radio     *radio.Fake
	publisher *mqtt.FakePublisher
	tracker   *status.Tracker
	coord     *device.Coordinator
}

func newRig(t *testing.T) *rig {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &rig{
		clock:     &manualClock{now: start},
		sensor:    sensor.NewFake(rest),
		radio:     radio.NewFake(),
		publisher: mqtt.NewFakePublisher(),
		tracker:   status.NewTracker(start, "integration", status.Settings{Name: "Hopla"}),
	}
	r.coord = device.New(device.Options{
		Sensor: r.sensor,
		Radio:  r.radio,
		Clock:  r.clock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	r.coord.Machine().OnTransition(func(tr power.Transition) {
		r.tracker.RecordTransition(tr)
		if !tr.Changed() {
			return
		}
		if err := r.publisher.Publish(tr); err != nil {
			t.Logf("publish: %v", err)
		}
	})
	r.coord.Scheduler().OnResult(r.tracker.RecordTick)
	r.coord.OnLink(r.tracker.RecordLink)
	r.coord.OnConfig(r.tracker.RecordConfig)

	if err := r.coord.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return r
}

func (r *rig) connect() {
	r.radio.SetConnected(true)
	r.coord.OnConnected()
}

func (r *rig) disconnect(reason uint8) {
	r.radio.SetConnected(false)
	r.coord.OnDisconnected(reason)
}

// TestIntegrationFullFlow drives a connect, burst of motion, active timeout and
// disconnect through the coordinator and checks what reaches MQTT.
func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t)

	if on, iv := r.radio.AdvertisingState(); !on || iv != 1000 {
		t.Fatalf("after start: advertising=%v interval=%d, want true 1000", on, iv)
	}

	r.connect()
	if on, _ := r.radio.AdvertisingState(); on {
		t.Error("still advertising while connected")
	}

	r.sensor.SetSamples(shake, rest)
	res := r.coord.Scheduler().Tick()
	if !res.Promoted {
		t.Fatalf("shake did not promote: %+v", res)
	}
	if got := len(r.radio.Sent()); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}

	r.clock.Advance(4999 * time.Millisecond)
	if s := r.coord.Machine().State(); s != logic.StateConnectedActive {
		t.Fatalf("before timeout: state = %s", s)
	}
	r.clock.Advance(time.Millisecond)
	if s := r.coord.Machine().State(); s != logic.StateConnectedIdle {
		t.Fatalf("after timeout: state = %s", s)
	}

	r.disconnect(0x13)
	if on, iv := r.radio.AdvertisingState(); !on || iv != 1000 {
		t.Errorf("after disconnect: advertising=%v interval=%d, want true 1000", on, iv)
	}

	want := []struct {
		event logic.Event
		to    logic.State
	}{
		{logic.EventConnected, logic.StateConnectedIdle},
		{logic.EventActivityThresholdExceeded, logic.StateConnectedActive},
		{logic.EventActiveTimeoutExpired, logic.StateConnectedIdle},
		{logic.EventDisconnected, logic.StateIdle},
	}
	got := r.publisher.Published()
	if len(got) != len(want) {
		t.Fatalf("published %d transitions, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Event != w.event || got[i].To != w.to {
			t.Errorf("transition %d = %s -> %s, want %s -> %s", i, got[i].Event, got[i].To, w.event, w.to)
		}
	}

	snap := r.tracker.Snapshot()
	if snap.Counts.Promotions != 1 {
		t.Errorf("promotions = %d, want 1", snap.Counts.Promotions)
	}
	if snap.Link.Connected || snap.Link.LastReason != 0x13 {
		t.Errorf("link = %+v, want disconnected with reason 0x13", snap.Link)
	}
}

func TestIntegrationNoPublicationAtStartup(t *testing.T) {
	r := newRig(t)

	if got := r.publisher.Published(); len(got) != 0 {
		t.Errorf("published %d transitions at startup, want 0", len(got))
	}
	if s := r.coord.Machine().State(); s != logic.StateIdle {
		t.Errorf("state = %s, want IDLE", s)
	}
}

func TestIntegrationRestDoesNotPromote(t *testing.T) {
	r := newRig(t)
	r.connect()

	for i := 0; i < 10; i++ {
		if res := r.coord.Scheduler().Tick(); res.Promoted {
			t.Fatalf("tick %d promoted at rest", i)
		}
	}
	if got := len(r.publisher.Published()); got != 1 {
		t.Errorf("published %d transitions, want 1 (connect)", got)
	}
}

func TestIntegrationWakeOnMotionWhileAdvertising(t *testing.T) {
	r := newRig(t)

	if !r.sensor.Fire() {
		t.Fatal("interrupt not armed in IDLE")
	}
	// The bridge posts to the machine queue; drain it the way Run would.
	if _, err := r.coord.Machine().Dispatch(logic.EventMotionDetected); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if s := r.coord.Machine().State(); s != logic.StateActive {
		t.Fatalf("state = %s, want ACTIVE", s)
	}
	if _, iv := r.radio.AdvertisingState(); iv != 100 {
		t.Errorf("active interval = %d, want 100", iv)
	}

	// Only a connection leaves ACTIVE; no timeout runs while advertising.
	if r.coord.Machine().TimeoutPending() {
		t.Error("timeout pending in ACTIVE")
	}
	r.clock.Advance(time.Minute)
	if s := r.coord.Machine().State(); s != logic.StateActive {
		t.Fatalf("after a minute: state = %s, want ACTIVE", s)
	}

	r.connect()
	if s := r.coord.Machine().State(); s != logic.StateConnectedIdle {
		t.Errorf("after connect: state = %s, want CONNECTED_IDLE", s)
	}
	if on, _ := r.radio.AdvertisingState(); on {
		t.Error("still advertising while connected")
	}
}

func TestIntegrationConfigWriteRetunesAdvertising(t *testing.T) {
	r := newRig(t)

	cfg := config.Defaults()
	cfg.AdvIntervalIdleMs = 2000
	cfg.StreamMode = config.StreamRaw
	record := config.Encode(cfg)

	applied, err := r.coord.OnConfigWrite(record[:6], 0)
	if err != nil || applied {
		t.Fatalf("first chunk: applied=%v err=%v", applied, err)
	}
	applied, err = r.coord.OnConfigWrite(record[6:], 6)
	if err != nil || !applied {
		t.Fatalf("second chunk: applied=%v err=%v", applied, err)
	}

	if _, iv := r.radio.AdvertisingState(); iv != 2000 {
		t.Errorf("idle interval = %d, want 2000", iv)
	}
	if got := r.coord.Store().Get(); got != cfg {
		t.Errorf("stored config = %+v, want %+v", got, cfg)
	}
	if got := len(r.publisher.Published()); got != 0 {
		t.Errorf("published %d transitions for a same-state retune, want 0", got)
	}
}

func TestIntegrationPublishFailureDoesNotStall(t *testing.T) {
	r := newRig(t)
	r.publisher.PublishError = errTest("broker gone")

	r.connect()
	r.disconnect(0)
	r.connect()

	if s := r.coord.Machine().State(); s != logic.StateConnectedIdle {
		t.Errorf("state = %s, want CONNECTED_IDLE", s)
	}
	if snap := r.tracker.Snapshot(); snap.Counts.Connects != 2 {
		t.Errorf("connects = %d, want 2", snap.Counts.Connects)
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	r := newRig(t)
	r.connect()

	payloads := r.publisher.Payloads
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(payloads))
	}
	var p mqtt.Payload
	if err := json.Unmarshal(payloads[0], &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Power.Event != "CONNECTED" || p.Power.From != "IDLE" || p.Power.To != "CONNECTED_IDLE" {
		t.Errorf("payload = %+v", p.Power)
	}
	if p.Power.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp = %q", p.Power.Timestamp)
	}
}

func TestIntegrationShutdownStatusAfterActivity(t *testing.T) {
	r := newRig(t)
	r.connect()
	r.sensor.SetSamples(shake, rest)
	r.coord.Scheduler().Tick()

	snap := r.tracker.Snapshot()
	snap.Now = r.clock.Now().Add(time.Minute)
	var got status.StatusJSON
	if err := json.Unmarshal(status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status.Event != "SHUTDOWN" || got.Status.Reason != "SIGTERM" {
		t.Errorf("event = %q reason = %q", got.Status.Event, got.Status.Reason)
	}
	if got.Status.State != string(logic.StateConnectedActive) {
		t.Errorf("state = %q, want CONNECTED_ACTIVE", got.Status.State)
	}
	if got.Status.Counts.Promotions != 1 || got.Status.Counts.Sent != 1 {
		t.Errorf("counts = %+v", got.Status.Counts)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
