package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/power"
	"github.com/sweeney/motion-sensor/internal/radio"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*stepTimer
}

type stepTimer struct {
	at   time.Time
	f    func()
	done bool
}

func (c *stepClock) AfterFunc(d time.Duration, f func()) power.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &stepTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return &stepHandle{c: c, t: t}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

type stepHandle struct {
	c *stepClock
	t *stepTimer
}

func (h *stepHandle) Stop() bool {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	was := !h.t.done
	h.t.done = true
	return was
}

// mirrorRadio is a radio.Fake that also records mirrored configuration.
type mirrorRadio struct {
	*radio.Fake
	mu      sync.Mutex
	records [][]byte
	modes   []byte
}

func (m *mirrorRadio) MirrorConfig(record []byte, mode byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, append([]byte(nil), record...))
	m.modes = append(m.modes, mode)
	return nil
}

type harness struct {
	sensor *sensor.Fake
	radio  *mirrorRadio
	clock  *stepClock
	coord  *Coordinator
}

func newHarness(t *testing.T, samples ...logic.Sample) *harness {
	t.Helper()
	if len(samples) == 0 {
		samples = []logic.Sample{{Z: 1000}}
	}
	h := &harness{
		sensor: sensor.NewFake(samples...),
		radio:  &mirrorRadio{Fake: radio.NewFake()},
		clock:  &stepClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	h.coord = New(Options{
		Sensor: h.sensor,
		Radio:  h.radio,
		Clock:  h.clock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, h.coord.Start())
	return h
}

func (h *harness) connect() {
	h.radio.SetConnected(true)
	h.coord.OnConnected()
}

func TestStartAppliesDefaultsAndAdvertises(t *testing.T) {
	h := newHarness(t)

	advertising, interval := h.radio.AdvertisingState()
	assert.True(t, advertising)
	assert.Equal(t, uint16(1000), interval)
	assert.True(t, h.sensor.IsArmed())

	rng, odr, threshold := h.sensor.Settings()
	assert.Equal(t, config.Range2G, rng)
	assert.Equal(t, uint16(50), odr)
	assert.Equal(t, uint8(50), threshold)
	assert.Equal(t, config.StreamFiltered, h.coord.Gate().StreamMode())
	assert.Equal(t, logic.StateIdle, h.coord.Machine().State())
}

func TestStartAdvertisesOnce(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []uint16{1000}, h.radio.StartCalls)
	assert.Equal(t, 1, h.radio.StopCalls)
}

func TestStartAndConfigWriteStayInStep(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := sensor.NewFake(logic.Sample{})
		c := New(Options{Sensor: s, Radio: radio.NewFake(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Start()
		}()
		go func() {
			defer wg.Done()
			_ = c.OnStreamModeWrite([]byte{byte(config.StreamRaw)}, 0)
		}()
		wg.Wait()

		require.Equal(t, config.StreamRaw, c.Store().Get().StreamMode)
		require.Equal(t, config.StreamRaw, c.Gate().StreamMode(), "iteration %d", i)
	}
}

func TestConfigWriteAppliesOnlyWhenComplete(t *testing.T) {
	h := newHarness(t)
	want := config.Defaults()
	want.NotifyRateHz = 25
	want.AdvIntervalIdleMs = 2000
	record := config.Encode(want)

	applied, err := h.coord.OnConfigWrite(record[:6], 0)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, config.Defaults(), h.coord.Store().Get(), "first chunk must not apply")

	applied, err = h.coord.OnConfigWrite(record[6:], 6)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, want, h.coord.Store().Get())
	assert.Equal(t, record, h.coord.ConfigRecord())

	_, interval := h.radio.AdvertisingState()
	assert.Equal(t, uint16(2000), interval, "idle interval restarts immediately")
	_, odr, _ := h.sensor.Settings()
	assert.Equal(t, uint16(25), odr)

	require.Len(t, h.radio.records, 1)
	assert.Equal(t, record, h.radio.records[0])
}

func TestConfigWriteRejectedKeepsPrevious(t *testing.T) {
	h := newHarness(t)
	bad := config.Defaults()
	bad.NotifyRateHz = 101

	applied, err := h.coord.OnConfigWrite(config.Encode(bad), 0)

	assert.False(t, applied)
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "notify_rate_hz", verr.Field)
	assert.Equal(t, config.Defaults(), h.coord.Store().Get())
	assert.Empty(t, h.radio.records)
}

func TestConfigWriteBadOffset(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.OnConfigWrite([]byte{1, 2, 3}, 10)

	assert.ErrorIs(t, err, config.ErrInvalidOffset)
	assert.Equal(t, config.Defaults(), h.coord.Store().Get())
}

func TestStreamModeWrite(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.coord.OnStreamModeWrite([]byte{byte(config.StreamRaw)}, 0))
	assert.Equal(t, config.StreamRaw, h.coord.Store().Get().StreamMode)
	assert.Equal(t, config.StreamRaw, h.coord.Gate().StreamMode())
	assert.Equal(t, []byte{byte(config.StreamRaw)}, h.radio.modes)

	var verr *config.ValidationError
	assert.ErrorAs(t, h.coord.OnStreamModeWrite([]byte{3}, 0), &verr)
	assert.Equal(t, config.StreamRaw, h.coord.Store().Get().StreamMode)

	assert.ErrorIs(t, h.coord.OnStreamModeWrite([]byte{0, 1}, 0), config.ErrInvalidOffset)
	assert.ErrorIs(t, h.coord.OnStreamModeWrite([]byte{0}, 1), config.ErrInvalidOffset)
}

func TestActivityPromotionAndTimeout(t *testing.T) {
	h := newHarness(t, logic.Sample{X: 400, Y: 400})
	h.connect()
	require.Equal(t, logic.StateConnectedIdle, h.coord.Machine().State())

	r := h.coord.Scheduler().Tick()
	require.True(t, r.Promoted)
	assert.Equal(t, logic.StateConnectedActive, h.coord.Machine().State())
	assert.False(t, h.sensor.IsArmed())
	assert.Len(t, h.radio.Sent(), 1)

	h.clock.Advance(4999 * time.Millisecond)
	assert.Equal(t, logic.StateConnectedActive, h.coord.Machine().State())

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, logic.StateConnectedIdle, h.coord.Machine().State())
	assert.True(t, h.sensor.IsArmed())
	assert.False(t, h.coord.Machine().TimeoutPending())
}

func TestDisconnectDuringActiveCancelsTimeout(t *testing.T) {
	h := newHarness(t, logic.Sample{X: 400, Y: 400})
	var links []Link
	h.coord.OnLink(func(l Link) { links = append(links, l) })

	h.connect()
	h.coord.Scheduler().Tick()
	require.Equal(t, logic.StateConnectedActive, h.coord.Machine().State())

	h.radio.SetConnected(false)
	h.coord.OnDisconnected(0x13)
	assert.Equal(t, logic.StateIdle, h.coord.Machine().State())

	h.clock.Advance(time.Minute)
	assert.Equal(t, logic.StateIdle, h.coord.Machine().State(), "no late demotion")

	require.Len(t, links, 2)
	assert.True(t, links[0].Connected)
	assert.False(t, links[1].Connected)
	assert.Equal(t, uint8(0x13), links[1].Reason)
}

func TestMotionInterruptWakesIdleDevice(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()

	require.True(t, h.sensor.Fire())

	require.Eventually(t, func() bool {
		return h.coord.Machine().State() == logic.StateActive
	}, time.Second, 5*time.Millisecond)
	advertising, interval := h.radio.AdvertisingState()
	assert.True(t, advertising)
	assert.Equal(t, uint16(100), interval)
	assert.False(t, h.sensor.Fire(), "interrupt disarmed while active")

	fired, dropped := h.coord.Bridge().Stats()
	assert.Equal(t, uint64(1), fired)
	assert.Zero(t, dropped)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSensorReadFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.sensor.ReadError = errors.New("bus error")

	r := h.coord.Scheduler().Tick()

	assert.Error(t, r.ReadErr)
	assert.Empty(t, h.radio.Sent())
	assert.Equal(t, logic.StateConnectedIdle, h.coord.Machine().State())
}

func TestHandlersRouteToCoordinator(t *testing.T) {
	h := newHarness(t)
	handlers := h.coord.Handlers()

	handlers.OnConnected()
	assert.Equal(t, logic.StateConnectedIdle, h.coord.Machine().State())

	assert.ErrorIs(t, handlers.OnConfigWrite(make([]byte, 13), 0), config.ErrInvalidOffset)
	require.NoError(t, handlers.OnStreamModeWrite([]byte{byte(config.StreamEvents)}, 0))
	assert.Equal(t, config.StreamEvents, h.coord.Store().Get().StreamMode)

	handlers.OnDisconnected(0x08)
	assert.Equal(t, logic.StateIdle, h.coord.Machine().State())
}

func TestConfigHooksReportOutcome(t *testing.T) {
	s := sensor.NewFake(logic.Sample{})
	c := New(Options{Sensor: s, Radio: radio.NewFake(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	var changes []ConfigChange
	c.OnConfig(func(ch ConfigChange) { changes = append(changes, ch) })

	require.NoError(t, c.Start())
	require.Len(t, changes, 1)
	assert.Equal(t, config.Defaults(), changes[0].Config)
	assert.NoError(t, changes[0].ApplyErr)

	assert.Error(t, c.OnStreamModeWrite([]byte{9}, 0))
	require.Len(t, changes, 2)
	assert.Error(t, changes[1].Rejected)

	s.SetError = errors.New("i2c nack")
	require.NoError(t, c.OnStreamModeWrite([]byte{byte(config.StreamRaw)}, 0), "degraded apply still accepts the write")
	require.Len(t, changes, 3)
	assert.Error(t, changes[2].ApplyErr)
	assert.Equal(t, config.StreamRaw, changes[2].Config.StreamMode)
}
