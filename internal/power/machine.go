// Package power owns the device power state: the transition function's side
// effects, the active timeout, and the configuration apply path.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/radio"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

// queueSize bounds the events posted from interrupt context.
const queueSize = 16

// ModeSetter receives the stream mode on configuration apply.
type ModeSetter interface {
	SetStreamMode(mode config.StreamMode) error
}

// Transition describes one handled event.
type Transition struct {
	At    time.Time
	Event logic.Event
	From  logic.State
	To    logic.State
	// Err joins the collaborator failures hit while executing the effects.
	// The state change happened regardless.
	Err error
}

// Changed reports whether the event moved the machine to another state.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Store  *config.Store
	Sensor sensor.Sensor
	Radio  radio.Radio
	Gate   ModeSetter
	Clock  Clock        // defaults to WallClock
	Logger *slog.Logger // defaults to slog.Default()
}

// Machine is the power state machine. Events are serialized under a single
// lock; the lock covers the table lookup and the collaborator calls, which
// are expected to return promptly.
type Machine struct {
	store  *config.Store
	sensor sensor.Sensor
	radio  radio.Radio
	gate   ModeSetter
	clock  Clock
	log    *slog.Logger

	queue chan logic.Event

	mu         sync.Mutex
	state      logic.State
	timer      Timer
	timeoutGen uint64 // generation of the pending timeout, 0 when none
	lastGen    uint64
	hooks      []func(Transition)

	applyMu sync.Mutex
}

// NewMachine creates a machine in the Idle state. No collaborator is touched
// until Start.
func NewMachine(d Deps) *Machine {
	m := &Machine{
		store:  d.Store,
		sensor: d.Sensor,
		radio:  d.Radio,
		gate:   d.Gate,
		clock:  d.Clock,
		log:    d.Logger,
		queue:  make(chan logic.Event, queueSize),
		state:  logic.StateIdle,
	}
	if m.clock == nil {
		m.clock = WallClock
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// OnTransition registers a hook called after every handled event, outside
// the machine lock. Hooks must not block.
func (m *Machine) OnTransition(hook func(Transition)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}

// State returns the current power state.
func (m *Machine) State() logic.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TimeoutPending reports whether an active timeout is scheduled.
func (m *Machine) TimeoutPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeoutGen != 0
}

// Start pushes the stored configuration to the sensor and the gate, then
// performs the side effects of being in Idle: advertise at the idle interval
// with the motion interrupt armed. Failures are joined and returned; the
// machine is usable regardless.
func (m *Machine) Start() error {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	cfg := m.store.Get()
	errs, odr := m.push(cfg)

	m.mu.Lock()
	if err := m.execute([]logic.Effect{logic.EffectAdvertiseIdle, logic.EffectArmInterrupt}, cfg); err != nil {
		errs = append(errs, err)
	}
	state := m.state
	m.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("degraded start", "state", state, "error", err)
	}
	m.log.Info("power state machine started",
		"state", state,
		"odr_hz", odr,
		"adv_interval_ms", cfg.AdvIntervalIdleMs)
	return err
}

// Dispatch handles ev synchronously and returns the resulting state.
// Only unknown events are reported as errors; collaborator failures are
// logged and the machine carries on.
func (m *Machine) Dispatch(ev logic.Event) (logic.State, error) {
	m.mu.Lock()
	tr, err := m.handle(ev, m.store.Get())
	hooks := m.hooks
	m.mu.Unlock()

	if err != nil {
		m.log.Error("rejected event", "event", ev, "state", tr.From, "error", err)
		return tr.From, err
	}
	m.report(tr, hooks)
	return tr.To, nil
}

// Post queues ev for Run without blocking. It reports false when the queue
// is full and the event was discarded.
func (m *Machine) Post(ev logic.Event) bool {
	select {
	case m.queue <- ev:
		return true
	default:
		return false
	}
}

// Run drains posted events until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.queue:
			_, _ = m.Dispatch(ev)
		}
	}
}

// ApplyConfiguration pushes cfg to the sensor and the notification gate and,
// when Idle, restarts advertising at the new idle interval. Failures are
// collected and returned but never undo the pushes that succeeded.
func (m *Machine) ApplyConfiguration(cfg config.Config) error {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	errs, odr := m.push(cfg)

	m.mu.Lock()
	tr, _ := m.handle(logic.EventIdleIntervalChanged, cfg)
	hooks := m.hooks
	m.mu.Unlock()
	if tr.Err != nil {
		errs = append(errs, tr.Err)
	}
	m.report(tr, hooks)

	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("degraded configuration apply", "error", err)
		return err
	}
	m.log.Info("configuration applied",
		"notify_rate_hz", cfg.NotifyRateHz,
		"odr_hz", odr,
		"range", cfg.AccelRange,
		"motion_threshold", cfg.MotionThreshold,
		"stream_mode", cfg.StreamMode,
		"adv_interval_idle_ms", cfg.AdvIntervalIdleMs)
	return nil
}

// push programs the sensor and the gate from cfg. m.applyMu must be held.
func (m *Machine) push(cfg config.Config) (errs []error, odr uint16) {
	if err := m.sensor.SetRange(cfg.AccelRange); err != nil {
		errs = append(errs, fmt.Errorf("set range: %w", err))
	}
	odr, err := m.sensor.SetOutputDataRate(cfg.NotifyRateHz)
	if err != nil {
		errs = append(errs, fmt.Errorf("set output data rate: %w", err))
	}
	if err := m.sensor.SetMotionThreshold(cfg.MotionThreshold); err != nil {
		errs = append(errs, fmt.Errorf("set motion threshold: %w", err))
	}
	if m.gate != nil {
		if err := m.gate.SetStreamMode(cfg.StreamMode); err != nil {
			errs = append(errs, fmt.Errorf("set stream mode: %w", err))
		}
	}
	return errs, odr
}

// handle runs one transition. m.mu must be held.
func (m *Machine) handle(ev logic.Event, cfg config.Config) (Transition, error) {
	tr := Transition{At: m.clock.Now(), Event: ev, From: m.state, To: m.state}
	to, effects, err := logic.Transition(m.state, ev)
	if err != nil {
		return tr, err
	}
	m.state = to
	tr.To = to
	tr.Err = m.execute(effects, cfg)
	return tr, nil
}

// execute runs effects in order. m.mu must be held. Radio and sensor
// failures do not stop later effects.
func (m *Machine) execute(effects []logic.Effect, cfg config.Config) error {
	var errs []error
	for _, e := range effects {
		var err error
		switch e {
		case logic.EffectStopAdvertising:
			err = m.radio.StopAdvertising()
		case logic.EffectAdvertiseIdle:
			err = m.restartAdvertising(cfg.AdvIntervalIdleMs)
		case logic.EffectAdvertiseActive:
			err = m.restartAdvertising(cfg.AdvIntervalActiveMs)
		case logic.EffectArmInterrupt:
			err = m.sensor.ArmMotionInterrupt(true)
		case logic.EffectDisarmInterrupt:
			err = m.sensor.ArmMotionInterrupt(false)
		case logic.EffectScheduleTimeout:
			m.scheduleTimeout(time.Duration(cfg.ActiveTimeoutMs) * time.Millisecond)
		case logic.EffectCancelTimeout:
			m.cancelTimeout()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Machine) restartAdvertising(intervalMs uint16) error {
	if err := m.radio.StopAdvertising(); err != nil {
		m.log.Debug("stop advertising before restart", "error", err)
	}
	return m.radio.StartAdvertising(intervalMs)
}

// scheduleTimeout replaces any pending timeout. m.mu must be held.
func (m *Machine) scheduleTimeout(d time.Duration) {
	m.cancelTimeout()
	m.lastGen++
	gen := m.lastGen
	m.timeoutGen = gen
	m.timer = m.clock.AfterFunc(d, func() { m.expire(gen) })
}

// cancelTimeout stops the pending timeout, if any. m.mu must be held.
func (m *Machine) cancelTimeout() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timeoutGen = 0
}

// expire delivers ActiveTimeoutExpired for timeout gen unless it has been
// cancelled or replaced meanwhile.
func (m *Machine) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.timeoutGen {
		m.mu.Unlock()
		m.log.Debug("ignored stale active timeout")
		return
	}
	tr, _ := m.handle(logic.EventActiveTimeoutExpired, m.store.Get())
	hooks := m.hooks
	m.mu.Unlock()
	m.report(tr, hooks)
}

func (m *Machine) report(tr Transition, hooks []func(Transition)) {
	if tr.Err != nil {
		m.log.Warn("transition side effects failed", "event", tr.Event, "from", tr.From, "to", tr.To, "error", tr.Err)
	}
	if tr.Changed() {
		m.log.Info("power state", "event", tr.Event, "from", tr.From, "to", tr.To)
	}
	for _, h := range hooks {
		h(tr)
	}
}
