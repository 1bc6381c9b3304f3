// Package device assembles the motion sensor core into one explicitly
// constructed object and exposes the entry points used by the radio.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/power"
	"github.com/sweeney/motion-sensor/internal/radio"
	"github.com/sweeney/motion-sensor/internal/sampler"
	"github.com/sweeney/motion-sensor/internal/sensor"
	"github.com/sweeney/motion-sensor/internal/stream"
)

// ConfigMirror is implemented by radios that expose the configuration as a
// readable value which must track the store.
type ConfigMirror interface {
	MirrorConfig(record []byte, streamMode byte) error
}

// Link describes a peer connection change.
type Link struct {
	At        time.Time
	Connected bool
	// Reason is the disconnect reason code reported by the stack.
	Reason uint8
}

// ConfigChange describes the outcome of a configuration write or of the
// initial apply at Start.
type ConfigChange struct {
	// Config is the stored configuration after the change.
	Config config.Config
	// Rejected is the validation error of a refused write. The stored
	// configuration is unchanged.
	Rejected error
	// ApplyErr joins the collaborator failures of a degraded apply.
	ApplyErr error
}

// Options are the collaborators of a Coordinator.
type Options struct {
	Sensor sensor.Sensor
	// Interrupts delivers wake-on-motion. When nil, Sensor is used if it
	// implements sensor.InterruptSource.
	Interrupts sensor.InterruptSource
	Radio      radio.Radio
	Clock      power.Clock
	Logger     *slog.Logger
}

// Coordinator owns the configuration store, the power state machine, the
// notification gate, the sampling scheduler and the interrupt bridge.
type Coordinator struct {
	store     *config.Store
	machine   *power.Machine
	gate      *stream.Gate
	scheduler *sampler.Scheduler
	bridge    *power.Bridge
	radio     radio.Radio
	clock     power.Clock
	log       *slog.Logger

	asm     config.Assembler
	writeMu sync.Mutex // serializes set+apply from the write paths

	hookMu      sync.Mutex
	linkHooks   []func(Link)
	configHooks []func(ConfigChange)
}

// New wires a Coordinator around the given collaborators. Nothing is pushed
// to the hardware until Start.
func New(o Options) *Coordinator {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := o.Clock
	if clock == nil {
		clock = power.WallClock
	}

	store := config.NewStore()
	gate := stream.NewGate(o.Radio, store.Get().StreamMode)
	machine := power.NewMachine(power.Deps{
		Store:  store,
		Sensor: o.Sensor,
		Radio:  o.Radio,
		Gate:   gate,
		Clock:  clock,
		Logger: log.With("component", "power"),
	})

	c := &Coordinator{
		store:     store,
		machine:   machine,
		gate:      gate,
		scheduler: sampler.New(store, o.Sensor, gate, machine, log.With("component", "sampler")),
		radio:     o.Radio,
		clock:     clock,
		log:       log,
	}

	src := o.Interrupts
	if src == nil {
		if s, ok := o.Sensor.(sensor.InterruptSource); ok {
			src = s
		}
	}
	if src != nil {
		c.bridge = power.NewBridge(machine, src)
	} else {
		log.Warn("no motion interrupt source, wake-on-motion disabled")
	}
	return c
}

// Store returns the configuration store.
func (c *Coordinator) Store() *config.Store { return c.store }

// Machine returns the power state machine.
func (c *Coordinator) Machine() *power.Machine { return c.machine }

// Gate returns the notification gate.
func (c *Coordinator) Gate() *stream.Gate { return c.gate }

// Scheduler returns the sampling scheduler.
func (c *Coordinator) Scheduler() *sampler.Scheduler { return c.scheduler }

// Bridge returns the interrupt bridge, or nil without an interrupt source.
func (c *Coordinator) Bridge() *power.Bridge { return c.bridge }

// OnLink registers a hook called on every connect and disconnect.
func (c *Coordinator) OnLink(hook func(Link)) {
	c.hookMu.Lock()
	c.linkHooks = append(c.linkHooks, hook)
	c.hookMu.Unlock()
}

// OnConfig registers a hook called after every configuration write and
// after the initial apply.
func (c *Coordinator) OnConfig(hook func(ConfigChange)) {
	c.hookMu.Lock()
	c.configHooks = append(c.configHooks, hook)
	c.hookMu.Unlock()
}

// Handlers returns the radio callbacks bound to c.
func (c *Coordinator) Handlers() radio.Handlers {
	return radio.Handlers{
		OnConnected:    c.OnConnected,
		OnDisconnected: c.OnDisconnected,
		OnConfigWrite: func(p []byte, offset int) error {
			_, err := c.OnConfigWrite(p, offset)
			return err
		},
		OnStreamModeWrite: c.OnStreamModeWrite,
	}
}

// Start applies the stored configuration to the collaborators and begins
// advertising at the idle interval with the motion interrupt armed.
// Collaborator failures are logged and returned, but the device is usable.
func (c *Coordinator) Start() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cfg := c.store.Get()
	c.log.Info("starting motion sensor",
		"notify_rate_hz", cfg.NotifyRateHz,
		"active_timeout_ms", cfg.ActiveTimeoutMs,
		"range", cfg.AccelRange,
		"stream_mode", cfg.StreamMode)
	err := c.machine.Start()
	c.reportConfig(ConfigChange{Config: cfg, ApplyErr: err})
	return err
}

// Run drives the event queue and the sampling loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.machine.Run(ctx) })
	g.Go(func() error { return c.scheduler.Run(ctx) })
	return g.Wait()
}

// OnConnected handles a peer connection.
func (c *Coordinator) OnConnected() {
	_, _ = c.machine.Dispatch(logic.EventConnected)
	c.reportLink(Link{At: c.clock.Now(), Connected: true})
}

// OnDisconnected handles loss of the peer connection.
func (c *Coordinator) OnDisconnected(reason uint8) {
	c.log.Info("disconnected", "reason", fmt.Sprintf("0x%02x", reason))
	_, _ = c.machine.Dispatch(logic.EventDisconnected)
	c.reportLink(Link{At: c.clock.Now(), Reason: reason})
}

// OnConfigWrite accepts a chunk of the 12-byte configuration record at
// offset. Once every byte has been received the record is validated,
// stored and applied, and applied is true. A rejected record leaves the
// stored configuration unchanged.
func (c *Coordinator) OnConfigWrite(p []byte, offset int) (applied bool, err error) {
	cfg, complete, err := c.asm.Write(p, offset)
	if err != nil {
		return false, err
	}
	if !complete {
		c.log.Debug("partial configuration write", "offset", offset, "len", len(p), "received", c.asm.Pending())
		return false, nil
	}
	if err := c.commit(func(*config.Config) config.Config { return cfg }); err != nil {
		return false, err
	}
	return true, nil
}

// OnStreamModeWrite accepts a single-byte stream mode write.
func (c *Coordinator) OnStreamModeWrite(p []byte, offset int) error {
	if offset != 0 || len(p) != 1 {
		return config.ErrInvalidOffset
	}
	return c.commit(func(cur *config.Config) config.Config {
		next := *cur
		next.StreamMode = config.StreamMode(p[0])
		return next
	})
}

// ConfigRecord returns the encoded current configuration.
func (c *Coordinator) ConfigRecord() []byte {
	return config.Encode(c.store.Get())
}

// commit validates and stores the candidate built from the current
// configuration, then applies it. Apply failures are degraded, not errors.
func (c *Coordinator) commit(build func(cur *config.Config) config.Config) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.store.Get()
	next := build(&cur)
	if err := c.store.Set(next); err != nil {
		c.log.Warn("rejected configuration", "error", err)
		c.reportConfig(ConfigChange{Config: cur, Rejected: err})
		return err
	}
	applyErr := c.machine.ApplyConfiguration(next)
	c.reportConfig(ConfigChange{Config: next, ApplyErr: applyErr})

	if m, ok := c.radio.(ConfigMirror); ok {
		if err := m.MirrorConfig(config.Encode(next), byte(next.StreamMode)); err != nil {
			c.log.Warn("mirror configuration", "error", err)
		}
	}
	return nil
}

func (c *Coordinator) reportLink(l Link) {
	c.hookMu.Lock()
	hooks := c.linkHooks
	c.hookMu.Unlock()
	for _, h := range hooks {
		h(l)
	}
}

func (c *Coordinator) reportConfig(ch ConfigChange) {
	c.hookMu.Lock()
	hooks := c.configHooks
	c.hookMu.Unlock()
	for _, h := range hooks {
		h(ch)
	}
}
