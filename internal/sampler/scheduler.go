// Package sampler runs the periodic acquisition loop: read the configuration,
// derive the period, read a sample, forward it, and promote a connected idle
// device to connected-active on strong motion.
package sampler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/stream"
)

// Reader reads one accelerometer sample.
type Reader interface {
	ReadSample() (logic.Sample, error)
}

// Forwarder delivers a sample to the peer.
type Forwarder interface {
	Forward(s logic.Sample) (stream.Outcome, error)
}

// Machine is the view of the power state machine the scheduler needs.
type Machine interface {
	State() logic.State
	Dispatch(ev logic.Event) (logic.State, error)
}

// Result describes one loop iteration.
type Result struct {
	Period  time.Duration
	Sample  logic.Sample
	ReadErr error
	Outcome stream.Outcome
	// ForwardErr is a radio failure other than not connected.
	ForwardErr error
	Promoted   bool
}

// Scheduler samples at the cadence given by the live configuration.
// It samples and forwards in every power state; only the activity
// promotion depends on the state.
type Scheduler struct {
	store   *config.Store
	reader  Reader
	gate    Forwarder
	machine Machine
	log     *slog.Logger

	after func(d time.Duration) <-chan time.Time
	hooks []func(Result)
}

// New creates a Scheduler. A nil logger uses slog.Default().
func New(store *config.Store, reader Reader, gate Forwarder, machine Machine, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:   store,
		reader:  reader,
		gate:    gate,
		machine: machine,
		log:     log,
		after:   time.After,
	}
}

// OnResult registers a hook called after each iteration. Register hooks
// before Run.
func (s *Scheduler) OnResult(hook func(Result)) {
	s.hooks = append(s.hooks, hook)
}

// Run loops until ctx is cancelled, sleeping one period between iterations.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("sampling started")
	for {
		r := s.Tick()
		select {
		case <-ctx.Done():
			s.log.Info("sampling stopped")
			return nil
		case <-s.after(r.Period):
		}
	}
}

// Tick runs one iteration without sleeping and returns its result.
// A read failure skips forwarding and promotion for this tick.
func (s *Scheduler) Tick() Result {
	cfg := s.store.Get()
	r := Result{Period: logic.Period(cfg.NotifyRateHz)}

	sample, err := s.reader.ReadSample()
	if err != nil {
		s.log.Warn("sensor read failed", "error", err)
		r.ReadErr = err
		s.report(r)
		return r
	}
	r.Sample = sample

	r.Outcome, r.ForwardErr = s.gate.Forward(sample)
	switch r.Outcome {
	case stream.Failed:
		s.log.Warn("notify failed", "error", r.ForwardErr)
	case stream.Dropped:
		s.log.Debug("notification dropped, not connected")
	}

	if s.machine.State() == logic.StateConnectedIdle && logic.ExceedsActivity(sample) {
		to, err := s.machine.Dispatch(logic.EventActivityThresholdExceeded)
		r.Promoted = err == nil && to == logic.StateConnectedActive
		if r.Promoted {
			s.log.Debug("activity promotion", "magnitude", logic.Magnitude(sample),
				"timeout_ms", cfg.ActiveTimeoutMs)
		}
	}

	s.report(r)
	return r
}

func (s *Scheduler) report(r Result) {
	for _, h := range s.hooks {
		h(r)
	}
}
