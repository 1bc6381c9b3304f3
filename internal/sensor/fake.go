package sensor

import (
	"errors"
	"sync"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
)

// Fake is a test double that returns scripted samples and records settings.
// It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// Samples contains scripted readings. Each ReadSample consumes the next
	// one; once exhausted the last sample repeats.
	Samples []logic.Sample
	index   int

	// ReadError, if set, is returned by ReadSample.
	ReadError error
	// SetError, if set, is returned by every setter.
	SetError error

	Range     config.AccelRange
	ODR       uint16
	Threshold uint8
	Armed     bool
	// ArmCalls records every ArmMotionInterrupt argument in order.
	ArmCalls []bool
	Reads    int
	Closed   bool

	handler func()
}

// NewFake creates a Fake with the given samples.
func NewFake(samples ...logic.Sample) *Fake {
	return &Fake{Samples: samples}
}

func (f *Fake) SetRange(r config.AccelRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Range = r
	return nil
}

func (f *Fake) SetOutputDataRate(hz uint16) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return 0, f.SetError
	}
	f.ODR = NearestODR(hz)
	return f.ODR, nil
}

func (f *Fake) SetMotionThreshold(threshold uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Threshold = threshold
	return nil
}

func (f *Fake) ArmMotionInterrupt(armed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ArmCalls = append(f.ArmCalls, armed)
	if f.SetError != nil {
		return f.SetError
	}
	f.Armed = armed
	return nil
}

// SetSamples replaces the scripted readings and restarts from the first.
func (f *Fake) SetSamples(samples ...logic.Sample) {
	f.mu.Lock()
	f.Samples = samples
	f.index = 0
	f.mu.Unlock()
}

// ReadSample returns the next scripted sample.
func (f *Fake) ReadSample() (logic.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return logic.Sample{}, f.ReadError
	}
	if len(f.Samples) == 0 {
		return logic.Sample{}, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// Close marks the sensor as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// OnMotion registers the interrupt handler.
func (f *Fake) OnMotion(handler func()) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

// Fire simulates the hardware interrupt. Like the real line it only reaches
// the handler while armed. It reports whether the handler ran.
func (f *Fake) Fire() bool {
	f.mu.Lock()
	h, armed := f.handler, f.Armed
	f.mu.Unlock()
	if !armed || h == nil {
		return false
	}
	h()
	return true
}

// IsArmed returns the current arming state.
func (f *Fake) IsArmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Armed
}

// Settings returns the last programmed range, ODR and threshold.
func (f *Fake) Settings() (config.AccelRange, uint16, uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Range, f.ODR, f.Threshold
}
