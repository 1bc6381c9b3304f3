// Package stream turns accelerometer samples into notifications according to
// the configured stream mode.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/radio"
)

// SampleSize is the length of an encoded sample notification.
const SampleSize = 6

// Classifier transforms a sample for one stream mode. Returning false
// suppresses the notification for this sample.
type Classifier interface {
	Classify(s logic.Sample) (logic.Sample, bool)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(s logic.Sample) (logic.Sample, bool)

// Classify calls f.
func (f ClassifierFunc) Classify(s logic.Sample) (logic.Sample, bool) { return f(s) }

// Passthrough forwards every sample unmodified.
var Passthrough Classifier = ClassifierFunc(func(s logic.Sample) (logic.Sample, bool) {
	return s, true
})

// Outcome reports what happened to a forwarded sample.
type Outcome int

const (
	// Sent means the notification reached the radio.
	Sent Outcome = iota
	// Dropped means no peer was connected.
	Dropped
	// Suppressed means the classifier withheld the sample.
	Suppressed
	// Failed means the radio returned an error other than not connected.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Dropped:
		return "dropped"
	case Suppressed:
		return "suppressed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Gate holds the active stream mode and forwards classified samples to the
// radio. All methods are safe for concurrent use.
type Gate struct {
	radio radio.Radio

	mu          sync.RWMutex
	mode        config.StreamMode
	classifiers map[config.StreamMode]Classifier
}

// NewGate creates a Gate in the given mode. FILTERED and EVENTS start out as
// passthrough; Register replaces them.
func NewGate(r radio.Radio, mode config.StreamMode) *Gate {
	return &Gate{
		radio: r,
		mode:  mode,
		classifiers: map[config.StreamMode]Classifier{
			config.StreamRaw:      Passthrough,
			config.StreamFiltered: Passthrough,
			config.StreamEvents:   Passthrough,
		},
	}
}

// Register installs the classifier for a stream mode. A nil classifier
// restores Passthrough.
func (g *Gate) Register(mode config.StreamMode, c Classifier) {
	if f, ok := c.(ClassifierFunc); c == nil || (ok && f == nil) {
		c = Passthrough
	}
	g.mu.Lock()
	g.classifiers[mode] = c
	g.mu.Unlock()
}

// SetStreamMode switches the active mode.
func (g *Gate) SetStreamMode(mode config.StreamMode) error {
	if mode > config.StreamEvents {
		return &config.ValidationError{Field: "stream_mode", Value: int(mode)}
	}
	g.mu.Lock()
	g.mode = mode
	g.mu.Unlock()
	return nil
}

// StreamMode returns the active mode.
func (g *Gate) StreamMode() config.StreamMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// Forward classifies s under the active mode and notifies the peer.
// A missing peer is reported as Dropped with a nil error.
func (g *Gate) Forward(s logic.Sample) (Outcome, error) {
	g.mu.RLock()
	c := g.classifiers[g.mode]
	g.mu.RUnlock()

	out, ok := c.Classify(s)
	if !ok {
		return Suppressed, nil
	}

	err := g.radio.Notify(EncodeSample(out))
	switch {
	case err == nil:
		return Sent, nil
	case errors.Is(err, radio.ErrNotConnected):
		return Dropped, nil
	default:
		return Failed, err
	}
}

// EncodeSample serializes a sample as little-endian int16 x, y, z.
func EncodeSample(s logic.Sample) []byte {
	b := make([]byte, SampleSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(s.X))
	binary.LittleEndian.PutUint16(b[2:4], uint16(s.Y))
	binary.LittleEndian.PutUint16(b[4:6], uint16(s.Z))
	return b
}
