//go:build linux

package sensor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
)

const standardGravity = 9.80665

// interruptDebounce filters contact bounce on the INT1 line.
const interruptDebounce = 2 * time.Millisecond

// RealConfig locates the accelerometer on the host.
type RealConfig struct {
	// IIODir is the IIO device directory, e.g. /sys/bus/iio/devices/iio:device0.
	IIODir string
	// Chip is the GPIO chip carrying the interrupt line, e.g. gpiochip0.
	Chip string
	// Line is the offset of the accelerometer INT1 line on Chip.
	Line int
}

// Real drives an accelerometer through IIO sysfs and watches its motion
// interrupt through the GPIO character device.
type Real struct {
	dir       string
	hasEvents bool

	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu     sync.Mutex // guards sysfs writes and scale
	scale  float64    // m/s² per LSB
	scales []string

	armed   atomic.Bool
	handler atomic.Pointer[func()]
}

// NewReal opens the accelerometer described by cfg.
func NewReal(cfg RealConfig) (*Real, error) {
	r := &Real{dir: cfg.IIODir}

	if _, err := os.Stat(filepath.Join(cfg.IIODir, "in_accel_x_raw")); err != nil {
		return nil, fmt.Errorf("open iio device: %w", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.IIODir, "events")); err == nil {
		r.hasEvents = true
	}

	scales, err := r.readAvailableScales()
	if err != nil {
		return nil, err
	}
	r.scales = scales
	if err := r.loadScale(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(cfg.Line,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithDebounce(interruptDebounce),
		gpiocdev.WithEventHandler(r.handleEdge))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request interrupt line %d: %w", cfg.Line, err)
	}
	r.chip = chip
	r.line = line
	return r, nil
}

// OnMotion registers the interrupt handler.
func (r *Real) OnMotion(handler func()) {
	r.handler.Store(&handler)
}

func (r *Real) handleEdge(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge || !r.armed.Load() {
		return
	}
	if h := r.handler.Load(); h != nil && *h != nil {
		(*h)()
	}
}

// SetRange selects the full-scale range. The IIO driver lists its scales
// from the most sensitive (2G) to the least (16G).
func (r *Real) SetRange(rng config.AccelRange) error {
	if int(rng) >= len(r.scales) {
		return fmt.Errorf("set range %s: driver offers %d scales", rng, len(r.scales))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeAttr("in_accel_scale", r.scales[rng]); err != nil {
		return fmt.Errorf("set range %s: %w", rng, err)
	}
	return r.loadScaleLocked()
}

// SetOutputDataRate programs the nearest supported ODR at or above hz.
func (r *Real) SetOutputDataRate(hz uint16) (uint16, error) {
	odr := NearestODR(hz)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeAttr("sampling_frequency", strconv.Itoa(int(odr))); err != nil {
		return 0, fmt.Errorf("set odr %d: %w", odr, err)
	}
	return odr, nil
}

// SetMotionThreshold programs the wake-on-motion slope threshold in milli-g.
// Drivers without IIO event support keep their own threshold.
func (r *Real) SetMotionThreshold(threshold uint8) error {
	if !r.hasEvents {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := strconv.Itoa(ThresholdMilliG(threshold))
	if err := r.writeAttr("events/in_accel_thresh_rising_value", v); err != nil {
		return fmt.Errorf("set motion threshold: %w", err)
	}
	return nil
}

// ArmMotionInterrupt gates interrupt delivery and, where the driver supports
// it, enables the hardware threshold event.
func (r *Real) ArmMotionInterrupt(armed bool) error {
	r.armed.Store(armed)
	if !r.hasEvents {
		return nil
	}
	v := "0"
	if armed {
		v = "1"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writeAttr("events/in_accel_thresh_rising_en", v); err != nil {
		return fmt.Errorf("arm motion interrupt: %w", err)
	}
	return nil
}

// ReadSample reads one sample and converts it to milli-g.
func (r *Real) ReadSample() (logic.Sample, error) {
	r.mu.Lock()
	scale := r.scale
	r.mu.Unlock()

	var axes [3]int16
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := r.readInt("in_accel_" + axis + "_raw")
		if err != nil {
			return logic.Sample{}, fmt.Errorf("read %s axis: %w", axis, err)
		}
		axes[i] = toMilliG(raw, scale)
	}
	return logic.Sample{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}

// Close disarms the interrupt and releases the GPIO line and chip.
func (r *Real) Close() error {
	r.armed.Store(false)
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close interrupt line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

func toMilliG(raw int64, scale float64) int16 {
	mg := math.Round(float64(raw) * scale / standardGravity * 1000)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, mg)))
}

func (r *Real) readAvailableScales() ([]string, error) {
	b, err := os.ReadFile(filepath.Join(r.dir, "in_accel_scale_available"))
	if err != nil {
		return nil, fmt.Errorf("read available scales: %w", err)
	}
	scales := strings.Fields(string(b))
	sort.Slice(scales, func(i, j int) bool {
		a, _ := strconv.ParseFloat(scales[i], 64)
		b, _ := strconv.ParseFloat(scales[j], 64)
		return a < b
	})
	return scales, nil
}

func (r *Real) loadScale() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadScaleLocked()
}

func (r *Real) loadScaleLocked() error {
	b, err := os.ReadFile(filepath.Join(r.dir, "in_accel_scale"))
	if err != nil {
		return fmt.Errorf("read scale: %w", err)
	}
	s, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return fmt.Errorf("parse scale: %w", err)
	}
	r.scale = s
	return nil
}

func (r *Real) readInt(name string) (int64, error) {
	b, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

func (r *Real) writeAttr(name, value string) error {
	return os.WriteFile(filepath.Join(r.dir, name), []byte(value), 0o644)
}
