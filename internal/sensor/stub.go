//go:build !linux

package sensor

import (
	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/logic"
)

// RealConfig locates the accelerometer on the host.
type RealConfig struct {
	IIODir string
	Chip   string
	Line   int
}

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns ErrNotSupported on non-Linux platforms.
func NewReal(RealConfig) (*Real, error) {
	return nil, ErrNotSupported
}

func (r *Real) OnMotion(func()) {}
func (r *Real) SetRange(config.AccelRange) error { return ErrNotSupported }
func (r *Real) SetOutputDataRate(uint16) (uint16, error) { return 0, ErrNotSupported }
func (r *Real) SetMotionThreshold(uint8) error { return ErrNotSupported }
func (r *Real) ArmMotionInterrupt(bool) error { return ErrNotSupported }
func (r *Real) ReadSample() (logic.Sample, error) { return logic.Sample{}, ErrNotSupported }
func (r *Real) Close() error { return nil }
