//go:build !linux

package radio

import "log/slog"

// RealConfig describes the peripheral exposed by Real.
type RealConfig struct {
	Name       string
	DeviceInfo string
	Config     []byte
	StreamMode byte
}

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns ErrNotSupported on non-Linux platforms.
func NewReal(RealConfig, Handlers, *slog.Logger) (*Real, error) {
	return nil, ErrNotSupported
}

func (r *Real) StartAdvertising(uint16) error { return ErrNotSupported }
func (r *Real) StopAdvertising() error { return ErrNotSupported }
func (r *Real) Notify([]byte) error { return ErrNotConnected }
func (r *Real) MirrorConfig([]byte, byte) error { return ErrNotSupported }
func (r *Real) Close() error { return nil }
