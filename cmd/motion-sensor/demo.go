package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/motion-sensor/internal/device"
	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/radio"
	"github.com/sweeney/motion-sensor/internal/sensor"
)

// demoRest is a still, gravity-compensated reading.
var demoRest = logic.Sample{X: 4, Y: -3, Z: 9}

var demoShake = []logic.Sample{
	{X: 420, Y: -380, Z: 150},
	{X: -510, Y: 290, Z: -60},
	{X: 380, Y: 410, Z: 220},
}

// demo drives the simulated hardware through a repeating scenario: wake on
// motion, a peer connects, the device is shaken, goes quiet until the active
// timeout, and the peer leaves.
type demo struct {
	sensor *sensor.Fake
	radio  *radio.Fake
	log    *slog.Logger
	step   time.Duration
}

func newDemo(s *sensor.Fake, r *radio.Fake, log *slog.Logger) *demo {
	return &demo{sensor: s, radio: r, log: log.With("component", "demo"), step: 4 * time.Second}
}

func (d *demo) script(coord *device.Coordinator) []func() {
	return []func(){
		func() {
			d.log.Info("simulated motion interrupt", "delivered", d.sensor.Fire())
		},
		func() {
			d.log.Info("simulated peer connects")
			d.radio.SetConnected(true)
			coord.OnConnected()
		},
		func() {
			d.log.Info("simulated shaking")
			d.sensor.SetSamples(append(demoShake, demoRest)...)
		},
		func() {},
		func() {},
		func() {
			d.log.Info("simulated peer disconnects")
			d.radio.SetConnected(false)
			coord.OnDisconnected(0x13)
		},
	}
}

func (d *demo) run(ctx context.Context, coord *device.Coordinator) error {
	steps := d.script(coord)
	t := time.NewTicker(d.step)
	defer t.Stop()
	for i := 0; ; i = (i + 1) % len(steps) {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			steps[i]()
		}
	}
}
