package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/motion-sensor/internal/config"
	"github.com/sweeney/motion-sensor/internal/device"
	"github.com/sweeney/motion-sensor/internal/mqtt"
	"github.com/sweeney/motion-sensor/internal/power"
	"github.com/sweeney/motion-sensor/internal/radio"
	"github.com/sweeney/motion-sensor/internal/sampler"
	"github.com/sweeney/motion-sensor/internal/sensor"
	"github.com/sweeney/motion-sensor/internal/status"
	"github.com/sweeney/motion-sensor/internal/web"
)

// telemetryQueue bounds transitions waiting for the MQTT publisher.
const telemetryQueue = 64

// coordinatorRef routes radio callbacks to a coordinator that is created
// after the radio.
type coordinatorRef struct {
	p atomic.Pointer[device.Coordinator]
}

func (r *coordinatorRef) set(c *device.Coordinator) { r.p.Store(c) }

func (r *coordinatorRef) handlers() radio.Handlers {
	return radio.Handlers{
		OnConnected: func() {
			if c := r.p.Load(); c != nil {
				c.OnConnected()
			}
		},
		OnDisconnected: func(reason uint8) {
			if c := r.p.Load(); c != nil {
				c.OnDisconnected(reason)
			}
		},
		OnConfigWrite: func(p []byte, offset int) error {
			c := r.p.Load()
			if c == nil {
				return radio.ErrNotConnected
			}
			_, err := c.OnConfigWrite(p, offset)
			return err
		},
		OnStreamModeWrite: func(p []byte, offset int) error {
			c := r.p.Load()
			if c == nil {
				return radio.ErrNotConnected
			}
			return c.OnStreamModeWrite(p, offset)
		},
	}
}

type hardware struct {
	sensor sensor.Sensor
	radio  radio.Radio
	demo   *demo
}

func openHardware(s Settings, ref *coordinatorRef, log *slog.Logger) (*hardware, error) {
	if s.Demo {
		sens := sensor.NewFake(demoRest)
		rad := radio.NewFake()
		return &hardware{sensor: sens, radio: rad, demo: newDemo(sens, rad, log)}, nil
	}

	sens, err := sensor.NewReal(sensor.RealConfig{
		IIODir: s.IIODevice,
		Chip:   s.GPIOChip,
		Line:   s.InterruptLine,
	})
	if err != nil {
		return nil, fmt.Errorf("open sensor: %w", err)
	}
	defaults := config.Defaults()
	rad, err := radio.NewReal(radio.RealConfig{
		Name:       s.BLEName,
		DeviceInfo: deviceInfo(s),
		Config:     config.Encode(defaults),
		StreamMode: byte(defaults.StreamMode),
	}, ref.handlers(), log.With("component", "radio"))
	if err != nil {
		sens.Close()
		return nil, fmt.Errorf("open radio: %w", err)
	}
	return &hardware{sensor: sens, radio: rad}, nil
}

// discardPublisher is used when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(power.Transition) error { return nil }

func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }

func (discardPublisher) Close() error { return nil }

func run(ctx context.Context, s Settings, log *slog.Logger, sig <-chan os.Signal) error {
	ref := &coordinatorRef{}
	hw, err := openHardware(s, ref, log)
	if err != nil {
		return err
	}
	defer hw.sensor.Close()
	if c, ok := hw.radio.(io.Closer); ok {
		defer c.Close()
	}

	coord := device.New(device.Options{Sensor: hw.sensor, Radio: hw.radio, Logger: log})
	ref.set(coord)

	tracker := status.NewTracker(time.Now(), uuid.NewString(), status.Settings{
		Name:     s.BLEName,
		Broker:   s.Broker,
		HTTPAddr: s.HTTP,
		Demo:     s.Demo,
	})

	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if s.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.RealConfig{
			Broker:             s.Broker,
			OnConnectionChange: tracker.SetMQTTConnected,
			Logger:             log.With("component", "mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	d := newDaemon(log, coord, tracker, publisher, mqttStatus)
	d.demo = hw.demo
	if s.HTTP != "" {
		d.http = web.New(s.HTTP, tracker)
	}
	log.Info("started",
		"ble_name", s.BLEName,
		"demo", s.Demo,
		"broker", s.Broker,
		"http", s.HTTP)
	return d.serve(ctx, sig)
}

// daemon ties the coordinator to status, telemetry and the HTTP server.
type daemon struct {
	log        *slog.Logger
	coord      *device.Coordinator
	tracker    *status.Tracker
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	http       *web.Server
	demo       *demo
	now        func() time.Time

	transitions chan power.Transition
}

func newDaemon(log *slog.Logger, coord *device.Coordinator, tracker *status.Tracker, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus) *daemon {
	d := &daemon{
		log:         log,
		coord:       coord,
		tracker:     tracker,
		publisher:   publisher,
		mqttStatus:  mqttStatus,
		now:         time.Now,
		transitions: make(chan power.Transition, telemetryQueue),
	}

	coord.Machine().OnTransition(d.onTransition)
	coord.Scheduler().OnResult(func(r sampler.Result) {
		tracker.RecordTick(r)
		if b := coord.Bridge(); b != nil {
			tracker.SetInterrupts(b.Stats())
		}
	})
	coord.OnLink(tracker.RecordLink)
	coord.OnConfig(tracker.RecordConfig)
	return d
}

// onTransition runs in the caller of the state machine and must not block.
func (d *daemon) onTransition(tr power.Transition) {
	d.tracker.RecordTransition(tr)
	if !tr.Changed() {
		return
	}
	select {
	case d.transitions <- tr:
	default:
		d.log.Warn("telemetry queue full, transition not published", "event", tr.Event, "to", tr.To)
	}
}

func (d *daemon) forwardTransitions(ctx context.Context) {
	publish := func(tr power.Transition) {
		if err := d.publisher.Publish(tr); err != nil {
			d.log.Warn("publish transition", "error", err)
		}
	}
	for {
		select {
		case tr := <-d.transitions:
			publish(tr)
		case <-ctx.Done():
			for {
				select {
				case tr := <-d.transitions:
					publish(tr)
				default:
					return
				}
			}
		}
	}
}

// serve starts the device and blocks until a signal arrives or a component
// fails, then publishes SHUTDOWN.
func (d *daemon) serve(ctx context.Context, sig <-chan os.Signal) error {
	if err := d.coord.Start(); err != nil {
		d.log.Warn("degraded start", "error", err)
	}
	d.publishLifecycle("STARTUP", "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.coord.Run(gctx) })
	g.Go(func() error {
		d.forwardTransitions(gctx)
		return nil
	})
	if d.http != nil {
		srv := d.http
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if d.demo != nil {
		g.Go(func() error { return d.demo.run(gctx, d.coord) })
	}

	reason := "ERROR"
	select {
	case s := <-sig:
		reason = signalName(s)
		d.log.Info("shutting down", "signal", reason)
	case <-gctx.Done():
	}
	cancel()
	err := g.Wait()

	d.publishLifecycle("SHUTDOWN", reason)
	return err
}

func (d *daemon) publishLifecycle(event, reason string) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.Warn("publish lifecycle event", "event", event, "error", err)
		return
	}
	d.log.Debug("published lifecycle event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
