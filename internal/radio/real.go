//go:build linux

package radio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// adapterPath is the BlueZ object path of bluetooth.DefaultAdapter.
const adapterPath = "/org/bluez/hci0"

// GATT identifiers of the motion service.
const (
	uuidService    = "facc0001-0000-1000-8000-00805f9b34fb"
	uuidXYZ        = "fac10001-0000-1000-8000-00805f9b34fb"
	uuidConfig     = "fac20001-0000-1000-8000-00805f9b34fb"
	uuidStreamMode = "fac30001-0000-1000-8000-00805f9b34fb"
	uuidDeviceInfo = "fac40001-0000-1000-8000-00805f9b34fb"
)

// RealConfig describes the peripheral exposed by Real.
type RealConfig struct {
	Name       string
	DeviceInfo string
	// Config and StreamMode are the initial characteristic values.
	Config     []byte
	StreamMode byte
}

// Real is a BLE peripheral on top of the host Bluetooth stack.
type Real struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	name    string
	service bluetooth.UUID
	log     *slog.Logger

	xyz  bluetooth.Characteristic
	cfg  bluetooth.Characteristic
	mode bluetooth.Characteristic

	mu          sync.Mutex // serializes advertisement reconfiguration
	advertising bool

	// The peer link is followed on the system bus for the whole lifetime of
	// Real; the adapter's connect handler only fires while advertising.
	link      *peerLink
	bus       *dbus.Conn
	signals   chan *dbus.Signal
	stop      chan struct{}
	closeOnce sync.Once
}

// NewReal enables the default adapter and registers the motion service.
func NewReal(cfg RealConfig, h Handlers, log *slog.Logger) (*Real, error) {
	if log == nil {
		log = slog.Default()
	}
	uuids := make(map[string]bluetooth.UUID)
	for _, s := range []string{uuidService, uuidXYZ, uuidConfig, uuidStreamMode, uuidDeviceInfo} {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("parse uuid %s: %w", s, err)
		}
		uuids[s] = u
	}

	r := &Real{
		adapter: bluetooth.DefaultAdapter,
		name:    cfg.Name,
		service: uuids[uuidService],
		log:     log,
	}
	if err := r.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	if err := r.watchLink(h); err != nil {
		return nil, err
	}

	err := r.adapter.AddService(&bluetooth.Service{
		UUID: r.service,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &r.xyz,
				UUID:   uuids[uuidXYZ],
				Flags:  bluetooth.CharacteristicNotifyPermission,
				Value:  make([]byte, 6),
			},
			{
				Handle:     &r.cfg,
				UUID:       uuids[uuidConfig],
				Flags:      bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission,
				Value:      cfg.Config,
				WriteEvent: r.writeHandler("config", h.OnConfigWrite),
			},
			{
				Handle:     &r.mode,
				UUID:       uuids[uuidStreamMode],
				Flags:      bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission,
				Value:      []byte{cfg.StreamMode},
				WriteEvent: r.writeHandler("stream mode", h.OnStreamModeWrite),
			},
			{
				UUID:  uuids[uuidDeviceInfo],
				Flags: bluetooth.CharacteristicReadPermission,
				Value: []byte(cfg.DeviceInfo),
			},
		},
	})
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("add service: %w", err)
	}

	r.adv = r.adapter.DefaultAdvertisement()
	return r, nil
}

// watchLink subscribes to BlueZ device property changes on the shared
// system bus connection.
func (r *Real) watchLink(h Handlers) error {
	bus, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	if err := bus.AddMatchSignal(linkMatch...); err != nil {
		return fmt.Errorf("watch peer link: %w", err)
	}
	r.bus = bus
	r.link = newPeerLink(adapterPath, h, r.log)
	r.signals = make(chan *dbus.Signal, 16)
	r.stop = make(chan struct{})
	bus.Signal(r.signals)
	go r.link.watch(r.signals, r.stop)
	return nil
}

// Close stops following the peer link and stops advertising. The shared
// system bus connection stays open for the Bluetooth stack.
func (r *Real) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)
		r.bus.RemoveSignal(r.signals)
		if rmErr := r.bus.RemoveMatchSignal(linkMatch...); rmErr != nil {
			r.log.Debug("remove peer link match", "error", rmErr)
		}
		err = r.StopAdvertising()
	})
	return err
}

func (r *Real) writeHandler(what string, fn func([]byte, int) error) func(bluetooth.Connection, int, []byte) {
	return func(_ bluetooth.Connection, offset int, value []byte) {
		if fn == nil {
			return
		}
		if err := fn(value, offset); err != nil {
			r.log.Warn("rejected write", "characteristic", what, "offset", offset, "len", len(value), "error", err)
		}
	}
}

// StartAdvertising restarts connectable advertising at intervalMs.
func (r *Real) StartAdvertising(intervalMs uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.advertising {
		if err := r.adv.Stop(); err != nil {
			return fmt.Errorf("stop advertising: %w", err)
		}
		r.advertising = false
	}
	err := r.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    r.name,
		ServiceUUIDs: []bluetooth.UUID{r.service},
		Interval:     bluetooth.NewDuration(time.Duration(intervalMs) * time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := r.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	r.advertising = true
	return nil
}

// StopAdvertising stops advertising. Stopping when not advertising is a no-op.
func (r *Real) StopAdvertising() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.advertising {
		return nil
	}
	if err := r.adv.Stop(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	r.advertising = false
	return nil
}

// Notify sends data on the XYZ characteristic.
func (r *Real) Notify(data []byte) error {
	if !r.link.connected() {
		return ErrNotConnected
	}
	if _, err := r.xyz.Write(data); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// MirrorConfig updates the readable configuration and stream mode values.
func (r *Real) MirrorConfig(record []byte, streamMode byte) error {
	if _, err := r.cfg.Write(record); err != nil {
		return fmt.Errorf("update config value: %w", err)
	}
	if _, err := r.mode.Write([]byte{streamMode}); err != nil {
		return fmt.Errorf("update stream mode value: %w", err)
	}
	return nil
}
