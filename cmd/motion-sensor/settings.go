package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings tell the daemon where its hardware and services are. They are
// distinct from the device configuration, which peers write over BLE.
type Settings struct {
	IIODevice     string `yaml:"iio_device"`
	GPIOChip      string `yaml:"gpio_chip"`
	InterruptLine int    `yaml:"interrupt_line"`
	BLEName       string `yaml:"ble_name"`
	Broker        string `yaml:"broker"`
	HTTP          string `yaml:"http"`
	LogLevel      string `yaml:"log_level"`
	Demo          bool   `yaml:"demo"`
}

func defaultSettings() Settings {
	return Settings{
		IIODevice:     "/sys/bus/iio/devices/iio:device0",
		GPIOChip:      "gpiochip0",
		InterruptLine: 17,
		BLEName:       "Hopla",
		HTTP:          ":8080",
		LogLevel:      "info",
	}
}

// loadSettingsFile reads YAML settings from path on top of the defaults.
func loadSettingsFile(path string) (Settings, error) {
	s := defaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// mergeSettings overlays the flags the user set explicitly onto base.
func mergeSettings(base, flags Settings, changed func(name string) bool) Settings {
	if changed("iio-device") {
		base.IIODevice = flags.IIODevice
	}
	if changed("gpio-chip") {
		base.GPIOChip = flags.GPIOChip
	}
	if changed("interrupt-line") {
		base.InterruptLine = flags.InterruptLine
	}
	if changed("ble-name") {
		base.BLEName = flags.BLEName
	}
	if changed("broker") {
		base.Broker = flags.Broker
	}
	if changed("http") {
		base.HTTP = flags.HTTP
	}
	if changed("log-level") {
		base.LogLevel = flags.LogLevel
	}
	if changed("demo") {
		base.Demo = flags.Demo
	}
	return base
}

// logLevel parses the log_level setting.
func (s Settings) logLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s.LogLevel, err)
	}
	return l, nil
}
