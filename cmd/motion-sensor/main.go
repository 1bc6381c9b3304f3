// Command motion-sensor runs the motion sensor core on a Linux host: an
// IIO accelerometer with a GPIO wake-on-motion line, exposed to a peer over
// BLE, with an HTTP status page and optional MQTT telemetry.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flags      = defaultSettings()
		configPath string
	)

	cmd := &cobra.Command{
		Use:          "motion-sensor",
		Short:        "BLE motion sensor daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := flags
			if configPath != "" {
				base, err := loadSettingsFile(configPath)
				if err != nil {
					return err
				}
				settings = mergeSettings(base, flags, cmd.Flags().Changed)
			}

			level, err := settings.logLevel()
			if err != nil {
				return err
			}
			log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level}))
			slog.SetDefault(log)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			if err := run(cmd.Context(), settings, log, sig); err != nil {
				log.Error("fatal", "error", err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML settings file; explicit flags override it")
	f.StringVar(&flags.IIODevice, "iio-device", flags.IIODevice, "IIO accelerometer directory")
	f.StringVar(&flags.GPIOChip, "gpio-chip", flags.GPIOChip, "GPIO chip carrying the accelerometer interrupt")
	f.IntVar(&flags.InterruptLine, "interrupt-line", flags.InterruptLine, "GPIO line offset of the accelerometer INT1 pin")
	f.StringVar(&flags.BLEName, "ble-name", flags.BLEName, "BLE local name")
	f.StringVar(&flags.Broker, "broker", flags.Broker, "MQTT broker URL (empty disables telemetry)")
	f.StringVar(&flags.HTTP, "http", flags.HTTP, "HTTP status address (empty disables)")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "debug, info, warn or error")
	f.BoolVar(&flags.Demo, "demo", flags.Demo, "run with simulated hardware")

	return cmd
}

// deviceInfo is the value of the device info characteristic.
func deviceInfo(s Settings) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s v%s\n%s\n%s", s.BLEName, version, host, s.IIODevice)
}

const version = "1.0"
