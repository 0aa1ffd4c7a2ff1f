package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hubertat/hwkit"
)

var (
	Version string
	Build   string

	logLevel   = "info"
	configPath = "config.json"
)

func setupLogger() error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	log.SetLevel(level)
	return nil
}

func loadKit() (*hwkit.HwKit, error) {
	return hwkit.LoadConfig(configPath)
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hwkit",
		Short: "hwkit runs soil moisture sensors, dosing pumps and a status LCD",
		Long: `hwkit reads capacitive soil moisture probes, keeps their dry/wet
calibration in non-volatile storage, drives dosing pumps and exports
readings over MQTT, InfluxDB, Prometheus and HomeKit.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (debug, info, warn, error, fatal)")
	globalFlags.StringVarP(&configPath, "config", "c", configPath, "path of the configuration file (.json, .yaml)")

	cmd.AddCommand(
		NewRunCommand(),
		NewPinsCommand(),
		NewBoardsCommand(),
		NewSensorCommand(),
		NewStorageCommand(),
		NewInstallCommand(),
		NewVersionCommand(),
	)

	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hwkit %s (%s)\n", Version, Build)
		},
	}
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
