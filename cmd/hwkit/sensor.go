package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hubertat/hwkit"
)

func withSensor(name string, fn func(ms *hwkit.MoistureSensor) error) error {
	hk, err := loadKit()
	if err != nil {
		return err
	}
	err = hk.Init(context.Background())
	defer hk.Close()
	if err != nil {
		return err
	}

	ms := hk.FindSensor(name)
	if ms == nil {
		return errors.Errorf("sensor %s not configured", name)
	}
	return fn(ms)
}

func NewSensorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sensor",
		Short: "Read and calibrate soil sensors",
	}

	cmd.AddCommand(
		newSensorReadCommand(),
		newSensorCalibrateCommand(),
		newSensorClearCommand(),
	)
	return cmd
}

func newSensorReadCommand() *cobra.Command {
	samples := 0

	cmd := &cobra.Command{
		Use:   "read <name>",
		Short: "Print raw and percentage readings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(args[0], func(ms *hwkit.MoistureSensor) error {
				if samples > 0 {
					ms.Samples = samples
				}
				reading, err := ms.Read()
				if err != nil {
					return err
				}

				state := color.YellowString("uncalibrated")
				if reading.Calibrated {
					state = color.GreenString(ms.Sensor().Calibration().String())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: raw %d, %s (%s)\n",
					ms.Name, reading.Raw, color.New(color.Bold).Sprintf("%d%%", reading.Percent), state)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&samples, "samples", "n", samples, "number of samples to average")
	return cmd
}

func newSensorCalibrateCommand() *cobra.Command {
	var dry, wet int16

	cmd := &cobra.Command{
		Use:   "calibrate <name>",
		Short: "Store dry/wet raw readings for a sensor",
		Long: `Store dry/wet raw readings for a sensor.

Read the probe in dry air and in water with "hwkit sensor read" first, then
pass both raw values here. The record is written to the configured storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(args[0], func(ms *hwkit.MoistureSensor) error {
				if err := ms.Sensor().SetCalibration(dry, wet, true); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s calibrated: %s\n", ms.Name, ms.Sensor().Calibration())
				return nil
			})
		},
	}

	cmd.Flags().Int16Var(&dry, "dry", -1, "raw reading with the probe in dry air")
	cmd.Flags().Int16Var(&wet, "wet", -1, "raw reading with the probe in water")
	cmd.MarkFlagRequired("dry")
	cmd.MarkFlagRequired("wet")
	return cmd
}

func newSensorClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <name>",
		Short: "Erase the stored calibration of a sensor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(args[0], func(ms *hwkit.MoistureSensor) error {
				ms.Sensor().ClearCalibration()
				fmt.Fprintf(cmd.OutOrStdout(), "%s calibration cleared\n", ms.Name)
				return nil
			})
		},
	}
}
