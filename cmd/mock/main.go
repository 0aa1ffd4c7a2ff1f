package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hubertat/hwkit"
	"github.com/hubertat/hwkit/drivers"
	"github.com/hubertat/hwkit/pins"
)

var (
	Version string
	Build   string
)

func main() {
	log.Info("hwkit started")
	log.Info("mock instance for testing purposes, runs without hardware")

	tickDuration := 250 * time.Millisecond
	log.Info("tick", "duration", tickDuration)

	var dry, wet int16 = 800, 400

	hk := &hwkit.HwKit{
		Name:     "hwkit mock",
		HkPin:    "88008800",
		Schedule: "@every 10s",
	}
	hk.FakeDriver = &drivers.MockIoDriver{BoardName: pins.ArduinoUno.Name}
	hk.Sensors = append(hk.Sensors,
		&hwkit.MoistureSensor{Name: "fake soil", DriverName: "mock_driver", Pin: 14},
		&hwkit.MoistureSensor{Name: "fake calibrated soil", DriverName: "mock_driver", Pin: 15, DryRaw: &dry, WetRaw: &wet},
	)
	hk.Pumps = append(hk.Pumps, &hwkit.Pump{
		Name: "fake pump", DriverName: "mock_driver", Pin1: 8, Pin2: 9,
		MaxRunTime: "10s", CalibrationMl: 50, CalibrationMs: 5000,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("will init hwkit...")
	err := hk.Init(ctx)
	defer hk.Close()
	if err != nil {
		log.Fatal("init failed", "err", err)
	}

	hk.FakeDriver.SetAnalog(14, 512)
	hk.FakeDriver.SetAnalog(15, 600)
	hk.FakeDriver.MonitorStateChanges(os.Stdout)

	hk.PrintPinStatus(os.Stdout)

	if err := hk.Sync(ctx); err != nil {
		log.Warn("first sync failed", "err", err)
	}
	if err := hk.StartScheduler(ctx); err != nil {
		log.Fatal("scheduler failed", "err", err)
	}
	go hk.StartTicker(ctx, tickDuration)

	log.Info("starting mock with HomeKit service")
	hk.HkDirectory = "./mock_homekit"
	if err := hk.StartHomeKit(ctx, "mock: "+Version); err != nil {
		log.Error("homekit stopped", "err", err)
	}
}
