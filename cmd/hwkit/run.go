package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const defaultTickInterval = "250ms"

func NewRunCommand() *cobra.Command {
	tick := defaultTickInterval

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the kit until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tickDuration, err := time.ParseDuration(tick)
			if err != nil {
				return err
			}

			log.Info("hwkit started", "version", Version)

			hk, err := loadKit()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("will init hwkit...")
			err = hk.Init(ctx)
			defer hk.Close()
			if err != nil {
				return err
			}
			hk.PrintPinStatus(os.Stdout)

			if len(hk.MqttBroker) > 0 {
				if err := hk.InitMqtt(ctx); err != nil {
					log.Warn("mqtt disabled, we will proceed...", "err", err)
				}
			}

			if err := hk.Sync(ctx); err != nil {
				log.Warn("initial sync failed", "err", err)
			}
			if err := hk.StartScheduler(ctx); err != nil {
				return err
			}
			go hk.StartTicker(ctx, tickDuration)

			if len(hk.HttpAddress) > 0 {
				go func() {
					if err := hk.StartHttp(ctx); err != nil {
						log.Error("http api stopped", "err", err)
					}
				}()
			}

			if len(hk.HkPin) == 8 {
				log.Info("Starting with HomeKit server")
				return hk.StartHomeKit(ctx, Version)
			}

			log.Info("HomeKit not configured, disabled")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&tick, "tick", tick, "pump deadline check interval (time.Duration)")
	return cmd
}
