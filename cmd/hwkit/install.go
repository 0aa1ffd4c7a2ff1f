package main

import (
	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"
	"github.com/spf13/cobra"
)

var hwkService = servicemaker.ServiceMaker{
	User:               "hwkit",
	UserGroups:         []string{"gpio", "i2c", "spi"},
	ServicePath:        "/etc/systemd/system/hwkit.service",
	ServiceDescription: "HwKit service: soil moisture sensors and dosing pumps with HomeKit. github.com/hubertat/hwkit",
	ExecDir:            "/srv/hwkit",
	ExecName:           "hwkit",
}

func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install hwkit as a systemd service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := hwkService.InstallService(); err != nil {
				return err
			}
			log.Info("service installed!")
			return nil
		},
	}
}
