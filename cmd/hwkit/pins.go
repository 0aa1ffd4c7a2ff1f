package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hubertat/hwkit/pins"
)

func NewPinsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pins",
		Short: "Initialize the kit and show every reserved pin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hk, err := loadKit()
			if err != nil {
				return err
			}
			err = hk.Init(context.Background())
			defer hk.Close()
			if err != nil {
				return err
			}

			out := &strings.Builder{}
			hk.PrintPinStatus(out)
			for _, line := range strings.Split(out.String(), "\n") {
				fmt.Fprintln(cmd.OutOrStdout(), colorPinLine(line))
			}
			return nil
		},
	}
}

func colorPinLine(line string) string {
	switch {
	case strings.Contains(line, "RESERVED"):
		return color.YellowString(line)
	case strings.Contains(line, "OUTPUT"):
		return color.RedString(line)
	case strings.Contains(line, "INPUT"):
		return color.GreenString(line)
	case strings.HasPrefix(line, "| driver"):
		return color.New(color.Bold).Sprint(line)
	}
	return line
}

func NewBoardsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List built-in board descriptors",
		Run: func(cmd *cobra.Command, _ []string) {
			bold := color.New(color.Bold).SprintFunc()
			for _, b := range pins.Boards() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  pins: %d  analog: %v  pwm: %v  pulldown: %s  open-drain: %s  adc max: %d\n",
					bold(b.Name), b.MaxPins, b.AnalogPins, b.PWMPins, yesNo(b.Pulldown), yesNo(b.OpenDrain), b.FullScale())
			}
		},
	}
}

func yesNo(v bool) string {
	if v {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}
