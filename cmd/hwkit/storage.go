package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hubertat/hwkit/storage"
)

func withStorage(fn func(b storage.Backend) error) error {
	hk, err := loadKit()
	if err != nil {
		return err
	}

	b, err := storage.Open(hk.Storage)
	if err != nil {
		return err
	}
	if closer, ok := b.(io.Closer); ok {
		defer closer.Close()
	}
	return fn(b)
}

func NewStorageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect the calibration storage region",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "Hex dump of the whole region",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStorage(func(b storage.Backend) error {
					return storage.Dump(b, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Erase the whole region",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStorage(func(b storage.Backend) error {
					if err := b.Clear(0, b.Size()); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "erased %d bytes\n", b.Size())
					return nil
				})
			},
		},
	)
	return cmd
}
