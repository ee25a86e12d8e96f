package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeviceCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Device registry maintenance",
	}
	cmd.AddCommand(newDeviceClearCommand(opts))
	return cmd
}

func newDeviceClearCommand(opts *rootOptions) *cobra.Command {
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Release a device fingerprint so it can register again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Close()

			a, err := newApp(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			cleared, err := a.maintenance.ClearDevice(cmd.Context(), fingerprint)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared: %t\n", cleared)
			return nil
		},
	}
	cmd.Flags().StringVarP(&fingerprint, "fingerprint", "f", "", "Device fingerprint to release")
	_ = cmd.MarkFlagRequired("fingerprint")
	return cmd
}
