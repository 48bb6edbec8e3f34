package main

import (
	"context"
	"fmt"
	"time"

	"depth-recorder-go/internal/device"

	"github.com/spf13/cobra"
)

func probeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the camera can be opened",
		Long: `Open the camera once with the [sidebar] options and close it again.
A connection problem is reported but, like the GUI, exits with status 0.`,
		Args: cobra.NoArgs,
		RunE: runProbe,
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(env.cfg.ProbeTimeoutMS)*time.Millisecond)
	defer cancel()

	cfg := device.BuildConfiguration(env.cfg.SidebarSelection())
	if err := device.CheckDevice(ctx, env.sdk, cfg, env.factory.NewLogger("probe")); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Camera connection problem, please retry the connection (%s)\n", device.Reason(err))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Camera OK (%s)\n", env.sdk.Name())
	return nil
}
