package main

import (
	"errors"
	"fmt"

	"depth-recorder-go/internal/device"

	"github.com/spf13/cobra"
)

var selfTestFrames int

func selfTestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Capture a few frames and check them",
		Long: `Open the camera and check a number of captures: color frames must be
4-channel and depth frames must not be empty. Bad frames are reported, the
run always completes.`,
		Example: `  depth-recorder selftest
  depth-recorder selftest -n 30 --config lab.ini`,
		Args: cobra.NoArgs,
		RunE: runSelfTest,
	}
	cmd.Flags().IntVarP(&selfTestFrames, "frames", "n", device.DefaultSelfTestFrames, "Number of captures to check")
	return cmd
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.cleanup()

	cfg := device.BuildConfiguration(env.cfg.SidebarSelection())
	report, err := device.SelfTest(cmd.Context(), env.sdk, cfg, selfTestFrames, env.factory.NewLogger("selftest"))
	if err != nil {
		return fmt.Errorf("self test: %s: %w", device.Reason(err), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "frames checked: %d\n", report.Frames)
	fmt.Fprintf(out, "bad color:      %d\n", report.BadColor)
	fmt.Fprintf(out, "empty depth:    %d\n", report.MissingDepth)
	fmt.Fprintf(out, "capture errors: %d\n", len(report.Errors))
	if !report.Passed() {
		return errors.New("self test failed")
	}
	fmt.Fprintln(out, "self test passed")
	return nil
}
