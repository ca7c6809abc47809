// Swervecal reads the absolute steering encoders of a swerve drive over CAN and records their
// offsets in the calibration file used by the base.
//
// Point every wheel straight forward, bevel gears facing the same side, then run
//
//	swervecal calibrate --channel can0 --file calibration.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "swervecal",
	Short:   "Swerve module angle offset calibration",
	Version: version,
	Example: `  # Print the absolute position of encoders 9 to 12
  swervecal read 9 10 11 12

  # Print the encoders listed in a calibration file
  swervecal read --file calibration.yaml

  # Record offsets with the wheels pointed forward
  swervecal calibrate --file calibration.yaml`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
