package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"

	"swerve/calibration"
	"swerve/canmotor"
)

// Command flags
var (
	channel         string
	calibrationFile string
	settle          time.Duration
	dryRun          bool
	verbose         bool
)

const pollInterval = 10 * time.Millisecond

func init() {
	rootCmd.PersistentFlags().StringVar(&channel, "channel", "can0", "SocketCAN interface")
	rootCmd.PersistentFlags().StringVar(&calibrationFile, "file", "calibration.yaml", "Calibration file")
	rootCmd.PersistentFlags().DurationVar(&settle, "settle", time.Second, "How long to wait for every encoder to report")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log CAN traffic")

	calibrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the new offsets without writing the file")

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(calibrateCmd)
}

func newLogger() logging.Logger {
	if verbose {
		return logging.NewDebugLogger("swervecal")
	}
	return logging.NewLogger("swervecal")
}

// readCmd implements the 'read' command
var readCmd = &cobra.Command{
	Use:   "read [sensor IDs...]",
	Short: "Print absolute encoder positions",
	Long: `Print the absolute position of the given encoders, or of every encoder listed in
the calibration file when no IDs are given.`,
	RunE: runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ids, err := sensorIDs(args)
	if err != nil {
		return err
	}

	bus, err := canmotor.OpenBus(channel, newLogger())
	if err != nil {
		return err
	}
	defer bus.Close()

	readings, missing := readSensors(cmd.Context(), bus, ids, settle)
	printReadings(cmd.OutOrStdout(), readings)
	if len(missing) > 0 {
		return errors.Errorf("no status from encoders %v", missing)
	}
	return nil
}

func sensorIDs(args []string) ([]int, error) {
	if len(args) == 0 {
		f, err := calibration.Load(calibrationFile)
		if err != nil {
			return nil, errors.Wrap(err, "no sensor IDs given")
		}
		return f.SensorIDs(), nil
	}

	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errors.Errorf("invalid sensor ID %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// calibrateCmd implements the 'calibrate' command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Record angle offsets in the calibration file",
	Long: `Read every absolute encoder listed in the calibration file and store its position
as the module angle offset. All wheels must point straight forward.`,
	RunE: runCalibrate,
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	f, err := calibration.Load(calibrationFile)
	if err != nil {
		return err
	}

	bus, err := canmotor.OpenBus(channel, newLogger())
	if err != nil {
		return err
	}

	err = calibrate(cmd.Context(), bus, f, settle, cmd.OutOrStdout())
	err = multierr.Combine(err, bus.Close())
	if err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	if err := f.Save(calibrationFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", calibrationFile)
	return nil
}

// calibrate replaces the offsets in f with the current encoder readings. f is left untouched
// if any encoder stays silent.
func calibrate(ctx context.Context, bus *canmotor.Bus, f *calibration.File, settle time.Duration, out io.Writer) error {
	readings, missing := readSensors(ctx, bus, f.SensorIDs(), settle)
	if len(missing) > 0 {
		return errors.Errorf("no status from encoders %v", missing)
	}

	previous := make([]float64, len(f.Modules))
	for i, m := range f.Modules {
		previous[i] = m.AngleOffsetDegrees
	}
	f.ApplyReadings(readings)

	for i, m := range f.Modules {
		name := m.Name
		if name == "" {
			name = calibration.ModuleName(i)
		}
		fmt.Fprintf(out, "%-12s sensor %2d  %8.3f -> %8.3f\n", name, m.AngleSensorID, previous[i], m.AngleOffsetDegrees)
	}
	return nil
}

// readSensors waits up to settle for a status frame from every encoder and returns the
// positions of those that reported.
func readSensors(ctx context.Context, bus *canmotor.Bus, ids []int, settle time.Duration) (map[int]float64, []int) {
	deadline := time.Now().Add(settle)
	var missing []int
	for {
		missing = missing[:0]
		for _, id := range ids {
			if !bus.AbsoluteEncoder(id).Reported() {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 || time.Now().After(deadline) || !goutils.SelectContextOrWait(ctx, pollInterval) {
			break
		}
	}

	readings := map[int]float64{}
	for _, id := range ids {
		if encoder := bus.AbsoluteEncoder(id); encoder.Reported() {
			readings[id] = encoder.AbsolutePosition()
		}
	}
	return readings, missing
}

func printReadings(out io.Writer, readings map[int]float64) {
	ids := make([]int, 0, len(readings))
	for id := range readings {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "sensor %2d  %8.3f\n", id, readings[id])
	}
}
