// Package main is a viam module serving a four module swerve drive base.
package main

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	"swerve/canmotor"
	"swerve/kinematics"
	"swerve/sim"
	"swerve/swervemodule"
	"swerve/telemetry"
)

var model = resource.NewModel("frc", "swerve", "base")

// Version number
var version = "1.0.0"

func main() {
	goutils.ContextualMain(mainWithArgs, logging.NewDebugLogger("swerveBaseModule"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	registerBase()
	swerveModule, err := module.NewModuleFromArgs(ctx, logger)
	if err != nil {
		return err
	}
	if err := swerveModule.AddModelFromRegistry(ctx, base.API, model); err != nil {
		return err
	}

	err = swerveModule.Start(ctx)
	defer swerveModule.Close(ctx)

	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// helper function to add the base's constructor and metadata to the component registry, so that we can later construct it.
func registerBase() {
	resource.RegisterComponent(
		base.API,
		model,
		resource.Registration[base.Base, *Config]{Constructor: func(
			ctx context.Context,
			deps resource.Dependencies,
			conf resource.Config,
			logger logging.Logger,
		) (base.Base, error) {
			b, err := newBase(ctx, conf, logger)
			if err != nil {
				return nil, err
			}
			return b, nil
		}})
}

// Telemetry keys besides the per module "<n> Speed" and "<n> Angle" published by the modules.
const (
	telemVersion      = "version"
	telemSimulated    = "simulated"
	telemConfigErrors = "config_errors"
	telemMissingAngle = "missing_angle_sensors"
	telemOpenLoop     = "open_loop"
)

// newBase creates the four modules, aligns their steering with the absolute encoders and starts
// the control loop that re-sends the desired module states every 20ms.
func newBase(ctx context.Context, conf resource.Config, logger logging.Logger) (*swerveBase, error) {
	cfg, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	var geometries = []spatialmath.Geometry{}
	if conf.Frame != nil {
		frame, err := conf.Frame.ParseConfig()
		if err != nil {
			return nil, err
		}
		geometries = append(geometries, frame.Geometry())
	}

	var devices swervemodule.Devices
	var bus *canmotor.Bus
	if cfg.Simulated {
		devices = sim.NewDevices()
	} else {
		bus, err = canmotor.OpenBus(cfg.CANChannel, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "opening CAN bus %s", cfg.CANChannel)
		}
		devices = bus
	}

	sBase, err := newSwerveBase(ctx, conf.ResourceName().AsNamed(), cfg, devices, bus, logger)
	if err != nil {
		if bus != nil {
			err = multierr.Combine(err, bus.Close())
		}
		return nil, err
	}
	sBase.geometries = geometries
	return sBase, nil
}

// newSwerveBase builds the base on devices. bus is the CAN bus behind devices, nil when the
// hardware is simulated.
func newSwerveBase(
	ctx context.Context,
	named resource.Named,
	cfg *Config,
	devices swervemodule.Devices,
	bus *canmotor.Bus,
	logger logging.Logger,
) (*swerveBase, error) {
	k, err := cfg.kinematics()
	if err != nil {
		return nil, err
	}
	constants, err := cfg.moduleConstants()
	if err != nil {
		return nil, err
	}

	table := telemetry.NewTable(map[string]interface{}{
		telemVersion:      version,
		telemSimulated:    cfg.Simulated,
		telemConfigErrors: []interface{}{},
		telemMissingAngle: []interface{}{},
		telemOpenLoop:     false,
	})

	opts := swervemodule.DefaultOptions(k)
	opts.Physical = cfg.physical()
	opts.Dashboard = table
	opts.SteerDeadband = cfg.SteerDeadband

	modules := make([]*swervemodule.Module, 0, len(constants))
	var configErrors []interface{}
	for i, c := range constants {
		if cfg.Simulated {
			opts.Heading = &swervemodule.SimulatedHeading{}
		}
		m, err := swervemodule.New(i, c, devices, opts, logger)
		if err != nil {
			return nil, err
		}
		if err := m.ConfigErr(); err != nil {
			logger.Warnw("module configured with errors", "module", cfg.moduleName(i), "error", err)
			configErrors = append(configErrors, err.Error())
		}
		modules = append(modules, m)
	}
	if len(configErrors) > 0 {
		table.Set(telemConfigErrors, configErrors)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	sBase := &swerveBase{
		Named:      named,
		cfg:        cfg,
		modules:    modules,
		kinematics: k,
		physical:   opts.Physical,
		devices:    devices,
		bus:        bus,
		telemetry:  table,
		geometries: []spatialmath.Geometry{},
		logger:     logger,
		desired:    make([]kinematics.ModuleState, len(modules)),
		cancel:     cancel,
	}

	if bus != nil {
		sBase.waitForAngleSensors(ctx, cfg.statusWait())
	}
	if err := sBase.resetAngles(); err != nil {
		logger.Warnw("steering not aligned with absolute encoders", "error", err)
	}
	if err := sBase.holdHeadings(); err != nil {
		logger.Warnw("initial module command failed", "error", err)
	}

	sBase.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		sBase.controlThread(cancelCtx)
	}, sBase.activeBackgroundWorkers.Done)

	return sBase, nil
}

// waitForAngleSensors blocks until every absolute encoder published a status frame or timeout
// elapses. Sensors that stay silent read zero and are reported in telemetry.
func (base *swerveBase) waitForAngleSensors(ctx context.Context, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		var missing []interface{}
		for i, m := range base.modules {
			if !base.bus.AbsoluteEncoder(m.Constants().AngleSensorID).Reported() {
				missing = append(missing, base.cfg.moduleName(i))
			}
		}
		if len(missing) == 0 {
			return
		}
		if time.Now().After(deadline) || !goutils.SelectContextOrWait(ctx, statusPollInterval) {
			base.logger.Warnw("absolute encoders did not report", "modules", missing, "timeout", timeout)
			base.telemetry.Set(telemMissingAngle, missing)
			return
		}
	}
}

const (
	controlPeriod      = 20 * time.Millisecond
	statusPollInterval = 10 * time.Millisecond
)

func degreesPerSecondToRadians(degsPerSec float64) float64 {
	return degsPerSec * math.Pi / 180
}
