// Package swervemodule drives a single swerve module: a drive motor, a steer motor and an
// absolute angle sensor. It converts encoder units and forwards setpoints to the closed loop
// controllers running on the motor controllers.
package swervemodule

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"

	"swerve/kinematics"
)

// Options carries everything a module needs besides its own constants.
type Options struct {
	Kinematics *kinematics.SwerveDriveKinematics
	Physical   PhysicalConstants
	Drive      MotorSettings
	Steer      MotorSettings

	// Heading selects where the module reads its heading from. Nil reads the steer encoder.
	Heading HeadingSource
	// Optimizer defaults to Optimize.
	Optimizer Optimizer
	// Dashboard defaults to discarding telemetry.
	Dashboard Dashboard
	// SteerDeadband holds the last angle while the requested speed is under 1% of max speed.
	SteerDeadband bool
}

// DefaultOptions returns options for an MK4i module laid out by k.
func DefaultOptions(k *kinematics.SwerveDriveKinematics) Options {
	return Options{
		Kinematics: k,
		Physical:   DefaultPhysicalConstants,
		Drive:      DefaultDriveSettings,
		Steer:      DefaultSteerSettings,
	}
}

// Module is one swerve module. It is driven from a single control loop and is not safe for
// concurrent use.
type Module struct {
	number    int
	constants Constants
	logger    logging.Logger

	drive        DriveActuator
	steer        SteerActuator
	angleSensor  AbsoluteAngleSensor
	driveEncoder Encoder
	steerEncoder Encoder

	kinematics    *kinematics.SwerveDriveKinematics
	physical      PhysicalConstants
	heading       HeadingSource
	optimize      Optimizer
	dashboard     Dashboard
	steerDeadband bool

	lastAngle float64
	configErr error

	speedKey string
	angleKey string
}

// New creates the hardware of module number from devices and configures it. Configuration
// commands that fail are logged and collected in ConfigErr, they never abort construction.
func New(number int, constants Constants, devices Devices, opts Options, logger logging.Logger) (*Module, error) {
	if devices == nil {
		return nil, errors.New("no devices to create module hardware from")
	}
	if opts.Kinematics == nil {
		return nil, errors.New("module requires the drivetrain kinematics")
	}
	if number < 0 || number >= opts.Kinematics.NumModules() {
		return nil, errors.Errorf("module number %d out of range [0, %d)", number, opts.Kinematics.NumModules())
	}
	if err := opts.Physical.Validate(); err != nil {
		return nil, errors.Wrapf(err, "module %d", number)
	}

	m := &Module{
		number:        number,
		constants:     constants,
		logger:        logger,
		drive:         devices.DriveMotor(constants.DriveMotorID),
		steer:         devices.SteerMotor(constants.SteerMotorID),
		angleSensor:   devices.AngleSensor(constants.AngleSensorID),
		kinematics:    opts.Kinematics,
		physical:      opts.Physical,
		optimize:      opts.Optimizer,
		dashboard:     opts.Dashboard,
		steerDeadband: opts.SteerDeadband,
		speedKey:      fmt.Sprintf("%d Speed", number),
		angleKey:      fmt.Sprintf("%d Angle", number),
	}
	m.driveEncoder = m.drive.Encoder()
	m.steerEncoder = m.steer.Encoder()

	if m.optimize == nil {
		m.optimize = Optimize
	}
	if m.dashboard == nil {
		m.dashboard = discardDashboard{}
	}
	m.heading = opts.Heading
	if m.heading == nil {
		m.heading = NewEncoderHeading(m.steerEncoder)
	}

	m.configure(opts.Drive, opts.Steer)
	return m, nil
}

func (m *Module) configure(drive, steer MotorSettings) {
	driveRevToMeters := m.physical.DriveRevToMeters()
	turnRotationsToDegrees := m.physical.TurnRotationsToDegrees()

	m.check("drive", "factory_defaults", m.drive.RestoreFactoryDefaults())
	m.applySettings("drive", m.drive, drive)

	m.check("steer", "factory_defaults", m.steer.RestoreFactoryDefaults())
	m.applySettings("steer", m.steer, steer)

	m.check("angle_sensor", "factory_defaults", m.angleSensor.RestoreFactoryDefaults())

	m.check("drive", "position_factor", m.driveEncoder.SetPositionConversionFactor(driveRevToMeters))
	m.check("drive", "velocity_factor", m.driveEncoder.SetVelocityConversionFactor(m.physical.DriveRpmToMetersPerSecond()))
	m.check("drive", "zero_position", m.driveEncoder.SetPosition(0))

	m.check("steer", "position_factor", m.steerEncoder.SetPositionConversionFactor(turnRotationsToDegrees))
	m.check("steer", "velocity_factor", m.steerEncoder.SetVelocityConversionFactor(turnRotationsToDegrees/60))
}

func (m *Module) applySettings(device string, motor Motor, settings MotorSettings) {
	m.check(device, "current_limit", motor.SetCurrentLimit(settings.CurrentLimitAmps))
	m.check(device, "voltage_compensation", motor.EnableVoltageCompensation(settings.VoltageCompensation))
	m.check(device, "inverted", motor.SetInverted(settings.Inverted))
	m.check(device, "idle_mode", motor.SetIdleMode(settings.IdleMode))
	m.check(device, "pid_gains", motor.SetPIDGains(velocitySlot, settings.Gains))
}

func (m *Module) check(device, step string, err error) {
	if err == nil {
		return
	}
	m.logger.Warnw("module configuration command failed",
		"module", m.number,
		"device", device,
		"step", step,
		"error", err,
	)
	m.configErr = multierr.Append(m.configErr, errors.Wrapf(err, "%s %s", device, step))
}

// ConfigErr returns every configuration command that failed during construction.
func (m *Module) ConfigErr() error {
	return m.configErr
}

// Number returns the module index.
func (m *Module) Number() int {
	return m.number
}

// Constants returns the hardware IDs and calibration the module was built with.
func (m *Module) Constants() Constants {
	return m.constants
}

// Kinematics returns the drivetrain kinematics the module belongs to.
func (m *Module) Kinematics() *kinematics.SwerveDriveKinematics {
	return m.kinematics
}

// State returns the current velocity and heading of the module.
func (m *Module) State() kinematics.ModuleState {
	return kinematics.ModuleState{
		SpeedMetersPerSecond: m.DriveMetersPerSecond(),
		Angle:                m.HeadingRotation2d(),
	}
}

// Position returns the distance driven and heading of the module.
func (m *Module) Position() kinematics.ModulePosition {
	return kinematics.ModulePosition{
		DistanceMeters: m.DriveMeters(),
		Angle:          m.HeadingRotation2d(),
	}
}

// ResetAngleToAbsolute aligns the steer encoder with the absolute sensor. It must run once
// after power up, before the module is driven.
func (m *Module) ResetAngleToAbsolute() error {
	angle := m.angleSensor.AbsolutePosition() - m.constants.AngleOffsetDegrees
	if err := m.steerEncoder.SetPosition(angle); err != nil {
		m.logger.Warnw("failed to reset steer encoder to absolute", "module", m.number, "angle", angle, "error", err)
		return errors.Wrapf(err, "module %d reset angle", m.number)
	}
	m.logger.Debugw("steer encoder reset to absolute", "module", m.number, "angle", angle)
	return nil
}

func (m *Module) HeadingDegrees() float64 {
	return m.heading.HeadingDegrees()
}

func (m *Module) HeadingRotation2d() kinematics.Rotation2d {
	return kinematics.RotationFromDegrees(m.HeadingDegrees())
}

func (m *Module) DriveMeters() float64 {
	return m.driveEncoder.Position()
}

func (m *Module) DriveMetersPerSecond() float64 {
	return m.driveEncoder.Velocity()
}

// SetDesiredState sends state to the motor controllers. Open loop commands a duty cycle
// proportional to max speed, closed loop hands the speed to the drive velocity controller.
// Every command is sent even if an earlier one failed; failures are returned together.
func (m *Module) SetDesiredState(state kinematics.ModuleState, isOpenLoop bool) error {
	state = m.optimize(state, m.HeadingRotation2d())
	speed := state.SpeedMetersPerSecond

	var err error
	if isOpenLoop {
		percentOutput := speed / m.physical.MaxMetersPerSecond
		err = multierr.Append(err, errors.Wrap(m.drive.Set(percentOutput), "drive duty cycle"))
	} else {
		err = multierr.Append(err, errors.Wrap(m.drive.SetVelocity(speed, velocitySlot), "drive velocity"))
	}

	angle := state.Angle.Degrees()
	if m.steerDeadband && math.Abs(speed) <= m.physical.MaxMetersPerSecond*steerDeadbandFraction {
		angle = m.lastAngle
	}
	err = multierr.Append(err, errors.Wrap(m.steer.SetAngle(angle, positionSlot), "steer angle"))
	m.heading.Commanded(angle)
	m.lastAngle = angle

	m.dashboard.PutNumber(m.speedKey, MetersToFeet(speed))
	m.dashboard.PutNumber(m.angleKey, angle)

	if err != nil {
		return errors.Wrapf(err, "module %d", m.number)
	}
	return nil
}
