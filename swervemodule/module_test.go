package swervemodule_test

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"swerve/kinematics"
	"swerve/sim"
	"swerve/swervemodule"
	"swerve/telemetry"
)

var testConstants = swervemodule.Constants{
	DriveMotorID:       1,
	SteerMotorID:       2,
	AngleSensorID:      3,
	AngleOffsetDegrees: 42.5,
}

type testModule struct {
	*swervemodule.Module
	drive     *sim.Motor
	steer     *sim.Motor
	sensor    *sim.AngleSensor
	dashboard *telemetry.Table
}

func testKinematics(t *testing.T) *kinematics.SwerveDriveKinematics {
	t.Helper()
	k, err := kinematics.NewSwerveDriveKinematics(
		r2.Point{X: 0.3, Y: 0.3},
		r2.Point{X: 0.3, Y: -0.3},
		r2.Point{X: -0.3, Y: 0.3},
		r2.Point{X: -0.3, Y: -0.3},
	)
	test.That(t, err, test.ShouldBeNil)
	return k
}

func newTestModule(t *testing.T, number int, edit func(*swervemodule.Options, *sim.Devices)) testModule {
	t.Helper()
	devices := sim.NewDevices()
	dashboard := telemetry.NewTable(nil)
	opts := swervemodule.DefaultOptions(testKinematics(t))
	opts.Dashboard = dashboard
	if edit != nil {
		edit(&opts, devices)
	}
	m, err := swervemodule.New(number, testConstants, devices, opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return testModule{
		Module:    m,
		drive:     devices.Motor(testConstants.DriveMotorID),
		steer:     devices.Motor(testConstants.SteerMotorID),
		sensor:    devices.Sensor(testConstants.AngleSensorID),
		dashboard: dashboard,
	}
}

func TestConversionFactors(t *testing.T) {
	for _, c := range []swervemodule.PhysicalConstants{
		swervemodule.DefaultPhysicalConstants,
		{WheelDiameterMeters: 0.0762, DriveGearRatio: 8.14, TurnGearRatio: 12.8, MaxMetersPerSecond: 3},
		{WheelDiameterMeters: 1, DriveGearRatio: 1, TurnGearRatio: 1, MaxMetersPerSecond: 1},
	} {
		revToMeters := c.WheelDiameterMeters * math.Pi / c.DriveGearRatio
		test.That(t, c.DriveRevToMeters(), test.ShouldEqual, revToMeters)
		test.That(t, c.DriveRpmToMetersPerSecond(), test.ShouldEqual, revToMeters/60)
		test.That(t, c.TurnRotationsToDegrees(), test.ShouldEqual, 360/c.TurnGearRatio)
	}

	test.That(t, swervemodule.PhysicalConstants{}.Validate(), test.ShouldNotBeNil)
	test.That(t, swervemodule.DefaultPhysicalConstants.Validate(), test.ShouldBeNil)
}

func TestNewConfiguresHardware(t *testing.T) {
	m := newTestModule(t, 0, nil)
	test.That(t, m.ConfigErr(), test.ShouldBeNil)

	test.That(t, m.drive.FactoryResets(), test.ShouldEqual, 1)
	test.That(t, m.drive.Settings(), test.ShouldResemble, swervemodule.DefaultDriveSettings)
	test.That(t, m.steer.FactoryResets(), test.ShouldEqual, 1)
	test.That(t, m.steer.Settings(), test.ShouldResemble, swervemodule.DefaultSteerSettings)
	test.That(t, m.steer.Settings().CurrentLimitAmps, test.ShouldEqual, 25.0)
	test.That(t, m.steer.Settings().VoltageCompensation, test.ShouldEqual, 12.6)

	physical := swervemodule.DefaultPhysicalConstants
	drivePos, driveVel := m.drive.Encoder().(*sim.Encoder).ConversionFactors()
	test.That(t, drivePos, test.ShouldEqual, physical.DriveRevToMeters())
	test.That(t, driveVel, test.ShouldEqual, physical.DriveRpmToMetersPerSecond())

	steerPos, steerVel := m.steer.Encoder().(*sim.Encoder).ConversionFactors()
	test.That(t, steerPos, test.ShouldEqual, physical.TurnRotationsToDegrees())
	test.That(t, steerVel, test.ShouldEqual, physical.TurnRotationsToDegrees()/60)

	test.That(t, m.Number(), test.ShouldEqual, 0)
	test.That(t, m.Constants(), test.ShouldResemble, testConstants)
	test.That(t, m.Kinematics().NumModules(), test.ShouldEqual, 4)
}

func TestNewCollectsConfigurationFailures(t *testing.T) {
	m := newTestModule(t, 1, func(_ *swervemodule.Options, devices *sim.Devices) {
		devices.Motor(testConstants.DriveMotorID).ConfigErr = errors.New("no response")
		devices.Sensor(testConstants.AngleSensorID).ConfigErr = errors.New("bus off")
	})
	err := m.ConfigErr()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "drive current_limit: no response")
	test.That(t, err.Error(), test.ShouldContainSubstring, "angle_sensor factory_defaults: bus off")
	test.That(t, err.Error(), test.ShouldNotContainSubstring, "steer")

	// the module is still usable
	test.That(t, m.SetDesiredState(kinematics.ModuleState{SpeedMetersPerSecond: 1}, false), test.ShouldBeNil)
}

func TestNewRejectsBadArguments(t *testing.T) {
	logger := logging.NewTestLogger(t)
	k := testKinematics(t)

	_, err := swervemodule.New(0, testConstants, sim.NewDevices(), swervemodule.DefaultOptions(nil), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = swervemodule.New(4, testConstants, sim.NewDevices(), swervemodule.DefaultOptions(k), logger)
	test.That(t, err.Error(), test.ShouldContainSubstring, "out of range")

	_, err = swervemodule.New(0, testConstants, nil, swervemodule.DefaultOptions(k), logger)
	test.That(t, err, test.ShouldNotBeNil)

	opts := swervemodule.DefaultOptions(k)
	opts.Physical.MaxMetersPerSecond = 0
	_, err = swervemodule.New(0, testConstants, sim.NewDevices(), opts, logger)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max speed")
}

func TestHeading(t *testing.T) {
	m := newTestModule(t, 0, nil)
	m.steer.Encoder().(*sim.Encoder).SetState(123.456, 0)
	test.That(t, m.HeadingDegrees(), test.ShouldEqual, 123.456)
	test.That(t, m.HeadingRotation2d().Degrees(), test.ShouldEqual, m.HeadingDegrees())

	m.steer.Encoder().(*sim.Encoder).SetState(-1234.5678, 0)
	test.That(t, m.HeadingRotation2d().Degrees(), test.ShouldEqual, m.HeadingDegrees())
}

func TestSimulatedHeading(t *testing.T) {
	m := newTestModule(t, 0, func(opts *swervemodule.Options, _ *sim.Devices) {
		opts.Heading = &swervemodule.SimulatedHeading{}
	})
	m.steer.Encoder().(*sim.Encoder).SetState(99, 0)
	test.That(t, m.HeadingDegrees(), test.ShouldEqual, 0.0)

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 1,
		Angle:                kinematics.RotationFromDegrees(30),
	}, false), test.ShouldBeNil)
	test.That(t, m.HeadingDegrees(), test.ShouldEqual, 30.0)
}

func TestStateAndPosition(t *testing.T) {
	m := newTestModule(t, 0, nil)
	m.drive.Encoder().(*sim.Encoder).SetState(1.5, 2.5)
	m.steer.Encoder().(*sim.Encoder).SetState(45, 0)

	state := m.State()
	test.That(t, state.SpeedMetersPerSecond, test.ShouldEqual, 2.5)
	test.That(t, state.Angle.Degrees(), test.ShouldEqual, 45.0)
	test.That(t, m.DriveMetersPerSecond(), test.ShouldEqual, 2.5)

	pos := m.Position()
	test.That(t, pos.DistanceMeters, test.ShouldEqual, 1.5)
	test.That(t, pos.Angle.Degrees(), test.ShouldEqual, 45.0)
	test.That(t, m.DriveMeters(), test.ShouldEqual, 1.5)
}

func TestResetAngleToAbsolute(t *testing.T) {
	m := newTestModule(t, 0, nil)
	m.sensor.SetAbsolutePosition(200.25)
	test.That(t, m.ResetAngleToAbsolute(), test.ShouldBeNil)
	test.That(t, m.steer.Encoder().Position(), test.ShouldEqual, 200.25-42.5)
	test.That(t, m.HeadingDegrees(), test.ShouldEqual, 200.25-42.5)

	m.sensor.SetAbsolutePosition(10)
	test.That(t, m.ResetAngleToAbsolute(), test.ShouldBeNil)
	test.That(t, m.steer.Encoder().Position(), test.ShouldEqual, 10-42.5)

	m.steer.ConfigErr = errors.New("timeout")
	err := m.ResetAngleToAbsolute()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timeout")
}

func TestSetDesiredStateOpenLoop(t *testing.T) {
	m := newTestModule(t, 0, nil)
	maxSpeed := swervemodule.DefaultPhysicalConstants.MaxMetersPerSecond

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 2.25,
		Angle:                kinematics.RotationFromDegrees(10),
	}, true), test.ShouldBeNil)
	test.That(t, m.drive.LastReference(), test.ShouldResemble, sim.Reference{Mode: sim.ModeDutyCycle, Value: 2.25 / maxSpeed})
	test.That(t, m.steer.LastReference(), test.ShouldResemble, sim.Reference{Mode: sim.ModePosition, Value: 10})

	// no clipping above max speed
	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 2 * maxSpeed,
		Angle:                kinematics.RotationFromDegrees(10),
	}, true), test.ShouldBeNil)
	test.That(t, m.drive.LastReference().Value, test.ShouldEqual, 2.0)
}

func TestSetDesiredStateClosedLoop(t *testing.T) {
	m := newTestModule(t, 0, nil)

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 3.3,
		Angle:                kinematics.RotationFromDegrees(-20),
	}, false), test.ShouldBeNil)
	test.That(t, m.drive.LastReference(), test.ShouldResemble, sim.Reference{Mode: sim.ModeVelocity, Value: 3.3, Slot: 0})
	test.That(t, m.steer.LastReference(), test.ShouldResemble, sim.Reference{Mode: sim.ModePosition, Value: -20, Slot: 0})
}

func TestSetDesiredStateOptimizes(t *testing.T) {
	m := newTestModule(t, 0, nil)

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                kinematics.RotationFromDegrees(170),
	}, false), test.ShouldBeNil)
	test.That(t, m.drive.LastReference().Value, test.ShouldEqual, -2.0)
	test.That(t, m.steer.LastReference().Value, test.ShouldEqual, -10.0)
}

func TestSetDesiredStateCustomOptimizer(t *testing.T) {
	m := newTestModule(t, 0, func(opts *swervemodule.Options, _ *sim.Devices) {
		opts.Optimizer = func(desired kinematics.ModuleState, _ kinematics.Rotation2d) kinematics.ModuleState {
			return desired
		}
	})
	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                kinematics.RotationFromDegrees(170),
	}, false), test.ShouldBeNil)
	test.That(t, m.drive.LastReference().Value, test.ShouldEqual, 2.0)
	test.That(t, m.steer.LastReference().Value, test.ShouldEqual, 170.0)
}

// Below 1% of max speed the wheel still steers to the requested angle; the deadband is opt-in.
func TestSetDesiredStateLowSpeedStillSteers(t *testing.T) {
	m := newTestModule(t, 0, nil)
	slow := swervemodule.DefaultPhysicalConstants.MaxMetersPerSecond * 0.005

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                kinematics.RotationFromDegrees(20),
	}, false), test.ShouldBeNil)
	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: slow,
		Angle:                kinematics.RotationFromDegrees(33),
	}, false), test.ShouldBeNil)
	test.That(t, m.steer.LastReference().Value, test.ShouldEqual, 33.0)
}

func TestSetDesiredStateSteerDeadband(t *testing.T) {
	m := newTestModule(t, 0, func(opts *swervemodule.Options, _ *sim.Devices) {
		opts.SteerDeadband = true
	})
	slow := swervemodule.DefaultPhysicalConstants.MaxMetersPerSecond * 0.005

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                kinematics.RotationFromDegrees(20),
	}, false), test.ShouldBeNil)
	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: slow,
		Angle:                kinematics.RotationFromDegrees(50),
	}, false), test.ShouldBeNil)
	test.That(t, m.steer.LastReference().Value, test.ShouldEqual, 20.0)
	test.That(t, m.drive.LastReference().Value, test.ShouldEqual, slow)
}

func TestSetDesiredStateTelemetry(t *testing.T) {
	m := newTestModule(t, 2, nil)

	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 3.048,
		Angle:                kinematics.RotationFromDegrees(75),
	}, false), test.ShouldBeNil)

	speed, ok := m.dashboard.Number("2 Speed")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, speed, test.ShouldEqual, swervemodule.MetersToFeet(3.048))
	test.That(t, speed, test.ShouldAlmostEqual, 10)

	angle, ok := m.dashboard.Number("2 Angle")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, angle, test.ShouldEqual, 75.0)

	// telemetry reports the optimized state
	test.That(t, m.SetDesiredState(kinematics.ModuleState{
		SpeedMetersPerSecond: 1,
		Angle:                kinematics.RotationFromDegrees(75 + 160),
	}, true), test.ShouldBeNil)
	speed, _ = m.dashboard.Number("2 Speed")
	angle, _ = m.dashboard.Number("2 Angle")
	test.That(t, speed, test.ShouldEqual, swervemodule.MetersToFeet(-1))
	test.That(t, angle, test.ShouldEqual, 55.0)
}

func TestSetDesiredStateReportsEveryFailure(t *testing.T) {
	m := newTestModule(t, 0, nil)
	m.drive.CommandErr = errors.New("drive offline")
	m.steer.CommandErr = errors.New("steer offline")

	err := m.SetDesiredState(kinematics.ModuleState{SpeedMetersPerSecond: 1}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "drive offline")
	test.That(t, err.Error(), test.ShouldContainSubstring, "steer offline")

	_, ok := m.dashboard.Number("0 Speed")
	test.That(t, ok, test.ShouldBeTrue)
}

func TestUnits(t *testing.T) {
	test.That(t, swervemodule.MetersToFeet(0.3048), test.ShouldAlmostEqual, 1)
	test.That(t, swervemodule.MetersToFeet(-3.048), test.ShouldAlmostEqual, -10)
}
