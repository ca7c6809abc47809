package swervemodule

import (
	"math"

	"github.com/pkg/errors"
)

// PID slot used by both onboard controllers.
const (
	positionSlot = 0
	velocitySlot = 0
)

// Fraction of max speed under which the optional steering deadband holds the last angle.
const steerDeadbandFraction = 0.01

const metersPerFoot = 0.3048

// Constants identifies the hardware of one module and its calibration.
type Constants struct {
	DriveMotorID  int
	SteerMotorID  int
	AngleSensorID int
	// AngleOffsetDegrees is the absolute sensor reading when the wheel points forward.
	AngleOffsetDegrees float64
}

// PhysicalConstants describe the module mechanics.
type PhysicalConstants struct {
	WheelDiameterMeters float64
	DriveGearRatio      float64
	TurnGearRatio       float64
	MaxMetersPerSecond  float64
}

// DefaultPhysicalConstants are those of an SDS MK4i L2 module with a 4 inch wheel.
var DefaultPhysicalConstants = PhysicalConstants{
	WheelDiameterMeters: 0.1016,
	DriveGearRatio:      6.75,
	TurnGearRatio:       150.0 / 7.0,
	MaxMetersPerSecond:  4.5,
}

// Validate checks every constant is usable as a divisor.
func (c PhysicalConstants) Validate() error {
	switch {
	case c.WheelDiameterMeters <= 0:
		return errors.New("wheel diameter must be positive")
	case c.DriveGearRatio <= 0:
		return errors.New("drive gear ratio must be positive")
	case c.TurnGearRatio <= 0:
		return errors.New("turn gear ratio must be positive")
	case c.MaxMetersPerSecond <= 0:
		return errors.New("max speed must be positive")
	}
	return nil
}

// DriveRevToMeters is the distance travelled per drive motor revolution.
func (c PhysicalConstants) DriveRevToMeters() float64 {
	return c.WheelDiameterMeters * math.Pi / c.DriveGearRatio
}

// DriveRpmToMetersPerSecond converts drive motor RPM to wheel speed.
func (c PhysicalConstants) DriveRpmToMetersPerSecond() float64 {
	return c.DriveRevToMeters() / 60.0
}

// TurnRotationsToDegrees converts steer motor rotations to wheel degrees.
func (c PhysicalConstants) TurnRotationsToDegrees() float64 {
	return 360.0 / c.TurnGearRatio
}

// MotorSettings is the configuration applied to a motor controller after a factory reset.
type MotorSettings struct {
	CurrentLimitAmps    float64
	VoltageCompensation float64
	Inverted            bool
	IdleMode            IdleMode
	Gains               PIDGains
}

// DefaultDriveSettings apply to the MK4i drive motor, which is mounted inverted.
var DefaultDriveSettings = MotorSettings{
	CurrentLimitAmps:    40,
	VoltageCompensation: 12.6,
	Inverted:            true,
	IdleMode:            IdleBrake,
	Gains:               PIDGains{P: 0.1, FF: 1 / DefaultPhysicalConstants.MaxMetersPerSecond},
}

// DefaultSteerSettings apply to the MK4i steer motor, which is mounted inverted.
var DefaultSteerSettings = MotorSettings{
	CurrentLimitAmps:    25,
	VoltageCompensation: 12.6,
	Inverted:            true,
	IdleMode:            IdleBrake,
	Gains:               PIDGains{P: 0.01},
}

// MetersToFeet converts meters to feet.
func MetersToFeet(meters float64) float64 {
	return meters / metersPerFoot
}
