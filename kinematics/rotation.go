// Package kinematics holds the swerve drive geometry shared by the drivetrain and its modules:
// rotations, module states and positions, and the inverse kinematics that turns chassis
// speeds into per-module states.
package kinematics

import "math"

// Rotation2d is a planar rotation. The angle is kept exactly as given, it is never wrapped,
// because steering encoders report a continuous angle.
type Rotation2d struct {
	degrees float64
}

// RotationFromDegrees returns a rotation of the given number of degrees.
func RotationFromDegrees(degrees float64) Rotation2d {
	return Rotation2d{degrees: degrees}
}

// RotationFromRadians returns a rotation of the given number of radians.
func RotationFromRadians(radians float64) Rotation2d {
	return Rotation2d{degrees: radians * 180 / math.Pi}
}

// Degrees returns the rotation in degrees.
func (r Rotation2d) Degrees() float64 {
	return r.degrees
}

// ModuleState is the velocity and heading of one swerve module.
type ModuleState struct {
	SpeedMetersPerSecond float64
	Angle                Rotation2d
}

// ModulePosition is the distance travelled and heading of one swerve module.
type ModulePosition struct {
	DistanceMeters float64
	Angle          Rotation2d
}
