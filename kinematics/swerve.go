package kinematics

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ChassisSpeeds is the robot relative velocity of the drivetrain.
// +X is forward, +Y is left and Omega is counter-clockwise in rad/s.
type ChassisSpeeds struct {
	Vx    float64
	Vy    float64
	Omega float64
}

// IsZero reports whether no motion is requested.
func (c ChassisSpeeds) IsZero() bool {
	return c.Vx == 0 && c.Vy == 0 && c.Omega == 0
}

// SwerveDriveKinematics converts chassis speeds into module states for a fixed module layout.
type SwerveDriveKinematics struct {
	locations []r2.Point
}

// NewSwerveDriveKinematics creates the kinematics for modules at the given locations, in
// meters relative to the robot centre. The order of locations is the module numbering.
func NewSwerveDriveKinematics(locations ...r2.Point) (*SwerveDriveKinematics, error) {
	if len(locations) < 2 {
		return nil, errors.Errorf("swerve drive requires at least 2 modules, got %d", len(locations))
	}
	for i := range locations {
		for j := i + 1; j < len(locations); j++ {
			if locations[i] == locations[j] {
				return nil, errors.Errorf("modules %d and %d share the location %v", i, j, locations[i])
			}
		}
	}
	return &SwerveDriveKinematics{locations: append([]r2.Point(nil), locations...)}, nil
}

// NumModules returns the number of modules.
func (k *SwerveDriveKinematics) NumModules() int {
	return len(k.locations)
}

// Location returns the location of the numbered module.
func (k *SwerveDriveKinematics) Location(module int) r2.Point {
	return k.locations[module]
}

// ToModuleStates returns the state every module must reach to produce the chassis speeds.
// Angles are in (-180, 180]. A module asked for no motion points forward with zero speed,
// callers that want to hold the current heading must handle ChassisSpeeds.IsZero themselves.
func (k *SwerveDriveKinematics) ToModuleStates(speeds ChassisSpeeds) []ModuleState {
	states := make([]ModuleState, len(k.locations))
	for i, loc := range k.locations {
		vx := speeds.Vx - speeds.Omega*loc.Y
		vy := speeds.Vy + speeds.Omega*loc.X
		states[i] = ModuleState{
			SpeedMetersPerSecond: math.Hypot(vx, vy),
			Angle:                RotationFromRadians(math.Atan2(vy, vx)),
		}
	}
	return states
}

// MaxRadius returns the distance from the robot centre to the farthest module.
func (k *SwerveDriveKinematics) MaxRadius() float64 {
	var radius float64
	for _, loc := range k.locations {
		radius = math.Max(radius, loc.Norm())
	}
	return radius
}

// TrackWidth returns the side to side spread of the modules in meters.
func (k *SwerveDriveKinematics) TrackWidth() float64 {
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, loc := range k.locations {
		minY = math.Min(minY, loc.Y)
		maxY = math.Max(maxY, loc.Y)
	}
	return maxY - minY
}

// DesaturateWheelSpeeds scales every state down by the same factor so that no module exceeds
// maxSpeed, keeping the ratio between modules.
func DesaturateWheelSpeeds(states []ModuleState, maxSpeed float64) {
	var highest float64
	for _, s := range states {
		highest = math.Max(highest, math.Abs(s.SpeedMetersPerSecond))
	}
	if highest <= maxSpeed || highest == 0 {
		return
	}
	scale := maxSpeed / highest
	for i := range states {
		states[i].SpeedMetersPerSecond *= scale
	}
}
