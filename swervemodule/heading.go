package swervemodule

import (
	"math"
	"sync"

	"swerve/kinematics"
)

// HeadingSource supplies the current steering angle of a module in degrees.
type HeadingSource interface {
	HeadingDegrees() float64
	// Commanded is called with every steering angle the module dispatches.
	Commanded(degrees float64)
}

// EncoderHeading reads the heading from the steer motor encoder. It is used on real hardware.
type EncoderHeading struct {
	encoder Encoder
}

// NewEncoderHeading returns a heading source backed by the given encoder.
func NewEncoderHeading(encoder Encoder) *EncoderHeading {
	return &EncoderHeading{encoder: encoder}
}

func (h *EncoderHeading) HeadingDegrees() float64 {
	return h.encoder.Position()
}

func (h *EncoderHeading) Commanded(float64) {}

// SimulatedHeading assumes the wheel reaches every commanded angle immediately.
type SimulatedHeading struct {
	mu      sync.Mutex
	degrees float64
}

func (h *SimulatedHeading) HeadingDegrees() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degrees
}

func (h *SimulatedHeading) Commanded(degrees float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.degrees = degrees
}

// Optimizer rewrites a desired state given the current heading of the module.
type Optimizer func(desired kinematics.ModuleState, current kinematics.Rotation2d) kinematics.ModuleState

// Optimize keeps the target angle on the same continuous turn as the current heading and, when
// the wheel would have to turn more than 90 degrees, reverses the wheel instead.
func Optimize(desired kinematics.ModuleState, current kinematics.Rotation2d) kinematics.ModuleState {
	targetAngle := placeInScope(current.Degrees(), desired.Angle.Degrees())
	targetSpeed := desired.SpeedMetersPerSecond
	delta := targetAngle - current.Degrees()
	if math.Abs(delta) > 90 {
		targetSpeed = -targetSpeed
		if delta > 90 {
			targetAngle -= 180
		} else {
			targetAngle += 180
		}
	}
	return kinematics.ModuleState{
		SpeedMetersPerSecond: targetSpeed,
		Angle:                kinematics.RotationFromDegrees(targetAngle),
	}
}

// placeInScope moves angle by whole turns so it lies within 180 degrees of reference.
func placeInScope(reference, angle float64) float64 {
	var lowerBound, upperBound float64
	lowerOffset := math.Mod(reference, 360)
	if lowerOffset >= 0 {
		lowerBound = reference - lowerOffset
		upperBound = reference + (360 - lowerOffset)
	} else {
		upperBound = reference - lowerOffset
		lowerBound = reference - (360 + lowerOffset)
	}
	for angle < lowerBound {
		angle += 360
	}
	for angle > upperBound {
		angle -= 360
	}
	if angle-reference > 180 {
		angle -= 360
	} else if angle-reference < -180 {
		angle += 360
	}
	return angle
}
