package kinematics

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func squareKinematics(t *testing.T) *SwerveDriveKinematics {
	t.Helper()
	k, err := NewSwerveDriveKinematics(
		r2.Point{X: 0.3, Y: 0.3},
		r2.Point{X: 0.3, Y: -0.3},
		r2.Point{X: -0.3, Y: 0.3},
		r2.Point{X: -0.3, Y: -0.3},
	)
	test.That(t, err, test.ShouldBeNil)
	return k
}

func TestNewSwerveDriveKinematics(t *testing.T) {
	_, err := NewSwerveDriveKinematics(r2.Point{X: 1})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewSwerveDriveKinematics(r2.Point{X: 1}, r2.Point{X: 1})
	test.That(t, err.Error(), test.ShouldContainSubstring, "share the location")

	k := squareKinematics(t)
	test.That(t, k.NumModules(), test.ShouldEqual, 4)
	test.That(t, k.Location(1), test.ShouldResemble, r2.Point{X: 0.3, Y: -0.3})
	test.That(t, k.TrackWidth(), test.ShouldAlmostEqual, 0.6)
	test.That(t, k.MaxRadius(), test.ShouldAlmostEqual, math.Hypot(0.3, 0.3))
}

func TestToModuleStatesStraight(t *testing.T) {
	k := squareKinematics(t)
	for _, s := range k.ToModuleStates(ChassisSpeeds{Vx: 2}) {
		test.That(t, s.SpeedMetersPerSecond, test.ShouldAlmostEqual, 2)
		test.That(t, s.Angle.Degrees(), test.ShouldAlmostEqual, 0)
	}
	for _, s := range k.ToModuleStates(ChassisSpeeds{Vy: 1}) {
		test.That(t, s.SpeedMetersPerSecond, test.ShouldAlmostEqual, 1)
		test.That(t, s.Angle.Degrees(), test.ShouldAlmostEqual, 90)
	}
}

func TestToModuleStatesRotation(t *testing.T) {
	k := squareKinematics(t)
	states := k.ToModuleStates(ChassisSpeeds{Omega: 2 * math.Pi})
	expectedSpeed := 2 * math.Pi * math.Hypot(0.3, 0.3)

	expectedAngles := []float64{135, 45, -135, -45}
	for i, s := range states {
		test.That(t, s.SpeedMetersPerSecond, test.ShouldAlmostEqual, expectedSpeed)
		test.That(t, s.Angle.Degrees(), test.ShouldAlmostEqual, expectedAngles[i])
	}
}

func TestDesaturateWheelSpeeds(t *testing.T) {
	states := []ModuleState{
		{SpeedMetersPerSecond: 5},
		{SpeedMetersPerSecond: -2.5},
		{SpeedMetersPerSecond: 1},
	}
	DesaturateWheelSpeeds(states, 4)
	test.That(t, states[0].SpeedMetersPerSecond, test.ShouldAlmostEqual, 4)
	test.That(t, states[1].SpeedMetersPerSecond, test.ShouldAlmostEqual, -2)
	test.That(t, states[2].SpeedMetersPerSecond, test.ShouldAlmostEqual, 0.8)

	slow := []ModuleState{{SpeedMetersPerSecond: 1}, {SpeedMetersPerSecond: -3}}
	DesaturateWheelSpeeds(slow, 4)
	test.That(t, slow[0].SpeedMetersPerSecond, test.ShouldEqual, 1.0)
	test.That(t, slow[1].SpeedMetersPerSecond, test.ShouldEqual, -3.0)
}

func TestRotation2d(t *testing.T) {
	r := RotationFromDegrees(450.25)
	test.That(t, r.Degrees(), test.ShouldEqual, 450.25)
	test.That(t, RotationFromRadians(math.Pi).Degrees(), test.ShouldAlmostEqual, 180)
}
