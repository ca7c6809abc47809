package main

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	goutils "go.viam.com/utils"

	"swerve/canmotor"
	"swerve/kinematics"
	"swerve/swervemodule"
	"swerve/telemetry"
)

type swerveBase struct {
	resource.Named
	resource.AlwaysRebuild

	cfg        *Config
	modules    []*swervemodule.Module
	kinematics *kinematics.SwerveDriveKinematics
	physical   swervemodule.PhysicalConstants
	devices    swervemodule.Devices
	bus        *canmotor.Bus // nil when simulated
	telemetry  *telemetry.Table
	geometries []spatialmath.Geometry
	logger     logging.Logger

	// controlLock guards desired, openLoop and every call into the modules.
	controlLock sync.Mutex
	desired     []kinematics.ModuleState
	openLoop    bool

	isMoving                atomic.Bool
	activeBackgroundWorkers sync.WaitGroup
	cancel                  func()
}

var _ base.Base = (*swerveBase)(nil)

// controlThread re-sends the desired module states every controlPeriod. Motor controllers stop
// on their own when commands stop arriving, so this doubles as the heartbeat.
func (base *swerveBase) controlThread(ctx context.Context) {
	for {
		if !goutils.SelectContextOrWait(ctx, controlPeriod) {
			return
		}
		base.controlLock.Lock()
		err := base.dispatchLocked()
		base.controlLock.Unlock()
		if err != nil {
			base.logger.Errorw("module command send error", "error", err)
		}
	}
}

func (base *swerveBase) dispatchLocked() error {
	var err error
	for i, m := range base.modules {
		err = multierr.Append(err, m.SetDesiredState(base.desired[i], base.openLoop))
	}
	return err
}

// setStates replaces every desired state and sends them immediately.
func (base *swerveBase) setStates(states []kinematics.ModuleState, openLoop bool) error {
	base.controlLock.Lock()
	defer base.controlLock.Unlock()
	copy(base.desired, states)
	base.openLoop = openLoop
	base.telemetry.Set(telemOpenLoop, openLoop)
	return base.dispatchLocked()
}

// holdHeadings sets zero speed on every module and keeps the wheels where they point.
func (base *swerveBase) holdHeadings() error {
	base.controlLock.Lock()
	defer base.controlLock.Unlock()
	for i, m := range base.modules {
		base.desired[i] = kinematics.ModuleState{Angle: m.HeadingRotation2d()}
	}
	return base.dispatchLocked()
}

func (base *swerveBase) resetAngles() error {
	base.controlLock.Lock()
	defer base.controlLock.Unlock()
	var err error
	for _, m := range base.modules {
		err = multierr.Append(err, m.ResetAngleToAbsolute())
	}
	return err
}

// drive converts chassis speeds to module states. Requests above max speed are scaled down
// keeping the direction of travel.
func (base *swerveBase) drive(ctx context.Context, speeds kinematics.ChassisSpeeds, openLoop bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if speeds.IsZero() {
		return base.stop()
	}
	states := base.kinematics.ToModuleStates(speeds)
	kinematics.DesaturateWheelSpeeds(states, base.physical.MaxMetersPerSecond)
	base.isMoving.Store(true)
	return base.setStates(states, openLoop)
}

func (base *swerveBase) stop() error {
	base.isMoving.Store(false)
	return base.holdHeadings()
}

// warnUnusedAxes logs the vector components a planar base cannot act on.
func (base *swerveBase) warnUnusedAxes(linear, angular r3.Vector) {
	if linear.Z != 0 {
		base.logger.Warnw("Linear Z command non-zero and has no effect")
	}
	if angular.X != 0 {
		base.logger.Warnw("Angular X command non-zero and has no effect")
	}
	if angular.Y != 0 {
		base.logger.Warnw("Angular Y command non-zero and has no effect")
	}
}

// MoveStraight drives forward, or backward when exactly one of distanceMm and mmPerSec is
// negative, for as long as the distance takes at that speed, then stops.
func (base *swerveBase) MoveStraight(ctx context.Context, distanceMm int, mmPerSec float64, extra map[string]interface{}) error {
	if distanceMm == 0 || mmPerSec == 0 {
		return base.stop()
	}
	velocity := math.Abs(mmPerSec)
	if (distanceMm < 0) != (mmPerSec < 0) {
		velocity = -velocity
	}
	if err := base.SetVelocity(ctx, r3.Vector{Y: velocity}, r3.Vector{}, extra); err != nil {
		return err
	}
	return base.waitThenStop(ctx, math.Abs(float64(distanceMm)/mmPerSec))
}

// Spin turns in place by angleDeg, counter-clockwise positive, at degsPerSec, then stops.
func (base *swerveBase) Spin(ctx context.Context, angleDeg, degsPerSec float64, extra map[string]interface{}) error {
	if angleDeg == 0 || degsPerSec == 0 {
		return base.stop()
	}
	rate := math.Abs(degsPerSec)
	if (angleDeg < 0) != (degsPerSec < 0) {
		rate = -rate
	}
	if err := base.SetVelocity(ctx, r3.Vector{}, r3.Vector{Z: rate}, extra); err != nil {
		return err
	}
	return base.waitThenStop(ctx, math.Abs(angleDeg/degsPerSec))
}

func (base *swerveBase) waitThenStop(ctx context.Context, seconds float64) error {
	finished := goutils.SelectContextOrWait(ctx, time.Duration(seconds*float64(time.Second)))
	if err := base.stop(); err != nil {
		return err
	}
	if !finished {
		return ctx.Err()
	}
	return nil
}

// SetPower sets the linear and angular [-1, 1] drive power. Full linear power is max module
// speed and full angular power spins the outermost module at max speed. Wheels run open loop.
func (base *swerveBase) SetPower(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	base.logger.Debugw("SetPower", "linear", linear, "angular", angular)
	base.warnUnusedAxes(linear, angular)

	maxSpeed := base.physical.MaxMetersPerSecond
	return base.drive(ctx, kinematics.ChassisSpeeds{
		Vx:    linear.Y * maxSpeed,
		Vy:    -linear.X * maxSpeed,
		Omega: angular.Z * maxSpeed / base.kinematics.MaxRadius(),
	}, true)
}

// SetVelocity sets the linear (mmPerSec) and angular (degsPerSec) velocity. +Y is forward and
// +X is right. Wheel speeds are closed loop.
func (base *swerveBase) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	base.warnUnusedAxes(linear, angular)
	return base.drive(ctx, kinematics.ChassisSpeeds{
		Vx:    linear.Y / 1000,
		Vy:    -linear.X / 1000,
		Omega: degreesPerSecondToRadians(angular.Z),
	}, false)
}

// Stop stops the base. It is assumed the base stops immediately.
func (base *swerveBase) Stop(ctx context.Context, extra map[string]interface{}) error {
	return base.stop()
}

func (base *swerveBase) IsMoving(ctx context.Context) (bool, error) {
	return base.isMoving.Load(), nil
}

func (s *swerveBase) Properties(ctx context.Context, extra map[string]interface{}) (base.Properties, error) {
	return base.Properties{
		WidthMeters:              s.kinematics.TrackWidth(),
		WheelCircumferenceMeters: math.Pi * s.physical.WheelDiameterMeters,
	}, nil
}

func (s *swerveBase) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return s.geometries, nil
}

// Close stops the wheels, ends the control loop and releases the bus.
func (base *swerveBase) Close(ctx context.Context) error {
	err := base.stop()
	base.cancel()
	base.activeBackgroundWorkers.Wait()
	if base.bus != nil {
		err = multierr.Append(err, base.bus.Close())
	}
	return err
}
