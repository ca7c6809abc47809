package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"swerve/kinematics"
)

// DoCommand executes additional commands beyond the Base{} interface.
func (base *swerveBase) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"]
	if !ok {
		return nil, errors.New("missing 'command' value")
	}
	switch name {
	case "reset_angles":
		if err := base.resetAngles(); err != nil {
			return nil, err
		}
		if !base.isMoving.Load() {
			if err := base.holdHeadings(); err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{"return": "reset_angles command processed"}, nil

	case "get_telemetry":
		return base.telemetry.All(), nil

	case "get_module_states":
		return map[string]interface{}{"modules": base.moduleStates()}, nil

	case "set_module_state":
		moduleRaw, ok := cmd["module"]
		if !ok {
			return nil, errors.New("module must be set to a module number")
		}
		module, ok := moduleRaw.(float64)
		if !ok {
			return nil, errors.New(fmt.Sprintf("module value must be an int but is type %T", moduleRaw))
		}
		if module != float64(int(module)) || int(module) < 0 || int(module) >= len(base.modules) {
			return nil, errors.Errorf("module value must be an int in [0, %d)", len(base.modules))
		}
		speed, err := floatArg(cmd, "speed")
		if err != nil {
			return nil, err
		}
		angle, err := floatArg(cmd, "angle")
		if err != nil {
			return nil, err
		}
		openLoop := false
		if openLoopRaw, ok := cmd["open_loop"]; ok {
			if openLoop, ok = openLoopRaw.(bool); !ok {
				return nil, errors.New("open_loop value must be a boolean")
			}
		}

		state := kinematics.ModuleState{SpeedMetersPerSecond: speed, Angle: kinematics.RotationFromDegrees(angle)}
		if err := base.setModuleState(int(module), state, openLoop); err != nil {
			return nil, err
		}
		return map[string]interface{}{"return": fmt.Sprintf("set_module_state command processed: %d", int(module))}, nil

	default:
		return nil, fmt.Errorf("no such command: %s", name)
	}
}

func floatArg(cmd map[string]interface{}, key string) (float64, error) {
	raw, ok := cmd[key]
	if !ok {
		return 0, errors.Errorf("%s must be set to a float", key)
	}
	value, ok := raw.(float64)
	if !ok {
		return 0, errors.Errorf("%s value must be a float but is type %T", key, raw)
	}
	return value, nil
}

// setModuleState commands a single module, leaving the others on their current state. The
// control mode applies to every module.
func (base *swerveBase) setModuleState(module int, state kinematics.ModuleState, openLoop bool) error {
	base.controlLock.Lock()
	defer base.controlLock.Unlock()
	base.desired[module] = state
	base.openLoop = openLoop
	base.telemetry.Set(telemOpenLoop, openLoop)

	moving := false
	for _, s := range base.desired {
		moving = moving || s.SpeedMetersPerSecond != 0
	}
	base.isMoving.Store(moving)
	return base.dispatchLocked()
}

func (base *swerveBase) moduleStates() []interface{} {
	base.controlLock.Lock()
	defer base.controlLock.Unlock()
	states := make([]interface{}, 0, len(base.modules))
	for i, m := range base.modules {
		position := m.Position()
		location := base.kinematics.Location(i)
		states = append(states, map[string]interface{}{
			"module":                          i,
			"name":                            base.cfg.moduleName(i),
			"x_meters":                        location.X,
			"y_meters":                        location.Y,
			"speed_meters_per_second":         m.DriveMetersPerSecond(),
			"angle_degrees":                   position.Angle.Degrees(),
			"distance_meters":                 position.DistanceMeters,
			"desired_speed_meters_per_second": base.desired[i].SpeedMetersPerSecond,
			"desired_angle_degrees":           base.desired[i].Angle.Degrees(),
		})
	}
	return states
}
