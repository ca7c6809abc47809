// Package calibration stores the bus IDs and angle offsets of every swerve module in a YAML file.
package calibration

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"swerve/canmotor"
	"swerve/swervemodule"
)

// File is the calibration document.
type File struct {
	Modules []ModuleConstants `yaml:"modules"`
}

// ModuleConstants contains the hardware IDs and angle offset of one module.
type ModuleConstants struct {
	Name               string  `yaml:"name"`
	DriveMotorID       int     `yaml:"drive_motor_id"`
	SteerMotorID       int     `yaml:"steer_motor_id"`
	AngleSensorID      int     `yaml:"angle_sensor_id"`
	AngleOffsetDegrees float64 `yaml:"angle_offset_degrees"` // absolute sensor reading with the wheel pointed forward
}

// Load reads a calibration file.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read calibration file")
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse calibration file %s", filename)
	}
	if err := f.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid calibration file %s", filename)
	}
	return &f, nil
}

// Save writes the calibration file.
func (f *File) Save(filename string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to marshal calibration")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write calibration file")
	}
	return nil
}

// Validate checks that every device ID fits on the bus and that no two modules share a device.
// Motor controllers and absolute encoders have separate ID spaces.
func (f *File) Validate() error {
	if len(f.Modules) == 0 {
		return errors.New("no modules")
	}
	motors := map[int]string{}
	sensors := map[int]string{}
	for i, m := range f.Modules {
		name := m.Name
		if name == "" {
			name = ModuleName(i)
		}
		for _, device := range []struct {
			kind string
			id   int
		}{
			{"drive motor", m.DriveMotorID},
			{"steer motor", m.SteerMotorID},
			{"angle sensor", m.AngleSensorID},
		} {
			if err := canmotor.CheckDeviceID(device.id); err != nil {
				return errors.Wrapf(err, "%s %s", name, device.kind)
			}
		}
		for _, id := range []int{m.DriveMotorID, m.SteerMotorID} {
			if other, ok := motors[id]; ok {
				return errors.Errorf("motor ID %d used by both %s and %s", id, other, name)
			}
			motors[id] = name
		}
		if other, ok := sensors[m.AngleSensorID]; ok {
			return errors.Errorf("angle sensor ID %d used by both %s and %s", m.AngleSensorID, other, name)
		}
		sensors[m.AngleSensorID] = name
	}
	return nil
}

// Constants returns the module constants in file order.
func (f *File) Constants() []swervemodule.Constants {
	constants := make([]swervemodule.Constants, 0, len(f.Modules))
	for _, m := range f.Modules {
		constants = append(constants, swervemodule.Constants{
			DriveMotorID:       m.DriveMotorID,
			SteerMotorID:       m.SteerMotorID,
			AngleSensorID:      m.AngleSensorID,
			AngleOffsetDegrees: m.AngleOffsetDegrees,
		})
	}
	return constants
}

// SensorIDs returns the angle sensor ID of every module in file order.
func (f *File) SensorIDs() []int {
	ids := make([]int, 0, len(f.Modules))
	for _, m := range f.Modules {
		ids = append(ids, m.AngleSensorID)
	}
	return ids
}

// ApplyReadings sets the offset of every module to the absolute reading of its angle sensor,
// keyed by sensor ID. The wheels must point forward when the readings are taken so that the
// reset heading becomes zero. Modules without a reading are left unchanged and returned by name.
func (f *File) ApplyReadings(readings map[int]float64) []string {
	var missing []string
	for i := range f.Modules {
		reading, ok := readings[f.Modules[i].AngleSensorID]
		if !ok {
			name := f.Modules[i].Name
			if name == "" {
				name = ModuleName(i)
			}
			missing = append(missing, name)
			continue
		}
		f.Modules[i].AngleOffsetDegrees = reading
	}
	return missing
}

var moduleNames = []string{"front_left", "front_right", "back_left", "back_right"}

// ModuleName returns the conventional name of module i.
func ModuleName(i int) string {
	if i >= 0 && i < len(moduleNames) {
		return moduleNames[i]
	}
	return fmt.Sprintf("module_%d", i)
}
