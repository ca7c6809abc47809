package main

import (
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"swerve/calibration"
	"swerve/kinematics"
	"swerve/swervemodule"
)

const (
	numModules          = 4
	defaultStatusWaitMs = 1000
)

// Config is the attributes block of the base.
type Config struct {
	CANChannel      string         `json:"can_channel,omitempty"`
	Simulated       bool           `json:"simulated,omitempty"`
	Modules         []ModuleConfig `json:"modules"`
	CalibrationFile string         `json:"calibration_file,omitempty"`

	// Zero keeps the MK4i L2 value.
	WheelDiameterMeters float64 `json:"wheel_diameter_meters,omitempty"`
	DriveGearRatio      float64 `json:"drive_gear_ratio,omitempty"`
	TurnGearRatio       float64 `json:"turn_gear_ratio,omitempty"`
	MaxMetersPerSecond  float64 `json:"max_meters_per_second,omitempty"`

	SteerDeadband bool `json:"steer_deadband,omitempty"`
	// StatusWaitMs bounds how long construction waits for the absolute encoders to report.
	StatusWaitMs int `json:"status_wait_ms,omitempty"`
}

// ModuleConfig places one module on the chassis. X is forward and Y is left, in meters from
// the centre of rotation.
type ModuleConfig struct {
	Name               string  `json:"name,omitempty"`
	DriveMotorID       int     `json:"drive_motor_id"`
	SteerMotorID       int     `json:"steer_motor_id"`
	AngleSensorID      int     `json:"angle_sensor_id"`
	AngleOffsetDegrees float64 `json:"angle_offset_degrees,omitempty"`
	XMeters            float64 `json:"x_meters"`
	YMeters            float64 `json:"y_meters"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) ([]string, error) {
	if !cfg.Simulated && cfg.CANChannel == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "can_channel")
	}
	if len(cfg.Modules) != numModules {
		return nil, errors.Errorf("%s: expected %d modules, got %d", path, numModules, len(cfg.Modules))
	}
	if err := cfg.moduleFile().Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	if _, err := cfg.kinematics(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	if err := cfg.physical().Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	if cfg.StatusWaitMs < 0 {
		return nil, errors.Errorf("%s: status_wait_ms must not be negative", path)
	}
	return nil, nil
}

// moduleFile returns the module attributes in calibration file form so both are checked by the
// same rules.
func (cfg *Config) moduleFile() *calibration.File {
	f := &calibration.File{Modules: make([]calibration.ModuleConstants, 0, len(cfg.Modules))}
	for _, m := range cfg.Modules {
		f.Modules = append(f.Modules, calibration.ModuleConstants{
			Name:               m.Name,
			DriveMotorID:       m.DriveMotorID,
			SteerMotorID:       m.SteerMotorID,
			AngleSensorID:      m.AngleSensorID,
			AngleOffsetDegrees: m.AngleOffsetDegrees,
		})
	}
	return f
}

func (cfg *Config) kinematics() (*kinematics.SwerveDriveKinematics, error) {
	locations := make([]r2.Point, 0, len(cfg.Modules))
	for _, m := range cfg.Modules {
		locations = append(locations, r2.Point{X: m.XMeters, Y: m.YMeters})
	}
	return kinematics.NewSwerveDriveKinematics(locations...)
}

func (cfg *Config) physical() swervemodule.PhysicalConstants {
	physical := swervemodule.DefaultPhysicalConstants
	if cfg.WheelDiameterMeters != 0 {
		physical.WheelDiameterMeters = cfg.WheelDiameterMeters
	}
	if cfg.DriveGearRatio != 0 {
		physical.DriveGearRatio = cfg.DriveGearRatio
	}
	if cfg.TurnGearRatio != 0 {
		physical.TurnGearRatio = cfg.TurnGearRatio
	}
	if cfg.MaxMetersPerSecond != 0 {
		physical.MaxMetersPerSecond = cfg.MaxMetersPerSecond
	}
	return physical
}

// moduleConstants returns the IDs and offsets of every module. A calibration file replaces the
// values of the attributes module by module.
func (cfg *Config) moduleConstants() ([]swervemodule.Constants, error) {
	constants := cfg.moduleFile().Constants()
	if cfg.CalibrationFile == "" {
		return constants, nil
	}

	file, err := calibration.Load(cfg.CalibrationFile)
	if err != nil {
		return nil, err
	}
	if len(file.Modules) != len(constants) {
		return nil, errors.Errorf("calibration file %s has %d modules, config has %d",
			cfg.CalibrationFile, len(file.Modules), len(constants))
	}
	return file.Constants(), nil
}

func (cfg *Config) moduleName(i int) string {
	if name := cfg.Modules[i].Name; name != "" {
		return name
	}
	return calibration.ModuleName(i)
}

func (cfg *Config) statusWait() time.Duration {
	if cfg.Simulated {
		return 0
	}
	if cfg.StatusWaitMs == 0 {
		return defaultStatusWaitMs * time.Millisecond
	}
	return time.Duration(cfg.StatusWaitMs) * time.Millisecond
}
