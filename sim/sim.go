// Package sim provides in-memory swerve module hardware. It backs the base when no CAN bus is
// attached and records every command so tests can inspect what a module dispatched.
package sim

import (
	"sync"

	"swerve/swervemodule"
)

// ControlMode is the kind of the last reference a motor received.
type ControlMode string

const (
	ModeNone      ControlMode = ""
	ModeDutyCycle ControlMode = "duty_cycle"
	ModeVelocity  ControlMode = "velocity"
	ModePosition  ControlMode = "position"
)

// Reference is a setpoint handed to a simulated motor.
type Reference struct {
	Mode  ControlMode
	Value float64
	Slot  int
}

// Motor simulates a motor controller with its integrated encoder. Velocity and position
// setpoints are reached immediately.
type Motor struct {
	ID int

	mu sync.Mutex
	// ConfigErr is returned by every configuration command when set.
	ConfigErr error
	// CommandErr is returned by every setpoint command when set.
	CommandErr error

	factoryResets       int
	currentLimit        float64
	voltageCompensation float64
	inverted            bool
	idleMode            swervemodule.IdleMode
	gains               map[int]swervemodule.PIDGains
	references          []Reference

	encoder *Encoder
}

var (
	_ swervemodule.DriveActuator = (*Motor)(nil)
	_ swervemodule.SteerActuator = (*Motor)(nil)
	_ swervemodule.Encoder       = (*Encoder)(nil)
)

// NewMotor returns a simulated motor with factory settings.
func NewMotor(id int) *Motor {
	m := &Motor{ID: id, gains: map[int]swervemodule.PIDGains{}}
	m.encoder = &Encoder{motor: m}
	return m
}

func (m *Motor) RestoreFactoryDefaults() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfigErr != nil {
		return m.ConfigErr
	}
	m.factoryResets++
	m.currentLimit = 0
	m.voltageCompensation = 0
	m.inverted = false
	m.idleMode = swervemodule.IdleCoast
	m.gains = map[int]swervemodule.PIDGains{}
	m.encoder.positionFactor = 1
	m.encoder.velocityFactor = 1
	return nil
}

func (m *Motor) SetCurrentLimit(amps float64) error {
	return m.configure(func() { m.currentLimit = amps })
}

func (m *Motor) EnableVoltageCompensation(volts float64) error {
	return m.configure(func() { m.voltageCompensation = volts })
}

func (m *Motor) SetInverted(inverted bool) error {
	return m.configure(func() { m.inverted = inverted })
}

func (m *Motor) SetIdleMode(mode swervemodule.IdleMode) error {
	return m.configure(func() { m.idleMode = mode })
}

func (m *Motor) SetPIDGains(slot int, gains swervemodule.PIDGains) error {
	return m.configure(func() { m.gains[slot] = gains })
}

func (m *Motor) configure(apply func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfigErr != nil {
		return m.ConfigErr
	}
	apply()
	return nil
}

func (m *Motor) Encoder() swervemodule.Encoder {
	return m.encoder
}

func (m *Motor) Set(percentOutput float64) error {
	return m.command(Reference{Mode: ModeDutyCycle, Value: percentOutput}, func() {})
}

func (m *Motor) SetVelocity(velocity float64, slot int) error {
	return m.command(Reference{Mode: ModeVelocity, Value: velocity, Slot: slot}, func() {
		m.encoder.velocity = velocity
	})
}

func (m *Motor) SetAngle(position float64, slot int) error {
	return m.command(Reference{Mode: ModePosition, Value: position, Slot: slot}, func() {
		m.encoder.position = position
	})
}

func (m *Motor) command(ref Reference, apply func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommandErr != nil {
		return m.CommandErr
	}
	m.references = append(m.references, ref)
	apply()
	return nil
}

// LastReference returns the most recent setpoint, or a zero Reference if none was sent.
func (m *Motor) LastReference() Reference {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.references) == 0 {
		return Reference{}
	}
	return m.references[len(m.references)-1]
}

// References returns every setpoint sent so far.
func (m *Motor) References() []Reference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reference(nil), m.references...)
}

// Settings returns the configuration the motor currently holds.
func (m *Motor) Settings() swervemodule.MotorSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return swervemodule.MotorSettings{
		CurrentLimitAmps:    m.currentLimit,
		VoltageCompensation: m.voltageCompensation,
		Inverted:            m.inverted,
		IdleMode:            m.idleMode,
		Gains:               m.gains[0],
	}
}

// FactoryResets returns how many times the motor was restored to factory defaults.
func (m *Motor) FactoryResets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.factoryResets
}

// Encoder is the simulated encoder of a Motor.
type Encoder struct {
	motor          *Motor
	positionFactor float64
	velocityFactor float64
	position       float64
	velocity       float64
	positionResets []float64
}

func (e *Encoder) SetPositionConversionFactor(factor float64) error {
	return e.motor.configure(func() { e.positionFactor = factor })
}

func (e *Encoder) SetVelocityConversionFactor(factor float64) error {
	return e.motor.configure(func() { e.velocityFactor = factor })
}

func (e *Encoder) SetPosition(position float64) error {
	return e.motor.configure(func() {
		e.position = position
		e.positionResets = append(e.positionResets, position)
	})
}

func (e *Encoder) Position() float64 {
	e.motor.mu.Lock()
	defer e.motor.mu.Unlock()
	return e.position
}

func (e *Encoder) Velocity() float64 {
	e.motor.mu.Lock()
	defer e.motor.mu.Unlock()
	return e.velocity
}

// SetState overrides what the encoder reports, as if the motor had moved on its own.
func (e *Encoder) SetState(position, velocity float64) {
	e.motor.mu.Lock()
	defer e.motor.mu.Unlock()
	e.position = position
	e.velocity = velocity
}

// PositionResets returns every position written with SetPosition.
func (e *Encoder) PositionResets() []float64 {
	e.motor.mu.Lock()
	defer e.motor.mu.Unlock()
	return append([]float64(nil), e.positionResets...)
}

// ConversionFactors returns the position and velocity factors last configured.
func (e *Encoder) ConversionFactors() (position, velocity float64) {
	e.motor.mu.Lock()
	defer e.motor.mu.Unlock()
	return e.positionFactor, e.velocityFactor
}

// AngleSensor simulates an absolute encoder.
type AngleSensor struct {
	ID int

	mu            sync.Mutex
	ConfigErr     error
	factoryResets int
	absolute      float64
}

var _ swervemodule.AbsoluteAngleSensor = (*AngleSensor)(nil)

func (s *AngleSensor) RestoreFactoryDefaults() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConfigErr != nil {
		return s.ConfigErr
	}
	s.factoryResets++
	return nil
}

func (s *AngleSensor) AbsolutePosition() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.absolute
}

// SetAbsolutePosition sets the angle, in degrees, the sensor reports.
func (s *AngleSensor) SetAbsolutePosition(degrees float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absolute = degrees
}

// Devices hands out simulated hardware and keeps it by ID.
type Devices struct {
	mu      sync.Mutex
	motors  map[int]*Motor
	sensors map[int]*AngleSensor
}

var _ swervemodule.Devices = (*Devices)(nil)

// NewDevices returns an empty simulated bus.
func NewDevices() *Devices {
	return &Devices{
		motors:  map[int]*Motor{},
		sensors: map[int]*AngleSensor{},
	}
}

func (d *Devices) DriveMotor(id int) swervemodule.DriveActuator {
	return d.Motor(id)
}

func (d *Devices) SteerMotor(id int) swervemodule.SteerActuator {
	return d.Motor(id)
}

func (d *Devices) AngleSensor(id int) swervemodule.AbsoluteAngleSensor {
	return d.Sensor(id)
}

// Motor returns the motor with the given ID, creating it on first use.
func (d *Devices) Motor(id int) *Motor {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.motors[id]
	if !ok {
		m = NewMotor(id)
		d.motors[id] = m
	}
	return m
}

// Sensor returns the absolute sensor with the given ID, creating it on first use.
func (d *Devices) Sensor(id int) *AngleSensor {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sensors[id]
	if !ok {
		s = &AngleSensor{ID: id}
		d.sensors[id] = s
	}
	return s
}
