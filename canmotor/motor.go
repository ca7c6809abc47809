package canmotor

import (
	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"swerve/swervemodule"
)

// Motor is a brushless motor controller running its own velocity and position loops.
type Motor struct {
	bus     *Bus
	id      int
	encoder *Encoder
}

var (
	_ swervemodule.DriveActuator = (*Motor)(nil)
	_ swervemodule.SteerActuator = (*Motor)(nil)
)

func (m *Motor) RestoreFactoryDefaults() error {
	return m.bus.send(m.id, factoryDefaultsCommand{api: apiFactoryDefaults})
}

func (m *Motor) SetCurrentLimit(amps float64) error {
	return m.setParam(paramCurrentLimit, 0, amps)
}

func (m *Motor) EnableVoltageCompensation(volts float64) error {
	return m.setParam(paramVoltageCompensation, 0, volts)
}

func (m *Motor) SetInverted(inverted bool) error {
	var value float64
	if inverted {
		value = 1
	}
	return m.setParam(paramInverted, 0, value)
}

func (m *Motor) SetIdleMode(mode swervemodule.IdleMode) error {
	return m.setParam(paramIdleMode, 0, float64(mode))
}

// SetPIDGains writes all four gains of slot, one frame each.
func (m *Motor) SetPIDGains(slot int, gains swervemodule.PIDGains) error {
	return multierr.Combine(
		m.setParam(paramP, slot, gains.P),
		m.setParam(paramI, slot, gains.I),
		m.setParam(paramD, slot, gains.D),
		m.setParam(paramFF, slot, gains.FF),
	)
}

func (m *Motor) Encoder() swervemodule.Encoder {
	return m.encoder
}

func (m *Motor) Set(percentOutput float64) error {
	return m.bus.send(m.id, referenceCommand{control: controlDutyCycle, value: percentOutput})
}

func (m *Motor) SetVelocity(velocity float64, slot int) error {
	return m.bus.send(m.id, referenceCommand{control: controlVelocity, slot: byte(slot), value: velocity})
}

func (m *Motor) SetAngle(position float64, slot int) error {
	return m.bus.send(m.id, referenceCommand{control: controlPosition, slot: byte(slot), value: position})
}

func (m *Motor) setParam(param configParam, slot int, value float64) error {
	if err := m.bus.send(m.id, paramCommand{param: param, slot: byte(slot), value: value}); err != nil {
		return errors.Wrapf(err, "motor %d param %d", m.id, param)
	}
	return nil
}

// Encoder is the relative encoder of a Motor. The controller applies the conversion factors
// itself, so status frames already carry converted units.
type Encoder struct {
	bus *Bus
	id  int
}

var _ swervemodule.Encoder = (*Encoder)(nil)

func (e *Encoder) SetPositionConversionFactor(factor float64) error {
	return e.bus.send(e.id, paramCommand{param: paramPositionFactor, value: factor})
}

func (e *Encoder) SetVelocityConversionFactor(factor float64) error {
	return e.bus.send(e.id, paramCommand{param: paramVelocityFactor, value: factor})
}

func (e *Encoder) SetPosition(position float64) error {
	return e.bus.send(e.id, encoderPositionCommand{position: position})
}

// Position returns the last reported position, or zero before the first status frame.
func (e *Encoder) Position() float64 {
	data, ok := e.bus.latestStatus(apiMotorStatus, e.id)
	if !ok {
		return 0
	}
	return signalMotorPosition.extract(data)
}

// Velocity returns the last reported velocity, or zero before the first status frame.
func (e *Encoder) Velocity() float64 {
	data, ok := e.bus.latestStatus(apiMotorStatus, e.id)
	if !ok {
		return 0
	}
	return signalMotorVelocity.extract(data)
}

// AbsoluteEncoder is a magnetic absolute encoder mounted on the steering axis.
type AbsoluteEncoder struct {
	bus *Bus
	id  int
}

var _ swervemodule.AbsoluteAngleSensor = (*AbsoluteEncoder)(nil)

func (a *AbsoluteEncoder) RestoreFactoryDefaults() error {
	return a.bus.send(a.id, factoryDefaultsCommand{api: apiEncoderFactoryDefaults})
}

// Reported reports whether the encoder has published a status frame yet.
func (a *AbsoluteEncoder) Reported() bool {
	_, ok := a.bus.latestStatus(apiAbsoluteStatus, a.id)
	return ok
}

// AbsolutePosition returns the last reported angle in [0, 360), or zero before the first
// status frame.
func (a *AbsoluteEncoder) AbsolutePosition() float64 {
	data, ok := a.bus.latestStatus(apiAbsoluteStatus, a.id)
	if !ok {
		return 0
	}
	return signalAbsolutePosition.extract(data)
}

// MotorStatusFrame builds the status frame a motor controller publishes. It is what the
// receive worker decodes and is used by bench tools and tests.
func MotorStatusFrame(deviceID int, position, velocity float64) canbus.Frame {
	frame := newStatusFrame(apiMotorStatus, deviceID, 8)
	signalMotorPosition.encode(frame.Data, position)
	signalMotorVelocity.encode(frame.Data, velocity)
	return frame
}

// AbsoluteStatusFrame builds the status frame an absolute encoder publishes.
func AbsoluteStatusFrame(deviceID int, degrees float64) canbus.Frame {
	frame := newStatusFrame(apiAbsoluteStatus, deviceID, 2)
	signalAbsolutePosition.encode(frame.Data, degrees)
	return frame
}
