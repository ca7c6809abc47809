package swervemodule

// IdleMode is the behaviour of a motor controller with no output applied.
type IdleMode byte

const (
	IdleCoast IdleMode = iota
	IdleBrake
)

func (m IdleMode) String() string {
	if m == IdleBrake {
		return "brake"
	}
	return "coast"
}

// PIDGains are the closed loop gains of one controller slot.
type PIDGains struct {
	P  float64
	I  float64
	D  float64
	FF float64
}

// Encoder is the relative encoder built into a motor controller. Positions and velocities are
// reported already scaled by the configured conversion factors. Reads never fail, a device that
// stopped reporting returns its last (or zero) value.
type Encoder interface {
	SetPositionConversionFactor(factor float64) error
	SetVelocityConversionFactor(factor float64) error
	SetPosition(position float64) error
	Position() float64
	Velocity() float64
}

// Motor is the configuration surface shared by every motor controller.
type Motor interface {
	RestoreFactoryDefaults() error
	SetCurrentLimit(amps float64) error
	EnableVoltageCompensation(volts float64) error
	SetInverted(inverted bool) error
	SetIdleMode(mode IdleMode) error
	SetPIDGains(slot int, gains PIDGains) error
	Encoder() Encoder
}

// DriveActuator spins the wheel.
type DriveActuator interface {
	Motor
	// Set commands a duty cycle in [-1, 1].
	Set(percentOutput float64) error
	// SetVelocity hands a velocity setpoint to the onboard controller using the given slot.
	SetVelocity(velocity float64, slot int) error
}

// SteerActuator turns the wheel.
type SteerActuator interface {
	Motor
	// SetAngle hands a position setpoint, in encoder units, to the onboard controller.
	SetAngle(position float64, slot int) error
}

// AbsoluteAngleSensor reports the mechanical angle of the wheel in degrees, independent of power cycles.
type AbsoluteAngleSensor interface {
	RestoreFactoryDefaults() error
	AbsolutePosition() float64
}

// Devices creates the hardware handles of a module from their bus IDs.
type Devices interface {
	DriveMotor(id int) DriveActuator
	SteerMotor(id int) SteerActuator
	AngleSensor(id int) AbsoluteAngleSensor
}

// Dashboard receives the numeric telemetry a module publishes every cycle.
type Dashboard interface {
	PutNumber(key string, value float64)
}

type discardDashboard struct{}

func (discardDashboard) PutNumber(string, float64) {}
