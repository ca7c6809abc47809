package canmotor

import (
	"encoding/binary"
	"math"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
)

// Frames use 29 bit identifiers: the API in the upper bits and the device ID in the low 6 bits.
const (
	deviceIDBits        = 6
	deviceIDMask uint32 = 1<<deviceIDBits - 1
	apiShift            = 8
)

// MaxDeviceID is the highest device ID a frame can address.
const MaxDeviceID = 1<<deviceIDBits - 1

// APIs from the motor controller data sheet.
const (
	apiFactoryDefaults        uint32 = 0x01
	apiConfigParam            uint32 = 0x02
	apiSetReference           uint32 = 0x03
	apiSetEncoderPosition     uint32 = 0x04
	apiMotorStatus            uint32 = 0x05
	apiAbsoluteStatus         uint32 = 0x06
	apiEncoderFactoryDefaults uint32 = 0x07
)

type configParam byte

const (
	paramCurrentLimit configParam = iota + 1
	paramVoltageCompensation
	paramInverted
	paramIdleMode
	paramPositionFactor
	paramVelocityFactor
	paramP
	paramI
	paramD
	paramFF
)

type controlType byte

const (
	controlDutyCycle controlType = iota
	controlVelocity
	controlPosition
)

// CheckDeviceID fails for IDs a frame cannot carry.
func CheckDeviceID(deviceID int) error {
	if deviceID < 0 || deviceID > MaxDeviceID {
		return errors.Errorf("device ID %d out of range [0, %d]", deviceID, MaxDeviceID)
	}
	return nil
}

// frameID expects an ID that passed CheckDeviceID.
func frameID(api uint32, deviceID int) uint32 {
	return api<<apiShift | uint32(deviceID)
}

func splitFrameID(id uint32) (api uint32, deviceID int) {
	return id >> apiShift, int(id & deviceIDMask)
}

// command is anything that can be sent to a device as a single frame.
type command interface {
	toFrame(deviceID int) canbus.Frame
}

type factoryDefaultsCommand struct {
	api uint32
}

func (cmd factoryDefaultsCommand) toFrame(deviceID int) canbus.Frame {
	return canbus.Frame{
		ID:   frameID(cmd.api, deviceID),
		Data: []byte{},
		Kind: canbus.EFF,
	}
}

type paramCommand struct {
	param configParam
	slot  byte
	value float64
}

func (cmd paramCommand) toFrame(deviceID int) canbus.Frame {
	frame := canbus.Frame{
		ID:   frameID(apiConfigParam, deviceID),
		Data: make([]byte, 6),
		Kind: canbus.EFF,
	}
	frame.Data[0] = byte(cmd.param)
	frame.Data[1] = cmd.slot
	putFloat32(frame.Data[2:6], cmd.value)
	return frame
}

type referenceCommand struct {
	control controlType
	slot    byte
	value   float64
}

func (cmd referenceCommand) toFrame(deviceID int) canbus.Frame {
	frame := canbus.Frame{
		ID:   frameID(apiSetReference, deviceID),
		Data: make([]byte, 6),
		Kind: canbus.EFF,
	}
	frame.Data[0] = byte(cmd.control)
	frame.Data[1] = cmd.slot
	putFloat32(frame.Data[2:6], cmd.value)
	return frame
}

type encoderPositionCommand struct {
	position float64
}

func (cmd encoderPositionCommand) toFrame(deviceID int) canbus.Frame {
	frame := canbus.Frame{
		ID:   frameID(apiSetEncoderPosition, deviceID),
		Data: make([]byte, 4),
		Kind: canbus.EFF,
	}
	putFloat32(frame.Data, cmd.position)
	return frame
}

func newStatusFrame(api uint32, deviceID, size int) canbus.Frame {
	return canbus.Frame{
		ID:   frameID(api, deviceID),
		Data: make([]byte, size),
		Kind: canbus.EFF,
	}
}

func putFloat32(b []byte, v float64) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
}

// canSignal locates a scaled integer inside a CAN payload.
type canSignal struct {
	scalar       float64
	offset       float64
	start        uint // first bit
	length       uint // bits, at most 32
	littleEndian bool
	signed       bool
}

var (
	signalMotorPosition    = canSignal{scalar: 0.001, start: 0, length: 32, littleEndian: true, signed: true}
	signalMotorVelocity    = canSignal{scalar: 0.001, start: 32, length: 32, littleEndian: true, signed: true}
	signalAbsolutePosition = canSignal{scalar: 360.0 / 4096, start: 0, length: 12, littleEndian: true}
)

// byteMask returns the bits of byte n that belong to a signal spanning bits lsb..msb.
func byteMask(n, lsb, msb uint) byte {
	first, last := n*8, n*8+7
	lo, hi := uint(0), uint(7)
	if lsb > first {
		lo = lsb - first
	}
	if msb < last {
		hi = msb - first
	}
	return byte(0xFF<<lo) & byte(0xFF>>(7-hi))
}

// extract decodes the signal from data. Payloads too short for the signal decode as the offset.
func (s canSignal) extract(data []byte) float64 {
	lsb := s.start
	msb := s.start + s.length - 1
	first, last := lsb/8, msb/8
	if int(last) >= len(data) {
		return s.offset
	}

	var raw uint32
	for i := first; i <= last; i++ {
		shift := i - first
		if !s.littleEndian {
			shift = last - i
		}
		raw |= uint32(data[i]&byteMask(i, lsb, msb)) << (shift * 8)
	}
	raw >>= lsb - first*8

	if s.signed {
		if raw&(1<<(s.length-1)) != 0 && s.length < 32 {
			raw |= math.MaxUint32 << s.length
		}
		return float64(int32(raw))*s.scalar + s.offset
	}
	return float64(raw)*s.scalar + s.offset
}

// encode is the inverse of extract for little endian, byte aligned signals. It is used to
// build status frames.
func (s canSignal) encode(data []byte, value float64) {
	raw := uint32(int64(math.Round((value - s.offset) / s.scalar)))
	for i := uint(0); i < s.length; i += 8 {
		data[(s.start+i)/8] = byte(raw >> i)
	}
}
