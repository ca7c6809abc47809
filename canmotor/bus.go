// Package canmotor talks to swerve module motor controllers and absolute encoders over a
// SocketCAN interface. Commands are fire-and-forget frames; devices publish status frames that
// a background worker caches for the encoder reads.
package canmotor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	viamutils "go.viam.com/utils"
	"golang.org/x/sys/unix"

	"swerve/swervemodule"
)

const (
	closeTimeout = time.Second
	// pause after a failed read
	recvErrorBackoff = 10 * time.Millisecond
)

// Sender transmits frames. *canbus.Socket implements it.
type Sender interface {
	Send(frame canbus.Frame) (int, error)
}

type receiver interface {
	Recv() (canbus.Frame, error)
}

// Bus is one CAN interface shared by every device of the drivetrain.
type Bus struct {
	tx     Sender
	rx     io.Closer
	logger logging.Logger

	statusLock sync.RWMutex
	status     map[uint32][]byte

	activeBackgroundWorkers sync.WaitGroup
	cancel                  func()
}

var _ swervemodule.Devices = (*Bus)(nil)

// NewBus returns a bus that sends through tx. Status frames must be fed with HandleFrame.
func NewBus(tx Sender, logger logging.Logger) *Bus {
	return &Bus{
		tx:     tx,
		logger: logger,
		status: map[uint32][]byte{},
		cancel: func() {},
	}
}

// OpenBus binds to the named CAN interface and starts receiving status frames.
func OpenBus(channel string, logger logging.Logger) (*Bus, error) {
	socketSend, err := canbus.New()
	if err != nil {
		return nil, err
	}
	if err := socketSend.Bind(channel); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "binding send socket to %s", channel), socketSend.Close())
	}

	socketRecv, err := canbus.New()
	if err != nil {
		return nil, multierr.Combine(err, socketSend.Close())
	}
	statusMask := ^deviceIDMask&unix.CAN_EFF_MASK | unix.CAN_EFF_FLAG
	err = socketRecv.SetFilters([]unix.CanFilter{
		{Id: apiMotorStatus<<apiShift | unix.CAN_EFF_FLAG, Mask: statusMask},
		{Id: apiAbsoluteStatus<<apiShift | unix.CAN_EFF_FLAG, Mask: statusMask},
	})
	if err != nil {
		return nil, multierr.Combine(err, socketSend.Close(), socketRecv.Close())
	}
	if err := socketRecv.Bind(channel); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "binding receive socket to %s", channel), socketSend.Close(), socketRecv.Close())
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	bus := NewBus(socketSend, logger)
	bus.rx = socketRecv
	bus.cancel = cancel

	bus.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		bus.receiveThread(cancelCtx, socketRecv)
	}, bus.activeBackgroundWorkers.Done)

	return bus, nil
}

// receiveThread caches every status frame until ctx is cancelled.
func (b *Bus) receiveThread(ctx context.Context, socket receiver) {
	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := socket.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Errorw("CAN Rx error", "error", err)
			viamutils.SelectContextOrWait(ctx, recvErrorBackoff)
			continue
		}
		b.HandleFrame(frame)
	}
}

// HandleFrame stores the payload of status frames. Other frames are ignored.
func (b *Bus) HandleFrame(frame canbus.Frame) {
	id := frame.ID & unix.CAN_EFF_MASK
	api, _ := splitFrameID(id)
	if api != apiMotorStatus && api != apiAbsoluteStatus {
		return
	}
	data := append([]byte(nil), frame.Data...)

	b.statusLock.Lock()
	defer b.statusLock.Unlock()
	b.status[id] = data
}

// latestStatus returns the last payload received with the given API from deviceID.
func (b *Bus) latestStatus(api uint32, deviceID int) ([]byte, bool) {
	if CheckDeviceID(deviceID) != nil {
		return nil, false
	}
	b.statusLock.RLock()
	defer b.statusLock.RUnlock()
	data, ok := b.status[frameID(api, deviceID)]
	return data, ok
}

func (b *Bus) send(deviceID int, cmd command) error {
	if err := CheckDeviceID(deviceID); err != nil {
		return err
	}
	frame := cmd.toFrame(deviceID)
	if _, err := b.tx.Send(frame); err != nil {
		b.logger.Debugw("CAN Tx error", "id", frame.ID, "data", frame.Data, "error", err)
		return errors.Wrapf(err, "sending frame 0x%x", frame.ID)
	}
	return nil
}

// Motor returns the motor controller with the given device ID.
func (b *Bus) Motor(id int) *Motor {
	m := &Motor{bus: b, id: id}
	m.encoder = &Encoder{bus: b, id: id}
	return m
}

// AbsoluteEncoder returns the absolute encoder with the given device ID.
func (b *Bus) AbsoluteEncoder(id int) *AbsoluteEncoder {
	return &AbsoluteEncoder{bus: b, id: id}
}

func (b *Bus) DriveMotor(id int) swervemodule.DriveActuator {
	return b.Motor(id)
}

func (b *Bus) SteerMotor(id int) swervemodule.SteerActuator {
	return b.Motor(id)
}

func (b *Bus) AngleSensor(id int) swervemodule.AbsoluteAngleSensor {
	return b.AbsoluteEncoder(id)
}

// Close stops the receive worker and closes both sockets.
func (b *Bus) Close() error {
	b.cancel()
	var err error
	if b.rx != nil {
		err = multierr.Append(err, b.rx.Close())
	}

	// Recv is a blocking read that closing the socket may not interrupt; it returns with the
	// next frame on the bus, which devices publish continuously.
	done := make(chan struct{})
	go func() {
		b.activeBackgroundWorkers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		b.logger.Warnw("CAN receive worker did not stop", "timeout", closeTimeout)
	}

	if closer, ok := b.tx.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}
