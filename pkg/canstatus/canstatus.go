// Package canstatus broadcasts the controller's state on a CAN bus so
// flight controllers and bench tools can watch the motor without polling
// the daemon. One fixed-layout 8-byte frame carries filtered telemetry,
// live RPM, the applied duty cycle and the mode/limit flags.
package canstatus

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
	"go.uber.org/zap"

	"github.com/kestrel-team/kestrel/go-escd/pkg/motorctl"
)

// Signal scaling for the status frame. Little-endian throughout.
const (
	VoltageLSB = 0.01 // volts
	CurrentLSB = 0.01 // amps, signed
	DutyLSB    = 1.0 / 255.0
)

// Flag bits in the last byte of the frame.
const (
	FlagRunning = 1 << iota
	FlagModeRPM
	FlagLimitRPM
	FlagLimitAccel
)

// Source is the slice of the controller the publisher reads. motorctl's
// Controller satisfies it.
type Source interface {
	InputVoltageCurrent() (volts, amps float64)
	RPM() uint
	DutyCycle() float64
	Mode() motorctl.Mode
	IsRunning() bool
	LimitMask() motorctl.Limit
}

// Snapshot is one observation of the controller, taken at broadcast time.
type Snapshot struct {
	Voltage   float64
	Current   float64
	RPM       uint
	DutyCycle float64
	Mode      motorctl.Mode
	Running   bool
	Limits    motorctl.Limit
}

func snapshot(src Source) Snapshot {
	volts, amps := src.InputVoltageCurrent()
	return Snapshot{
		Voltage:   volts,
		Current:   amps,
		RPM:       src.RPM(),
		DutyCycle: src.DutyCycle(),
		Mode:      src.Mode(),
		Running:   src.IsRunning(),
		Limits:    src.LimitMask(),
	}
}

// Encode packs a snapshot into a status frame. Out-of-range physical
// values saturate at the signal bounds.
func Encode(id uint32, s Snapshot) can.Frame {
	var f can.Frame
	f.ID = id
	f.Length = 8

	binary.LittleEndian.PutUint16(f.Data[0:2], scaleUnsigned(s.Voltage, VoltageLSB))
	binary.LittleEndian.PutUint16(f.Data[2:4], uint16(scaleSigned(s.Current, CurrentLSB)))

	rpm := s.RPM
	if rpm > 0xFFFF {
		rpm = 0xFFFF
	}
	binary.LittleEndian.PutUint16(f.Data[4:6], uint16(rpm))

	f.Data[6] = uint8(scaleUnsigned(s.DutyCycle, DutyLSB) & 0xFF)

	var flags uint8
	if s.Running {
		flags |= FlagRunning
	}
	if s.Mode == motorctl.ModeRPM {
		flags |= FlagModeRPM
	}
	if s.Limits.Has(motorctl.LimitRPM) {
		flags |= FlagLimitRPM
	}
	if s.Limits.Has(motorctl.LimitAccel) {
		flags |= FlagLimitAccel
	}
	f.Data[7] = flags

	return f
}

func scaleUnsigned(v, lsb float64) uint16 {
	if v <= 0 {
		return 0
	}
	raw := v / lsb
	if raw >= 0xFFFF {
		return 0xFFFF
	}
	return uint16(raw + 0.5)
}

func scaleSigned(v, lsb float64) int16 {
	raw := v / lsb
	if raw >= 32767 {
		return 32767
	}
	if raw <= -32768 {
		return -32768
	}
	if raw >= 0 {
		return int16(raw + 0.5)
	}
	return int16(raw - 0.5)
}

// Writer sends frames to the bus. Split out so the publisher can be tested
// without a CAN socket.
type Writer interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// SocketCANWriter sends frames over a Linux SocketCAN interface.
type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	return w.conn.Close()
}

// Publisher broadcasts snapshots at a fixed interval.
type Publisher struct {
	src      Source
	writer   Writer
	frameID  uint32
	interval time.Duration
	logger   *zap.SugaredLogger
}

func NewPublisher(src Source, writer Writer, frameID uint32, interval time.Duration, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		src:      src,
		writer:   writer,
		frameID:  frameID,
		interval: interval,
		logger:   logger,
	}
}

// Loop broadcasts until the context is cancelled. Transmit failures are
// logged and retried on the next interval; the bus going away must not
// take the motor down with it.
func (p *Publisher) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer p.logger.Info("CAN status loop exited")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := Encode(p.frameID, snapshot(p.src))
		if err := p.writer.WriteFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warnf("status transmit failed: %v", err)
		}
	}
}
