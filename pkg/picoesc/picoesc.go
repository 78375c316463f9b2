// Package picoesc drives a brushless motor driver board over I2C. The
// commutation engine runs on the board; this package only proxies commands
// and telemetry through its register map, implementing escdrv.Interface for
// the supervisory controller.
package picoesc

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/io/i2c"

	"github.com/kestrel-team/kestrel/go-escd/pkg/escdrv"
	"github.com/kestrel-team/kestrel/go-escd/pkg/hnsec"
)

const (
	DefaultDevice = "/dev/i2c-1"
	DefaultAddr   = 0x52
)

type Register byte

const (
	RegCtrl Register = iota
	RegStatus
	RegStartDutyMin
	RegStartDutyMax
	RegDutyCycle

	// Comm periods are 32-bit hectonanosecond counts split over two
	// 16-bit registers.
	RegCommPeriodLo
	RegCommPeriodHi
	RegLimitCommPeriodLo
	RegLimitCommPeriodHi

	RegBusV    // LSB = 4mV
	RegCurrent // LSB per the board's shunt calibration
)

const (
	DutyLSB    = 1.0 / 0xFFFF
	BusVLSB    = 0.004
	CurrentLSB = 0.0001831054688
)

const (
	RegCtrlEnableI2CControl uint16 = 1 << iota
	RegCtrlRun
	RegCtrlReverse
)

// Low two bits of the status register encode the motor state.
const regStatusStateMask uint16 = 0x0003

const writeRetries = 20

type PicoESC struct {
	dev    *i2c.Device
	bus    *i2c.Devfs
	addr   int
	logger *zap.SugaredLogger

	lastCtrlWord uint16
	lastCtrlTime time.Time
}

var _ escdrv.Interface = (*PicoESC)(nil)

func New(device string, addr int, logger *zap.SugaredLogger) (*PicoESC, error) {
	bus := &i2c.Devfs{Dev: device}
	dev, err := i2c.Open(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("open %s @0x%02x: %w", device, addr, err)
	}
	return &PicoESC{
		dev:    dev,
		bus:    bus,
		addr:   addr,
		logger: logger,
	}, nil
}

func (p *PicoESC) Init() error {
	// Probe the board before claiming control of it.
	if _, err := p.readReg(RegStatus); err != nil {
		return fmt.Errorf("board not responding: %w", err)
	}
	if err := p.writeCtrl(false, false); err != nil {
		return err
	}

	limit := p.LimitCommPeriod()
	if limit == 0 {
		return fmt.Errorf("board reports zero limit comm period")
	}
	return nil
}

func (p *PicoESC) Start(minDuty, maxDuty float64, reverse bool) error {
	if err := p.writeReg(RegStartDutyMin, dutyToRaw(minDuty)); err != nil {
		return err
	}
	if err := p.writeReg(RegStartDutyMax, dutyToRaw(maxDuty)); err != nil {
		return err
	}
	return p.writeCtrl(true, reverse)
}

func (p *PicoESC) Stop() error {
	if err := p.writeReg(RegDutyCycle, 0); err != nil {
		return err
	}
	return p.writeCtrl(false, false)
}

func (p *PicoESC) SetDutyCycle(dc float64) error {
	return p.writeReg(RegDutyCycle, dutyToRaw(dc))
}

func (p *PicoESC) State() escdrv.MotorState {
	status, err := p.readReg(RegStatus)
	if err != nil {
		p.logger.Warnf("status read failed, assuming idle: %v", err)
		return escdrv.StateIdle
	}
	switch status & regStatusStateMask {
	case 1:
		return escdrv.StateStarting
	case 2:
		return escdrv.StateRunning
	default:
		return escdrv.StateIdle
	}
}

func (p *PicoESC) CommPeriod() hnsec.Ticks {
	return p.readTicks(RegCommPeriodLo, RegCommPeriodHi)
}

func (p *PicoESC) LimitCommPeriod() hnsec.Ticks {
	return p.readTicks(RegLimitCommPeriodLo, RegLimitCommPeriodHi)
}

func (p *PicoESC) InputVoltageCurrent() (float64, float64) {
	rawV, err := p.readReg(RegBusV)
	if err != nil {
		p.logger.Warnf("bus voltage read failed: %v", err)
		return 0, 0
	}
	rawI, err := p.readReg(RegCurrent)
	if err != nil {
		p.logger.Warnf("current read failed: %v", err)
		return float64(rawV) * BusVLSB, 0
	}
	return float64(rawV) * BusVLSB, float64(int16(rawI)) * CurrentLSB
}

func (p *PicoESC) Close() error {
	_ = p.Stop()
	return p.dev.Close()
}

func (p *PicoESC) readTicks(lo, hi Register) hnsec.Ticks {
	l, err := p.readReg(lo)
	if err != nil {
		p.logger.Warnf("comm period read failed: %v", err)
		return 0
	}
	h, err := p.readReg(hi)
	if err != nil {
		p.logger.Warnf("comm period read failed: %v", err)
		return 0
	}
	return hnsec.Ticks(uint32(h)<<16 | uint32(l))
}

// writeCtrl writes the control word, skipping the write if the same word
// went out recently. The run/reverse bits are the only ones that change
// after init.
func (p *PicoESC) writeCtrl(run, reverse bool) error {
	word := RegCtrlEnableI2CControl
	if run {
		word |= RegCtrlRun
	}
	if reverse {
		word |= RegCtrlReverse
	}

	if word == p.lastCtrlWord && time.Since(p.lastCtrlTime) < 100*time.Millisecond {
		return nil
	}
	if err := p.writeReg(RegCtrl, word); err != nil {
		return err
	}
	p.lastCtrlWord = word
	p.lastCtrlTime = time.Now()
	return nil
}

func (p *PicoESC) writeReg(reg Register, value uint16) error {
	return p.writeWithRetries([]byte{byte(reg), byte(value >> 8), byte(value)})
}

func (p *PicoESC) readReg(reg Register) (uint16, error) {
	var buf [2]byte
	if err := p.dev.ReadReg(byte(reg), buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// writeWithRetries retries a failed write, reopening the device between
// attempts; the Pi's I2C master occasionally drops a transaction under
// load.
func (p *PicoESC) writeWithRetries(data []byte) error {
	var err error
	for tries := 0; tries < writeRetries; tries++ {
		err = p.dev.Write(data)
		if err == nil {
			if tries > 0 {
				p.logger.Infof("board write succeeded after %d retries", tries)
			}
			return nil
		}
		p.logger.Warnf("board write failed: %v", err)
		time.Sleep(time.Millisecond)
		_ = p.dev.Close()
		dev, openErr := i2c.Open(p.bus, p.addr)
		if openErr != nil {
			continue
		}
		p.dev = dev
	}
	return fmt.Errorf("board write failed after %d attempts: %w", writeRetries, err)
}

func dutyToRaw(dc float64) uint16 {
	if dc < 0 {
		dc = 0
	}
	if dc > 1 {
		dc = 1
	}
	return uint16(dc / DutyLSB)
}
