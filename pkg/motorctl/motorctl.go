// Package motorctl is the supervisory control layer above the commutation
// engine. It filters the bus voltage/current telemetry, sequences motor
// start from standstill, arbitrates between open-loop duty-cycle commands
// and target-RPM commands, slope-limits the applied duty cycle and enforces
// the RPM ceiling.
package motorctl

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-team/kestrel/go-escd/pkg/escdrv"
	"github.com/kestrel-team/kestrel/go-escd/pkg/hnsec"
)

// Mode selects which control law drives the motor.
type Mode int

const (
	// ModeOpenLoop: the operator commands a raw duty cycle.
	ModeOpenLoop Mode = iota
	// ModeRPM: the operator commands a target RPM.
	ModeRPM
)

func (m Mode) String() string {
	switch m {
	case ModeOpenLoop:
		return "openloop"
	case ModeRPM:
		return "rpm"
	default:
		return "unknown"
	}
}

// Limit flags which constraint is currently suppressing the requested
// setpoint.
type Limit int

const (
	// LimitRPM: the comm period is approaching the engine's floor and the
	// duty cycle is being pulled back.
	LimitRPM Limit = 1 << iota
	// LimitAccel: the requested duty cycle step exceeded DCStepMax and is
	// being slope-limited.
	LimitAccel
)

// Has reports whether flag f is set.
func (l Limit) Has(f Limit) bool { return l&f != 0 }

// Params is the controller configuration, immutable after New.
// CommPeriodLimit and RPMMax are derived from the driver during New and
// need not be set by the caller.
type Params struct {
	// SpinupVoltage is the effective winding voltage used to pick the
	// starting duty cycle: spinupDC = SpinupVoltage / busVoltage.
	SpinupVoltage float64

	// DCStepMax is the largest per-tick duty cycle change accepted
	// without slope limiting.
	DCStepMax float64
	// DCSlope is the slope-limited rate, in duty cycle units per second.
	DCSlope float64

	// LowpassTau is the voltage/current filter time constant in seconds.
	LowpassTau float64

	Poles   int
	Reverse bool

	// CommPeriodLimit is the engine's comm period floor (derived).
	CommPeriodLimit hnsec.Ticks
	// RPMMax is the RPM ceiling the floor encodes (derived).
	RPMMax uint
	// RPMMin is the setpoint below which a start is not attempted in RPM
	// mode.
	RPMMin uint

	// ControlPeriod is the nominal worker tick period.
	ControlPeriod time.Duration

	// MinValidVoltage/MaxValidVoltage bound the seeded input voltage; a
	// reading outside the band fails startup.
	MinValidVoltage float64
	MaxValidVoltage float64
}

// output is the result of one control law evaluation: either a duty cycle
// to apply, or an instruction to stop the motor.
type output struct {
	stop bool
	dc   float64
}

func duty(dc float64) output { return output{dc: dc} }

var stopOutput = output{stop: true}

// Controller owns all mutable control state. The worker loop and the
// public setters/getters share one mutex; the worker is woken early by a
// coalescing notification whenever a setpoint changes.
type Controller struct {
	drv    escdrv.Interface
	params Params
	logger *zap.SugaredLogger

	// notify has capacity 1: rapid setpoint updates coalesce, which is
	// fine because only the latest setpoint matters.
	notify chan struct{}

	mu                 sync.Mutex
	mode               Mode
	limitMask          Limit
	dcActual           float64
	dcOpenloopSetpoint float64
	rpmSetpoint        uint
	inputVoltage       float64
	inputCurrent       float64
}

// New initialises the driver, derives the RPM ceiling from its comm period
// floor and seeds the telemetry filters from a single sample. It fails if
// the driver fails to init or the seeded voltage is outside the valid
// band; there is no retry. A non-positive pole count is a programming
// error and panics.
func New(drv escdrv.Interface, params Params, logger *zap.SugaredLogger) (*Controller, error) {
	if params.Poles <= 0 {
		panic(fmt.Sprintf("motorctl: pole count must be positive, got %d", params.Poles))
	}

	if err := drv.Init(); err != nil {
		return nil, fmt.Errorf("driver init: %w", err)
	}

	params.CommPeriodLimit = drv.LimitCommPeriod()
	params.RPMMax = CommPeriodToRPM(params.CommPeriodLimit, params.Poles)

	c := &Controller{
		drv:    drv,
		params: params,
		logger: logger,
		notify: make(chan struct{}, 1),
	}

	// Seed the filters so the first ticks don't ramp up from zero.
	c.inputVoltage, c.inputCurrent = drv.InputVoltageCurrent()
	if c.inputVoltage < params.MinValidVoltage || c.inputVoltage > params.MaxValidVoltage {
		return nil, fmt.Errorf("invalid input voltage: %.2fV (valid band [%.1fV, %.1fV])",
			c.inputVoltage, params.MinValidVoltage, params.MaxValidVoltage)
	}

	logger.Infof("motor control: RPM range [%d, %d]; poles: %d",
		params.RPMMin, params.RPMMax, params.Poles)
	return c, nil
}

// Params returns a copy of the controller configuration, including the
// derived comm period floor and RPM ceiling.
func (c *Controller) Params() Params {
	return c.params
}

// SetDutyCycle switches to open-loop mode and commands a duty cycle.
// Values outside [0,1] are clamped, never rejected.
func (c *Controller) SetDutyCycle(dc float64) {
	c.mu.Lock()
	c.mode = ModeOpenLoop
	if dc < 0 {
		dc = 0
	}
	if dc > 1 {
		dc = 1
	}
	c.dcOpenloopSetpoint = dc
	c.mu.Unlock()

	c.wake()
}

// SetRPM switches to RPM mode and commands a target RPM, clamped to the
// derived ceiling.
func (c *Controller) SetRPM(rpm uint) {
	c.mu.Lock()
	c.mode = ModeRPM
	if rpm > c.params.RPMMax {
		rpm = c.params.RPMMax
	}
	c.rpmSetpoint = rpm
	c.mu.Unlock()

	c.wake()
}

// wake nudges the worker so a new setpoint is not delayed a full control
// period. Never blocks.
func (c *Controller) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// DutyCycle returns the duty cycle currently applied to the motor.
func (c *Controller) DutyCycle() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dcActual
}

// RPM returns the live mechanical RPM computed from the engine's comm
// period; zero when stopped.
func (c *Controller) RPM() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CommPeriodToRPM(c.drv.CommPeriod(), c.params.Poles)
}

// Mode returns the active control mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// IsRunning reports whether the motor is being driven (starting or
// running).
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drv.State() != escdrv.StateIdle
}

// LimitMask returns the currently active limit flags.
func (c *Controller) LimitMask() Limit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limitMask
}

// InputVoltageCurrent returns the filtered bus voltage and current.
func (c *Controller) InputVoltageCurrent() (volts, amps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputVoltage, c.inputCurrent
}

// Loop is the control worker. It runs one tick per setpoint notification
// or control period, whichever comes first, until the context is
// cancelled; the motor is stopped on the way out. Run it on its own
// goroutine; it should be the highest-priority work in the process so dt
// jitter stays bounded.
func (c *Controller) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.logger.Info("motor control loop exited")

	timer := time.NewTimer(c.params.ControlPeriod)
	defer timer.Stop()

	last := hnsec.Now()
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-c.notify:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.params.ControlPeriod)

		now := hnsec.Now()
		dt := (now - last).Seconds()
		last = now

		c.mu.Lock()
		c.updateFilters(dt)
		c.updateControl(dt)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

func (c *Controller) updateFilters(dt float64) {
	volts, amps := c.drv.InputVoltageCurrent()
	c.inputVoltage = lowpass(c.inputVoltage, volts, c.params.LowpassTau, dt)
	c.inputCurrent = lowpass(c.inputCurrent, amps, c.params.LowpassTau, dt)
}

// stopLocked forces a full stop and resets all control state. Runtime
// faults (stall, no valid control output) all funnel through here; callers
// observe them only through IsRunning/DutyCycle.
func (c *Controller) stopLocked() {
	if err := c.drv.Stop(); err != nil {
		c.logger.Warnf("motor stop failed: %v", err)
	}
	c.limitMask = 0
	c.dcActual = 0
	c.dcOpenloopSetpoint = 0
	c.rpmSetpoint = 0
}

func (c *Controller) updateControl(dt float64) {
	if c.drv.State() != escdrv.StateRunning {
		c.updateControlNonRunning()
		return
	}

	var out output
	switch c.mode {
	case ModeOpenLoop:
		out = c.updateControlOpenLoop()
	case ModeRPM:
		out = c.updateControlRPM(dt)
	default:
		panic(fmt.Sprintf("motorctl: unknown mode %d", c.mode))
	}

	if out.stop {
		c.stopLocked()
		return
	}

	// Duty cycle slope control.
	dc := out.dc
	if math.Abs(dc-c.dcActual) > c.params.DCStepMax {
		step := c.params.DCSlope * dt
		if dc < c.dcActual {
			step = -step
		}
		dc = c.dcActual + step
		c.limitMask |= LimitAccel
	} else {
		c.limitMask &^= LimitAccel
	}

	c.dcActual = dc
	// The engine is stateless with respect to duty cycle: re-send every
	// tick even when unchanged.
	if err := c.drv.SetDutyCycle(c.dcActual); err != nil {
		c.logger.Warnf("set duty cycle failed: %v", err)
	}
}

// updateControlNonRunning handles the standstill side: leave the engine
// alone mid spin-up, otherwise arm the starting duty cycle and kick off a
// start once the pending command shows genuine intent to run.
func (c *Controller) updateControlNonRunning() {
	if c.drv.State() == escdrv.StateStarting {
		return
	}

	spinupDC := c.params.SpinupVoltage / c.inputVoltage
	if spinupDC > 1 {
		// A sagging supply must not push the starting duty over full
		// scale.
		spinupDC = 1
	}
	c.dcActual = spinupDC
	c.limitMask = 0

	needStart := (c.mode == ModeOpenLoop && c.dcOpenloopSetpoint >= spinupDC) ||
		(c.mode == ModeRPM && c.rpmSetpoint >= c.params.RPMMin)

	if needStart {
		if err := c.drv.Start(spinupDC, spinupDC, c.params.Reverse); err != nil {
			c.logger.Warnf("motor start failed: %v", err)
		}
	}
}

func (c *Controller) updateControlOpenLoop() output {
	cp := c.drv.CommPeriod()
	if cp == 0 {
		// The motor just stopped.
		return stopOutput
	}

	if cp < c.params.CommPeriodLimit {
		// Proportional pull-back as the comm period approaches the
		// floor: dc falls from 1 at the floor to 0 at half the floor.
		c1 := float64(c.params.CommPeriodLimit)
		c0 := c1 / 2
		dc := (float64(cp) - c0) / (c1 - c0)

		if dc < c.dcOpenloopSetpoint {
			c.limitMask |= LimitRPM
			return duty(dc)
		}
	}
	c.limitMask &^= LimitRPM
	if c.dcOpenloopSetpoint > 0 {
		return duty(c.dcOpenloopSetpoint)
	}
	return stopOutput
}

// updateControlRPM has no closed-loop law yet: commanding RPM while
// running always stops the motor.
// TODO: closed-loop RPM law.
func (c *Controller) updateControlRPM(dt float64) output {
	_ = dt
	return stopOutput
}
