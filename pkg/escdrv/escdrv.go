// Package escdrv defines the interface to the low-level commutation engine
// that actually drives the motor windings. The supervisory controller only
// talks to this interface; the engine itself (phase switching, PWM
// generation, ADC sampling) lives on the other side of it.
package escdrv

import "github.com/kestrel-team/kestrel/go-escd/pkg/hnsec"

type MotorState int

const (
	// StateIdle: the motor is not being driven.
	StateIdle MotorState = iota
	// StateStarting: the engine is running its own forced-commutation
	// spin-up sequence and must not be interfered with.
	StateStarting
	// StateRunning: feedback-based commutation is established.
	StateRunning
)

func (s MotorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Interface is the driver collaborator. All calls are synchronous and
// non-blocking; the engine reports faults by dropping back to StateIdle
// and reporting a zero comm period, not by returning errors from reads.
type Interface interface {
	// Init brings the engine up. Must be called before anything else;
	// LimitCommPeriod and InputVoltageCurrent are undefined before Init.
	Init() error

	// Start begins the spin-up sequence with the given starting duty
	// cycle band and direction.
	Start(minDuty, maxDuty float64, reverse bool) error

	// Stop cuts drive to the motor.
	Stop() error

	// SetDutyCycle applies a duty cycle in [0,1]. The engine is stateless
	// with respect to duty cycle, so the caller re-sends it every tick.
	SetDutyCycle(dc float64) error

	// State reports what the engine is currently doing.
	State() MotorState

	// CommPeriod is the live electrical commutation period. Zero means
	// the motor is stopped or has stalled.
	CommPeriod() hnsec.Ticks

	// LimitCommPeriod is the shortest comm period the engine can commutate
	// at; it defines the maximum achievable RPM.
	LimitCommPeriod() hnsec.Ticks

	// InputVoltageCurrent returns the raw bus voltage and current.
	InputVoltageCurrent() (volts, amps float64)

	Close() error
}
