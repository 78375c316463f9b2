package escdrv

import (
	"sync"

	"github.com/kestrel-team/kestrel/go-escd/pkg/hnsec"
)

// StartCall records one Start invocation on the fake.
type StartCall struct {
	MinDuty float64
	MaxDuty float64
	Reverse bool
}

// Fake is an in-memory driver for tests and for running the daemon without
// hardware attached. Telemetry and motor state are whatever the test (or
// nobody) last set; Start moves the state to StateStarting and Stop drops
// it back to StateIdle with a zero comm period.
type Fake struct {
	mu sync.Mutex

	state           MotorState
	commPeriod      hnsec.Ticks
	limitCommPeriod hnsec.Ticks
	volts, amps     float64

	lastDuty float64
	starts   []StartCall
	stops    int
	duties   []float64
}

// NewFake returns a fake driver with a 12V supply, no load and a comm
// period floor of 2000 ticks (200us).
func NewFake() *Fake {
	return &Fake{
		limitCommPeriod: 2000,
		volts:           12.0,
	}
}

var _ Interface = (*Fake)(nil)

func (f *Fake) Init() error { return nil }

func (f *Fake) Start(minDuty, maxDuty float64, reverse bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, StartCall{MinDuty: minDuty, MaxDuty: maxDuty, Reverse: reverse})
	f.state = StateStarting
	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = StateIdle
	f.commPeriod = 0
	f.lastDuty = 0
	return nil
}

func (f *Fake) SetDutyCycle(dc float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDuty = dc
	f.duties = append(f.duties, dc)
	return nil
}

func (f *Fake) State() MotorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) CommPeriod() hnsec.Ticks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commPeriod
}

func (f *Fake) LimitCommPeriod() hnsec.Ticks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limitCommPeriod
}

func (f *Fake) InputVoltageCurrent() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volts, f.amps
}

func (f *Fake) Close() error { return nil }

// Test hooks.

func (f *Fake) SetMotorState(s MotorState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *Fake) SetCommPeriod(cp hnsec.Ticks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commPeriod = cp
}

func (f *Fake) SetLimitCommPeriod(cp hnsec.Ticks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitCommPeriod = cp
}

func (f *Fake) SetInputVoltageCurrent(volts, amps float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volts, f.amps = volts, amps
}

// LastDutyCycle is the most recently applied duty cycle (zeroed by Stop).
func (f *Fake) LastDutyCycle() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDuty
}

// Starts returns a copy of all recorded Start calls.
func (f *Fake) Starts() []StartCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StartCall(nil), f.starts...)
}

// Stops returns how many times Stop has been called.
func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// DutyHistory returns a copy of every duty cycle applied so far.
func (f *Fake) DutyHistory() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.duties...)
}
