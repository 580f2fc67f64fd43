// Package dropout provides the stochastic/scaling engine. In training mode
// it zeroes elements selected by an on-chip pseudo-random sequence and
// rescales the survivors; in inference mode it passes elements through
// unchanged.
package dropout

import (
	"fmt"
	"math"

	"github.com/pipelined/sienna"
)

// defaultSeed matches the hardware's power-on LFSR state.
const defaultSeed uint16 = 0xACE1

// Engine applies dropout element by element with a one-step latency and one
// element in flight. The random source is a 16-bit Fibonacci LFSR, so a
// fixed seed yields a reproducible drop mask.
type Engine struct {
	uid      string
	prob     float64
	training bool
	expected int

	threshold uint16
	scaleQ16  uint32
	seed      uint16
	state     uint16

	pending   bool
	armed     bool
	hasIn     bool
	in        sienna.Element
	hasOut    bool
	out       sienna.Element
	delivered int
	done      bool
}

// Option provides a way to set parameters to the engine.
type Option func(*Engine)

// WithSeed sets the LFSR seed. A zero seed is replaced by the power-on
// state, as an all-zero LFSR never leaves it.
func WithSeed(seed uint16) Option {
	return func(e *Engine) {
		if seed != 0 {
			e.seed = seed
		}
	}
}

// New creates an engine dropping with the given probability when training
// is set. Probability must lie in [0, 1).
func New(prob float64, training bool, expected int, options ...Option) (*Engine, error) {
	if prob < 0 || prob >= 1 {
		return nil, fmt.Errorf("dropout probability %v: must be in [0, 1)", prob)
	}
	if expected < 1 {
		return nil, fmt.Errorf("dropout expected count %d: must be positive", expected)
	}
	threshold := math.Round(prob * 65536)
	if threshold > 65535 {
		threshold = 65535
	}
	e := &Engine{
		uid:       sienna.NewUID(),
		prob:      prob,
		training:  training,
		expected:  expected,
		threshold: uint16(threshold),
		scaleQ16:  uint32(math.Round(65536 / (1 - prob))),
		seed:      defaultSeed,
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// ID returns the engine uid.
func (e *Engine) ID() string {
	return e.uid
}

// Start pulses the engine; it arms on the next tick with the LFSR reseeded
// so every activation sees the same sequence.
func (e *Engine) Start() {
	e.pending = true
}

// Busy reports whether the engine is armed and short of its expected count.
func (e *Engine) Busy() bool {
	return e.armed
}

// Done reports whether all expected elements have been delivered.
func (e *Engine) Done() bool {
	return e.done
}

// Tick advances the engine by one step.
func (e *Engine) Tick() {
	if e.pending {
		e.pending = false
		e.armed = true
		e.hasIn, e.hasOut = false, false
		e.delivered = 0
		e.done = false
		e.state = e.seed
	}
	if e.armed && e.hasIn && !e.hasOut {
		e.out = e.apply(e.in)
		e.hasIn = false
		e.hasOut = true
	}
}

// Ready reports whether a new element can be written this step.
func (e *Engine) Ready() bool {
	return e.armed && !e.hasIn && !e.hasOut
}

// Write presents one element to the engine.
func (e *Engine) Write(v sienna.Element) {
	e.in = v
	e.hasIn = true
}

// ReadValid reports whether a processed element can be read this step.
func (e *Engine) ReadValid() bool {
	return e.hasOut
}

// Read consumes the processed element. After the expected count the engine
// disarms and asserts done.
func (e *Engine) Read() sienna.Element {
	v := e.out
	e.hasOut = false
	e.delivered++
	if e.delivered == e.expected {
		e.armed = false
		e.done = true
	}
	return v
}

func (e *Engine) apply(v sienna.Element) sienna.Element {
	if !e.training {
		return v
	}
	if e.next() < e.threshold {
		return sienna.FromFloat32(0)
	}
	// rescale survivors by 1/(1-p) in Q16 fixed point.
	scaled := v.Float32() * float32(e.scaleQ16) / 65536
	return sienna.FromFloat32(scaled)
}

// next advances the Fibonacci LFSR, taps 16, 14, 13 and 11.
func (e *Engine) next() uint16 {
	bit := (e.state ^ (e.state >> 2) ^ (e.state >> 3) ^ (e.state >> 5)) & 1
	e.state = (e.state >> 1) | (bit << 15)
	return e.state
}
