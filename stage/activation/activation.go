// Package activation provides the nonlinear-activation engine. It consumes
// one element per step through a push port, evaluates the selected function
// and emits the result through a pull port with a one-step latency.
package activation

import (
	"fmt"

	"github.com/pipelined/sienna"
)

// Func selects the activation function.
type Func int

// Supported activation functions.
const (
	None Func = iota
	ReLU
	Sigmoid
	Tanh
)

// ParseFunc resolves a selector name.
func ParseFunc(name string) (Func, error) {
	switch name {
	case "none":
		return None, nil
	case "relu":
		return ReLU, nil
	case "sigmoid":
		return Sigmoid, nil
	case "tanh":
		return Tanh, nil
	}
	return None, fmt.Errorf("unknown activation %q", name)
}

// String returns the selector name.
func (f Func) String() string {
	switch f {
	case None:
		return "none"
	case ReLU:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	case Tanh:
		return "tanh"
	}
	return "unknown"
}

// Engine evaluates the activation function element by element. Sigmoid and
// tanh are computed by truncated series summation honoring the configured
// term count; relu and none are exact. One element is in flight at a time.
type Engine struct {
	uid      string
	fn       Func
	terms    int
	expected int

	pending   bool
	armed     bool
	hasIn     bool
	in        sienna.Element
	hasOut    bool
	out       sienna.Element
	delivered int
	done      bool
}

// New creates an engine that will process the expected number of elements
// per activation. Term count below one defaults to the hardware's sixteen.
func New(fn Func, terms, expected int) (*Engine, error) {
	if expected < 1 {
		return nil, fmt.Errorf("activation expected count %d: must be positive", expected)
	}
	if terms < 1 {
		terms = 16
	}
	return &Engine{
		uid:      sienna.NewUID(),
		fn:       fn,
		terms:    terms,
		expected: expected,
	}, nil
}

// ID returns the engine uid.
func (e *Engine) ID() string {
	return e.uid
}

// Start pulses the engine; it arms on the next tick with counters cleared.
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

// Tick advances the engine by one step: a written element is evaluated and
// becomes readable on the following step.
func (e *Engine) Tick() {
	if e.pending {
		e.pending = false
		e.armed = true
		e.hasIn, e.hasOut = false, false
		e.delivered = 0
		e.done = false
	}
	if e.armed && e.hasIn && !e.hasOut {
		e.out = sienna.FromFloat32(e.eval(e.in.Float32()))
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

// ReadValid reports whether an evaluated element can be read this step.
func (e *Engine) ReadValid() bool {
	return e.hasOut
}

// Read consumes the evaluated element. After the expected count the engine
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

func (e *Engine) eval(x float32) float32 {
	switch e.fn {
	case ReLU:
		if x < 0 {
			return 0
		}
		return x
	case Sigmoid:
		// 1 / (1 + e^-x) with the series-approximated exponential.
		return float32(1 / (1 + expSeries(-float64(x), e.terms)))
	case Tanh:
		ex := expSeries(float64(x), e.terms)
		enx := expSeries(-float64(x), e.terms)
		return float32((ex - enx) / (ex + enx))
	}
	return x
}

// expSeries sums the truncated Maclaurin series of e^x. The argument is
// clamped to keep the truncated sum inside float range.
func expSeries(x float64, terms int) float64 {
	if x > 8 {
		x = 8
	} else if x < -8 {
		x = -8
	}
	sum, term := 1.0, 1.0
	for k := 1; k < terms; k++ {
		term *= x / float64(k)
		sum += term
	}
	return sum
}
