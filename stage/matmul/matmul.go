// Package matmul provides the matrix-multiply engine: it computes the
// product of two square operand matrices on a start pulse and streams the
// result set in row-major order through a pull port.
package matmul

import (
	"fmt"

	"github.com/pipelined/sienna"
)

// Engine multiplies two NxN float32 operand matrices. Operands are loaded
// before a pass and stay loaded, so consecutive activations recompute the
// same product unless new operands are loaded in between.
type Engine struct {
	uid     string
	n       int
	latency int

	a, b []float32
	out  []sienna.Element

	pending   bool // start pulse sampled, takes effect on next tick
	busy      bool
	countdown int // ticks left before the result set is ready
	ready     bool
	pos       int
}

// Option provides a way to set parameters to the engine.
type Option func(*Engine)

// WithLatency sets the number of ticks between the start pulse and the
// first valid result. Defaults to one tick.
func WithLatency(ticks int) Option {
	return func(e *Engine) {
		if ticks > 0 {
			e.latency = ticks
		}
	}
}

// New creates an engine for NxN operands.
func New(n int, options ...Option) (*Engine, error) {
	if n < 1 {
		return nil, fmt.Errorf("matmul dimension %d: must be positive", n)
	}
	e := &Engine{
		uid:     sienna.NewUID(),
		n:       n,
		latency: 1,
	}
	for _, option := range options {
		option(e)
	}
	return e, nil
}

// LoadOperands loads both row-major NxN operand matrices.
func (e *Engine) LoadOperands(a, b []float32) error {
	if len(a) != e.n*e.n || len(b) != e.n*e.n {
		return fmt.Errorf("matmul operands: want %d elements, got %d and %d", e.n*e.n, len(a), len(b))
	}
	e.a = append(e.a[:0], a...)
	e.b = append(e.b[:0], b...)
	return nil
}

// Loaded reports whether both operand sources are non-empty.
func (e *Engine) Loaded() bool {
	return len(e.a) > 0 && len(e.b) > 0
}

// ID returns the engine uid.
func (e *Engine) ID() string {
	return e.uid
}

// Start pulses the engine; it transitions to busy on the next tick.
func (e *Engine) Start() {
	e.pending = true
}

// Busy reports whether a product is being computed or drained.
func (e *Engine) Busy() bool {
	return e.busy
}

// Done reports whether the result set is ready to be drained.
func (e *Engine) Done() bool {
	return e.ready
}

// Tick advances the engine by one step.
func (e *Engine) Tick() {
	if e.pending {
		e.pending = false
		e.busy = true
		e.ready = false
		e.pos = 0
		e.countdown = e.latency
		e.compute()
	}
	if e.busy && !e.ready {
		e.countdown--
		if e.countdown <= 0 {
			e.ready = true
		}
	}
}

// ReadValid reports whether a result word can be read this step.
func (e *Engine) ReadValid() bool {
	return e.ready && e.pos < len(e.out)
}

// Read returns the next result word in row-major order. After the last
// word the engine returns to idle.
func (e *Engine) Read() sienna.Element {
	v := e.out[e.pos]
	e.pos++
	if e.pos == len(e.out) {
		e.busy = false
		e.ready = false
	}
	return v
}

func (e *Engine) compute() {
	n := e.n
	if cap(e.out) < n*n {
		e.out = make([]sienna.Element, n*n)
	}
	e.out = e.out[:n*n]
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum float32
			for k := 0; k < n; k++ {
				sum += e.a[r*n+k] * e.b[k*n+c]
			}
			e.out[r*n+c] = sienna.FromFloat32(sum)
		}
	}
}
