// Package maxpool provides the spatial pooling engine. It is bound to a
// staging store, walks the output windows on a start pulse and streams one
// max-reduction per window through a pull port.
package maxpool

import (
	"fmt"

	"github.com/pipelined/sienna"
	"github.com/pipelined/sienna/store"
)

// Engine max-reduces square windows over the bound store. Window addresses
// that fall outside the store extent contribute the padding value zero
// instead of being read, so no out-of-bounds access ever reaches the store.
type Engine struct {
	uid     string
	window  int
	stride  int
	padding int

	reader store.Reader[sienna.Element]

	pending bool
	busy    bool
	done    bool
	err     error

	outRows, outCols int
	next             int // linear index of the next window to reduce
	total            int
	hasOut           bool
	out              sienna.Element
	delivered        int
}

// New creates an engine with the given pooling geometry.
func New(window, stride, padding int) (*Engine, error) {
	if window < 1 {
		return nil, fmt.Errorf("maxpool window %d: must be positive", window)
	}
	if stride < 1 {
		return nil, fmt.Errorf("maxpool stride %d: must be positive", stride)
	}
	if padding < 0 {
		return nil, fmt.Errorf("maxpool padding %d: cannot be negative", padding)
	}
	return &Engine{
		uid:     sienna.NewUID(),
		window:  window,
		stride:  stride,
		padding: padding,
	}, nil
}

// Bind attaches the staging store the engine reads by window address.
func (e *Engine) Bind(r store.Reader[sienna.Element]) {
	e.reader = r
}

// ID returns the engine uid.
func (e *Engine) ID() string {
	return e.uid
}

// Start pulses the engine; the window walk begins on the next tick.
func (e *Engine) Start() {
	e.pending = true
}

// Busy reports whether windows remain to be reduced or drained.
func (e *Engine) Busy() bool {
	return e.busy
}

// Done reports whether all windows of the activation have been delivered.
func (e *Engine) Done() bool {
	return e.done
}

// Err returns the store fault that aborted the walk, if any.
func (e *Engine) Err() error {
	return e.err
}

// Tick advances the engine by one step, reducing at most one window.
func (e *Engine) Tick() {
	if e.pending {
		e.pending = false
		if e.reader == nil {
			e.busy = false
			return
		}
		rows, _ := e.reader.Extent()
		padded := rows + 2*e.padding
		e.outRows = (padded-e.window)/e.stride + 1
		e.outCols = e.outRows
		e.total = e.outRows * e.outCols
		e.next = 0
		e.delivered = 0
		e.hasOut = false
		e.done = false
		e.err = nil
		e.busy = true
	}
	if e.busy && !e.hasOut && e.next < e.total {
		v, err := e.reduce(e.next / e.outCols, e.next % e.outCols)
		if err != nil {
			// a hole in the staging store means the fill phase never
			// completed; the walk cannot continue.
			e.err = err
			e.busy = false
			return
		}
		e.out = v
		e.hasOut = true
		e.next++
	}
}

// ReadValid reports whether a reduced window can be read this step.
func (e *Engine) ReadValid() bool {
	return e.hasOut
}

// Read consumes the reduced window. After the last window the engine
// disarms and asserts done.
func (e *Engine) Read() sienna.Element {
	v := e.out
	e.hasOut = false
	e.delivered++
	if e.delivered == e.total {
		e.busy = false
		e.done = true
	}
	return v
}

// reduce max-reduces the window anchored at the given output coordinate.
// The padding value participates in the reduction exactly like a cell.
func (e *Engine) reduce(outRow, outCol int) (sienna.Element, error) {
	rows, cols := e.reader.Extent()
	max := float32(0)
	first := true
	for wr := 0; wr < e.window; wr++ {
		for wc := 0; wc < e.window; wc++ {
			row := outRow*e.stride + wr - e.padding
			col := outCol*e.stride + wc - e.padding
			var v float32
			if row < 0 || row >= rows || col < 0 || col >= cols {
				v = 0 // padding
			} else {
				cell, err := e.reader.At(row, col)
				if err != nil {
					return 0, err
				}
				v = cell.Float32()
			}
			if first || v > max {
				max = v
				first = false
			}
		}
	}
	return sienna.FromFloat32(max), nil
}
