// Package run executes a pipeline pass asynchronously on behalf of a host.
// The controller itself stays synchronous; this harness only drives it on a
// dedicated goroutine and exposes the outcome through a channel.
package run

import (
	"context"

	"github.com/pipelined/sienna"
	"github.com/pipelined/sienna/pipe"
)

// Run executes one pipeline pass asynchronously.
type Run struct {
	cancelFn  context.CancelFunc
	errorChan chan error
	result    []sienna.Element
}

// New creates and starts a new pass over the pipe. The context is observed
// between sequencer steps only, so cancellation never interrupts a step and
// leaves the pipe resettable.
func New(ctx context.Context, p *pipe.Pipe) *Run {
	ctx, cancelFn := context.WithCancel(ctx)
	r := &Run{
		cancelFn:  cancelFn,
		errorChan: make(chan error, 1),
	}
	go func() {
		defer close(r.errorChan)
		result, err := p.Run(ctx)
		if err != nil {
			r.errorChan <- err
			return
		}
		r.result = result
	}()
	return r
}

// Await blocks until the pass is done and returns the first error occurred
// during the run.
func (r *Run) Await() error {
	for err := range r.errorChan {
		if err != nil {
			r.cancelFn()
			return err
		}
	}
	r.cancelFn()
	return nil
}

// Result returns the final result sequence. Valid only after Await reported
// success.
func (r *Run) Result() []sienna.Element {
	return r.result
}

// Cancel interrupts the pass between steps. Await reports the cancellation.
func (r *Run) Cancel() {
	r.cancelFn()
}
