package pipe

import (
	"fmt"
)

// phase identifies one of the possible phases the controller can occupy.
// Each step the occupied phase observes stage and buffer signals and
// returns the next phase together with the number of elements it moved.
// A phase is left only when its completion predicate holds; predicates are
// counter or level based, never time based, so the walk is deterministic
// for deterministic stage latencies.
type phase interface {
	fmt.Stringer
	step(*Pipe) (phase, int, error)
}

// phases
type (
	idlePhase       struct{}
	runMatMul       struct{}
	drainMatMul     struct{}
	feedActivation  struct{}
	drainActivation struct{}
	fillStore       struct{}
	runPool         struct{}
	drainPool       struct{}
	feedDropout     struct{}
	completePhase   struct{}
)

// phase variables
var (
	idle      idlePhase       // waiting for external start.
	runA      runMatMul       // matrix stage computing.
	drainA    drainMatMul     // matrix results moving into queue 1.
	feedB     feedActivation  // queue 1 feeding activation, outputs collected.
	drainB    drainActivation // in-flight activation outputs moving into queue 2.
	fill      fillStore       // queue 2 bulk-copied into the staging store.
	runC      runPool         // pooling stage reading the store by window.
	drainC    drainPool       // pooled results moving into queue 3.
	feedD     feedDropout     // queue 3 feeding dropout, final result accumulated.
	complete  completePhase   // pass finished, awaiting start handshake.
	allPhases = []phase{idle, runA, drainA, feedB, drainB, fill, runC, drainC, feedD, complete}
)

// phaseNames keeps metric counters aligned with the phase graph.
var phaseNames = func() []string {
	names := make([]string, len(allPhases))
	for i, ph := range allPhases {
		names[i] = ph.String()
	}
	return names
}()

func (idlePhase) String() string       { return "idle" }
func (runMatMul) String() string       { return "matmul/run" }
func (drainMatMul) String() string     { return "matmul/drain" }
func (feedActivation) String() string  { return "activation/feed" }
func (drainActivation) String() string { return "activation/drain" }
func (fillStore) String() string       { return "store/fill" }
func (runPool) String() string         { return "maxpool/run" }
func (drainPool) String() string       { return "maxpool/drain" }
func (feedDropout) String() string     { return "dropout/feed" }
func (completePhase) String() string   { return "complete" }

// idle waits for the start level. Starting on empty operands is refused
// before the matrix stage is pulsed.
func (s idlePhase) step(p *Pipe) (phase, int, error) {
	if !p.start {
		return s, 0, nil
	}
	if ldr, ok := p.a.(Loader); ok && !ldr.Loaded() {
		return s, 0, &ConfigError{Field: "operands", Reason: "matrix input sources are empty"}
	}
	// queues and store are logically cleared at the start of each
	// activation; stale cells persist but are never re-read.
	p.q1.Reset()
	p.q2.Reset()
	p.q3.Reset()
	p.staging.Reset()
	p.steps = 0
	p.result = nil
	p.metric = newMetric(phaseNames...)
	p.a.Start()
	return runA, 0, nil
}

// runMatMul waits for the matrix stage to report a completed result set.
func (s runMatMul) step(p *Pipe) (phase, int, error) {
	if p.a.Done() {
		return drainA, 0, nil
	}
	if !p.a.Busy() {
		return s, 0, &StallError{Phase: s.String(), Steps: p.steps}
	}
	return s, 0, nil
}

// drainMatMul moves the matrix result set into queue 1, one element per
// step. The barrier holds until the entire set is resident.
func (s drainMatMul) step(p *Pipe) (phase, int, error) {
	moved := 0
	target := p.cfg.matTarget()
	if p.q1.Len() < target {
		switch {
		case p.a.ReadValid():
			if err := p.q1.Push(p.a.Read()); err != nil {
				return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 1", Op: "push", Err: err}
			}
			moved++
		case !p.a.Busy() && !p.a.Done():
			// upstream went idle short of the declared target count.
			return s, 0, &StallError{Phase: s.String(), Steps: p.steps}
		}
	}
	if p.q1.Len() == target {
		p.b.Start()
		return feedB, moved, nil
	}
	return s, moved, nil
}

// feedActivation interleaves draining queue 1 into the activation stage
// with collecting its outputs into queue 2. Completed elements are
// collected first so the stage can accept a new element the same step.
func (s feedActivation) step(p *Pipe) (phase, int, error) {
	moved := 0
	if p.b.ReadValid() {
		if err := p.q2.Push(p.b.Read()); err != nil {
			return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 2", Op: "push", Err: err}
		}
		moved++
	}
	if !p.q1.Empty() && p.b.Ready() {
		v, err := p.q1.Pop()
		if err != nil {
			return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 1", Op: "pop", Err: err}
		}
		p.b.Write(v)
		moved++
	}
	if p.q1.Empty() {
		return drainB, moved, nil
	}
	return s, moved, nil
}

// drainActivation collects the remaining in-flight activation outputs
// until the full set is resident in queue 2.
func (s drainActivation) step(p *Pipe) (phase, int, error) {
	moved := 0
	target := p.cfg.matTarget()
	if p.q2.Len() < target {
		switch {
		case p.b.ReadValid():
			if err := p.q2.Push(p.b.Read()); err != nil {
				return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 2", Op: "push", Err: err}
			}
			moved++
		case !p.b.Busy() && !p.b.Done():
			return s, 0, &StallError{Phase: s.String(), Steps: p.steps}
		}
	}
	if p.q2.Len() == target {
		return fill, moved, nil
	}
	return s, moved, nil
}

// fillStore bulk-copies queue 2 into the staging store in row-major
// arrival order, one cell per step. Every cell is written exactly once
// before the windowed-read phase begins.
func (s fillStore) step(p *Pipe) (phase, int, error) {
	moved := 0
	target := p.cfg.matTarget()
	if p.staging.Filled() < target {
		v, err := p.q2.Pop()
		if err != nil {
			return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 2", Op: "pop", Err: err}
		}
		if err := p.staging.Fill(p.staging.Filled(), v); err != nil {
			return s, 0, &ProtocolError{Phase: s.String(), Resource: "staging store", Op: "fill", Err: err}
		}
		moved++
	}
	if p.staging.Filled() == target {
		p.c.Start()
		return runC, moved, nil
	}
	return s, moved, nil
}

// runPool waits for the pooling stage to begin delivering windowed
// reductions.
func (s runPool) step(p *Pipe) (phase, int, error) {
	if p.c.Done() || p.c.ReadValid() {
		return drainC, 0, nil
	}
	if !p.c.Busy() {
		return s, 0, &StallError{Phase: s.String(), Steps: p.steps}
	}
	return s, 0, nil
}

// drainPool moves the pooled result set into queue 3, one element per step.
func (s drainPool) step(p *Pipe) (phase, int, error) {
	moved := 0
	target := p.cfg.poolTarget()
	if p.q3.Len() < target {
		switch {
		case p.c.ReadValid():
			if err := p.q3.Push(p.c.Read()); err != nil {
				return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 3", Op: "push", Err: err}
			}
			moved++
		case !p.c.Busy() && !p.c.Done():
			return s, 0, &StallError{Phase: s.String(), Steps: p.steps}
		}
	}
	if p.q3.Len() == target {
		p.d.Start()
		return feedD, moved, nil
	}
	return s, moved, nil
}

// feedDropout interleaves draining queue 3 into the dropout stage with
// accumulating its outputs as the final result sequence.
func (s feedDropout) step(p *Pipe) (phase, int, error) {
	moved := 0
	target := p.cfg.poolTarget()
	if p.d.ReadValid() {
		p.result = append(p.result, p.d.Read())
		moved++
	}
	if !p.q3.Empty() && p.d.Ready() {
		v, err := p.q3.Pop()
		if err != nil {
			return s, 0, &ProtocolError{Phase: s.String(), Resource: "queue 3", Op: "pop", Err: err}
		}
		p.d.Write(v)
		moved++
	}
	if len(p.result) == target {
		return complete, moved, nil
	}
	if p.q3.Empty() && !p.d.Busy() && !p.d.Done() {
		return s, moved, &StallError{Phase: s.String(), Steps: p.steps}
	}
	return s, moved, nil
}

// complete holds the result until the start level is deasserted; only then
// does the controller return to idle, so the same start pulse cannot
// trigger a second pass.
func (s completePhase) step(p *Pipe) (phase, int, error) {
	if !p.start {
		return idle, 0, nil
	}
	return s, 0, nil
}
