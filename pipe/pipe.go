// Package pipe implements the pipeline orchestration engine: a synchronous
// controller that sequences four compute stages through bounded queues and
// an addressable staging store.
package pipe

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/pipelined/sienna"
	"github.com/pipelined/sienna/log"
	"github.com/pipelined/sienna/queue"
	"github.com/pipelined/sienna/store"
)

// Producer is a stage that computes a result set on start and streams it
// out through a pull port. The matrix-multiply engine is a producer.
type Producer interface {
	sienna.Stage
	sienna.Source
}

// Processor is a stage that consumes one element per step through a push
// port and emits results through a pull port. The activation and dropout
// engines are processors.
type Processor interface {
	sienna.Stage
	sienna.Sink
	sienna.Source
}

// WindowReader is a stage that consumes a staging store by 2-D window
// address and streams its reductions through a pull port. The pooling
// engine is a window reader.
type WindowReader interface {
	sienna.Stage
	sienna.Windowed
	sienna.Source
}

// Loader is implemented by producers that hold operand sets loaded before a
// pass. When the producer implements it, the controller refuses to start on
// empty operands.
type Loader interface {
	Loaded() bool
}

// Config declares the pipeline geometry. All element targets are derived
// from it: the matrix stage emits N*N words, the staging store extent is
// N*N, and the pooling stage emits one word per output window.
type Config struct {
	// N is the operand matrix dimension.
	N int
	// PoolWindow, PoolStride and PoolPadding define the pooling geometry.
	// Padding cells read as zero.
	PoolWindow  int
	PoolStride  int
	PoolPadding int
	// QueueCap is the capacity of every inter-stage queue. Zero selects the
	// smallest capacity that can hold a full barrier set.
	QueueCap int
	// Watchdog bounds the number of steps a single activation may take
	// before it is reported as stalled. Zero selects a generous default.
	Watchdog int
}

// matTarget is the element count produced by the matrix and activation
// stages and the staging store extent.
func (c Config) matTarget() int {
	return c.N * c.N
}

// poolExtent is the output dimension of the pooling stage.
func (c Config) poolExtent() int {
	padded := c.N + 2*c.PoolPadding
	return (padded-c.PoolWindow)/c.PoolStride + 1
}

// poolTarget is the element count produced by the pooling and dropout
// stages.
func (c Config) poolTarget() int {
	e := c.poolExtent()
	return e * e
}

// Validate rejects geometry that cannot produce a clean full pass. It runs
// before the pipeline may start; a structurally impossible transfer cannot
// be corrected by retrying.
func (c Config) Validate() error {
	if c.N < 1 {
		return &ConfigError{Field: "n", Reason: "matrix dimension must be positive"}
	}
	if c.PoolWindow < 1 {
		return &ConfigError{Field: "poolWindow", Reason: "window must be positive"}
	}
	if c.PoolStride < 1 {
		return &ConfigError{Field: "poolStride", Reason: "stride must be positive"}
	}
	if c.PoolPadding < 0 {
		return &ConfigError{Field: "poolPadding", Reason: "padding cannot be negative"}
	}
	if padded := c.N + 2*c.PoolPadding; c.PoolWindow > padded {
		return &ConfigError{Field: "poolWindow", Reason: fmt.Sprintf("window %d exceeds padded extent %d", c.PoolWindow, padded)}
	}
	if c.QueueCap < 0 {
		return &ConfigError{Field: "queueCap", Reason: "capacity cannot be negative"}
	}
	if c.QueueCap > 0 {
		if c.QueueCap < c.matTarget() {
			return &ConfigError{Field: "queueCap", Reason: fmt.Sprintf("capacity %d cannot hold %d matrix elements", c.QueueCap, c.matTarget())}
		}
		if c.QueueCap < c.poolTarget() {
			return &ConfigError{Field: "queueCap", Reason: fmt.Sprintf("capacity %d cannot hold %d pooled elements", c.QueueCap, c.poolTarget())}
		}
	}
	if c.Watchdog < 0 {
		return &ConfigError{Field: "watchdog", Reason: "step bound cannot be negative"}
	}
	return nil
}

// withDefaults fills zero-valued fields with derived defaults.
func (c Config) withDefaults() Config {
	if c.QueueCap == 0 {
		c.QueueCap = c.matTarget()
		if c.poolTarget() > c.QueueCap {
			c.QueueCap = c.poolTarget()
		}
	}
	if c.Watchdog == 0 {
		c.Watchdog = 64 + 8*(c.matTarget()+c.poolTarget())
	}
	return c
}

// Pipe is the pipeline controller. It exclusively owns the phase state, the
// transfer counters, the queues and the staging store; stages only touch
// the ports handed to them, so a single writer phase and a single reader
// phase exist per buffer at any time and no locking is required.
type Pipe struct {
	uid  string
	name string
	cfg  Config

	a Producer
	b Processor
	c WindowReader
	d Processor

	q1      *queue.Queue[sienna.Element]
	q2      *queue.Queue[sienna.Element]
	q3      *queue.Queue[sienna.Element]
	staging *store.Store[sienna.Element]

	phase  phase
	start  bool
	steps  int
	result []sienna.Element
	err    error

	metric  *Metric
	tracing bool
	trace   []string

	log log.Logger
}

// Option provides a way to set parameters to pipe.
type Option func(p *Pipe) error

// WithName sets name to Pipe.
func WithName(n string) Option {
	return func(p *Pipe) error {
		p.name = n
		return nil
	}
}

// WithLogger overrides the default logger.
func WithLogger(l log.Logger) Option {
	return func(p *Pipe) error {
		p.log = l
		return nil
	}
}

// WithTrace enables recording of phase transitions.
func WithTrace() Option {
	return func(p *Pipe) error {
		p.tracing = true
		return nil
	}
}

// New creates a new pipe over the four stages and applies provided options.
// The configuration is validated and the pooling stage is bound to the
// staging store. Returned pipe is idle.
func New(cfg Config, a Producer, b Processor, c WindowReader, d Processor, options ...Option) (*Pipe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	p := &Pipe{
		uid:    sienna.NewUID(),
		cfg:    cfg,
		a:      a,
		b:      b,
		c:      c,
		d:      d,
		phase:  idle,
		metric: newMetric(phaseNames...),
		log:    log.GetLogger(),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	var err error
	if p.q1, err = queue.New[sienna.Element](cfg.QueueCap); err != nil {
		return nil, err
	}
	if p.q2, err = queue.New[sienna.Element](cfg.QueueCap); err != nil {
		return nil, err
	}
	if p.q3, err = queue.New[sienna.Element](cfg.QueueCap); err != nil {
		return nil, err
	}
	if p.staging, err = store.New[sienna.Element](cfg.N, cfg.N); err != nil {
		return nil, err
	}
	p.c.Bind(p.staging)
	p.log.Debug(fmt.Sprintf("%v configured: %v", p, spew.Sdump(cfg)))
	return p, nil
}

// SetStart drives the external start level. The pipeline leaves idle on the
// next step while start is asserted and returns from complete to idle only
// after start is deasserted, so a single assertion cannot re-trigger a
// second pass.
func (p *Pipe) SetStart(level bool) {
	p.start = level
}

// Step advances the sequencer by one discrete step: every stage is ticked,
// then the occupied phase observes the resulting signals and moves at most
// one element per port. All mutation is committed before Step returns.
// Once a fault is reported, every subsequent Step returns the same fault
// until Reset.
func (p *Pipe) Step() error {
	if p.err != nil {
		return p.err
	}
	p.a.Tick()
	p.b.Tick()
	p.c.Tick()
	p.d.Tick()
	if p.active() {
		p.steps++
		if p.steps > p.cfg.Watchdog {
			return p.fail(&StallError{Phase: p.phase.String(), Steps: p.steps})
		}
	}
	next, moved, err := p.phase.step(p)
	if err != nil {
		return p.fail(err)
	}
	p.metric.counter(p.phase.String()).Advance(moved)
	if next != p.phase {
		if p.tracing {
			p.trace = append(p.trace, fmt.Sprintf("%v -> %v", p.phase, next))
		}
		p.log.Debug(fmt.Sprintf("%v: %v -> %v at step %d", p, p.phase, next, p.steps))
		p.phase = next
	}
	return nil
}

// Run drives the pipeline through one full pass: it asserts start, steps
// the sequencer until the pass completes, then deasserts start and returns
// the accumulated result. The context is only observed between steps; a
// cancelled run leaves the pipe resettable, never mid-step.
func (p *Pipe) Run(ctx context.Context) ([]sienna.Element, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.phase != idle {
		return nil, ErrInvalidState
	}
	p.SetStart(true)
	for {
		select {
		case <-ctx.Done():
			p.SetStart(false)
			return nil, ctx.Err()
		default:
		}
		if err := p.Step(); err != nil {
			return nil, err
		}
		if p.Done() {
			p.SetStart(false)
			if err := p.Step(); err != nil {
				return nil, err
			}
			p.log.Info(fmt.Sprintf("%v completed pass in %d steps", p, p.steps))
			return p.Result(), nil
		}
	}
}

// Reset clears all phase state, counters and buffer contents back to the
// initial empty condition. Resetting twice yields the same state as once.
func (p *Pipe) Reset() {
	p.q1.Reset()
	p.q2.Reset()
	p.q3.Reset()
	p.staging.Reset()
	p.phase = idle
	p.start = false
	p.steps = 0
	p.result = nil
	p.err = nil
	p.metric = newMetric(phaseNames...)
	p.trace = nil
}

// Phase returns the name of the occupied phase.
func (p *Pipe) Phase() string {
	return p.phase.String()
}

// Idle reports whether the pipeline is waiting for start.
func (p *Pipe) Idle() bool {
	return p.phase == idle
}

// Busy reports whether an activation is in flight.
func (p *Pipe) Busy() bool {
	return p.active()
}

// Done reports whether the pass has completed and awaits the start
// handshake.
func (p *Pipe) Done() bool {
	return p.phase == complete
}

// Err returns the fault that aborted the activation, if any.
func (p *Pipe) Err() error {
	return p.err
}

// Result returns a copy of the accumulated final result sequence.
func (p *Pipe) Result() []sienna.Element {
	out := make([]sienna.Element, len(p.result))
	copy(out, p.result)
	return out
}

// Steps returns the number of steps executed this activation.
func (p *Pipe) Steps() int {
	return p.steps
}

// QueueLevels returns the live element count of the three inter-stage
// queues.
func (p *Pipe) QueueLevels() (q1, q2, q3 int) {
	return p.q1.Len(), p.q2.Len(), p.q3.Len()
}

// StoreFilled returns the number of staging cells written this activation.
func (p *Pipe) StoreFilled() int {
	return p.staging.Filled()
}

// StagesBusy returns the busy level of each stage in pipeline order.
func (p *Pipe) StagesBusy() (a, b, c, d bool) {
	return p.a.Busy(), p.b.Busy(), p.c.Busy(), p.d.Busy()
}

// Metric returns per-phase step and element counters of the current
// activation.
func (p *Pipe) Metric() *Metric {
	return p.metric
}

// Trace returns recorded phase transitions when tracing is enabled.
func (p *Pipe) Trace() []string {
	out := make([]string, len(p.trace))
	copy(out, p.trace)
	return out
}

// active reports whether the occupied phase counts against the watchdog.
func (p *Pipe) active() bool {
	return p.phase != idle && p.phase != complete
}

// fail records the first fault of the activation.
func (p *Pipe) fail(err error) error {
	if p.err == nil {
		p.err = err
		p.log.Debug(fmt.Sprintf("%v faulted: %v", p, err))
	}
	return p.err
}

// String returns pipe's name if set, uid otherwise.
func (p *Pipe) String() string {
	if p.name == "" {
		return p.uid
	}
	return fmt.Sprintf("%v %v", p.name, p.uid)
}
