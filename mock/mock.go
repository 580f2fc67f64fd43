// Package mock provides scripted stage doubles for controller tests.
package mock

import (
	"github.com/pipelined/sienna"
	"github.com/pipelined/sienna/store"
)

// counter counts port activity.
// It is not thread-safe, so should not be checked while a pass is running.
type counter struct {
	starts int
	reads  int
	writes int
}

// advanceStart counts a start pulse.
func (c *counter) advanceStart() {
	c.starts++
}

// Count returns starts, reads and writes observed so far.
func (c *counter) Count() (starts, reads, writes int) {
	return c.starts, c.reads, c.writes
}

// Producer mocks a pipe.Producer: after a start pulse and Latency ticks it
// streams Script through the pull port.
type Producer struct {
	counter
	// Script is the result set streamed per activation.
	Script []sienna.Element
	// Latency is the tick count between start and the first valid read.
	Latency int
	// CutShort makes the producer go idle after that many reads, short of
	// the script. Zero disables the fault injection.
	CutShort int
	// Unloaded makes Loaded report false.
	Unloaded bool

	uid       string
	pending   bool
	busy      bool
	ready     bool
	countdown int
	pos       int
}

// ID returns the mock uid.
func (m *Producer) ID() string {
	if m.uid == "" {
		m.uid = sienna.NewUID()
	}
	return m.uid
}

// Loaded implements pipe.Loader.
func (m *Producer) Loaded() bool {
	return !m.Unloaded
}

// Start pulses the mock.
func (m *Producer) Start() {
	m.advanceStart()
	m.pending = true
}

// Busy reports whether the script is being computed or drained.
func (m *Producer) Busy() bool {
	return m.busy
}

// Done reports whether the script is ready to be drained.
func (m *Producer) Done() bool {
	return m.ready
}

// Tick advances the mock by one step.
func (m *Producer) Tick() {
	if m.pending {
		m.pending = false
		m.busy = true
		m.ready = false
		m.pos = 0
		m.countdown = m.Latency
	}
	if m.busy && !m.ready {
		m.countdown--
		if m.countdown <= 0 {
			m.ready = true
		}
	}
}

// ReadValid reports whether a script word can be read this step.
func (m *Producer) ReadValid() bool {
	return m.ready && m.pos < len(m.Script)
}

// Read returns the next script word.
func (m *Producer) Read() sienna.Element {
	v := m.Script[m.pos]
	m.pos++
	m.reads++
	if m.pos == len(m.Script) || (m.CutShort > 0 && m.reads >= m.CutShort) {
		m.busy = false
		m.ready = false
	}
	return v
}

// Processor mocks a pipe.Processor: one element in flight, one step of
// latency, Transform applied to every element.
type Processor struct {
	counter
	// Transform is applied to every element; nil passes through.
	Transform func(sienna.Element) sienna.Element
	// Limit is the expected element count per activation.
	Limit int

	uid       string
	pending   bool
	armed     bool
	hasIn     bool
	in        sienna.Element
	hasOut    bool
	out       sienna.Element
	delivered int
	done      bool
}

// ID returns the mock uid.
func (m *Processor) ID() string {
	if m.uid == "" {
		m.uid = sienna.NewUID()
	}
	return m.uid
}

// Start pulses the mock.
func (m *Processor) Start() {
	m.advanceStart()
	m.pending = true
}

// Busy reports whether the mock is armed.
func (m *Processor) Busy() bool {
	return m.armed
}

// Done reports whether the expected count has been delivered.
func (m *Processor) Done() bool {
	return m.done
}

// Tick advances the mock by one step.
func (m *Processor) Tick() {
	if m.pending {
		m.pending = false
		m.armed = true
		m.hasIn, m.hasOut = false, false
		m.delivered = 0
		m.done = false
	}
	if m.armed && m.hasIn && !m.hasOut {
		if m.Transform != nil {
			m.out = m.Transform(m.in)
		} else {
			m.out = m.in
		}
		m.hasIn = false
		m.hasOut = true
	}
}

// Ready reports whether an element can be written this step.
func (m *Processor) Ready() bool {
	return m.armed && !m.hasIn && !m.hasOut
}

// Write presents one element.
func (m *Processor) Write(v sienna.Element) {
	m.in = v
	m.hasIn = true
	m.writes++
}

// ReadValid reports whether a processed element can be read this step.
func (m *Processor) ReadValid() bool {
	return m.hasOut
}

// Read consumes the processed element.
func (m *Processor) Read() sienna.Element {
	v := m.out
	m.hasOut = false
	m.reads++
	m.delivered++
	if m.delivered == m.Limit {
		m.armed = false
		m.done = true
	}
	return v
}

// Pool mocks a pipe.WindowReader: after a start pulse and Latency ticks it
// streams every bound store cell in row-major order, i.e. a pooling pass
// with a unity window.
type Pool struct {
	counter
	// Latency is the tick count between start and the first valid read.
	Latency int

	uid       string
	reader    store.Reader[sienna.Element]
	pending   bool
	busy      bool
	ready     bool
	done      bool
	countdown int
	pos       int
	total     int
}

// ID returns the mock uid.
func (m *Pool) ID() string {
	if m.uid == "" {
		m.uid = sienna.NewUID()
	}
	return m.uid
}

// Bind implements sienna.Windowed.
func (m *Pool) Bind(r store.Reader[sienna.Element]) {
	m.reader = r
}

// Start pulses the mock.
func (m *Pool) Start() {
	m.advanceStart()
	m.pending = true
}

// Busy reports whether cells remain to stream.
func (m *Pool) Busy() bool {
	return m.busy
}

// Done reports whether every cell has been delivered.
func (m *Pool) Done() bool {
	return m.done
}

// Tick advances the mock by one step.
func (m *Pool) Tick() {
	if m.pending {
		m.pending = false
		rows, cols := m.reader.Extent()
		m.total = rows * cols
		m.pos = 0
		m.busy = true
		m.ready = false
		m.done = false
		m.countdown = m.Latency
	}
	if m.busy && !m.ready {
		m.countdown--
		if m.countdown <= 0 {
			m.ready = true
		}
	}
}

// ReadValid reports whether a cell can be read this step.
func (m *Pool) ReadValid() bool {
	return m.ready && m.pos < m.total
}

// Read returns the next cell in row-major order.
func (m *Pool) Read() sienna.Element {
	_, cols := m.reader.Extent()
	v, err := m.reader.At(m.pos/cols, m.pos%cols)
	if err != nil {
		// a hole in the store: go idle so the controller reports a stall.
		m.busy = false
		m.ready = false
		return 0
	}
	m.pos++
	m.reads++
	if m.pos == m.total {
		m.busy = false
		m.ready = false
		m.done = true
	}
	return v
}
