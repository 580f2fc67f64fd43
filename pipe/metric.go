package pipe

import (
	"fmt"
)

type (
	// Metric represents stats of a single activation.
	Metric struct {
		Measures map[string]*Counter
	}

	// Counter can be used to measure passthrough of a single phase.
	Counter struct {
		steps    int64
		elements int64
	}
)

// newMetric creates new metric with a counter per phase.
func newMetric(phases ...string) *Metric {
	m := &Metric{
		Measures: make(map[string]*Counter),
	}
	for _, phase := range phases {
		m.Measures[phase] = &Counter{}
	}
	return m
}

// String returns string representation of Metric.
func (m *Metric) String() string {
	return fmt.Sprintf("Measures: %v", m.Measures)
}

// counter returns the counter for a phase, creating it if needed.
func (m *Metric) counter(phase string) *Counter {
	c, ok := m.Measures[phase]
	if !ok {
		c = &Counter{}
		m.Measures[phase] = c
	}
	return c
}

// Advance counter's metrics by one step and the elements moved during it.
func (c *Counter) Advance(elements int) {
	c.steps++
	c.elements += int64(elements)
}

// Steps returns the number of steps spent in the phase.
func (c *Counter) Steps() int64 {
	return c.steps
}

// Elements returns the number of elements moved during the phase.
func (c *Counter) Elements() int64 {
	return c.elements
}

// Reset resets counter's metrics.
func (c *Counter) Reset() {
	c.steps, c.elements = 0, 0
}

// String returns string representation of Counter.
func (c *Counter) String() string {
	return fmt.Sprintf("steps: %v elements: %v", c.steps, c.elements)
}
