package matmul

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/sienna"
)

// drain runs the engine until the full result set is read, with a step
// bound guarding against a stalled test.
func drain(t *testing.T, e *Engine, n int) []float32 {
	t.Helper()
	e.Start()
	out := make([]float32, 0, n)
	for steps := 0; len(out) < n; steps++ {
		require.True(t, steps < 10*n+10, "engine stalled")
		e.Tick()
		if e.ReadValid() {
			out = append(out, e.Read().Float32())
		}
	}
	assert.False(t, e.Busy())
	return out
}

func TestIdentity(t *testing.T) {
	e, err := New(2)
	require.NoError(t, err)
	require.NoError(t, e.LoadOperands(
		[]float32{1, 0, 0, 1},
		[]float32{1, 2, 3, 4},
	))
	assert.True(t, e.Loaded())

	out := drain(t, e, 4)
	assert.Equal(t, []float32{1, 2, 3, 4}, out)
}

func TestProduct(t *testing.T) {
	e, err := New(2)
	require.NoError(t, err)
	require.NoError(t, e.LoadOperands(
		[]float32{1, 2, 3, 4},
		[]float32{5, 6, 7, 8},
	))

	out := drain(t, e, 4)
	assert.Equal(t, []float32{19, 22, 43, 50}, out)
}

// The engine recomputes the same product on consecutive activations.
func TestRestart(t *testing.T) {
	e, err := New(2)
	require.NoError(t, err)
	require.NoError(t, e.LoadOperands(
		[]float32{1, 2, 3, 4},
		[]float32{1, 0, 0, 1},
	))

	first := drain(t, e, 4)
	second := drain(t, e, 4)
	assert.Equal(t, first, second)
}

func TestLatency(t *testing.T) {
	e, err := New(1, WithLatency(3))
	require.NoError(t, err)
	require.NoError(t, e.LoadOperands([]float32{2}, []float32{3}))

	e.Start()
	e.Tick()
	assert.True(t, e.Busy())
	assert.False(t, e.Done())
	e.Tick()
	assert.False(t, e.Done())
	e.Tick()
	assert.True(t, e.Done())
	require.True(t, e.ReadValid())
	assert.Equal(t, sienna.FromFloat32(6), e.Read())
	assert.False(t, e.Busy())
	assert.False(t, e.Done())
}

func TestLoadOperands(t *testing.T) {
	e, err := New(2)
	require.NoError(t, err)
	assert.False(t, e.Loaded())
	assert.Error(t, e.LoadOperands([]float32{1}, []float32{1, 2, 3, 4}))
	assert.False(t, e.Loaded())

	_, err = New(0)
	assert.Error(t, err)
}
