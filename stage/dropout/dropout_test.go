package dropout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/sienna"
)

func process(t *testing.T, e *Engine, in []float32) []float32 {
	t.Helper()
	e.Start()
	out := make([]float32, 0, len(in))
	fed := 0
	for steps := 0; len(out) < len(in); steps++ {
		require.True(t, steps < 10*len(in)+10, "engine stalled")
		e.Tick()
		if e.ReadValid() {
			out = append(out, e.Read().Float32())
		}
		if fed < len(in) && e.Ready() {
			e.Write(sienna.FromFloat32(in[fed]))
			fed++
		}
	}
	assert.True(t, e.Done())
	return out
}

// Inference mode passes elements through unchanged.
func TestInference(t *testing.T) {
	e, err := New(0.5, false, 4)
	require.NoError(t, err)
	in := []float32{1, -2, 3.5, 0}
	assert.Equal(t, in, process(t, e, in))
}

// Zero probability in training mode drops nothing and rescales by one.
func TestTrainingZeroProbability(t *testing.T) {
	e, err := New(0, true, 3)
	require.NoError(t, err)
	in := []float32{1, -2, 3.5}
	assert.Equal(t, in, process(t, e, in))
}

// A fixed seed yields the same drop mask on every activation.
func TestTrainingReproducible(t *testing.T) {
	e, err := New(0.5, true, 16, WithSeed(0xBEEF))
	require.NoError(t, err)
	in := make([]float32, 16)
	for i := range in {
		in[i] = 1
	}

	first := process(t, e, in)
	second := process(t, e, in)
	assert.Equal(t, first, second)

	// survivors are rescaled by 1/(1-p), dropped elements are zero.
	dropped := 0
	for _, v := range first {
		if v == 0 {
			dropped++
		} else {
			assert.InDelta(t, 2.0, v, 1e-4)
		}
	}
	assert.True(t, dropped > 0)
	assert.True(t, dropped < len(first))
}

// Different seeds yield different masks.
func TestSeeds(t *testing.T) {
	in := make([]float32, 16)
	for i := range in {
		in[i] = 1
	}
	a, err := New(0.5, true, 16, WithSeed(0xBEEF))
	require.NoError(t, err)
	b, err := New(0.5, true, 16, WithSeed(0x1234))
	require.NoError(t, err)
	assert.NotEqual(t, process(t, a, in), process(t, b, in))
}

func TestNewValidation(t *testing.T) {
	_, err := New(1, false, 4)
	assert.Error(t, err)
	_, err = New(-0.1, false, 4)
	assert.Error(t, err)
	_, err = New(0.5, false, 0)
	assert.Error(t, err)
}
