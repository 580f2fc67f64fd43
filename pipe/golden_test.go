package pipe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/sienna/pipe"
	"github.com/pipelined/sienna/stage/activation"
	"github.com/pipelined/sienna/stage/dropout"
	"github.com/pipelined/sienna/stage/matmul"
	"github.com/pipelined/sienna/stage/maxpool"
)

func buildEngines(t *testing.T, cfg pipe.Config, fn activation.Func, opA, opB []float32) *pipe.Pipe {
	t.Helper()
	a, err := matmul.New(cfg.N)
	require.NoError(t, err)
	require.NoError(t, a.LoadOperands(opA, opB))
	b, err := activation.New(fn, 16, cfg.N*cfg.N)
	require.NoError(t, err)
	c, err := maxpool.New(cfg.PoolWindow, cfg.PoolStride, cfg.PoolPadding)
	require.NoError(t, err)
	padded := cfg.N + 2*cfg.PoolPadding
	outExtent := (padded-cfg.PoolWindow)/cfg.PoolStride + 1
	d, err := dropout.New(0.5, false, outExtent*outExtent)
	require.NoError(t, err)

	p, err := pipe.New(cfg, a, b, c, d, pipe.WithName("golden"))
	require.NoError(t, err)
	return p
}

// Identity times a known grid through relu, a padded 2x2/stride-2 pool and
// inference dropout: the expected words are computable by hand.
func TestGoldenPaddedPass(t *testing.T) {
	cfg := pipe.Config{N: 3, PoolWindow: 2, PoolStride: 2, PoolPadding: 1}
	identity := []float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
	grid := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	p := buildEngines(t, cfg, activation.ReLU, identity, grid)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 7, 9}, floats(result))
}

// Negative products are clipped by relu before pooling.
func TestGoldenReLUPass(t *testing.T) {
	cfg := pipe.Config{N: 2, PoolWindow: 2, PoolStride: 2}
	p := buildEngines(t, cfg, activation.ReLU,
		[]float32{1, -2, 3, 4},
		[]float32{2, 0, 1, -1},
	)

	// product is [[0, 2], [10, -4]], relu keeps [[0, 2], [10, 0]], the
	// single 2x2 window reduces to 10.
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float32{10}, floats(result))
}

// Consecutive activations over the same operands yield identical words.
func TestGoldenRepeatable(t *testing.T) {
	cfg := pipe.Config{N: 3, PoolWindow: 2, PoolStride: 2, PoolPadding: 1}
	identity := []float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
	grid := []float32{
		0.5, -1, 2,
		-3, 4, 0.25,
		8, -0.5, 1,
	}
	p := buildEngines(t, cfg, activation.Tanh, identity, grid)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
}
