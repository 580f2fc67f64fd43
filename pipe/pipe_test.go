package pipe_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/sienna"
	"github.com/pipelined/sienna/mock"
	"github.com/pipelined/sienna/pipe"
)

// fullWalk is the phase walk of one clean pass, including the return to
// idle after the start handshake.
var fullWalk = []string{
	"idle -> matmul/run",
	"matmul/run -> matmul/drain",
	"matmul/drain -> activation/feed",
	"activation/feed -> activation/drain",
	"activation/drain -> store/fill",
	"store/fill -> maxpool/run",
	"maxpool/run -> maxpool/drain",
	"maxpool/drain -> dropout/feed",
	"dropout/feed -> complete",
	"complete -> idle",
}

func testConfig(n int) pipe.Config {
	return pipe.Config{
		N:          n,
		PoolWindow: 1,
		PoolStride: 1,
	}
}

func floats(elements []sienna.Element) []float32 {
	out := make([]float32, len(elements))
	for i, e := range elements {
		out[i] = e.Float32()
	}
	return out
}

func double(v sienna.Element) sienna.Element {
	return sienna.FromFloat32(2 * v.Float32())
}

func newMocks(n int) (*mock.Producer, *mock.Processor, *mock.Pool, *mock.Processor) {
	script := make([]sienna.Element, n*n)
	for i := range script {
		script[i] = sienna.FromFloat32(float32(i + 1))
	}
	return &mock.Producer{Script: script, Latency: 1},
		&mock.Processor{Transform: double, Limit: n * n},
		&mock.Pool{Latency: 1},
		&mock.Processor{Limit: n * n}
}

func assertTrace(t *testing.T, expected, actual []string) {
	t.Helper()
	if reflect.DeepEqual(expected, actual) {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(expected, "\n")),
		B:        difflib.SplitLines(strings.Join(actual, "\n")),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	require.NoError(t, err)
	t.Fatalf("phase trace mismatch:\n%v", diff)
}

func TestFullPass(t *testing.T) {
	a, b, c, d := newMocks(2)
	p, err := pipe.New(testConfig(2), a, b, c, d, pipe.WithName("mocked"), pipe.WithTrace())
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	// the activation mock doubled every matrix word, the unity-window pool
	// preserved arrival order and the dropout mock passed through.
	assert.Equal(t, []float32{2, 4, 6, 8}, floats(result))
	assertTrace(t, fullWalk, p.Trace())
	assert.True(t, p.Idle())

	// every buffer fully drained: conservation across all transfers.
	q1, q2, q3 := p.QueueLevels()
	assert.Equal(t, 0, q1)
	assert.Equal(t, 0, q2)
	assert.Equal(t, 0, q3)
	assert.Equal(t, 4, p.StoreFilled())

	// each stage was pulsed exactly once.
	for _, starts := range []int{startsOf(a), startsOf(b), startsOf(c), startsOf(d)} {
		assert.Equal(t, 1, starts)
	}
}

type startCounter interface {
	Count() (int, int, int)
}

func startsOf(s startCounter) int {
	starts, _, _ := s.Count()
	return starts
}

// Re-asserting start only after the handshake produces a second clean pass
// with counters reset to zero.
func TestSecondPass(t *testing.T) {
	a, b, c, d := newMocks(2)
	p, err := pipe.New(testConfig(2), a, b, c, d, pipe.WithTrace())
	require.NoError(t, err)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	firstSteps := p.Steps()

	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstSteps, p.Steps())
	assertTrace(t, append(append([]string{}, fullWalk...), fullWalk...), p.Trace())
	assert.Equal(t, 2, startsOf(a))
}

// The element moved during every phase equals the phase's declared target:
// the conservation law, observed through the metric.
func TestMetricConservation(t *testing.T) {
	a, b, c, d := newMocks(2)
	p, err := pipe.New(testConfig(2), a, b, c, d)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	m := p.Metric()
	assert.Equal(t, int64(4), m.Measures["matmul/drain"].Elements())
	assert.Equal(t, int64(4), m.Measures["store/fill"].Elements())
	assert.Equal(t, int64(4), m.Measures["maxpool/drain"].Elements())
	// feed phases move both into and out of the stage.
	fed := m.Measures["activation/feed"].Elements() + m.Measures["activation/drain"].Elements()
	assert.Equal(t, int64(8), fed)
}

// A producer that goes idle short of the declared target count is reported
// as a stall naming the phase, not silently waited on.
func TestUpstreamStall(t *testing.T) {
	a, b, c, d := newMocks(2)
	a.CutShort = 2
	p, err := pipe.New(testConfig(2), a, b, c, d)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var stall *pipe.StallError
	require.True(t, errors.As(err, &stall))
	assert.Equal(t, "matmul/drain", stall.Phase)

	// the fault is sticky until reset.
	assert.Equal(t, err, p.Step())
	p.Reset()
	assert.NoError(t, p.Step())
	assert.True(t, p.Idle())
}

// The watchdog distinguishes a stalled-but-busy stage from a protocol
// fault: a pool that never delivers trips the step bound.
func TestWatchdog(t *testing.T) {
	a, b, c, d := newMocks(2)
	c.Latency = 1 << 20
	cfg := testConfig(2)
	cfg.Watchdog = 64
	p, err := pipe.New(cfg, a, b, c, d)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var stall *pipe.StallError
	require.True(t, errors.As(err, &stall))
	assert.Equal(t, "maxpool/run", stall.Phase)
	assert.Equal(t, 65, stall.Steps)
}

// Starting on empty operand sources is refused before the matrix stage is
// pulsed.
func TestUnloadedOperands(t *testing.T) {
	a, b, c, d := newMocks(2)
	a.Unloaded = true
	p, err := pipe.New(testConfig(2), a, b, c, d)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var cfgErr *pipe.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "operands", cfgErr.Field)
	assert.Equal(t, 0, startsOf(a))
}

func TestRunWhileBusy(t *testing.T) {
	a, b, c, d := newMocks(2)
	p, err := pipe.New(testConfig(2), a, b, c, d)
	require.NoError(t, err)

	p.SetStart(true)
	require.NoError(t, p.Step())
	require.False(t, p.Idle())

	_, err = p.Run(context.Background())
	assert.Equal(t, pipe.ErrInvalidState, err)
}

func TestCancelledContext(t *testing.T) {
	a, b, c, d := newMocks(2)
	p, err := pipe.New(testConfig(2), a, b, c, d)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	assert.Equal(t, context.Canceled, err)

	// a cancelled run leaves the pipe resettable.
	p.Reset()
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result, 4)
}

// Resetting twice yields the same empty state as once.
func TestResetIdempotent(t *testing.T) {
	a, b, c, d := newMocks(2)
	p, err := pipe.New(testConfig(2), a, b, c, d)
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p.Reset()
		assert.True(t, p.Idle())
		assert.False(t, p.Busy())
		assert.False(t, p.Done())
		assert.NoError(t, p.Err())
		assert.Empty(t, p.Result())
		assert.Equal(t, 0, p.Steps())
		q1, q2, q3 := p.QueueLevels()
		assert.Equal(t, 0, q1+q2+q3)
		assert.Equal(t, 0, p.StoreFilled())
		assert.Empty(t, p.Trace())
	}
}

func TestConfigRejected(t *testing.T) {
	a, b, c, d := newMocks(2)
	cfg := testConfig(2)
	cfg.QueueCap = 2 // cannot hold a 4-element barrier set
	_, err := pipe.New(cfg, a, b, c, d)
	var cfgErr *pipe.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "queueCap", cfgErr.Field)
}
