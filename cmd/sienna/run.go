package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"

	"github.com/pipelined/sienna/pipe"
	"github.com/pipelined/sienna/stage/activation"
	"github.com/pipelined/sienna/stage/dropout"
	"github.com/pipelined/sienna/stage/matmul"
	"github.com/pipelined/sienna/stage/maxpool"
)

// pipelineFlags are the stage parameters shared by the commands.
type pipelineFlags struct {
	n           int
	activation  string
	terms       int
	poolWindow  int
	poolStride  int
	poolPadding int
	dropout     float64
	train       bool
	seed        int64
	watchdog    int
}

func (f *pipelineFlags) register(flags *flag.FlagSet) {
	flags.IntVar(&f.n, "n", 4, "operand matrix dimension")
	flags.StringVar(&f.activation, "activation", "relu", "activation function: relu, sigmoid, tanh, none")
	flags.IntVar(&f.terms, "terms", 16, "series term count for sigmoid and tanh")
	flags.IntVar(&f.poolWindow, "pool-window", 2, "pooling window size")
	flags.IntVar(&f.poolStride, "pool-stride", 2, "pooling stride")
	flags.IntVar(&f.poolPadding, "pool-padding", 0, "pooling zero padding")
	flags.Float64Var(&f.dropout, "dropout", 0.5, "dropout probability")
	flags.BoolVar(&f.train, "train", false, "training mode: apply dropout mask and rescale")
	flags.Int64Var(&f.seed, "seed", 42, "operand generator seed")
	flags.IntVar(&f.watchdog, "watchdog", 0, "step bound per activation, 0 for default")
}

// build constructs the four engines and the controller, with operands drawn
// from the seeded generator in [-1, 1).
func (f *pipelineFlags) build() (*pipe.Pipe, []float32, []float32, error) {
	cfg := pipe.Config{
		N:           f.n,
		PoolWindow:  f.poolWindow,
		PoolStride:  f.poolStride,
		PoolPadding: f.poolPadding,
		Watchdog:    f.watchdog,
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	fn, err := activation.ParseFunc(f.activation)
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := matmul.New(f.n)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := activation.New(fn, f.terms, f.n*f.n)
	if err != nil {
		return nil, nil, nil, err
	}
	c, err := maxpool.New(f.poolWindow, f.poolStride, f.poolPadding)
	if err != nil {
		return nil, nil, nil, err
	}
	padded := f.n + 2*f.poolPadding
	outExtent := (padded-f.poolWindow)/f.poolStride + 1
	d, err := dropout.New(f.dropout, f.train, outExtent*outExtent, dropout.WithSeed(uint16(f.seed)))
	if err != nil {
		return nil, nil, nil, err
	}

	rnd := rand.New(rand.NewSource(f.seed))
	opA := randomMatrix(rnd, f.n)
	opB := randomMatrix(rnd, f.n)
	if err := a.LoadOperands(opA, opB); err != nil {
		return nil, nil, nil, err
	}

	p, err := pipe.New(cfg, a, b, c, d, pipe.WithName("sienna"))
	if err != nil {
		return nil, nil, nil, err
	}
	return p, opA, opB, nil
}

func randomMatrix(rnd *rand.Rand, n int) []float32 {
	m := make([]float32, n*n)
	for i := range m {
		m[i] = rnd.Float32()*2 - 1
	}
	return m
}

// runCommand executes one pipeline pass and prints the result words.
type runCommand struct {
	pipelineFlags
}

func (cmd *runCommand) Name() string { return "run" }

func (cmd *runCommand) Help() string {
	return "execute one pipeline pass and print the result words as hex"
}

func (cmd *runCommand) Register(flags *flag.FlagSet) {
	cmd.pipelineFlags.register(flags)
}

func (cmd *runCommand) Run() error {
	p, _, _, err := cmd.build()
	if err != nil {
		return err
	}
	result, err := p.Run(context.Background())
	if err != nil {
		return err
	}
	for _, e := range result {
		fmt.Printf("%v  % .6f\n", e.Hex(), e.Float32())
	}
	fmt.Printf("pass complete: %d words in %d steps\n", len(result), p.Steps())
	return nil
}
