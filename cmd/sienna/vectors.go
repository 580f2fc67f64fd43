package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pipelined/sienna"
)

// vectorsCommand executes one pass and writes the operand and result
// vectors as hex files, one 8-character big-endian word per line.
type vectorsCommand struct {
	pipelineFlags
	out string
}

func (cmd *vectorsCommand) Name() string { return "vectors" }

func (cmd *vectorsCommand) Help() string {
	return "execute one pipeline pass and write operand and result vector files"
}

func (cmd *vectorsCommand) Register(flags *flag.FlagSet) {
	cmd.pipelineFlags.register(flags)
	flags.StringVar(&cmd.out, "out", "testbenches", "output directory for vector files")
}

func (cmd *vectorsCommand) Run() error {
	p, opA, opB, err := cmd.build()
	if err != nil {
		return err
	}
	result, err := p.Run(context.Background())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cmd.out, 0o755); err != nil {
		return err
	}
	if err := writeFloatVector(filepath.Join(cmd.out, "input_a.hex"), opA); err != nil {
		return err
	}
	if err := writeFloatVector(filepath.Join(cmd.out, "input_b.hex"), opB); err != nil {
		return err
	}
	if err := writeVector(filepath.Join(cmd.out, "expected_output.hex"), result); err != nil {
		return err
	}
	fmt.Printf("wrote %d result words to %v\n", len(result), cmd.out)
	return nil
}

func writeFloatVector(path string, values []float32) error {
	words := make([]sienna.Element, len(values))
	for i, v := range values {
		words[i] = sienna.FromFloat32(v)
	}
	return writeVector(path, words)
}

func writeVector(path string, words []sienna.Element) error {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(w.Hex())
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
