// Package store provides the addressable staging buffer that bridges a
// streaming producer to a windowed random-access consumer.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for an index outside the declared extent.
	// Windowed consumers must treat out-of-extent coordinates as padding
	// instead of reading them.
	ErrOutOfRange = errors.New("store index out of range")

	// ErrNotFilled is returned when reading a cell that was never written
	// during the current activation.
	ErrNotFilled = errors.New("store cell not filled")
)

// Reader is the read-only view handed to the windowed consumer.
type Reader[T any] interface {
	Extent() (rows, cols int)
	At(row, col int) (T, error)
}

// Store is a fixed-extent 2-D buffer filled in arrival order and read by
// explicit address. It provides no flow control of its own: the controller
// sequences fill-then-read and never interleaves them within an activation.
type Store[T any] struct {
	rows, cols int
	cells      []T
	filled     []bool
	fillCount  int
}

// New creates a store with the given extent. Both dimensions must be
// positive.
func New[T any](rows, cols int) (*Store[T], error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("store extent %dx%d: dimensions must be positive", rows, cols)
	}
	return &Store[T]{
		rows:   rows,
		cols:   cols,
		cells:  make([]T, rows*cols),
		filled: make([]bool, rows*cols),
	}, nil
}

// Extent returns the declared dimensions.
func (s *Store[T]) Extent() (rows, cols int) {
	return s.rows, s.cols
}

// Size returns the total cell count.
func (s *Store[T]) Size() int {
	return s.rows * s.cols
}

// Fill writes a value at a linear row-major index.
func (s *Store[T]) Fill(i int, v T) error {
	if i < 0 || i >= len(s.cells) {
		return ErrOutOfRange
	}
	if !s.filled[i] {
		s.filled[i] = true
		s.fillCount++
	}
	s.cells[i] = v
	return nil
}

// FillAt writes a value at a 2-D index.
func (s *Store[T]) FillAt(row, col int, v T) error {
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		return ErrOutOfRange
	}
	return s.Fill(row*s.cols+col, v)
}

// At reads the value at a 2-D index. Reading a cell never filled this
// activation fails with ErrNotFilled: it means the fill phase did not cover
// the extent, which is a sequencing defect, not a data error.
func (s *Store[T]) At(row, col int) (T, error) {
	var zero T
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		return zero, ErrOutOfRange
	}
	i := row*s.cols + col
	if !s.filled[i] {
		return zero, ErrNotFilled
	}
	return s.cells[i], nil
}

// Filled returns the number of distinct cells written this activation.
func (s *Store[T]) Filled() int {
	return s.fillCount
}

// Reset clears the fill map. Cell contents persist until overwritten but
// cannot be read back before being filled again.
func (s *Store[T]) Reset() {
	for i := range s.filled {
		s.filled[i] = false
	}
	s.fillCount = 0
}
