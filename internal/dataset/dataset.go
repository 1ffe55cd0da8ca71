// Package dataset holds fixed-width (input, expected output) row pairs.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrInvalid is returned when a dataset is empty or its rows are not fixed width.
var ErrInvalid = errors.New("dataset: invalid")

// Set is an ordered collection of samples and their expected outputs.
type Set struct {
	Inputs [][]float64
	Labels [][]float64
}

// Len returns the number of samples.
func (s Set) Len() int {
	return len(s.Inputs)
}

// Validate checks that s is non-empty and every input has inWidth values and
// every label outWidth values.
func (s Set) Validate(inWidth, outWidth int) error {
	if len(s.Inputs) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalid)
	}
	if len(s.Inputs) != len(s.Labels) {
		return fmt.Errorf("%w: %d inputs but %d labels", ErrInvalid, len(s.Inputs), len(s.Labels))
	}
	for i := range s.Inputs {
		if len(s.Inputs[i]) != inWidth {
			return fmt.Errorf("%w: input %d has %d values, want %d", ErrInvalid, i, len(s.Inputs[i]), inWidth)
		}
		if len(s.Labels[i]) != outWidth {
			return fmt.Errorf("%w: label %d has %d values, want %d", ErrInvalid, i, len(s.Labels[i]), outWidth)
		}
	}
	return nil
}

// Split returns the first ratio of the samples and the rest.
// Both halves share the backing rows with s.
func (s Set) Split(ratio float64) (Set, Set) {
	if ratio <= 0 {
		return Set{}, s
	}
	if ratio >= 1 {
		return s, Set{}
	}
	idx := int(float64(len(s.Inputs)) * ratio)
	return Set{Inputs: s.Inputs[:idx], Labels: s.Labels[:idx]},
		Set{Inputs: s.Inputs[idx:], Labels: s.Labels[idx:]}
}

// Shuffled returns a copy of s with the sample order permuted by rng.
func (s Set) Shuffled(rng *rand.Rand) Set {
	out := Set{Inputs: make([][]float64, len(s.Inputs)), Labels: make([][]float64, len(s.Labels))}
	for i, j := range rng.Perm(len(s.Inputs)) {
		out.Inputs[i] = s.Inputs[j]
		out.Labels[i] = s.Labels[j]
	}
	return out
}

// OneHot returns a row of n zeros with a 1 at class.
func OneHot(class, n int) []float64 {
	row := make([]float64, n)
	row[class] = 1
	return row
}

// XOR returns the four-sample exclusive-or truth table.
func XOR() Set {
	return Set{
		Inputs: [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		Labels: [][]float64{{0}, {1}, {1}, {0}},
	}
}
