// Package activations provides the activation functions applied by dense layers.
package activations

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/ferrite-nn/ferrite/internal/matrix"
)

// Activation identifies a layer nonlinearity.
//
// Identity, Sigmoid and ReLU act element-wise. Softmax acts on each row.
type Activation int

const (
	Identity Activation = iota
	Sigmoid
	ReLU
	Softmax
)

var names = [...]string{
	Identity: "Identity",
	Sigmoid:  "Sigmoid",
	ReLU:     "ReLU",
	Softmax:  "Softmax",
}

// Valid reports whether a is one of the known activations.
func (a Activation) Valid() bool {
	return a >= Identity && a <= Softmax
}

func (a Activation) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Activation(%d)", int(a))
	}
	return names[a]
}

// Parse returns the activation named s. Matching ignores case.
func Parse(s string) (Activation, error) {
	for i, n := range names {
		if strings.EqualFold(n, s) {
			return Activation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown activation %q", s)
}

// MarshalText encodes a as its name.
func (a Activation) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid activation %d", int(a))
	}
	return []byte(names[a]), nil
}

// UnmarshalText decodes an activation name.
func (a *Activation) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// RequiresFusedLoss reports whether a only has a correct gradient when paired
// with a loss whose output gradient already includes the activation's Jacobian.
//
// Softmax's Derivative is the constant 1; the backward pass is only correct
// when the loss derivative is (predicted - expected) of cross-entropy.
func (a Activation) RequiresFusedLoss() bool {
	return a == Softmax
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Scalar computes f(x) for the element-wise activations.
// It panics for Softmax, which has no scalar form.
func (a Activation) Scalar(x float64) float64 {
	switch a {
	case Identity:
		return x
	case Sigmoid:
		return sigmoid(x)
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	}
	panic(fmt.Sprintf("activations: %v has no element-wise form", a))
}

// ScalarDerivative computes f'(x) against the pre-activation x.
// Softmax returns 1 (see RequiresFusedLoss).
func (a Activation) ScalarDerivative(x float64) float64 {
	switch a {
	case Sigmoid:
		s := sigmoid(x)
		return s * (1 - s)
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	}
	return 1
}

// Activate maps the pre-activation z to the activation.
func (a Activation) Activate(z *matrix.Matrix) *matrix.Matrix {
	if a == Softmax {
		return z.MapRows(SoftmaxRow)
	}
	return z.Map(a.Scalar)
}

// Derivative maps the pre-activation z to the local chain-rule factor.
func (a Activation) Derivative(z *matrix.Matrix) *matrix.Matrix {
	return z.Map(a.ScalarDerivative)
}

// SoftmaxRow writes softmax(src) into dst.
// The row max is subtracted before exponentiating so large logits stay finite.
func SoftmaxRow(dst, src []float64) {
	maxVal := floats.Max(src)
	for i, v := range src {
		dst[i] = math.Exp(v - maxVal)
	}
	floats.Scale(1/floats.Sum(dst), dst)
}
