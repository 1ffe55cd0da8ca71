// Package layer provides the fully connected layer and its backward pass.
package layer

import (
	"fmt"
	"math/rand"

	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/matrix"
)

// Dense is a fully connected layer: A = act(input·W + b).
//
// Weights have shape [in, out] and biases [1, out].
type Dense struct {
	weights *matrix.Matrix
	biases  *matrix.Matrix
	act     activations.Activation
	inSize  int
	outSize int
}

// Cache holds the values of one forward call that the backward pass needs.
// It belongs to the caller; the layer keeps no per-call state.
type Cache struct {
	Input *matrix.Matrix // 1×in
	Z     *matrix.Matrix // pre-activation, 1×out
	A     *matrix.Matrix // activation, 1×out
}

// Gradients are the parameter gradients of one layer.
type Gradients struct {
	Weights *matrix.Matrix // in×out
	Biases  *matrix.Matrix // 1×out
}

// NewDense creates a layer with in inputs and out outputs.
//
// ReLU layers use He initialisation, every other activation uses Xavier.
// Biases start at zero. A nil rng uses the math/rand global source.
func NewDense(in, out int, act activations.Activation, rng *rand.Rand) *Dense {
	var w *matrix.Matrix
	if act == activations.ReLU {
		w = matrix.He(out, in, rng).T()
	} else {
		w = matrix.Xavier(out, in, rng).T()
	}
	return &Dense{
		weights: w,
		biases:  matrix.Zeros(1, out),
		act:     act,
		inSize:  in,
		outSize: out,
	}
}

// FromParams creates a layer with the given weights (in×out) and biases (1×out).
func FromParams(weights, biases *matrix.Matrix, act activations.Activation) (*Dense, error) {
	in, out := weights.Dims()
	if r, c := biases.Dims(); r != 1 || c != out {
		return nil, fmt.Errorf("%w: biases %dx%d for weights %dx%d", matrix.ErrShapeMismatch, r, c, in, out)
	}
	if !act.Valid() {
		return nil, fmt.Errorf("invalid activation %v", act)
	}
	return &Dense{
		weights: weights,
		biases:  biases,
		act:     act,
		inSize:  in,
		outSize: out,
	}, nil
}

// FeedFrom runs the forward pass on one input row.
// It returns the activation and the cache to hand to ComputeGradients.
func (d *Dense) FeedFrom(input []float64) ([]float64, *Cache, error) {
	if len(input) != d.inSize {
		return nil, nil, fmt.Errorf("%w: input has %d values, layer expects %d", matrix.ErrShapeMismatch, len(input), d.inSize)
	}
	x := matrix.Row(input)
	xw, err := x.Mul(d.weights)
	if err != nil {
		return nil, nil, err
	}
	z, err := xw.Add(d.biases)
	if err != nil {
		return nil, nil, err
	}
	a := d.act.Activate(z)
	return a.RowAt(0), &Cache{Input: x, Z: z, A: a}, nil
}

// ComputeGradients runs the backward pass.
//
// deltaAbove is dL/dA for this layer (1×out) and c is the cache of the
// matching FeedFrom call. It returns the parameter gradients and dL/dA of the
// layer below (1×in).
func (d *Dense) ComputeGradients(deltaAbove *matrix.Matrix, c *Cache) (*Gradients, *matrix.Matrix, error) {
	if r, cols := deltaAbove.Dims(); r != 1 || cols != d.outSize {
		return nil, nil, fmt.Errorf("%w: delta %dx%d, layer output is 1x%d", matrix.ErrShapeMismatch, r, cols, d.outSize)
	}
	if c == nil || c.Input.Cols() != d.inSize || c.Z.Cols() != d.outSize {
		return nil, nil, fmt.Errorf("%w: cache does not belong to a %dx%d layer", matrix.ErrShapeMismatch, d.inSize, d.outSize)
	}

	// localDelta = dL/dZ; identity for Softmax, see activations.RequiresFusedLoss.
	localDelta, err := deltaAbove.Hadamard(d.act.Derivative(c.Z))
	if err != nil {
		return nil, nil, err
	}
	gradW, err := c.Input.T().Mul(localDelta)
	if err != nil {
		return nil, nil, err
	}
	below, err := localDelta.Mul(d.weights.T())
	if err != nil {
		return nil, nil, err
	}
	return &Gradients{Weights: gradW, Biases: localDelta}, below, nil
}

// ApplyGradients sets W -= lr·gradW and b -= lr·gradB.
// Shapes are checked before either parameter changes.
func (d *Dense) ApplyGradients(g *Gradients, lr float64) error {
	w, err := d.weights.Sub(g.Weights.Scale(lr))
	if err != nil {
		return err
	}
	b, err := d.biases.Sub(g.Biases.Scale(lr))
	if err != nil {
		return err
	}
	d.weights, d.biases = w, b
	return nil
}

// Weights returns the weight matrix (in×out).
func (d *Dense) Weights() *matrix.Matrix {
	return d.weights
}

// Biases returns the bias row (1×out).
func (d *Dense) Biases() *matrix.Matrix {
	return d.biases
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int {
	return d.inSize
}

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int {
	return d.outSize
}

// Activation returns the activation function used by this layer.
func (d *Dense) Activation() activations.Activation {
	return d.act
}

// ParamCount returns the number of trainable parameters.
func (d *Dense) ParamCount() int {
	return d.inSize*d.outSize + d.outSize
}

// ZeroGradients returns zero gradients shaped like d's parameters.
func (d *Dense) ZeroGradients() *Gradients {
	return &Gradients{
		Weights: matrix.Zeros(d.inSize, d.outSize),
		Biases:  matrix.Zeros(1, d.outSize),
	}
}

// Add returns g + o.
func (g *Gradients) Add(o *Gradients) (*Gradients, error) {
	w, err := g.Weights.Add(o.Weights)
	if err != nil {
		return nil, err
	}
	b, err := g.Biases.Add(o.Biases)
	if err != nil {
		return nil, err
	}
	return &Gradients{Weights: w, Biases: b}, nil
}

// Scale returns f·g.
func (g *Gradients) Scale(f float64) *Gradients {
	return &Gradients{Weights: g.Weights.Scale(f), Biases: g.Biases.Scale(f)}
}
