// Package net provides the feed-forward network type and its persistence.
package net

import (
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/layer"
	"github.com/ferrite-nn/ferrite/internal/loss"
	"github.com/ferrite-nn/ferrite/internal/matrix"
)

var (
	// ErrDimensionMismatch is returned when a layer's input size does not
	// match the previous layer's output size.
	ErrDimensionMismatch = errors.New("net: dimension mismatch")

	// ErrInvalidPairing is returned when an output activation and a loss
	// cannot be trained together.
	ErrInvalidPairing = errors.New("net: invalid activation/loss pairing")

	// ErrCorruptModel is returned when a persisted model fails validation.
	ErrCorruptModel = errors.New("net: corrupt model")

	// ErrIO is returned when a model cannot be read or written.
	ErrIO = errors.New("net: io failure")
)

// LayerSpec describes one dense layer.
type LayerSpec struct {
	Size       int                    `json:"size"`
	InputSize  int                    `json:"input_size"`
	Activation activations.Activation `json:"activation"`
}

// OutputKind tells an inference consumer how to present the network output.
type OutputKind string

const (
	OutputRaw          OutputKind = "raw"
	OutputProbability  OutputKind = "probability"
	OutputDistribution OutputKind = "distribution"
)

// Valid reports whether k is a known output kind.
func (k OutputKind) Valid() bool {
	switch k {
	case OutputRaw, OutputProbability, OutputDistribution:
		return true
	}
	return false
}

// Metadata is stored with a model to guide downstream presentation.
type Metadata struct {
	InputSize    int        `json:"input_size"`
	OutputKind   OutputKind `json:"output_kind"`
	Description  string     `json:"description,omitempty"`
	OutputLabels []string   `json:"output_labels,omitempty"`
}

// defaultOutputKind derives the presentation from the final layer.
func defaultOutputKind(last LayerSpec) OutputKind {
	switch {
	case last.Activation == activations.Softmax:
		return OutputDistribution
	case last.Activation == activations.Sigmoid && last.Size == 1:
		return OutputProbability
	}
	return OutputRaw
}

// Network is an ordered stack of dense layers.
//
// A Network is not safe for concurrent use. Training mutates it in place.
type Network struct {
	layers []*layer.Dense
	meta   Metadata
}

type options struct {
	rng          *rand.Rand
	outputKind   OutputKind
	description  string
	outputLabels []string
}

// Option configures New.
type Option func(*options)

// WithRand sets the source for weight initialisation.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithOutputKind overrides the output kind derived from the final layer.
func WithOutputKind(k OutputKind) Option {
	return func(o *options) { o.outputKind = k }
}

// WithDescription attaches a human-readable description.
func WithDescription(s string) Option {
	return func(o *options) { o.description = s }
}

// WithOutputLabels attaches one label per output unit.
func WithOutputLabels(labels ...string) Option {
	return func(o *options) { o.outputLabels = labels }
}

// New builds a network from layer specs, validated for training with lossKind.
func New(specs []LayerSpec, lossKind loss.Kind, opts ...Option) (*Network, error) {
	if err := validateChain(specs); err != nil {
		return nil, err
	}
	if err := CheckPairing(specs[len(specs)-1].Activation, lossKind); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	last := specs[len(specs)-1]
	if o.outputKind == "" {
		o.outputKind = defaultOutputKind(last)
	}
	if !o.outputKind.Valid() {
		return nil, fmt.Errorf("unknown output kind %q", o.outputKind)
	}
	if len(o.outputLabels) > 0 && len(o.outputLabels) != last.Size {
		return nil, fmt.Errorf("%w: %d output labels for %d outputs", ErrDimensionMismatch, len(o.outputLabels), last.Size)
	}

	layers := make([]*layer.Dense, len(specs))
	for i, s := range specs {
		layers[i] = layer.NewDense(s.InputSize, s.Size, s.Activation, o.rng)
	}
	return &Network{
		layers: layers,
		meta: Metadata{
			InputSize:    specs[0].InputSize,
			OutputKind:   o.outputKind,
			Description:  o.description,
			OutputLabels: o.outputLabels,
		},
	}, nil
}

// FromLayers assembles a network from existing layers.
// The output kind is derived from the final layer.
func FromLayers(layers []*layer.Dense) (*Network, error) {
	specs := make([]LayerSpec, len(layers))
	for i, l := range layers {
		specs[i] = LayerSpec{Size: l.OutSize(), InputSize: l.InSize(), Activation: l.Activation()}
	}
	if err := validateChain(specs); err != nil {
		return nil, err
	}
	return &Network{
		layers: layers,
		meta: Metadata{
			InputSize:  specs[0].InputSize,
			OutputKind: defaultOutputKind(specs[len(specs)-1]),
		},
	}, nil
}

func validateChain(specs []LayerSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("%w: network has no layers", ErrDimensionMismatch)
	}
	for i, s := range specs {
		if s.Size <= 0 || s.InputSize <= 0 {
			return fmt.Errorf("%w: layer %d has size %d and input size %d", ErrDimensionMismatch, i, s.Size, s.InputSize)
		}
		if !s.Activation.Valid() {
			return fmt.Errorf("layer %d: invalid activation %v", i, s.Activation)
		}
		if i > 0 && s.InputSize != specs[i-1].Size {
			return fmt.Errorf("%w: layer %d expects %d inputs, layer %d produces %d",
				ErrDimensionMismatch, i, s.InputSize, i-1, specs[i-1].Size)
		}
		if s.Activation.RequiresFusedLoss() && i != len(specs)-1 {
			return fmt.Errorf("%w: %v is only allowed on the output layer", ErrInvalidPairing, s.Activation)
		}
	}
	return nil
}

// CheckPairing reports whether an output activation can be trained with k.
// Softmax and cross-entropy require each other.
func CheckPairing(output activations.Activation, k loss.Kind) error {
	if output.RequiresFusedLoss() != (k == loss.KindCrossEntropy) {
		return fmt.Errorf("%w: %v output with %v loss", ErrInvalidPairing, output, k)
	}
	return nil
}

// Forward runs input through every layer and returns the final output.
func (n *Network) Forward(input []float64) ([]float64, error) {
	out, _, err := n.Trace(input)
	return out, err
}

// Trace runs a forward pass and also returns each layer's cache for Backward.
func (n *Network) Trace(input []float64) ([]float64, []*layer.Cache, error) {
	if len(input) != n.meta.InputSize {
		return nil, nil, fmt.Errorf("%w: input has %d values, network expects %d", matrix.ErrShapeMismatch, len(input), n.meta.InputSize)
	}
	caches := make([]*layer.Cache, len(n.layers))
	curr := input
	for i, l := range n.layers {
		var err error
		curr, caches[i], err = l.FeedFrom(curr)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return curr, caches, nil
}

// Backward propagates outputGrad (dL/dA of the final layer) back through the
// layers using the caches of one Trace call. It returns one gradient per layer.
func (n *Network) Backward(caches []*layer.Cache, outputGrad []float64) ([]*layer.Gradients, error) {
	if len(caches) != len(n.layers) {
		return nil, fmt.Errorf("%w: %d caches for %d layers", matrix.ErrShapeMismatch, len(caches), len(n.layers))
	}
	if len(outputGrad) != n.OutputSize() {
		return nil, fmt.Errorf("%w: output gradient has %d values, network produces %d", matrix.ErrShapeMismatch, len(outputGrad), n.OutputSize())
	}
	grads := make([]*layer.Gradients, len(n.layers))
	delta := matrix.Row(outputGrad)
	for i := len(n.layers) - 1; i >= 0; i-- {
		g, below, err := n.layers[i].ComputeGradients(delta, caches[i])
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		grads[i] = g
		delta = below
	}
	return grads, nil
}

// Layers returns the network's layers in forward order.
func (n *Network) Layers() []*layer.Dense {
	return n.layers
}

// Metadata returns the presentation metadata.
func (n *Network) Metadata() Metadata {
	return n.meta
}

// InputSize returns the expected input width.
func (n *Network) InputSize() int {
	return n.meta.InputSize
}

// OutputSize returns the width of the final layer.
func (n *Network) OutputSize() int {
	return n.layers[len(n.layers)-1].OutSize()
}

// OutputActivation returns the final layer's activation.
func (n *Network) OutputActivation() activations.Activation {
	return n.layers[len(n.layers)-1].Activation()
}

// Specs returns the layer specs the network was built from.
func (n *Network) Specs() []LayerSpec {
	specs := make([]LayerSpec, len(n.layers))
	for i, l := range n.layers {
		specs[i] = LayerSpec{Size: l.OutSize(), InputSize: l.InSize(), Activation: l.Activation()}
	}
	return specs
}

// ParamCount returns the total number of trainable parameters.
func (n *Network) ParamCount() int {
	total := 0
	for _, l := range n.layers {
		total += l.ParamCount()
	}
	return total
}

// Summary writes a table of the network architecture to w.
func (n *Network) Summary(w io.Writer) {
	fmt.Fprintln(w, "_________________________________________________________________")
	fmt.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	fmt.Fprintln(w, "=================================================================")
	for i, l := range n.layers {
		fmt.Fprintf(w, "%-25s %-20s %-10d\n",
			fmt.Sprintf("dense_%d (%v)", i, l.Activation()),
			fmt.Sprintf("(%d)", l.OutSize()),
			l.ParamCount())
	}
	fmt.Fprintln(w, "=================================================================")
	fmt.Fprintf(w, "Input width: %d\n", n.meta.InputSize)
	fmt.Fprintf(w, "Output kind: %s\n", n.meta.OutputKind)
	fmt.Fprintf(w, "Total params: %d\n", n.ParamCount())
	fmt.Fprintln(w, "_________________________________________________________________")
}
