package net

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/layer"
	"github.com/ferrite-nn/ferrite/internal/matrix"
)

// modelFile is the on-disk JSON layout.
type modelFile struct {
	Metadata Metadata    `json:"metadata"`
	Layers   []layerFile `json:"layers"`
}

type layerFile struct {
	InputSize  int                    `json:"input_size"`
	OutputSize int                    `json:"output_size"`
	Activation activations.Activation `json:"activation"`
	Weights    [][]float64            `json:"weights"`
	Biases     []float64              `json:"biases"`
}

// Save writes the network to filename as JSON.
//
// The file is written to a temporary sibling and renamed into place, so an
// existing model is never left half written.
func (n *Network) Save(filename string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create file: %w", ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if err := n.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close file: %w", ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %w", ErrIO, filename, err)
	}
	return nil
}

// Encode writes the network to w as indented JSON.
func (n *Network) Encode(w io.Writer) error {
	mf := modelFile{
		Metadata: n.meta,
		Layers:   make([]layerFile, len(n.layers)),
	}
	for i, l := range n.layers {
		mf.Layers[i] = layerFile{
			InputSize:  l.InSize(),
			OutputSize: l.OutSize(),
			Activation: l.Activation(),
			Weights:    l.Weights().ToRows(),
			Biases:     l.Biases().RowAt(0),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(mf); err != nil {
		return fmt.Errorf("%w: failed to encode model: %w", ErrIO, err)
	}
	return nil
}

// Load reads a network saved with Save.
func Load(filename string) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %w", ErrIO, err)
	}
	defer file.Close()

	return Decode(file)
}

// Decode reads a JSON model from r and validates every declared size against
// the data and the layer chain.
func Decode(r io.Reader) (*Network, error) {
	var mf modelFile
	if err := json.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptModel, err)
	}
	if len(mf.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrCorruptModel)
	}
	if mf.Metadata.InputSize != mf.Layers[0].InputSize {
		return nil, fmt.Errorf("%w: metadata input size %d, first layer expects %d",
			ErrCorruptModel, mf.Metadata.InputSize, mf.Layers[0].InputSize)
	}

	specs := make([]LayerSpec, len(mf.Layers))
	for i, lf := range mf.Layers {
		specs[i] = LayerSpec{Size: lf.OutputSize, InputSize: lf.InputSize, Activation: lf.Activation}
	}
	if err := validateChain(specs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptModel, err)
	}

	layers := make([]*layer.Dense, len(mf.Layers))
	for i, lf := range mf.Layers {
		l, err := lf.decode()
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d: %w", ErrCorruptModel, i, err)
		}
		layers[i] = l
	}

	meta := mf.Metadata
	last := specs[len(specs)-1]
	if meta.OutputKind == "" {
		meta.OutputKind = defaultOutputKind(last)
	}
	if !meta.OutputKind.Valid() {
		return nil, fmt.Errorf("%w: unknown output kind %q", ErrCorruptModel, meta.OutputKind)
	}
	if len(meta.OutputLabels) > 0 && len(meta.OutputLabels) != last.Size {
		return nil, fmt.Errorf("%w: %d output labels for %d outputs", ErrCorruptModel, len(meta.OutputLabels), last.Size)
	}
	return &Network{layers: layers, meta: meta}, nil
}

func (lf layerFile) decode() (*layer.Dense, error) {
	if len(lf.Weights) != lf.InputSize {
		return nil, fmt.Errorf("weights have %d rows, want %d", len(lf.Weights), lf.InputSize)
	}
	for i, row := range lf.Weights {
		if len(row) != lf.OutputSize {
			return nil, fmt.Errorf("weights row %d has %d entries, want %d", i, len(row), lf.OutputSize)
		}
	}
	if len(lf.Biases) != lf.OutputSize {
		return nil, fmt.Errorf("biases have %d entries, want %d", len(lf.Biases), lf.OutputSize)
	}
	w, err := matrix.FromRows(lf.Weights)
	if err != nil {
		return nil, err
	}
	return layer.FromParams(w, matrix.Row(lf.Biases), lf.Activation)
}
