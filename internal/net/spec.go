package net

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/loss"
)

// Spec describes an architecture and its training loss without weights.
// It can be stored before training starts.
type Spec struct {
	Name     string      `json:"name"`
	Layers   []LayerSpec `json:"layers"`
	Loss     loss.Kind   `json:"loss"`
	Metadata *Metadata   `json:"metadata,omitempty"`
}

// Validate checks the layer chain and the activation/loss pairing.
func (s *Spec) Validate() error {
	if err := validateChain(s.Layers); err != nil {
		return err
	}
	return CheckPairing(s.Layers[len(s.Layers)-1].Activation, s.Loss)
}

// Build creates an untrained network from s. Metadata in s is applied before opts.
func (s *Spec) Build(opts ...Option) (*Network, error) {
	var all []Option
	if m := s.Metadata; m != nil {
		if m.InputSize != 0 && len(s.Layers) > 0 && m.InputSize != s.Layers[0].InputSize {
			return nil, fmt.Errorf("%w: metadata input size %d, first layer expects %d",
				ErrDimensionMismatch, m.InputSize, s.Layers[0].InputSize)
		}
		all = append(all,
			WithOutputKind(m.OutputKind),
			WithDescription(m.Description),
			WithOutputLabels(m.OutputLabels...))
	}
	return New(s.Layers, s.Loss, append(all, opts...)...)
}

// SaveSpec writes s to filename as indented JSON.
func SaveSpec(filename string, s *Spec) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode spec: %w", ErrIO, err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write spec: %w", ErrIO, err)
	}
	return nil
}

// LoadSpec reads and validates a spec written by SaveSpec.
func LoadSpec(filename string) (*Spec, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read spec: %w", ErrIO, err)
	}
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptModel, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseLayers parses a compact architecture such as "4:sigmoid,1:sigmoid"
// for a network with inputSize inputs. Each entry is size:activation.
func ParseLayers(s string, inputSize int) ([]LayerSpec, error) {
	var specs []LayerSpec
	in := inputSize
	for i, part := range strings.Split(s, ",") {
		sizeStr, actStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("layer %d: %q is not size:activation", i, part)
		}
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("layer %d: bad size: %w", i, err)
		}
		act, err := activations.Parse(actStr)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		specs = append(specs, LayerSpec{Size: size, InputSize: in, Activation: act})
		in = size
	}
	if err := validateChain(specs); err != nil {
		return nil, err
	}
	return specs, nil
}
