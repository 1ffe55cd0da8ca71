package net

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/loss"
)

func classifier(t *testing.T) *Network {
	t.Helper()
	n, err := New([]LayerSpec{
		{Size: 5, InputSize: 3, Activation: activations.ReLU},
		{Size: 4, InputSize: 5, Activation: activations.Sigmoid},
		{Size: 3, InputSize: 4, Activation: activations.Softmax},
	}, loss.KindCrossEntropy, seeded(5), WithOutputLabels("a", "b", "c"), WithDescription("toy"))
	require.NoError(t, err)
	return n
}

func TestSaveLoadRoundTrip(t *testing.T) {
	n := classifier(t)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, n.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	input := []float64{0.3, -1.7, 2.2}
	before, err := n.Forward(input)
	require.NoError(t, err)
	after, err := loaded.Forward(input)
	require.NoError(t, err)

	// JSON floats round-trip exactly, so predictions are bit-identical.
	assert.Equal(t, before, after)
	assert.Equal(t, n.Metadata(), loaded.Metadata())
	assert.Equal(t, n.Specs(), loaded.Specs())
}

func TestSaveLayout(t *testing.T) {
	n := classifier(t)
	var buf bytes.Buffer
	require.NoError(t, n.Encode(&buf))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))

	meta := raw["metadata"].(map[string]any)
	assert.Equal(t, 3.0, meta["input_size"])
	assert.Equal(t, "distribution", meta["output_kind"])

	layers := raw["layers"].([]any)
	require.Len(t, layers, 3)
	first := layers[0].(map[string]any)
	assert.Equal(t, "ReLU", first["activation"])
	assert.Equal(t, 3.0, first["input_size"])
	assert.Equal(t, 5.0, first["output_size"])
	assert.Len(t, first["weights"], 3)
	assert.Len(t, first["weights"].([]any)[0], 5)
	assert.Len(t, first["biases"], 5)
}

func TestSaveDoesNotLeaveTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, classifier(t).Save(filepath.Join(dir, "m.json")))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m.json", entries[0].Name())
}

func TestSaveIOFailure(t *testing.T) {
	err := classifier(t).Save(filepath.Join(t.TempDir(), "missing", "m.json"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestLoadIOFailure(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrIO)
}

const validModel = `{
  "metadata": {"input_size": 2, "output_kind": "probability"},
  "layers": [
    {"input_size": 2, "output_size": 2, "activation": "Sigmoid",
     "weights": [[1, 2], [3, 4]], "biases": [0, 0]},
    {"input_size": 2, "output_size": 1, "activation": "Sigmoid",
     "weights": [[1], [1]], "biases": [0.5]}
  ]
}`

func TestDecodeValid(t *testing.T) {
	n, err := Decode(strings.NewReader(validModel))
	require.NoError(t, err)
	assert.Equal(t, 2, n.InputSize())
	assert.Equal(t, 1, n.OutputSize())
	assert.Equal(t, OutputProbability, n.Metadata().OutputKind)
}

func TestDecodeCorrupt(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"metadata":`,
		"no layers":       `{"metadata": {"input_size": 2}, "layers": []}`,
		"metadata width":  strings.Replace(validModel, `"input_size": 2, "output_kind"`, `"input_size": 3, "output_kind"`, 1),
		"broken chain":    strings.Replace(validModel, `{"input_size": 2, "output_size": 1`, `{"input_size": 3, "output_size": 1`, 1),
		"short weights":   strings.Replace(validModel, `[[1, 2], [3, 4]]`, `[[1, 2]]`, 1),
		"ragged weights":  strings.Replace(validModel, `[[1, 2], [3, 4]]`, `[[1, 2], [3]]`, 1),
		"long biases":     strings.Replace(validModel, `"biases": [0.5]`, `"biases": [0.5, 1]`, 1),
		"bad activation":  strings.Replace(validModel, `"Sigmoid"`, `"Tanh"`, 1),
		"bad output kind": strings.Replace(validModel, `"probability"`, `"histogram"`, 1),
		"hidden softmax":  strings.Replace(validModel, `"Sigmoid"`, `"Softmax"`, 1),
		"label count":     strings.Replace(validModel, `"output_kind": "probability"`, `"output_kind": "probability", "output_labels": ["x", "y"]`, 1),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(body))
			assert.ErrorIs(t, err, ErrCorruptModel)
		})
	}
}

func TestDecodeDerivesMissingOutputKind(t *testing.T) {
	body := strings.Replace(validModel, `, "output_kind": "probability"`, ``, 1)
	n, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, OutputProbability, n.Metadata().OutputKind)
}

func TestSpecRoundTrip(t *testing.T) {
	s := &Spec{
		Name: "iris",
		Layers: []LayerSpec{
			{Size: 8, InputSize: 4, Activation: activations.ReLU},
			{Size: 3, InputSize: 8, Activation: activations.Softmax},
		},
		Loss:     loss.KindCrossEntropy,
		Metadata: &Metadata{OutputLabels: []string{"setosa", "versicolor", "virginica"}},
	}
	path := filepath.Join(t.TempDir(), "iris.spec.json")
	require.NoError(t, SaveSpec(path, s))

	back, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, s, back)

	n, err := back.Build(seeded(1))
	require.NoError(t, err)
	assert.Equal(t, OutputDistribution, n.Metadata().OutputKind)
	assert.Equal(t, []string{"setosa", "versicolor", "virginica"}, n.Metadata().OutputLabels)
}

func TestLoadSpecRejectsBadPairing(t *testing.T) {
	s := &Spec{
		Name:   "bad",
		Layers: []LayerSpec{{Size: 3, InputSize: 4, Activation: activations.Softmax}},
		Loss:   loss.KindMSE,
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, SaveSpec(path, s))
	_, err := LoadSpec(path)
	assert.ErrorIs(t, err, ErrInvalidPairing)
}
