// Package layer provides unit tests for the dense layer.
package layer

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/matrix"
)

func mustRows(t *testing.T, rows [][]float64) *matrix.Matrix {
	t.Helper()
	m, err := matrix.FromRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func mustDense(t *testing.T, w, b [][]float64, act activations.Activation) *Dense {
	t.Helper()
	d, err := FromParams(mustRows(t, w), mustRows(t, b), act)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// TestDenseForwardIdentity checks that identity weights, zero bias and the
// Identity activation pass the input through unchanged.
func TestDenseForwardIdentity(t *testing.T) {
	d := mustDense(t,
		[][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[][]float64{{0, 0, 0}},
		activations.Identity)

	input := []float64{1.5, -2, 0.25}
	output, cache, err := d.FeedFrom(input)
	if err != nil {
		t.Fatal(err)
	}
	for i := range input {
		if output[i] != input[i] {
			t.Errorf("output[%d] = %v, want %v", i, output[i], input[i])
		}
	}
	if cache.Z.Cols() != 3 || cache.A.Cols() != 3 || cache.Input.Cols() != 3 {
		t.Errorf("cache has wrong shape")
	}
}

func TestDenseForwardAffine(t *testing.T) {
	// W is [in=2, out=2]
	d := mustDense(t,
		[][]float64{{1, 2}, {3, 4}},
		[][]float64{{0.5, -1}},
		activations.Sigmoid)

	output, cache, err := d.FeedFrom([]float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	// z = [1*1+2*3+0.5, 1*2+2*4-1] = [7.5, 9]
	wantZ := []float64{7.5, 9}
	for i, z := range wantZ {
		if cache.Z.At(0, i) != z {
			t.Errorf("z[%d] = %v, want %v", i, cache.Z.At(0, i), z)
		}
		want := 1 / (1 + math.Exp(-z))
		if math.Abs(output[i]-want) > 1e-12 {
			t.Errorf("output[%d] = %v, want %v", i, output[i], want)
		}
	}
}

func TestDenseForwardWrongWidth(t *testing.T) {
	d := NewDense(3, 2, activations.Sigmoid, rand.New(rand.NewSource(1)))
	if _, _, err := d.FeedFrom([]float64{1, 2}); !errors.Is(err, matrix.ErrShapeMismatch) {
		t.Errorf("FeedFrom with short input: err = %v, want ErrShapeMismatch", err)
	}
}

// TestDenseComputeGradients checks the backward pass against hand-computed values.
func TestDenseComputeGradients(t *testing.T) {
	d := mustDense(t,
		[][]float64{{1, -1}, {2, 0.5}},
		[][]float64{{0, 0}},
		activations.ReLU)

	// z = [1*1+1*2, -1*1+0.5*1] = [3, -0.5]; relu' = [1, 0]
	_, cache, err := d.FeedFrom([]float64{1, 1})
	if err != nil {
		t.Fatal(err)
	}

	grads, below, err := d.ComputeGradients(matrix.Row([]float64{0.2, 0.7}), cache)
	if err != nil {
		t.Fatal(err)
	}

	// localDelta = [0.2, 0]
	if got := grads.Biases.RowAt(0); got[0] != 0.2 || got[1] != 0 {
		t.Errorf("bias grad = %v, want [0.2 0]", got)
	}
	wantW := [][]float64{{0.2, 0}, {0.2, 0}}
	for i := range wantW {
		for j := range wantW[i] {
			if math.Abs(grads.Weights.At(i, j)-wantW[i][j]) > 1e-12 {
				t.Errorf("weight grad[%d][%d] = %v, want %v", i, j, grads.Weights.At(i, j), wantW[i][j])
			}
		}
	}
	// below = localDelta · W^T = [0.2*1 + 0*-1, 0.2*2 + 0*0.5]
	wantBelow := []float64{0.2, 0.4}
	for i, v := range wantBelow {
		if math.Abs(below.At(0, i)-v) > 1e-12 {
			t.Errorf("delta below[%d] = %v, want %v", i, below.At(0, i), v)
		}
	}
}

func TestDenseSoftmaxPassesDeltaThrough(t *testing.T) {
	d := mustDense(t,
		[][]float64{{1, 0, 0}, {0, 1, 0}},
		[][]float64{{0, 0, 0}},
		activations.Softmax)

	_, cache, err := d.FeedFrom([]float64{3, -2})
	if err != nil {
		t.Fatal(err)
	}
	delta := []float64{-0.3, 0.2, 0.1}
	grads, _, err := d.ComputeGradients(matrix.Row(delta), cache)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range delta {
		if grads.Biases.At(0, i) != v {
			t.Errorf("bias grad[%d] = %v, want %v", i, grads.Biases.At(0, i), v)
		}
	}
}

func TestDenseComputeGradientsShapeChecks(t *testing.T) {
	d := NewDense(2, 3, activations.Sigmoid, rand.New(rand.NewSource(2)))
	_, cache, err := d.FeedFrom([]float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := d.ComputeGradients(matrix.Row([]float64{1, 2}), cache); !errors.Is(err, matrix.ErrShapeMismatch) {
		t.Errorf("short delta: err = %v", err)
	}

	other := NewDense(4, 3, activations.Sigmoid, nil)
	_, foreign, _ := other.FeedFrom([]float64{1, 2, 3, 4})
	if _, _, err := d.ComputeGradients(matrix.Row([]float64{1, 2, 3}), foreign); !errors.Is(err, matrix.ErrShapeMismatch) {
		t.Errorf("foreign cache: err = %v", err)
	}
}

func TestDenseApplyGradients(t *testing.T) {
	d := mustDense(t, [][]float64{{1, 2}}, [][]float64{{0.5, 0.5}}, activations.Identity)
	g := &Gradients{
		Weights: mustRows(t, [][]float64{{10, -10}}),
		Biases:  mustRows(t, [][]float64{{1, 2}}),
	}
	if err := d.ApplyGradients(g, 0.1); err != nil {
		t.Fatal(err)
	}
	if w := d.Weights().RowAt(0); math.Abs(w[0]-0) > 1e-12 || math.Abs(w[1]-3) > 1e-12 {
		t.Errorf("weights = %v, want [0 3]", w)
	}
	if b := d.Biases().RowAt(0); math.Abs(b[0]-0.4) > 1e-12 || math.Abs(b[1]-0.3) > 1e-12 {
		t.Errorf("biases = %v, want [0.4 0.3]", b)
	}
}

func TestDenseApplyGradientsValidatesFirst(t *testing.T) {
	d := mustDense(t, [][]float64{{1, 2}}, [][]float64{{0.5, 0.5}}, activations.Identity)
	bad := &Gradients{
		Weights: mustRows(t, [][]float64{{1, 1}}),
		Biases:  mustRows(t, [][]float64{{1, 1, 1}}),
	}
	if err := d.ApplyGradients(bad, 1); !errors.Is(err, matrix.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	if w := d.Weights().RowAt(0); w[0] != 1 || w[1] != 2 {
		t.Errorf("weights changed to %v after failed update", w)
	}
}

func TestNewDenseInit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	d := NewDense(5, 3, activations.ReLU, rng)
	if r, c := d.Weights().Dims(); r != 5 || c != 3 {
		t.Errorf("weights dims = %dx%d, want 5x3", r, c)
	}
	for _, b := range d.Biases().RowAt(0) {
		if b != 0 {
			t.Errorf("bias = %v, want 0", b)
		}
	}
	if d.ParamCount() != 18 {
		t.Errorf("ParamCount = %d, want 18", d.ParamCount())
	}
}

func TestFromParamsRejectsBadBias(t *testing.T) {
	_, err := FromParams(matrix.Zeros(2, 3), matrix.Zeros(1, 2), activations.Identity)
	if !errors.Is(err, matrix.ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestGradientsAddScale(t *testing.T) {
	d := NewDense(2, 2, activations.Sigmoid, nil)
	acc := d.ZeroGradients()
	g := &Gradients{
		Weights: mustRows(t, [][]float64{{1, 2}, {3, 4}}),
		Biases:  mustRows(t, [][]float64{{1, 1}}),
	}
	var err error
	for i := 0; i < 4; i++ {
		if acc, err = acc.Add(g); err != nil {
			t.Fatal(err)
		}
	}
	avg := acc.Scale(0.25)
	if !avg.Weights.EqualApprox(g.Weights, 1e-12) || !avg.Biases.EqualApprox(g.Biases, 1e-12) {
		t.Errorf("average of four identical gradients differs from the gradient")
	}
}

func BenchmarkDenseForward(b *testing.B) {
	d := NewDense(64, 32, activations.ReLU, rand.New(rand.NewSource(1)))
	x := make([]float64, 64)
	for i := range x {
		x[i] = float64(i) / 64
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = d.FeedFrom(x)
	}
}

func BenchmarkDenseBackward(b *testing.B) {
	d := NewDense(64, 32, activations.ReLU, rand.New(rand.NewSource(1)))
	x := make([]float64, 64)
	_, cache, _ := d.FeedFrom(x)
	delta := matrix.Row(make([]float64, 32))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = d.ComputeGradients(delta, cache)
	}
}
