package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func TestMSEForward(t *testing.T) {
	got := MSE{}.Forward([]float64{1, 2, 3}, []float64{1, 4, 0})
	// (0 + 4 + 9) / 3
	assert.InDelta(t, 13.0/3.0, got, 1e-12)
}

// TestBackwardMatchesForward checks that every loss whose Backward is the
// gradient of its own Forward agrees with a central finite difference.
func TestBackwardMatchesForward(t *testing.T) {
	yTrue := []float64{0.2, 0.9, 0.0, 1.0}
	yPred := []float64{0.35, 0.6, 0.1, 0.4}

	cases := []struct {
		name string
		loss Loss
	}{
		{"mse", MSE{}},
		{"bce", BinaryCrossEntropy{}},
		{"huber-quadratic", NewHuber(1.0)},
		{"huber-linear", NewHuber(0.1)},
		{"mae", MAE{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := func(p []float64) float64 { return tc.loss.Forward(p, yTrue) }
			numeric := fd.Gradient(nil, f, yPred, &fd.Settings{Formula: fd.Central, Step: 1e-6})
			analytic := tc.loss.Backward(yPred, yTrue)
			require.Len(t, analytic, len(numeric))
			for i := range numeric {
				assert.InDelta(t, numeric[i], analytic[i], 1e-6, "component %d", i)
			}
		})
	}
}

// TestCrossEntropyFusedGradient checks the Softmax+CE shortcut is exactly
// predicted - expected.
func TestCrossEntropyFusedGradient(t *testing.T) {
	grad := CrossEntropy{}.Backward([]float64{0.7, 0.2, 0.1}, []float64{1, 0, 0})
	want := []float64{-0.3, 0.2, 0.1}
	require.Len(t, grad, 3)
	for i := range want {
		// 0.7-1 and friends are inexact in binary; compare at the rounding level.
		assert.InDelta(t, want[i], grad[i], 1e-15)
	}
}

func TestCrossEntropyForward(t *testing.T) {
	got := CrossEntropy{}.Forward([]float64{0.7, 0.2, 0.1}, []float64{1, 0, 0})
	assert.InDelta(t, -math.Log(0.7), got, 1e-9)

	// A zero probability for the true class stays finite.
	got = CrossEntropy{}.Forward([]float64{0, 1}, []float64{1, 0})
	assert.False(t, math.IsInf(got, 0))
	assert.InDelta(t, -math.Log(1e-12), got, 1e-6)
}

func TestMAEAtZeroDifference(t *testing.T) {
	grad := MAE{}.Backward([]float64{1, 2}, []float64{1, 3})
	assert.Equal(t, []float64{0, -0.5}, grad)
}

func TestLengthMismatchPanics(t *testing.T) {
	for _, k := range []Kind{KindMSE, KindCrossEntropy, KindBinaryCrossEntropy, KindMAE, KindHuber} {
		l := k.Func()
		assert.Panics(t, func() { l.Forward([]float64{1}, []float64{1, 2}) }, k.String())
		assert.Panics(t, func() { l.Backward([]float64{1}, []float64{1, 2}) }, k.String())
	}
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{KindMSE, KindCrossEntropy, KindBinaryCrossEntropy, KindMAE, KindHuber} {
		text, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	k, err := ParseKind("Cross-Entropy")
	require.NoError(t, err)
	assert.Equal(t, KindCrossEntropy, k)

	_, err = ParseKind("hinge")
	assert.Error(t, err)

	assert.True(t, KindCrossEntropy.IsCategorical())
	assert.False(t, KindMSE.IsCategorical())
}

func TestKindFunc(t *testing.T) {
	assert.IsType(t, MSE{}, KindMSE.Func())
	assert.IsType(t, CrossEntropy{}, KindCrossEntropy.Func())
	assert.IsType(t, BinaryCrossEntropy{}, KindBinaryCrossEntropy.Func())
	assert.IsType(t, MAE{}, KindMAE.Func())
	assert.Equal(t, Huber{Delta: 1}, KindHuber.Func())
}

func BenchmarkMSEBackward(b *testing.B) {
	p := make([]float64, 100)
	y := make([]float64, 100)
	for i := range p {
		p[i] = float64(i) / 100
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = MSE{}.Backward(p, y)
	}
}
