// Package loss provides loss functions and their gradients.
package loss

import (
	"fmt"
	"math"
	"strings"
)

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the scalar loss between predicted and expected values.
	Forward(yPred, yTrue []float64) float64

	// Backward computes the gradient of the loss w.r.t. the prediction.
	Backward(yPred, yTrue []float64) []float64
}

// eps keeps logarithms finite when a prediction is exactly 0 or 1.
const eps = 1e-12

func checkLen(name string, yPred, yTrue []float64) {
	if len(yPred) != len(yTrue) {
		panic(fmt.Sprintf("%s: prediction has %d values, target has %d", name, len(yPred), len(yTrue)))
	}
}

// MSE (Mean Squared Error) loss.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2)
func (MSE) Forward(yPred, yTrue []float64) float64 {
	checkLen("MSE", yPred, yTrue)
	var sum float64
	for i := range yPred {
		diff := yPred[i] - yTrue[i]
		sum += diff * diff
	}
	return sum / float64(len(yPred))
}

// Backward computes dL/dy_pred = (2/n) * (y_pred - y_true), the exact
// gradient of Forward.
func (MSE) Backward(yPred, yTrue []float64) []float64 {
	checkLen("MSE", yPred, yTrue)
	factor := 2.0 / float64(len(yPred))
	grad := make([]float64, len(yPred))
	for i := range yPred {
		grad[i] = factor * (yPred[i] - yTrue[i])
	}
	return grad
}

// CrossEntropy is categorical cross-entropy for a Softmax output layer.
type CrossEntropy struct{}

// Forward computes -sum(y_true * ln(y_pred + eps)).
func (CrossEntropy) Forward(yPred, yTrue []float64) float64 {
	checkLen("CrossEntropy", yPred, yTrue)
	var sum float64
	for i := range yPred {
		sum -= yTrue[i] * math.Log(yPred[i]+eps)
	}
	return sum
}

// Backward returns y_pred - y_true.
//
// This is the gradient w.r.t. the Softmax logits, not the probabilities; it
// is only correct when the output layer is Softmax, whose derivative is then
// treated as 1.
func (CrossEntropy) Backward(yPred, yTrue []float64) []float64 {
	checkLen("CrossEntropy", yPred, yTrue)
	grad := make([]float64, len(yPred))
	for i := range yPred {
		grad[i] = yPred[i] - yTrue[i]
	}
	return grad
}

// BinaryCrossEntropy loss for Sigmoid outputs.
type BinaryCrossEntropy struct{}

// Forward computes -mean(y*ln(p+eps) + (1-y)*ln(1-p+eps)).
func (BinaryCrossEntropy) Forward(yPred, yTrue []float64) float64 {
	checkLen("BinaryCrossEntropy", yPred, yTrue)
	var sum float64
	for i, p := range yPred {
		y := yTrue[i]
		sum -= y*math.Log(p+eps) + (1-y)*math.Log(1-p+eps)
	}
	return sum / float64(len(yPred))
}

// Backward computes (p - y) / (n * (p+eps) * (1-p+eps)).
func (BinaryCrossEntropy) Backward(yPred, yTrue []float64) []float64 {
	checkLen("BinaryCrossEntropy", yPred, yTrue)
	n := float64(len(yPred))
	grad := make([]float64, len(yPred))
	for i, p := range yPred {
		grad[i] = (p - yTrue[i]) / (n * (p + eps) * (1 - p + eps))
	}
	return grad
}

// MAE (Mean Absolute Error) loss.
type MAE struct{}

// Forward computes mean(|y_pred - y_true|).
func (MAE) Forward(yPred, yTrue []float64) float64 {
	checkLen("MAE", yPred, yTrue)
	var sum float64
	for i := range yPred {
		sum += math.Abs(yPred[i] - yTrue[i])
	}
	return sum / float64(len(yPred))
}

// Backward computes the subgradient sign(y_pred - y_true) / n, 0 where equal.
func (MAE) Backward(yPred, yTrue []float64) []float64 {
	checkLen("MAE", yPred, yTrue)
	n := float64(len(yPred))
	grad := make([]float64, len(yPred))
	for i := range yPred {
		switch diff := yPred[i] - yTrue[i]; {
		case diff > 0:
			grad[i] = 1 / n
		case diff < 0:
			grad[i] = -1 / n
		}
	}
	return grad
}

// Huber loss for robust regression.
type Huber struct {
	Delta float64 // Threshold for quadratic/linear transition
}

// NewHuber creates a Huber loss with the given delta.
func NewHuber(delta float64) Huber {
	return Huber{Delta: delta}
}

// Forward computes mean(h(y_pred - y_true)) with h(x) = x²/2 for |x| <= delta
// and delta*(|x| - delta/2) otherwise.
func (h Huber) Forward(yPred, yTrue []float64) float64 {
	checkLen("Huber", yPred, yTrue)
	var sum float64
	for i := range yPred {
		diff := math.Abs(yPred[i] - yTrue[i])
		if diff <= h.Delta {
			sum += 0.5 * diff * diff
		} else {
			sum += h.Delta * (diff - 0.5*h.Delta)
		}
	}
	return sum / float64(len(yPred))
}

// Backward computes x/n for |x| <= delta and delta*sign(x)/n otherwise.
func (h Huber) Backward(yPred, yTrue []float64) []float64 {
	checkLen("Huber", yPred, yTrue)
	n := float64(len(yPred))
	grad := make([]float64, len(yPred))
	for i := range yPred {
		diff := yPred[i] - yTrue[i]
		switch {
		case diff > h.Delta:
			grad[i] = h.Delta / n
		case diff < -h.Delta:
			grad[i] = -h.Delta / n
		default:
			grad[i] = diff / n
		}
	}
	return grad
}

// Kind names a loss function in configuration and on disk.
type Kind int

const (
	KindMSE Kind = iota
	KindCrossEntropy
	KindBinaryCrossEntropy
	KindMAE
	KindHuber
)

var kindNames = [...]string{
	KindMSE:                "mse",
	KindCrossEntropy:       "cross_entropy",
	KindBinaryCrossEntropy: "binary_cross_entropy",
	KindMAE:                "mae",
	KindHuber:              "huber",
}

// Valid reports whether k is a known loss kind.
func (k Kind) Valid() bool {
	return k >= KindMSE && k <= KindHuber
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the kind named s. Matching ignores case and accepts
// hyphens in place of underscores.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(s), "-", "_")
	for i, n := range kindNames {
		if n == norm {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown loss %q", s)
}

// MarshalText encodes k as its name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid loss kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText decodes a loss name.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Func returns the loss function for k. Huber uses delta 1.
func (k Kind) Func() Loss {
	switch k {
	case KindCrossEntropy:
		return CrossEntropy{}
	case KindBinaryCrossEntropy:
		return BinaryCrossEntropy{}
	case KindMAE:
		return MAE{}
	case KindHuber:
		return NewHuber(1.0)
	}
	return MSE{}
}

// IsCategorical reports whether k scores a class distribution, in which case
// argmax accuracy is meaningful.
func (k Kind) IsCategorical() bool {
	return k == KindCrossEntropy
}
