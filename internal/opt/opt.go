// Package opt provides optimization algorithms.
package opt

import (
	"github.com/ferrite-nn/ferrite/internal/layer"
)

// Optimizer applies a batch-averaged gradient to a layer's parameters.
type Optimizer interface {
	Step(l *layer.Dense, g *layer.Gradients) error
}

// SGD (Stochastic Gradient Descent) optimizer.
//
// It keeps no state between steps: W -= lr * gradW, b -= lr * gradB.
type SGD struct {
	LearningRate float64
}

// NewSGD creates an SGD optimizer with the given learning rate.
func NewSGD(learningRate float64) SGD {
	return SGD{LearningRate: learningRate}
}

// Step updates l in place.
func (s SGD) Step(l *layer.Dense, g *layer.Gradients) error {
	return l.ApplyGradients(g, s.LearningRate)
}
