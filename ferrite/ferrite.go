// Package ferrite exposes the dense network, training and persistence API to
// programs outside this module.
package ferrite

import (
	"github.com/ferrite-nn/ferrite/internal/activations"
	"github.com/ferrite-nn/ferrite/internal/dataset"
	"github.com/ferrite-nn/ferrite/internal/loss"
	"github.com/ferrite-nn/ferrite/internal/net"
	"github.com/ferrite-nn/ferrite/internal/opt"
	"github.com/ferrite-nn/ferrite/internal/train"
)

// Re-export common types for easier access
type (
	Network     = net.Network
	LayerSpec   = net.LayerSpec
	Metadata    = net.Metadata
	Spec        = net.Spec
	Activation  = activations.Activation
	LossKind    = loss.Kind
	Optimizer   = opt.Optimizer
	Dataset     = dataset.Set
	Trainer     = train.Trainer
	TrainConfig = train.Config
	EpochStats  = train.EpochStats
	Result      = train.Result
	State       = train.State
	Sink        = train.Sink
)

// Activations
const (
	Identity = activations.Identity
	Sigmoid  = activations.Sigmoid
	ReLU     = activations.ReLU
	Softmax  = activations.Softmax
)

// Losses
const (
	MSE                = loss.KindMSE
	CrossEntropy       = loss.KindCrossEntropy
	BinaryCrossEntropy = loss.KindBinaryCrossEntropy
	MAE                = loss.KindMAE
	Huber              = loss.KindHuber
)

// Trainer states
const (
	Idle      = train.Idle
	Running   = train.Running
	Completed = train.Completed
	Stopped   = train.Stopped
	Failed    = train.Failed
)

// Errors
var (
	ErrDimensionMismatch = net.ErrDimensionMismatch
	ErrInvalidPairing    = net.ErrInvalidPairing
	ErrCorruptModel      = net.ErrCorruptModel
	ErrIO                = net.ErrIO
)

// Model creation
func NewNetwork(specs []LayerSpec, k LossKind, opts ...net.Option) (*Network, error) {
	return net.New(specs, k, opts...)
}

func Load(filename string) (*Network, error) {
	return net.Load(filename)
}

func LoadSpec(filename string) (*Spec, error) {
	return net.LoadSpec(filename)
}

// Optimizers
func SGD(lr float64) Optimizer {
	return opt.NewSGD(lr)
}

// Training
func NewTrainer(n *Network, cfg TrainConfig, opts ...train.Option) (*Trainer, error) {
	return train.New(n, cfg, opts...)
}

func NewChannelSink(buffer int) *train.ChannelSink {
	return train.NewChannelSink(buffer)
}

func SaveTo(filename string) train.Option {
	return train.WithSaver(train.FileSaver(filename))
}

// Inference
func Present(output []float64, meta Metadata) string {
	return net.Present(output, meta)
}
