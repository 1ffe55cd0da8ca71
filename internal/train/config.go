// Package train runs mini-batch gradient descent over a network.
package train

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/ferrite-nn/ferrite/internal/loss"
)

var (
	// ErrConfig is returned for an invalid Config.
	ErrConfig = errors.New("train: invalid config")

	// ErrNotIdle is returned when Run is called on a trainer that already ran.
	ErrNotIdle = errors.New("train: trainer is not idle")

	// ErrDiverged is returned when a sample's loss is NaN or infinite.
	ErrDiverged = errors.New("train: loss diverged")
)

// Config holds the hyperparameters of one run. The trainer never modifies it.
type Config struct {
	Epochs       int
	BatchSize    int
	Loss         loss.Kind
	LearningRate float64

	// Stop is an optional flag the host sets to end the run early. It is
	// read between batches only.
	Stop *atomic.Bool

	// Sink optionally receives one EpochStats per completed epoch.
	Sink Sink

	// Seed drives the per-epoch shuffle. Zero picks a time-based seed.
	Seed int64
}

// Validate checks the hyperparameters.
func (c Config) Validate() error {
	switch {
	case c.Epochs < 1:
		return fmt.Errorf("%w: epochs must be at least 1, got %d", ErrConfig, c.Epochs)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrConfig, c.BatchSize)
	case !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0):
		return fmt.Errorf("%w: learning rate must be positive, got %v", ErrConfig, c.LearningRate)
	case !c.Loss.Valid():
		return fmt.Errorf("%w: unknown loss %v", ErrConfig, c.Loss)
	}
	return nil
}

// State is the lifecycle of a Trainer.
type State int32

const (
	Idle State = iota
	Running
	Completed
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == Completed || s == Stopped || s == Failed
}

// EpochStats describes one completed epoch.
type EpochStats struct {
	Epoch       int           `json:"epoch"` // 1-based
	TotalEpochs int           `json:"total_epochs"`
	TrainLoss   float64       `json:"train_loss"` // mean over the epoch's samples
	Elapsed     time.Duration `json:"elapsed_ns"`

	// Accuracies are fractions in [0, 1], set for categorical losses only.
	TrainAccuracy *float64 `json:"train_accuracy,omitempty"`
	ValLoss       *float64 `json:"val_loss,omitempty"`
	ValAccuracy   *float64 `json:"val_accuracy,omitempty"`
}

// Result summarises a finished run.
type Result struct {
	State           State
	EpochsCompleted int
	TotalEpochs     int
	TrainLoss       float64 // mean loss of the last completed epoch
	Elapsed         time.Duration
}

type atomicState struct{ v atomic.Int32 }

func (a *atomicState) Load() State { return State(a.v.Load()) }

func (a *atomicState) Store(s State) { a.v.Store(int32(s)) }

func (a *atomicState) CompareAndSwap(old, new State) bool {
	return a.v.CompareAndSwap(int32(old), int32(new))
}
