package train

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/ferrite-nn/ferrite/internal/dataset"
	"github.com/ferrite-nn/ferrite/internal/layer"
	"github.com/ferrite-nn/ferrite/internal/loss"
	"github.com/ferrite-nn/ferrite/internal/net"
	"github.com/ferrite-nn/ferrite/internal/opt"
)

// Saver persists the trained network when a run completes or is stopped.
type Saver interface {
	Save(n *net.Network) error
}

// FileSaver saves the network as JSON to the named path.
type FileSaver string

// Save implements Saver.
func (p FileSaver) Save(n *net.Network) error {
	return n.Save(string(p))
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(n *net.Network) error

// Save implements Saver.
func (f SaverFunc) Save(n *net.Network) error {
	return f(n)
}

// Trainer runs one training session over a network it exclusively owns
// until Run returns. A Trainer is single use.
type Trainer struct {
	net   *net.Network
	cfg   Config
	loss  loss.Loss
	opt   opt.Optimizer
	saver Saver
	val   *dataset.Set
	log   *slog.Logger
	rng   *rand.Rand
	state atomicState
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithOptimizer replaces the default SGD built from Config.LearningRate.
func WithOptimizer(o opt.Optimizer) Option {
	return func(t *Trainer) { t.opt = o }
}

// WithSaver sets where the network is persisted after a Completed or
// Stopped run. Without a saver the network is left in memory only.
func WithSaver(s Saver) Option {
	return func(t *Trainer) { t.saver = s }
}

// WithValidation evaluates set after every epoch.
func WithValidation(set dataset.Set) Option {
	return func(t *Trainer) { t.val = &set }
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(t *Trainer) { t.log = l }
}

// New creates a trainer for n. It checks cfg and that n's output activation
// can be trained with cfg.Loss.
func New(n *net.Network, cfg Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := net.CheckPairing(n.OutputActivation(), cfg.Loss); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t := &Trainer{
		net:  n,
		cfg:  cfg,
		loss: cfg.Loss.Func(),
		opt:  opt.NewSGD(cfg.LearningRate),
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		rng:  rand.New(rand.NewSource(seed)),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// State returns the current lifecycle state. It is safe to call from any goroutine.
func (t *Trainer) State() State {
	return t.state.Load()
}

// Network returns the network being trained.
func (t *Trainer) Network() *net.Network {
	return t.net
}

// Outcome is the value delivered by Start.
type Outcome struct {
	Result Result
	Err    error
}

// Start runs the trainer on its own goroutine. The channel receives exactly
// one Outcome and is then closed.
func (t *Trainer) Start(data dataset.Set) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := t.Run(data)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}

// Run trains on data for cfg.Epochs epochs.
//
// Each epoch shuffles data, splits it into batches of cfg.BatchSize and
// applies one averaged gradient step per batch. The stop flag is checked
// between batches; when it is set the run ends as Stopped. Completed and
// Stopped runs are persisted with the saver; a failed save turns the run
// into Failed.
func (t *Trainer) Run(data dataset.Set) (Result, error) {
	if !t.state.CompareAndSwap(Idle, Running) {
		return Result{State: t.State()}, ErrNotIdle
	}
	res := Result{State: Running, TotalEpochs: t.cfg.Epochs}
	begin := time.Now()

	if err := data.Validate(t.net.InputSize(), t.net.OutputSize()); err != nil {
		return t.fail(res, begin, fmt.Errorf("training set: %w", err))
	}
	if t.val != nil {
		if err := t.val.Validate(t.net.InputSize(), t.net.OutputSize()); err != nil {
			return t.fail(res, begin, fmt.Errorf("validation set: %w", err))
		}
	}

	if b, ok := t.cfg.Sink.(TrainBeginner); ok {
		b.OnTrainBegin(t.net)
	}
	t.log.Info("training started",
		"epochs", t.cfg.Epochs,
		"batch_size", t.cfg.BatchSize,
		"learning_rate", t.cfg.LearningRate,
		"loss", t.cfg.Loss.String(),
		"samples", data.Len())

	final := Completed
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		if t.stopRequested() {
			final = Stopped
			break
		}
		stats, complete, err := t.runEpoch(epoch, data)
		if err != nil {
			return t.fail(res, begin, fmt.Errorf("epoch %d: %w", epoch, err))
		}
		if !complete {
			final = Stopped
			break
		}
		res.EpochsCompleted = epoch
		res.TrainLoss = stats.TrainLoss
		t.log.Debug("epoch finished", "epoch", epoch, "loss", stats.TrainLoss, "elapsed", stats.Elapsed)
		if t.cfg.Sink != nil {
			t.cfg.Sink.OnEpochEnd(stats)
		}
	}

	if t.saver != nil {
		if err := t.saver.Save(t.net); err != nil {
			return t.fail(res, begin, fmt.Errorf("save model: %w", err))
		}
	}
	return t.finish(res, begin, final), nil
}

func (t *Trainer) finish(res Result, begin time.Time, s State) Result {
	res.State = s
	res.Elapsed = time.Since(begin)
	t.state.Store(s)
	t.log.Info("training finished",
		"state", s.String(),
		"epochs_completed", res.EpochsCompleted,
		"loss", res.TrainLoss,
		"elapsed", res.Elapsed)
	if e, ok := t.cfg.Sink.(TrainEnder); ok {
		e.OnTrainEnd(res)
	}
	return res
}

func (t *Trainer) fail(res Result, begin time.Time, err error) (Result, error) {
	t.log.Error("training failed", "err", err)
	return t.finish(res, begin, Failed), err
}

func (t *Trainer) stopRequested() bool {
	return t.cfg.Stop != nil && t.cfg.Stop.Load()
}

// runEpoch makes one shuffled pass. It reports complete=false when the stop
// flag was seen before the last batch.
func (t *Trainer) runEpoch(epoch int, data dataset.Set) (EpochStats, bool, error) {
	begin := time.Now()
	n := data.Len()
	perm := t.rng.Perm(n)
	categorical := t.cfg.Loss.IsCategorical()

	var lossSum float64
	correct := 0
	for start := 0; start < n; start += t.cfg.BatchSize {
		end := min(start+t.cfg.BatchSize, n)
		batchLoss, batchCorrect, err := t.trainBatch(data, perm[start:end], categorical)
		if err != nil {
			return EpochStats{}, false, err
		}
		lossSum += batchLoss
		correct += batchCorrect

		if end < n && t.stopRequested() {
			return EpochStats{}, false, nil
		}
	}

	stats := EpochStats{
		Epoch:       epoch,
		TotalEpochs: t.cfg.Epochs,
		TrainLoss:   lossSum / float64(n),
		Elapsed:     time.Since(begin),
	}
	if categorical {
		acc := float64(correct) / float64(n)
		stats.TrainAccuracy = &acc
	}
	if t.val != nil {
		vl, va, err := Evaluate(t.net, *t.val, t.cfg.Loss)
		if err != nil {
			return EpochStats{}, false, err
		}
		stats.ValLoss = &vl
		if categorical {
			stats.ValAccuracy = &va
		}
	}
	return stats, true, nil
}

// trainBatch accumulates the gradients of the samples at idx, averages them
// and applies one optimizer step per layer. It returns the summed sample loss
// and, for categorical losses, the number of argmax hits.
func (t *Trainer) trainBatch(data dataset.Set, idx []int, categorical bool) (float64, int, error) {
	layers := t.net.Layers()
	acc := make([]*layer.Gradients, len(layers))
	for i, l := range layers {
		acc[i] = l.ZeroGradients()
	}

	var lossSum float64
	correct := 0
	for _, i := range idx {
		x, y := data.Inputs[i], data.Labels[i]
		out, caches, err := t.net.Trace(x)
		if err != nil {
			return 0, 0, err
		}
		l := t.loss.Forward(out, y)
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return 0, 0, fmt.Errorf("%w: sample %d", ErrDiverged, i)
		}
		lossSum += l
		if categorical && floats.MaxIdx(out) == floats.MaxIdx(y) {
			correct++
		}

		grads, err := t.net.Backward(caches, t.loss.Backward(out, y))
		if err != nil {
			return 0, 0, err
		}
		for j, g := range grads {
			if acc[j], err = acc[j].Add(g); err != nil {
				return 0, 0, err
			}
		}
	}

	scale := 1 / float64(len(idx))
	for j, l := range layers {
		if err := t.opt.Step(l, acc[j].Scale(scale)); err != nil {
			return 0, 0, fmt.Errorf("layer %d: %w", j, err)
		}
	}
	return lossSum, correct, nil
}

// Evaluate returns the mean loss of n over set and, for categorical losses,
// the argmax accuracy. It does not modify n.
func Evaluate(n *net.Network, set dataset.Set, k loss.Kind) (meanLoss, accuracy float64, err error) {
	if set.Len() == 0 {
		return 0, 0, nil
	}
	lossFn := k.Func()
	correct := 0
	var total float64
	for i, x := range set.Inputs {
		out, err := n.Forward(x)
		if err != nil {
			return 0, 0, fmt.Errorf("sample %d: %w", i, err)
		}
		total += lossFn.Forward(out, set.Labels[i])
		if floats.MaxIdx(out) == floats.MaxIdx(set.Labels[i]) {
			correct++
		}
	}
	size := float64(set.Len())
	if !k.IsCategorical() {
		return total / size, 0, nil
	}
	return total / size, float64(correct) / size, nil
}

// Online makes one pass over data in order, stepping o after every sample.
// It returns the mean loss. No shuffling, batching or stop flag is involved.
func Online(n *net.Network, data dataset.Set, k loss.Kind, o opt.Optimizer) (float64, error) {
	if err := data.Validate(n.InputSize(), n.OutputSize()); err != nil {
		return 0, err
	}
	if err := net.CheckPairing(n.OutputActivation(), k); err != nil {
		return 0, err
	}
	lossFn := k.Func()
	var total float64
	for i, x := range data.Inputs {
		out, caches, err := n.Trace(x)
		if err != nil {
			return 0, err
		}
		total += lossFn.Forward(out, data.Labels[i])
		grads, err := n.Backward(caches, lossFn.Backward(out, data.Labels[i]))
		if err != nil {
			return 0, err
		}
		for j, l := range n.Layers() {
			if err := o.Step(l, grads[j]); err != nil {
				return 0, err
			}
		}
	}
	return total / float64(data.Len()), nil
}
