package train

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/ferrite-nn/ferrite/internal/net"
)

// Sink receives progress from a training run. OnEpochEnd is called on the
// training goroutine once per completed epoch and must not block.
type Sink interface {
	OnEpochEnd(stats EpochStats)
}

// TrainBeginner is implemented by sinks that want to see the network before
// the first epoch.
type TrainBeginner interface {
	OnTrainBegin(n *net.Network)
}

// TrainEnder is implemented by sinks that want the final result.
type TrainEnder interface {
	OnTrainEnd(res Result)
}

// Sinks fans every event out to each member in order.
type Sinks []Sink

func (s Sinks) OnTrainBegin(n *net.Network) {
	for _, sink := range s {
		if b, ok := sink.(TrainBeginner); ok {
			b.OnTrainBegin(n)
		}
	}
}

func (s Sinks) OnEpochEnd(stats EpochStats) {
	for _, sink := range s {
		sink.OnEpochEnd(stats)
	}
}

func (s Sinks) OnTrainEnd(res Result) {
	for _, sink := range s {
		if e, ok := sink.(TrainEnder); ok {
			e.OnTrainEnd(res)
		}
	}
}

// ChannelSink forwards stats to a buffered channel for a consumer on another
// goroutine. When the buffer is full the stats are dropped and counted rather
// than stalling training. C is closed when the run ends.
type ChannelSink struct {
	C chan EpochStats

	dropped atomic.Int64
}

// NewChannelSink returns a sink whose channel holds up to buffer stats.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan EpochStats, max(buffer, 1))}
}

func (c *ChannelSink) OnEpochEnd(stats EpochStats) {
	select {
	case c.C <- stats:
	default:
		c.dropped.Add(1)
	}
}

func (c *ChannelSink) OnTrainEnd(Result) {
	close(c.C)
}

// Dropped returns how many stats did not fit in the channel.
func (c *ChannelSink) Dropped() int64 {
	return c.dropped.Load()
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(stats EpochStats)

func (f SinkFunc) OnEpochEnd(stats EpochStats) { f(stats) }

// EarlyStopping raises Stop when the monitored loss has not improved by more
// than Threshold for Patience epochs. The validation loss is monitored when
// present, the training loss otherwise.
type EarlyStopping struct {
	Patience  int
	Threshold float64
	Stop      *atomic.Bool
	Log       *slog.Logger

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
}

func NewEarlyStopping(patience int, threshold float64, stop *atomic.Bool) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		Stop:      stop,
		bestLoss:  math.Inf(1),
	}
}

func (c *EarlyStopping) OnEpochEnd(stats EpochStats) {
	loss := monitored(stats)
	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if !c.Stopped && c.numBadEpochs >= c.Patience {
		c.Stopped = true
		if c.Stop != nil {
			c.Stop.Store(true)
		}
		if c.Log != nil {
			c.Log.Info("early stopping", "epoch", stats.Epoch, "loss", loss, "patience", c.Patience)
		}
	}
}

// ModelCheckpoint saves the network whenever the monitored loss reaches a new
// best. Save errors are logged and do not stop training.
type ModelCheckpoint struct {
	Filename string
	Log      *slog.Logger

	net      *net.Network
	bestLoss float64
	saves    int
}

func NewModelCheckpoint(filename string) *ModelCheckpoint {
	return &ModelCheckpoint{
		Filename: filename,
		bestLoss: math.Inf(1),
	}
}

func (c *ModelCheckpoint) OnTrainBegin(n *net.Network) {
	c.net = n
}

func (c *ModelCheckpoint) OnEpochEnd(stats EpochStats) {
	loss := monitored(stats)
	if c.net == nil || !(loss < c.bestLoss) {
		return
	}
	c.bestLoss = loss
	if err := c.net.Save(c.Filename); err != nil {
		if c.Log != nil {
			c.Log.Warn("checkpoint failed", "path", c.Filename, "err", err)
		}
		return
	}
	c.saves++
	if c.Log != nil {
		c.Log.Debug("checkpoint saved", "path", c.Filename, "epoch", stats.Epoch, "loss", loss)
	}
}

// Saves returns the number of checkpoints written.
func (c *ModelCheckpoint) Saves() int {
	return c.saves
}

// Logger logs every Interval-th epoch at info level.
type Logger struct {
	Log      *slog.Logger
	Interval int
}

func (c Logger) OnEpochEnd(stats EpochStats) {
	if c.Log == nil || c.Interval <= 0 {
		return
	}
	if stats.Epoch%c.Interval != 0 && stats.Epoch != stats.TotalEpochs {
		return
	}
	attrs := []any{
		"epoch", stats.Epoch,
		"of", stats.TotalEpochs,
		"loss", stats.TrainLoss,
		"elapsed", stats.Elapsed,
	}
	if stats.TrainAccuracy != nil {
		attrs = append(attrs, "accuracy", *stats.TrainAccuracy)
	}
	if stats.ValLoss != nil {
		attrs = append(attrs, "val_loss", *stats.ValLoss)
	}
	if stats.ValAccuracy != nil {
		attrs = append(attrs, "val_accuracy", *stats.ValAccuracy)
	}
	c.Log.Info("epoch", attrs...)
}

func monitored(stats EpochStats) float64 {
	if stats.ValLoss != nil {
		return *stats.ValLoss
	}
	return stats.TrainLoss
}
