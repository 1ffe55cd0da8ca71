// Command ferrite trains dense networks and runs inference on saved models.
//
//	ferrite train   -layers 4:sigmoid,1:sigmoid -epochs 10000 -out xor.json
//	ferrite predict -model xor.json 0,1 1,1
//	ferrite inspect -model xor.json
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ferrite-nn/ferrite/internal/dataset"
	"github.com/ferrite-nn/ferrite/internal/loss"
	"github.com/ferrite-nn/ferrite/internal/net"
	"github.com/ferrite-nn/ferrite/internal/platform"
	"github.com/ferrite-nn/ferrite/internal/train"
)

const usage = `usage: ferrite <command> [flags]

commands:
  train     train a network and save it as JSON
  predict   run a saved model on comma-separated input vectors
  inspect   print a saved model's architecture
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "ferrite:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}
	switch args[0] {
	case "train":
		return runTrain(args[1:], stdout, stderr)
	case "predict":
		return runPredict(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runTrain(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		layers    = fs.String("layers", "4:sigmoid,1:sigmoid", "comma-separated size:activation list")
		specPath  = fs.String("spec", "", "JSON architecture spec; overrides -layers and -loss")
		lossName  = fs.String("loss", "mse", "loss: mse, cross_entropy, binary_cross_entropy, mae, huber")
		data      = fs.String("data", "xor", `training data: "xor" or a CSV file`)
		labelCols = fs.String("labels", "", "CSV label column indices, comma separated (default: last column)")
		header    = fs.Bool("header", false, "CSV has a header row")
		normalize = fs.Bool("normalize", false, "min-max normalise CSV inputs")
		valRatio  = fs.Float64("val", 0, "fraction of samples held out for validation")
		epochs    = fs.Int("epochs", 10000, "number of epochs")
		batch     = fs.Int("batch", 1, "mini-batch size")
		lr        = fs.Float64("lr", 0.1, "learning rate")
		seed      = fs.Int64("seed", 0, "seed for initialisation and shuffling (0: time based)")
		out       = fs.String("out", "model.json", "where to save the trained model")
		every     = fs.Int("log-every", 1000, "log every N epochs (0 disables)")
		csvPath   = fs.String("csv", "", "write per-epoch stats to this CSV file")
		patience  = fs.Int("patience", 0, "stop after N epochs without improvement (0 disables)")
		minDelta  = fs.Float64("min-delta", 1e-4, "smallest loss decrease counted as an improvement")
		ckpt      = fs.String("checkpoint", "", "save the best model seen so far to this file")
		desc      = fs.String("description", "", "description stored with the model")
		verbose   = fs.Bool("v", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	log := newLogger(stderr, *verbose)
	log.Info("host", "cpu", platform.Host().String())

	set, err := loadData(*data, *labelCols, *header)
	if err != nil {
		return err
	}
	if *normalize {
		set.Normalize()
	}
	if set.Len() == 0 {
		return fmt.Errorf("%s: no samples", *data)
	}

	var rng *rand.Rand
	if *seed != 0 {
		rng = rand.New(rand.NewSource(*seed))
	}
	spec, err := buildSpec(*specPath, *layers, *lossName, len(set.Inputs[0]))
	if err != nil {
		return err
	}
	opts := []net.Option{net.WithRand(rng)}
	if *desc != "" {
		opts = append(opts, net.WithDescription(*desc))
	}
	n, err := spec.Build(opts...)
	if err != nil {
		return err
	}

	var val dataset.Set
	if *valRatio > 0 {
		shuffleRng := rng
		if shuffleRng == nil {
			shuffleRng = rand.New(rand.NewSource(rand.Int63()))
		}
		set, val = set.Shuffled(shuffleRng).Split(1 - *valRatio)
		if set.Len() == 0 || val.Len() == 0 {
			return fmt.Errorf("validation ratio %v leaves an empty split", *valRatio)
		}
	}

	var stop atomic.Bool
	sinks := train.Sinks{train.Logger{Log: log, Interval: *every}}
	if *csvPath != "" {
		c := train.NewCSVLogger(*csvPath, false)
		c.Log = log
		sinks = append(sinks, c)
	}
	if *patience > 0 {
		es := train.NewEarlyStopping(*patience, *minDelta, &stop)
		es.Log = log
		sinks = append(sinks, es)
	}
	if *ckpt != "" {
		mc := train.NewModelCheckpoint(*ckpt)
		mc.Log = log
		sinks = append(sinks, mc)
	}

	cfg := train.Config{
		Epochs:       *epochs,
		BatchSize:    *batch,
		Loss:         spec.Loss,
		LearningRate: *lr,
		Stop:         &stop,
		Sink:         sinks,
		Seed:         *seed,
	}
	trOpts := []train.Option{train.WithLogger(log), train.WithSaver(train.FileSaver(*out))}
	if val.Len() > 0 {
		trOpts = append(trOpts, train.WithValidation(val))
	}
	tr, err := train.New(n, cfg, trOpts...)
	if err != nil {
		return err
	}
	n.Summary(stdout)

	// An interrupt asks the run to stop after the current batch.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sig:
			log.Warn("interrupt received, stopping after the current batch")
			stop.Store(true)
		case <-done:
		}
	}()

	res, err := tr.Run(set)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s after %d/%d epochs, loss %.6f, saved to %s\n",
		res.State, res.EpochsCompleted, res.TotalEpochs, res.TrainLoss, *out)
	return nil
}

func loadData(src, labelCols string, header bool) (dataset.Set, error) {
	if src == "xor" {
		return dataset.XOR(), nil
	}
	cols, err := parseInts(labelCols)
	if err != nil {
		return dataset.Set{}, fmt.Errorf("-labels: %w", err)
	}
	if len(cols) == 0 {
		cols = []int{-1}
	}
	return dataset.LoadCSV(src, cols, header)
}

func buildSpec(specPath, layers, lossName string, inputSize int) (*net.Spec, error) {
	if specPath != "" {
		return net.LoadSpec(specPath)
	}
	k, err := loss.ParseKind(lossName)
	if err != nil {
		return nil, err
	}
	ls, err := net.ParseLayers(layers, inputSize)
	if err != nil {
		return nil, err
	}
	s := &net.Spec{Layers: ls, Loss: k}
	return s, s.Validate()
}

func runPredict(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	model := fs.String("model", "model.json", "saved model")
	raw := fs.Bool("raw", false, "print raw outputs instead of the presentation form")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("predict: no input vectors given")
	}
	n, err := net.Load(*model)
	if err != nil {
		return err
	}
	for _, arg := range fs.Args() {
		x, err := parseFloats(arg)
		if err != nil {
			return fmt.Errorf("input %q: %w", arg, err)
		}
		y, err := n.Forward(x)
		if err != nil {
			return fmt.Errorf("input %q: %w", arg, err)
		}
		if *raw {
			fmt.Fprintf(stdout, "%s\t%v\n", arg, y)
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\n", arg, net.Present(y, n.Metadata()))
	}
	return nil
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	model := fs.String("model", "model.json", "saved model")
	host := fs.Bool("host", false, "also print the host CPU")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := net.Load(*model)
	if err != nil {
		return err
	}
	if d := n.Metadata().Description; d != "" {
		fmt.Fprintf(stdout, "Description: %s\n", d)
	}
	n.Summary(stdout)
	if labels := n.Metadata().OutputLabels; len(labels) > 0 {
		fmt.Fprintf(stdout, "Output labels: %s\n", strings.Join(labels, ", "))
	}
	if *host {
		fmt.Fprintf(stdout, "Host: %s\n", platform.Host())
	}
	return nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
