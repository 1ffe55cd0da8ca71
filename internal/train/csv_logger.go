package train

import (
	"encoding/csv"
	"log/slog"
	"os"
	"strconv"

	"github.com/ferrite-nn/ferrite/internal/net"
)

// CSVLogger writes one row per epoch to a CSV file.
type CSVLogger struct {
	Filename string
	Append   bool
	Log      *slog.Logger

	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{"epoch", "train_loss", "train_accuracy", "val_loss", "val_accuracy", "elapsed_seconds"}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

func (c *CSVLogger) OnTrainBegin(*net.Network) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		c.warn("open failed", err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)

	// Header only for a fresh file.
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.writer.Write(csvHeader)
		c.writer.Flush()
	}
}

func (c *CSVLogger) OnEpochEnd(stats EpochStats) {
	if c.writer == nil {
		return
	}
	record := []string{
		strconv.Itoa(stats.Epoch),
		formatFloat(stats.TrainLoss),
		formatOptional(stats.TrainAccuracy),
		formatOptional(stats.ValLoss),
		formatOptional(stats.ValAccuracy),
		strconv.FormatFloat(stats.Elapsed.Seconds(), 'f', 4, 64),
	}
	if err := c.writer.Write(record); err != nil {
		c.warn("write failed", err)
	}
	c.writer.Flush()
}

func (c *CSVLogger) OnTrainEnd(Result) {
	if c.file != nil {
		c.writer.Flush()
		if err := c.writer.Error(); err != nil {
			c.warn("flush failed", err)
		}
		c.file.Close()
		c.file = nil
		c.writer = nil
	}
}

func (c *CSVLogger) warn(msg string, err error) {
	if c.Log != nil {
		c.Log.Warn("csv logger: "+msg, "path", c.Filename, "err", err)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
