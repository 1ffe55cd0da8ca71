package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// LoadCSV loads data from a CSV file.
// labelCols specifies the indices of columns to be used as labels, in order.
// Negative indices count from the last column. All other columns are used as
// features.
// hasHeader skips the first line if true.
func LoadCSV(filename string, labelCols []int, hasHeader bool) (Set, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Set{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return Set{}, fmt.Errorf("failed to read csv: %w", err)
	}

	startRow := 0
	if hasHeader {
		startRow = 1
	}
	if len(records) <= startRow {
		return Set{}, fmt.Errorf("%w: csv file has no data rows", ErrInvalid)
	}

	numCols := len(records[0])
	isLabelCol := make(map[int]bool, len(labelCols))
	resolved := make([]int, len(labelCols))
	for i, col := range labelCols {
		if col < 0 {
			col += numCols
		}
		if col < 0 || col >= numCols {
			return Set{}, fmt.Errorf("%w: label column %d out of range", ErrInvalid, labelCols[i])
		}
		resolved[i] = col
		isLabelCol[col] = true
	}
	labelCols = resolved

	var set Set
	for i := startRow; i < len(records); i++ {
		record := records[i]
		if len(record) != numCols {
			return Set{}, fmt.Errorf("%w: inconsistent number of columns at row %d", ErrInvalid, i)
		}

		values := make([]float64, numCols)
		for j, valStr := range record {
			if values[j], err = strconv.ParseFloat(valStr, 64); err != nil {
				return Set{}, fmt.Errorf("failed to parse value at row %d, col %d: %w", i, j, err)
			}
		}

		sample := make([]float64, 0, numCols-len(labelCols))
		for j, v := range values {
			if !isLabelCol[j] {
				sample = append(sample, v)
			}
		}
		label := make([]float64, 0, len(labelCols))
		for _, col := range labelCols {
			label = append(label, values[col])
		}
		set.Inputs = append(set.Inputs, sample)
		set.Labels = append(set.Labels, label)
	}
	return set, nil
}

// Normalize performs min-max normalization of the inputs in place.
// Constant features become 0.
func (s Set) Normalize() {
	if len(s.Inputs) == 0 {
		return
	}

	numFeatures := len(s.Inputs[0])
	lo := make([]float64, numFeatures)
	hi := make([]float64, numFeatures)
	copy(lo, s.Inputs[0])
	copy(hi, s.Inputs[0])

	for _, sample := range s.Inputs {
		for i, val := range sample {
			lo[i] = min(lo[i], val)
			hi[i] = max(hi[i], val)
		}
	}

	for _, sample := range s.Inputs {
		for i := range sample {
			if diff := hi[i] - lo[i]; diff != 0 {
				sample[i] = (sample[i] - lo[i]) / diff
			} else {
				sample[i] = 0
			}
		}
	}
}
