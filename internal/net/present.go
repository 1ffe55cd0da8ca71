package net

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Present formats a network output for display according to meta.OutputKind.
func Present(output []float64, meta Metadata) string {
	if len(output) == 0 {
		return ""
	}
	switch meta.OutputKind {
	case OutputProbability:
		return fmt.Sprintf("p=%.4f", output[0])
	case OutputDistribution:
		best := floats.MaxIdx(output)
		label := fmt.Sprintf("class %d", best)
		if best < len(meta.OutputLabels) {
			label = fmt.Sprintf("%s (%s)", label, meta.OutputLabels[best])
		}
		return fmt.Sprintf("%s p=%.4f", label, output[best])
	}
	vals := make([]string, len(output))
	for i, v := range output {
		vals[i] = fmt.Sprintf("%.4f", v)
	}
	return "[" + strings.Join(vals, " ") + "]"
}
