package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// WeightedMean calculates the weighted mean of values; weights must be the
// same length as data. Zero total weight yields 0.
func WeightedMean(data, weights []float64) float64 {
	if len(data) == 0 || len(data) != len(weights) {
		return 0
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}
	return stat.Mean(data, weights)
}
