package filter

import (
	"fmt"
	"math"
	"sort"
)

// Aggregator reduces a window of samples to one value. Implementations
// must not mutate the input slice.
type Aggregator func(values []float64) float64

// Min returns the smallest sample.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest sample.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Median returns the middle sample, averaging the two central values
// for even-sized windows.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// MovingAverage returns the arithmetic mean of the window.
func MovingAverage(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// AggregatorByName resolves a configured aggregator name.
func AggregatorByName(name string) (Aggregator, error) {
	switch name {
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	case "median":
		return Median, nil
	case "moving_average", "mean":
		return MovingAverage, nil
	}
	return nil, fmt.Errorf("filter: unknown aggregator %q", name)
}
