package report

import (
	"math"
	"sort"
)

// Summary describes the distribution of a page's samples.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
}

func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		sq += (v - mean) * (v - mean)
	}

	return Summary{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		Median: Median(sorted),
		StdDev: math.Sqrt(sq / float64(len(sorted))),
	}
}

// Median of values, which need not be sorted.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := values
	if !sort.Float64sAreSorted(values) {
		sorted = append([]float64(nil), values...)
		sort.Float64s(sorted)
	}

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
