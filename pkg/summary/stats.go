package summary

import (
	"slices"

	"github.com/sirupsen/logrus"
)

// Stats contains distribution statistics over per-attempt samples, in
// seconds.
type Stats struct {
	Count int64
	Min   float64
	Max   float64
	P50   float64
	P95   float64
	P99   float64
	Mean  float64
}

// fields returns the statistics as log fields named prefix_<stat>.
func (s *Stats) fields(prefix string) logrus.Fields {
	return logrus.Fields{
		prefix + "_min":  s.Min,
		prefix + "_mean": s.Mean,
		prefix + "_p50":  s.P50,
		prefix + "_p95":  s.P95,
		prefix + "_p99":  s.P99,
		prefix + "_max":  s.Max,
	}
}

// calculateStats computes statistics for a set of samples.
func calculateStats(values []float64) *Stats {
	if len(values) == 0 {
		return &Stats{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return &Stats{
		Count: int64(len(values)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
		Mean:  sum / float64(len(values)),
	}
}

// percentile calculates the p-th percentile from sorted values using the
// nearest-rank method.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}

	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}
