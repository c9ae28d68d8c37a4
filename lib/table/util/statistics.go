// Package util provides hashing and statistics helpers shared by the table
// engines. This file implements the distribution statistics and the bucketed
// histogram used by GetInfo to describe the shape of a trie: how evenly keys
// spread over the root slots and at which depth data nodes settle.
//
// Key features include:
//   - Population statistics (mean, deviation, min/max ratio)
//   - A single distribution quality score in [0, 1]
//   - Thread-safe histogram with caller supplied bucket boundaries
//   - Percentile and median estimators
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Helper functions
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, population standard deviation, minimum and maximum
// of values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(sq / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats scores how evenly entries spread over buckets
// (root slots, participants, ...). 1.0 is a perfectly even spread.
func NewDistributionStats(bucketSizes []float64) DistributionStats {
	stats := NewStats(bucketSizes)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// lower CV and higher min/max ratio indicate a better distribution
	quality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: quality,
	}
}

// ----------------------------------------------------------------------------
// Histogram
// ----------------------------------------------------------------------------

// Histogram counts integer samples in buckets. Bucket i holds samples
// <= boundaries[i]; one extra bucket holds everything larger.
type Histogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

// NewHistogram creates a histogram with the given ascending boundaries
func NewHistogram(boundaries []int) *Histogram {
	b := make([]int, len(boundaries))
	copy(b, boundaries)
	return &Histogram{
		boundaries: b,
		buckets:    make([]int64, len(b)+1),
	}
}

// NewLinearHistogram creates a histogram with one bucket per value in [0, n)
func NewLinearHistogram(n int) *Histogram {
	b := make([]int, n)
	for i := range b {
		b[i] = i
	}
	return NewHistogram(b)
}

// AddSample adds a sample to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) AddSample(v int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	idx := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if v <= boundary {
			idx = i
			break
		}
	}

	h.buckets[idx]++
	h.count++
	h.sum += int64(v)
}

// Count returns the total number of samples
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Mean returns the arithmetic mean of all samples
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Mean() float64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

// Percentile returns the upper boundary of the bucket that contains the
// given percentile (0-100). Samples past the last boundary report the last
// boundary + 1.
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Percentile(p int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || p < 0 || p > 100 || len(h.boundaries) == 0 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(p) / 100.0))
	if target == 0 {
		target = 1
	}
	var cumulative int64
	for i, c := range h.buckets {
		cumulative += c
		if cumulative >= target {
			if i < len(h.boundaries) {
				return h.boundaries[i]
			}
			break
		}
	}
	return h.boundaries[len(h.boundaries)-1] + 1
}

// Median is Percentile(50)
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Median() int {
	return h.Percentile(50)
}

// Buckets returns a copy of the raw bucket counts
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Buckets() []int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make([]int64, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Reset clears all histogram data
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.count = 0
	h.sum = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// HistogramSummary is the JSON friendly snapshot of a Histogram
type HistogramSummary struct {
	Count   int64   `json:"count"`
	Mean    float64 `json:"mean"`
	Median  int     `json:"median"`
	P99     int     `json:"p99"`
	Buckets []int64 `json:"buckets"`
}

// Summary captures the current state of the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *Histogram) Summary() HistogramSummary {
	return HistogramSummary{
		Count:   h.Count(),
		Mean:    h.Mean(),
		Median:  h.Median(),
		P99:     h.Percentile(99),
		Buckets: h.Buckets(),
	}
}
