// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats computes the post-processor's final sanity summary
// over a capture's pmu_counters rows: the spread of confidence values.
// It is a report, not a correctness check; postprocess returns it in
// its Result after the PMU and roofline joins finish.
package stats

import "github.com/aclements/go-moremath/stats"

// Summary holds min/mean/max for one numeric column across all
// pmu_counters rows.
type Summary struct {
	Min, Mean, Max float64
	N              int
}

// Summarize computes a Summary over xs. An empty xs yields a zeroed
// Summary rather than an error: a capture with zero samples for one
// counter (e.g. time_running was zero throughout) is valid input, not
// corrupt input.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	sample := stats.Sample{Xs: xs}
	min, max := sample.Bounds()
	return Summary{
		Min:  min,
		Mean: sample.Mean(),
		Max:  max,
		N:    len(xs),
	}
}

// ConfidenceSummary summarizes the confidence column of pmu_counters:
// every value must lie in (0, 1] per spec.md §8's confidence-bound
// property. Confidence values are already filtered to exclude
// time_running == 0 rows by the caller (postprocess's PMU join never
// emits a row for those), so Summarize's min should never be <= 0 for
// a correctly joined capture.
func ConfidenceSummary(confidences []float64) Summary {
	return Summarize(confidences)
}
