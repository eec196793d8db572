// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import "github.com/mperf-go/mperf/pmu/pmudata"

// groupSize returns the maximum number of counters mperf places in one
// perf_event group: family's own override if it declares one,
// otherwise the package default.
func groupSize(family *pmudata.Family) int {
	if family != nil && family.MaxCounters > 0 {
		return family.MaxCounters
	}
	return maxCountersInGroup
}

// PlanGroup arranges requested counters into groups of at most
// groupSize(family) counters, one CountingDriver group each. Since a
// perf_event group is read and scheduled atomically as a unit, every
// group that splits off a counter still needs Cycles and Instructions
// alongside it (each gets its own leader) to compute a meaningful
// confidence ratio for that counter, per spec.md §4.3.
//
// Cycles and Instructions are repeated in every group only when
// counters includes them; PlanGroup does not add them otherwise. When
// groupSize(family) leaves no room beyond them, each group still takes
// one other counter and so exceeds groupSize(family).
func PlanGroup(counters []Counter, family *pmudata.Family) [][]Counter {
	var leaders, rest []Counter
	haveCycles, haveInstructions := false, false
	for _, c := range counters {
		switch c.id {
		case counterCycles:
			haveCycles = true
		case counterInstructions:
			haveInstructions = true
		default:
			rest = append(rest, c)
		}
	}
	if haveCycles {
		leaders = append(leaders, CounterCycles)
	}
	if haveInstructions {
		leaders = append(leaders, CounterInstructions)
	}

	if len(rest) == 0 {
		if len(leaders) == 0 {
			return nil
		}
		return [][]Counter{leaders}
	}

	chunkSize := groupSize(family) - len(leaders)
	if chunkSize < 1 {
		chunkSize = 1
	}

	var groups [][]Counter
	for len(rest) > 0 {
		n := chunkSize
		if n > len(rest) {
			n = len(rest)
		}
		group := make([]Counter, 0, len(leaders)+n)
		group = append(group, leaders...)
		group = append(group, rest[:n]...)
		groups = append(groups, group)
		rest = rest[n:]
	}
	return groups
}

// WithLeaderEvent prepends family's leader raw event to counters, if
// the family declares one, so the caller's sampling group opens with
// it.
func WithLeaderEvent(counters []Counter, family *pmudata.Family) []Counter {
	if family == nil || family.LeaderEvent == "" {
		return counters
	}
	return append([]Counter{Custom(family.LeaderEvent)}, counters...)
}
