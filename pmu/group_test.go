// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mperf-go/mperf/pmu/pmudata"
)

func TestPlanGroupDuplicatesLeadersPerGroup(t *testing.T) {
	groups := PlanGroup([]Counter{CounterLLCMisses, CounterInstructions, CounterCycles, CounterBranchMisses}, nil)

	// maxCountersInGroup is 3, so each of the two non-leader counters
	// gets its own group alongside a fresh Cycles/Instructions leader.
	require := assert.New(t)
	require.Len(groups, 2)
	require.Equal([]Counter{CounterCycles, CounterInstructions, CounterLLCMisses}, groups[0])
	require.Equal([]Counter{CounterCycles, CounterInstructions, CounterBranchMisses}, groups[1])
}

func TestPlanGroupSplitsOversizeRequest(t *testing.T) {
	counters := make([]Counter, maxCountersInGroup+2)
	for i := range counters {
		counters[i] = CounterLLCMisses
	}
	groups := PlanGroup(counters, nil)
	assert.Len(t, groups, 2)
	assert.Len(t, groups[0], maxCountersInGroup)
	assert.Len(t, groups[1], 2)
}

func TestPlanGroupFamilyMaxCountersKeepsOneExtraPerGroup(t *testing.T) {
	family := &pmudata.Family{MaxCounters: 2}
	groups := PlanGroup([]Counter{CounterCycles, CounterInstructions, CounterLLCMisses, CounterBranchMisses}, family)

	// groupSize 2 minus the 2 leaders leaves no room; PlanGroup still
	// places one extra counter per group, so each group has 3.
	assert.Len(t, groups, 2)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[1], 3)
}

func TestPlanGroupNoExtraCounters(t *testing.T) {
	groups := PlanGroup([]Counter{CounterCycles, CounterInstructions}, nil)
	assert.Equal(t, [][]Counter{{CounterCycles, CounterInstructions}}, groups)
}

func TestWithLeaderEventNoLeader(t *testing.T) {
	counters := []Counter{CounterCycles}
	assert.Equal(t, counters, WithLeaderEvent(counters, nil))
}

func TestWithLeaderEventPrepends(t *testing.T) {
	family, ok := pmudata.Find("zen3")
	if !ok {
		t.Skip("zen3 family not embedded")
	}
	got := WithLeaderEvent([]Counter{CounterCycles}, family)
	assert.Equal(t, Custom(family.LeaderEvent), got[0])
	assert.Equal(t, CounterCycles, got[1])
}
