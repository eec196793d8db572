// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mperf-go/mperf/event"
)

func TestCounterKindMapping(t *testing.T) {
	cases := []struct {
		c    Counter
		want event.Kind
	}{
		{CounterCycles, event.KindPMUCycles},
		{CounterInstructions, event.KindPMUInstructions},
		{CounterLLCReferences, event.KindPMULLCReferences},
		{CounterLLCMisses, event.KindPMULLCMisses},
		{CounterBranchInstructions, event.KindPMUBranchInstructions},
		{CounterBranchMisses, event.KindPMUBranchMisses},
		{CounterStalledCyclesFrontend, event.KindPMUStalledCyclesFrontend},
		{CounterStalledCyclesBackend, event.KindPMUStalledCyclesBackend},
		{Custom("LONGEST_LAT_CACHE.MISS"), event.KindPMUCustomRaw},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.c.Kind(), c.c.String())
	}
}

func TestHardwareConfigKnownCounters(t *testing.T) {
	_, _, ok := hardwareConfig(CounterCycles)
	assert.True(t, ok)

	_, _, ok = hardwareConfig(Custom("LONGEST_LAT_CACHE.MISS"))
	assert.False(t, ok)
}

func TestCustomCounterStringAndRawName(t *testing.T) {
	c := Custom("LONGEST_LAT_CACHE.MISS")
	assert.Equal(t, "raw:LONGEST_LAT_CACHE.MISS", c.String())
	assert.Equal(t, "LONGEST_LAT_CACHE.MISS", c.RawName())
	assert.False(t, c.PreferRaw())
}

func TestPreferringRawMarksCounter(t *testing.T) {
	c := CounterLLCReferences.PreferringRaw()
	assert.True(t, c.PreferRaw())
	assert.Equal(t, "llc_references", c.String())
	assert.Equal(t, "", c.RawName())
}

func TestParseCounterRawSyntax(t *testing.T) {
	c, ok := ParseCounter("raw:ls_dc_accesses")
	require.True(t, ok)
	assert.Equal(t, Custom("ls_dc_accesses"), c)

	_, ok = ParseCounter("raw:")
	assert.False(t, ok)

	_, ok = ParseCounter("bogus")
	assert.False(t, ok)
}
